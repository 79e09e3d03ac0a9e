// Package session holds the pairing session model and the contract a pairing
// transport has to fulfil.
//
// A transport publishes pairing URIs, opens a Client per URI and reports what the
// peer does on that client as typed Events. The wallet answers through the Client.
package session
