// Package loopback is an in-memory pairing transport. A Peer plays the dApp:
// it publishes a URI, proposes a session and sends calls to the wallet.
package loopback
