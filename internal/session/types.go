package session

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
)

// PeerMeta describes one side of a pairing.
type PeerMeta struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons,omitempty"`
}

// Proposal is a session request from the peer. ChainID is nil when the peer did not name a chain.
type Proposal struct {
	PeerID   string
	PeerMeta PeerMeta
	ChainID  *int64
	Accounts []common.Address
}

// Approval is sent back to the peer on success.
type Approval struct {
	Accounts []common.Address `json:"accounts"`
	ChainID  int64            `json:"chainId"`
	PeerID   string           `json:"peerId,omitempty"`
	PeerMeta *PeerMeta        `json:"peerMeta,omitempty"`
}

// RequestFrame is one inbound call.
type RequestFrame struct {
	ID     int64             `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// ResponseError is the error part of a rejection frame.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ResponseFrame answers exactly one RequestFrame: Result on approval, Error on rejection.
type ResponseFrame struct {
	ID     int64          `json:"id"`
	Result any            `json:"result,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// Rejected reports whether the frame is a rejection.
func (r ResponseFrame) Rejected() bool {
	return r.Error != nil
}

// URIEvent is emitted when a pairing URI is published.
type URIEvent struct {
	URI string
	Err error
}

// EventKind discriminates Event.
type EventKind int

const (
	EventSessionRequest EventKind = iota + 1
	EventCallRequest
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventSessionRequest:
		return "session_request"
	case EventCallRequest:
		return "call_request"
	case EventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event is something the peer did on a Client. Err is set for transport-level failures.
type Event struct {
	Kind     EventKind
	Proposal *Proposal
	Request  *RequestFrame
	Err      error
}

// Transport publishes pairing URIs and opens clients for them.
type Transport interface {
	// URIs delivers published pairing URIs.
	URIs() <-chan URIEvent
	// Dial opens a pairing client for uri.
	Dial(ctx context.Context, uri string) (Client, error)
}

// Client is one pairing as seen by the wallet.
type Client interface {
	// Events delivers peer events. It is closed when the client is closed.
	Events() <-chan Event
	ApproveSession(ctx context.Context, approval Approval) error
	RejectSession(ctx context.Context, message string) error
	ApproveRequest(ctx context.Context, response ResponseFrame) error
	RejectRequest(ctx context.Context, response ResponseFrame) error
	Close() error
}
