package dispatch

import (
	"context"

	"github.com/pkg/errors"
	"github/chapool/pairwallet/internal/session"
)

var (
	ErrSessionNotActive = errors.New("session is not active")
	ErrAlreadyStarted   = errors.New("dispatcher already started")
)

// State of a dispatcher: Idle until Start, Listening while the session is serviced, then Stopped.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Service answers the request frames of one active session.
type Service interface {
	// Start begins servicing client's requests and returns immediately
	Start(ctx context.Context, sess *session.Session, client session.Client) error

	// Stop closes the session, drops pending responses and waits for handlers to return
	Stop()

	// Wait blocks until the dispatcher stopped
	Wait()

	// Done is closed once the dispatcher stopped
	Done() <-chan struct{}

	State() State
}

// Methods handled by the dispatcher.
const (
	MethodSendTransaction    = "eth_sendTransaction"
	MethodSign               = "eth_sign"
	MethodPersonalSign       = "personal_sign"
	MethodSignTransaction    = "eth_signTransaction"
	MethodSendRawTransaction = "eth_sendRawTransaction"
	MethodAccounts           = "eth_accounts"
	MethodChainID            = "eth_chainId"
)

const (
	outcomeApproved = "approved"
	outcomeRejected = "rejected"
	outcomeDropped  = "dropped"
)
