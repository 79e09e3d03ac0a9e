package pairing

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github/chapool/pairwallet/internal/session"
	"github/chapool/pairwallet/internal/wallet/keyholder"
)

var (
	// ErrSessionActive is returned when a negotiation starts while a session is still active.
	ErrSessionActive = errors.New("a session is already active")
	// ErrNegotiationInProgress is returned when AwaitAndApprove is called concurrently.
	ErrNegotiationInProgress = errors.New("a negotiation is already in progress")
	// ErrTransportClosed is returned when the transport stops publishing URIs.
	ErrTransportClosed = errors.New("pairing transport closed")
	// ErrPeerDisconnected is returned when the peer leaves before proposing a session.
	ErrPeerDisconnected = errors.New("peer disconnected before proposing a session")
)

// Service turns published pairing URIs into approved sessions.
type Service interface {
	// AwaitAndApprove waits for a URI, opens a client for it and approves the peer's
	// session proposal if it matches the held identity. The returned client carries the
	// session's request frames.
	AwaitAndApprove(ctx context.Context) (*session.Session, session.Client, error)

	// Current returns the last approved session, nil before the first one
	Current() *session.Session
}

// IdentityProvider exposes the identity sessions are approved for; keyholder.Service implements it.
type IdentityProvider interface {
	Identity() keyholder.Identity
}

type Config struct {
	// ProposalTimeout bounds the wait for a session proposal once a client is open. Zero waits forever.
	ProposalTimeout time.Duration
	// Meta describes the wallet to the peer.
	Meta session.PeerMeta
}

const (
	outcomeApproved       = "approved"
	outcomeChainMismatch  = "chain_mismatch"
	outcomeTransportError = "transport_error"
	outcomeCancelled      = "cancelled"
	outcomeFailed         = "failed"
)
