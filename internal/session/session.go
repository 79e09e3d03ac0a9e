package session

import (
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Status of a Session.
type Status int32

const (
	StatusPending Status = iota
	StatusActive
	StatusRejected
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusRejected:
		return "rejected"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the approved channel between the wallet and one peer.
type Session struct {
	ID       string
	PeerID   string
	PeerMeta PeerMeta
	Accounts []common.Address
	ChainID  int64

	status    atomic.Int32
	done      chan struct{}
	closeOnce sync.Once
	reason    error
}

// New creates a pending session.
func New(peerID string, meta PeerMeta, accounts []common.Address, chainID int64) *Session {
	return &Session{
		ID:       uuid.NewString(),
		PeerID:   peerID,
		PeerMeta: meta,
		Accounts: accounts,
		ChainID:  chainID,
		done:     make(chan struct{}),
	}
}

func (s *Session) Status() Status {
	return Status(s.status.Load())
}

func (s *Session) Active() bool {
	return s.Status() == StatusActive
}

// Activate moves a pending session to active.
func (s *Session) Activate() bool {
	return s.status.CompareAndSwap(int32(StatusPending), int32(StatusActive))
}

// Reject moves a pending session to rejected and releases Done.
func (s *Session) Reject(reason error) bool {
	if !s.status.CompareAndSwap(int32(StatusPending), int32(StatusRejected)) {
		return false
	}
	s.finish(reason)
	return true
}

// Close ends the session. Only the first call has an effect.
func (s *Session) Close(reason error) bool {
	for {
		current := s.status.Load()
		if current == int32(StatusClosed) || current == int32(StatusRejected) {
			return false
		}
		if s.status.CompareAndSwap(current, int32(StatusClosed)) {
			s.finish(reason)
			return true
		}
	}
}

// Done is closed once the session is closed or rejected.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session ended, nil while it is open or when it was closed cleanly.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.reason
	default:
		return nil
	}
}

func (s *Session) finish(reason error) {
	s.closeOnce.Do(func() {
		s.reason = reason
		close(s.done)
	})
}
