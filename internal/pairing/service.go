package pairing

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github/chapool/pairwallet/internal/metrics"
	"github/chapool/pairwallet/internal/session"
	"github/chapool/pairwallet/internal/util"
	"github/chapool/pairwallet/internal/walleterr"
)

type service struct {
	identity  IdentityProvider
	transport session.Transport
	metrics   *metrics.Service
	config    Config
	peerID    string

	mu          sync.Mutex
	negotiating bool
	current     *session.Session
}

// NewService creates a negotiator approving sessions for identity
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(identity IdentityProvider, transport session.Transport, m *metrics.Service, cfg Config) (Service, error) {
	if identity == nil {
		return nil, errors.New("identity is required")
	}
	if transport == nil {
		return nil, errors.New("transport is required")
	}

	return &service{
		identity:  identity,
		transport: transport,
		metrics:   m,
		config:    cfg,
		peerID:    uuid.NewString(),
	}, nil
}

func (s *service) Current() *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *service) AwaitAndApprove(ctx context.Context) (*session.Session, session.Client, error) {
	if err := s.begin(); err != nil {
		return nil, nil, err
	}
	defer s.end()

	sess, client, outcome, err := s.negotiate(ctx)
	s.metrics.ObserveNegotiation(outcome)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()

	return sess, client, nil
}

func (s *service) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.negotiating {
		return ErrNegotiationInProgress
	}
	if s.current != nil && s.current.Active() {
		return ErrSessionActive
	}
	s.negotiating = true

	return nil
}

func (s *service) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.negotiating = false
}

func (s *service) negotiate(ctx context.Context) (*session.Session, session.Client, string, error) {
	log := util.LogFromContext(ctx)

	uri, err := s.awaitURI(ctx)
	if err != nil {
		return nil, nil, failureOutcome(ctx, err), err
	}

	log.Debug().Msg("Pairing URI published, opening client")

	client, err := s.transport.Dial(ctx, uri)
	if err != nil {
		return nil, nil, failureOutcome(ctx, err), errors.Wrap(err, "failed to open pairing client")
	}

	proposal, err := s.awaitProposal(ctx, client)
	if err != nil {
		_ = client.Close()
		return nil, nil, failureOutcome(ctx, err), err
	}

	identity := s.identity.Identity()
	if proposal.ChainID == nil || *proposal.ChainID != identity.ChainID {
		mismatch := chainMismatch(proposal.ChainID, identity.ChainID)

		log.Warn().
			Str("peer_id", proposal.PeerID).
			Str("peer_name", proposal.PeerMeta.Name).
			Err(mismatch).
			Msg("Rejecting session request")

		if err := client.RejectSession(ctx, mismatch.Message); err != nil {
			log.Error().Err(err).Msg("Failed to send session rejection")
		}
		_ = client.Close()

		return nil, nil, outcomeChainMismatch, mismatch
	}

	sess := session.New(proposal.PeerID, proposal.PeerMeta, []common.Address{identity.Address}, identity.ChainID)

	meta := s.config.Meta
	err = client.ApproveSession(ctx, session.Approval{
		Accounts: sess.Accounts,
		ChainID:  sess.ChainID,
		PeerID:   s.peerID,
		PeerMeta: &meta,
	})
	if err != nil {
		sess.Reject(err)
		_ = client.Close()
		return nil, nil, failureOutcome(ctx, err), errors.Wrap(err, "failed to approve session")
	}
	sess.Activate()

	log.Info().
		Str("session_id", sess.ID).
		Str("peer_id", sess.PeerID).
		Str("peer_name", sess.PeerMeta.Name).
		Str("account", identity.Address.Hex()).
		Int64("chain_id", sess.ChainID).
		Msg("Session approved")

	return sess, client, outcomeApproved, nil
}

func (s *service) awaitURI(ctx context.Context) (string, error) {
	select {
	case ev, ok := <-s.transport.URIs():
		if !ok {
			return "", ErrTransportClosed
		}
		if ev.Err != nil {
			return "", errors.Wrap(ev.Err, "pairing uri event failed")
		}
		if ev.URI == "" {
			return "", walleterr.Protocol("empty pairing uri")
		}
		return ev.URI, nil
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "no pairing uri published")
	}
}

// awaitProposal waits for the session request. Calls sent before approval are rejected.
func (s *service) awaitProposal(ctx context.Context, client session.Client) (*session.Proposal, error) {
	if s.config.ProposalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ProposalTimeout)
		defer cancel()
	}

	for {
		select {
		case ev, ok := <-client.Events():
			if !ok {
				return nil, session.ErrClientClosed
			}
			if ev.Err != nil {
				return nil, errors.Wrap(ev.Err, "session request failed")
			}

			switch ev.Kind {
			case session.EventSessionRequest:
				if ev.Proposal == nil {
					return nil, walleterr.Protocol("session request without proposal")
				}
				return ev.Proposal, nil
			case session.EventCallRequest:
				rejectUnapproved(ctx, client, ev.Request)
			case session.EventDisconnect:
				return nil, ErrPeerDisconnected
			}
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "no session request received")
		}
	}
}

func rejectUnapproved(ctx context.Context, client session.Client, frame *session.RequestFrame) {
	if frame == nil {
		return
	}

	err := walleterr.Protocol("session not approved")
	util.LogFromContext(ctx).Warn().
		Int64("id", frame.ID).
		Str("method", frame.Method).
		Msg("Rejecting call before session approval")

	rejectErr := client.RejectRequest(ctx, session.ResponseFrame{
		ID:    frame.ID,
		Error: &session.ResponseError{Code: walleterr.CodeOf(err), Message: err.Message},
	})
	if rejectErr != nil {
		util.LogFromContext(ctx).Error().Err(rejectErr).Int64("id", frame.ID).Msg("Failed to reject call")
	}
}

func chainMismatch(proposed *int64, expected int64) *walleterr.Error {
	if proposed == nil {
		return &walleterr.Error{
			Kind:    walleterr.KindChainMismatch,
			Message: "missing chain id for session request",
		}
	}
	return walleterr.ChainMismatch(*proposed, expected)
}

func failureOutcome(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return outcomeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return outcomeFailed
	case walleterr.KindOf(err) != "":
		return outcomeFailed
	default:
		return outcomeTransportError
	}
}
