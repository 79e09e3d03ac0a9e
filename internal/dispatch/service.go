package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github/chapool/pairwallet/internal/metrics"
	"github/chapool/pairwallet/internal/session"
	"github/chapool/pairwallet/internal/util"
	"github/chapool/pairwallet/internal/wallet/keyholder"
	"github/chapool/pairwallet/internal/walleterr"
)

type service struct {
	holder   keyholder.Service
	metrics  *metrics.Service
	handlers map[string]handlerFunc

	mu       sync.Mutex
	state    atomic.Int32
	cancel   context.CancelFunc
	done     chan struct{}
	handling sync.WaitGroup
	// responding is held shared while a response is written and exclusively
	// while the session closes, so no frame follows the close.
	responding sync.RWMutex
	// seen holds every request id of the session
	seen sync.Map
}

// NewService creates a dispatcher answering requests with holder
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(holder keyholder.Service, m *metrics.Service) (Service, error) {
	if holder == nil {
		return nil, errors.New("key holder is required")
	}

	s := &service{
		holder:  holder,
		metrics: m,
		done:    make(chan struct{}),
	}
	s.handlers = s.routes()

	return s, nil
}

func (s *service) Start(ctx context.Context, sess *session.Session, client session.Client) error {
	if sess == nil || client == nil || !sess.Active() {
		return ErrSessionNotActive
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateListening)) {
		return ErrAlreadyStarted
	}

	ctx, s.cancel = context.WithCancel(ctx)
	ctx = util.WithLogFields(ctx, map[string]any{"session_id": sess.ID})

	go s.listen(ctx, sess, client)

	return nil
}

func (s *service) Stop() {
	s.mu.Lock()
	if s.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
		close(s.done)
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-s.done
}

func (s *service) Wait() {
	<-s.done
}

func (s *service) Done() <-chan struct{} {
	return s.done
}

func (s *service) State() State {
	return State(s.state.Load())
}

func (s *service) listen(ctx context.Context, sess *session.Session, client session.Client) {
	log := util.LogFromContext(ctx)

	reason := s.receive(ctx, sess, client)

	s.responding.Lock()
	closed := sess.Close(reason)
	s.responding.Unlock()
	if closed {
		log.Info().Err(reason).Msg("Session closed")
	}

	// handlers still running see the closed session and drop their responses
	s.cancel()
	s.handling.Wait()

	if err := client.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close pairing client")
	}

	s.state.Store(int32(StateStopped))
	close(s.done)
}

// receive consumes client events until the session ends and returns why it ended.
func (s *service) receive(ctx context.Context, sess *session.Session, client session.Client) error {
	log := util.LogFromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sess.Done():
			return sess.Err()
		case ev, ok := <-client.Events():
			if !ok {
				return session.ErrClientClosed
			}
			if ev.Err != nil {
				log.Error().Err(ev.Err).Msg("Pairing transport failed")
				return ev.Err
			}

			switch ev.Kind {
			case session.EventCallRequest:
				if ev.Request != nil {
					s.accept(ctx, sess, client, *ev.Request)
				}
			case session.EventDisconnect:
				log.Info().Msg("Peer disconnected")
				return nil
			case session.EventSessionRequest:
				log.Warn().Msg("Ignoring session request on an active session")
			}
		}
	}
}

// accept starts a handler for frame unless its id was already seen in this session.
func (s *service) accept(ctx context.Context, sess *session.Session, client session.Client, frame session.RequestFrame) {
	if _, seen := s.seen.LoadOrStore(frame.ID, struct{}{}); seen {
		util.LogFromContext(ctx).Warn().
			Int64("id", frame.ID).
			Str("method", frame.Method).
			Msg("Dropping duplicate request")
		s.metrics.DuplicateRequest()
		return
	}

	s.handling.Add(1)
	go func() {
		defer s.handling.Done()
		s.handle(ctx, sess, client, frame)
	}()
}

func (s *service) handle(ctx context.Context, sess *session.Session, client session.Client, frame session.RequestFrame) {
	ctx = util.WithLogFields(ctx, map[string]any{"id": frame.ID, "method": frame.Method})
	log := util.LogFromContext(ctx)

	start := time.Now()
	s.metrics.RequestStarted()

	result, err := s.call(ctx, frame)

	s.responding.RLock()
	defer s.responding.RUnlock()

	// a closed session receives nothing more
	select {
	case <-sess.Done():
		log.Warn().Err(err).Msg("Session closed before response, dropping it")
		s.metrics.ResponseDropped(frame.Method)
		s.metrics.RequestFinished(frame.Method, outcomeDropped, time.Since(start))
		return
	default:
	}

	// the response must go out even when the handler's context ended
	writeCtx := context.WithoutCancel(ctx)

	if err != nil {
		walletErr, _ := walleterr.FromError(err)
		event := log.Warn().Err(err)
		if walletErr.Ambiguous() {
			event = event.Str("tx_hash", walletErr.TxHash)
		}
		event.Msg("Rejecting request")

		rejectErr := client.RejectRequest(writeCtx, session.ResponseFrame{
			ID: frame.ID,
			Error: &session.ResponseError{
				Code:    walleterr.CodeOf(err),
				Message: walleterr.MessageOf(err),
			},
		})
		if rejectErr != nil {
			log.Error().Err(rejectErr).Msg("Failed to send rejection")
		}
		s.metrics.RequestFinished(frame.Method, outcomeRejected, time.Since(start))
		return
	}

	if err := client.ApproveRequest(writeCtx, session.ResponseFrame{ID: frame.ID, Result: result}); err != nil {
		log.Error().Err(err).Msg("Failed to send response")
	}
	log.Debug().Dur("took", time.Since(start)).Msg("Request approved")
	s.metrics.RequestFinished(frame.Method, outcomeApproved, time.Since(start))
}

// call routes frame to its handler. A panicking handler becomes a rejection.
func (s *service) call(ctx context.Context, frame session.RequestFrame) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			util.LogFromContext(ctx).Error().Interface("panic", r).Msg("Handler panicked")
			err = errors.Errorf("internal error handling %s", frame.Method)
		}
	}()

	handler, ok := s.handlers[frame.Method]
	if !ok {
		return nil, walleterr.WithCode(
			walleterr.Protocol("unsupported method %s", frame.Method),
			walleterr.CodeMethodNotFound,
		)
	}

	return handler(ctx, frame)
}
