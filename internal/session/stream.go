package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrClientClosed is returned when writing to or through a closed client.
var ErrClientClosed = errors.New("pairing client closed")

// EventStream is a bounded event channel that can be closed while producers are blocked.
type EventStream struct {
	events    chan Event
	closed    chan struct{}
	mu        sync.RWMutex
	closeOnce sync.Once
}

func NewEventStream(size int) *EventStream {
	if size <= 0 {
		size = 1
	}
	return &EventStream{
		events: make(chan Event, size),
		closed: make(chan struct{}),
	}
}

func (s *EventStream) Events() <-chan Event {
	return s.events
}

// Emit queues ev, blocking while the buffer is full.
func (s *EventStream) Emit(ctx context.Context, ev Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-s.closed:
		return ErrClientClosed
	default:
	}

	select {
	case s.events <- ev:
		return nil
	case <-s.closed:
		return ErrClientClosed
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "failed to emit event")
	}
}

// Closed is closed once Close was called.
func (s *EventStream) Closed() <-chan struct{} {
	return s.closed
}

// Close unblocks producers and closes the event channel. Buffered events stay readable.
func (s *EventStream) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.mu.Lock()
		close(s.events)
		s.mu.Unlock()
	})
}
