package loopback

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github/chapool/pairwallet/internal/session"
)

const defaultBufferSize = 64

// Transport connects wallet clients to in-process peers by URI.
type Transport struct {
	uris       chan session.URIEvent
	bufferSize int

	mu    sync.Mutex
	peers map[string]*Peer

	publishMu sync.RWMutex
	closed    chan struct{}
	closeOnce sync.Once
}

var ErrTransportClosed = errors.New("loopback transport closed")

var _ session.Transport = (*Transport)(nil)

// New creates a transport whose client event buffers hold bufferSize events.
func New(bufferSize int) *Transport {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Transport{
		uris:       make(chan session.URIEvent, bufferSize),
		bufferSize: bufferSize,
		peers:      make(map[string]*Peer),
		closed:     make(chan struct{}),
	}
}

// Close ends the URI stream. URIs published before stay readable.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.publishMu.Lock()
		close(t.uris)
		t.publishMu.Unlock()
	})
}

func (t *Transport) URIs() <-chan session.URIEvent {
	return t.uris
}

// Dial attaches a wallet client to the peer that owns uri.
//
//nolint:ireturn // session.Client is the transport contract
func (t *Transport) Dial(_ context.Context, uri string) (session.Client, error) {
	t.mu.Lock()
	peer, ok := t.peers[uri]
	t.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("unknown pairing uri %q", uri)
	}

	client := &client{
		peer:   peer,
		stream: session.NewEventStream(t.bufferSize),
	}
	if err := peer.attach(client); err != nil {
		return nil, err
	}

	return client, nil
}

// NewPeer registers a dApp peer and returns it. Its URI is not published until Publish.
func (t *Transport) NewPeer(meta session.PeerMeta) *Peer {
	topic := uuid.NewString()
	peer := &Peer{
		transport: t,
		id:        uuid.NewString(),
		meta:      meta,
		uri:       fmt.Sprintf("wc:%s@1?bridge=loopback&key=%s", topic, uuid.NewString()),
		connected: make(chan struct{}),
		decisions: make(chan sessionDecision, 1),
		waiters:   make(map[int64]chan session.ResponseFrame),
		responses: make(chan session.ResponseFrame, t.bufferSize),
	}

	t.mu.Lock()
	t.peers[peer.uri] = peer
	t.mu.Unlock()

	return peer
}

func (t *Transport) publish(ctx context.Context, ev session.URIEvent) error {
	t.publishMu.RLock()
	defer t.publishMu.RUnlock()

	select {
	case <-t.closed:
		return ErrTransportClosed
	default:
	}

	select {
	case t.uris <- ev:
		return nil
	case <-t.closed:
		return ErrTransportClosed
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "failed to publish uri")
	}
}

type client struct {
	peer   *Peer
	stream *session.EventStream
}

func (c *client) Events() <-chan session.Event {
	return c.stream.Events()
}

func (c *client) ApproveSession(_ context.Context, approval session.Approval) error {
	if c.isClosed() {
		return session.ErrClientClosed
	}
	return c.peer.decide(sessionDecision{approval: &approval})
}

func (c *client) RejectSession(_ context.Context, message string) error {
	if c.isClosed() {
		return session.ErrClientClosed
	}
	return c.peer.decide(sessionDecision{message: message})
}

func (c *client) ApproveRequest(_ context.Context, response session.ResponseFrame) error {
	if c.isClosed() {
		return session.ErrClientClosed
	}
	c.peer.deliver(response)
	return nil
}

func (c *client) RejectRequest(_ context.Context, response session.ResponseFrame) error {
	if c.isClosed() {
		return session.ErrClientClosed
	}
	c.peer.deliver(response)
	return nil
}

func (c *client) Close() error {
	c.stream.Close()
	return nil
}

func (c *client) isClosed() bool {
	select {
	case <-c.stream.Closed():
		return true
	default:
		return false
	}
}
