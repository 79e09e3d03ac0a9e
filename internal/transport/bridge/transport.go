package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github/chapool/pairwallet/internal/session"
	"github/chapool/pairwallet/internal/util"
)

var ErrTransportClosed = errors.New("bridge transport closed")

type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	EventBufferSize  int
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultEventBufferSize  = 64
)

func (c Config) normalize() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.EventBufferSize <= 0 {
		c.EventBufferSize = defaultEventBufferSize
	}
	return c
}

// Transport pairs with peers through a WebSocket relay. Pairing URIs are handed
// in with Publish, typically scanned or pasted by the user.
type Transport struct {
	config Config
	dialer *websocket.Dialer
	uris   chan session.URIEvent

	mu        sync.RWMutex
	closed    chan struct{}
	closeOnce sync.Once
}

var _ session.Transport = (*Transport)(nil)

func New(cfg Config) *Transport {
	cfg = cfg.normalize()

	return &Transport{
		config: cfg,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		uris:   make(chan session.URIEvent, cfg.EventBufferSize),
		closed: make(chan struct{}),
	}
}

func (t *Transport) URIs() <-chan session.URIEvent {
	return t.uris
}

// Publish validates raw and emits it as a published URI. Invalid URIs are emitted as failed events.
func (t *Transport) Publish(ctx context.Context, raw string) error {
	ev := session.URIEvent{URI: raw}
	if _, err := ParseURI(raw); err != nil {
		ev = session.URIEvent{Err: err}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

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

// Close ends the URI stream once no more URIs will be published.
// URIs published before stay readable. Open clients are not affected.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.mu.Lock()
		close(t.uris)
		t.mu.Unlock()
	})
}

// Dial connects to the bridge named in uri and subscribes to the handshake topic.
//
//nolint:ireturn // session.Client is the transport contract
func (t *Transport) Dial(ctx context.Context, raw string) (session.Client, error) {
	uri, err := ParseURI(raw)
	if err != nil {
		return nil, err
	}

	endpoint, err := uri.websocketURL()
	if err != nil {
		return nil, err
	}

	conn, resp, err := t.dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to bridge %s", uri.Bridge)
	}

	c := newClient(conn, t.config)
	for _, topic := range []string{uri.Topic, c.clientID} {
		if err := c.subscribe(topic); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	log := util.LogFromContext(ctx).With().Str("client_id", c.clientID).Logger()
	log.Debug().
		Str("bridge", uri.Bridge).
		Str("topic", uri.Topic).
		Msg("Connected to bridge")

	// the client outlives the dial context
	go c.readLoop(log.WithContext(context.WithoutCancel(ctx)))

	return c, nil
}
