package test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// BridgeEnvelope is the relay's pub/sub frame.
type BridgeEnvelope struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

// Bridge is an in-process pub/sub relay. Messages published to a topic without
// subscribers are queued until someone subscribes.
type Bridge struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[*bridgeConn]struct{}
	subs    map[string][]*bridgeConn
	pending map[string][]BridgeEnvelope
}

type bridgeConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *bridgeConn) send(env BridgeEnvelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteJSON(env)
}

func NewBridge(t *testing.T) *Bridge {
	t.Helper()

	b := &Bridge{
		conns:   make(map[*bridgeConn]struct{}),
		subs:    make(map[string][]*bridgeConn),
		pending: make(map[string][]BridgeEnvelope),
	}
	b.server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.Close)

	return b
}

// URL is the bridge's http url, as it appears in pairing URIs.
func (b *Bridge) URL() string {
	return b.server.URL
}

// Close drops every connection and stops the server.
func (b *Bridge) Close() {
	b.mu.Lock()
	for c := range b.conns {
		_ = c.conn.Close()
	}
	b.mu.Unlock()
	b.server.Close()
}

func (b *Bridge) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &bridgeConn{conn: conn}
	b.mu.Lock()
	b.conns[c] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.conns, c)
		for topic, subs := range b.subs {
			kept := subs[:0]
			for _, s := range subs {
				if s != c {
					kept = append(kept, s)
				}
			}
			b.subs[topic] = kept
		}
		b.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		var env BridgeEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}

		switch env.Type {
		case "sub":
			b.subscribe(env.Topic, c)
		case "pub":
			b.publish(env)
		}
	}
}

func (b *Bridge) subscribe(topic string, c *bridgeConn) {
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], c)
	queued := b.pending[topic]
	delete(b.pending, topic)
	b.mu.Unlock()

	for _, env := range queued {
		c.send(env)
	}
}

func (b *Bridge) publish(env BridgeEnvelope) {
	b.mu.Lock()
	subs := append([]*bridgeConn(nil), b.subs[env.Topic]...)
	if len(subs) == 0 {
		b.pending[env.Topic] = append(b.pending[env.Topic], env)
	}
	b.mu.Unlock()

	for _, c := range subs {
		c.send(env)
	}
}

// BridgePeer is a raw relay connection playing the dApp.
type BridgePeer struct {
	t        *testing.T
	conn     *websocket.Conn
	messages chan BridgeEnvelope
}

// NewBridgePeer connects to b and subscribes to topic.
func NewBridgePeer(t *testing.T, b *Bridge, topic string) *BridgePeer {
	t.Helper()

	endpoint := "ws" + strings.TrimPrefix(b.URL(), "http")
	conn, resp, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("failed to connect to bridge: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	p := &BridgePeer{t: t, conn: conn, messages: make(chan BridgeEnvelope, 16)}
	go func() {
		defer close(p.messages)
		for {
			var env BridgeEnvelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			p.messages <- env
		}
	}()

	if err := conn.WriteJSON(BridgeEnvelope{Topic: topic, Type: "sub"}); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}

	return p
}

// Publish sends msg as JSON payload to topic.
func (p *BridgePeer) Publish(topic string, msg any) {
	p.t.Helper()

	payload, err := json.Marshal(msg)
	if err != nil {
		p.t.Fatalf("failed to encode payload: %v", err)
	}
	if err := p.conn.WriteJSON(BridgeEnvelope{Topic: topic, Type: "pub", Payload: string(payload)}); err != nil {
		p.t.Fatalf("failed to publish: %v", err)
	}
}

// Next decodes the next payload into out.
func (p *BridgePeer) Next(ctx context.Context, out any) {
	p.t.Helper()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	select {
	case env, ok := <-p.messages:
		if !ok {
			p.t.Fatal("bridge connection closed")
		}
		if err := json.Unmarshal([]byte(env.Payload), out); err != nil {
			p.t.Fatalf("failed to decode payload: %v", err)
		}
	case <-ctx.Done():
		p.t.Fatal("no message from bridge")
	}
}
