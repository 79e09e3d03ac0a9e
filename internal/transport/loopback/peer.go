package loopback

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github/chapool/pairwallet/internal/session"
)

// ErrSessionRejected is returned by Propose when the wallet rejects the session.
var ErrSessionRejected = errors.New("session rejected")

type sessionDecision struct {
	approval *session.Approval
	message  string
}

// Peer is the dApp side of a loopback pairing.
type Peer struct {
	transport *Transport
	id        string
	meta      session.PeerMeta
	uri       string

	mu        sync.Mutex
	client    *client
	connected chan struct{}
	decisions chan sessionDecision
	waiters   map[int64]chan session.ResponseFrame
	responses chan session.ResponseFrame
	nextID    atomic.Int64
}

func (p *Peer) URI() string {
	return p.uri
}

func (p *Peer) ID() string {
	return p.id
}

// Publish announces the peer's URI on the transport.
func (p *Peer) Publish(ctx context.Context) error {
	return p.transport.publish(ctx, session.URIEvent{URI: p.uri})
}

// PublishError emits a failed "URI published" event.
func (p *Peer) PublishError(ctx context.Context, err error) error {
	return p.transport.publish(ctx, session.URIEvent{Err: err})
}

// Connected is closed once a wallet client dialed this peer.
func (p *Peer) Connected() <-chan struct{} {
	return p.connected
}

// Propose sends a session request and waits for the wallet's decision.
func (p *Peer) Propose(ctx context.Context, chainID *int64) (*session.Approval, error) {
	c, err := p.awaitClient(ctx)
	if err != nil {
		return nil, err
	}

	proposal := &session.Proposal{PeerID: p.id, PeerMeta: p.meta, ChainID: chainID}
	if err := c.stream.Emit(ctx, session.Event{Kind: session.EventSessionRequest, Proposal: proposal}); err != nil {
		return nil, err
	}

	select {
	case decision := <-p.decisions:
		if decision.approval == nil {
			return nil, errors.Wrap(ErrSessionRejected, decision.message)
		}
		return decision.approval, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "no session decision")
	}
}

// Send delivers frame without waiting. Responses to it show up on Responses.
func (p *Peer) Send(ctx context.Context, frame session.RequestFrame) error {
	c, err := p.awaitClient(ctx)
	if err != nil {
		return err
	}
	return c.stream.Emit(ctx, session.Event{Kind: session.EventCallRequest, Request: &frame})
}

// Call sends a request with a fresh id and waits for its response.
func (p *Peer) Call(ctx context.Context, method string, params ...any) (session.ResponseFrame, error) {
	raw := make([]json.RawMessage, 0, len(params))
	for _, param := range params {
		encoded, err := json.Marshal(param)
		if err != nil {
			return session.ResponseFrame{}, errors.Wrap(err, "failed to encode param")
		}
		raw = append(raw, encoded)
	}

	frame := session.RequestFrame{ID: p.nextID.Add(1), Method: method, Params: raw}

	waiter := make(chan session.ResponseFrame, 1)
	p.mu.Lock()
	p.waiters[frame.ID] = waiter
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.waiters, frame.ID)
		p.mu.Unlock()
	}()

	if err := p.Send(ctx, frame); err != nil {
		return session.ResponseFrame{}, err
	}

	select {
	case response := <-waiter:
		return response, nil
	case <-ctx.Done():
		return session.ResponseFrame{}, errors.Wrapf(ctx.Err(), "no response to request %d", frame.ID)
	}
}

// Responses delivers responses nobody is waiting for via Call.
func (p *Peer) Responses() <-chan session.ResponseFrame {
	return p.responses
}

// Disconnect tells the wallet the peer went away.
func (p *Peer) Disconnect(ctx context.Context) error {
	c, err := p.awaitClient(ctx)
	if err != nil {
		return err
	}
	return c.stream.Emit(ctx, session.Event{Kind: session.EventDisconnect})
}

// Fail emits a transport error on the wallet's client.
func (p *Peer) Fail(ctx context.Context, err error) error {
	c, awaitErr := p.awaitClient(ctx)
	if awaitErr != nil {
		return awaitErr
	}
	return c.stream.Emit(ctx, session.Event{Err: err})
}

func (p *Peer) attach(c *client) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return errors.New("peer already has a wallet client")
	}
	p.client = c
	close(p.connected)

	return nil
}

func (p *Peer) awaitClient(ctx context.Context) (*client, error) {
	select {
	case <-p.connected:
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "wallet never connected")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.client, nil
}

func (p *Peer) decide(decision sessionDecision) error {
	select {
	case p.decisions <- decision:
		return nil
	default:
		return errors.New("session already decided")
	}
}

func (p *Peer) deliver(response session.ResponseFrame) {
	p.mu.Lock()
	waiter, ok := p.waiters[response.ID]
	if ok {
		delete(p.waiters, response.ID)
	}
	p.mu.Unlock()

	if ok {
		waiter <- response
		return
	}

	select {
	case p.responses <- response:
	default:
	}
}
