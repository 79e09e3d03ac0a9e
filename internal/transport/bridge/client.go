package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github/chapool/pairwallet/internal/session"
	"github/chapool/pairwallet/internal/util"
	"github/chapool/pairwallet/internal/walleterr"
)

type client struct {
	conn     *websocket.Conn
	config   Config
	clientID string
	stream   *session.EventStream

	writeMu sync.Mutex

	mu          sync.Mutex
	peerID      string
	handshakeID int64

	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, cfg Config) *client {
	return &client{
		conn:     conn,
		config:   cfg,
		clientID: uuid.NewString(),
		stream:   session.NewEventStream(cfg.EventBufferSize),
	}
}

func (c *client) Events() <-chan session.Event {
	return c.stream.Events()
}

func (c *client) ApproveSession(_ context.Context, approval session.Approval) error {
	peerID, handshakeID, err := c.handshake()
	if err != nil {
		return err
	}

	accounts := make([]string, len(approval.Accounts))
	for i, account := range approval.Accounts {
		accounts[i] = account.Hex()
	}

	return c.publish(peerID, rpcResponse{
		ID:      handshakeID,
		JSONRPC: jsonRPCVersion,
		Result: sessionParams{
			Approved: true,
			ChainID:  approval.ChainID,
			Accounts: accounts,
			PeerID:   c.clientID,
			PeerMeta: approval.PeerMeta,
		},
	})
}

func (c *client) RejectSession(_ context.Context, message string) error {
	peerID, handshakeID, err := c.handshake()
	if err != nil {
		return err
	}

	return c.publish(peerID, rpcResponse{
		ID:      handshakeID,
		JSONRPC: jsonRPCVersion,
		Error:   &session.ResponseError{Code: walleterr.CodeServer, Message: message},
	})
}

func (c *client) ApproveRequest(_ context.Context, response session.ResponseFrame) error {
	return c.respond(response)
}

func (c *client) RejectRequest(_ context.Context, response session.ResponseFrame) error {
	return c.respond(response)
}

// Close tells the peer the session ended and closes the connection.
func (c *client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.stream.Close()

		c.writeMu.Lock()
		defer c.writeMu.Unlock()

		deadline := time.Now().Add(c.config.WriteTimeout)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.conn.Close()
	})
	return err
}

func (c *client) respond(response session.ResponseFrame) error {
	c.mu.Lock()
	peerID := c.peerID
	c.mu.Unlock()

	if peerID == "" {
		return errors.New("no peer to respond to")
	}

	return c.publish(peerID, rpcResponse{
		ID:      response.ID,
		JSONRPC: jsonRPCVersion,
		Result:  response.Result,
		Error:   response.Error,
	})
}

func (c *client) handshake() (string, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.peerID == "" {
		return "", 0, errors.New("no session request received")
	}
	return c.peerID, c.handshakeID, nil
}

func (c *client) rejectHandshake(ctx context.Context, peerID string, id int64) {
	err := c.publish(peerID, rpcResponse{
		ID:      id,
		JSONRPC: jsonRPCVersion,
		Error:   &session.ResponseError{Code: walleterr.CodeInvalidParams, Message: "session already active"},
	})
	if err != nil {
		util.LogFromContext(ctx).Error().Err(err).Str("peer_id", peerID).Msg("Failed to reject session request")
	}
}

func (c *client) subscribe(topic string) error {
	return c.write(envelope{Topic: topic, Type: typeSub})
}

func (c *client) publish(topic string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to encode message")
	}
	return c.write(envelope{Topic: topic, Type: typePub, Payload: string(payload), Silent: true})
}

func (c *client) write(env envelope) error {
	select {
	case <-c.stream.Closed():
		return session.ErrClientClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		return errors.Wrap(err, "failed to set write deadline")
	}
	if err := c.conn.WriteJSON(env); err != nil {
		return errors.Wrap(err, "failed to write to bridge")
	}

	return nil
}

// readLoop turns relay messages into events until the connection ends.
func (c *client) readLoop(ctx context.Context) {
	defer c.stream.Close()

	for {
		var env envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			select {
			case <-c.stream.Closed():
				return
			default:
			}

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				_ = c.stream.Emit(ctx, session.Event{Kind: session.EventDisconnect})
				return
			}
			_ = c.stream.Emit(ctx, session.Event{Err: errors.Wrap(err, "bridge connection failed")})
			return
		}

		if env.Type != typePub || env.Payload == "" {
			continue
		}

		ev, ok := c.decode(ctx, env)
		if !ok {
			continue
		}
		if err := c.stream.Emit(ctx, ev); err != nil {
			return
		}
	}
}

func (c *client) decode(ctx context.Context, env envelope) (session.Event, bool) {
	log := util.LogFromContext(ctx)

	var req rpcRequest
	if err := json.Unmarshal([]byte(env.Payload), &req); err != nil {
		log.Warn().Err(err).Str("topic", env.Topic).Msg("Ignoring malformed bridge payload")
		return session.Event{}, false
	}
	if req.Method == "" {
		log.Warn().Int64("id", req.ID).Msg("Ignoring bridge payload without method")
		return session.Event{}, false
	}

	switch req.Method {
	case methodSessionRequest:
		var params sessionRequestParams
		if len(req.Params) == 0 || json.Unmarshal(req.Params[0], &params) != nil || params.PeerID == "" {
			log.Warn().Int64("id", req.ID).Msg("Ignoring malformed session request")
			return session.Event{}, false
		}

		// the first handshake owns the client, later ones are turned away
		c.mu.Lock()
		owner := c.peerID
		if owner == "" {
			c.peerID = params.PeerID
			c.handshakeID = req.ID
		}
		c.mu.Unlock()

		if owner != "" {
			log.Warn().
				Int64("id", req.ID).
				Str("peer_id", params.PeerID).
				Msg("Rejecting session request, client already paired")
			if params.PeerID != owner {
				c.rejectHandshake(ctx, params.PeerID, req.ID)
			}
			return session.Event{}, false
		}

		return session.Event{
			Kind: session.EventSessionRequest,
			Proposal: &session.Proposal{
				PeerID:   params.PeerID,
				PeerMeta: params.PeerMeta,
				ChainID:  params.ChainID,
			},
		}, true

	case methodSessionUpdate:
		var params sessionUpdateParams
		if len(req.Params) > 0 && json.Unmarshal(req.Params[0], &params) == nil && !params.Approved {
			return session.Event{Kind: session.EventDisconnect}, true
		}
		log.Debug().Msg("Ignoring session update")
		return session.Event{}, false

	default:
		return session.Event{
			Kind:    session.EventCallRequest,
			Request: &session.RequestFrame{ID: req.ID, Method: req.Method, Params: req.Params},
		}, true
	}
}
