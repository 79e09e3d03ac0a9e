package bridge_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/pairwallet/internal/session"
	"github/chapool/pairwallet/internal/test"
	"github/chapool/pairwallet/internal/transport/bridge"
)

type rpcMessage struct {
	ID      int64           `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  []any           `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type approvedSession struct {
	Approved bool     `json:"approved"`
	ChainID  int64    `json:"chainId"`
	Accounts []string `json:"accounts"`
	PeerID   string   `json:"peerId"`
}

func TestParseURI(t *testing.T) {
	uri, err := bridge.ParseURI("wc:8a5e5bdc-a0e4-4702-ba63-8f1a5655744f@1?bridge=https%3A%2F%2Fbridge.walletconnect.org&key=41791102999c339c844880b23950704cc43aa840f3739e365323cda4dfa89e7a")
	require.NoError(t, err)

	assert.Equal(t, "8a5e5bdc-a0e4-4702-ba63-8f1a5655744f", uri.Topic)
	assert.Equal(t, "1", uri.Version)
	assert.Equal(t, "https://bridge.walletconnect.org", uri.Bridge)
	assert.Equal(t, "41791102999c339c844880b23950704cc43aa840f3739e365323cda4dfa89e7a", uri.Key)

	again, err := bridge.ParseURI(uri.String())
	require.NoError(t, err)
	assert.Equal(t, uri, again)
}

func TestParseURIRejectsInvalid(t *testing.T) {
	for _, raw := range []string{
		"",
		"http://example.com",
		"wc:@1?bridge=https%3A%2F%2Fb.example&key=00",
		"wc:topic@2?bridge=https%3A%2F%2Fb.example&key=00",
		"wc:topic@1?key=00",
		"wc:topic@1?bridge=https%3A%2F%2Fb.example",
		"wc:topic@1?bridge=https%3A%2F%2Fb.example&key=xyz",
	} {
		_, err := bridge.ParseURI(raw)
		assert.Error(t, err, raw)
	}
}

func newURI(b *test.Bridge) bridge.URI {
	id := uuid.New()
	return bridge.URI{
		Topic:   uuid.NewString(),
		Version: "1",
		Bridge:  b.URL(),
		Key:     hex.EncodeToString(append(id[:], id[:]...)),
	}
}

func pair(ctx context.Context, t *testing.T) (session.Client, *test.BridgePeer, *test.Bridge, string) {
	t.Helper()

	relay := test.NewBridge(t)
	uri := newURI(relay)

	transport := bridge.New(bridge.Config{WriteTimeout: time.Second})
	require.NoError(t, transport.Publish(ctx, uri.String()))

	ev := <-transport.URIs()
	require.NoError(t, ev.Err)

	client, err := transport.Dial(ctx, ev.URI)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	peerID := uuid.NewString()
	dapp := test.NewBridgePeer(t, relay, peerID)
	dapp.Publish(uri.Topic, rpcMessage{
		ID:      1,
		JSONRPC: "2.0",
		Method:  "wc_sessionRequest",
		Params: []any{map[string]any{
			"peerId":   peerID,
			"peerMeta": map[string]any{"name": "dapp", "url": "https://dapp.example"},
			"chainId":  123,
		}},
	})

	return client, dapp, relay, peerID
}

func nextEvent(ctx context.Context, t *testing.T, client session.Client) session.Event {
	t.Helper()

	select {
	case ev, ok := <-client.Events():
		require.True(t, ok, "events closed")
		return ev
	case <-ctx.Done():
		t.Fatal("no event")
		return session.Event{}
	}
}

func TestSessionAndCallRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	client, dapp, _, peerID := pair(ctx, t)

	ev := nextEvent(ctx, t, client)
	require.Equal(t, session.EventSessionRequest, ev.Kind)
	require.NotNil(t, ev.Proposal.ChainID)
	assert.Equal(t, int64(123), *ev.Proposal.ChainID)
	assert.Equal(t, peerID, ev.Proposal.PeerID)
	assert.Equal(t, "dapp", ev.Proposal.PeerMeta.Name)

	require.NoError(t, client.ApproveSession(ctx, session.Approval{
		Accounts: []common.Address{test.WalletAddress},
		ChainID:  123,
	}))

	var approval rpcMessage
	dapp.Next(ctx, &approval)
	assert.Equal(t, int64(1), approval.ID)
	require.Nil(t, approval.Error)

	var approved approvedSession
	require.NoError(t, json.Unmarshal(approval.Result, &approved))
	assert.True(t, approved.Approved)
	assert.Equal(t, int64(123), approved.ChainID)
	assert.Equal(t, []string{test.WalletAddress.Hex()}, approved.Accounts)
	require.NotEmpty(t, approved.PeerID)

	dapp.Publish(approved.PeerID, rpcMessage{
		ID:      1700000000000001,
		JSONRPC: "2.0",
		Method:  "eth_sign",
		Params:  []any{test.WalletAddress.Hex(), "hello"},
	})

	ev = nextEvent(ctx, t, client)
	require.Equal(t, session.EventCallRequest, ev.Kind)
	assert.Equal(t, int64(1700000000000001), ev.Request.ID)
	assert.Equal(t, "eth_sign", ev.Request.Method)
	require.Len(t, ev.Request.Params, 2)

	require.NoError(t, client.ApproveRequest(ctx, session.ResponseFrame{ID: ev.Request.ID, Result: "0xsig"}))

	var response rpcMessage
	dapp.Next(ctx, &response)
	assert.Equal(t, int64(1700000000000001), response.ID)
	assert.JSONEq(t, `"0xsig"`, string(response.Result))

	require.NoError(t, client.RejectRequest(ctx, session.ResponseFrame{
		ID:    5,
		Error: &session.ResponseError{Code: -32000, Message: "insufficient funds"},
	}))

	dapp.Next(ctx, &response)
	assert.Equal(t, int64(5), response.ID)
	require.NotNil(t, response.Error)
	assert.Equal(t, "insufficient funds", response.Error.Message)
}

func TestRejectSession(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	client, dapp, _, _ := pair(ctx, t)
	nextEvent(ctx, t, client)

	require.NoError(t, client.RejectSession(ctx, "invalid chain id 1 for session request, expected 123"))

	var rejection rpcMessage
	dapp.Next(ctx, &rejection)
	require.NotNil(t, rejection.Error)
	assert.Contains(t, rejection.Error.Message, "invalid chain id 1")
}

func TestSessionUpdateDisconnects(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	client, dapp, _, _ := pair(ctx, t)
	nextEvent(ctx, t, client)
	require.NoError(t, client.ApproveSession(ctx, session.Approval{ChainID: 123}))

	var approval rpcMessage
	dapp.Next(ctx, &approval)
	var approved approvedSession
	require.NoError(t, json.Unmarshal(approval.Result, &approved))

	dapp.Publish(approved.PeerID, rpcMessage{
		ID:      2,
		JSONRPC: "2.0",
		Method:  "wc_sessionUpdate",
		Params:  []any{map[string]any{"approved": false}},
	})

	ev := nextEvent(ctx, t, client)
	assert.Equal(t, session.EventDisconnect, ev.Kind)
}

func TestBridgeFailureIsReported(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	client, _, relay, _ := pair(ctx, t)
	nextEvent(ctx, t, client)

	relay.Close()

	ev := nextEvent(ctx, t, client)
	require.Error(t, ev.Err)

	_, ok := <-client.Events()
	assert.False(t, ok)
}

func TestRespondBeforeSessionRequestFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	relay := test.NewBridge(t)
	uri := newURI(relay)

	client, err := bridge.New(bridge.Config{}).Dial(ctx, uri.String())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	require.Error(t, client.ApproveSession(ctx, session.Approval{ChainID: 123}))
	require.Error(t, client.ApproveRequest(ctx, session.ResponseFrame{ID: 1}))
}

func TestPublishInvalidURI(t *testing.T) {
	transport := bridge.New(bridge.Config{})
	require.NoError(t, transport.Publish(t.Context(), "not a uri"))

	ev := <-transport.URIs()
	require.Error(t, ev.Err)
	assert.Empty(t, ev.URI)

	_, err := transport.Dial(t.Context(), "not a uri")
	require.Error(t, err)
}

func TestClosedClientRefusesWrites(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	client, _, _, _ := pair(ctx, t)
	nextEvent(ctx, t, client)

	require.NoError(t, client.Close())
	require.ErrorIs(t, client.ApproveSession(ctx, session.Approval{ChainID: 123}), session.ErrClientClosed)
}

func TestSecondSessionRequestDoesNotTakeOver(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	client, dapp, relay, _ := pair(ctx, t)
	nextEvent(ctx, t, client)
	require.NoError(t, client.ApproveSession(ctx, session.Approval{ChainID: 123}))

	var approval rpcMessage
	dapp.Next(ctx, &approval)
	var approved approvedSession
	require.NoError(t, json.Unmarshal(approval.Result, &approved))

	otherID := uuid.NewString()
	other := test.NewBridgePeer(t, relay, otherID)
	other.Publish(approved.PeerID, rpcMessage{
		ID:      9,
		JSONRPC: "2.0",
		Method:  "wc_sessionRequest",
		Params: []any{map[string]any{
			"peerId":   otherID,
			"peerMeta": map[string]any{"name": "other", "url": "https://other.example"},
			"chainId":  123,
		}},
	})

	var rejection rpcMessage
	other.Next(ctx, &rejection)
	assert.Equal(t, int64(9), rejection.ID)
	require.NotNil(t, rejection.Error)
	assert.Equal(t, "session already active", rejection.Error.Message)

	dapp.Publish(approved.PeerID, rpcMessage{
		ID:      77,
		JSONRPC: "2.0",
		Method:  "eth_accounts",
	})

	ev := nextEvent(ctx, t, client)
	require.Equal(t, session.EventCallRequest, ev.Kind)
	assert.Equal(t, int64(77), ev.Request.ID)

	require.NoError(t, client.ApproveRequest(ctx, session.ResponseFrame{ID: 77, Result: []string{test.WalletAddress.Hex()}}))

	var response rpcMessage
	dapp.Next(ctx, &response)
	assert.Equal(t, int64(77), response.ID)
	assert.Nil(t, response.Error)
}

func TestCloseEndsURIStream(t *testing.T) {
	ctx := t.Context()
	relay := test.NewBridge(t)
	uri := newURI(relay)

	transport := bridge.New(bridge.Config{})
	require.NoError(t, transport.Publish(ctx, uri.String()))
	transport.Close()

	ev, ok := <-transport.URIs()
	require.True(t, ok)
	assert.Equal(t, uri.String(), ev.URI)

	_, ok = <-transport.URIs()
	assert.False(t, ok)

	require.ErrorIs(t, transport.Publish(ctx, uri.String()), bridge.ErrTransportClosed)
}
