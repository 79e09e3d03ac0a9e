package pairing_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/pairwallet/internal/metrics"
	"github/chapool/pairwallet/internal/pairing"
	"github/chapool/pairwallet/internal/session"
	"github/chapool/pairwallet/internal/test"
	"github/chapool/pairwallet/internal/transport/loopback"
	"github/chapool/pairwallet/internal/wallet/keyholder"
	"github/chapool/pairwallet/internal/walleterr"
)

type proposeResult struct {
	approval *session.Approval
	err      error
}

func newNegotiator(t *testing.T, cfg pairing.Config) (pairing.Service, *loopback.Transport, *prometheus.Registry) {
	t.Helper()

	account, err := keyholder.DeriveIdentity(test.WalletKeyHex, test.WalletChainID)
	require.NoError(t, err)

	transport := loopback.New(8)
	reg := prometheus.NewRegistry()

	svc, err := pairing.NewService(account, transport, metrics.New(reg), cfg)
	require.NoError(t, err)

	return svc, transport, reg
}

func propose(ctx context.Context, peer *loopback.Peer, chainID *int64) <-chan proposeResult {
	out := make(chan proposeResult, 1)
	go func() {
		approval, err := peer.Propose(ctx, chainID)
		out <- proposeResult{approval: approval, err: err}
	}()
	return out
}

func chain(id int64) *int64 {
	return &id
}

func TestAwaitAndApproveMatchingChain(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	svc, transport, reg := newNegotiator(t, pairing.Config{Meta: session.PeerMeta{Name: "pairwallet"}})

	peer := transport.NewPeer(session.PeerMeta{Name: "dapp", URL: "https://dapp.example"})
	require.NoError(t, peer.Publish(ctx))
	proposed := propose(ctx, peer, chain(123))

	sess, client, err := svc.AwaitAndApprove(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, session.StatusActive, sess.Status())
	assert.Equal(t, []common.Address{test.WalletAddress}, sess.Accounts)
	assert.Equal(t, int64(123), sess.ChainID)
	assert.Equal(t, peer.ID(), sess.PeerID)
	assert.Equal(t, "dapp", sess.PeerMeta.Name)
	assert.Same(t, sess, svc.Current())

	res := <-proposed
	require.NoError(t, res.err)
	assert.Equal(t, []common.Address{test.WalletAddress}, res.approval.Accounts)
	assert.Equal(t, int64(123), res.approval.ChainID)
	require.NotNil(t, res.approval.PeerMeta)
	assert.Equal(t, "pairwallet", res.approval.PeerMeta.Name)

	count, err := testutil.GatherAndCount(reg, "pairwallet_negotiations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAwaitAndApproveChainMismatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	svc, transport, _ := newNegotiator(t, pairing.Config{})

	peer := transport.NewPeer(session.PeerMeta{Name: "dapp"})
	require.NoError(t, peer.Publish(ctx))
	proposed := propose(ctx, peer, chain(1))

	sess, client, err := svc.AwaitAndApprove(ctx)
	require.ErrorIs(t, err, walleterr.ErrChainMismatch)
	assert.Contains(t, err.Error(), "invalid chain id 1")
	assert.Nil(t, sess)
	assert.Nil(t, client)
	assert.Nil(t, svc.Current())

	res := <-proposed
	require.ErrorIs(t, res.err, loopback.ErrSessionRejected)
	assert.Nil(t, res.approval)
}

func TestAwaitAndApproveMissingChainIsMismatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	svc, transport, _ := newNegotiator(t, pairing.Config{})

	peer := transport.NewPeer(session.PeerMeta{Name: "dapp"})
	require.NoError(t, peer.Publish(ctx))
	proposed := propose(ctx, peer, nil)

	_, _, err := svc.AwaitAndApprove(ctx)
	require.ErrorIs(t, err, walleterr.ErrChainMismatch)

	res := <-proposed
	require.ErrorIs(t, res.err, loopback.ErrSessionRejected)
}

func TestAwaitAndApproveRefusesSecondSession(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	svc, transport, _ := newNegotiator(t, pairing.Config{})

	first := transport.NewPeer(session.PeerMeta{Name: "first"})
	require.NoError(t, first.Publish(ctx))
	proposed := propose(ctx, first, chain(123))

	sess, client, err := svc.AwaitAndApprove(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, (<-proposed).err)

	_, _, err = svc.AwaitAndApprove(ctx)
	require.ErrorIs(t, err, pairing.ErrSessionActive)

	sess.Close(nil)

	second := transport.NewPeer(session.PeerMeta{Name: "second"})
	require.NoError(t, second.Publish(ctx))
	proposed = propose(ctx, second, chain(123))

	next, nextClient, err := svc.AwaitAndApprove(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = nextClient.Close() })
	require.NoError(t, (<-proposed).err)

	assert.NotEqual(t, sess.ID, next.ID)
	assert.Equal(t, "second", next.PeerMeta.Name)
}

func TestAwaitAndApproveForwardsTransportErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	svc, transport, _ := newNegotiator(t, pairing.Config{})

	peer := transport.NewPeer(session.PeerMeta{Name: "dapp"})
	require.NoError(t, peer.PublishError(ctx, errors.New("relay unreachable")))

	_, _, err := svc.AwaitAndApprove(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay unreachable")

	// the negotiator keeps working after a failed event
	require.NoError(t, peer.Publish(ctx))
	proposed := propose(ctx, peer, chain(123))

	_, client, err := svc.AwaitAndApprove(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, (<-proposed).err)
}

func TestAwaitAndApproveForwardsProposalErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	svc, transport, _ := newNegotiator(t, pairing.Config{})

	peer := transport.NewPeer(session.PeerMeta{Name: "dapp"})
	require.NoError(t, peer.Publish(ctx))

	go func() {
		_ = peer.Fail(ctx, errors.New("handshake failed"))
	}()

	_, _, err := svc.AwaitAndApprove(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handshake failed")
	assert.Nil(t, svc.Current())
}

func TestAwaitAndApproveRejectsCallsBeforeApproval(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	svc, transport, _ := newNegotiator(t, pairing.Config{})

	peer := transport.NewPeer(session.PeerMeta{Name: "dapp"})
	require.NoError(t, peer.Publish(ctx))

	type negotiated struct {
		sess   *session.Session
		client session.Client
		err    error
	}
	done := make(chan negotiated, 1)
	go func() {
		sess, client, err := svc.AwaitAndApprove(ctx)
		done <- negotiated{sess: sess, client: client, err: err}
	}()

	response, err := peer.Call(ctx, "eth_accounts")
	require.NoError(t, err)
	require.True(t, response.Rejected())
	assert.Equal(t, "session not approved", response.Error.Message)
	assert.Equal(t, walleterr.CodeInvalidParams, response.Error.Code)

	approval, err := peer.Propose(ctx, chain(123))
	require.NoError(t, err)
	assert.Equal(t, int64(123), approval.ChainID)

	res := <-done
	require.NoError(t, res.err)
	t.Cleanup(func() { _ = res.client.Close() })
	assert.True(t, res.sess.Active())
}

func TestAwaitAndApprovePeerDisconnects(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	svc, transport, _ := newNegotiator(t, pairing.Config{})

	peer := transport.NewPeer(session.PeerMeta{Name: "dapp"})
	require.NoError(t, peer.Publish(ctx))

	go func() {
		_ = peer.Disconnect(ctx)
	}()

	_, _, err := svc.AwaitAndApprove(ctx)
	require.ErrorIs(t, err, pairing.ErrPeerDisconnected)
}

func TestAwaitAndApproveProposalTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	svc, transport, _ := newNegotiator(t, pairing.Config{ProposalTimeout: 50 * time.Millisecond})

	peer := transport.NewPeer(session.PeerMeta{Name: "dapp"})
	require.NoError(t, peer.Publish(ctx))

	_, _, err := svc.AwaitAndApprove(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAwaitAndApproveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())

	svc, _, _ := newNegotiator(t, pairing.Config{})

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	sess, _, err := svc.AwaitAndApprove(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, sess)
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	_, err := pairing.NewService(nil, loopback.New(1), nil, pairing.Config{})
	require.Error(t, err)

	account, err := keyholder.DeriveIdentity(test.WalletKeyHex, test.WalletChainID)
	require.NoError(t, err)

	_, err = pairing.NewService(account, nil, nil, pairing.Config{})
	require.Error(t, err)
}
