package session_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/pairwallet/internal/session"
)

func newSession() *session.Session {
	return session.New("peer", session.PeerMeta{Name: "dapp"}, []common.Address{common.HexToAddress("0x01")}, 123)
}

func TestLifecycle(t *testing.T) {
	sess := newSession()
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, session.StatusPending, sess.Status())

	require.True(t, sess.Activate())
	assert.True(t, sess.Active())
	assert.False(t, sess.Activate())

	select {
	case <-sess.Done():
		t.Fatal("done before close")
	default:
	}

	reason := errors.New("peer disconnected")
	require.True(t, sess.Close(reason))
	assert.False(t, sess.Close(errors.New("again")))
	assert.Equal(t, session.StatusClosed, sess.Status())
	assert.Equal(t, reason, sess.Err())

	<-sess.Done()
}

func TestRejectOnlyFromPending(t *testing.T) {
	sess := newSession()
	require.True(t, sess.Reject(errors.New("wrong chain")))
	assert.Equal(t, session.StatusRejected, sess.Status())
	assert.False(t, sess.Activate())
	assert.False(t, sess.Close(nil))

	active := newSession()
	require.True(t, active.Activate())
	assert.False(t, active.Reject(nil))
}

func TestCloseCleanly(t *testing.T) {
	sess := newSession()
	require.True(t, sess.Activate())
	require.True(t, sess.Close(nil))
	require.NoError(t, sess.Err())
}

func TestResponseFrame(t *testing.T) {
	assert.False(t, session.ResponseFrame{ID: 1, Result: "0x"}.Rejected())
	assert.True(t, session.ResponseFrame{ID: 1, Error: &session.ResponseError{Message: "no"}}.Rejected())
}
