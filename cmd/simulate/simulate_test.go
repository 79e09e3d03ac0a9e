package simulate

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/pairwallet/internal/app"
	"github/chapool/pairwallet/internal/config"
	"github/chapool/pairwallet/internal/test"
	"github/chapool/pairwallet/internal/transport/loopback"
)

func TestSimulate(t *testing.T) {
	cfg := config.DefaultServiceConfigFromEnv()
	cfg.Wallet.PrivateKey = test.WalletKeyHex
	cfg.Wallet.ChainID = test.WalletChainID
	cfg.Wallet.RPCURLs = []string{"inproc"}
	cfg.Pairing.ReceiptPollInterval = 10 * time.Millisecond

	node := test.NewEthNode(t, test.WalletChainID)
	transport := loopback.New(8)

	a, cleanup, err := app.InitNewAppWithDialer(t.Context(), cfg, transport, node.Dial)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	var out bytes.Buffer
	require.NoError(t, simulate(t.Context(), &out, a, transport, "hello", true))

	assert.Contains(t, out.String(), "session approved")
	assert.Contains(t, out.String(), "eth_chainId: 0x7b")
	assert.Contains(t, out.String(), "(verified)")
	require.Len(t, node.Sent(), 1)
	assert.Contains(t, out.String(), node.Sent()[0].Hash().Hex())
}
