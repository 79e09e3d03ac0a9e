package command_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/pairwallet/internal/app"
	"github/chapool/pairwallet/internal/config"
	"github/chapool/pairwallet/internal/test"
	"github/chapool/pairwallet/internal/transport/loopback"
	"github/chapool/pairwallet/internal/util/command"
	"github/chapool/pairwallet/internal/wallet/keystore"
)

func TestWithApp(t *testing.T) {
	ctx := t.Context()

	var testError = errors.New("test error")

	cfg := config.DefaultServiceConfigFromEnv()
	cfg.Wallet.PrivateKey = test.WalletKeyHex
	cfg.Wallet.ChainID = test.WalletChainID
	cfg.Logger.PrettyPrintConsole = false

	resultErr := command.WithApp(ctx, cfg, loopback.New(1), func(_ context.Context, a *app.App) error {
		require.True(t, a.Ready())
		assert.Equal(t, test.WalletAddress, a.KeyHolder.Identity().Address)

		return testError
	})

	assert.Equal(t, testError, resultErr)
}

func TestWithAppInvalidConfig(t *testing.T) {
	cfg := config.DefaultServiceConfigFromEnv()
	cfg.Wallet.ChainID = 0

	called := false
	err := command.WithApp(t.Context(), cfg, loopback.New(1), func(_ context.Context, _ *app.App) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.False(t, called)
}

func TestNewSubcommandGroup(t *testing.T) {
	cmd := command.NewSubcommandGroup("probe")
	assert.Equal(t, "probe", cmd.Use)

	cmd.SetArgs([]string{})
	cmd.SetOut(io.Discard)
	require.NoError(t, cmd.Execute())
}

func TestLoadConfigUnlocksKeystore(t *testing.T) {
	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "wallet.json")

	ks, err := keystore.NewService(keystore.ScryptParams{DKLen: 32, N: 1 << 4, R: 8, P: 1})
	require.NoError(t, err)
	file, err := ks.Encrypt(ctx, test.WalletKeyHex, test.WalletAddress.Hex(), "pw")
	require.NoError(t, err)
	require.NoError(t, ks.Save(ctx, path, file))

	v := config.NewViper()
	v.Set("wallet.private_key", "")
	v.Set("wallet.prompt_key", false)
	v.Set("wallet.keystore_file", path)
	v.Set("wallet.keystore_password", "pw")

	cfg, err := command.LoadConfig(ctx, v)
	require.NoError(t, err)
	assert.Equal(t, test.WalletKeyHex, cfg.Wallet.PrivateKey)

	v.Set("wallet.keystore_password", "wrong")
	_, err = command.LoadConfig(ctx, v)
	require.ErrorIs(t, err, keystore.ErrInvalidPassword)
}
