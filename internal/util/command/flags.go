package command

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github/chapool/pairwallet/internal/config"
	"github/chapool/pairwallet/internal/util"
	"github/chapool/pairwallet/internal/wallet/keystore"
)

const (
	chainIDFlag   = "chain-id"
	rpcURLFlag    = "rpc-url"
	promptKeyFlag = "prompt-key"
	keystoreFlag  = "keystore"
)

// BindWalletFlags registers the identity flags on cmd and binds them onto v.
func BindWalletFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().Int64(chainIDFlag, config.DefaultChainID, "Chain id sessions are approved for")
	cmd.Flags().String(rpcURLFlag, config.DefaultRPCURL, "Comma separated JSON-RPC node urls")
	cmd.Flags().Bool(promptKeyFlag, false, "Read the private key or mnemonic from the terminal")
	cmd.Flags().String(keystoreFlag, "", "Encrypted keystore file holding the private key or mnemonic")

	_ = v.BindPFlag("wallet.chain_id", cmd.Flags().Lookup(chainIDFlag))
	_ = v.BindPFlag("wallet.rpc_url", cmd.Flags().Lookup(rpcURLFlag))
	_ = v.BindPFlag("wallet.prompt_key", cmd.Flags().Lookup(promptKeyFlag))
	_ = v.BindPFlag("wallet.keystore_file", cmd.Flags().Lookup(keystoreFlag))
}

// LoadConfig builds the config from v, prompting for the secret when requested.
// A configured keystore is unlocked unless a plain secret is set.
func LoadConfig(ctx context.Context, v *viper.Viper) (config.Server, error) {
	cfg := config.ServiceConfigFromViper(v)

	if cfg.Wallet.PromptKey {
		secret, err := util.PromptSecret("Private key or mnemonic (empty generates one): ")
		if err != nil {
			return cfg, errors.Wrap(err, "failed to read wallet secret")
		}
		cfg.Wallet.PrivateKey = secret
	}

	if cfg.Wallet.PrivateKey == "" && cfg.Wallet.KeystoreFile != "" {
		secret, err := UnlockKeystore(ctx, cfg.Wallet)
		if err != nil {
			return cfg, err
		}
		cfg.Wallet.PrivateKey = secret
	}

	return cfg, nil
}

// UnlockKeystore decrypts the keystore file of w. Without a configured password it is read from the terminal.
func UnlockKeystore(ctx context.Context, w config.Wallet) (string, error) {
	ks, err := keystore.NewService(keystore.DefaultScryptParams())
	if err != nil {
		return "", errors.Wrap(err, "failed to create keystore service")
	}

	file, err := ks.Load(ctx, w.KeystoreFile)
	if err != nil {
		return "", err
	}

	password := w.KeystorePassword
	if password == "" {
		password, err = util.PromptSecret("Keystore password: ")
		if err != nil {
			return "", errors.Wrap(err, "failed to read keystore password")
		}
	}

	secret, err := ks.Decrypt(ctx, file, password)
	if err != nil {
		return "", errors.Wrapf(err, "failed to unlock keystore %s", w.KeystoreFile)
	}

	return secret, nil
}
