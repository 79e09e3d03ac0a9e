package identity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github/chapool/pairwallet/internal/config"
	"github/chapool/pairwallet/internal/util"
	"github/chapool/pairwallet/internal/util/command"
	"github/chapool/pairwallet/internal/wallet/keyholder"
	"github/chapool/pairwallet/internal/wallet/keystore"
)

const (
	jsonFlag         = "json"
	saveKeystoreFlag = "save-keystore"
)

type output struct {
	Address  string `json:"address"`
	ChainID  int64  `json:"chainId"`
	Keystore string `json:"keystore,omitempty"`
}

// New prints the identity derived from the configured secret.
func New() *cobra.Command {
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Prints the wallet address",
		Long: `Derives the wallet identity from WALLET_PRIVATE_KEY (hex key or mnemonic)
or WALLET_KEYSTORE_FILE and prints its address. Without a secret a fresh identity is generated.
With --save-keystore the secret is written to an encrypted keystore file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := command.LoadConfig(cmd.Context(), v)
			if err != nil {
				return err
			}

			path, _ := cmd.Flags().GetString(saveKeystoreFlag)
			if path != "" && cfg.Wallet.PrivateKey == "" {
				// keep the generated key, it is about to be saved
				key, err := crypto.GenerateKey()
				if err != nil {
					return errors.Wrap(err, "failed to generate private key")
				}
				cfg.Wallet.PrivateKey = hexutil.Encode(crypto.FromECDSA(key))
			}

			account, err := keyholder.DeriveIdentity(cfg.Wallet.PrivateKey, cfg.Wallet.ChainID)
			if err != nil {
				return errors.Wrap(err, "failed to derive identity")
			}
			identity := account.Identity()

			res := output{Address: identity.Address.Hex(), ChainID: identity.ChainID}
			if path != "" {
				if err := saveKeystore(cmd.Context(), path, cfg.Wallet, identity.Address.Hex()); err != nil {
					return err
				}
				res.Keystore = path
			}

			asJSON, _ := cmd.Flags().GetBool(jsonFlag)
			if !asJSON {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (chain %d)\n", res.Address, res.ChainID)
				if res.Keystore != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "keystore written to %s\n", res.Keystore)
				}
				return nil
			}

			out, err := json.Marshal(res)
			if err != nil {
				return errors.Wrap(err, "failed to marshal identity")
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			return nil
		},
	}

	command.BindWalletFlags(cmd, v)
	cmd.Flags().Bool(jsonFlag, false, "Print as JSON")
	cmd.Flags().String(saveKeystoreFlag, "", "Write the secret to this encrypted keystore file")

	return cmd
}

func saveKeystore(ctx context.Context, path string, w config.Wallet, address string) error {
	ks, err := keystore.NewService(keystore.DefaultScryptParams())
	if err != nil {
		return errors.Wrap(err, "failed to create keystore service")
	}

	password := w.KeystorePassword
	if password == "" {
		password, err = util.PromptSecret("New keystore password: ")
		if err != nil {
			return errors.Wrap(err, "failed to read keystore password")
		}
	}

	file, err := ks.Encrypt(ctx, w.PrivateKey, address, password)
	if err != nil {
		return err
	}

	return ks.Save(ctx, path, file)
}
