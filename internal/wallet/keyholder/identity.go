package keyholder

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github/chapool/pairwallet/internal/wallet/address"
	"github/chapool/pairwallet/internal/wallet/signer"
)

// Account is a derived identity together with its signing key.
type Account struct {
	identity Identity
	signer   signer.Signer
}

// DeriveIdentity restores the identity for secret, or generates a fresh one when secret is empty.
// secret is either a hex private key or a BIP39 mnemonic (first account of m/44'/60'/0'/0).
func DeriveIdentity(secret string, chainID int64) (*Account, error) {
	if chainID <= 0 {
		return nil, errors.Errorf("invalid chain id %d", chainID)
	}

	key, err := privateKeyFromSecret(strings.TrimSpace(secret))
	if err != nil {
		return nil, err
	}

	s, err := signer.New(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create signer")
	}

	return &Account{
		identity: Identity{Address: s.Address(), ChainID: chainID},
		signer:   s,
	}, nil
}

func (a *Account) Identity() Identity {
	return a.identity
}

func privateKeyFromSecret(secret string) (*ecdsa.PrivateKey, error) {
	switch {
	case secret == "":
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, errors.Wrap(err, "failed to generate private key")
		}
		return key, nil

	case len(strings.Fields(secret)) > 1:
		seed := address.SeedFromMnemonic(secret, "")
		defer func() {
			for i := range seed {
				seed[i] = 0
			}
		}()

		key, err := address.DerivePrivateKey(seed, address.DefaultPath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to derive private key from mnemonic")
		}
		return key, nil

	default:
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimPrefix(secret, "0x"), "0X"))
		if err != nil {
			return nil, errors.Wrap(err, "invalid private key")
		}
		return key, nil
	}
}
