package keystore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github/chapool/pairwallet/internal/util"
)

var ErrInvalidPassword = errors.New("invalid password: MAC mismatch")

// Service stores the wallet secret encrypted on disk
type Service interface {
	// Encrypt encrypts secret with password. address is recorded in the file for reference only.
	Encrypt(ctx context.Context, secret string, address string, password string) (*KeystoreJSON, error)

	// Decrypt returns the secret stored in keystore
	Decrypt(ctx context.Context, keystore *KeystoreJSON, password string) (string, error)

	// Load reads a keystore file
	Load(ctx context.Context, path string) (*KeystoreJSON, error)

	// Save writes keystore to path, readable by the owner only. Existing files are not overwritten.
	Save(ctx context.Context, path string, keystore *KeystoreJSON) error
}

type service struct {
	params ScryptParams
}

// NewService creates a keystore service encrypting with params
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(params ScryptParams) (Service, error) {
	if params.DKLen < 32 { //nolint:mnd // AES-128 key plus MAC key
		return nil, errors.Errorf("derived key length %d too short", params.DKLen)
	}
	if params.N <= 1 || params.R <= 0 || params.P <= 0 {
		return nil, errors.New("invalid scrypt parameters")
	}

	return &service{params: params}, nil
}

func (s *service) Encrypt(ctx context.Context, secret string, address string, password string) (*KeystoreJSON, error) {
	log := util.LogFromContext(ctx)

	if secret == "" {
		return nil, errors.New("secret must not be empty")
	}

	keystore, err := encryptSecret(secret, password, s.params)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encrypt wallet secret")
		return nil, errors.Wrap(err, "failed to encrypt wallet secret")
	}
	keystore.Address = address

	return keystore, nil
}

func (s *service) Decrypt(ctx context.Context, keystore *KeystoreJSON, password string) (string, error) {
	log := util.LogFromContext(ctx)

	if keystore.Version != version || keystore.Crypto.Cipher != cipherName || keystore.Crypto.KDF != kdfName {
		return "", errors.Errorf("unsupported keystore (version %d, cipher %q, kdf %q)",
			keystore.Version, keystore.Crypto.Cipher, keystore.Crypto.KDF)
	}

	secret, err := decryptSecret(keystore, password)
	if err != nil {
		log.Error().Err(err).Str("keystore_id", keystore.ID).Msg("Failed to decrypt wallet secret")
		return "", errors.Wrap(err, "failed to decrypt wallet secret")
	}

	return secret, nil
}

func (s *service) Load(_ context.Context, path string) (*KeystoreJSON, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read keystore")
	}

	var keystore KeystoreJSON
	if err := json.Unmarshal(data, &keystore); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal keystore JSON")
	}

	return &keystore, nil
}

func (s *service) Save(ctx context.Context, path string, keystore *KeystoreJSON) error {
	data, err := json.MarshalIndent(keystore, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal keystore JSON")
	}

	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:mnd // owner read/write
	if err != nil {
		return errors.Wrap(err, "failed to create keystore file")
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "failed to write keystore")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "failed to close keystore file")
	}

	util.LogFromContext(ctx).Info().Str("path", path).Str("keystore_id", keystore.ID).Msg("Keystore written")

	return nil
}
