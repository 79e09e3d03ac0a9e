package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/scrypt"
)

//nolint:varnamelen // iv is a common abbreviation for initialization vector
func encryptSecret(secret string, password string, params ScryptParams) (*KeystoreJSON, error) {
	//nolint:mnd // 32 is the standard salt size for scrypt
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "failed to generate salt")
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, errors.Wrap(err, "failed to generate IV")
	}

	derivedKey, err := scrypt.Key([]byte(password), salt, params.N, params.R, params.P, params.DKLen)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive key")
	}

	ciphertext, err := aes128CTR(derivedKey[:16], iv, []byte(secret))
	if err != nil {
		return nil, err
	}

	keystore := &KeystoreJSON{
		Version: version,
		ID:      uuid.New().String(),
	}
	keystore.Crypto.Ciphertext = hex.EncodeToString(ciphertext)
	keystore.Crypto.CipherParams.IV = hex.EncodeToString(iv)
	keystore.Crypto.Cipher = cipherName
	keystore.Crypto.KDF = kdfName
	keystore.Crypto.KDFParams.DKLen = params.DKLen
	keystore.Crypto.KDFParams.Salt = hex.EncodeToString(salt)
	keystore.Crypto.KDFParams.N = params.N
	keystore.Crypto.KDFParams.R = params.R
	keystore.Crypto.KDFParams.P = params.P
	keystore.Crypto.MAC = hex.EncodeToString(mac(derivedKey[16:32], ciphertext))

	return keystore, nil
}

//nolint:varnamelen // iv is a common abbreviation for initialization vector
func decryptSecret(keystore *KeystoreJSON, password string) (string, error) {
	params := keystore.Crypto.KDFParams
	if params.DKLen < 32 { //nolint:mnd // AES-128 key plus MAC key
		return "", errors.Errorf("derived key length %d too short", params.DKLen)
	}

	salt, err := hex.DecodeString(params.Salt)
	if err != nil {
		return "", errors.Wrap(err, "failed to decode salt")
	}
	iv, err := hex.DecodeString(keystore.Crypto.CipherParams.IV)
	if err != nil {
		return "", errors.Wrap(err, "failed to decode IV")
	}
	ciphertext, err := hex.DecodeString(keystore.Crypto.Ciphertext)
	if err != nil {
		return "", errors.Wrap(err, "failed to decode ciphertext")
	}
	expectedMAC, err := hex.DecodeString(keystore.Crypto.MAC)
	if err != nil {
		return "", errors.Wrap(err, "failed to decode MAC")
	}

	derivedKey, err := scrypt.Key([]byte(password), salt, params.N, params.R, params.P, params.DKLen)
	if err != nil {
		return "", errors.Wrap(err, "failed to derive key")
	}

	if subtle.ConstantTimeCompare(mac(derivedKey[16:32], ciphertext), expectedMAC) != 1 {
		return "", ErrInvalidPassword
	}

	plaintext, err := aes128CTR(derivedKey[:16], iv, ciphertext)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// aes128CTR encrypts and decrypts alike.
//
//nolint:varnamelen // iv is a common abbreviation for initialization vector
func aes128CTR(key []byte, iv []byte, in []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cipher")
	}
	if len(iv) != aes.BlockSize {
		return nil, errors.Errorf("invalid IV length %d", len(iv))
	}

	out := make([]byte, len(in))
	cipher.NewCTR(block, iv).XORKeyStream(out, in)

	return out, nil
}

// mac is keccak256(derivedKey[16:32] || ciphertext) as in keystore v3.
func mac(key []byte, ciphertext []byte) []byte {
	return crypto.Keccak256(key, ciphertext)
}
