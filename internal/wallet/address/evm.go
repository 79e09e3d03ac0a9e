package address

import (
	"crypto/ecdsa"
	"crypto/sha512"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip32"
	"golang.org/x/crypto/pbkdf2"
)

// DefaultPath is the first account of the standard EVM derivation path
const DefaultPath = "m/44'/60'/0'/0/0"

const hardenedOffset = 0x80000000

// SeedFromMnemonic converts a mnemonic to a seed using PBKDF2 (BIP39)
// seed = PBKDF2(mnemonic, "mnemonic" + password, 2048, 64, SHA512)
func SeedFromMnemonic(mnemonic string, password string) []byte {
	const (
		pbkdf2Iterations = 2048 // BIP39 standard iterations
		pbkdf2KeyLength  = 64   // BIP39 standard key length (512 bits)
	)

	normalized := strings.Join(strings.Fields(mnemonic), " ")

	return pbkdf2.Key(
		[]byte(normalized),
		[]byte("mnemonic"+password),
		pbkdf2Iterations,
		pbkdf2KeyLength,
		sha512.New,
	)
}

// DerivePrivateKey derives an ECDSA private key from seed and BIP44 path
func DerivePrivateKey(seed []byte, path string) (*ecdsa.PrivateKey, error) {
	// Create master key from seed
	masterKey, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create master key")
	}

	derivedKey, err := deriveKeyFromPath(masterKey, path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive key from path")
	}

	privateKey, err := crypto.ToECDSA(derivedKey.Key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert to ECDSA private key")
	}

	return privateKey, nil
}

// deriveKeyFromPath derives a key from BIP44 path
// Path format: m/44'/60'/0'/0/{index}
func deriveKeyFromPath(masterKey *bip32.Key, path string) (*bip32.Key, error) {
	indices, err := parseBIP44Path(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse BIP44 path")
	}

	// Derive key step by step
	key := masterKey
	for _, index := range indices {
		key, err = key.NewChildKey(index)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to derive child key at index %d", index)
		}
	}

	return key, nil
}

// parseBIP44Path parses a BIP44 path string into indices
// Example: "m/44'/60'/0'/0/0" -> [2147483692, 2147483708, 2147483648, 0, 0]
func parseBIP44Path(path string) ([]uint32, error) {
	if !strings.HasPrefix(path, "m") {
		return nil, fmt.Errorf("invalid BIP44 path: %s", path)
	}

	parts := strings.FieldsFunc(strings.TrimPrefix(path, "m"), func(r rune) bool { return r == '/' })

	indices := make([]uint32, 0, len(parts))
	for _, part := range parts {
		hardened := strings.HasSuffix(part, "'")
		part = strings.TrimSuffix(part, "'")

		parsed, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid path segment: %s", part)
		}
		if parsed >= hardenedOffset {
			return nil, fmt.Errorf("path segment out of range: %s", part)
		}
		index := uint32(parsed)

		if hardened {
			index += hardenedOffset
		}

		indices = append(indices, index)
	}

	return indices, nil
}
