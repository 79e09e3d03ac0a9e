package address

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//nolint:dupword // well-known test mnemonic
const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestParseBIP44Path(t *testing.T) {
	indices, err := parseBIP44Path("m/44'/60'/0'/0/3")
	require.NoError(t, err)
	assert.Equal(t, []uint32{2147483692, 2147483708, 2147483648, 0, 3}, indices)

	_, err = parseBIP44Path("44'/60'")
	require.Error(t, err)

	_, err = parseBIP44Path("m/44'/x")
	require.Error(t, err)
}

func TestDeriveDefaultAccount(t *testing.T) {
	seed := SeedFromMnemonic(testMnemonic, "")

	key, err := DerivePrivateKey(seed, DefaultPath)
	require.NoError(t, err)

	assert.Equal(t, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", crypto.PubkeyToAddress(key.PublicKey).Hex())
}

func TestSeedIgnoresExtraWhitespace(t *testing.T) {
	assert.Equal(t,
		SeedFromMnemonic(testMnemonic, ""),
		SeedFromMnemonic("  "+testMnemonic+"\n", ""),
	)
}
