package signer

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const (
	signatureLength = 65
	recoveryIDIndex = 64
	legacyVOffset   = 27
)

type evmSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// New creates a Signer for key
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func New(key *ecdsa.PrivateKey) (Signer, error) {
	if key == nil {
		return nil, errors.New("private key is required")
	}

	publicKeyECDSA, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("failed to cast public key to ECDSA")
	}

	return &evmSigner{
		key:     key,
		address: crypto.PubkeyToAddress(*publicKeyECDSA),
	}, nil
}

func (s *evmSigner) Address() common.Address {
	return s.address
}

// SignMessage signs an EIP-191 personal message
func (s *evmSigner) SignMessage(msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), s.key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign message")
	}

	sig[recoveryIDIndex] += legacyVOffset

	return sig, nil
}

// SignTransaction signs a transaction with the latest signer for chainID
func (s *evmSigner) SignTransaction(tx *types.Transaction, chainID *big.Int) (*SignedTransaction, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("chain id is required")
	}

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction")
	}

	// Encode transaction to its network representation
	txBytes, err := signedTx.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal transaction")
	}

	return &SignedTransaction{
		Transaction:    signedTx,
		RawTransaction: txBytes,
		TxHash:         signedTx.Hash(),
	}, nil
}

// RecoverMessageSigner returns the address that produced sig over msg
func RecoverMessageSigner(msg []byte, sig []byte) (common.Address, error) {
	if len(sig) != signatureLength {
		return common.Address{}, errors.Errorf("invalid signature length %d", len(sig))
	}

	normalized := make([]byte, signatureLength)
	copy(normalized, sig)
	if normalized[recoveryIDIndex] >= legacyVOffset {
		normalized[recoveryIDIndex] -= legacyVOffset
	}

	pub, err := crypto.SigToPub(accounts.TextHash(msg), normalized)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed to recover public key")
	}

	return crypto.PubkeyToAddress(*pub), nil
}
