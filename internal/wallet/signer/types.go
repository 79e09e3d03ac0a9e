package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Signer signs with a single secp256k1 key
type Signer interface {
	// Address returns the address of the signing key
	Address() common.Address

	// SignMessage signs msg as an EIP-191 personal message, V in {27, 28}
	SignMessage(msg []byte) ([]byte, error)

	// SignTransaction signs tx for chainID
	SignTransaction(tx *types.Transaction, chainID *big.Int) (*SignedTransaction, error)
}

// SignedTransaction represents a signed EVM transaction
type SignedTransaction struct {
	Transaction    *types.Transaction
	RawTransaction []byte // RLP / typed envelope encoding
	TxHash         common.Hash
}
