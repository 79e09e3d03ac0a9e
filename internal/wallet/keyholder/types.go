package keyholder

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Identity is the signing identity exposed to peers. Immutable after construction.
type Identity struct {
	Address common.Address
	ChainID int64
}

// TransactionIntent describes a transaction requested by a peer.
// Nil fields were absent from the request and are filled from the node.
type TransactionIntent struct {
	From                 common.Address
	To                   *common.Address
	Data                 []byte
	Value                *big.Int
	GasLimit             *uint64
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Nonce                *uint64
	ChainID              int64
}

// Service holds one identity and signs or sends on its behalf. It never retries.
type Service interface {
	// Identity returns the held identity
	Identity() Identity

	// SignMessage signs msg as an EIP-191 personal message
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)

	// SignTransaction signs intent without broadcasting it and returns the encoded transaction
	SignTransaction(ctx context.Context, intent *TransactionIntent) ([]byte, error)

	// SendTransaction signs and broadcasts intent, then waits for one confirmation
	SendTransaction(ctx context.Context, intent *TransactionIntent) (common.Hash, error)

	// RelayRequest forwards a raw JSON-RPC call to the node
	RelayRequest(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error)
}

// Backend is the node access the key holder needs; *rpcclient.RPCClient implements it.
type Backend interface {
	PendingNonceAt(ctx context.Context, address common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

// Config controls confirmation waiting.
type Config struct {
	ConfirmationTimeout time.Duration
	ReceiptPollInterval time.Duration
}

const (
	defaultConfirmationTimeout = 2 * time.Minute
	defaultReceiptPollInterval = 3 * time.Second
)

func (c Config) normalize() Config {
	if c.ConfirmationTimeout <= 0 {
		c.ConfirmationTimeout = defaultConfirmationTimeout
	}
	if c.ReceiptPollInterval <= 0 {
		c.ReceiptPollInterval = defaultReceiptPollInterval
	}
	return c
}
