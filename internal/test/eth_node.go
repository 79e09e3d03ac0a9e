package test

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

// EthNode is an in-process JSON-RPC node exposing the subset of the eth namespace
// the wallet uses. Transactions are mined as soon as MineReceipts is true.
type EthNode struct {
	server *rpc.Server

	mu           sync.Mutex
	chainID      *big.Int
	nonces       map[common.Address]uint64
	baseFee      *big.Int
	sendErr      error
	sent         []*types.Transaction
	receipts     map[common.Hash]*types.Receipt
	mineReceipts bool
	revert       bool
	calls        map[string]int
}

// NewEthNode starts an in-process node for chainID; it is stopped on test cleanup.
func NewEthNode(t *testing.T, chainID int64) *EthNode {
	t.Helper()

	node := &EthNode{
		server:       rpc.NewServer(),
		chainID:      big.NewInt(chainID),
		nonces:       make(map[common.Address]uint64),
		baseFee:      big.NewInt(1_000_000_000),
		receipts:     make(map[common.Hash]*types.Receipt),
		mineReceipts: true,
		calls:        make(map[string]int),
	}

	if err := node.server.RegisterName("eth", &ethAPI{node: node}); err != nil {
		t.Fatalf("failed to register eth api: %v", err)
	}
	t.Cleanup(node.server.Stop)

	return node
}

// Dial connects an in-process client; the signature matches rpcclient.Dialer.
func (n *EthNode) Dial(_ context.Context, _ string) (*rpc.Client, error) {
	return rpc.DialInProc(n.server), nil
}

// FailSends makes eth_sendRawTransaction fail with err.
func (n *EthNode) FailSends(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sendErr = err
}

// HoldReceipts stops receipts from appearing for newly sent transactions.
func (n *EthNode) HoldReceipts() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mineReceipts = false
}

// RevertTransactions makes newly sent transactions fail on chain.
func (n *EthNode) RevertTransactions() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.revert = true
}

// DisableBaseFee simulates a pre-London chain.
func (n *EthNode) DisableBaseFee() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.baseFee = nil
}

// Sent returns the transactions accepted so far.
func (n *EthNode) Sent() []*types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*types.Transaction, len(n.sent))
	copy(out, n.sent)
	return out
}

// Calls returns how often method (e.g. "sendRawTransaction") was called.
func (n *EthNode) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *EthNode) count(method string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[method]++
}

type ethAPI struct {
	node *EthNode
}

func (api *ethAPI) ChainId() *hexutil.Big { //nolint:revive,stylecheck // eth_chainId
	api.node.count("chainId")
	return (*hexutil.Big)(api.node.chainID)
}

func (api *ethAPI) GetTransactionCount(addr common.Address, _ string) hexutil.Uint64 {
	api.node.count("getTransactionCount")
	api.node.mu.Lock()
	defer api.node.mu.Unlock()
	return hexutil.Uint64(api.node.nonces[addr])
}

func (api *ethAPI) EstimateGas(_ map[string]any) hexutil.Uint64 {
	api.node.count("estimateGas")
	return hexutil.Uint64(21000)
}

func (api *ethAPI) MaxPriorityFeePerGas() *hexutil.Big {
	api.node.count("maxPriorityFeePerGas")
	return (*hexutil.Big)(big.NewInt(1_000_000_000))
}

func (api *ethAPI) GasPrice() *hexutil.Big {
	api.node.count("gasPrice")
	return (*hexutil.Big)(big.NewInt(2_000_000_000))
}

func (api *ethAPI) GetBlockByNumber(_ string, _ bool) *types.Header {
	api.node.count("getBlockByNumber")
	api.node.mu.Lock()
	defer api.node.mu.Unlock()

	header := &types.Header{
		Number:     big.NewInt(1),
		Difficulty: big.NewInt(0),
		GasLimit:   30_000_000,
	}
	if api.node.baseFee != nil {
		header.BaseFee = new(big.Int).Set(api.node.baseFee)
	}
	return header
}

func (api *ethAPI) SendRawTransaction(raw hexutil.Bytes) (common.Hash, error) {
	api.node.count("sendRawTransaction")
	api.node.mu.Lock()
	defer api.node.mu.Unlock()

	if api.node.sendErr != nil {
		return common.Hash{}, api.node.sendErr
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, errors.Wrap(err, "invalid raw transaction")
	}

	sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "invalid sender")
	}
	api.node.nonces[sender] = tx.Nonce() + 1
	api.node.sent = append(api.node.sent, tx)

	if api.node.mineReceipts {
		status := types.ReceiptStatusSuccessful
		if api.node.revert {
			status = types.ReceiptStatusFailed
		}
		api.node.receipts[tx.Hash()] = &types.Receipt{
			Type:              tx.Type(),
			Status:            status,
			CumulativeGasUsed: tx.Gas(),
			Logs:              []*types.Log{},
			TxHash:            tx.Hash(),
			GasUsed:           tx.Gas(),
			BlockNumber:       big.NewInt(2),
		}
	}

	return tx.Hash(), nil
}

func (api *ethAPI) GetTransactionReceipt(hash common.Hash) *types.Receipt {
	api.node.count("getTransactionReceipt")
	api.node.mu.Lock()
	defer api.node.mu.Unlock()
	return api.node.receipts[hash]
}
