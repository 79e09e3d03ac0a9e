package rpcclient

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Dialer opens an RPC connection to url.
type Dialer func(ctx context.Context, url string) (*rpc.Client, error)

// RPCClient wraps one or more JSON-RPC endpoints with failover.
// Calls are never retried on another endpoint once they reached a node.
type RPCClient struct {
	urls    []string
	dial    Dialer
	clients []*rpc.Client
	mu      sync.RWMutex
	current int
}

// NewRPCClient creates a client for urls. Unreachable urls are dialed again on use.
func NewRPCClient(ctx context.Context, urls []string) (*RPCClient, error) {
	return NewRPCClientWithDialer(ctx, urls, rpc.DialContext)
}

// NewRPCClientWithDialer is NewRPCClient with a custom dialer.
func NewRPCClientWithDialer(ctx context.Context, urls []string, dial Dialer) (*RPCClient, error) {
	if len(urls) == 0 {
		return nil, errors.New("at least one RPC URL is required")
	}

	clients := make([]*rpc.Client, len(urls))
	connected := false
	for i, url := range urls {
		client, err := dial(ctx, url)
		if err != nil {
			log.Warn().
				Str("url", url).
				Err(err).
				Msg("Failed to connect to RPC node, will retry on use")
			continue
		}
		clients[i] = client
		connected = true
	}

	if !connected {
		return nil, errors.New("failed to connect to any RPC node")
	}

	return &RPCClient{
		urls:    urls,
		dial:    dial,
		clients: clients,
	}, nil
}

// Close closes all client connections
func (c *RPCClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, client := range c.clients {
		if client != nil {
			client.Close()
			c.clients[i] = nil
		}
	}
}

// ChainID returns the chain id reported by the node
func (c *RPCClient) ChainID(ctx context.Context) (*big.Int, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get chain ID")
	}

	return chainID, nil
}

// PendingNonceAt returns the pending nonce for the given address.
func (c *RPCClient) PendingNonceAt(ctx context.Context, address common.Address) (uint64, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return 0, err
	}

	nonce, err := client.PendingNonceAt(ctx, address)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get pending nonce")
	}

	return nonce, nil
}

// EstimateGas estimates the gas needed for msg
func (c *RPCClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return 0, err
	}

	gas, err := client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, errors.Wrap(err, "failed to estimate gas")
	}

	return gas, nil
}

// SuggestGasTipCap suggests a priority fee (EIP-1559)
func (c *RPCClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to suggest gas tip cap")
	}

	return tipCap, nil
}

// SuggestGasPrice suggests a legacy gas price
func (c *RPCClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	price, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to suggest gas price")
	}

	return price, nil
}

// HeaderByNumber returns a block header; nil number is the latest block
func (c *RPCClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	header, err := client.HeaderByNumber(ctx, number)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get header")
	}

	return header, nil
}

// SendTransaction broadcasts a signed transaction
func (c *RPCClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	client, err := c.getClient(ctx)
	if err != nil {
		return err
	}

	if err := client.SendTransaction(ctx, tx); err != nil {
		return errors.Wrap(err, "failed to send transaction")
	}

	return nil
}

// TransactionReceipt returns the receipt of a mined transaction, ethereum.NotFound otherwise
func (c *RPCClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	receipt, err := client.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction receipt")
	}

	return receipt, nil
}

// CallContext performs a raw JSON-RPC call
func (c *RPCClient) CallContext(ctx context.Context, result any, method string, args ...any) error {
	client, err := c.getClient(ctx)
	if err != nil {
		return err
	}

	if err := client.Client().CallContext(ctx, result, method, args...); err != nil {
		return errors.Wrapf(err, "failed to call %s", method)
	}

	return nil
}

// getClient returns a healthy client, starting at the current index and reconnecting as needed
func (c *RPCClient) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.mu.RLock()
	start := c.current
	size := len(c.clients)
	c.mu.RUnlock()

	for i := 0; i < size; i++ {
		idx := (start + i) % size

		client, err := c.clientAt(ctx, idx)
		if err != nil {
			log.Warn().
				Str("url", c.urls[idx]).
				Err(err).
				Msg("RPC client unavailable, trying next")
			continue
		}

		// Simple health check: ask for the chain id
		ec := ethclient.NewClient(client)
		if _, err := ec.ChainID(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrap(ctx.Err(), "failed to get RPC client")
			}
			log.Warn().
				Str("url", c.urls[idx]).
				Err(err).
				Msg("RPC client health check failed, will try to reconnect")
			c.reset(idx, client)
			continue
		}

		c.mu.Lock()
		c.current = idx
		c.mu.Unlock()

		return ec, nil
	}

	return nil, errors.New("all RPC clients are unavailable")
}

func (c *RPCClient) clientAt(ctx context.Context, idx int) (*rpc.Client, error) {
	c.mu.RLock()
	client := c.clients[idx]
	c.mu.RUnlock()
	if client != nil {
		return client, nil
	}

	client, err := c.dial(ctx, c.urls[idx])
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial RPC node")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing := c.clients[idx]; existing != nil {
		client.Close()
		return existing, nil
	}
	c.clients[idx] = client

	return client, nil
}

func (c *RPCClient) reset(idx int, client *rpc.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.clients[idx] == client {
		client.Close()
		c.clients[idx] = nil
	}
}
