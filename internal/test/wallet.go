package test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github/chapool/pairwallet/internal/wallet/keyholder"
	"github/chapool/pairwallet/internal/wallet/rpcclient"
)

const (
	WalletKeyHex  = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	WalletChainID = 123
)

// WalletAddress is the address of WalletKeyHex.
var WalletAddress = common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")

// NewWallet returns a key holder for WalletKeyHex backed by a fresh in-process node.
//
//nolint:ireturn
func NewWallet(t *testing.T, cfg keyholder.Config) (keyholder.Service, *EthNode) {
	t.Helper()

	node := NewEthNode(t, WalletChainID)
	client, err := rpcclient.NewRPCClientWithDialer(t.Context(), []string{"inproc"}, node.Dial)
	if err != nil {
		t.Fatalf("failed to connect to node: %v", err)
	}
	t.Cleanup(client.Close)

	account, err := keyholder.DeriveIdentity(WalletKeyHex, WalletChainID)
	if err != nil {
		t.Fatalf("failed to derive identity: %v", err)
	}

	holder, err := keyholder.NewService(account, client, cfg)
	if err != nil {
		t.Fatalf("failed to create key holder: %v", err)
	}

	return holder, node
}
