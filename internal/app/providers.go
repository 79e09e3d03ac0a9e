package app

import (
	"context"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github/chapool/pairwallet/internal/config"
	"github/chapool/pairwallet/internal/metrics"
	"github/chapool/pairwallet/internal/pairing"
	"github/chapool/pairwallet/internal/session"
	"github/chapool/pairwallet/internal/transport/bridge"
	"github/chapool/pairwallet/internal/wallet/keyholder"
	"github/chapool/pairwallet/internal/wallet/rpcclient"
)

func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func NewMetrics(reg *prometheus.Registry) *metrics.Service {
	return metrics.New(reg)
}

// NewDialer returns the dialer used for the configured RPC urls.
func NewDialer() rpcclient.Dialer {
	return rpc.DialContext
}

func NewRPCClient(ctx context.Context, cfg config.Server, dial rpcclient.Dialer) (*rpcclient.RPCClient, func(), error) {
	client, err := rpcclient.NewRPCClientWithDialer(ctx, cfg.Wallet.RPCURLs, dial)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create RPC client")
	}

	return client, client.Close, nil
}

func NewAccount(cfg config.Server) (*keyholder.Account, error) {
	account, err := keyholder.DeriveIdentity(cfg.Wallet.PrivateKey, cfg.Wallet.ChainID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive wallet identity")
	}
	return account, nil
}

//nolint:ireturn
func NewKeyHolder(account *keyholder.Account, client *rpcclient.RPCClient, cfg config.Server) (keyholder.Service, error) {
	return keyholder.NewService(account, client, keyholder.Config{
		ConfirmationTimeout: cfg.Pairing.ConfirmationTimeout,
		ReceiptPollInterval: cfg.Pairing.ReceiptPollInterval,
	})
}

//nolint:ireturn
func NewNegotiator(holder keyholder.Service, transport session.Transport, m *metrics.Service, cfg config.Server) (pairing.Service, error) {
	return pairing.NewService(holder, transport, m, pairing.Config{
		ProposalTimeout: cfg.Pairing.ProposalTimeout,
		Meta: session.PeerMeta{
			Name:        cfg.Pairing.PeerName,
			Description: config.GetFormattedBuildArgs(),
			URL:         cfg.Pairing.PeerURL,
		},
	})
}

// NewBridgeTransport creates the WebSocket relay transport from cfg.
func NewBridgeTransport(cfg config.Server) *bridge.Transport {
	return bridge.New(bridge.Config{
		HandshakeTimeout: cfg.Pairing.HandshakeTimeout,
		WriteTimeout:     cfg.Pairing.WriteTimeout,
		EventBufferSize:  cfg.Pairing.EventBufferSize,
	})
}
