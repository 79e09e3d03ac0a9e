//go:build wireinject

package app

import (
	"context"

	"github.com/google/wire"
	"github/chapool/pairwallet/internal/config"
	"github/chapool/pairwallet/internal/session"
	"github/chapool/pairwallet/internal/wallet/rpcclient"
)

// INJECTORS - https://github.com/google/wire/blob/main/docs/guide.md#injectors

// serviceSet groups the default set of providers that are required for initing an app
var serviceSet = wire.NewSet(
	newAppWithComponents,
	NewRegistry,
	NewMetrics,
	NewRPCClient,
	NewAccount,
	NewKeyHolder,
	NewNegotiator,
)

// InitNewApp returns a new App pairing over transport and talking to the configured RPC urls.
func InitNewApp(
	_ context.Context,
	_ config.Server,
	_ session.Transport,
) (*App, func(), error) {
	wire.Build(serviceSet, NewDialer)
	return new(App), nil, nil
}

// InitNewAppWithDialer returns a new App whose RPC connections are opened with dial.
func InitNewAppWithDialer(
	_ context.Context,
	_ config.Server,
	_ session.Transport,
	_ rpcclient.Dialer,
) (*App, func(), error) {
	wire.Build(serviceSet)
	return new(App), nil, nil
}
