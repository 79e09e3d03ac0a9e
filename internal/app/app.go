package app

import (
	"context"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github/chapool/pairwallet/internal/config"
	"github/chapool/pairwallet/internal/dispatch"
	"github/chapool/pairwallet/internal/metrics"
	"github/chapool/pairwallet/internal/pairing"
	"github/chapool/pairwallet/internal/session"
	"github/chapool/pairwallet/internal/util"
	"github/chapool/pairwallet/internal/wallet/keyholder"
	"github/chapool/pairwallet/internal/wallet/rpcclient"
)

// App is a central struct keeping all the dependencies.
// It is initialized with wire, which handles making the new instances of the components
// in the right order. To add a new component, 3 steps are required:
// - declaring it in this struct
// - adding a provider function in providers.go
// - adding the provider's function name to the arguments of wire.Build() in wire.go
//
// Components labeled as `wire:"-"` will be skipped and have to be initialized after the InitNewApp* call.
type App struct {
	// skip wire:
	// -> initialized with app.InitStatus()
	Echo *echo.Echo `wire:"-"`

	Config     config.Server
	Registry   *prometheus.Registry
	Metrics    *metrics.Service
	RPC        *rpcclient.RPCClient
	KeyHolder  keyholder.Service
	Transport  session.Transport
	Negotiator pairing.Service

	mu         sync.Mutex
	dispatcher dispatch.Service
}

// newAppWithComponents is used by wire to initialize the app components.
func newAppWithComponents(
	cfg config.Server,
	reg *prometheus.Registry,
	m *metrics.Service,
	rpc *rpcclient.RPCClient,
	holder keyholder.Service,
	transport session.Transport,
	negotiator pairing.Service,
) *App {
	return &App{
		Config:     cfg,
		Registry:   reg,
		Metrics:    m,
		RPC:        rpc,
		KeyHolder:  holder,
		Transport:  transport,
		Negotiator: negotiator,
	}
}

// Ready reports whether all components are initialized.
func (a *App) Ready() bool {
	return a.Registry != nil &&
		a.Metrics != nil &&
		a.RPC != nil &&
		a.KeyHolder != nil &&
		a.Transport != nil &&
		a.Negotiator != nil
}

// Run negotiates and services sessions one after another until ctx ends or the transport closes.
// A failed negotiation is logged and the wallet waits for the next pairing URI.
func (a *App) Run(ctx context.Context) error {
	if !a.Ready() {
		return errors.New("app is not ready")
	}

	a.checkNode(ctx)

	for {
		err := a.RunSession(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, pairing.ErrTransportClosed):
			return err
		case err != nil:
			log.Warn().Err(err).Msg("Pairing failed, waiting for the next pairing uri")
		}
	}
}

// RunSession negotiates one session and services it until it ends.
func (a *App) RunSession(ctx context.Context) error {
	sess, client, err := a.Negotiator.AwaitAndApprove(ctx)
	if err != nil {
		return err
	}

	dispatcher, err := dispatch.NewService(a.KeyHolder, a.Metrics)
	if err != nil {
		sess.Close(err)
		_ = client.Close()
		return errors.Wrap(err, "failed to create dispatcher")
	}

	if err := dispatcher.Start(ctx, sess, client); err != nil {
		sess.Close(err)
		_ = client.Close()
		return errors.Wrap(err, "failed to start dispatcher")
	}

	a.mu.Lock()
	a.dispatcher = dispatcher
	a.mu.Unlock()

	dispatcher.Wait()

	log.Info().
		Str("session_id", sess.ID).
		Err(sess.Err()).
		Msg("Session ended")

	return nil
}

// Session returns the current session, nil before the first approval.
func (a *App) Session() *session.Session {
	if a.Negotiator == nil {
		return nil
	}
	return a.Negotiator.Current()
}

// checkNode warns when the node serves another chain than the identity's.
func (a *App) checkNode(ctx context.Context) {
	chainID, err := a.RPC.ChainID(ctx)
	if err != nil {
		util.LogFromContext(ctx).Warn().Err(err).Msg("Node unavailable, transactions will fail until it is reachable")
		return
	}

	if expected := a.KeyHolder.Identity().ChainID; chainID.Int64() != expected {
		util.LogFromContext(ctx).Warn().
			Int64("node_chain_id", chainID.Int64()).
			Int64("chain_id", expected).
			Msg("Node serves a different chain than the wallet identity")
	}
}

func (a *App) Shutdown(ctx context.Context) []error {
	log.Warn().Msg("Shutting down wallet")

	var errs []error

	a.mu.Lock()
	dispatcher := a.dispatcher
	a.mu.Unlock()

	if dispatcher != nil {
		log.Debug().Msg("Stopping dispatcher")
		dispatcher.Stop()
	}

	if a.Echo != nil {
		log.Debug().Msg("Shutting down status server")

		if err := a.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Failed to shutdown status server")
			errs = append(errs, err)
		}
	}

	if a.RPC != nil {
		log.Debug().Msg("Closing RPC connections")
		a.RPC.Close()
	}

	return errs
}
