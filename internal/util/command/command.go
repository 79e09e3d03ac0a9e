package command

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github/chapool/pairwallet/internal/app"
	"github/chapool/pairwallet/internal/config"
	"github/chapool/pairwallet/internal/session"
	"github/chapool/pairwallet/internal/util"
)

const shutdownTimeout = 10 * time.Second

// NewSubcommandGroup returns a command that only groups subcommands.
func NewSubcommandGroup(name string, subCommands ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: name + " subcommands",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(subCommands...)
	return cmd
}

// WithApp initializes an App for transport, runs f and shuts the app down afterwards.
// ctx is cancelled on SIGINT and SIGTERM.
func WithApp(ctx context.Context, cfg config.Server, transport session.Transport, f func(ctx context.Context, a *app.App) error) error {
	util.ConfigureLogger(cfg.Logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := app.InitNewApp(ctx, cfg, transport)
	if err != nil {
		return errors.Wrap(err, "failed to initialize app")
	}
	defer cleanup()

	identity := a.KeyHolder.Identity()
	log.Info().
		Str("account", identity.Address.Hex()).
		Int64("chain_id", identity.ChainID).
		Strs("rpc_urls", cfg.Wallet.RPCURLs).
		Msg("Wallet initialized")

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if errs := a.Shutdown(shutdownCtx); len(errs) > 0 {
			log.Error().Errs("shutdownErrors", errs).Msg("Failed to gracefully shut down wallet")
		}
	}()

	return f(ctx, a)
}
