package run

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github/chapool/pairwallet/internal/app"
	"github/chapool/pairwallet/internal/config"
	"github/chapool/pairwallet/internal/pairing"
	"github/chapool/pairwallet/internal/transport/bridge"
	"github/chapool/pairwallet/internal/util/command"
)

const (
	uriFlag    = "uri"
	listenFlag = "listen"
)

// New runs the wallet: pairing URIs come from --uri or, one per line, from stdin.
func New() *cobra.Command {
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the wallet",
		Long: `Connects to the pairing URI's bridge, approves the dApp's session if it asks
for the configured chain and answers its signing requests until the session ends.
Without --uri, pairing URIs are read from stdin, one per line.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := command.LoadConfig(cmd.Context(), v)
			if err != nil {
				return err
			}

			transport := app.NewBridgeTransport(cfg)

			return command.WithApp(cmd.Context(), cfg, transport, func(ctx context.Context, a *app.App) error {
				if cfg.Status.ListenAddress != "" {
					a.InitStatus()
					go func() {
						if err := a.StartStatus(); err != nil {
							log.Error().Err(err).Msg("Status server failed")
						}
					}()
				}

				go feedURIs(ctx, transport, cfg.Pairing.URI, cmd.InOrStdin())

				err := a.Run(ctx)
				if errors.Is(err, pairing.ErrTransportClosed) {
					log.Info().Msg("No more pairing URIs, stopping")
					return nil
				}
				return err
			})
		},
	}

	command.BindWalletFlags(cmd, v)
	cmd.Flags().String(uriFlag, "", "Pairing URI (wc:...)")
	cmd.Flags().String(listenFlag, "", "Listen address of the status server, e.g. :9090")
	_ = v.BindPFlag("pairing.uri", cmd.Flags().Lookup(uriFlag))
	_ = v.BindPFlag("status.listen_address", cmd.Flags().Lookup(listenFlag))

	return cmd
}

// feedURIs publishes uri, or every line read from in when uri is empty.
// The transport is closed afterwards, so the wallet stops once the last session ends.
func feedURIs(ctx context.Context, transport *bridge.Transport, uri string, in io.Reader) {
	defer transport.Close()

	if uri != "" {
		if err := transport.Publish(ctx, uri); err != nil {
			log.Error().Err(err).Msg("Failed to publish pairing uri")
		}
		return
	}

	if in == os.Stdin {
		log.Info().Msg("Waiting for pairing URIs on stdin")
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := transport.Publish(ctx, line); err != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("Failed to read pairing uris")
	}
}
