package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github/chapool/pairwallet/cmd/env"
	"github/chapool/pairwallet/cmd/identity"
	"github/chapool/pairwallet/cmd/probe"
	"github/chapool/pairwallet/cmd/run"
	"github/chapool/pairwallet/cmd/simulate"
	"github/chapool/pairwallet/internal/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Version: config.GetFormattedBuildArgs(),
	Use:     config.ModuleName,
	Short:   config.ModuleName,
	Long: fmt.Sprintf(`%v

The wallet side of a WalletConnect style pairing: approves one dApp session
and answers its signing requests with a single EVM identity.
Requires configuration through ENV.`, config.ModuleName),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	// attach the subcommands
	rootCmd.AddCommand(
		env.New(),
		identity.New(),
		probe.New(),
		run.New(),
		simulate.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Failed to execute root command")
		os.Exit(1)
	}
}
