package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github/chapool/pairwallet/internal/config"
	"github/chapool/pairwallet/internal/util/command"
)

const (
	verboseFlag string = "verbose"
	addressFlag string = "address"

	probeTimeout = 5 * time.Second
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("probe",
		newProbe("liveness", "/-/healthy", "Checks that the status server answers"),
		newProbe("readiness", "/-/ready", "Checks that all wallet components are initialized"),
	)
}

func newProbe(name string, path string, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Long: short + `.
Queries the status server of a running wallet (STATUS_LISTEN_ADDRESS or --address).
Exits with a non-zero code when the probe fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			verbose, _ := cmd.Flags().GetBool(verboseFlag)
			address, _ := cmd.Flags().GetString(addressFlag)
			if address == "" {
				address = config.DefaultServiceConfigFromEnv().Status.ListenAddress
			}
			if address == "" {
				return errors.New("no status server address configured")
			}

			body, err := check(cmd.Context(), statusURL(address, path))
			if verbose && body != "" {
				fmt.Fprintln(cmd.OutOrStdout(), body)
			}
			return err
		},
	}

	cmd.Flags().BoolP(verboseFlag, "v", false, "Show verbose output")
	cmd.Flags().String(addressFlag, "", "Status server address, e.g. :9090")

	return cmd
}

func statusURL(address string, path string) string {
	if strings.HasPrefix(address, ":") {
		address = "127.0.0.1" + address
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	return strings.TrimSuffix(address, "/") + path
}

func check(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to create probe request")
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "probe request failed")
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read probe response")
	}

	if res.StatusCode != http.StatusOK {
		return string(body), errors.Errorf("probe failed with status %d", res.StatusCode)
	}

	return string(body), nil
}
