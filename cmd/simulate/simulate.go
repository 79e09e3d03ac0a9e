package simulate

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github/chapool/pairwallet/internal/app"
	"github/chapool/pairwallet/internal/config"
	"github/chapool/pairwallet/internal/session"
	"github/chapool/pairwallet/internal/transport/loopback"
	"github/chapool/pairwallet/internal/util/command"
	"github/chapool/pairwallet/internal/wallet/signer"
)

const (
	messageFlag = "message"
	sendFlag    = "send"
	timeoutFlag = "timeout"
)

// New runs an in-process dApp against the wallet: pairing, identity calls, a signature
// and optionally a zero value transaction to the wallet itself.
func New() *cobra.Command {
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Pairs an in-process dApp with the wallet",
		Long: `Pairs an in-process dApp over a loopback transport, asks for accounts and chain id,
signs a message and verifies the signature. With --send a zero value transaction to the
wallet's own address is sent through the configured node.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := command.LoadConfig(cmd.Context(), v)
			if err != nil {
				return err
			}

			message, _ := cmd.Flags().GetString(messageFlag)
			send, _ := cmd.Flags().GetBool(sendFlag)
			timeout, _ := cmd.Flags().GetDuration(timeoutFlag)

			transport := loopback.New(cfg.Pairing.EventBufferSize)

			return command.WithApp(cmd.Context(), cfg, transport, func(ctx context.Context, a *app.App) error {
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()

				return simulate(ctx, cmd.OutOrStdout(), a, transport, message, send)
			})
		},
	}

	command.BindWalletFlags(cmd, v)
	cmd.Flags().String(messageFlag, "hello", "Message to sign")
	cmd.Flags().Bool(sendFlag, false, "Also send a zero value transaction to the wallet address")
	cmd.Flags().Duration(timeoutFlag, 3*time.Minute, "Overall timeout")

	return cmd
}

func simulate(ctx context.Context, out io.Writer, a *app.App, transport *loopback.Transport, message string, send bool) error {
	served := make(chan error, 1)
	go func() { served <- a.RunSession(ctx) }()

	identity := a.KeyHolder.Identity()
	peer := transport.NewPeer(session.PeerMeta{Name: "simulator", URL: "https://localhost"})
	if err := peer.Publish(ctx); err != nil {
		return err
	}

	approval, err := peer.Propose(ctx, &identity.ChainID)
	if err != nil {
		return errors.Wrap(err, "session was not approved")
	}
	fmt.Fprintf(out, "session approved: accounts=%v chainId=%d\n", approval.Accounts, approval.ChainID)

	for _, method := range []string{"eth_accounts", "eth_chainId"} {
		response, err := peer.Call(ctx, method)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %v\n", method, describe(response))
	}

	response, err := peer.Call(ctx, "eth_sign", identity.Address.Hex(), message)
	if err != nil {
		return err
	}
	if response.Rejected() {
		return errors.Errorf("eth_sign rejected: %s", response.Error.Message)
	}

	sigHex, _ := response.Result.(string)
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return errors.Wrap(err, "invalid signature")
	}
	recovered, err := signer.RecoverMessageSigner([]byte(message), sig)
	if err != nil {
		return errors.Wrap(err, "failed to recover signer")
	}
	if recovered != identity.Address {
		return errors.Errorf("signature recovers to %s, expected %s", recovered.Hex(), identity.Address.Hex())
	}
	fmt.Fprintf(out, "eth_sign: %s (verified)\n", sigHex)

	if send {
		response, err := peer.Call(ctx, "eth_sendTransaction", map[string]any{
			"from":  identity.Address.Hex(),
			"to":    identity.Address.Hex(),
			"value": "0x0",
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "eth_sendTransaction: %v\n", describe(response))
	}

	if err := peer.Disconnect(ctx); err != nil {
		return err
	}

	return <-served
}

func describe(response session.ResponseFrame) string {
	if response.Rejected() {
		return fmt.Sprintf("rejected (%d) %s", response.Error.Code, response.Error.Message)
	}
	return fmt.Sprint(response.Result)
}
