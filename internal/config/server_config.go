package config

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

const (
	DefaultChainID = 123
	DefaultRPCURL  = "http://localhost:8545"
)

type Wallet struct {
	// PrivateKey is a hex private key or a BIP39 mnemonic. Empty generates a fresh identity.
	PrivateKey string `json:"-"`
	ChainID    int64
	RPCURLs    []string
	// PromptKey reads the secret from the terminal instead of the environment.
	PromptKey bool
	// KeystoreFile is an encrypted keystore holding the secret, used when PrivateKey is empty.
	KeystoreFile     string
	KeystorePassword string `json:"-"`
}

type Pairing struct {
	// URI is the pairing URI to connect to. Empty reads URIs from stdin.
	URI                 string
	PeerName            string
	PeerURL             string
	ProposalTimeout     time.Duration
	HandshakeTimeout    time.Duration
	WriteTimeout        time.Duration
	EventBufferSize     int
	ConfirmationTimeout time.Duration
	ReceiptPollInterval time.Duration
}

type Status struct {
	// ListenAddress of the status server. Empty disables it.
	ListenAddress string
}

type LoggerServer struct {
	Level              zerolog.Level
	PrettyPrintConsole bool
}

type Server struct {
	Wallet  Wallet
	Pairing Pairing
	Status  Status
	Logger  LoggerServer
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("wallet.private_key", "")
	v.SetDefault("wallet.chain_id", DefaultChainID)
	v.SetDefault("wallet.rpc_url", DefaultRPCURL)
	v.SetDefault("wallet.prompt_key", false)
	v.SetDefault("wallet.keystore_file", "")
	v.SetDefault("wallet.keystore_password", "")

	v.SetDefault("pairing.uri", "")
	v.SetDefault("pairing.peer_name", ModuleName)
	v.SetDefault("pairing.peer_url", "https://github.com/chapool/pairwallet")
	v.SetDefault("pairing.proposal_timeout", 5*time.Minute)
	v.SetDefault("pairing.handshake_timeout", 10*time.Second)
	v.SetDefault("pairing.write_timeout", 10*time.Second)
	v.SetDefault("pairing.event_buffer_size", 64)
	v.SetDefault("pairing.confirmation_timeout", 2*time.Minute)
	v.SetDefault("pairing.receipt_poll_interval", 3*time.Second)

	v.SetDefault("status.listen_address", "")

	v.SetDefault("logger.level", zerolog.DebugLevel.String())
	v.SetDefault("logger.pretty_print_console", false)
}

// NewViper returns a viper instance reading the service environment.
// WALLET_CHAIN_ID maps to wallet.chain_id and so on.
func NewViper() *viper.Viper {
	// a missing .env is fine
	_ = gotenv.Load(envFile())

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	return v
}

// DefaultServiceConfigFromEnv returns the server config as parsed from environment variables
// and their respective defaults defined below.
func DefaultServiceConfigFromEnv() Server {
	return ServiceConfigFromViper(NewViper())
}

// ServiceConfigFromViper builds the server config from v, including any bound flags.
func ServiceConfigFromViper(v *viper.Viper) Server {
	level, err := zerolog.ParseLevel(v.GetString("logger.level"))
	if err != nil {
		level = zerolog.DebugLevel
	}

	return Server{
		Wallet: Wallet{
			PrivateKey: v.GetString("wallet.private_key"),
			ChainID:    v.GetInt64("wallet.chain_id"),
			RPCURLs:    splitList(v.GetString("wallet.rpc_url")),
			PromptKey:  v.GetBool("wallet.prompt_key"),
		},
		Pairing: Pairing{
			URI:                 v.GetString("pairing.uri"),
			PeerName:            v.GetString("pairing.peer_name"),
			PeerURL:             v.GetString("pairing.peer_url"),
			ProposalTimeout:     v.GetDuration("pairing.proposal_timeout"),
			HandshakeTimeout:    v.GetDuration("pairing.handshake_timeout"),
			WriteTimeout:        v.GetDuration("pairing.write_timeout"),
			EventBufferSize:     v.GetInt("pairing.event_buffer_size"),
			ConfirmationTimeout: v.GetDuration("pairing.confirmation_timeout"),
			ReceiptPollInterval: v.GetDuration("pairing.receipt_poll_interval"),
		},
		Status: Status{
			ListenAddress: v.GetString("status.listen_address"),
		},
		Logger: LoggerServer{
			Level:              level,
			PrettyPrintConsole: v.GetBool("logger.pretty_print_console"),
		},
	}
}

func envFile() string {
	if path := os.Getenv("WALLET_ENV_FILE"); path != "" {
		return path
	}
	return ".env"
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
