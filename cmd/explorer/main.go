package main

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brewgator/block-explorer/internal/bitcoin"
	"github.com/brewgator/block-explorer/internal/config"
	"github.com/brewgator/block-explorer/internal/explorer"
	"github.com/brewgator/block-explorer/internal/logging"
	"github.com/brewgator/block-explorer/internal/rpc"
)

var version = "dev"

type options struct {
	rpcURL   string
	user     string
	password string
	wallet   string
	network  string
	timeout  time.Duration
	verbose  bool
}

// app is what every subcommand runs against.
type app struct {
	env    explorer.Env
	client *rpc.Client
	logger *zap.SugaredLogger
}

func (a *app) close() {
	a.client.Close()
	_ = a.logger.Sync()
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "explorer",
		Short:        "Look up blocks, transactions and balances on a Bitcoin Core node",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.rpcURL, "rpc-url", "", "node JSON-RPC URL (overrides EXPLORER_RPC_URL)")
	flags.StringVar(&opts.user, "rpc-user", "", "node RPC user (overrides EXPLORER_RPC_USER)")
	flags.StringVar(&opts.password, "rpc-password", "", "node RPC password (overrides EXPLORER_RPC_PASSWORD)")
	flags.StringVar(&opts.wallet, "wallet", "", "wallet for balance lookups (overrides EXPLORER_RPC_WALLET)")
	flags.StringVar(&opts.network, "network", "", "mainnet, testnet3, regtest or signet (overrides EXPLORER_NETWORK)")
	flags.DurationVar(&opts.timeout, "timeout", 0, "per-call timeout (overrides EXPLORER_RPC_TIMEOUT)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log every RPC call")

	connect := opts.connect

	root.AddCommand(
		lookupCmd("tx <txid>", "Show a transaction", connect, func(arg string) explorer.Query {
			return explorer.TransactionQuery{TxID: arg}
		}),
		lookupCmd("block <height|hash>", "Show a block by height or hash", connect, func(arg string) explorer.Query {
			return explorer.BlockQuery{Locator: arg}
		}),
		lookupCmd("balance <address>", "Show an address balance from the configured wallet", connect, func(arg string) explorer.Query {
			return explorer.BalanceQuery{Address: arg}
		}),
		lookupCmd("search <query>", "Search by block height, hash, transaction id or address", connect, func(arg string) explorer.Query {
			return explorer.SearchQuery{Text: arg}
		}),
		latestCmd(connect),
		&cobra.Command{
			Use:   "version",
			Short: "Show version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s, version %s\n", path.Base(os.Args[0]), version)
			},
		},
	)

	return root
}

func (o *options) connect() (*app, error) {
	cfg, err := config.Read()
	if err != nil {
		return nil, err
	}
	if o.rpcURL != "" {
		cfg.RPC.URL = o.rpcURL
	}
	if o.user != "" {
		cfg.RPC.User = o.user
	}
	if o.password != "" {
		cfg.RPC.Password = o.password
	}
	if o.wallet != "" {
		cfg.RPC.Wallet = o.wallet
	}
	if o.network != "" {
		cfg.RPC.Network = strings.ToLower(o.network)
	}
	if o.timeout > 0 {
		cfg.RPC.Timeout = o.timeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	params, err := cfg.ChainParams()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop().Sugar()
	if o.verbose {
		if logger, err = logging.NewSugar("dev"); err != nil {
			return nil, err
		}
	}

	client := rpc.NewClient(rpc.Config{
		URL:      cfg.RPC.URL,
		User:     cfg.RPC.User,
		Password: cfg.RPC.Password,
		Timeout:  cfg.RPC.Timeout,
	}, logger, nil)

	return &app{
		env: explorer.Env{
			Node:   bitcoin.NewClientFromRPC(client, cfg.RPC.Wallet),
			Mapper: explorer.NewMapper(explorer.NewFormatter(cfg.Display.TimeLayout, loc)),
			Net:    params,
		},
		client: client,
		logger: logger,
	}, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
