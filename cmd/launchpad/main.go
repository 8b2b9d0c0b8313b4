package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"

	"github.com/ruteri/confidential-launchpad/chain"
	"github.com/ruteri/confidential-launchpad/cmd/flags"
	"github.com/ruteri/confidential-launchpad/common"
	"github.com/ruteri/confidential-launchpad/disclosure"
	"github.com/ruteri/confidential-launchpad/httpserver"
	"github.com/ruteri/confidential-launchpad/interfaces"
	"github.com/ruteri/confidential-launchpad/metrics"
	"github.com/ruteri/confidential-launchpad/mutation"
	"github.com/ruteri/confidential-launchpad/registry"
	"github.com/ruteri/confidential-launchpad/relayer"
	"github.com/ruteri/confidential-launchpad/signer"
)

var flagHolder = &cli.StringFlag{
	Name:  "holder",
	Usage: "address used to mark tokens created by it, defaults to the signer",
}
var flagToken = &cli.StringFlag{
	Name:     "token",
	Required: true,
	Usage:    "confidential token address",
}
var flagName = &cli.StringFlag{
	Name:     "name",
	Required: true,
	Usage:    "token name",
}
var flagSymbol = &cli.StringFlag{
	Name:     "symbol",
	Required: true,
	Usage:    "token symbol",
}

// relayerRetryInterval spaces relayer initialization attempts while serving.
const relayerRetryInterval = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "launchpad",
		Usage: "Create, mint and inspect confidential tokens",
		Flags: append(append([]cli.Flag{}, flags.LogFlags...), flags.SignerFlags...),
		Commands: []*cli.Command{
			{
				Name:  "list-tokens",
				Usage: "list every token created by the factory",
				Flags: append([]cli.Flag{flagHolder}, flags.ChainFlags...),
				Action: func(cCtx *cli.Context) error {
					lp, err := newLaunchpad(cCtx, flags.SetupLogger(cCtx), nil, false)
					if err != nil {
						return err
					}
					return lp.listTokens(cCtx)
				},
			},
			{
				Name:  "create-token",
				Usage: "create a confidential token and wait for its inclusion",
				Flags: append([]cli.Flag{flagName, flagSymbol}, flags.ChainFlags...),
				Action: func(cCtx *cli.Context) error {
					lp, err := newLaunchpad(cCtx, flags.SetupLogger(cCtx), nil, true)
					if err != nil {
						return err
					}
					manager := mutation.NewManager(lp.transactor, lp.aggregator, lp.log, nil)
					defer manager.Close()

					record, err := manager.CreateToken(cCtx.Context, cCtx.String(flagName.Name), cCtx.String(flagSymbol.Name))
					return lp.follow(cCtx.Context, record, err)
				},
			},
			{
				Name:  "freemint",
				Usage: "claim the freemint allowance of a token",
				Flags: append([]cli.Flag{flagToken}, flags.ChainFlags...),
				Action: func(cCtx *cli.Context) error {
					lp, err := newLaunchpad(cCtx, flags.SetupLogger(cCtx), nil, true)
					if err != nil {
						return err
					}
					token, err := flags.ParseAddress(cCtx, flagToken.Name)
					if err != nil {
						return err
					}
					manager := mutation.NewManager(lp.transactor, lp.aggregator, lp.log, nil)
					defer manager.Close()

					record, err := manager.Freemint(cCtx.Context, token)
					return lp.follow(cCtx.Context, record, err)
				},
			},
			{
				Name:  "decrypt-balance",
				Usage: "disclose the signer's balance of a token",
				Flags: append(append([]cli.Flag{flagToken}, flags.ChainFlags...), flags.DisclosureFlags...),
				Action: func(cCtx *cli.Context) error {
					lp, err := newLaunchpad(cCtx, flags.SetupLogger(cCtx), nil, true)
					if err != nil {
						return err
					}
					return lp.decryptBalance(cCtx)
				},
			},
			{
				Name:  "serve",
				Usage: "serve the launchpad HTTP API",
				Flags: append(append(append([]cli.Flag{}, flags.ChainFlags...), flags.DisclosureFlags...), flags.ServerFlags...),
				Action: func(cCtx *cli.Context) error {
					return serve(cCtx)
				},
			},
			{
				Name:  "keygen",
				Usage: "generate a holder key, storing it in Vault when --vault-addr is set",
				Action: func(cCtx *cli.Context) error {
					return keygen(cCtx)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type launchpad struct {
	log        *slog.Logger
	chainID    *big.Int
	decimals   int
	reader     *chain.EthReader
	transactor *chain.LaunchpadClient
	signer     *signer.KeySigner
	aggregator *registry.Aggregator
}

// newLaunchpad dials the RPC node and wires the chain-facing components.
// Without a configured key the launchpad is read-only unless requireSigner is set,
// in which case the missing key is an error.
func newLaunchpad(cCtx *cli.Context, logger *slog.Logger, m *metrics.Metrics, requireSigner bool) (*launchpad, error) {
	factory, err := flags.ParseAddress(cCtx, flags.FactoryAddrFlag.Name)
	if err != nil {
		return nil, err
	}
	if decimals := cCtx.Int(flags.DecimalsFlag.Name); decimals <= 0 {
		return nil, fmt.Errorf("invalid --%s %d, must be positive", flags.DecimalsFlag.Name, decimals)
	}
	multicall, err := flags.ParseAddress(cCtx, flags.MulticallAddrFlag.Name)
	if err != nil {
		return nil, err
	}

	rpcAddress := cCtx.String(flags.RpcAddrFlag.Name)
	logger.Info("Connecting to Ethereum RPC", "address", rpcAddress)
	ethClient, err := ethclient.Dial(rpcAddress)
	if err != nil {
		logger.Error("Failed to dial RPC", "err", err)
		return nil, err
	}

	chainID := big.NewInt(cCtx.Int64(flags.ContractsChainIDFlag.Name))
	if chainID.Sign() == 0 {
		chainID, err = ethClient.ChainID(cCtx.Context)
		if err != nil {
			return nil, fmt.Errorf("could not fetch chain id: %w", err)
		}
	}

	lp := &launchpad{
		log:        logger,
		chainID:    chainID,
		decimals:   cCtx.Int(flags.DecimalsFlag.Name),
		reader:     chain.NewEthReader(ethClient, multicall, logger),
		transactor: chain.NewLaunchpadClient(ethClient, ethClient, factory),
	}
	lp.aggregator = registry.NewAggregator(lp.reader, factory, logger, m)

	lp.signer, err = flags.LoadSigner(cCtx.Context, cCtx, logger)
	switch {
	case errors.Is(err, flags.ErrNoSigner) && !requireSigner:
		logger.Info("No signer configured, running read-only")
		return lp, nil
	case err != nil:
		return nil, fmt.Errorf("could not load signer: %w", err)
	}

	opts, err := lp.signer.TransactOpts(chainID)
	if err != nil {
		return nil, err
	}
	lp.transactor.SetTransactOpts(opts)
	logger.Info("Signer loaded", "address", lp.signer.Address().Hex())

	return lp, nil
}

func (lp *launchpad) identity() interfaces.AuthorizationSigner {
	if lp.signer == nil {
		return nil
	}
	return lp.signer
}

func (lp *launchpad) newRelayer(cCtx *cli.Context) *relayer.Client {
	return relayer.NewClient(&relayer.Config{
		URL:              cCtx.String(flags.RelayerURLFlag.Name),
		ContractsChainID: lp.chainID,
	}, lp.log)
}

func (lp *launchpad) newCoordinator(cCtx *cli.Context, client *relayer.Client, m *metrics.Metrics) *disclosure.Coordinator {
	return disclosure.NewCoordinator(lp.reader, client, &disclosure.Config{
		DurationDays: cCtx.Int(flags.ValidityDaysFlag.Name),
		Decimals:     lp.decimals,
	}, lp.log, m)
}

func (lp *launchpad) listTokens(cCtx *cli.Context) error {
	var holder ethcommon.Address
	switch {
	case cCtx.String(flagHolder.Name) != "":
		parsed, err := flags.ParseAddress(cCtx, flagHolder.Name)
		if err != nil {
			return err
		}
		holder = parsed
	case lp.signer != nil:
		holder = lp.signer.Address()
	}

	records, err := lp.aggregator.List(cCtx.Context)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tADDRESS\tCREATOR\tCREATED\tNAME\tSYMBOL\tFREEMINT\t")
	for i, record := range records {
		creator := record.Creator.Hex()
		if holder != (ethcommon.Address{}) && record.IsCreator(holder) {
			creator += " (you)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			i,
			record.Address.Hex(),
			creator,
			record.CreatedTime().UTC().Format(time.RFC3339),
			record.Name,
			record.Symbol,
			record.FormattedAllowance(lp.decimals),
		)
	}
	return w.Flush()
}

// follow prints the transitions of a mutation until it is terminal.
func (lp *launchpad) follow(ctx context.Context, record *mutation.Record, err error) error {
	if err != nil {
		return err
	}

	events, unsubscribe := record.Subscribe()
	defer unsubscribe()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return record.Err()
			}
			switch event.Status {
			case mutation.StatusPending:
				fmt.Printf("%s %s pending, tx %s\n", event.Kind, event.ID, event.TxHash.Hex())
			case mutation.StatusConfirmed:
				fmt.Printf("%s %s confirmed\n", event.Kind, event.ID)
				if event.CreatedToken != nil {
					fmt.Printf("token %s\n", event.CreatedToken.Hex())
				}
			case mutation.StatusFailed:
				fmt.Printf("%s %s failed: %s\n", event.Kind, event.ID, event.Error)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (lp *launchpad) decryptBalance(cCtx *cli.Context) error {
	token, err := flags.ParseAddress(cCtx, flagToken.Name)
	if err != nil {
		return err
	}

	client := lp.newRelayer(cCtx)
	if err := client.Initialize(cCtx.Context); err != nil {
		return err
	}
	coordinator := lp.newCoordinator(cCtx, client, nil)

	result, err := coordinator.Disclose(cCtx.Context, disclosure.Request{
		Token:  token,
		Holder: lp.signer.Address(),
		Signer: lp.identity(),
		Observer: func(t disclosure.Transition) {
			lp.log.Debug("Disclosure transition", "from", t.From, "to", t.To, "err", t.Err)
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", result.Formatted)
	return nil
}

func serve(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	cfg := flags.ConfigureServer(cCtx, logger)

	metricsSrv, err := metrics.New(common.PackageName, cfg.MetricsAddr)
	if err != nil {
		return err
	}
	m := metricsSrv.Metrics()

	lp, err := newLaunchpad(cCtx, logger, m, false)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := lp.newRelayer(cCtx)
	go initializeRelayer(ctx, client, lp.log)

	manager := mutation.NewManager(lp.transactor, lp.aggregator, lp.log, m)
	defer manager.Close()

	handler := httpserver.NewHandler(lp.aggregator, lp.newCoordinator(cCtx, client, m), manager, lp.identity(), lp.decimals, lp.log)
	server, err := httpserver.New(cfg, handler, metricsSrv)
	if err != nil {
		lp.log.Error("Failed to create server", "err", err)
		return err
	}

	lp.log.Info("Starting server")
	server.RunInBackground()

	// Wait for termination signal
	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	lp.log.Info("Server is running, press Ctrl+C to stop")
	<-exit
	lp.log.Info("Shutdown signal received")

	server.Shutdown()
	lp.log.Info("Server shutdown complete")

	return nil
}

// initializeRelayer retries until the relayer configuration is fetched.
// Disclosures fail as unavailable in the meantime.
func initializeRelayer(ctx context.Context, client *relayer.Client, log *slog.Logger) {
	ticker := time.NewTicker(relayerRetryInterval)
	defer ticker.Stop()

	for {
		err := client.Initialize(ctx)
		if err == nil {
			log.Info("Relayer initialized")
			return
		}
		log.Warn("Relayer initialization failed, retrying", "err", err, "in", relayerRetryInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func keygen(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	key, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	generated := signer.NewKeySigner(key)

	source, err := flags.VaultKeySource(cCtx, logger)
	if err != nil {
		return err
	}
	if source == nil {
		fmt.Printf("address %s\nprivate key %s\n", generated.Address().Hex(), generated.PrivateKeyHex())
		return nil
	}

	if err := source.Store(cCtx.Context, generated); err != nil {
		return fmt.Errorf("could not store key in Vault: %w", err)
	}
	fmt.Printf("address %s\n", generated.Address().Hex())
	return nil
}
