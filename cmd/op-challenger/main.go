// Command op-challenger runs the fault dispute-game challenge agent: it
// watches a DisputeGameFactory and L2OutputOracle for new games and
// proposals, keeps an in-memory model of every game it tracks, and
// dispatches attack/defend/step/challenge transactions in response.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	gethlog "github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/client"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/config"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/game/state"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/game/watcher"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/log"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/metrics"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/txmgr"
)

const envPrefix = "OP_CHALLENGER"

func main() {
	log.SetupDefaults()

	app := &cli.App{
		Name:   "op-challenger",
		Usage:  "Automated fault dispute-game challenge agent",
		Flags:  config.CLIFlags(envPrefix),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		gethlog.Error("op-challenger exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	cfg, err := config.NewConfig(cliCtx)
	if err != nil {
		return fmt.Errorf("op-challenger: loading config: %w", err)
	}

	logger := log.NewLogger(log.AppOut(cliCtx), cfg.Log)
	gethlog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l1, err := client.NewL1Client(ctx, cfg.L1EthRPC, cfg.SignerKey)
	if err != nil {
		return fmt.Errorf("op-challenger: dialing L1: %w", err)
	}
	defer l1.Close()

	trusted, err := client.NewTrustedClient(ctx, cfg.TrustedRPC, rate.Limit(cfg.TrustedRate), 1)
	if err != nil {
		return fmt.Errorf("op-challenger: dialing trusted node: %w", err)
	}
	defer trusted.Close()

	st := state.New()
	m := metrics.New()
	queue := txmgr.NewQueue(logger.New("component", "dispatcher"), l1, m)
	w := watcher.New(logger, l1, trusted, st, queue, m, cfg)

	logger.Info("op-challenger starting",
		"factory", cfg.FactoryAddr, "oracle", cfg.OracleAddr, "metrics_addr", cfg.MetricsAddr)

	loops := []func(context.Context) error{
		queue.Run,
		w.Run,
		func(c context.Context) error { return metrics.Serve(c, logger, m, cfg.MetricsAddr) },
		func(c context.Context) error {
			return config.WatchConfigFile(c, logger.New("component", "config_watcher"), cfg.ConfigFile, func(r config.Reloadable) {
				if r.PollInterval != 0 {
					w.Poller().SetInterval(r.PollInterval)
				}
				if r.TrustedRate != 0 {
					trusted.SetRateLimit(rate.Limit(r.TrustedRate))
				}
			})
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var failures *multierror.Error
	for _, loop := range loops {
		loop := loop
		g.Go(func() error {
			err := loop(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				mu.Lock()
				failures = multierror.Append(failures, err)
				mu.Unlock()
			}
			return err
		})
	}
	_ = g.Wait()

	return failures.ErrorOrNil()
}
