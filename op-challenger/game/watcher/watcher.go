package watcher

import (
	"context"

	"golang.org/x/sync/errgroup"

	gethlog "github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/client"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/config"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/game/state"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/metrics"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/txmgr"
)

// Watcher owns the two log subscriptions and the periodic fault-game
// poller, and runs all three concurrently.
type Watcher struct {
	factory *FactorySubscriber
	oracle  *OracleSubscriber
	poller  *Poller
}

// New wires a Watcher from its constituent parts per cfg.
func New(log gethlog.Logger, l1 *client.L1Client, trusted *client.TrustedClient, st *state.GlobalState, queue *txmgr.Queue, m *metrics.Metrics, cfg config.Config) *Watcher {
	return &Watcher{
		factory: NewFactorySubscriber(log.New("component", "factory_subscriber"), l1, cfg.FactoryAddr, st, queue, trusted, m, cfg.TraceMaxDepth, cfg.Trace),
		oracle:  NewOracleSubscriber(log.New("component", "oracle_subscriber"), l1, l1, cfg.OracleAddr, cfg.FactoryAddr, trusted, queue, m),
		poller:  NewPoller(log.New("component", "fault_game_poller"), l1, st, queue, m, cfg.PollInterval),
	}
}

// Poller exposes the periodic poller so the bootstrap sequence can adjust
// its interval in response to a config file reload.
func (w *Watcher) Poller() *Poller {
	return w.poller
}

// Run starts all three loops and blocks until any one returns, canceling
// the rest; per the bootstrap contract, any one loop's failure brings the
// whole agent down.
func (w *Watcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.factory.Run(ctx) })
	g.Go(func() error { return w.oracle.Run(ctx) })
	g.Go(func() error { return w.poller.Run(ctx) })
	return g.Wait()
}
