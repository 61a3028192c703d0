package watcher

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethlog "github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/bindings"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/game/fault/alphabet"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/game/fault/types"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/game/state"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/metrics"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/txmgr"
)

// claimArraySlot is the storage slot the on-chain claim array's length is
// read from.
var claimArraySlot = common.BigToHash(big.NewInt(1))

// Poller periodically scans every tracked fault game for claims that have
// appeared on-chain since its last pass, feeds each to the local game
// model, and enqueues the resulting move or step.
type Poller struct {
	log     gethlog.Logger
	l1      L1Caller
	state   *state.GlobalState
	queue   *txmgr.Queue
	metrics *metrics.Metrics

	// interval is read by Run on every tick and may be updated concurrently
	// by SetInterval as a config file is reloaded.
	interval atomic.Int64
}

// NewPoller constructs a Poller running at the given interval.
func NewPoller(log gethlog.Logger, l1 L1Caller, st *state.GlobalState, queue *txmgr.Queue, m *metrics.Metrics, interval time.Duration) *Poller {
	p := &Poller{log: log, l1: l1, state: st, queue: queue, metrics: m}
	p.interval.Store(int64(interval))
	return p
}

// SetInterval changes the poll interval taken effect on the next tick.
func (p *Poller) SetInterval(interval time.Duration) {
	p.interval.Store(int64(interval))
	p.log.Info("poll interval updated", "interval", interval)
}

// Run loops until ctx is canceled, sleeping interval between passes and
// picking up interval changes made via SetInterval between ticks.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(p.interval.Load()))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.pollOnce(ctx)
			if current := time.Duration(p.interval.Load()); current != 0 {
				ticker.Reset(current)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.WatcherPollSecs.Observe(time.Since(start).Seconds())
		}
	}()

	for _, game := range p.state.All() {
		if err := p.pollGame(ctx, game); err != nil {
			p.log.Error("polling fault game failed", "proxy", game.Address, "err", err)
		}
	}
}

// pollGame compares the on-chain claim array length of game against the
// locally tracked length, appending and responding to any new claims.
func (p *Poller) pollGame(ctx context.Context, game *alphabet.Game) error {
	lenData, err := p.l1.StorageAt(ctx, game.Address, claimArraySlot)
	if err != nil {
		return fmt.Errorf("reading claim array length: %w", err)
	}
	onChainLen := new(big.Int).SetBytes(lenData).Uint64()
	localLen := uint64(len(game.Claims()))

	switch {
	case onChainLen == localLen:
		return nil
	case onChainLen < localLen:
		p.log.Error("critical inconsistency: local claim count exceeds on-chain count", "proxy", game.Address, "local", localLen, "on_chain", onChainLen)
		return nil
	}

	for i := localLen; i < onChainLen; i++ {
		if err := p.appendAndRespond(ctx, game, i); err != nil {
			return fmt.Errorf("claim %d: %w", i, err)
		}
	}
	return nil
}

func (p *Poller) appendAndRespond(ctx context.Context, game *alphabet.Game, index uint64) error {
	data, err := p.l1.CallContract(ctx, game.Address, bindings.EncodeClaimDataCall(index))
	if err != nil {
		return fmt.Errorf("calling claimData(%d): %w", index, err)
	}
	decoded, err := bindings.DecodeClaimData(data)
	if err != nil {
		return fmt.Errorf("decoding claimData(%d): %w", index, err)
	}
	claim := types.ClaimData{
		ParentIndex: decoded.ParentIndex,
		Countered:   decoded.Countered,
		Claim:       decoded.Claim,
		Position:    types.NewPositionFromGIndex(decoded.Position),
		Clock:       decoded.Clock,
	}
	if err := game.Append(claim); err != nil {
		return fmt.Errorf("appending claim: %w", err)
	}
	if p.metrics != nil {
		p.metrics.ClaimsAppended.WithLabelValues(game.Address.Hex()).Inc()
	}

	response, err := game.Respond(int(index))
	if err != nil {
		p.log.Warn("respond failed, leaving claim unretried", "proxy", game.Address, "index", index, "err", err)
		return nil
	}
	return p.dispatch(ctx, game, index, response)
}

func (p *Poller) dispatch(ctx context.Context, game *alphabet.Game, index uint64, response types.Response) error {
	var (
		input []byte
		err   error
		kind  string
	)
	switch response.Kind {
	case types.ResponseDoNothing:
		kind = "do_nothing"
	case types.ResponseMove:
		kind = "move"
		if response.Move.IsAttack {
			input, err = bindings.EncodeAttack(new(big.Int).SetUint64(index), response.Move.CounterClaim)
		} else {
			input, err = bindings.EncodeDefend(new(big.Int).SetUint64(index), response.Move.CounterClaim)
		}
	case types.ResponseStep:
		kind = "step"
		step := response.Step
		input, err = bindings.EncodeStep(
			new(big.Int).SetUint64(uint64(step.StateIndex)),
			new(big.Int).SetUint64(uint64(step.ParentIndex)),
			step.IsAttack, step.StateData, step.Proof,
		)
	}
	if p.metrics != nil {
		p.metrics.ResponsesEmitted.WithLabelValues(kind).Inc()
	}
	if err != nil {
		return fmt.Errorf("encoding %s call: %w", kind, err)
	}
	if input == nil {
		return nil
	}
	if err := p.queue.Send(ctx, txmgr.NewPreparedCall(game.Address, input)); err != nil {
		return fmt.Errorf("enqueueing %s call: %w", kind, err)
	}

	if response.Kind == types.ResponseMove && response.Move.Secondary != nil {
		if err := p.dispatchSecondary(ctx, game, response.Move.Secondary); err != nil {
			return fmt.Errorf("dispatching secondary move: %w", err)
		}
	}
	return nil
}

// dispatchSecondary enqueues the secondary attack against a claim's
// grandparent: the game model only ever produces a secondary move as an
// attack, never a defense, so it is always encoded as attack().
func (p *Poller) dispatchSecondary(ctx context.Context, game *alphabet.Game, secondary *types.SecondaryMove) error {
	input, err := bindings.EncodeAttack(new(big.Int).SetUint64(uint64(secondary.ParentIndex)), secondary.CounterClaim)
	if err != nil {
		return fmt.Errorf("encoding secondary attack call: %w", err)
	}
	if p.metrics != nil {
		p.metrics.ResponsesEmitted.WithLabelValues("secondary_move").Inc()
	}
	if err := p.queue.Send(ctx, txmgr.NewPreparedCall(game.Address, input)); err != nil {
		return fmt.Errorf("enqueueing secondary attack call: %w", err)
	}
	return nil
}
