// Package txmgr implements the serialized outbound transaction dispatcher:
// a single consumer draining a bounded queue of PreparedCalls, estimating
// gas, pricing, signing and submitting each one in turn. Adapted from the
// op-service Queue[T] pattern, simplified to this agent's single-consumer,
// never-retry policy.
package txmgr

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethlog "github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/metrics"
)

// capacity is the fixed size of the outbound call queue.
const capacity = 128

// Sender is the capability the dispatcher needs from an L1 client: gas
// estimation, gas price discovery, and submitting a signed transaction.
type Sender interface {
	EstimateGas(ctx context.Context, to common.Address, input []byte, value *big.Int) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	Send(ctx context.Context, to common.Address, input []byte, value *big.Int, gas uint64, gasPrice *big.Int) (*types.Transaction, error)
}

// Queue owns the receive end of the bounded outbound call queue described
// above. Producers call Send; a single background goroutine, started by
// Run, drains it.
type Queue struct {
	log     gethlog.Logger
	sender  Sender
	metrics *metrics.Metrics
	calls   chan PreparedCall
}

// NewQueue constructs a Queue with the fixed capacity of 128 pending calls.
// m may be nil, in which case no metrics are recorded.
func NewQueue(log gethlog.Logger, sender Sender, m *metrics.Metrics) *Queue {
	return &Queue{
		log:     log,
		sender:  sender,
		metrics: m,
		calls:   make(chan PreparedCall, capacity),
	}
}

// Send enqueues call, blocking if the queue is full. Producers are
// expected to call this from watcher/poller goroutines; ctx cancellation
// unblocks a send against a full queue without enqueuing.
func (q *Queue) Send(ctx context.Context, call PreparedCall) error {
	select {
	case q.calls <- call:
		if q.metrics != nil {
			q.metrics.CallsEnqueued.Inc()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is canceled, processing one call at a
// time. It never returns an error on a failed call: per the dispatcher's
// soft-failure policy, a failed gas estimate or submission is logged and
// dropped, relying on the producing component to re-observe the
// triggering on-chain state on its next pass.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case call := <-q.calls:
			q.process(ctx, call)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *Queue) process(ctx context.Context, call PreparedCall) {
	l := q.log.New("call_id", call.ID, "to", call.To)

	gas, err := q.sender.EstimateGas(ctx, call.To, call.Input, call.Value)
	if err != nil {
		l.Warn("dropping call: gas estimation failed", "err", err)
		if q.metrics != nil {
			q.metrics.CallsDropped.WithLabelValues("estimate_failed").Inc()
		}
		return
	}
	call.Gas = gas

	gasPrice, err := q.sender.SuggestGasPrice(ctx)
	if err != nil {
		l.Warn("gas price suggestion failed, flooring to 1 wei", "err", err)
		gasPrice = big.NewInt(1)
	} else {
		gasPrice = new(big.Int).Mul(gasPrice, big.NewInt(2))
	}
	call.GasPrice = gasPrice

	tx, err := q.sender.Send(ctx, call.To, call.Input, call.Value, call.Gas, call.GasPrice)
	if err != nil {
		l.Warn("dropping call: submission failed", "err", err)
		if q.metrics != nil {
			q.metrics.CallsDropped.WithLabelValues("submit_failed").Inc()
		}
		return
	}
	l.Info("submitted call", "tx_hash", tx.Hash())
	if q.metrics != nil {
		q.metrics.CallsSubmitted.Inc()
	}
}
