package watcher

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethlog "github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/bindings"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/client"
	faulttypes "github.com/ethereum-optimism/op-challenger-agent/op-challenger/game/fault/types"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/metrics"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/txmgr"
)

// MempoolChecker reports whether a matching create() call is already
// pending, to avoid enqueueing a duplicate.
type MempoolChecker interface {
	HasPendingCreate(ctx context.Context, factory common.Address, gameType uint8, rootClaim common.Hash) (bool, error)
}

// TrustedComparer compares an untrusted on-chain output root against the
// trusted L2 node. Satisfied by *client.TrustedClient; an interface here so
// the factory/oracle subscribers are exercisable against a fake.
type TrustedComparer interface {
	CompareOutputRoot(ctx context.Context, untrustedRoot string, blockNumber uint64) (bool, client.OutputAtBlockResponse, error)
}

// OracleSubscriber watches the L2OutputOracle for OutputProposed logs,
// compares each proposed root against the trusted L2 node, and synthesizes
// a fault-game create() call on disagreement.
type OracleSubscriber struct {
	log     gethlog.Logger
	l1      L1Caller
	mempool MempoolChecker
	oracle  common.Address
	factory common.Address
	trusted TrustedComparer
	queue   *txmgr.Queue
	metrics *metrics.Metrics
}

// NewOracleSubscriber constructs an OracleSubscriber.
func NewOracleSubscriber(log gethlog.Logger, l1 L1Caller, mempool MempoolChecker, oracle, factory common.Address, trusted TrustedComparer, queue *txmgr.Queue, m *metrics.Metrics) *OracleSubscriber {
	return &OracleSubscriber{
		log:     log,
		l1:      l1,
		mempool: mempool,
		oracle:  oracle,
		factory: factory,
		trusted: trusted,
		queue:   queue,
		metrics: m,
	}
}

// Run subscribes to OutputProposed logs from oracle and processes them
// until ctx is canceled or the subscription errors.
func (s *OracleSubscriber) Run(ctx context.Context) error {
	logs := make(chan types.Log, 256)
	query := ethereum.FilterQuery{
		Addresses: []common.Address{s.oracle},
		Topics:    [][]common.Hash{{OutputProposedTopic0}},
	}
	sub, err := s.l1.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return fmt.Errorf("watcher: subscribing to OutputProposed: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case l := <-logs:
			if err := s.handle(ctx, l); err != nil {
				if errors.Is(err, ErrProtocolIntegrity) {
					return fmt.Errorf("watcher: fatal OutputProposed handling error: %w", err)
				}
				s.log.Error("handling OutputProposed failed", "err", err, "tx", l.TxHash)
			}
		case err := <-sub.Err():
			return fmt.Errorf("watcher: OutputProposed subscription: %w", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func decodeOutputProposed(l types.Log) (outputProposed, error) {
	if len(l.Topics) < 4 {
		return outputProposed{}, fmt.Errorf("%w: OutputProposed log has %d topics, want 4", ErrProtocolIntegrity, len(l.Topics))
	}
	return outputProposed{
		OutputRoot:    l.Topics[1],
		L2BlockNumber: binary.BigEndian.Uint64(l.Topics[3][24:32]),
	}, nil
}

func (s *OracleSubscriber) handle(ctx context.Context, l types.Log) error {
	evt, err := decodeOutputProposed(l)
	if err != nil {
		return err
	}

	match, trusted, err := s.trusted.CompareOutputRoot(ctx, evt.OutputRoot.Hex(), evt.L2BlockNumber)
	if err != nil {
		s.log.Warn("trusted output comparison failed, skipping", "err", err, "l2_block", evt.L2BlockNumber)
		if s.metrics != nil {
			s.metrics.TrustedComparison.WithLabelValues("error").Inc()
		}
		return nil
	}
	if match {
		if s.metrics != nil {
			s.metrics.TrustedComparison.WithLabelValues("match").Inc()
		}
		s.log.Debug("proposed output root matches trusted node", "l2_block", evt.L2BlockNumber, "root", evt.OutputRoot)
		return nil
	}
	if s.metrics != nil {
		s.metrics.TrustedComparison.WithLabelValues("mismatch").Inc()
	}
	s.log.Info("proposed output root disagrees with trusted node", "l2_block", evt.L2BlockNumber,
		"proposed", evt.OutputRoot, "trusted", trusted.OutputRoot)

	pending, err := s.mempool.HasPendingCreate(ctx, s.factory, uint8(faulttypes.GameTypeFault), evt.OutputRoot)
	if err != nil {
		return fmt.Errorf("checking mempool for pending create: %w", err)
	}
	if pending {
		s.log.Debug("skipping create: matching call already pending", "l2_block", evt.L2BlockNumber)
		return nil
	}

	extraData, err := bindings.EncodeUint256(new(big.Int).SetUint64(evt.L2BlockNumber))
	if err != nil {
		return fmt.Errorf("encoding extraData: %w", err)
	}

	input, err := bindings.EncodeCreate(uint8(faulttypes.GameTypeFault), common.Hash{}, extraData)
	if err != nil {
		return fmt.Errorf("encoding create call: %w", err)
	}
	call := txmgr.NewPreparedCall(s.factory, input)
	if err := s.queue.Send(ctx, call); err != nil {
		return fmt.Errorf("enqueueing create call: %w", err)
	}
	s.log.Info("enqueued create(Fault) for disagreeing output", "l2_block", evt.L2BlockNumber)
	return nil
}
