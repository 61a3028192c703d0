package watcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethlog "github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/bindings"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/game/fault/alphabet"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/game/fault/types"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/game/state"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/metrics"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/txmgr"
)

// L1Caller is the read surface the factory and oracle subscriptions need
// from an L1 client: subscribing to logs and performing eth_calls against
// proxies.
type L1Caller interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	CallContract(ctx context.Context, to common.Address, input []byte) ([]byte, error)
	StorageAt(ctx context.Context, addr common.Address, slot common.Hash) ([]byte, error)
	Address() common.Address
	SignHash(digest common.Hash) (r, s [32]byte, v uint8, err error)
}

// FactorySubscriber watches the DisputeGameFactory for DisputeGameCreated
// logs and routes each one by game type.
type FactorySubscriber struct {
	log      gethlog.Logger
	l1       L1Caller
	factory  common.Address
	state    *state.GlobalState
	queue    *txmgr.Queue
	trusted  TrustedComparer
	metrics  *metrics.Metrics
	maxDepth uint64
	trace    []byte
}

// NewFactorySubscriber constructs a FactorySubscriber. trace and maxDepth
// describe the agent's own trusted execution trace, applied to every fault
// game this agent tracks: this is a single-trace demo scope, since deriving
// a distinct trace per L2 block would require a VM oracle out of scope here.
func NewFactorySubscriber(log gethlog.Logger, l1 L1Caller, factory common.Address, st *state.GlobalState, queue *txmgr.Queue, trusted TrustedComparer, m *metrics.Metrics, maxDepth uint64, trace []byte) *FactorySubscriber {
	return &FactorySubscriber{
		log:      log,
		l1:       l1,
		factory:  factory,
		state:    st,
		queue:    queue,
		trusted:  trusted,
		metrics:  m,
		maxDepth: maxDepth,
		trace:    trace,
	}
}

// Run subscribes to DisputeGameCreated logs from factory and processes them
// until ctx is canceled or the subscription errors.
func (s *FactorySubscriber) Run(ctx context.Context) error {
	logs := make(chan types.Log, 256)
	query := ethereum.FilterQuery{
		Addresses: []common.Address{s.factory},
		Topics:    [][]common.Hash{{DisputeGameCreatedTopic0}},
	}
	sub, err := s.l1.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return fmt.Errorf("watcher: subscribing to DisputeGameCreated: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case l := <-logs:
			if err := s.handle(ctx, l); err != nil {
				if errors.Is(err, ErrProtocolIntegrity) {
					return fmt.Errorf("watcher: fatal DisputeGameCreated handling error: %w", err)
				}
				s.log.Error("handling DisputeGameCreated failed", "err", err, "tx", l.TxHash)
			}
		case err := <-sub.Err():
			return fmt.Errorf("watcher: DisputeGameCreated subscription: %w", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func decodeDisputeGameCreated(l types.Log) (disputeGameCreated, error) {
	if len(l.Topics) < 4 {
		return disputeGameCreated{}, fmt.Errorf("%w: DisputeGameCreated log has %d topics, want 4", ErrProtocolIntegrity, len(l.Topics))
	}
	return disputeGameCreated{
		Proxy:     common.BytesToAddress(l.Topics[1].Bytes()),
		GameType:  l.Topics[2][31],
		RootClaim: l.Topics[3],
	}, nil
}

func (s *FactorySubscriber) handle(ctx context.Context, l types.Log) error {
	evt, err := decodeDisputeGameCreated(l)
	if err != nil {
		return err
	}
	gameType, err := types.GameTypeFromByte(evt.GameType)
	if err != nil {
		s.log.Warn("unknown game type in DisputeGameCreated, ignoring", "proxy", evt.Proxy, "raw_type", evt.GameType)
		return nil
	}

	switch gameType {
	case types.GameTypeFault:
		return s.handleFault(ctx, evt)
	case types.GameTypeOutputAttestation:
		return s.handleOutputAttestation(ctx, evt)
	case types.GameTypeValidity:
		s.log.Debug("ignoring validity game", "proxy", evt.Proxy)
		return nil
	default:
		s.log.Warn("unhandled game type", "proxy", evt.Proxy, "type", gameType)
		return nil
	}
}

func (s *FactorySubscriber) handleFault(ctx context.Context, evt disputeGameCreated) error {
	if s.state.IsTracked(evt.Proxy) {
		return nil
	}

	createdAtData, err := s.l1.CallContract(ctx, evt.Proxy, bindings.EncodeCreatedAtCall())
	if err != nil {
		return fmt.Errorf("calling createdAt on %s: %w", evt.Proxy, err)
	}
	createdAt, err := bindings.DecodeCreatedAt(createdAtData)
	if err != nil {
		return fmt.Errorf("decoding createdAt: %w", err)
	}

	rootData, err := s.l1.CallContract(ctx, evt.Proxy, bindings.EncodeClaimDataCall(0))
	if err != nil {
		return fmt.Errorf("calling claimData(0) on %s: %w", evt.Proxy, err)
	}
	root, err := bindings.DecodeClaimData(rootData)
	if err != nil {
		return fmt.Errorf("decoding claimData(0): %w", err)
	}

	game, err := alphabet.New(evt.Proxy, createdAt, s.maxDepth, s.trace)
	if err != nil {
		return fmt.Errorf("constructing alphabet game: %w", err)
	}
	if err := game.Append(types.ClaimData{
		ParentIndex: types.NoParent,
		Countered:   root.Countered,
		Claim:       root.Claim,
		Position:    types.NewPositionFromGIndex(root.Position),
		Clock:       root.Clock,
	}); err != nil {
		return fmt.Errorf("appending root claim: %w", err)
	}

	if err := s.state.Track(game); err != nil {
		return fmt.Errorf("tracking game %s: %w", evt.Proxy, err)
	}
	if s.metrics != nil {
		s.metrics.GamesTracked.Set(float64(s.state.Len()))
		s.metrics.ClaimsAppended.WithLabelValues(evt.Proxy.Hex()).Inc()
	}
	s.log.Info("tracking new fault game", "proxy", evt.Proxy, "created_at", createdAt)
	return nil
}

func (s *FactorySubscriber) handleOutputAttestation(ctx context.Context, evt disputeGameCreated) error {
	challengesData, err := s.l1.CallContract(ctx, evt.Proxy, bindings.EncodeChallengesCall(s.l1.Address()))
	if err != nil {
		return fmt.Errorf("calling challenges(self) on %s: %w", evt.Proxy, err)
	}
	creator, err := bindings.DecodeChallengesResult(challengesData)
	if err != nil {
		return fmt.Errorf("decoding challenges result: %w", err)
	}
	if creator == s.l1.Address() {
		s.log.Debug("output-attestation game is self-authored, skipping", "proxy", evt.Proxy)
		return nil
	}

	rootData, err := s.l1.CallContract(ctx, evt.Proxy, bindings.EncodeRootClaimCall())
	if err != nil {
		return fmt.Errorf("calling ROOT_CLAIM on %s: %w", evt.Proxy, err)
	}
	rootClaim, err := bindings.DecodeRootClaim(rootData)
	if err != nil {
		return fmt.Errorf("decoding ROOT_CLAIM: %w", err)
	}

	blockData, err := s.l1.CallContract(ctx, evt.Proxy, bindings.EncodeL2BlockNumberCall())
	if err != nil {
		return fmt.Errorf("calling L2_BLOCK_NUMBER on %s: %w", evt.Proxy, err)
	}
	blockNumber, err := bindings.DecodeL2BlockNumber(blockData)
	if err != nil {
		return fmt.Errorf("decoding L2_BLOCK_NUMBER: %w", err)
	}

	match, _, err := s.trusted.CompareOutputRoot(ctx, rootClaim.Hex(), blockNumber.Uint64())
	if err != nil {
		s.log.Warn("trusted output comparison failed, skipping challenge", "proxy", evt.Proxy, "err", err)
		if s.metrics != nil {
			s.metrics.TrustedComparison.WithLabelValues("error").Inc()
		}
		return nil
	}
	if match {
		if s.metrics != nil {
			s.metrics.TrustedComparison.WithLabelValues("match").Inc()
		}
		s.log.Debug("output-attestation root matches trusted node", "proxy", evt.Proxy)
		return nil
	}
	if s.metrics != nil {
		s.metrics.TrustedComparison.WithLabelValues("mismatch").Inc()
	}

	r, sSig, v, err := s.l1.SignHash(rootClaim)
	if err != nil {
		return fmt.Errorf("signing root claim: %w", err)
	}
	signature := make([]byte, 0, 65)
	signature = append(signature, r[:]...)
	signature = append(signature, sSig[:]...)
	signature = append(signature, v)

	input, err := bindings.EncodeChallenge(signature)
	if err != nil {
		return fmt.Errorf("encoding challenge call: %w", err)
	}
	call := txmgr.NewPreparedCall(evt.Proxy, input)
	if err := s.queue.Send(ctx, call); err != nil {
		return fmt.Errorf("enqueueing challenge call: %w", err)
	}
	s.log.Info("enqueued challenge", "proxy", evt.Proxy, "root_claim", rootClaim)
	return nil
}
