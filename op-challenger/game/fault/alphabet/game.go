// Package alphabet implements the toy "alphabet" fault dispute game: an
// execution trace that is simply a sequence of bytes, and a claim at a
// position that commits to keccak256(abi.encode(trace_index, trace_byte)).
// It is the sole Game/TraceProvider implementation this agent supports;
// cannon and any real fault-proof VM are out of scope.
package alphabet

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/bindings"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/game/fault/types"
)

// claimCacheSize bounds the keccak256 memoization cache; a depth-64 trace
// never has more positions than this agent will realistically track for a
// single game, and the cache only ever holds recently-computed claims.
const claimCacheSize = 4096

// Game tracks a single alphabet fault dispute game: its on-chain claim
// array as observed by the watcher, and the locally trusted trace used to
// decide how to respond to each claim.
type Game struct {
	Address   common.Address
	CreatedAt uint64
	MaxDepth  uint64

	// trace is the locally trusted execution trace, one byte per leaf.
	// Immutable after construction, so it is safe to read without holding mu.
	trace []byte

	mu    sync.RWMutex
	state []types.ClaimData

	claimCache *lru.Cache[string, types.Claim]
}

// New constructs an alphabet Game for a freshly observed dispute game. The
// root claim is appended by the caller via Append, exactly like any other
// observed claim.
func New(address common.Address, createdAt uint64, maxDepth uint64, trace []byte) (*Game, error) {
	if len(trace) == 0 {
		return nil, fmt.Errorf("alphabet: empty trace")
	}
	cache, err := lru.New[string, types.Claim](claimCacheSize)
	if err != nil {
		return nil, fmt.Errorf("alphabet: building claim cache: %w", err)
	}
	return &Game{
		Address:    address,
		CreatedAt:  createdAt,
		MaxDepth:   maxDepth,
		trace:      trace,
		claimCache: cache,
	}, nil
}

// Claims returns a defensive copy of every claim tracked so far, in the
// same order as the on-chain claim array.
func (g *Game) Claims() []types.ClaimData {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]types.ClaimData, len(g.state))
	copy(out, g.state)
	return out
}

// Append adds a newly observed claim to local state, enforcing that the
// claim array can only grow by referencing an already-known parent: the
// root claim (ParentIndex == NoParent) may only be appended to an empty
// game, and every other claim must reference an index strictly below its
// own new index.
func (g *Game) Append(claim types.ClaimData) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	next := uint32(len(g.state))
	if claim.IsRoot() {
		if next != 0 {
			return fmt.Errorf("alphabet: root claim appended to non-empty game (have %d claims)", next)
		}
	} else if claim.ParentIndex >= next {
		return fmt.Errorf("alphabet: claim parent index %d is not below its own index %d", claim.ParentIndex, next)
	}
	g.state = append(g.state, claim)
	return nil
}

// Respond determines the Response to the claim at parentIndex: DoNothing
// if the claim matches the locally trusted trace, otherwise a Move
// (attacking the claim, and optionally its grandparent too) or, once the
// move would exceed the game's maximum depth, a Step.
func (g *Game) Respond(parentIndex int) (types.Response, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if parentIndex < 0 || parentIndex >= len(g.state) {
		return types.Response{}, fmt.Errorf("alphabet: %w: %d", types.ErrClaimNotFound, parentIndex)
	}
	parentClaim := g.state[parentIndex]

	ourParentClaim, err := g.claimAtLocked(parentClaim.Position)
	if err != nil {
		return types.Response{}, err
	}
	if ourParentClaim == parentClaim.Claim {
		return types.DoNothingResponse(), nil
	}

	isAttack := false
	var secondaryMove *types.Position

	if parentClaim.IsRoot() {
		isAttack = true
	} else {
		if parentClaim.ParentIndex >= uint32(len(g.state)) {
			return types.Response{}, fmt.Errorf("alphabet: %w: grandparent index %d", types.ErrClaimNotFound, parentClaim.ParentIndex)
		}
		grandparentClaim := g.state[parentClaim.ParentIndex]
		ourGrandparentClaim, err := g.claimAtLocked(grandparentClaim.Position)
		if err != nil {
			return types.Response{}, err
		}

		isAttack = true
		if ourGrandparentClaim != grandparentClaim.Claim {
			pos := grandparentClaim.Position.MakeMove(isAttack)
			secondaryMove = &pos
		}
	}

	movePos := parentClaim.Position.MakeMove(isAttack)

	if movePos.Depth() > g.MaxDepth {
		return g.buildStep(parentIndex, parentClaim, movePos, isAttack)
	}

	counterClaim, err := g.claimAtLocked(movePos)
	if err != nil {
		return types.Response{}, err
	}

	// The secondary move against the grandparent is best-effort: a failure
	// to compute its counter-claim must not suppress the primary move. A
	// secondary move that would itself descend past the maximum game depth
	// is dropped the same way, rather than attempted.
	var secondary *types.SecondaryMove
	if secondaryMove != nil && secondaryMove.Depth() <= g.MaxDepth {
		if secondaryClaim, err := g.claimAtLocked(*secondaryMove); err == nil {
			secondary = &types.SecondaryMove{
				ParentIndex:  parentClaim.ParentIndex,
				CounterClaim: secondaryClaim,
			}
		}
	}

	return types.MoveTo(isAttack, counterClaim, secondary), nil
}

// buildStep constructs the Step response once movePos has descended past
// the maximum game depth. When the move's index at depth is 0, it attacks
// or defends the absolute prestate and needs no local state index or
// preimage. Otherwise it must locate the claim in local state that commits
// to the same trace index as the leaf being stepped at: it walks up from
// that leaf while the parent's right-most descendant is still the leaf
// itself, landing on the highest ancestor position that still pins down
// that one trace index, then looks up the local claim recorded at exactly
// that position.
func (g *Game) buildStep(parentIndex int, parentClaim types.ClaimData, movePos types.Position, isAttack bool) (types.Response, error) {
	if movePos.IndexAtDepth().Sign() == 0 {
		return types.StepTo(0, uint32(parentIndex), isAttack, nil, nil), nil
	}

	var leafPos types.Position
	if isAttack {
		leafPos = types.NewPositionFromGIndex(new(big.Int).Sub(parentClaim.Position.ToGIndex(), big.NewInt(1)))
	} else {
		leafPos = types.NewPositionFromGIndex(new(big.Int).Add(parentClaim.Position.ToGIndex(), big.NewInt(1)))
	}

	statePos := leafPos
	for {
		parent := statePos.Parent()
		if !parent.RightIndex(g.MaxDepth).Equal(leafPos) {
			break
		}
		statePos = parent
	}

	stateIndex, err := g.findStateIndex(statePos)
	if err != nil {
		return types.Response{}, err
	}

	preimage, proof, err := g.GetStepData(context.Background(), statePos)
	if err != nil {
		return types.Response{}, err
	}

	return types.StepTo(stateIndex, uint32(parentIndex), isAttack, preimage, proof), nil
}

// findStateIndex returns the index of the local claim that was recorded at
// exactly pos, the state the step call needs as its pre- or post-state.
func (g *Game) findStateIndex(pos types.Position) (uint32, error) {
	for i, claim := range g.state {
		if claim.Position.Equal(pos) {
			return uint32(i), nil
		}
	}
	return 0, types.ErrNoStepState
}

// claimAtLocked computes the claim value at pos, assuming mu is already held.
func (g *Game) claimAtLocked(pos types.Position) (types.Claim, error) {
	key := pos.String()
	if cached, ok := g.claimCache.Get(key); ok {
		return cached, nil
	}

	traceByte, err := g.stateAtLocked(pos)
	if err != nil {
		return types.Claim{}, err
	}

	traceIndex := pos.TraceIndex(g.MaxDepth)
	encoded, err := bindings.EncodeUint256Pair(traceIndex, new(big.Int).SetUint64(uint64(traceByte)))
	if err != nil {
		return types.Claim{}, fmt.Errorf("alphabet: encoding claim preimage: %w", err)
	}
	claim := types.Claim(common.BytesToHash(crypto.Keccak256(encoded)))
	g.claimCache.Add(key, claim)
	return claim, nil
}

// stateAtLocked returns the trace byte committed to by pos, assuming mu is
// already held (read or write).
func (g *Game) stateAtLocked(pos types.Position) (byte, error) {
	traceIndex := pos.TraceIndex(g.MaxDepth)
	if !traceIndex.IsUint64() || traceIndex.Uint64() >= uint64(len(g.trace)) {
		return 0, fmt.Errorf("alphabet: %w: %s", types.ErrInvalidTraceIndex, traceIndex)
	}
	return g.trace[traceIndex.Uint64()], nil
}

// Get implements types.TraceProvider.
func (g *Game) Get(_ context.Context, pos types.Position) (types.Claim, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.claimAtLocked(pos)
}

// GetStepData implements types.TraceProvider: the preimage is the ABI-
// encoded (trace_index, trace_byte) pair consumed by step(), and the proof
// is always empty since the alphabet trace carries no merkle commitment.
func (g *Game) GetStepData(_ context.Context, pos types.Position) ([]byte, []byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	traceByte, err := g.stateAtLocked(pos)
	if err != nil {
		return nil, nil, err
	}
	traceIndex := pos.TraceIndex(g.MaxDepth)
	preimage, err := bindings.EncodeUint256Pair(traceIndex, new(big.Int).SetUint64(uint64(traceByte)))
	if err != nil {
		return nil, nil, fmt.Errorf("alphabet: encoding step preimage: %w", err)
	}
	return preimage, nil, nil
}

// AbsolutePreStateCommitment implements types.TraceProvider. By convention
// the absolute prestate commits to the preimage of trace index 0 under a
// sentinel index of all-ones, matching how the real protocol's prestate
// claim is distinguished from any claim a move can reach.
func (g *Game) AbsolutePreStateCommitment(_ context.Context) (types.Claim, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	sentinelIndex := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 64), big.NewInt(1))
	encoded, err := bindings.EncodeUint256Pair(sentinelIndex, big.NewInt(0))
	if err != nil {
		return types.Claim{}, fmt.Errorf("alphabet: encoding absolute prestate preimage: %w", err)
	}
	return types.Claim(common.BytesToHash(crypto.Keccak256(encoded))), nil
}
