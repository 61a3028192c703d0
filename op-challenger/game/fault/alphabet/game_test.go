package alphabet

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/bindings"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/game/fault/types"
)

const testTrace = "abcdefghijklmnop" // 16 bytes, fits a depth-4 tree exactly

func newTestGame(t *testing.T) *Game {
	t.Helper()
	g, err := New(common.HexToAddress("0x1"), 0, 4, []byte(testTrace))
	require.NoError(t, err)
	return g
}

func claimAt(t *testing.T, g *Game, traceIndex uint64, b byte) types.Claim {
	t.Helper()
	encoded, err := bindings.EncodeUint256Pair(new(big.Int).SetUint64(traceIndex), new(big.Int).SetUint64(uint64(b)))
	require.NoError(t, err)
	return types.Claim(common.BytesToHash(crypto.Keccak256(encoded)))
}

func TestNewRejectsEmptyTrace(t *testing.T) {
	_, err := New(common.HexToAddress("0x1"), 0, 4, nil)
	require.Error(t, err)
}

func TestRootOnlyGameHonestRootDoesNothing(t *testing.T) {
	g := newTestGame(t)
	honestRoot := claimAt(t, g, 15, testTrace[15])
	require.NoError(t, g.Append(types.ClaimData{
		ParentIndex: types.NoParent,
		Claim:       honestRoot,
		Position:    types.RootPosition,
	}))

	resp, err := g.Respond(0)
	require.NoError(t, err)
	require.Equal(t, types.ResponseDoNothing, resp.Kind)
}

func TestRootOnlyGameDishonestRootIsAttacked(t *testing.T) {
	g := newTestGame(t)
	require.NoError(t, g.Append(types.ClaimData{
		ParentIndex: types.NoParent,
		Claim:       common.Hash{0xff},
		Position:    types.RootPosition,
	}))

	resp, err := g.Respond(0)
	require.NoError(t, err)
	require.Equal(t, types.ResponseMove, resp.Kind)
	require.True(t, resp.Move.IsAttack)
}

func TestLeafStepWhenMoveExceedsMaxDepth(t *testing.T) {
	g := newTestGame(t)

	// Dishonest root claim; walk dishonest claims straight down the attack
	// path to maxDepth so the next move would exceed it and a step is
	// produced instead.
	require.NoError(t, g.Append(types.ClaimData{
		ParentIndex: types.NoParent,
		Claim:       common.Hash{0xff},
		Position:    types.RootPosition,
	}))
	resp, err := g.Respond(0)
	require.NoError(t, err)
	require.Equal(t, types.ResponseMove, resp.Kind)

	pos := types.RootPosition
	parentIdx := uint32(0)
	idx := uint32(1)
	for {
		pos = pos.MakeMove(true)
		require.NoError(t, g.Append(types.ClaimData{
			ParentIndex: parentIdx,
			Claim:       common.Hash{byte(idx)},
			Position:    pos,
		}))
		if pos.Depth() > g.MaxDepth {
			break
		}
		r, err := g.Respond(int(idx))
		require.NoError(t, err)
		if r.Kind == types.ResponseStep {
			break
		}
		parentIdx = idx
		idx++
	}

	resp, err = g.Respond(int(idx))
	require.NoError(t, err)
	require.Equal(t, types.ResponseStep, resp.Kind)
	require.Equal(t, idx, resp.Step.ParentIndex)
}

// TestGrandparentDisagreementProducesSecondaryMove builds a three-claim
// chain (root, its attacker, and that attacker's attacker) where both the
// immediate claim and its grandparent disagree with the locally trusted
// trace, and asserts Respond produces both the primary move and a
// secondary move against the grandparent.
func TestGrandparentDisagreementProducesSecondaryMove(t *testing.T) {
	g := newTestGame(t)
	require.NoError(t, g.Append(types.ClaimData{ParentIndex: types.NoParent, Position: types.RootPosition}))

	grandparentPos := types.RootPosition.MakeMove(true) // gindex 2, depth 1
	require.NoError(t, g.Append(types.ClaimData{
		ParentIndex: 0,
		Claim:       common.Hash{0xfe}, // disagrees with the real claim at trace index 7
		Position:    grandparentPos,
	}))

	childPos := grandparentPos.MakeMove(true) // gindex 4, depth 2
	require.NoError(t, g.Append(types.ClaimData{
		ParentIndex: 1,
		Claim:       common.Hash{0xfd}, // disagrees with the real claim at trace index 3
		Position:    childPos,
	}))

	resp, err := g.Respond(2)
	require.NoError(t, err)
	require.Equal(t, types.ResponseMove, resp.Kind)
	require.True(t, resp.Move.IsAttack)
	require.Equal(t, claimAt(t, g, 1, testTrace[1]), resp.Move.CounterClaim)

	require.NotNil(t, resp.Move.Secondary)
	require.Equal(t, uint32(1), resp.Move.Secondary.ParentIndex)
	require.Equal(t, claimAt(t, g, 3, testTrace[3]), resp.Move.Secondary.CounterClaim)
}

// TestSecondaryMoveDroppedWhenGrandparentIsAtMaxDepth exercises the case
// where the grandparent claim already sits at the game's maximum depth, so
// a secondary move against it would descend past maxDepth. The secondary
// is dropped rather than attempted, and the primary move must still be
// returned unharmed.
func TestSecondaryMoveDroppedWhenGrandparentIsAtMaxDepth(t *testing.T) {
	g, err := New(common.HexToAddress("0x1"), 0, 2, []byte("abcd"))
	require.NoError(t, err)
	require.NoError(t, g.Append(types.ClaimData{ParentIndex: types.NoParent, Position: types.RootPosition}))

	leafPos := types.NewPositionFromGIndex(big.NewInt(4)) // depth 2, equal to maxDepth
	require.NoError(t, g.Append(types.ClaimData{
		ParentIndex: 0,
		Claim:       common.Hash{0xfe}, // disagrees with the real claim at trace index 0
		Position:    leafPos,
	}))

	parentPos := types.RootPosition.MakeMove(true) // gindex 2, depth 1
	require.NoError(t, g.Append(types.ClaimData{
		ParentIndex: 1,
		Claim:       common.Hash{0xff}, // disagrees with the real claim at trace index 1
		Position:    parentPos,
	}))

	resp, err := g.Respond(2)
	require.NoError(t, err)
	require.Equal(t, types.ResponseMove, resp.Kind)
	require.True(t, resp.Move.IsAttack)
	require.Equal(t, claimAt(t, g, 0, "abcd"[0]), resp.Move.CounterClaim)
	require.Nil(t, resp.Move.Secondary)
}

func TestAppendRejectsSecondRootClaim(t *testing.T) {
	g := newTestGame(t)
	require.NoError(t, g.Append(types.ClaimData{ParentIndex: types.NoParent, Position: types.RootPosition}))
	err := g.Append(types.ClaimData{ParentIndex: types.NoParent, Position: types.RootPosition})
	require.Error(t, err)
}

func TestAppendRejectsForwardParentReference(t *testing.T) {
	g := newTestGame(t)
	err := g.Append(types.ClaimData{ParentIndex: 5, Position: types.RootPosition.Left()})
	require.Error(t, err)
}

func TestClaimsReturnsDefensiveCopy(t *testing.T) {
	g := newTestGame(t)
	require.NoError(t, g.Append(types.ClaimData{ParentIndex: types.NoParent, Position: types.RootPosition}))
	snap := g.Claims()
	snap[0].Claim = common.Hash{0x42}
	require.NotEqual(t, snap[0].Claim, g.Claims()[0].Claim)
}

func TestAbsolutePreStateCommitmentIsStable(t *testing.T) {
	g := newTestGame(t)
	a, err := g.AbsolutePreStateCommitment(context.Background())
	require.NoError(t, err)
	b, err := g.AbsolutePreStateCommitment(context.Background())
	require.NoError(t, err)
	require.Equal(t, a, b)
}
