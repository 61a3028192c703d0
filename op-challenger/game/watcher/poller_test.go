package watcher

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethlog "github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/bindings"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/game/fault/alphabet"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/game/fault/types"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/game/state"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/txmgr"
)

// storageL1 answers StorageAt with a fixed claim-array length and routes
// CallContract through a callRouter, letting a test simulate the on-chain
// claim array growing between polls.
type storageL1 struct {
	fakeL1
	router     *callRouter
	claimCount uint64
}

func (l *storageL1) StorageAt(context.Context, common.Address, common.Hash) ([]byte, error) {
	return common.LeftPadBytes(new(big.Int).SetUint64(l.claimCount).Bytes(), 32), nil
}

func (l *storageL1) CallContract(_ context.Context, to common.Address, input []byte) ([]byte, error) {
	var sel [4]byte
	copy(sel[:], input[:4])
	resp, ok := l.router.byAddr[to][sel]
	if !ok {
		return nil, fmt.Errorf("poller test: no response wired for selector %x", sel)
	}
	return resp, nil
}

func rootClaim() types.ClaimData {
	return types.ClaimData{ParentIndex: types.NoParent, Position: types.RootPosition}
}

func TestPollGameNoNewClaimsIsNoop(t *testing.T) {
	addr := common.HexToAddress("0x1")
	game, err := alphabet.New(addr, 0, 4, []byte("abcdefghijklmnop"))
	require.NoError(t, err)
	require.NoError(t, game.Append(rootClaim()))

	l1 := &storageL1{router: newCallRouter(), claimCount: 1}
	st := state.New()
	require.NoError(t, st.Track(game))
	queue := txmgr.NewQueue(gethlog.New(), &recordingSender{}, nil)

	p := NewPoller(gethlog.New(), l1, st, queue, nil, time.Hour)
	require.NoError(t, p.pollGame(context.Background(), game))
	require.Len(t, game.Claims(), 1)
}

func TestPollGameFetchesAndRespondsToNewClaim(t *testing.T) {
	addr := common.HexToAddress("0x2")
	game, err := alphabet.New(addr, 0, 4, []byte("abcdefghijklmnop"))
	require.NoError(t, err)
	require.NoError(t, game.Append(rootClaim()))

	router := newCallRouter()
	router.on(addr, bindings.EncodeClaimDataCall(1), claimDataReturn(t, 0, false, common.Hash{0xaa}, 2, 0))
	l1 := &storageL1{router: router, claimCount: 2}

	st := state.New()
	require.NoError(t, st.Track(game))
	sender := &recordingSender{}
	queue := txmgr.NewQueue(gethlog.New(), sender, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = queue.Run(ctx) }()

	p := NewPoller(gethlog.New(), l1, st, queue, nil, time.Hour)
	require.NoError(t, p.pollGame(ctx, game))
	require.Len(t, game.Claims(), 2)

	// The zero root claim disagrees with the trusted trace too, so the
	// primary attack on claim 1 is followed by a secondary attack on the root.
	require.Eventually(t, func() bool { return sender.count() == 2 }, time.Second, time.Millisecond)
	require.Equal(t, addr, sender.to[0])
}

func TestDispatchEnqueuesSecondaryMoveAsSecondCall(t *testing.T) {
	addr := common.HexToAddress("0x4")
	game, err := alphabet.New(addr, 0, 4, []byte("abcdefghijklmnop"))
	require.NoError(t, err)
	require.NoError(t, game.Append(rootClaim()))

	sender := &recordingSender{}
	queue := txmgr.NewQueue(gethlog.New(), sender, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = queue.Run(ctx) }()

	st := state.New()
	require.NoError(t, st.Track(game))
	p := NewPoller(gethlog.New(), &storageL1{router: newCallRouter()}, st, queue, nil, time.Hour)

	secondary := &types.SecondaryMove{ParentIndex: 0, CounterClaim: types.Claim(common.Hash{0x11})}
	resp := types.MoveTo(true, types.Claim(common.Hash{0x22}), secondary)

	require.NoError(t, p.dispatch(ctx, game, 1, resp))

	require.Eventually(t, func() bool { return sender.count() == 2 }, time.Second, time.Millisecond)
	require.Equal(t, addr, sender.to[0])
	require.Equal(t, addr, sender.to[1])

	wantPrimary, err := bindings.EncodeAttack(big.NewInt(1), resp.Move.CounterClaim)
	require.NoError(t, err)
	wantSecondary, err := bindings.EncodeAttack(big.NewInt(0), secondary.CounterClaim)
	require.NoError(t, err)
	require.Equal(t, wantPrimary, sender.in[0])
	require.Equal(t, wantSecondary, sender.in[1])
}

func TestPollGameLocalAheadOfChainLogsAndSkips(t *testing.T) {
	addr := common.HexToAddress("0x3")
	game, err := alphabet.New(addr, 0, 4, []byte("abcdefghijklmnop"))
	require.NoError(t, err)
	require.NoError(t, game.Append(rootClaim()))
	require.NoError(t, game.Append(types.ClaimData{ParentIndex: 0, Position: types.RootPosition.Left()}))

	l1 := &storageL1{router: newCallRouter(), claimCount: 1}
	st := state.New()
	require.NoError(t, st.Track(game))
	queue := txmgr.NewQueue(gethlog.New(), &recordingSender{}, nil)

	p := NewPoller(gethlog.New(), l1, st, queue, nil, time.Hour)
	require.NoError(t, p.pollGame(context.Background(), game))
}
