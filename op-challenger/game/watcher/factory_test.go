package watcher

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethlog "github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/bindings"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/game/fault/alphabet"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/game/state"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/txmgr"
)

// callRouter answers CallContract by matching the 4-byte selector of the
// call's input, letting a test wire up a fixed response per view function
// without depending on a live contract.
type callRouter struct {
	byAddr map[common.Address]map[[4]byte][]byte
}

func newCallRouter() *callRouter {
	return &callRouter{byAddr: make(map[common.Address]map[[4]byte][]byte)}
}

func (r *callRouter) on(addr common.Address, input []byte, response []byte) {
	var sel [4]byte
	copy(sel[:], input[:4])
	if r.byAddr[addr] == nil {
		r.byAddr[addr] = make(map[[4]byte][]byte)
	}
	r.byAddr[addr][sel] = response
}

type routedL1 struct {
	fakeL1
	router *callRouter
	addr   common.Address
}

func (r *routedL1) CallContract(_ context.Context, to common.Address, input []byte) ([]byte, error) {
	var sel [4]byte
	copy(sel[:], input[:4])
	resp, ok := r.router.byAddr[to][sel]
	if !ok {
		return nil, fmt.Errorf("routedL1: no response wired for %s selector %x", to, sel)
	}
	return resp, nil
}

func (r *routedL1) Address() common.Address { return r.addr }

func uint256Word(v uint64) []byte {
	return common.LeftPadBytes(new(big.Int).SetUint64(v).Bytes(), 32)
}

func addressWord(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}

func claimDataReturn(t *testing.T, parentIndex uint32, countered bool, claim common.Hash, position, clock uint64) []byte {
	t.Helper()
	tupleTy, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "parentIndex", Type: "uint32"},
		{Name: "countered", Type: "bool"},
		{Name: "claim", Type: "bytes32"},
		{Name: "position", Type: "uint128"},
		{Name: "clock", Type: "uint128"},
	})
	require.NoError(t, err)
	args := abi.Arguments{{Type: tupleTy}}
	packed, err := args.Pack(struct {
		ParentIndex uint32
		Countered   bool
		Claim       [32]byte
		Position    *big.Int
		Clock       *big.Int
	}{parentIndex, countered, claim, new(big.Int).SetUint64(position), new(big.Int).SetUint64(clock)})
	require.NoError(t, err)
	return packed
}

func TestDisputeGameCreatedFaultTracksGame(t *testing.T) {
	proxy := common.HexToAddress("0x00000000000000000000000000000000000001")
	router := newCallRouter()
	router.on(proxy, bindings.EncodeCreatedAtCall(), uint256Word(1234))
	router.on(proxy, bindings.EncodeClaimDataCall(0), claimDataReturn(t, 0xffffffff, false, common.Hash{}, 1, 0))

	l1 := &routedL1{router: router}
	st := state.New()
	queue := txmgr.NewQueue(gethlog.New(), &recordingSender{}, nil)
	s := NewFactorySubscriber(gethlog.New(), l1, common.Address{}, st, queue, &fakeTrusted{}, nil, 4, []byte("abcdefghijklmnop"))

	evt := disputeGameCreated{Proxy: proxy, GameType: 0, RootClaim: common.Hash{}}
	require.NoError(t, s.handleFault(context.Background(), evt))
	require.True(t, st.IsTracked(proxy))
	require.Equal(t, 1, st.Len())
}

func TestDisputeGameCreatedFaultAlreadyTrackedSkips(t *testing.T) {
	proxy := common.HexToAddress("0x00000000000000000000000000000000000001")
	st := state.New()
	game, err := alphabet.New(proxy, 0, 4, []byte("abcdefghijklmnop"))
	require.NoError(t, err)
	require.NoError(t, st.Track(game))

	l1 := &routedL1{router: newCallRouter()}
	queue := txmgr.NewQueue(gethlog.New(), &recordingSender{}, nil)
	s := NewFactorySubscriber(gethlog.New(), l1, common.Address{}, st, queue, &fakeTrusted{}, nil, 4, []byte("abcdefghijklmnop"))

	evt := disputeGameCreated{Proxy: proxy, GameType: 0, RootClaim: common.Hash{}}
	require.NoError(t, s.handleFault(context.Background(), evt))
	require.Equal(t, 1, st.Len())
}

func TestDisputeGameCreatedOutputAttestationSelfAuthoredSkips(t *testing.T) {
	proxy := common.HexToAddress("0x00000000000000000000000000000000000002")
	self := common.HexToAddress("0x00000000000000000000000000000000000009")

	router := newCallRouter()
	router.on(proxy, bindings.EncodeChallengesCall(self), addressWord(self))

	l1 := &routedL1{router: router, addr: self}
	sender := &recordingSender{}
	queue := txmgr.NewQueue(gethlog.New(), sender, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = queue.Run(ctx) }()

	s := NewFactorySubscriber(gethlog.New(), l1, common.Address{}, state.New(), queue, &fakeTrusted{}, nil, 4, []byte("abcdefghijklmnop"))
	require.NoError(t, s.handleOutputAttestation(ctx, disputeGameCreated{Proxy: proxy}))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, sender.count())
}

func TestDisputeGameCreatedOutputAttestationMismatchEnqueuesChallenge(t *testing.T) {
	proxy := common.HexToAddress("0x00000000000000000000000000000000000003")
	self := common.HexToAddress("0x00000000000000000000000000000000000009")
	creator := common.HexToAddress("0x000000000000000000000000000000000000a0")
	root := common.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	router := newCallRouter()
	router.on(proxy, bindings.EncodeChallengesCall(self), addressWord(creator))
	router.on(proxy, bindings.EncodeRootClaimCall(), root.Bytes())
	router.on(proxy, bindings.EncodeL2BlockNumberCall(), uint256Word(16))

	l1 := &routedL1{router: router, addr: self}
	sender := &recordingSender{}
	queue := txmgr.NewQueue(gethlog.New(), sender, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = queue.Run(ctx) }()

	trusted := &fakeTrusted{root: common.HexToHash("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb").Hex()}
	s := NewFactorySubscriber(gethlog.New(), l1, common.Address{}, state.New(), queue, trusted, nil, 4, []byte("abcdefghijklmnop"))
	require.NoError(t, s.handleOutputAttestation(ctx, disputeGameCreated{Proxy: proxy}))
	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, proxy, sender.to[0])
}
