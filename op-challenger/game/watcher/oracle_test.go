package watcher

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethlog "github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/client"
	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/txmgr"
)

type fakeL1 struct{}

func (f *fakeL1) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, nil
}
func (f *fakeL1) CallContract(context.Context, common.Address, []byte) ([]byte, error) {
	return nil, nil
}
func (f *fakeL1) StorageAt(context.Context, common.Address, common.Hash) ([]byte, error) {
	return nil, nil
}
func (f *fakeL1) Address() common.Address { return common.Address{} }
func (f *fakeL1) SignHash(common.Hash) (r, s [32]byte, v uint8, err error) {
	return
}

type fakeTrusted struct {
	root string
	err  error
}

func (f *fakeTrusted) CompareOutputRoot(_ context.Context, untrustedRoot string, _ uint64) (bool, client.OutputAtBlockResponse, error) {
	if f.err != nil {
		return false, client.OutputAtBlockResponse{}, f.err
	}
	return untrustedRoot == f.root, client.OutputAtBlockResponse{OutputRoot: f.root}, nil
}

type fakeMempool struct {
	pending bool
}

func (f *fakeMempool) HasPendingCreate(context.Context, common.Address, uint8, common.Hash) (bool, error) {
	return f.pending, nil
}

// recordingSender implements txmgr.Sender, recording every call it is asked
// to submit so a test can assert on what the dispatcher received.
type recordingSender struct {
	mu  sync.Mutex
	to  []common.Address
	in  [][]byte
}

func (s *recordingSender) EstimateGas(context.Context, common.Address, []byte, *big.Int) (uint64, error) {
	return 21000, nil
}
func (s *recordingSender) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}
func (s *recordingSender) Send(_ context.Context, to common.Address, input []byte, _ *big.Int, _ uint64, gasPrice *big.Int) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.to = append(s.to, to)
	s.in = append(s.in, input)
	return types.NewTransaction(0, to, big.NewInt(0), 21000, gasPrice, input), nil
}
func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.to)
}

func outputProposedLog(root common.Hash, l2Block uint64) types.Log {
	return types.Log{
		Topics: []common.Hash{
			OutputProposedTopic0,
			root,
			common.Hash{},
			common.BigToHash(new(big.Int).SetUint64(l2Block)),
		},
	}
}

func TestOutputProposedMatchEnqueuesNothing(t *testing.T) {
	root := common.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	trusted := &fakeTrusted{root: root.Hex()}
	sender := &recordingSender{}
	queue := txmgr.NewQueue(gethlog.New(), sender, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = queue.Run(ctx) }()

	s := NewOracleSubscriber(gethlog.New(), &fakeL1{}, &fakeMempool{}, common.Address{}, common.Address{}, trusted, queue, nil)
	require.NoError(t, s.handle(ctx, outputProposedLog(root, 0x10)))

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, sender.count())
}

func TestOutputProposedMismatchNoPendingEnqueuesCreate(t *testing.T) {
	root := common.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	trusted := &fakeTrusted{root: common.HexToHash("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb").Hex()}
	sender := &recordingSender{}
	queue := txmgr.NewQueue(gethlog.New(), sender, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = queue.Run(ctx) }()

	factory := common.HexToAddress("0x00000000000000000000000000000000000fac")
	s := NewOracleSubscriber(gethlog.New(), &fakeL1{}, &fakeMempool{pending: false}, common.Address{}, factory, trusted, queue, nil)
	require.NoError(t, s.handle(ctx, outputProposedLog(root, 0x10)))

	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, factory, sender.to[0])
}

func TestOutputProposedMismatchPendingSkips(t *testing.T) {
	root := common.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	trusted := &fakeTrusted{root: common.HexToHash("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb").Hex()}
	sender := &recordingSender{}
	queue := txmgr.NewQueue(gethlog.New(), sender, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = queue.Run(ctx) }()

	s := NewOracleSubscriber(gethlog.New(), &fakeL1{}, &fakeMempool{pending: true}, common.Address{}, common.HexToAddress("0xfac"), trusted, queue, nil)
	require.NoError(t, s.handle(ctx, outputProposedLog(root, 0x10)))

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, sender.count())
}
