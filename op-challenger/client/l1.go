package client

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// L1Client wraps an ethclient.Client dialed over a websocket, bound to a
// single signing identity. It implements txmgr.Sender and supplies the log
// subscriptions the watcher consumes.
type L1Client struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	chainID *big.Int
	signer  *ecdsa.PrivateKey
	address common.Address
}

// NewL1Client dials the websocket endpoint at url and binds signerKey as
// the agent's signing identity for outbound transactions and challenge
// signatures.
func NewL1Client(ctx context.Context, url string, signerKey *ecdsa.PrivateKey) (*L1Client, error) {
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("client: dialing L1 websocket: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("client: fetching chain id: %w", err)
	}
	return &L1Client{
		rpc:     rpcClient,
		eth:     eth,
		chainID: chainID,
		signer:  signerKey,
		address: crypto.PubkeyToAddress(signerKey.PublicKey),
	}, nil
}

// Address is the agent's own signing address.
func (c *L1Client) Address() common.Address {
	return c.address
}

// SubscribeFilterLogs implements the subset of ethereum.LogFilterer the
// watcher's subscriptions need.
func (c *L1Client) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return c.eth.SubscribeFilterLogs(ctx, q, ch)
}

// CallContract performs a raw eth_call against the latest block.
func (c *L1Client) CallContract(ctx context.Context, to common.Address, input []byte) ([]byte, error) {
	return c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
}

// StorageAt reads a single storage slot from an account at the latest block.
func (c *L1Client) StorageAt(ctx context.Context, addr common.Address, slot common.Hash) ([]byte, error) {
	return c.eth.StorageAt(ctx, addr, slot, nil)
}

// EstimateGas implements txmgr.Sender.
func (c *L1Client) EstimateGas(ctx context.Context, to common.Address, input []byte, value *big.Int) (uint64, error) {
	return c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:  c.address,
		To:    &to,
		Value: value,
		Data:  input,
	})
}

// SuggestGasPrice implements txmgr.Sender.
func (c *L1Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasPrice(ctx)
}

// Send implements txmgr.Sender: it builds, signs, and broadcasts a legacy
// transaction against the bound signing identity.
func (c *L1Client) Send(ctx context.Context, to common.Address, input []byte, value *big.Int, gas uint64, gasPrice *big.Int) (*types.Transaction, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("client: fetching nonce: %w", err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     input,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.signer)
	if err != nil {
		return nil, fmt.Errorf("client: signing transaction: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("client: broadcasting transaction: %w", err)
	}
	return signed, nil
}

// SignHash signs digest with the agent's signing identity, returning the
// (r, s, v) ECDSA signature components used to build a challenge() call.
func (c *L1Client) SignHash(digest common.Hash) (r, s [32]byte, v uint8, err error) {
	sig, err := crypto.Sign(digest.Bytes(), c.signer)
	if err != nil {
		return r, s, 0, fmt.Errorf("client: signing digest: %w", err)
	}
	copy(r[:], sig[0:32])
	copy(s[:], sig[32:64])
	v = sig[64] + 27
	return r, s, v, nil
}

// Close releases the underlying RPC connection.
func (c *L1Client) Close() {
	c.eth.Close()
}

// RPC exposes the raw JSON-RPC client for calls with no ethclient
// equivalent, namely txpool_content (see HasPendingCreate).
func (c *L1Client) RPC() *rpc.Client {
	return c.rpc
}
