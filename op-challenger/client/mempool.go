package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/bindings"
)

// txpoolContentResponse mirrors the shape of a txpool_content reply: two
// maps of sender address to nonce to transaction, one for pending and one
// for queued transactions. Only the Pending half is examined for dedup.
type txpoolContentResponse struct {
	Pending map[string]map[string]struct {
		To    string `json:"to"`
		Input string `json:"input"`
	} `json:"pending"`
}

// HasPendingCreate reports whether the mempool already holds a pending
// call to factory's create() for gameType/rootClaim, so a duplicate
// create() is never submitted for the same proposed output.
func (c *L1Client) HasPendingCreate(ctx context.Context, factory common.Address, gameType uint8, rootClaim common.Hash) (bool, error) {
	var content txpoolContentResponse
	if err := c.rpc.CallContext(ctx, &content, "txpool_content"); err != nil {
		return false, fmt.Errorf("client: txpool_content: %w", err)
	}

	for _, byNonce := range content.Pending {
		for _, tx := range byNonce {
			if !strings.EqualFold(tx.To, factory.Hex()) {
				continue
			}
			input, err := hexutil.Decode(tx.Input)
			if err != nil {
				continue
			}
			if bindings.IsPendingCreate(input, gameType, rootClaim) {
				return true, nil
			}
		}
	}
	return false, nil
}
