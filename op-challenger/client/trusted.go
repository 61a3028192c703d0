package client

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

// OutputAtBlockResponse mirrors the JSON shape returned by the trusted
// node's optimism_outputAtBlock method.
type OutputAtBlockResponse struct {
	Version    string `json:"version"`
	OutputRoot string `json:"outputRoot"`
}

// TrustedClient queries a trusted L2 node for output roots to compare
// against untrusted on-chain proposals. optimism_outputAtBlock has no
// generated binding, so it is called directly through the raw JSON-RPC
// client.
type TrustedClient struct {
	rpc     *rpc.Client
	limiter *rate.Limiter
}

// NewTrustedClient dials url and wraps it with a rate limiter bounding how
// often this agent hammers the trusted node during a burst of
// OutputProposed events.
func NewTrustedClient(ctx context.Context, url string, ratePerSecond rate.Limit, burst int) (*TrustedClient, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("client: dialing trusted node: %w", err)
	}
	return &TrustedClient{
		rpc:     c,
		limiter: rate.NewLimiter(ratePerSecond, burst),
	}, nil
}

// OutputAtBlock calls optimism_outputAtBlock for blockNumber.
func (c *TrustedClient) OutputAtBlock(ctx context.Context, blockNumber uint64) (OutputAtBlockResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return OutputAtBlockResponse{}, fmt.Errorf("client: rate limit wait: %w", err)
	}

	var resp OutputAtBlockResponse
	param := fmt.Sprintf("0x%x", blockNumber)
	if err := c.rpc.CallContext(ctx, &resp, "optimism_outputAtBlock", param); err != nil {
		return OutputAtBlockResponse{}, fmt.Errorf("client: optimism_outputAtBlock: %w", err)
	}
	return resp, nil
}

// CompareOutputRoot reports whether untrustedRoot matches the trusted
// node's output root at blockNumber, and returns the trusted response for
// logging. Transport and decoding failures are soft errors: callers log
// and skip challenging rather than treat the call itself as a dispute.
func (c *TrustedClient) CompareOutputRoot(ctx context.Context, untrustedRoot string, blockNumber uint64) (bool, OutputAtBlockResponse, error) {
	trusted, err := c.OutputAtBlock(ctx, blockNumber)
	if err != nil {
		return false, OutputAtBlockResponse{}, err
	}
	return untrustedRoot == trusted.OutputRoot, trusted, nil
}

// SetRateLimit adjusts the request rate allowed to the trusted node for
// calls made from now on; a Wait already in progress keeps the delay it
// reserved under the old rate.
func (c *TrustedClient) SetRateLimit(ratePerSecond rate.Limit) {
	c.limiter.SetLimit(ratePerSecond)
}

// Close releases the underlying RPC connection.
func (c *TrustedClient) Close() {
	c.rpc.Close()
}
