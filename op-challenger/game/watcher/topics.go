// Package watcher subscribes to the two L1 log streams this agent reacts
// to, dispatches each log to its handler, and periodically polls tracked
// fault games for new claims.
package watcher

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrProtocolIntegrity wraps a log that failed to decode into the shape its
// own topic signature promises: a malformed or truncated log, not a
// transient RPC failure. Run() treats it as fatal and propagates it up
// through the supervising errgroup instead of logging and continuing.
var ErrProtocolIntegrity = errors.New("watcher: protocol integrity violation")

// DisputeGameCreatedTopic0 is keccak256("DisputeGameCreated(address,uint8,bytes32)").
var DisputeGameCreatedTopic0 = crypto.Keccak256Hash([]byte("DisputeGameCreated(address,uint8,bytes32)"))

// OutputProposedTopic0 is keccak256("OutputProposed(bytes32,uint256,uint256,uint256)").
var OutputProposedTopic0 = crypto.Keccak256Hash([]byte("OutputProposed(bytes32,uint256,uint256,uint256)"))

// disputeGameCreated is the decoded form of a DisputeGameCreated log:
// topic 1 is the proxy address, topic 2's low byte is the game type, topic
// 3 is the root claim.
type disputeGameCreated struct {
	Proxy     common.Address
	GameType  byte
	RootClaim common.Hash
}

// outputProposed is the decoded form of an OutputProposed log: topic 1 is
// the proposed output root, topic 3's low 8 bytes are the L2 block number.
type outputProposed struct {
	OutputRoot    common.Hash
	L2BlockNumber uint64
}
