package txmgr

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// PreparedCall is a not-yet-sent transaction descriptor. It is owned by its
// producer (a watcher handler or poller) until handed to Queue.Send,
// thereafter owned by the dispatcher.
type PreparedCall struct {
	// ID correlates this call's gas-estimate/price/submit sequence across
	// log lines; assigned once, at construction.
	ID uuid.UUID

	To    common.Address
	Input []byte
	Value *big.Int

	// Gas and GasPrice are filled in by the dispatcher; the producer leaves
	// them zero and nil.
	Gas      uint64
	GasPrice *big.Int
}

// NewPreparedCall builds a zero-value-priced call to address to, carrying
// input as calldata.
func NewPreparedCall(to common.Address, input []byte) PreparedCall {
	return PreparedCall{
		ID:    uuid.New(),
		To:    to,
		Input: input,
		Value: big.NewInt(0),
	}
}
