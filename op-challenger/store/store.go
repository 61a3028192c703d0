// Package store names, but does not wire in, durable storage for tracked
// games across restarts. GameStore is constructible and the gorm-backed
// implementation can round-trip a snapshot, but nothing in the bootstrap
// sequence calls it: every run starts from an empty GlobalState.
package store

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// GameSnapshot is the durable record of one tracked game: enough to
// reconstruct an alphabet.Game without replaying every DisputeGameCreated
// log since the factory's genesis.
type GameSnapshot struct {
	Address   common.Address `gorm:"primaryKey"`
	CreatedAt uint64
	MaxDepth  uint64
	Trace     []byte
}

// GameStore persists and restores GameSnapshots. The no-op implementation
// satisfies callers that construct a GameStore but never configure a
// database; the gorm-backed implementation is the one a future bootstrap
// sequence would wire in.
type GameStore interface {
	Save(ctx context.Context, snapshot GameSnapshot) error
	Load(ctx context.Context) ([]GameSnapshot, error)
}

// NoopStore discards every Save and returns no snapshots from Load.
type NoopStore struct{}

func (NoopStore) Save(context.Context, GameSnapshot) error     { return nil }
func (NoopStore) Load(context.Context) ([]GameSnapshot, error) { return nil, nil }

var _ GameStore = NoopStore{}
