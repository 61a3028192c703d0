// Package state holds the single shared, mutex-guarded registry of fault
// dispute games this agent is tracking. It is the only piece of mutable
// state shared across the event watcher, the claim responder, and the
// periodic poller.
package state

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethereum-optimism/op-challenger-agent/op-challenger/game/fault/alphabet"
)

// GlobalState is an in-memory, ordered registry of tracked games, addressed
// by their on-chain contract address. It has no eviction: a game tracked
// once stays tracked for the life of the process.
type GlobalState struct {
	mu     sync.RWMutex
	games  []*alphabet.Game
	byAddr map[common.Address]int
}

// New returns an empty registry.
func New() *GlobalState {
	return &GlobalState{
		byAddr: make(map[common.Address]int),
	}
}

// Track registers a newly observed game. It returns an error if a game at
// the same address is already tracked.
func (s *GlobalState) Track(game *alphabet.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byAddr[game.Address]; exists {
		return ErrAlreadyTracked
	}
	s.byAddr[game.Address] = len(s.games)
	s.games = append(s.games, game)
	return nil
}

// Get returns the tracked game at address, or ErrNotTracked.
func (s *GlobalState) Get(address common.Address) (*alphabet.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byAddr[address]
	if !ok {
		return nil, ErrNotTracked
	}
	return s.games[idx], nil
}

// IsTracked reports whether a game at address is already registered.
func (s *GlobalState) IsTracked(address common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byAddr[address]
	return ok
}

// All returns a snapshot slice of every tracked game, in registration order.
func (s *GlobalState) All() []*alphabet.Game {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*alphabet.Game, len(s.games))
	copy(out, s.games)
	return out
}

// Len reports the number of tracked games.
func (s *GlobalState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.games)
}
