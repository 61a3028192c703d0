package state

import "errors"

var (
	// ErrAlreadyTracked is returned by Track when a game at the same
	// address is already registered.
	ErrAlreadyTracked = errors.New("game already tracked")

	// ErrNotTracked is returned by Get when no game is registered at the
	// requested address.
	ErrNotTracked = errors.New("game not tracked")
)
