package game

import (
	"errors"

	"github.com/playmatatu/duel/internal/ledger"
	"github.com/playmatatu/duel/internal/store"
)

var (
	ErrNotFound          = store.ErrNotFound
	ErrInsufficientFunds = ledger.ErrInsufficientFunds

	// ErrStaleQueueEntry means a compare-and-swap lost to a concurrent writer.
	// Join retries on it.
	ErrStaleQueueEntry = store.ErrConflict

	ErrBusy           = errors.New("matchmaking busy, retry")
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotParticipant = errors.New("user is not a participant of this match")
	ErrMatchClosed    = errors.New("match is closed")
)
