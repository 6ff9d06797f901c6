// Package store defines the transactional persistence contract for queue
// entries, matches, priority matches and ledger accounts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/playmatatu/duel/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist or no longer satisfies the lookup.
	ErrNotFound = errors.New("requested resource not found")
	// ErrConflict is returned when a conditional update matched no row because
	// another writer changed it first.
	ErrConflict = errors.New("row changed concurrently")
)

// Queries is the set of reads and writes available both inside a transaction
// and in autocommit mode. Methods named ...ForUpdate lock the row until the
// surrounding transaction ends.
type Queries interface {
	// LockPairingKey serializes all transactions for one pairing key.
	LockPairingKey(ctx context.Context, key models.PairingKey) error

	InsertQueueEntry(ctx context.Context, e *models.QueueEntry) error
	GetQueueEntry(ctx context.Context, id string) (*models.QueueEntry, error)
	// FindUserQueueEntry returns the caller's own live waiting entry for key.
	FindUserQueueEntry(ctx context.Context, key models.PairingKey, userID string, now time.Time) (*models.QueueEntry, error)
	// FindWaitingQueueEntry returns the oldest live waiting entry for key not owned by excludeUser.
	FindWaitingQueueEntry(ctx context.Context, key models.PairingKey, excludeUser string, now time.Time) (*models.QueueEntry, error)
	// ListExpiredQueueEntries returns waiting entries whose expiry is at or before now,
	// skipping rows locked by another transaction.
	ListExpiredQueueEntries(ctx context.Context, now time.Time, limit int) ([]models.QueueEntry, error)
	// TransitionQueueEntry moves an entry out of waiting. It returns ErrConflict
	// when the entry is no longer waiting, or when liveAt is non-zero and the
	// entry expired at or before liveAt.
	TransitionQueueEntry(ctx context.Context, id string, to models.QueueStatus, matchID sql.NullString, liveAt time.Time) error

	InsertMatch(ctx context.Context, m *models.Match) error
	GetMatch(ctx context.Context, id string) (*models.Match, error)
	GetMatchForUpdate(ctx context.Context, id string) (*models.Match, error)
	// UpdateMatch writes the mutable columns of m: player2, status, state,
	// winner and timestamps.
	UpdateMatch(ctx context.Context, m *models.Match) error

	InsertPriorityMatch(ctx context.Context, p *models.PriorityMatch) error
	GetPriorityMatchByMatch(ctx context.Context, matchID string) (*models.PriorityMatch, error)
	// FindWaitingPriorityMatch returns the oldest priority match waiting for a
	// second player under key whose first player is not excludeUser.
	FindWaitingPriorityMatch(ctx context.Context, key models.PairingKey, excludeUser string) (*models.PriorityMatch, error)
	// ClaimPriorityMatch sets player2 only while the row is still waiting_player2
	// with an empty slot, otherwise ErrConflict.
	ClaimPriorityMatch(ctx context.Context, id, player2ID string, at time.Time) error
	UpdatePriorityMatch(ctx context.Context, p *models.PriorityMatch) error

	// GetAccountForUpdate returns the account, creating it with a zero balance if missing.
	GetAccountForUpdate(ctx context.Context, accountType string, ownerUserID sql.NullString) (*models.Account, error)
	GetAccount(ctx context.Context, accountType string, ownerUserID sql.NullString) (*models.Account, error)
	SetAccountBalance(ctx context.Context, accountID int64, balance int64) error
	InsertAccountTransaction(ctx context.Context, t *models.AccountTransaction) error
	// InsertSettlement claims the settlement slot of a match. It reports false
	// when a settlement already exists.
	InsertSettlement(ctx context.Context, s *models.Settlement) (bool, error)
	GetSettlement(ctx context.Context, matchID string) (*models.Settlement, error)
}

// Tx is a unit of work. It is only valid inside the WithinTx callback.
type Tx interface {
	Queries
}

// Store is the persistence entry point.
type Store interface {
	Queries
	// WithinTx runs fn in one transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// CheckAffectedRows maps a conditional update that touched nothing to notFoundErr.
func CheckAffectedRows(result sql.Result, notFoundErr error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return notFoundErr
	}
	return nil
}
