// Package pgstore implements store.Store on PostgreSQL through sqlx.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/playmatatu/duel/internal/models"
	"github.com/playmatatu/duel/internal/store"
)

const (
	queueColumns = `id, user_id, game_id, stake, mode, status, match_id, created_at, expires_at`
	matchColumns = `id, game_id, stake, mode, player1_id, player2_id, status, is_priority,
		problem_ids, canonical_state, winner_id, created_at, started_at, completed_at`
	priorityColumns = `id, original_match_id, game_id, stake, mode, player1_id, player2_id, status,
		player1_result, player2_result, winner_id, created_at, paired_at`
	accountColumns = `id, account_type, owner_user_id, balance, created_at, updated_at`
)

// Store is a store.Store backed by a *sqlx.DB.
type Store struct {
	*queries
	db *sqlx.DB
}

var _ store.Store = (*Store)(nil)

func New(db *sqlx.DB) *Store {
	return &Store{queries: &queries{db: db}, db: db}
}

// WithinTx runs fn inside a read-committed transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// queries runs statements against either the pool or an open transaction.
type queries struct {
	db sqlx.ExtContext
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func (q *queries) LockPairingKey(ctx context.Context, key models.PairingKey) error {
	_, err := q.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String())
	if err != nil {
		return fmt.Errorf("failed to lock pairing key %s: %w", key, err)
	}
	return nil
}

func (q *queries) InsertQueueEntry(ctx context.Context, e *models.QueueEntry) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		INSERT INTO queue_entries (`+queueColumns+`)
		VALUES (:id, :user_id, :game_id, :stake, :mode, :status, :match_id, :created_at, :expires_at)
		ON CONFLICT DO NOTHING
	`, e)
	if err != nil {
		return fmt.Errorf("failed to insert queue entry: %w", err)
	}
	// a conflict here is the partial unique index on waiting entries
	var exists bool
	if err := sqlx.GetContext(ctx, q.db, &exists, `SELECT EXISTS(SELECT 1 FROM queue_entries WHERE id = $1)`, e.ID); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("user %s already waiting for %s: %w", e.UserID, e.Key(), store.ErrConflict)
	}
	return nil
}

func (q *queries) GetQueueEntry(ctx context.Context, id string) (*models.QueueEntry, error) {
	var e models.QueueEntry
	err := sqlx.GetContext(ctx, q.db, &e, `SELECT `+queueColumns+` FROM queue_entries WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (q *queries) FindUserQueueEntry(ctx context.Context, key models.PairingKey, userID string, now time.Time) (*models.QueueEntry, error) {
	var e models.QueueEntry
	err := sqlx.GetContext(ctx, q.db, &e, `
		SELECT `+queueColumns+`
		FROM queue_entries
		WHERE game_id = $1 AND stake = $2 AND mode = $3
		  AND user_id = $4
		  AND status = 'waiting'
		  AND expires_at > $5
		ORDER BY created_at
		LIMIT 1
	`, key.GameID, key.Stake, key.Mode, userID, now)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (q *queries) FindWaitingQueueEntry(ctx context.Context, key models.PairingKey, excludeUser string, now time.Time) (*models.QueueEntry, error) {
	var e models.QueueEntry
	err := sqlx.GetContext(ctx, q.db, &e, `
		SELECT `+queueColumns+`
		FROM queue_entries
		WHERE game_id = $1 AND stake = $2 AND mode = $3
		  AND user_id <> $4
		  AND status = 'waiting'
		  AND expires_at > $5
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, key.GameID, key.Stake, key.Mode, excludeUser, now)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (q *queries) ListExpiredQueueEntries(ctx context.Context, now time.Time, limit int) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := sqlx.SelectContext(ctx, q.db, &entries, `
		SELECT `+queueColumns+`
		FROM queue_entries
		WHERE status = 'waiting'
		  AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired queue entries: %w", err)
	}
	return entries, nil
}

func (q *queries) TransitionQueueEntry(ctx context.Context, id string, to models.QueueStatus, matchID sql.NullString, liveAt time.Time) error {
	var (
		result sql.Result
		err    error
	)
	if liveAt.IsZero() {
		result, err = q.db.ExecContext(ctx, `
			UPDATE queue_entries SET status = $2, match_id = $3
			WHERE id = $1 AND status = 'waiting'
		`, id, to, matchID)
	} else {
		result, err = q.db.ExecContext(ctx, `
			UPDATE queue_entries SET status = $2, match_id = $3
			WHERE id = $1 AND status = 'waiting' AND expires_at > $4
		`, id, to, matchID, liveAt)
	}
	if err != nil {
		return fmt.Errorf("failed to transition queue entry %s: %w", id, err)
	}
	if err := store.CheckAffectedRows(result, store.ErrConflict); err != nil {
		if _, getErr := q.GetQueueEntry(ctx, id); errors.Is(getErr, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

func (q *queries) InsertMatch(ctx context.Context, m *models.Match) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		INSERT INTO matches (`+matchColumns+`)
		VALUES (:id, :game_id, :stake, :mode, :player1_id, :player2_id, :status, :is_priority,
			:problem_ids, :canonical_state, :winner_id, :created_at, :started_at, :completed_at)
	`, m)
	if err != nil {
		return fmt.Errorf("failed to insert match: %w", err)
	}
	return nil
}

func (q *queries) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	var m models.Match
	if err := sqlx.GetContext(ctx, q.db, &m, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (q *queries) GetMatchForUpdate(ctx context.Context, id string) (*models.Match, error) {
	var m models.Match
	if err := sqlx.GetContext(ctx, q.db, &m, `SELECT `+matchColumns+` FROM matches WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// UpdateMatch never writes the identity columns or problem_ids.
func (q *queries) UpdateMatch(ctx context.Context, m *models.Match) error {
	result, err := sqlx.NamedExecContext(ctx, q.db, `
		UPDATE matches
		SET player2_id = :player2_id,
		    status = :status,
		    canonical_state = :canonical_state,
		    winner_id = :winner_id,
		    started_at = :started_at,
		    completed_at = :completed_at
		WHERE id = :id
	`, m)
	if err != nil {
		return fmt.Errorf("failed to update match %s: %w", m.ID, err)
	}
	return store.CheckAffectedRows(result, store.ErrNotFound)
}

func (q *queries) InsertPriorityMatch(ctx context.Context, p *models.PriorityMatch) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
		INSERT INTO priority_matches (`+priorityColumns+`)
		VALUES (:id, :original_match_id, :game_id, :stake, :mode, :player1_id, :player2_id, :status,
			:player1_result, :player2_result, :winner_id, :created_at, :paired_at)
	`, p)
	if err != nil {
		return fmt.Errorf("failed to insert priority match: %w", err)
	}
	return nil
}

func (q *queries) GetPriorityMatchByMatch(ctx context.Context, matchID string) (*models.PriorityMatch, error) {
	var p models.PriorityMatch
	err := sqlx.GetContext(ctx, q.db, &p, `SELECT `+priorityColumns+` FROM priority_matches WHERE original_match_id = $1`, matchID)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (q *queries) FindWaitingPriorityMatch(ctx context.Context, key models.PairingKey, excludeUser string) (*models.PriorityMatch, error) {
	var p models.PriorityMatch
	err := sqlx.GetContext(ctx, q.db, &p, `
		SELECT `+priorityColumns+`
		FROM priority_matches
		WHERE game_id = $1 AND stake = $2 AND mode = $3
		  AND player1_id <> $4
		  AND status = 'waiting_player2'
		  AND player2_id IS NULL
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, key.GameID, key.Stake, key.Mode, excludeUser)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (q *queries) ClaimPriorityMatch(ctx context.Context, id, player2ID string, at time.Time) error {
	result, err := q.db.ExecContext(ctx, `
		UPDATE priority_matches
		SET player2_id = $2, paired_at = $3
		WHERE id = $1 AND status = 'waiting_player2' AND player2_id IS NULL
	`, id, player2ID, at)
	if err != nil {
		return fmt.Errorf("failed to claim priority match %s: %w", id, err)
	}
	return store.CheckAffectedRows(result, store.ErrConflict)
}

func (q *queries) UpdatePriorityMatch(ctx context.Context, p *models.PriorityMatch) error {
	result, err := sqlx.NamedExecContext(ctx, q.db, `
		UPDATE priority_matches
		SET player2_id = :player2_id,
		    status = :status,
		    player1_result = :player1_result,
		    player2_result = :player2_result,
		    winner_id = :winner_id,
		    paired_at = :paired_at
		WHERE id = :id
	`, p)
	if err != nil {
		return fmt.Errorf("failed to update priority match %s: %w", p.ID, err)
	}
	return store.CheckAffectedRows(result, store.ErrNotFound)
}

func (q *queries) GetAccountForUpdate(ctx context.Context, accountType string, ownerUserID sql.NullString) (*models.Account, error) {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO accounts (account_type, owner_user_id, balance, created_at, updated_at)
		VALUES ($1, $2, 0, NOW(), NOW())
		ON CONFLICT DO NOTHING
	`, accountType, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	var a models.Account
	err = sqlx.GetContext(ctx, q.db, &a, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE account_type = $1 AND owner_user_id IS NOT DISTINCT FROM $2
		FOR UPDATE
	`, accountType, ownerUserID)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (q *queries) GetAccount(ctx context.Context, accountType string, ownerUserID sql.NullString) (*models.Account, error) {
	var a models.Account
	err := sqlx.GetContext(ctx, q.db, &a, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE account_type = $1 AND owner_user_id IS NOT DISTINCT FROM $2
	`, accountType, ownerUserID)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (q *queries) SetAccountBalance(ctx context.Context, accountID int64, balance int64) error {
	result, err := q.db.ExecContext(ctx, `UPDATE accounts SET balance = $1, updated_at = NOW() WHERE id = $2`, balance, accountID)
	if err != nil {
		return fmt.Errorf("failed to update balance of account %d: %w", accountID, err)
	}
	return store.CheckAffectedRows(result, store.ErrNotFound)
}

func (q *queries) InsertAccountTransaction(ctx context.Context, t *models.AccountTransaction) error {
	row := q.db.QueryRowxContext(ctx, `
		INSERT INTO account_transactions (debit_account_id, credit_account_id, amount, reference_type, reference_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`, t.DebitAccountID, t.CreditAccountID, t.Amount, t.ReferenceType, t.ReferenceID, t.Description)
	if err := row.Scan(&t.ID, &t.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert account transaction: %w", err)
	}
	return nil
}

func (q *queries) InsertSettlement(ctx context.Context, s *models.Settlement) (bool, error) {
	result, err := q.db.ExecContext(ctx, `
		INSERT INTO settlements (match_id, kind, winner_id, amount, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (match_id) DO NOTHING
	`, s.MatchID, s.Kind, s.WinnerID, s.Amount)
	if err != nil {
		return false, fmt.Errorf("failed to insert settlement: %w", err)
	}
	if err := store.CheckAffectedRows(result, store.ErrConflict); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (q *queries) GetSettlement(ctx context.Context, matchID string) (*models.Settlement, error) {
	var s models.Settlement
	err := sqlx.GetContext(ctx, q.db, &s, `
		SELECT match_id, kind, winner_id, amount, created_at FROM settlements WHERE match_id = $1
	`, matchID)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}
