package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playmatatu/duel/internal/models"
	"github.com/playmatatu/duel/internal/store"
)

// containsSQL matches when the executed statement contains the expected
// fragment, ignoring whitespace layout.
var containsSQL = sqlmock.QueryMatcherFunc(func(expected, actual string) error {
	norm := func(s string) string { return strings.Join(strings.Fields(s), " ") }
	if !strings.Contains(norm(actual), norm(expected)) {
		return fmt.Errorf("query %q does not contain %q", norm(actual), norm(expected))
	}
	return nil
})

var (
	at  = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	key = models.PairingKey{GameID: "trivia", Stake: 500, Mode: models.ModeRanked}
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(containsSQL))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return New(sqlx.NewDb(db, "postgres")), mock
}

func queueRow(id, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "game_id", "stake", "mode", "status", "match_id", "created_at", "expires_at"}).
		AddRow(id, "alice", key.GameID, key.Stake, key.Mode, status, nil, at, at.Add(3*time.Minute))
}

func TestWithinTxCommitsAndRollsBack(t *testing.T) {
	ctx := context.Background()
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock(hashtext($1))`).
		WithArgs(key.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.LockPairingKey(ctx, key)
	}))

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()
	assert.ErrorIs(t, s.WithinTx(ctx, func(tx store.Tx) error { return boom }), boom)
}

func TestInsertQueueEntryReportsWaitingDuplicate(t *testing.T) {
	s, mock := newMock(t)
	e := &models.QueueEntry{ID: "q2", UserID: "alice", GameID: key.GameID, Stake: key.Stake, Mode: key.Mode, Status: models.QueueWaiting}

	mock.ExpectExec(`INSERT INTO queue_entries`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS(SELECT 1 FROM queue_entries WHERE id = $1)`).
		WithArgs("q2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	assert.ErrorIs(t, s.InsertQueueEntry(context.Background(), e), store.ErrConflict)
}

func TestFindWaitingQueueEntrySkipsLockedAndExpiredRows(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`AND user_id <> $4 AND status = 'waiting' AND expires_at > $5 ORDER BY created_at LIMIT 1 FOR UPDATE SKIP LOCKED`).
		WithArgs(key.GameID, key.Stake, key.Mode, "bob", at).
		WillReturnRows(queueRow("q1", "waiting"))
	e, err := s.FindWaitingQueueEntry(context.Background(), key, "bob", at)
	require.NoError(t, err)
	assert.Equal(t, "q1", e.ID)
	assert.Equal(t, models.QueueWaiting, e.Status)

	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = s.FindWaitingQueueEntry(context.Background(), key, "bob", at)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListExpiredQueueEntriesSkipsLockedRows(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`WHERE status = 'waiting' AND expires_at <= $1 ORDER BY expires_at LIMIT $2 FOR UPDATE SKIP LOCKED`).
		WithArgs(at, 10).
		WillReturnRows(queueRow("q1", "waiting"))
	entries, err := s.ListExpiredQueueEntries(context.Background(), at, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestTransitionQueueEntryGuards(t *testing.T) {
	ctx := context.Background()
	matchID := sql.NullString{String: "m1", Valid: true}

	t.Run("live entry", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec(`WHERE id = $1 AND status = 'waiting' AND expires_at > $4`).
			WithArgs("q1", "matched", "m1", at).
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, s.TransitionQueueEntry(ctx, "q1", models.QueueMatched, matchID, at))
	})

	t.Run("expired or taken", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec(`AND expires_at > $4`).
			WithArgs("q1", "matched", "m1", at).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`FROM queue_entries WHERE id = $1`).
			WithArgs("q1").
			WillReturnRows(queueRow("q1", "expired"))
		assert.ErrorIs(t, s.TransitionQueueEntry(ctx, "q1", models.QueueMatched, matchID, at), store.ErrConflict)
	})

	t.Run("missing", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec(`WHERE id = $1 AND status = 'waiting'`).
			WithArgs("nope", "cancelled", nil).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`FROM queue_entries WHERE id = $1`).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		assert.ErrorIs(t, s.TransitionQueueEntry(ctx, "nope", models.QueueCancelled, sql.NullString{}, time.Time{}), store.ErrNotFound)
	})
}

func TestClaimPriorityMatchOnlyWhileSeatOpen(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`WHERE id = $1 AND status = 'waiting_player2' AND player2_id IS NULL`).
		WithArgs("p1", "bob", at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.ClaimPriorityMatch(context.Background(), "p1", "bob", at), store.ErrConflict)
}

func TestInsertSettlementClaimsOnce(t *testing.T) {
	ctx := context.Background()
	s, mock := newMock(t)
	st := &models.Settlement{MatchID: "m1", Kind: models.SettlementPayout, WinnerID: sql.NullString{String: "alice", Valid: true}, Amount: 1000}

	mock.ExpectExec(`ON CONFLICT (match_id) DO NOTHING`).
		WithArgs("m1", models.SettlementPayout, "alice", int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`ON CONFLICT (match_id) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := s.InsertSettlement(ctx, st)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = s.InsertSettlement(ctx, st)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestGetAccountForUpdateCreatesThenLocks(t *testing.T) {
	s, mock := newMock(t)
	owner := sql.NullString{String: "alice", Valid: true}

	mock.ExpectExec(`INSERT INTO accounts`).
		WithArgs(models.AccountPlayerWallet, "alice").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`WHERE account_type = $1 AND owner_user_id IS NOT DISTINCT FROM $2 FOR UPDATE`).
		WithArgs(models.AccountPlayerWallet, "alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_type", "owner_user_id", "balance", "created_at", "updated_at"}).
			AddRow(7, models.AccountPlayerWallet, "alice", 0, at, at))

	a, err := s.GetAccountForUpdate(context.Background(), models.AccountPlayerWallet, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(7), a.ID)
	assert.Equal(t, int64(0), a.Balance)
}

func TestUpdateMatchMissingRow(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`UPDATE matches`).WillReturnResult(sqlmock.NewResult(0, 0))
	err := s.UpdateMatch(context.Background(), &models.Match{ID: "gone", Status: models.MatchInProgress})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
