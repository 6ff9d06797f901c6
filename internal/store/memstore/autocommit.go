package memstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/playmatatu/duel/internal/models"
	"github.com/playmatatu/duel/internal/store"
)

// Autocommit variants: each call runs alone against the live data.

var _ store.Store = (*Store)(nil)

func (s *Store) LockPairingKey(ctx context.Context, key models.PairingKey) error {
	t, unlock := s.auto()
	defer unlock()
	return t.LockPairingKey(ctx, key)
}

func (s *Store) InsertQueueEntry(ctx context.Context, e *models.QueueEntry) error {
	t, unlock := s.auto()
	defer unlock()
	return t.InsertQueueEntry(ctx, e)
}

func (s *Store) GetQueueEntry(ctx context.Context, id string) (*models.QueueEntry, error) {
	t, unlock := s.auto()
	defer unlock()
	return t.GetQueueEntry(ctx, id)
}

func (s *Store) FindUserQueueEntry(ctx context.Context, key models.PairingKey, userID string, now time.Time) (*models.QueueEntry, error) {
	t, unlock := s.auto()
	defer unlock()
	return t.FindUserQueueEntry(ctx, key, userID, now)
}

func (s *Store) FindWaitingQueueEntry(ctx context.Context, key models.PairingKey, excludeUser string, now time.Time) (*models.QueueEntry, error) {
	t, unlock := s.auto()
	defer unlock()
	return t.FindWaitingQueueEntry(ctx, key, excludeUser, now)
}

func (s *Store) ListExpiredQueueEntries(ctx context.Context, now time.Time, limit int) ([]models.QueueEntry, error) {
	t, unlock := s.auto()
	defer unlock()
	return t.ListExpiredQueueEntries(ctx, now, limit)
}

func (s *Store) TransitionQueueEntry(ctx context.Context, id string, to models.QueueStatus, matchID sql.NullString, liveAt time.Time) error {
	t, unlock := s.auto()
	defer unlock()
	return t.TransitionQueueEntry(ctx, id, to, matchID, liveAt)
}

func (s *Store) InsertMatch(ctx context.Context, m *models.Match) error {
	t, unlock := s.auto()
	defer unlock()
	return t.InsertMatch(ctx, m)
}

func (s *Store) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	t, unlock := s.auto()
	defer unlock()
	return t.GetMatch(ctx, id)
}

func (s *Store) GetMatchForUpdate(ctx context.Context, id string) (*models.Match, error) {
	t, unlock := s.auto()
	defer unlock()
	return t.GetMatchForUpdate(ctx, id)
}

func (s *Store) UpdateMatch(ctx context.Context, m *models.Match) error {
	t, unlock := s.auto()
	defer unlock()
	return t.UpdateMatch(ctx, m)
}

func (s *Store) InsertPriorityMatch(ctx context.Context, p *models.PriorityMatch) error {
	t, unlock := s.auto()
	defer unlock()
	return t.InsertPriorityMatch(ctx, p)
}

func (s *Store) GetPriorityMatchByMatch(ctx context.Context, matchID string) (*models.PriorityMatch, error) {
	t, unlock := s.auto()
	defer unlock()
	return t.GetPriorityMatchByMatch(ctx, matchID)
}

func (s *Store) FindWaitingPriorityMatch(ctx context.Context, key models.PairingKey, excludeUser string) (*models.PriorityMatch, error) {
	t, unlock := s.auto()
	defer unlock()
	return t.FindWaitingPriorityMatch(ctx, key, excludeUser)
}

func (s *Store) ClaimPriorityMatch(ctx context.Context, id, player2ID string, at time.Time) error {
	t, unlock := s.auto()
	defer unlock()
	return t.ClaimPriorityMatch(ctx, id, player2ID, at)
}

func (s *Store) UpdatePriorityMatch(ctx context.Context, p *models.PriorityMatch) error {
	t, unlock := s.auto()
	defer unlock()
	return t.UpdatePriorityMatch(ctx, p)
}

func (s *Store) GetAccountForUpdate(ctx context.Context, accountType string, ownerUserID sql.NullString) (*models.Account, error) {
	t, unlock := s.auto()
	defer unlock()
	return t.GetAccountForUpdate(ctx, accountType, ownerUserID)
}

func (s *Store) GetAccount(ctx context.Context, accountType string, ownerUserID sql.NullString) (*models.Account, error) {
	t, unlock := s.auto()
	defer unlock()
	return t.GetAccount(ctx, accountType, ownerUserID)
}

func (s *Store) SetAccountBalance(ctx context.Context, accountID int64, balance int64) error {
	t, unlock := s.auto()
	defer unlock()
	return t.SetAccountBalance(ctx, accountID, balance)
}

func (s *Store) InsertAccountTransaction(ctx context.Context, at *models.AccountTransaction) error {
	t, unlock := s.auto()
	defer unlock()
	return t.InsertAccountTransaction(ctx, at)
}

func (s *Store) InsertSettlement(ctx context.Context, st *models.Settlement) (bool, error) {
	t, unlock := s.auto()
	defer unlock()
	return t.InsertSettlement(ctx, st)
}

func (s *Store) GetSettlement(ctx context.Context, matchID string) (*models.Settlement, error) {
	t, unlock := s.auto()
	defer unlock()
	return t.GetSettlement(ctx, matchID)
}
