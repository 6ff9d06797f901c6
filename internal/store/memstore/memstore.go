// Package memstore is an in-process store.Store. Transactions are serialized
// behind one mutex and run against a copy of the data that replaces the live
// copy only on commit.
package memstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/playmatatu/duel/internal/models"
	"github.com/playmatatu/duel/internal/store"
)

type data struct {
	queue         map[string]models.QueueEntry
	queueOrder    []string
	matches       map[string]models.Match
	priority      map[string]models.PriorityMatch
	priorityOrder []string
	accounts      map[int64]models.Account
	accountIndex  map[string]int64
	nextAccountID int64
	transactions  []models.AccountTransaction
	settlements   map[string]models.Settlement
}

func newData() *data {
	return &data{
		queue:        make(map[string]models.QueueEntry),
		matches:      make(map[string]models.Match),
		priority:     make(map[string]models.PriorityMatch),
		accounts:     make(map[int64]models.Account),
		accountIndex: make(map[string]int64),
		settlements:  make(map[string]models.Settlement),
	}
}

// clone copies the maps. Stored values are never mutated in place, so the
// values themselves can be shared.
func (d *data) clone() *data {
	c := &data{
		queue:         make(map[string]models.QueueEntry, len(d.queue)),
		queueOrder:    append([]string(nil), d.queueOrder...),
		matches:       make(map[string]models.Match, len(d.matches)),
		priority:      make(map[string]models.PriorityMatch, len(d.priority)),
		priorityOrder: append([]string(nil), d.priorityOrder...),
		accounts:      make(map[int64]models.Account, len(d.accounts)),
		accountIndex:  make(map[string]int64, len(d.accountIndex)),
		nextAccountID: d.nextAccountID,
		transactions:  append([]models.AccountTransaction(nil), d.transactions...),
		settlements:   make(map[string]models.Settlement, len(d.settlements)),
	}
	for k, v := range d.queue {
		c.queue[k] = v
	}
	for k, v := range d.matches {
		c.matches[k] = v
	}
	for k, v := range d.priority {
		c.priority[k] = v
	}
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	for k, v := range d.accountIndex {
		c.accountIndex[k] = v
	}
	for k, v := range d.settlements {
		c.settlements[k] = v
	}
	return c
}

// Store implements store.Store in memory.
type Store struct {
	mu   sync.Mutex
	data *data
	now  func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{data: newData(), now: time.Now}
}

// WithinTx runs fn against a private copy and publishes it on success.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.data.clone()
	if err := fn(&tx{data: work, now: s.now}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) Close() error { return nil }

// Transactions returns a copy of every ledger movement, oldest first.
func (s *Store) Transactions() []models.AccountTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AccountTransaction(nil), s.data.transactions...)
}

// auto runs a single query directly against the live data.
func (s *Store) auto() (*tx, func()) {
	s.mu.Lock()
	return &tx{data: s.data, now: s.now}, s.mu.Unlock
}

type tx struct {
	data *data
	now  func() time.Time
}

var _ store.Tx = (*tx)(nil)

func (t *tx) LockPairingKey(ctx context.Context, key models.PairingKey) error {
	// every transaction already holds the store mutex
	return nil
}

func (t *tx) InsertQueueEntry(ctx context.Context, e *models.QueueEntry) error {
	if _, exists := t.data.queue[e.ID]; exists {
		return fmt.Errorf("queue entry %s already exists", e.ID)
	}
	for _, id := range t.data.queueOrder {
		o := t.data.queue[id]
		if o.Status == models.QueueWaiting && o.UserID == e.UserID && o.Key() == e.Key() {
			return fmt.Errorf("user %s already waiting for %s: %w", e.UserID, e.Key(), store.ErrConflict)
		}
	}
	t.data.queue[e.ID] = *e
	t.data.queueOrder = append(t.data.queueOrder, e.ID)
	return nil
}

func (t *tx) GetQueueEntry(ctx context.Context, id string) (*models.QueueEntry, error) {
	e, ok := t.data.queue[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (t *tx) FindUserQueueEntry(ctx context.Context, key models.PairingKey, userID string, now time.Time) (*models.QueueEntry, error) {
	for _, id := range t.data.queueOrder {
		e := t.data.queue[id]
		if e.Status == models.QueueWaiting && e.Key() == key && e.UserID == userID && e.ExpiresAt.After(now) {
			return &e, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) FindWaitingQueueEntry(ctx context.Context, key models.PairingKey, excludeUser string, now time.Time) (*models.QueueEntry, error) {
	for _, id := range t.data.queueOrder {
		e := t.data.queue[id]
		if e.Status == models.QueueWaiting && e.Key() == key && e.UserID != excludeUser && e.ExpiresAt.After(now) {
			return &e, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) ListExpiredQueueEntries(ctx context.Context, now time.Time, limit int) ([]models.QueueEntry, error) {
	var out []models.QueueEntry
	for _, id := range t.data.queueOrder {
		if limit > 0 && len(out) >= limit {
			break
		}
		e := t.data.queue[id]
		if e.Status == models.QueueWaiting && !e.ExpiresAt.After(now) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *tx) TransitionQueueEntry(ctx context.Context, id string, to models.QueueStatus, matchID sql.NullString, liveAt time.Time) error {
	e, ok := t.data.queue[id]
	if !ok {
		return store.ErrNotFound
	}
	if e.Status != models.QueueWaiting {
		return store.ErrConflict
	}
	if !liveAt.IsZero() && !e.ExpiresAt.After(liveAt) {
		return store.ErrConflict
	}
	e.Status = to
	e.MatchID = matchID
	t.data.queue[id] = e
	return nil
}

func (t *tx) InsertMatch(ctx context.Context, m *models.Match) error {
	if _, exists := t.data.matches[m.ID]; exists {
		return fmt.Errorf("match %s already exists", m.ID)
	}
	t.data.matches[m.ID] = m.Clone()
	return nil
}

func (t *tx) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	m, ok := t.data.matches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := m.Clone()
	return &c, nil
}

func (t *tx) GetMatchForUpdate(ctx context.Context, id string) (*models.Match, error) {
	return t.GetMatch(ctx, id)
}

func (t *tx) UpdateMatch(ctx context.Context, m *models.Match) error {
	old, ok := t.data.matches[m.ID]
	if !ok {
		return store.ErrNotFound
	}
	next := m.Clone()
	// identity and problem sequence are fixed at creation
	next.GameID, next.Stake, next.Mode = old.GameID, old.Stake, old.Mode
	next.Player1ID, next.ProblemIDs, next.CreatedAt = old.Player1ID, old.ProblemIDs, old.CreatedAt
	next.IsPriority = old.IsPriority
	t.data.matches[m.ID] = next
	return nil
}

func (t *tx) InsertPriorityMatch(ctx context.Context, p *models.PriorityMatch) error {
	if _, exists := t.data.priority[p.ID]; exists {
		return fmt.Errorf("priority match %s already exists", p.ID)
	}
	t.data.priority[p.ID] = p.Clone()
	t.data.priorityOrder = append(t.data.priorityOrder, p.ID)
	return nil
}

func (t *tx) GetPriorityMatchByMatch(ctx context.Context, matchID string) (*models.PriorityMatch, error) {
	for _, id := range t.data.priorityOrder {
		p := t.data.priority[id]
		if p.OriginalMatchID == matchID {
			c := p.Clone()
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) FindWaitingPriorityMatch(ctx context.Context, key models.PairingKey, excludeUser string) (*models.PriorityMatch, error) {
	for _, id := range t.data.priorityOrder {
		p := t.data.priority[id]
		if p.Status != models.PriorityWaitingPlayer2 || p.Player2ID.Valid || p.Player1ID == excludeUser {
			continue
		}
		if p.GameID == key.GameID && p.Stake == key.Stake && p.Mode == key.Mode {
			c := p.Clone()
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) ClaimPriorityMatch(ctx context.Context, id, player2ID string, at time.Time) error {
	p, ok := t.data.priority[id]
	if !ok {
		return store.ErrNotFound
	}
	if p.Status != models.PriorityWaitingPlayer2 || p.Player2ID.Valid {
		return store.ErrConflict
	}
	p.Player2ID = sql.NullString{String: player2ID, Valid: true}
	p.PairedAt = sql.NullTime{Time: at, Valid: true}
	t.data.priority[id] = p
	return nil
}

func (t *tx) UpdatePriorityMatch(ctx context.Context, p *models.PriorityMatch) error {
	if _, ok := t.data.priority[p.ID]; !ok {
		return store.ErrNotFound
	}
	t.data.priority[p.ID] = p.Clone()
	return nil
}

func accountKey(accountType string, owner sql.NullString) string {
	if !owner.Valid {
		return accountType + "|"
	}
	return accountType + "|" + owner.String
}

func (t *tx) GetAccountForUpdate(ctx context.Context, accountType string, ownerUserID sql.NullString) (*models.Account, error) {
	key := accountKey(accountType, ownerUserID)
	if id, ok := t.data.accountIndex[key]; ok {
		a := t.data.accounts[id]
		return &a, nil
	}
	t.data.nextAccountID++
	now := t.now()
	a := models.Account{
		ID:          t.data.nextAccountID,
		AccountType: accountType,
		OwnerUserID: ownerUserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.data.accounts[a.ID] = a
	t.data.accountIndex[key] = a.ID
	return &a, nil
}

func (t *tx) GetAccount(ctx context.Context, accountType string, ownerUserID sql.NullString) (*models.Account, error) {
	id, ok := t.data.accountIndex[accountKey(accountType, ownerUserID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	a := t.data.accounts[id]
	return &a, nil
}

func (t *tx) SetAccountBalance(ctx context.Context, accountID int64, balance int64) error {
	a, ok := t.data.accounts[accountID]
	if !ok {
		return store.ErrNotFound
	}
	a.Balance = balance
	a.UpdatedAt = t.now()
	t.data.accounts[accountID] = a
	return nil
}

func (t *tx) InsertAccountTransaction(ctx context.Context, at *models.AccountTransaction) error {
	at.ID = int64(len(t.data.transactions) + 1)
	if at.CreatedAt.IsZero() {
		at.CreatedAt = t.now()
	}
	t.data.transactions = append(t.data.transactions, *at)
	return nil
}

func (t *tx) InsertSettlement(ctx context.Context, s *models.Settlement) (bool, error) {
	if _, exists := t.data.settlements[s.MatchID]; exists {
		return false, nil
	}
	t.data.settlements[s.MatchID] = *s
	return true, nil
}

func (t *tx) GetSettlement(ctx context.Context, matchID string) (*models.Settlement, error) {
	s, ok := t.data.settlements[matchID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}
