// Package game pairs players into matches, converts unanswered joins into
// priority matches and reconciles the progress both players submit.
package game

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/playmatatu/duel/internal/events"
	"github.com/playmatatu/duel/internal/ledger"
	"github.com/playmatatu/duel/internal/models"
	"github.com/playmatatu/duel/internal/store"
)

// Archiver receives a copy of every match that reaches a terminal state.
type Archiver interface {
	ArchiveMatch(ctx context.Context, rec ArchiveRecord) error
}

// ArchiveRecord is the audit snapshot of a finished or cancelled match.
type ArchiveRecord struct {
	Match      models.Match          `json:"match"`
	Priority   *models.PriorityMatch `json:"priority,omitempty"`
	Settlement *models.Settlement    `json:"settlement,omitempty"`
}

type Options struct {
	QueueWait       time.Duration
	MaxJoinAttempts int
	MinStake        int64
	ProblemCount    int

	Clock     clockwork.Clock
	Logger    *slog.Logger
	Publisher events.Publisher
	Problems  ProblemSource
	Archiver  Archiver
}

// Manager owns every queue and match transition.
type Manager struct {
	store  store.Store
	ledger *ledger.Ledger
	opts   Options
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewManager(st store.Store, l *ledger.Ledger, opts Options) *Manager {
	if opts.QueueWait <= 0 {
		opts.QueueWait = 180 * time.Second
	}
	if opts.MaxJoinAttempts <= 0 {
		opts.MaxJoinAttempts = 5
	}
	if opts.ProblemCount <= 0 {
		opts.ProblemCount = 10
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NewLogPublisher(opts.Logger)
	}
	if opts.Problems == nil {
		opts.Problems = SeededProblems{PoolSize: 500}
	}
	return &Manager{
		store:  st,
		ledger: l,
		opts:   opts,
		clock:  opts.Clock,
		logger: opts.Logger.With("component", "game"),
	}
}

func (m *Manager) Store() store.Store { return m.store }

func (m *Manager) Ledger() *ledger.Ledger { return m.ledger }

func (m *Manager) newID() string { return uuid.NewString() }

// newMatch builds a match with its problem sequence already assigned.
func (m *Manager) newMatch(key models.PairingKey, player1 string, now time.Time) *models.Match {
	id := m.newID()
	return &models.Match{
		ID:         id,
		GameID:     key.GameID,
		Stake:      key.Stake,
		Mode:       key.Mode,
		Player1ID:  player1,
		Status:     models.MatchWaiting,
		ProblemIDs: m.opts.Problems.Problems(key.GameID, id, m.opts.ProblemCount),
		State:      models.CanonicalState{Players: map[string]models.PlayerProgress{}},
		CreatedAt:  now,
	}
}

// outbox collects events inside a transaction; they are published only
// after the commit.
type outbox struct {
	events []events.Event
}

func (o *outbox) add(e events.Event) { o.events = append(o.events, e) }

func (o *outbox) reset() { o.events = o.events[:0] }

func (m *Manager) flush(ctx context.Context, o *outbox) {
	for _, e := range o.events {
		if e.At.IsZero() {
			e.At = m.clock.Now()
		}
		if err := m.opts.Publisher.Publish(ctx, e); err != nil {
			m.logger.Warn("event publish failed", "type", e.Type, "match_id", e.MatchID, "error", err)
		}
	}
}

func (m *Manager) archive(ctx context.Context, matchID string) {
	if m.opts.Archiver == nil {
		return
	}
	rec := ArchiveRecord{}
	match, err := m.store.GetMatch(ctx, matchID)
	if err != nil {
		m.logger.Warn("archive: load match failed", "match_id", matchID, "error", err)
		return
	}
	rec.Match = *match
	if p, err := m.store.GetPriorityMatchByMatch(ctx, matchID); err == nil {
		rec.Priority = p
	}
	if s, err := m.store.GetSettlement(ctx, matchID); err == nil {
		rec.Settlement = s
	}
	if err := m.opts.Archiver.ArchiveMatch(ctx, rec); err != nil {
		m.logger.Error("archive failed", "match_id", matchID, "error", err)
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
