package game

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/playmatatu/duel/internal/events"
	"github.com/playmatatu/duel/internal/ledger"
	"github.com/playmatatu/duel/internal/models"
	"github.com/playmatatu/duel/internal/store"
	"github.com/playmatatu/duel/internal/store/memstore"
)

const (
	testStake    = int64(500)
	testProblems = 3
)

var start = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ctx context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) count(typ string) int {
	n := 0
	for _, t := range r.types() {
		if t == typ {
			n++
		}
	}
	return n
}

type archiveRecorder struct {
	mu      sync.Mutex
	records []ArchiveRecord
}

func (a *archiveRecorder) ArchiveMatch(ctx context.Context, rec ArchiveRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

type fixture struct {
	m        *Manager
	store    *memstore.Store
	clock    *clockwork.FakeClock
	events   *recorder
	archived *archiveRecorder
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	clock := clockwork.NewFakeClockAt(start)
	rec := &recorder{}
	arch := &archiveRecorder{}
	logger := quietLogger()
	m := NewManager(st, ledger.New(logger), Options{
		QueueWait:       3 * time.Minute,
		MaxJoinAttempts: 5,
		MinStake:        100,
		ProblemCount:    testProblems,
		Clock:           clock,
		Logger:          logger,
		Publisher:       rec,
		Archiver:        arch,
	})
	return &fixture{m: m, store: st, clock: clock, events: rec, archived: arch}
}

func (f *fixture) fund(t *testing.T, user string, amount int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.WithinTx(ctx, func(tx store.Tx) error {
		return f.m.ledger.Deposit(ctx, tx, user, amount, "test")
	}))
}

func (f *fixture) balance(t *testing.T, user string) int64 {
	t.Helper()
	b, err := f.m.ledger.Balance(context.Background(), f.store, user)
	require.NoError(t, err)
	return b
}

func (f *fixture) escrow(t *testing.T) int64 {
	t.Helper()
	acc, err := f.store.GetAccount(context.Background(), models.AccountEscrow, nullString(""))
	if err != nil {
		return 0
	}
	return acc.Balance
}

// ledgerTotals sums stake debits and settlement credits.
func (f *fixture) ledgerTotals() (debits, credits int64) {
	for _, tr := range f.store.Transactions() {
		switch tr.ReferenceType {
		case ledger.RefStake:
			debits += tr.Amount
		case ledger.RefPayout, ledger.RefRefund:
			credits += tr.Amount
		}
	}
	return debits, credits
}

func ranked(user string) JoinRequest {
	return JoinRequest{UserID: user, GameID: "trivia", Stake: testStake, Mode: models.ModeRanked}
}

// answers returns a full answer set with the first `correct` answers right.
func answers(correct int, elapsedMs int64) []models.Answer {
	out := make([]models.Answer, testProblems)
	for i := range out {
		out[i] = models.Answer{Index: i, Value: "x", Correct: i < correct, ElapsedMs: elapsedMs}
	}
	return out
}
