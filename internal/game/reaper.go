package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"github.com/playmatatu/duel/internal/events"
	"github.com/playmatatu/duel/internal/ledger"
	"github.com/playmatatu/duel/internal/models"
	"github.com/playmatatu/duel/internal/store"
)

type ReaperOptions struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
}

// Reaper converts queue entries whose wait window elapsed into priority
// matches. The persisted expires_at column is its only schedule, so nothing
// is lost across restarts.
type Reaper struct {
	m         *Manager
	opts      ReaperOptions
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

func NewReaper(m *Manager, opts ReaperOptions) *Reaper {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Reaper{m: m, opts: opts, logger: m.opts.Logger.With("component", "reaper")}
}

// Start runs one sweep immediately and then every Interval until Stop.
func (r *Reaper) Start(ctx context.Context) error {
	s, err := gocron.NewScheduler(gocron.WithClock(r.m.clock))
	if err != nil {
		return fmt.Errorf("failed to create reaper scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(r.opts.Interval),
		gocron.NewTask(func() {
			if n, err := r.Sweep(ctx); err != nil {
				r.logger.Error("sweep failed", "error", err)
			} else if n > 0 {
				r.logger.Info("sweep converted entries", "count", n)
			}
		}),
		gocron.WithName("queue-reaper"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		s.Shutdown()
		return fmt.Errorf("failed to schedule reaper: %w", err)
	}
	s.Start()
	r.scheduler = s
	r.logger.Info("reaper started", "interval", r.opts.Interval, "batch", r.opts.BatchSize)
	return nil
}

func (r *Reaper) Stop() error {
	if r.scheduler == nil {
		return nil
	}
	return r.scheduler.Shutdown()
}

// Sweep converts every entry overdue at the current clock time and returns
// how many it handled. Entries claimed by a concurrent sweep are skipped.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	now := r.m.clock.Now()
	var total int
	for {
		entries, err := r.m.store.ListExpiredQueueEntries(ctx, now, r.opts.BatchSize)
		if err != nil {
			return total, err
		}
		if len(entries) == 0 {
			return total, nil
		}

		var handled atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.opts.Concurrency)
		for _, e := range entries {
			id := e.ID
			g.Go(func() error {
				ok, err := r.m.ExpireQueueEntry(gctx, id, now)
				if err != nil {
					r.logger.Error("convert failed", "queue_id", id, "error", err)
					return nil
				}
				if ok {
					handled.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return total, err
		}
		total += int(handled.Load())

		// a short batch was the tail; a full batch where nothing moved means
		// the rest is held by someone else
		if len(entries) < r.opts.BatchSize || handled.Load() == 0 {
			return total, ctx.Err()
		}
	}
}

// ExpireQueueEntry converts one overdue entry in its own transaction. It
// reports false when the entry was already handled or is not yet due.
func (m *Manager) ExpireQueueEntry(ctx context.Context, queueID string, now time.Time) (bool, error) {
	var box outbox
	converted := false
	err := m.store.WithinTx(ctx, func(tx store.Tx) error {
		converted = false
		box.reset()
		e, err := tx.GetQueueEntry(ctx, queueID)
		if err != nil {
			return err
		}
		if err := tx.LockPairingKey(ctx, e.Key()); err != nil {
			return err
		}
		// re-read under the key lock
		e, err = tx.GetQueueEntry(ctx, queueID)
		if err != nil {
			return err
		}
		if e.Status != models.QueueWaiting || e.ExpiresAt.After(now) {
			return nil
		}
		if err := m.expireEntry(ctx, tx, e, now, &box); err != nil {
			return err
		}
		converted = true
		return nil
	})
	if errors.Is(err, store.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	m.flush(ctx, &box)
	return converted, nil
}

// expireEntry turns a waiting entry into a solo-first priority match. A
// player who can no longer cover the stake is just expired.
func (m *Manager) expireEntry(ctx context.Context, tx store.Tx, e *models.QueueEntry, now time.Time, box *outbox) error {
	key := e.Key()
	log := m.logger.With("queue_id", e.ID, "user_id", e.UserID, "key", key.String())

	if key.Staked() {
		err := m.ledger.CheckFunds(ctx, tx, e.UserID, key.Stake)
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			if err := tx.TransitionQueueEntry(ctx, e.ID, models.QueueExpired, nullString(""), time.Time{}); err != nil {
				return err
			}
			log.Info("queue entry expired without priority match: insufficient funds")
			box.add(events.Event{Type: events.QueueExpired, QueueID: e.ID, UserID: e.UserID, Reason: "insufficient_funds"})
			return nil
		}
		if err != nil {
			return err
		}
	}

	match := m.newMatch(key, e.UserID, now)
	match.IsPriority = true
	if err := tx.InsertMatch(ctx, match); err != nil {
		return err
	}
	if err := tx.TransitionQueueEntry(ctx, e.ID, models.QueueExpired, nullString(match.ID), time.Time{}); err != nil {
		return err
	}
	p := &models.PriorityMatch{
		ID:              m.newID(),
		OriginalMatchID: match.ID,
		GameID:          key.GameID,
		Stake:           key.Stake,
		Mode:            key.Mode,
		Player1ID:       e.UserID,
		Status:          models.PriorityWaitingPlayer2,
		CreatedAt:       now,
	}
	if err := tx.InsertPriorityMatch(ctx, p); err != nil {
		return err
	}
	if key.Staked() {
		if err := m.ledger.Debit(ctx, tx, e.UserID, key.Stake, match.ID); err != nil {
			return err
		}
	}

	log.Info("queue entry converted to priority match", "match_id", match.ID, "priority_id", p.ID)
	box.add(events.Event{Type: events.QueueExpired, QueueID: e.ID, UserID: e.UserID, MatchID: match.ID})
	box.add(events.Event{Type: events.PriorityCreated, MatchID: match.ID, QueueID: e.ID, Players: match.Players(), Status: string(match.Status)})
	return nil
}
