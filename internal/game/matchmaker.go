package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/playmatatu/duel/internal/events"
	"github.com/playmatatu/duel/internal/ledger"
	"github.com/playmatatu/duel/internal/models"
	"github.com/playmatatu/duel/internal/store"
)

// JoinOutcome tells the caller which branch of Join was taken.
type JoinOutcome string

const (
	Matched        JoinOutcome = "matched"
	PriorityJoined JoinOutcome = "priority_joined"
	Queued         JoinOutcome = "queued"
)

type JoinRequest struct {
	UserID string `json:"-"`
	GameID string `json:"game_id"`
	Stake  int64  `json:"stake"`
	Mode   string `json:"mode"`
}

func (r JoinRequest) Key() models.PairingKey {
	return models.PairingKey{GameID: r.GameID, Stake: r.Stake, Mode: r.Mode}
}

type JoinResult struct {
	Outcome   JoinOutcome `json:"outcome"`
	MatchID   string      `json:"match_id,omitempty"`
	QueueID   string      `json:"queue_id,omitempty"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
}

func (m *Manager) validateJoin(r *JoinRequest) error {
	r.GameID = strings.TrimSpace(r.GameID)
	if r.Mode == "" {
		r.Mode = models.ModeRanked
	}
	switch {
	case r.UserID == "":
		return fmt.Errorf("user id is required: %w", ErrInvalidRequest)
	case r.GameID == "":
		return fmt.Errorf("game_id is required: %w", ErrInvalidRequest)
	case r.Stake < 0:
		return fmt.Errorf("stake must not be negative: %w", ErrInvalidRequest)
	}
	switch r.Mode {
	case models.ModeFree:
		if r.Stake != 0 {
			return fmt.Errorf("free contests carry no stake: %w", ErrInvalidRequest)
		}
	case models.ModeRanked:
		if r.Stake < m.opts.MinStake {
			return fmt.Errorf("stake %d below minimum %d: %w", r.Stake, m.opts.MinStake, ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("unknown mode %q: %w", r.Mode, ErrInvalidRequest)
	}
	return nil
}

// Join pairs the user with a compatible opponent, fills an open priority
// match, or queues the user. A lost compare-and-swap re-runs the whole
// algorithm up to MaxJoinAttempts times.
func (m *Manager) Join(ctx context.Context, req JoinRequest) (*JoinResult, error) {
	if err := m.validateJoin(&req); err != nil {
		return nil, err
	}
	key := req.Key()
	log := m.logger.With("user_id", req.UserID, "key", key.String())

	var box outbox
	for attempt := 1; attempt <= m.opts.MaxJoinAttempts; attempt++ {
		var res *JoinResult
		box.reset()
		err := m.store.WithinTx(ctx, func(tx store.Tx) error {
			var err error
			res, err = m.joinOnce(ctx, tx, req.UserID, key, &box)
			return err
		})
		if errors.Is(err, ErrStaleQueueEntry) {
			log.Debug("join lost a race, retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		m.flush(ctx, &box)
		log.Info("join", "outcome", res.Outcome, "match_id", res.MatchID, "queue_id", res.QueueID)
		return res, nil
	}

	log.Warn("join retries exhausted", "attempts", m.opts.MaxJoinAttempts)
	return nil, ErrBusy
}

func (m *Manager) joinOnce(ctx context.Context, tx store.Tx, userID string, key models.PairingKey, box *outbox) (*JoinResult, error) {
	now := m.clock.Now()
	if err := tx.LockPairingKey(ctx, key); err != nil {
		return nil, err
	}

	// An identical join already waiting is returned as is. One that has
	// outlived its window is converted here, exactly as the reaper would.
	own, err := tx.FindUserQueueEntry(ctx, key, userID, time.Time{})
	switch {
	case err == nil && own.ExpiresAt.After(now):
		return queuedResult(own), nil
	case err == nil:
		if err := m.expireEntry(ctx, tx, own, now, box); err != nil {
			return nil, err
		}
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	if key.Staked() {
		if err := m.ledger.CheckFunds(ctx, tx, userID, key.Stake); err != nil {
			return nil, err
		}
	}

	if res, err := m.joinPriority(ctx, tx, userID, key, now, box); res != nil || err != nil {
		return res, err
	}
	if res, err := m.pairWaiting(ctx, tx, userID, key, now, box); res != nil || err != nil {
		return res, err
	}

	e := &models.QueueEntry{
		ID:        m.newID(),
		UserID:    userID,
		GameID:    key.GameID,
		Stake:     key.Stake,
		Mode:      key.Mode,
		Status:    models.QueueWaiting,
		CreatedAt: now,
		ExpiresAt: now.Add(m.opts.QueueWait),
	}
	if err := tx.InsertQueueEntry(ctx, e); err != nil {
		return nil, err
	}
	return queuedResult(e), nil
}

func queuedResult(e *models.QueueEntry) *JoinResult {
	exp := e.ExpiresAt
	return &JoinResult{Outcome: Queued, QueueID: e.ID, ExpiresAt: &exp}
}

// joinPriority seats the user as player2 of the oldest open priority match.
func (m *Manager) joinPriority(ctx context.Context, tx store.Tx, userID string, key models.PairingKey, now time.Time, box *outbox) (*JoinResult, error) {
	p, err := tx.FindWaitingPriorityMatch(ctx, key, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := tx.ClaimPriorityMatch(ctx, p.ID, userID, now); err != nil {
		return nil, err
	}
	match, err := tx.GetMatchForUpdate(ctx, p.OriginalMatchID)
	if err != nil {
		return nil, fmt.Errorf("priority match %s lost its match: %w", p.ID, err)
	}
	if match.Player2ID.Valid || match.Status.Terminal() {
		return nil, ErrStaleQueueEntry
	}
	match.Player2ID = nullString(userID)
	if err := tx.UpdateMatch(ctx, match); err != nil {
		return nil, err
	}
	if key.Staked() {
		if err := m.ledger.Debit(ctx, tx, userID, key.Stake, match.ID); err != nil {
			return nil, err
		}
	}

	box.add(events.Event{Type: events.MatchPaired, MatchID: match.ID, Players: match.Players(), Status: string(match.Status)})
	return &JoinResult{Outcome: PriorityJoined, MatchID: match.ID}, nil
}

// pairWaiting pairs the user with the oldest live waiting entry. A waiting
// player who can no longer cover the stake is dropped from the queue. The
// opponent's stake is taken first, under the wallet lock, so a balance spent
// elsewhere since they queued is seen here and never blamed on the joiner.
func (m *Manager) pairWaiting(ctx context.Context, tx store.Tx, userID string, key models.PairingKey, now time.Time, box *outbox) (*JoinResult, error) {
	for {
		opp, err := tx.FindWaitingQueueEntry(ctx, key, userID, now)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		match := m.newMatch(key, opp.UserID, now)
		match.Player2ID = nullString(userID)

		if key.Staked() {
			err := m.ledger.Debit(ctx, tx, opp.UserID, key.Stake, match.ID)
			if errors.Is(err, ledger.ErrInsufficientFunds) {
				if err := tx.TransitionQueueEntry(ctx, opp.ID, models.QueueCancelled, nullString(""), time.Time{}); err != nil {
					return nil, err
				}
				m.logger.Info("dropped underfunded queue entry", "queue_id", opp.ID, "user_id", opp.UserID)
				box.add(events.Event{Type: events.QueueCancelled, QueueID: opp.ID, UserID: opp.UserID, Reason: "insufficient_funds"})
				continue
			}
			if err != nil {
				return nil, err
			}
		}

		if err := tx.InsertMatch(ctx, match); err != nil {
			return nil, err
		}
		if err := tx.TransitionQueueEntry(ctx, opp.ID, models.QueueMatched, nullString(match.ID), now); err != nil {
			return nil, err
		}
		if key.Staked() {
			if err := m.ledger.Debit(ctx, tx, userID, key.Stake, match.ID); err != nil {
				return nil, err
			}
		}

		box.add(events.Event{Type: events.MatchCreated, MatchID: match.ID, QueueID: opp.ID, Players: match.Players(), Status: string(match.Status)})
		return &JoinResult{Outcome: Matched, MatchID: match.ID}, nil
	}
}

// Cancel withdraws a waiting queue entry owned by userID. An entry whose
// window has already closed is converted as the reaper would and reported
// as not found.
func (m *Manager) Cancel(ctx context.Context, queueID, userID string) error {
	var (
		box     outbox
		overdue bool
	)
	err := m.store.WithinTx(ctx, func(tx store.Tx) error {
		box.reset()
		overdue = false
		now := m.clock.Now()

		e, err := tx.GetQueueEntry(ctx, queueID)
		if err != nil {
			return err
		}
		if e.UserID != userID {
			return ErrNotFound
		}
		if err := tx.LockPairingKey(ctx, e.Key()); err != nil {
			return err
		}
		// re-read under the key lock
		e, err = tx.GetQueueEntry(ctx, queueID)
		if err != nil {
			return err
		}
		if e.Status != models.QueueWaiting {
			return ErrNotFound
		}
		if !e.ExpiresAt.After(now) {
			overdue = true
			return m.expireEntry(ctx, tx, e, now, &box)
		}

		err = tx.TransitionQueueEntry(ctx, queueID, models.QueueCancelled, nullString(""), now)
		if errors.Is(err, store.ErrConflict) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		box.add(events.Event{Type: events.QueueCancelled, QueueID: queueID, UserID: userID, Reason: "user"})
		return nil
	})
	if err != nil {
		return err
	}
	m.flush(ctx, &box)
	if overdue {
		m.logger.Info("cancel arrived after the wait window, entry converted", "queue_id", queueID, "user_id", userID)
		return fmt.Errorf("queue entry %s already expired: %w", queueID, ErrNotFound)
	}
	m.logger.Info("queue entry cancelled", "queue_id", queueID, "user_id", userID)
	return nil
}

// GetQueueEntry returns the caller's own entry so a polling client can find
// the match it ended up in.
func (m *Manager) GetQueueEntry(ctx context.Context, queueID, userID string) (*models.QueueEntry, error) {
	e, err := m.store.GetQueueEntry(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if e.UserID != userID {
		return nil, ErrNotFound
	}
	return e, nil
}
