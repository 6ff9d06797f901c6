package game

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/playmatatu/duel/internal/events"
	"github.com/playmatatu/duel/internal/ledger"
	"github.com/playmatatu/duel/internal/models"
	"github.com/playmatatu/duel/internal/store"
)

type SubmitResult struct {
	Applied bool          `json:"applied"`
	Match   *models.Match `json:"-"`
}

// SubmitProgress merges a player's snapshot into the canonical state. Only
// the submitter's own progress is touched. The first applied submission
// after both seats are filled starts the match, and a submission that
// finishes the player triggers CompleteIfReady.
func (m *Manager) SubmitProgress(ctx context.Context, matchID, userID string, snap Snapshot) (*SubmitResult, error) {
	var (
		box      outbox
		res      SubmitResult
		finished bool
	)
	err := m.store.WithinTx(ctx, func(tx store.Tx) error {
		box.reset()
		finished = false
		now := m.clock.Now()

		match, err := tx.GetMatchForUpdate(ctx, matchID)
		if err != nil {
			return err
		}
		if !match.HasPlayer(userID) {
			return ErrNotParticipant
		}
		if match.Status.Terminal() {
			return fmt.Errorf("match %s is %s: %w", matchID, match.Status, ErrMatchClosed)
		}

		cur := match.State.Progress(userID)
		next, applied, err := mergeProgress(cur, snap, len(match.ProblemIDs), now)
		if err != nil {
			return err
		}
		res = SubmitResult{Applied: applied, Match: match}
		if !applied {
			return nil
		}

		if match.State.Players == nil {
			match.State.Players = map[string]models.PlayerProgress{}
		}
		match.State.Players[userID] = next
		if match.Status == models.MatchWaiting && match.Player2ID.Valid {
			match.Status = models.MatchInProgress
			match.StartedAt = nullTime(now)
			box.add(events.Event{Type: events.MatchStarted, MatchID: match.ID, Players: match.Players(), Status: string(match.Status)})
		}
		if err := tx.UpdateMatch(ctx, match); err != nil {
			return err
		}

		finished = next.Finished && !cur.Finished
		box.add(events.Event{Type: events.ProgressMerged, MatchID: match.ID, UserID: userID, Status: string(match.Status)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.flush(ctx, &box)

	if finished {
		if _, err := m.CompleteIfReady(ctx, matchID); err != nil {
			m.logger.Error("auto completion failed", "match_id", matchID, "error", err)
		}
	}
	return &res, nil
}

// CompletionStatus is the answer of CompleteIfReady.
type CompletionStatus string

const (
	Completed    CompletionStatus = "completed"
	StillWaiting CompletionStatus = "still_waiting"
)

type Completion struct {
	Status CompletionStatus `json:"status"`
	Outcome
}

func completedFrom(match *models.Match) *Completion {
	if match.WinnerID.Valid {
		return &Completion{Status: Completed, Outcome: Outcome{WinnerID: match.WinnerID.String}}
	}
	return &Completion{Status: Completed, Outcome: Outcome{Draw: true}}
}

// CompleteIfReady completes the match once both players have finished. It is
// idempotent: a completed match returns its stored result, and payout happens
// at most once.
func (m *Manager) CompleteIfReady(ctx context.Context, matchID string) (*Completion, error) {
	var (
		box    outbox
		result *Completion
		closed bool
	)
	err := m.store.WithinTx(ctx, func(tx store.Tx) error {
		box.reset()
		closed = false
		now := m.clock.Now()

		match, err := tx.GetMatchForUpdate(ctx, matchID)
		if err != nil {
			return err
		}
		switch match.Status {
		case models.MatchCompleted:
			result = completedFrom(match)
			return nil
		case models.MatchCancelled:
			return fmt.Errorf("match %s was cancelled: %w", matchID, ErrMatchClosed)
		}

		if !match.Player2ID.Valid {
			result = &Completion{Status: StillWaiting}
			return nil
		}
		p1ID, p2ID := match.Player1ID, match.Player2ID.String
		p1, p2 := match.State.Progress(p1ID), match.State.Progress(p2ID)
		if !p1.Finished || !p2.Finished {
			result = &Completion{Status: StillWaiting}
			return nil
		}

		outcome := decideWinner(p1ID, p1, p2ID, p2)
		if err := m.settle(ctx, tx, match, outcome); err != nil {
			return err
		}

		match.Status = models.MatchCompleted
		match.WinnerID = nullString(outcome.WinnerID)
		match.CompletedAt = nullTime(now)
		if !match.StartedAt.Valid {
			match.StartedAt = nullTime(now)
		}
		if err := tx.UpdateMatch(ctx, match); err != nil {
			return err
		}

		if match.IsPriority {
			p, err := tx.GetPriorityMatchByMatch(ctx, match.ID)
			if err != nil {
				return fmt.Errorf("priority match for %s: %w", match.ID, err)
			}
			p.Status = models.PriorityCompleted
			p.Player1Result = &p1
			p.Player2Result = &p2
			p.WinnerID = match.WinnerID
			if err := tx.UpdatePriorityMatch(ctx, p); err != nil {
				return err
			}
		}

		result = &Completion{Status: Completed, Outcome: outcome}
		closed = true
		box.add(events.Event{
			Type: events.MatchCompleted, MatchID: match.ID, Players: match.Players(),
			Status: string(match.Status), WinnerID: outcome.WinnerID, Draw: outcome.Draw,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.flush(ctx, &box)
	if closed {
		m.logger.Info("match completed", "match_id", matchID, "winner_id", result.WinnerID, "draw", result.Draw)
		m.archive(ctx, matchID)
	}
	return result, nil
}

// settle pays the pot to the winner, or back to both players on a draw.
// Losing the settlement claim means someone already paid; nothing is credited.
func (m *Manager) settle(ctx context.Context, tx store.Tx, match *models.Match, outcome Outcome) error {
	if !match.Key().Staked() {
		return nil
	}
	pot := 2 * match.Stake
	s := &models.Settlement{MatchID: match.ID, Amount: pot, WinnerID: nullString(outcome.WinnerID)}
	if outcome.Draw {
		s.Kind = models.SettlementDrawRefund
	} else {
		s.Kind = models.SettlementPayout
	}

	err := m.ledger.ClaimSettlement(ctx, tx, s)
	if errors.Is(err, ledger.ErrAlreadySettled) {
		m.logger.Warn("settlement already claimed", "match_id", match.ID)
		return nil
	}
	if err != nil {
		return err
	}

	if outcome.Draw {
		for _, uid := range match.Players() {
			if err := m.ledger.Credit(ctx, tx, uid, match.Stake, match.ID, ledger.RefRefund); err != nil {
				return err
			}
		}
		return nil
	}
	return m.ledger.Credit(ctx, tx, outcome.WinnerID, pot, match.ID, ledger.RefPayout)
}

// CancelMatch is the operator path out of a stuck match. Every stake taken
// for it is refunded once.
func (m *Manager) CancelMatch(ctx context.Context, matchID, reason string) (*models.Match, error) {
	var (
		box    outbox
		out    *models.Match
		closed bool
	)
	err := m.store.WithinTx(ctx, func(tx store.Tx) error {
		box.reset()
		closed = false
		now := m.clock.Now()

		match, err := tx.GetMatchForUpdate(ctx, matchID)
		if err != nil {
			return err
		}
		switch match.Status {
		case models.MatchCancelled:
			out = match
			return nil
		case models.MatchCompleted:
			return fmt.Errorf("match %s already completed: %w", matchID, ErrMatchClosed)
		}

		if match.Key().Staked() {
			players := match.Players()
			err := m.ledger.ClaimSettlement(ctx, tx, &models.Settlement{
				MatchID: match.ID,
				Kind:    models.SettlementCancelRefund,
				Amount:  match.Stake * int64(len(players)),
			})
			switch {
			case errors.Is(err, ledger.ErrAlreadySettled):
				m.logger.Warn("settlement already claimed", "match_id", match.ID)
			case err != nil:
				return err
			default:
				for _, uid := range players {
					if err := m.ledger.Credit(ctx, tx, uid, match.Stake, match.ID, ledger.RefRefund); err != nil {
						return err
					}
				}
			}
		}

		match.Status = models.MatchCancelled
		match.CompletedAt = nullTime(now)
		if err := tx.UpdateMatch(ctx, match); err != nil {
			return err
		}
		if match.IsPriority {
			p, err := tx.GetPriorityMatchByMatch(ctx, match.ID)
			if err != nil {
				return fmt.Errorf("priority match for %s: %w", match.ID, err)
			}
			p.Status = models.PriorityCancelled
			if err := tx.UpdatePriorityMatch(ctx, p); err != nil {
				return err
			}
		}

		out = match
		closed = true
		box.add(events.Event{Type: events.MatchCancelled, MatchID: match.ID, Players: match.Players(), Status: string(match.Status), Reason: reason})
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.flush(ctx, &box)
	if closed {
		m.logger.Info("match cancelled", "match_id", matchID, "reason", reason)
		m.archive(ctx, matchID)
	}
	return out, nil
}

// MatchState is the read model served to clients.
type MatchState struct {
	Match      *models.Match         `json:"-"`
	Priority   *models.PriorityMatch `json:"-"`
	Settlement *models.Settlement    `json:"-"`
}

// GetMatchState returns the match, its priority record and settlement if any.
func (m *Manager) GetMatchState(ctx context.Context, matchID string) (*MatchState, error) {
	match, err := m.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	st := &MatchState{Match: match}
	if match.IsPriority {
		if p, err := m.store.GetPriorityMatchByMatch(ctx, matchID); err == nil {
			st.Priority = p
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	if s, err := m.store.GetSettlement(ctx, matchID); err == nil {
		st.Settlement = s
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return st, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}
