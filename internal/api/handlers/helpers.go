package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/duel/internal/game"
	"github.com/playmatatu/duel/internal/ledger"
	"github.com/playmatatu/duel/internal/models"
)

// respondError maps domain errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, game.ErrInvalidRequest), errors.Is(err, ledger.ErrInvalidAmount):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, game.ErrInsufficientFunds):
		status, msg = http.StatusPaymentRequired, "insufficient funds"
	case errors.Is(err, game.ErrNotParticipant):
		status, msg = http.StatusForbidden, "not a participant of this match"
	case errors.Is(err, game.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, game.ErrMatchClosed):
		status, msg = http.StatusConflict, "match is closed"
	case errors.Is(err, game.ErrBusy):
		c.Header("Retry-After", "1")
		status, msg = http.StatusServiceUnavailable, "matchmaking busy, retry"
	default:
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

type queueEntryView struct {
	ID        string    `json:"id"`
	GameID    string    `json:"game_id"`
	Stake     int64     `json:"stake"`
	Mode      string    `json:"mode"`
	Status    string    `json:"status"`
	MatchID   string    `json:"match_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newQueueEntryView(e *models.QueueEntry) queueEntryView {
	return queueEntryView{
		ID:        e.ID,
		GameID:    e.GameID,
		Stake:     e.Stake,
		Mode:      e.Mode,
		Status:    string(e.Status),
		MatchID:   e.MatchID.String,
		CreatedAt: e.CreatedAt,
		ExpiresAt: e.ExpiresAt,
	}
}

type priorityView struct {
	ID            string                 `json:"id"`
	Status        string                 `json:"status"`
	Player1Result *models.PlayerProgress `json:"player1_result,omitempty"`
	Player2Result *models.PlayerProgress `json:"player2_result,omitempty"`
	PairedAt      *time.Time             `json:"paired_at,omitempty"`
}

type settlementView struct {
	Kind   string `json:"kind"`
	Amount int64  `json:"amount"`
}

type matchView struct {
	ID          string                           `json:"id"`
	GameID      string                           `json:"game_id"`
	Stake       int64                            `json:"stake"`
	Mode        string                           `json:"mode"`
	Player1ID   string                           `json:"player1_id"`
	Player2ID   string                           `json:"player2_id,omitempty"`
	Status      string                           `json:"status"`
	IsPriority  bool                             `json:"is_priority"`
	ProblemIDs  []string                         `json:"problem_ids"`
	Players     map[string]models.PlayerProgress `json:"players"`
	WinnerID    string                           `json:"winner_id,omitempty"`
	Draw        bool                             `json:"draw"`
	CreatedAt   time.Time                        `json:"created_at"`
	StartedAt   *time.Time                       `json:"started_at,omitempty"`
	CompletedAt *time.Time                       `json:"completed_at,omitempty"`
	Priority    *priorityView                    `json:"priority,omitempty"`
	Settlement  *settlementView                  `json:"settlement,omitempty"`
}

func timePtr(valid bool, t time.Time) *time.Time {
	if !valid {
		return nil
	}
	return &t
}

func newMatchView(st *game.MatchState) matchView {
	m := st.Match
	v := matchView{
		ID:          m.ID,
		GameID:      m.GameID,
		Stake:       m.Stake,
		Mode:        m.Mode,
		Player1ID:   m.Player1ID,
		Player2ID:   m.Player2ID.String,
		Status:      string(m.Status),
		IsPriority:  m.IsPriority,
		ProblemIDs:  []string(m.ProblemIDs),
		Players:     m.State.Players,
		WinnerID:    m.WinnerID.String,
		Draw:        m.Status == models.MatchCompleted && !m.WinnerID.Valid,
		CreatedAt:   m.CreatedAt,
		StartedAt:   timePtr(m.StartedAt.Valid, m.StartedAt.Time),
		CompletedAt: timePtr(m.CompletedAt.Valid, m.CompletedAt.Time),
	}
	if v.Players == nil {
		v.Players = map[string]models.PlayerProgress{}
	}
	if p := st.Priority; p != nil {
		v.Priority = &priorityView{
			ID:            p.ID,
			Status:        string(p.Status),
			Player1Result: p.Player1Result,
			Player2Result: p.Player2Result,
			PairedAt:      timePtr(p.PairedAt.Valid, p.PairedAt.Time),
		}
	}
	if s := st.Settlement; s != nil {
		v.Settlement = &settlementView{Kind: s.Kind, Amount: s.Amount}
	}
	return v
}
