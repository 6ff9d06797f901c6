package models

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Mode values. Free contests never touch the ledger.
const (
	ModeRanked = "ranked"
	ModeFree   = "free"
)

// QueueStatus is the lifecycle of a join request waiting for an opponent
type QueueStatus string

const (
	QueueWaiting   QueueStatus = "waiting"
	QueueMatched   QueueStatus = "matched"
	QueueExpired   QueueStatus = "expired"
	QueueCancelled QueueStatus = "cancelled"
)

// MatchStatus is the lifecycle of a contest. Transitions only move forward.
type MatchStatus string

const (
	MatchWaiting    MatchStatus = "waiting"
	MatchInProgress MatchStatus = "in_progress"
	MatchCompleted  MatchStatus = "completed"
	MatchCancelled  MatchStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s MatchStatus) Terminal() bool {
	return s == MatchCompleted || s == MatchCancelled
}

// PriorityStatus is the lifecycle of a solo-first contest
type PriorityStatus string

const (
	PriorityWaitingPlayer2 PriorityStatus = "waiting_player2"
	PriorityCompleted      PriorityStatus = "completed"
	PriorityCancelled      PriorityStatus = "cancelled"
)

// PairingKey identifies compatible join requests.
type PairingKey struct {
	GameID string
	Stake  int64
	Mode   string
}

func (k PairingKey) String() string {
	return fmt.Sprintf("%s:%d:%s", k.GameID, k.Stake, k.Mode)
}

// Staked reports whether contests under this key move money.
func (k PairingKey) Staked() bool {
	return k.Mode != ModeFree && k.Stake > 0
}

// QueueEntry represents a player waiting in the matchmaking queue
type QueueEntry struct {
	ID        string         `db:"id" json:"id"`
	UserID    string         `db:"user_id" json:"user_id"`
	GameID    string         `db:"game_id" json:"game_id"`
	Stake     int64          `db:"stake" json:"stake"`
	Mode      string         `db:"mode" json:"mode"`
	Status    QueueStatus    `db:"status" json:"status"`
	MatchID   sql.NullString `db:"match_id" json:"-"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	ExpiresAt time.Time      `db:"expires_at" json:"expires_at"`
}

func (q QueueEntry) Key() PairingKey {
	return PairingKey{GameID: q.GameID, Stake: q.Stake, Mode: q.Mode}
}

// Match is a contest between two player slots
type Match struct {
	ID          string         `db:"id"`
	GameID      string         `db:"game_id"`
	Stake       int64          `db:"stake"`
	Mode        string         `db:"mode"`
	Player1ID   string         `db:"player1_id"`
	Player2ID   sql.NullString `db:"player2_id"`
	Status      MatchStatus    `db:"status"`
	IsPriority  bool           `db:"is_priority"`
	ProblemIDs  pq.StringArray `db:"problem_ids"`
	State       CanonicalState `db:"canonical_state"`
	WinnerID    sql.NullString `db:"winner_id"`
	CreatedAt   time.Time      `db:"created_at"`
	StartedAt   sql.NullTime   `db:"started_at"`
	CompletedAt sql.NullTime   `db:"completed_at"`
}

func (m Match) Key() PairingKey {
	return PairingKey{GameID: m.GameID, Stake: m.Stake, Mode: m.Mode}
}

// HasPlayer reports whether userID holds one of the two slots.
func (m Match) HasPlayer(userID string) bool {
	return m.Player1ID == userID || (m.Player2ID.Valid && m.Player2ID.String == userID)
}

// Players returns the filled slots in slot order.
func (m Match) Players() []string {
	if m.Player2ID.Valid {
		return []string{m.Player1ID, m.Player2ID.String}
	}
	return []string{m.Player1ID}
}

// Clone returns a copy that shares no mutable memory with m.
func (m Match) Clone() Match {
	c := m
	c.ProblemIDs = append(pq.StringArray(nil), m.ProblemIDs...)
	c.State = m.State.Clone()
	return c
}

// PriorityMatch is a contest played solo first and held open for a later joiner
type PriorityMatch struct {
	ID              string          `db:"id"`
	OriginalMatchID string          `db:"original_match_id"`
	GameID          string          `db:"game_id"`
	Stake           int64           `db:"stake"`
	Mode            string          `db:"mode"`
	Player1ID       string          `db:"player1_id"`
	Player2ID       sql.NullString  `db:"player2_id"`
	Status          PriorityStatus  `db:"status"`
	Player1Result   *PlayerProgress `db:"player1_result"`
	Player2Result   *PlayerProgress `db:"player2_result"`
	WinnerID        sql.NullString  `db:"winner_id"`
	CreatedAt       time.Time       `db:"created_at"`
	PairedAt        sql.NullTime    `db:"paired_at"`
}

func (p PriorityMatch) Clone() PriorityMatch {
	c := p
	if p.Player1Result != nil {
		r := p.Player1Result.Clone()
		c.Player1Result = &r
	}
	if p.Player2Result != nil {
		r := p.Player2Result.Clone()
		c.Player2Result = &r
	}
	return c
}

// Account types
const (
	AccountPlayerWallet = "player_wallet"
	AccountEscrow       = "escrow"
)

// Account holds a spendable balance in minor units
type Account struct {
	ID          int64          `db:"id" json:"id"`
	AccountType string         `db:"account_type" json:"account_type"`
	OwnerUserID sql.NullString `db:"owner_user_id" json:"owner_user_id,omitempty"`
	Balance     int64          `db:"balance" json:"balance"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// AccountTransaction is one double-entry movement between accounts.
// A null debit account means money entering the system.
type AccountTransaction struct {
	ID              int64          `db:"id"`
	DebitAccountID  sql.NullInt64  `db:"debit_account_id"`
	CreditAccountID int64          `db:"credit_account_id"`
	Amount          int64          `db:"amount"`
	ReferenceType   string         `db:"reference_type"`
	ReferenceID     sql.NullString `db:"reference_id"`
	Description     string         `db:"description"`
	CreatedAt       time.Time      `db:"created_at"`
}

// Settlement kinds
const (
	SettlementPayout       = "payout"
	SettlementDrawRefund   = "draw_refund"
	SettlementCancelRefund = "cancel_refund"
)

// Settlement marks a match as paid out. At most one exists per match.
type Settlement struct {
	MatchID   string         `db:"match_id"`
	Kind      string         `db:"kind"`
	WinnerID  sql.NullString `db:"winner_id"`
	Amount    int64          `db:"amount"`
	CreatedAt time.Time      `db:"created_at"`
}
