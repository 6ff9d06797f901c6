package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Answer is one player's response to the problem at Index.
type Answer struct {
	Index     int    `json:"index"`
	Value     string `json:"value"`
	Correct   bool   `json:"correct"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// PlayerProgress is the part of the canonical state owned by one player.
type PlayerProgress struct {
	Seq       int64     `json:"seq"`
	Score     int64     `json:"score"`
	Answers   []Answer  `json:"answers"`
	Finished  bool      `json:"finished"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p PlayerProgress) Clone() PlayerProgress {
	c := p
	c.Answers = append([]Answer(nil), p.Answers...)
	return c
}

// CorrectCount returns the number of answers marked correct.
func (p PlayerProgress) CorrectCount() int {
	n := 0
	for _, a := range p.Answers {
		if a.Correct {
			n++
		}
	}
	return n
}

// TotalElapsedMs sums the per-answer timings.
func (p PlayerProgress) TotalElapsedMs() int64 {
	var total int64
	for _, a := range p.Answers {
		total += a.ElapsedMs
	}
	return total
}

// Value stores a player result as JSONB.
func (p PlayerProgress) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *PlayerProgress) Scan(src interface{}) error {
	return scanJSON(src, p)
}

// CanonicalState is the merged record of both players' progress, keyed by user id.
type CanonicalState struct {
	Players map[string]PlayerProgress `json:"players"`
}

// Progress returns the progress owned by userID, or a zero value.
func (s CanonicalState) Progress(userID string) PlayerProgress {
	if s.Players == nil {
		return PlayerProgress{}
	}
	return s.Players[userID]
}

func (s CanonicalState) Clone() CanonicalState {
	c := CanonicalState{Players: make(map[string]PlayerProgress, len(s.Players))}
	for id, p := range s.Players {
		c.Players[id] = p.Clone()
	}
	return c
}

func (s CanonicalState) Value() (driver.Value, error) {
	if s.Players == nil {
		s.Players = map[string]PlayerProgress{}
	}
	return json.Marshal(s)
}

func (s *CanonicalState) Scan(src interface{}) error {
	if err := scanJSON(src, s); err != nil {
		return err
	}
	if s.Players == nil {
		s.Players = map[string]PlayerProgress{}
	}
	return nil
}

func scanJSON(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("cannot scan %T into %T", src, dest)
	}
}
