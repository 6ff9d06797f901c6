package game

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// ProblemSource assigns the problem sequence of a new match.
type ProblemSource interface {
	Problems(gameID, matchID string, n int) []string
}

// SeededProblems draws n distinct problems from a pool of PoolSize per game,
// seeded by game and match so a match always replays the same sequence.
type SeededProblems struct {
	PoolSize int
}

func (s SeededProblems) Problems(gameID, matchID string, n int) []string {
	if n <= 0 {
		return nil
	}
	pool := s.PoolSize
	if pool < n {
		pool = n
	}

	h := fnv.New64a()
	h.Write([]byte(gameID))
	h.Write([]byte{0})
	h.Write([]byte(matchID))
	r := rand.New(rand.NewSource(int64(h.Sum64())))

	ids := make([]string, n)
	for i, idx := range r.Perm(pool)[:n] {
		ids[i] = fmt.Sprintf("%s-%04d", gameID, idx)
	}
	return ids
}
