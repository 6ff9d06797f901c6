package game

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/playmatatu/duel/internal/models"
)

func progress(score int64, correct int, elapsedMs int64) models.PlayerProgress {
	return models.PlayerProgress{Score: score, Answers: answers(correct, elapsedMs), Finished: true}
}

func TestDecideWinner(t *testing.T) {
	tests := []struct {
		name string
		p1   models.PlayerProgress
		p2   models.PlayerProgress
		want Outcome
	}{
		{"higher score wins", progress(30, 1, 900), progress(20, 3, 10), Outcome{WinnerID: "p1"}},
		{"accuracy breaks score tie", progress(20, 1, 10), progress(20, 2, 900), Outcome{WinnerID: "p2"}},
		{"faster breaks accuracy tie", progress(20, 2, 100), progress(20, 2, 101), Outcome{WinnerID: "p1"}},
		{"full tie is a draw", progress(20, 2, 100), progress(20, 2, 100), Outcome{Draw: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decideWinner("p1", tt.p1, "p2", tt.p2))
		})
	}
}

func TestDecideWinnerIsSymmetric(t *testing.T) {
	a, b := progress(10, 2, 300), progress(10, 2, 200)
	assert.Equal(t, "b", decideWinner("a", a, "b", b).WinnerID)
	assert.Equal(t, "b", decideWinner("b", b, "a", a).WinnerID)
}

func TestSeededProblemsAreDeterministic(t *testing.T) {
	src := SeededProblems{PoolSize: 50}
	first := src.Problems("trivia", "m1", 10)
	assert.Len(t, first, 10)
	assert.Equal(t, first, src.Problems("trivia", "m1", 10))
	assert.NotEqual(t, first, src.Problems("trivia", "m2", 10))

	seen := map[string]bool{}
	for _, id := range first {
		assert.False(t, seen[id], "duplicate problem %s", id)
		seen[id] = true
	}
	assert.Len(t, SeededProblems{PoolSize: 2}.Problems("g", "m", 5), 5)
	assert.Nil(t, src.Problems("g", "m", 0))
}
