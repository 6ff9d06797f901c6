package game

import "github.com/playmatatu/duel/internal/models"

// Outcome is the result of a completed match. WinnerID is empty on a draw.
type Outcome struct {
	WinnerID string `json:"winner_id,omitempty"`
	Draw     bool   `json:"draw"`
}

// decideWinner ranks by score, then correct answers, then lower total time.
// Both players answered the same N problems, so correct count orders the same
// way accuracy does.
func decideWinner(p1ID string, p1 models.PlayerProgress, p2ID string, p2 models.PlayerProgress) Outcome {
	if c := compareProgress(p1, p2); c > 0 {
		return Outcome{WinnerID: p1ID}
	} else if c < 0 {
		return Outcome{WinnerID: p2ID}
	}
	return Outcome{Draw: true}
}

func compareProgress(a, b models.PlayerProgress) int {
	switch {
	case a.Score != b.Score:
		return sign(a.Score - b.Score)
	case a.CorrectCount() != b.CorrectCount():
		return sign(int64(a.CorrectCount() - b.CorrectCount()))
	default:
		return sign(b.TotalElapsedMs() - a.TotalElapsedMs())
	}
}

func sign(v int64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
