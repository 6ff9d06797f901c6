package game

import (
	"fmt"
	"sort"
	"time"

	"github.com/playmatatu/duel/internal/models"
)

// Snapshot is what a client submits: its full view of its own progress.
type Snapshot struct {
	Seq     int64           `json:"seq"`
	Score   int64           `json:"score"`
	Answers []models.Answer `json:"answers"`
}

// mergeProgress folds an incoming snapshot into the stored progress of the
// same player. Recorded answers never change and a finished player is frozen.
// applied is false when the snapshot was ignored.
func mergeProgress(cur models.PlayerProgress, in Snapshot, problemCount int, now time.Time) (next models.PlayerProgress, applied bool, err error) {
	for _, a := range in.Answers {
		if a.Index < 0 || a.Index >= problemCount {
			return cur, false, fmt.Errorf("answer index %d outside [0,%d): %w", a.Index, problemCount, ErrInvalidRequest)
		}
		if a.ElapsedMs < 0 {
			return cur, false, fmt.Errorf("negative elapsed time for answer %d: %w", a.Index, ErrInvalidRequest)
		}
	}
	if cur.Finished || in.Seq < cur.Seq {
		return cur, false, nil
	}

	next = cur.Clone()
	next.Seq = in.Seq
	next.Score = in.Score
	next.UpdatedAt = now

	recorded := make(map[int]bool, len(next.Answers))
	for _, a := range next.Answers {
		recorded[a.Index] = true
	}
	for _, a := range in.Answers {
		if recorded[a.Index] {
			continue
		}
		recorded[a.Index] = true
		next.Answers = append(next.Answers, a)
	}
	sort.Slice(next.Answers, func(i, j int) bool { return next.Answers[i].Index < next.Answers[j].Index })

	next.Finished = problemCount > 0 && len(next.Answers) == problemCount
	return next, true, nil
}
