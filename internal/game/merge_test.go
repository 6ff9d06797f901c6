package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playmatatu/duel/internal/models"
)

func TestMergeUnionsAnswersAndKeepsRecordedOnes(t *testing.T) {
	cur := models.PlayerProgress{Seq: 1, Score: 10, Answers: []models.Answer{{Index: 0, Value: "a", Correct: true, ElapsedMs: 50}}}

	next, applied, err := mergeProgress(cur, Snapshot{
		Seq:   2,
		Score: 15,
		Answers: []models.Answer{
			{Index: 0, Value: "changed", Correct: false, ElapsedMs: 1},
			{Index: 2, Value: "c", ElapsedMs: 70},
		},
	}, 3, start)
	require.NoError(t, err)
	require.True(t, applied)

	assert.Equal(t, int64(2), next.Seq)
	assert.Equal(t, int64(15), next.Score)
	require.Len(t, next.Answers, 2)
	assert.Equal(t, "a", next.Answers[0].Value, "a recorded answer never changes")
	assert.Equal(t, 2, next.Answers[1].Index)
	assert.False(t, next.Finished)
	assert.Len(t, cur.Answers, 1, "input progress is not mutated")
}

func TestMergeIgnoresStaleSeq(t *testing.T) {
	cur := models.PlayerProgress{Seq: 4, Score: 10}
	next, applied, err := mergeProgress(cur, Snapshot{Seq: 3, Score: 99}, 3, start)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, cur, next)
}

func TestMergeFreezesFinishedPlayer(t *testing.T) {
	cur, applied, err := mergeProgress(models.PlayerProgress{}, Snapshot{Seq: 1, Score: 30, Answers: answers(3, 10)}, 3, start)
	require.NoError(t, err)
	require.True(t, applied)
	require.True(t, cur.Finished)

	next, applied, err := mergeProgress(cur, Snapshot{Seq: 9, Score: 100}, 3, start)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, int64(30), next.Score)
}

func TestMergeRejectsOutOfRangeIndex(t *testing.T) {
	for _, idx := range []int{-1, 3} {
		_, _, err := mergeProgress(models.PlayerProgress{}, Snapshot{Seq: 1, Answers: []models.Answer{{Index: idx}}}, 3, start)
		assert.ErrorIs(t, err, ErrInvalidRequest, "index %d", idx)
	}
}

func TestMergeDuplicateIndexInSnapshotKeepsFirst(t *testing.T) {
	next, _, err := mergeProgress(models.PlayerProgress{}, Snapshot{Seq: 1, Answers: []models.Answer{
		{Index: 1, Value: "first"}, {Index: 1, Value: "second"},
	}}, 3, start)
	require.NoError(t, err)
	require.Len(t, next.Answers, 1)
	assert.Equal(t, "first", next.Answers[0].Value)
}

func TestMergeCommutesAcrossOwners(t *testing.T) {
	a := Snapshot{Seq: 1, Score: 5, Answers: answers(1, 10)[:2]}
	b := Snapshot{Seq: 1, Score: 7, Answers: answers(2, 20)[1:]}

	apply := func(state models.CanonicalState, user string, s Snapshot) models.CanonicalState {
		next, _, err := mergeProgress(state.Progress(user), s, 3, start)
		require.NoError(t, err)
		out := state.Clone()
		out.Players[user] = next
		return out
	}
	empty := models.CanonicalState{Players: map[string]models.PlayerProgress{}}

	ab := apply(apply(empty, "alice", a), "bob", b)
	ba := apply(apply(empty, "bob", b), "alice", a)
	assert.Equal(t, ab, ba)
}
