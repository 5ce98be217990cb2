package rankings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/trainload/internal/trainload"
)

func datePtr(d int) *time.Time {
	t := time.Date(2025, 5, d, 12, 0, 0, 0, time.UTC)
	return &t
}

func TestBuildLeaderboard(t *testing.T) {
	bests := []trainload.ExerciseBest{
		{UserID: "u1", BestWeight: 100, BestWeightDate: datePtr(3)},
		{UserID: "u2", BestWeight: 120, BestWeightDate: datePtr(5)},
		{UserID: "u3", BestWeight: 100, BestWeightDate: datePtr(1)}, // same value as u1, earlier
		{UserID: "u4", BestWeight: 90, BestWeightDate: datePtr(2)},
		{UserID: "u5", BestWeight: 0}, // no value, left out
	}

	lb := BuildLeaderboard("bench", trainload.StatWeight, bests, 3, "u4")
	assert.Equal(t, "bench", lb.ExerciseID)
	assert.Equal(t, trainload.StatWeight, lb.StatKind)
	assert.Equal(t, 4, lb.TotalUsers)
	require.Len(t, lb.Entries, 3)

	// ordinal ranks, ties broken by earlier date
	assert.Equal(t, []string{"u2", "u3", "u1"}, []string{
		lb.Entries[0].UserID, lb.Entries[1].UserID, lb.Entries[2].UserID,
	})
	assert.Equal(t, 1, lb.Entries[0].Rank)
	assert.Equal(t, 2, lb.Entries[1].Rank)
	assert.Equal(t, 3, lb.Entries[2].Rank)

	// requesting user outside the top gets their own row
	require.NotNil(t, lb.UserEntry)
	assert.Equal(t, "u4", lb.UserEntry.UserID)
	assert.Equal(t, 4, lb.UserEntry.Rank)
}

func TestBuildLeaderboard_UserInTop(t *testing.T) {
	bests := []trainload.ExerciseBest{
		{UserID: "u1", BestWeight: 100, BestWeightDate: datePtr(1)},
		{UserID: "u2", BestWeight: 90, BestWeightDate: datePtr(2)},
	}
	lb := BuildLeaderboard("bench", trainload.StatWeight, bests, 10, "u1")
	require.Len(t, lb.Entries, 2)
	assert.Nil(t, lb.UserEntry)
}

func TestBuildLeaderboard_OneRepMax(t *testing.T) {
	bests := []trainload.ExerciseBest{
		{UserID: "u1", BestWeight: 100, BestOneRepMax: 105, BestOneRepMaxDate: datePtr(1)},
		{UserID: "u2", BestWeight: 90, BestOneRepMax: 115, BestOneRepMaxDate: datePtr(2)},
	}
	lb := BuildLeaderboard("bench", trainload.StatOneRepMax, bests, 10, "")
	require.Len(t, lb.Entries, 2)
	// ranked by 1RM, not by weight
	assert.Equal(t, "u2", lb.Entries[0].UserID)
	assert.InDelta(t, 115, lb.Entries[0].Value, 0.0001)
}
