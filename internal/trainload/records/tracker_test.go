package records

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/trainload/internal/trainload"
	"github.com/2beens/trainload/internal/trainload/store"
)

func TestOneRepMax(t *testing.T) {
	orm, err := OneRepMax(100, 1)
	require.NoError(t, err)
	assert.InDelta(t, 100, orm, 0.0001)

	orm, err = OneRepMax(100, 5)
	require.NoError(t, err)
	assert.InDelta(t, 112.5, orm, 0.0001)

	orm, err = OneRepMax(80, 10)
	require.NoError(t, err)
	assert.InDelta(t, 80*36.0/27.0, orm, 0.0001)

	_, err = OneRepMax(100, 37)
	assert.ErrorIs(t, err, trainload.ErrInvalidInput)
	_, err = OneRepMax(100, 50)
	assert.ErrorIs(t, err, trainload.ErrInvalidInput)
	_, err = OneRepMax(100, 0)
	assert.ErrorIs(t, err, trainload.ErrInvalidInput)
	_, err = OneRepMax(-10, 5)
	assert.ErrorIs(t, err, trainload.ErrInvalidInput)
}

func benchSet(setID string, weight float64, reps int, at time.Time) trainload.Set {
	return trainload.Set{
		SetID: setID, UserID: "u1", ExerciseID: "bench", WorkoutID: "w1",
		Weight: weight, Reps: reps, RecordedAt: at,
	}
}

func TestTracker_TrackSet(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(store.NewMemory())
	day1 := time.Date(2025, 5, 10, 18, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	pr, improved, err := tracker.TrackSet(ctx, benchSet("s1", 100, 5, day1))
	require.NoError(t, err)
	assert.True(t, improved.Weight)
	assert.True(t, improved.OneRepMax)
	assert.True(t, improved.Volume)
	assert.InDelta(t, 100, pr.BestWeight, 0.0001)
	assert.Equal(t, 5, pr.BestWeightReps)
	assert.InDelta(t, 112.5, pr.BestOneRepMax, 0.0001)
	assert.InDelta(t, 500, pr.BestSetVolume, 0.0001)
	assert.InDelta(t, 500, pr.TotalVolume, 0.0001)
	assert.Equal(t, 1, pr.TotalSets)
	assert.Equal(t, 5, pr.TotalReps)

	// lighter set improves nothing, totals still grow
	pr, improved, err = tracker.TrackSet(ctx, benchSet("s2", 80, 3, day2))
	require.NoError(t, err)
	assert.False(t, improved.Any())
	assert.InDelta(t, 100, pr.BestWeight, 0.0001)
	assert.InDelta(t, 740, pr.TotalVolume, 0.0001)
	assert.Equal(t, 2, pr.TotalSets)
	assert.Equal(t, 8, pr.TotalReps)

	// higher rep set can beat the 1RM and volume without beating the weight
	pr, improved, err = tracker.TrackSet(ctx, benchSet("s3", 95, 10, day2))
	require.NoError(t, err)
	assert.False(t, improved.Weight)
	assert.True(t, improved.OneRepMax)
	assert.True(t, improved.Volume)
	assert.InDelta(t, 95*36.0/27.0, pr.BestOneRepMax, 0.0001)
	assert.InDelta(t, 950, pr.BestSetVolume, 0.0001)
}

func TestTracker_TrackSet_TieKeepsEarlierDate(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(store.NewMemory())
	day1 := time.Date(2025, 5, 10, 18, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	_, _, err := tracker.TrackSet(ctx, benchSet("s1", 100, 5, day1))
	require.NoError(t, err)

	pr, improved, err := tracker.TrackSet(ctx, benchSet("s2", 100, 5, day2))
	require.NoError(t, err)
	assert.False(t, improved.Any())
	require.NotNil(t, pr.BestWeightDate)
	assert.Equal(t, day1, *pr.BestWeightDate)
	require.NotNil(t, pr.BestOneRepMaxDate)
	assert.Equal(t, day1, *pr.BestOneRepMaxDate)
}

func TestTracker_TrackSet_HighRepSetSkips1RM(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(store.NewMemory())
	at := time.Date(2025, 5, 10, 18, 0, 0, 0, time.UTC)

	pr, improved, err := tracker.TrackSet(ctx, benchSet("s1", 40, 40, at))
	require.NoError(t, err)
	assert.True(t, improved.Weight)
	assert.False(t, improved.OneRepMax)
	assert.True(t, improved.Volume)
	assert.Zero(t, pr.BestOneRepMax)
	assert.Nil(t, pr.BestOneRepMaxDate)
	assert.Equal(t, 40, pr.TotalReps)
}

func TestTracker_TrackSet_InvalidInput(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	tracker := NewTracker(mem)
	at := time.Now()

	_, _, err := tracker.TrackSet(ctx, benchSet("s1", -5, 5, at))
	assert.ErrorIs(t, err, trainload.ErrInvalidInput)
	_, _, err = tracker.TrackSet(ctx, benchSet("s2", 100, 0, at))
	assert.ErrorIs(t, err, trainload.ErrInvalidInput)

	// nothing persisted
	_, err = mem.GetPersonalRecord(ctx, "u1", "bench")
	assert.ErrorIs(t, err, trainload.ErrNotFound)
}

func TestTracker_Rebuild(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	tracker := NewTracker(mem)
	day1 := time.Date(2025, 5, 10, 18, 0, 0, 0, time.UTC)

	sets := []trainload.Set{
		benchSet("s1", 100, 5, day1),
		benchSet("s2", 80, 3, day1.Add(time.Hour)),
		benchSet("s3", 95, 10, day1.Add(2*time.Hour)),
	}
	for _, set := range sets {
		require.NoError(t, mem.AddSet(ctx, set))
		_, _, err := tracker.TrackSet(ctx, set)
		require.NoError(t, err)
	}
	incremental, err := mem.GetPersonalRecord(ctx, "u1", "bench")
	require.NoError(t, err)

	// a rebuild from the same history lands on the same record
	rebuilt, err := tracker.Rebuild(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rebuilt, 1)
	assert.Equal(t, *incremental, rebuilt[0])
}
