package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/trainload/internal/telemetry/metrics"
	"github.com/2beens/trainload/internal/trainload"
	"github.com/2beens/trainload/internal/trainload/achievements"
	"github.com/2beens/trainload/internal/trainload/fatigue"
	"github.com/2beens/trainload/internal/trainload/store"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.Memory) {
	t.Helper()
	catalog, err := achievements.DefaultCatalog()
	require.NoError(t, err)
	mem := store.NewMemory()
	return New(mem, fatigue.DefaultCurve(), catalog, time.UTC, metrics.NewTestManager(), nil), mem
}

func testSet(setID, workoutID string, weight float64, reps int, at time.Time) trainload.Set {
	return trainload.Set{
		SetID: setID, UserID: "u1", ExerciseID: "bench", WorkoutID: workoutID,
		Weight: weight, Reps: reps,
		Involvement: []trainload.MuscleInvolvement{
			{MuscleGroup: trainload.MuscleChest, Factor: 1},
			{MuscleGroup: trainload.MuscleTriceps, Factor: 0.6},
		},
		RecordedAt: at,
	}
}

func TestDispatcher_OnSetRecorded(t *testing.T) {
	ctx := context.Background()
	d, mem := newTestDispatcher(t)
	at := time.Date(2025, 5, 10, 18, 0, 0, 0, time.UTC)

	newly, err := d.OnSetRecorded(ctx, testSet("s1", "w1", 100, 5, at))
	require.NoError(t, err)
	assert.Empty(t, newly) // no volume/exercise achievements at 500 kg yet

	pr, err := mem.GetPersonalRecord(ctx, "u1", "bench")
	require.NoError(t, err)
	assert.InDelta(t, 100, pr.BestWeight, 0.0001)

	userStats, err := mem.GetUserStatistics(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, userStats.TotalSets)
	assert.Equal(t, 5, userStats.TotalReps)
	assert.InDelta(t, 500, userStats.TotalVolume, 0.0001)
	assert.Equal(t, 1, userStats.TotalPRs)
	assert.Zero(t, userStats.TotalWorkouts)
}

func TestDispatcher_OnSetRecorded_EarnsVolumeAchievement(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDispatcher(t)
	at := time.Date(2025, 5, 10, 18, 0, 0, 0, time.UTC)

	// 2 x 600 kg crosses the 1000 kg threshold on the second set
	_, err := d.OnSetRecorded(ctx, testSet("s1", "w1", 120, 5, at))
	require.NoError(t, err)
	newly, err := d.OnSetRecorded(ctx, testSet("s2", "w1", 120, 5, at.Add(time.Minute)))
	require.NoError(t, err)

	require.Len(t, newly, 1)
	assert.Equal(t, "total_volume_1000", newly[0].Achievement.ID)
}

func TestDispatcher_OnSetRecorded_InvalidInput(t *testing.T) {
	ctx := context.Background()
	d, mem := newTestDispatcher(t)
	at := time.Now()

	_, err := d.OnSetRecorded(ctx, testSet("s1", "w1", -5, 5, at))
	assert.ErrorIs(t, err, trainload.ErrInvalidInput)
	_, err = d.OnSetRecorded(ctx, testSet("s2", "w1", 100, 0, at))
	assert.ErrorIs(t, err, trainload.ErrInvalidInput)

	bad := testSet("s3", "w1", 100, 5, at)
	bad.Involvement[0].Factor = 1.5
	_, err = d.OnSetRecorded(ctx, bad)
	assert.ErrorIs(t, err, trainload.ErrInvalidInput)

	// nothing was persisted
	sets, err := mem.ListSets(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, sets)
	_, err = mem.GetUserStatistics(ctx, "u1")
	assert.ErrorIs(t, err, trainload.ErrNotFound)
}

func TestDispatcher_IdempotentRedelivery(t *testing.T) {
	ctx := context.Background()
	d, mem := newTestDispatcher(t)
	at := time.Date(2025, 5, 10, 18, 0, 0, 0, time.UTC)

	set := testSet("s1", "w1", 100, 5, at)
	_, err := d.OnSetRecorded(ctx, set)
	require.NoError(t, err)
	newly, err := d.OnSetRecorded(ctx, set)
	require.NoError(t, err)
	assert.Empty(t, newly)

	userStats, err := mem.GetUserStatistics(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, userStats.TotalSets)

	wc := trainload.WorkoutCompletion{WorkoutID: "w1", UserID: "u1", CompletedAt: at}
	_, err = d.OnWorkoutCompleted(ctx, wc)
	require.NoError(t, err)
	_, err = d.OnWorkoutCompleted(ctx, wc)
	require.NoError(t, err)

	userStats, err = mem.GetUserStatistics(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, userStats.TotalWorkouts)
	assert.Equal(t, 1, userStats.CurrentStreak)

	earned, err := mem.ListUserAchievements(ctx, "u1")
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, ua := range earned {
		assert.False(t, seen[ua.AchievementID], "achievement %s earned twice", ua.AchievementID)
		seen[ua.AchievementID] = true
	}
}

func TestDispatcher_OnWorkoutCompleted(t *testing.T) {
	ctx := context.Background()
	d, mem := newTestDispatcher(t)
	at := time.Date(2025, 5, 10, 18, 0, 0, 0, time.UTC)

	_, err := d.OnSetRecorded(ctx, testSet("s1", "w1", 100, 5, at.Add(-30*time.Minute)))
	require.NoError(t, err)

	newly, err := d.OnWorkoutCompleted(ctx, trainload.WorkoutCompletion{
		WorkoutID: "w1", UserID: "u1", CompletedAt: at, DurationMinutes: 45,
	})
	require.NoError(t, err)

	// first workout achievement fires
	var ids []string
	for _, e := range newly {
		ids = append(ids, e.Achievement.ID)
	}
	assert.Contains(t, ids, "workout_count_1")

	userStats, err := mem.GetUserStatistics(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, userStats.TotalWorkouts)
	assert.Equal(t, 45, userStats.TotalWorkoutDuration)
	assert.Equal(t, 1, userStats.CurrentStreak)
	assert.Positive(t, userStats.TotalAchievements)
	assert.Positive(t, userStats.TotalPoints)

	// recovery ledger got its records
	chest, err := mem.LatestRecovery(ctx, "u1", trainload.MuscleChest)
	require.NoError(t, err)
	assert.InDelta(t, 500, chest.FatigueScore, 0.0001)
}

// replayState is the end state the replay equivalence property compares.
type replayState struct {
	stats trainload.UserStatistics
	prs   []trainload.PersonalRecord
	ids   []string
}

func snapshotState(t *testing.T, mem *store.Memory, userID string) replayState {
	t.Helper()
	ctx := context.Background()

	var rs replayState
	userStats, err := mem.GetUserStatistics(ctx, userID)
	require.NoError(t, err)
	rs.stats = *userStats

	rs.prs, err = mem.ListPersonalRecords(ctx, userID)
	require.NoError(t, err)

	earned, err := mem.ListUserAchievements(ctx, userID)
	require.NoError(t, err)
	for _, ua := range earned {
		rs.ids = append(rs.ids, ua.AchievementID)
	}
	return rs
}

func TestDispatcher_ReplayEquivalence(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 18, 0, 0, 0, time.UTC)

	type event struct {
		set *trainload.Set
		wc  *trainload.WorkoutCompletion
	}
	var events []event
	for day := 0; day < 5; day++ {
		workoutID := fmt.Sprintf("w%d", day)
		at := base.AddDate(0, 0, day)
		for s := 0; s < 3; s++ {
			set := testSet(fmt.Sprintf("%s-s%d", workoutID, s), workoutID, float64(80+day*5), 5+s, at.Add(time.Duration(s)*time.Minute))
			events = append(events, event{set: &set})
		}
		wc := trainload.WorkoutCompletion{WorkoutID: workoutID, UserID: "u1", CompletedAt: at.Add(time.Hour), DurationMinutes: 50}
		events = append(events, event{wc: &wc})
	}

	apply := func(d *Dispatcher, e event) {
		if e.set != nil {
			_, err := d.OnSetRecorded(ctx, *e.set)
			require.NoError(t, err)
		} else {
			_, err := d.OnWorkoutCompleted(ctx, *e.wc)
			require.NoError(t, err)
		}
	}

	// run A: incremental, recalculating after every event
	dA, memA := newTestDispatcher(t)
	for _, e := range events {
		apply(dA, e)
		_, err := dA.RecalculateAll(ctx, "u1")
		require.NoError(t, err)
	}

	// run B: all events, one recalculation at the end
	dB, memB := newTestDispatcher(t)
	for _, e := range events {
		apply(dB, e)
	}
	_, err := dB.RecalculateAll(ctx, "u1")
	require.NoError(t, err)

	// run C: incremental only, no recalculation at all
	dC, memC := newTestDispatcher(t)
	for _, e := range events {
		apply(dC, e)
	}

	stateA := snapshotState(t, memA, "u1")
	stateB := snapshotState(t, memB, "u1")
	stateC := snapshotState(t, memC, "u1")

	assert.Equal(t, stateA.stats, stateB.stats)
	assert.Equal(t, stateA.prs, stateB.prs)
	assert.ElementsMatch(t, stateA.ids, stateB.ids)

	assert.Equal(t, stateA.stats, stateC.stats)
	assert.Equal(t, stateA.prs, stateC.prs)
	assert.ElementsMatch(t, stateA.ids, stateC.ids)
}

func TestDispatcher_RecalculateAll_CountsNewlyEarned(t *testing.T) {
	ctx := context.Background()
	d, mem := newTestDispatcher(t)
	at := time.Date(2025, 5, 10, 18, 0, 0, 0, time.UTC)

	// raw history written directly, as if achievements were never evaluated
	set := testSet("s1", "w1", 150, 4, at)
	require.NoError(t, mem.AddSet(ctx, set))
	require.NoError(t, mem.AddWorkoutCompletion(ctx, trainload.WorkoutCompletion{
		WorkoutID: "w1", UserID: "u1", CompletedAt: at,
	}))

	newlyEarned, err := d.RecalculateAll(ctx, "u1")
	require.NoError(t, err)
	assert.Positive(t, newlyEarned)

	// a second recalculation earns nothing new
	newlyEarned, err = d.RecalculateAll(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, newlyEarned)

	userStats, err := mem.GetUserStatistics(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, userStats.TotalWorkouts)
	assert.Equal(t, 1, userStats.TotalSets)
	assert.Equal(t, userStats.TotalAchievements, len(func() []trainload.UserAchievement {
		earned, err := mem.ListUserAchievements(ctx, "u1")
		require.NoError(t, err)
		return earned
	}()))
}

func TestDispatcher_ConflictRetriedOnce(t *testing.T) {
	ctx := context.Background()
	catalog, err := achievements.DefaultCatalog()
	require.NoError(t, err)
	mem := store.NewMemory()

	flaky := &flakyStore{Memory: mem, failures: 1}
	d := New(flaky, fatigue.DefaultCurve(), catalog, time.UTC, metrics.NewTestManager(), nil)

	_, err = d.OnSetRecorded(ctx, testSet("s1", "w1", 100, 5, time.Now()))
	require.NoError(t, err)

	sets, err := mem.ListSets(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, sets, 1)
}

// flakyStore fails the first N transactions with a conflict.
type flakyStore struct {
	*store.Memory
	failures int
}

func (f *flakyStore) Atomically(ctx context.Context, fn func(ctx context.Context, s store.Store) error) error {
	if f.failures > 0 {
		f.failures--
		return fmt.Errorf("%w: simulated serialization failure", trainload.ErrConflict)
	}
	return f.Memory.Atomically(ctx, fn)
}

func TestDispatcher_ConflictNotRetriedTwice(t *testing.T) {
	ctx := context.Background()
	catalog, err := achievements.DefaultCatalog()
	require.NoError(t, err)

	flaky := &flakyStore{Memory: store.NewMemory(), failures: 2}
	d := New(flaky, fatigue.DefaultCurve(), catalog, time.UTC, metrics.NewTestManager(), nil)

	_, err = d.OnSetRecorded(ctx, testSet("s1", "w1", 100, 5, time.Now()))
	assert.True(t, errors.Is(err, trainload.ErrConflict))
}
