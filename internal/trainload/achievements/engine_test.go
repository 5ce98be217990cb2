package achievements

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/trainload/internal/trainload"
	"github.com/2beens/trainload/internal/trainload/store"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := NewCatalog([]Achievement{
		{
			ID: "workout_count_1", Name: "First Workout", Category: CategoryWorkoutCount,
			RequirementValue: 1, Points: 10, Rarity: RarityCommon, IsActive: true, Order: 1,
		},
		{
			ID: "workout_count_5", Name: "5 Workouts", Category: CategoryWorkoutCount,
			RequirementValue: 5, Points: 20, Rarity: RarityCommon, IsActive: true, Order: 2,
		},
		{
			ID: "workout_streak_3", Name: "3 Day Streak", Category: CategoryWorkoutStreak,
			RequirementValue: 3, Points: 20, Rarity: RarityCommon, IsActive: true, Order: 3,
		},
		{
			ID: "total_volume_1000", Name: "1000 kg", Category: CategoryTotalVolume,
			RequirementValue: 1000, Points: 10, Rarity: RarityCommon, IsActive: true, Order: 4,
		},
		{
			ID: "hidden_volume", Name: "Secret", Category: CategoryTotalVolume,
			RequirementValue: 2000, Points: 50, Rarity: RarityRare, IsHidden: true, IsActive: true, Order: 5,
		},
		{
			ID: "retired", Name: "Retired", Category: CategoryWorkoutCount,
			RequirementValue: 1, Points: 10, Rarity: RarityCommon, IsActive: false, Order: 6,
		},
	})
	require.NoError(t, err)
	return catalog
}

func TestEngine_Evaluate(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	engine := NewEngine(mem, testCatalog(t))
	at := time.Date(2025, 5, 10, 18, 0, 0, 0, time.UTC)

	require.NoError(t, mem.UpsertUserStatistics(ctx, &trainload.UserStatistics{
		UserID: "u1", TotalWorkouts: 1, TotalVolume: 500, CurrentStreak: 1, LongestStreak: 1,
	}))

	newly, err := engine.Evaluate(ctx, "u1", WorkoutCategories, at)
	require.NoError(t, err)
	require.Len(t, newly, 1)
	assert.Equal(t, "workout_count_1", newly[0].Achievement.ID)
	assert.Equal(t, at, newly[0].Record.EarnedAt)
	assert.InDelta(t, 1, newly[0].Record.CurrentProgress, 0.0001)
	require.NotNil(t, newly[0].Record.EarnedValue)
	assert.InDelta(t, 1, *newly[0].Record.EarnedValue, 0.0001)

	// inactive achievements never fire
	for _, earned := range newly {
		assert.NotEqual(t, "retired", earned.Achievement.ID)
	}
}

func TestEngine_Evaluate_Idempotent(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	engine := NewEngine(mem, testCatalog(t))
	at := time.Date(2025, 5, 10, 18, 0, 0, 0, time.UTC)

	require.NoError(t, mem.UpsertUserStatistics(ctx, &trainload.UserStatistics{
		UserID: "u1", TotalWorkouts: 6, LongestStreak: 3,
	}))

	newly, err := engine.Evaluate(ctx, "u1", WorkoutCategories, at)
	require.NoError(t, err)
	assert.Len(t, newly, 3) // workout_count_1, workout_count_5, workout_streak_3

	// second run with identical state earns nothing and changes nothing
	again, err := engine.Evaluate(ctx, "u1", WorkoutCategories, at.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, again)

	earned, err := mem.ListUserAchievements(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, earned, 3)
	for _, ua := range earned {
		assert.Equal(t, at, ua.EarnedAt)
	}
}

func TestEngine_Evaluate_CategoryScoped(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	engine := NewEngine(mem, testCatalog(t))
	at := time.Now()

	require.NoError(t, mem.UpsertUserStatistics(ctx, &trainload.UserStatistics{
		UserID: "u1", TotalWorkouts: 10, TotalVolume: 5000,
	}))

	// a set-scoped evaluation must not earn workout achievements
	newly, err := engine.Evaluate(ctx, "u1", SetCategories, at)
	require.NoError(t, err)
	require.Len(t, newly, 2)
	assert.Equal(t, "total_volume_1000", newly[0].Achievement.ID)
	assert.Equal(t, "hidden_volume", newly[1].Achievement.ID)
}

func TestEngine_ListProgress(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	engine := NewEngine(mem, testCatalog(t))
	at := time.Date(2025, 5, 10, 18, 0, 0, 0, time.UTC)

	require.NoError(t, mem.UpsertUserStatistics(ctx, &trainload.UserStatistics{
		UserID: "u1", TotalWorkouts: 2, TotalVolume: 700,
	}))
	_, err := engine.Evaluate(ctx, "u1", WorkoutCategories, at)
	require.NoError(t, err)

	progress, err := engine.ListProgress(ctx, "u1", nil)
	require.NoError(t, err)

	byID := map[string]Progress{}
	for _, p := range progress {
		byID[p.Achievement.ID] = p
	}

	first := byID["workout_count_1"]
	assert.True(t, first.IsEarned)
	require.NotNil(t, first.EarnedAt)
	assert.Equal(t, at, *first.EarnedAt)

	next := byID["workout_count_5"]
	assert.False(t, next.IsEarned)
	assert.InDelta(t, 2, next.CurrentProgress, 0.0001)

	// hidden and locked -> not listed; inactive -> never listed
	_, hiddenListed := byID["hidden_volume"]
	assert.False(t, hiddenListed)
	_, retiredListed := byID["retired"]
	assert.False(t, retiredListed)

	// category filter
	streakOnly := CategoryWorkoutStreak
	progress, err = engine.ListProgress(ctx, "u1", &streakOnly)
	require.NoError(t, err)
	require.Len(t, progress, 1)
	assert.Equal(t, "workout_streak_3", progress[0].Achievement.ID)
}

func TestEngine_NotificationFlow(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	engine := NewEngine(mem, testCatalog(t))

	require.NoError(t, mem.UpsertUserStatistics(ctx, &trainload.UserStatistics{
		UserID: "u1", TotalWorkouts: 6,
	}))
	_, err := engine.Evaluate(ctx, "u1", WorkoutCategories, time.Now())
	require.NoError(t, err)

	unnotified, err := engine.Unnotified(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, unnotified, 2)

	// mark one explicitly
	require.NoError(t, engine.MarkNotified(ctx, "u1", []string{"workout_count_1"}))
	unnotified, err = engine.Unnotified(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, unnotified, 1)
	assert.Equal(t, "workout_count_5", unnotified[0].Achievement.ID)

	// empty id list marks the rest
	require.NoError(t, engine.MarkNotified(ctx, "u1", nil))
	unnotified, err = engine.Unnotified(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, unnotified)
}

func TestDefaultCatalog(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	assert.NotEmpty(t, catalog.All())
	assert.NotEmpty(t, catalog.ByCategory(CategoryWorkoutCount))
	assert.NotEmpty(t, catalog.ByCategory(CategoryWorkoutStreak))
	assert.NotEmpty(t, catalog.ByCategory(CategoryTotalVolume))

	first, ok := catalog.Get("workout_count_1")
	require.True(t, ok)
	assert.InDelta(t, 1, first.RequirementValue, 0.0001)
	assert.True(t, first.IsActive)
}
