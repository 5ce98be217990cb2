package rankings

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/trainload/internal/trainload"
	"github.com/2beens/trainload/internal/trainload/store"
)

// seedBenchPRs adds n users with best weights 10, 20, 30, ...
func seedBenchPRs(t *testing.T, mem *store.Memory, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= n; i++ {
		at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
		require.NoError(t, mem.UpsertPersonalRecord(ctx, &trainload.PersonalRecord{
			UserID:            fmt.Sprintf("u%03d", i),
			ExerciseID:        "bench",
			BestWeight:        float64(i * 10),
			BestWeightDate:    &at,
			BestOneRepMax:     float64(i*10) * 1.1,
			BestOneRepMaxDate: &at,
		}))
	}
}

func TestService_ExerciseRanking(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	seedBenchPRs(t, mem, 40)
	service := NewService(mem, nil, 30, 10)

	// user u020 has the 20th best weight of 40
	ranking, err := service.ExerciseRanking(ctx, "u020", "bench")
	require.NoError(t, err)
	assert.Equal(t, 40, ranking.SampleSize)
	require.NotNil(t, ranking.Weight)
	assert.InDelta(t, 200, ranking.Weight.Value, 0.0001)
	assert.InDelta(t, 50, ranking.Weight.Percentile, 0.0001)
	require.NotNil(t, ranking.OneRepMax)
	assert.InDelta(t, 50, ranking.OneRepMax.Percentile, 0.0001)

	// top user sits at the 100th percentile
	ranking, err = service.ExerciseRanking(ctx, "u040", "bench")
	require.NoError(t, err)
	assert.InDelta(t, 100, ranking.Weight.Percentile, 0.0001)

	_, err = service.ExerciseRanking(ctx, "nobody", "bench")
	assert.ErrorIs(t, err, trainload.ErrNotFound)
}

func TestService_ExerciseRanking_InsufficientData(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	seedBenchPRs(t, mem, 5)
	service := NewService(mem, nil, 30, 10)

	_, err := service.ExerciseRanking(ctx, "u001", "bench")
	assert.ErrorIs(t, err, trainload.ErrInsufficientData)
}

func TestService_AllRankings(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	seedBenchPRs(t, mem, 40)

	// a second exercise with too small a population
	at := time.Now()
	require.NoError(t, mem.UpsertPersonalRecord(ctx, &trainload.PersonalRecord{
		UserID: "u010", ExerciseID: "deadlift", BestWeight: 180, BestWeightDate: &at,
	}))

	service := NewService(mem, nil, 30, 10)
	allRankings, err := service.AllRankings(ctx, "u010")
	require.NoError(t, err)
	require.Len(t, allRankings, 2)

	byExercise := map[string]Ranking{}
	for _, r := range allRankings {
		byExercise[r.ExerciseID] = r
	}

	bench := byExercise["bench"]
	assert.False(t, bench.InsufficientData)
	require.NotNil(t, bench.Weight)
	assert.Greater(t, bench.Weight.Percentile, 0.0)

	deadlift := byExercise["deadlift"]
	assert.True(t, deadlift.InsufficientData)
	assert.Nil(t, deadlift.Weight)
}

func TestService_Leaderboard(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	seedBenchPRs(t, mem, 40)
	service := NewService(mem, nil, 30, 10)

	lb, err := service.Leaderboard(ctx, "bench", trainload.StatWeight, 0, "u020")
	require.NoError(t, err)
	require.Len(t, lb.Entries, 10) // default limit
	assert.Equal(t, "u040", lb.Entries[0].UserID)
	assert.Equal(t, 40, lb.TotalUsers)
	require.NotNil(t, lb.UserEntry)
	assert.Equal(t, 21, lb.UserEntry.Rank)

	_, err = service.Leaderboard(ctx, "bench", trainload.StatKind("bogus"), 0, "")
	assert.ErrorIs(t, err, trainload.ErrInvalidInput)
}

func TestService_Leaderboard_InsufficientData(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	seedBenchPRs(t, mem, 3)
	service := NewService(mem, nil, 30, 10)

	_, err := service.Leaderboard(ctx, "bench", trainload.StatWeight, 10, "")
	assert.ErrorIs(t, err, trainload.ErrInsufficientData)
}

func TestService_Statistics_UsesCache(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	seedBenchPRs(t, mem, 40)

	rdb, mock := redismock.NewClientMock()
	cache := NewCache(rdb, time.Hour)
	service := NewService(mem, cache, 30, 10)

	cached := trainload.ExerciseStatistics{
		ExerciseID: "bench",
		SampleSize: 40,
		ComputedAt: time.Date(2025, 5, 10, 11, 0, 0, 0, time.UTC),
	}
	cachedJson, err := json.Marshal(cached)
	require.NoError(t, err)
	mock.ExpectGet("trainload:exstats:bench").SetVal(string(cachedJson))

	exStats, err := service.Statistics(ctx, "bench")
	require.NoError(t, err)
	assert.Equal(t, cached.ComputedAt, exStats.ComputedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Statistics_ComputeWithoutCache(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	seedBenchPRs(t, mem, 40)
	service := NewService(mem, nil, 30, 10)

	exStats, err := service.Statistics(ctx, "bench")
	require.NoError(t, err)
	assert.Equal(t, 40, exStats.SampleSize)
	assert.NotZero(t, exStats.ComputedAt)
	assert.NotEmpty(t, exStats.WeightPercentiles)
}

func TestCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	rdb, mock := redismock.NewClientMock()
	cache := NewCache(rdb, time.Hour)

	exStats := &trainload.ExerciseStatistics{
		ExerciseID: "squat",
		SampleSize: 12,
		ComputedAt: time.Date(2025, 5, 10, 11, 0, 0, 0, time.UTC),
	}
	statsJson, err := json.Marshal(exStats)
	require.NoError(t, err)

	mock.ExpectSet("trainload:exstats:squat", statsJson, time.Hour).SetVal("OK")
	require.NoError(t, cache.SetStatistics(ctx, exStats))

	mock.ExpectGet("trainload:exstats:squat").SetVal(string(statsJson))
	got, err := cache.GetStatistics(ctx, "squat")
	require.NoError(t, err)
	assert.Equal(t, exStats.SampleSize, got.SampleSize)

	mock.ExpectGet("trainload:exstats:bench").RedisNil()
	_, err = cache.GetStatistics(ctx, "bench")
	assert.ErrorIs(t, err, trainload.ErrNotFound)

	mock.ExpectDel("trainload:exstats:squat").SetVal(1)
	require.NoError(t, cache.InvalidateStatistics(ctx, "squat"))

	assert.NoError(t, mock.ExpectationsWereMet())
}
