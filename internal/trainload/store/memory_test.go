package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/trainload/internal/trainload"
)

func fakeSet(userID string, at time.Time) trainload.Set {
	return trainload.Set{
		SetID:      gofakeit.UUID(),
		UserID:     userID,
		ExerciseID: gofakeit.UUID(),
		WorkoutID:  gofakeit.UUID(),
		Weight:     gofakeit.Float64Range(20, 200),
		Reps:       gofakeit.Number(1, 12),
		Involvement: []trainload.MuscleInvolvement{
			{MuscleGroup: trainload.MuscleChest, Factor: 1},
		},
		RecordedAt: at,
	}
}

func TestMemory_AtomicallyCommit(t *testing.T) {
	ctx := t.Context()
	mem := NewMemory()
	userID := gofakeit.UUID()
	set := fakeSet(userID, time.Now())

	err := mem.Atomically(ctx, func(txCtx context.Context, tx Store) error {
		if err := tx.AddSet(txCtx, set); err != nil {
			return err
		}
		return tx.MarkProcessed(txCtx, "set:"+set.SetID, set.RecordedAt)
	})
	require.NoError(t, err)

	sets, err := mem.ListSets(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, set.SetID, sets[0].SetID)

	processed, err := mem.WasProcessed(ctx, "set:"+set.SetID)
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestMemory_AtomicallyRollback(t *testing.T) {
	ctx := t.Context()
	mem := NewMemory()
	userID := gofakeit.UUID()
	boom := errors.New("boom")

	err := mem.Atomically(ctx, func(txCtx context.Context, tx Store) error {
		if err := tx.AddSet(txCtx, fakeSet(userID, time.Now())); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// nothing from the failed transaction is visible
	sets, err := mem.ListSets(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, sets)
}

func TestMemory_LatestRecoverySupersedes(t *testing.T) {
	ctx := t.Context()
	mem := NewMemory()
	userID := gofakeit.UUID()
	now := time.Now()

	first := &trainload.MuscleRecoveryRecord{
		UserID: userID, MuscleGroup: trainload.MuscleChest,
		FatigueScore: 500, TotalSets: 5, RecoveryHours: 36,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, mem.InsertRecovery(ctx, first))
	require.NotZero(t, first.ID)

	later := now.Add(48 * time.Hour)
	second := &trainload.MuscleRecoveryRecord{
		UserID: userID, MuscleGroup: trainload.MuscleChest,
		FatigueScore: 800, TotalSets: 11, RecoveryHours: 40,
		CreatedAt: later, UpdatedAt: later,
	}
	require.NoError(t, mem.InsertRecovery(ctx, second))
	assert.Greater(t, second.ID, first.ID)

	latest, err := mem.LatestRecovery(ctx, userID, trainload.MuscleChest)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.InDelta(t, 800, latest.FatigueScore, 0.0001)

	all, err := mem.LatestRecoveryAll(ctx, userID)
	require.NoError(t, err)
	require.Contains(t, all, trainload.MuscleChest)
	assert.Equal(t, 11, all[trainload.MuscleChest].TotalSets)
}

func TestMemory_InsertUserAchievementConflict(t *testing.T) {
	ctx := t.Context()
	mem := NewMemory()
	userID := gofakeit.UUID()
	now := time.Now()

	ua := &trainload.UserAchievement{
		UserID: userID, AchievementID: "workout_count_1",
		EarnedAt: now, CurrentProgress: 1,
	}
	require.NoError(t, mem.InsertUserAchievement(ctx, ua))
	require.NotZero(t, ua.ID)

	dup := &trainload.UserAchievement{
		UserID: userID, AchievementID: "workout_count_1",
		EarnedAt: now, CurrentProgress: 1,
	}
	err := mem.InsertUserAchievement(ctx, dup)
	assert.ErrorIs(t, err, trainload.ErrConflict)
}

func TestMemory_GetPersonalRecordNotFound(t *testing.T) {
	ctx := t.Context()
	mem := NewMemory()

	_, err := mem.GetPersonalRecord(ctx, gofakeit.UUID(), gofakeit.UUID())
	assert.ErrorIs(t, err, trainload.ErrNotFound)

	_, err = mem.GetUserStatistics(ctx, gofakeit.UUID())
	assert.ErrorIs(t, err, trainload.ErrNotFound)
}
