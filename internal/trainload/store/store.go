// Package store is the persistence boundary of the training load service.
// Two implementations exist: Postgres for production and Memory for tests
// and local runs. Event handling goes through Atomically so that one
// inbound event either applies all of its derived updates or none.
package store

import (
	"context"
	"time"

	"github.com/2beens/trainload/internal/trainload"
)

// Store is the full persistence surface. Consumers should depend on the
// narrow slice they use, this interface is what implementations provide.
type Store interface {
	// Atomically runs fn against a transactional view of the store. All
	// writes fn makes are applied together or not at all. Nested calls
	// join the surrounding transaction.
	Atomically(ctx context.Context, fn func(ctx context.Context, s Store) error) error

	// -- event log / idempotency --
	WasProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string, at time.Time) error

	// -- raw history, the source of truth for rebuilds --
	AddSet(ctx context.Context, set trainload.Set) error
	ListSets(ctx context.Context, userID string) ([]trainload.Set, error)
	ListWorkoutSets(ctx context.Context, userID, workoutID string) ([]trainload.Set, error)
	AddWorkoutCompletion(ctx context.Context, wc trainload.WorkoutCompletion) error
	ListWorkoutCompletions(ctx context.Context, userID string) ([]trainload.WorkoutCompletion, error)

	// -- muscle recovery ledger --
	LatestRecovery(ctx context.Context, userID string, mg trainload.MuscleGroup) (*trainload.MuscleRecoveryRecord, error)
	LatestRecoveryAll(ctx context.Context, userID string) (map[trainload.MuscleGroup]*trainload.MuscleRecoveryRecord, error)
	InsertRecovery(ctx context.Context, rec *trainload.MuscleRecoveryRecord) error

	// -- personal records --
	GetPersonalRecord(ctx context.Context, userID, exerciseID string) (*trainload.PersonalRecord, error)
	ListPersonalRecords(ctx context.Context, userID string) ([]trainload.PersonalRecord, error)
	UpsertPersonalRecord(ctx context.Context, pr *trainload.PersonalRecord) error
	ListExerciseBests(ctx context.Context, exerciseID string) ([]trainload.ExerciseBest, error)

	// -- user statistics --
	GetUserStatistics(ctx context.Context, userID string) (*trainload.UserStatistics, error)
	UpsertUserStatistics(ctx context.Context, stats *trainload.UserStatistics) error

	// -- achievements --
	ListUserAchievements(ctx context.Context, userID string) ([]trainload.UserAchievement, error)
	InsertUserAchievement(ctx context.Context, ua *trainload.UserAchievement) error
	MarkAchievementsNotified(ctx context.Context, userID string, achievementIDs []string) error
}
