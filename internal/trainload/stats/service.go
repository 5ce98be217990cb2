// Package stats maintains the per-user statistics row: lifetime totals,
// streaks and achievement counters. The row is a materialized cache, a
// full Rebuild from the raw history lands on the same numbers as the
// incremental updates.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/trainload/internal/telemetry/tracing"
	"github.com/2beens/trainload/internal/trainload"
	"github.com/2beens/trainload/internal/trainload/achievements"
	"github.com/2beens/trainload/internal/trainload/streak"
)

type statsStore interface {
	GetUserStatistics(ctx context.Context, userID string) (*trainload.UserStatistics, error)
	UpsertUserStatistics(ctx context.Context, stats *trainload.UserStatistics) error
	ListSets(ctx context.Context, userID string) ([]trainload.Set, error)
	ListWorkoutCompletions(ctx context.Context, userID string) ([]trainload.WorkoutCompletion, error)
	ListPersonalRecords(ctx context.Context, userID string) ([]trainload.PersonalRecord, error)
	ListUserAchievements(ctx context.Context, userID string) ([]trainload.UserAchievement, error)
}

type Service struct {
	store   statsStore
	catalog *achievements.Catalog
	loc     *time.Location
}

func NewService(store statsStore, catalog *achievements.Catalog, loc *time.Location) *Service {
	return &Service{
		store:   store,
		catalog: catalog,
		loc:     loc,
	}
}

func (s *Service) load(ctx context.Context, userID string) (*trainload.UserStatistics, error) {
	stats, err := s.store.GetUserStatistics(ctx, userID)
	if errors.Is(err, trainload.ErrNotFound) {
		return &trainload.UserStatistics{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user statistics: %w", err)
	}
	return stats, nil
}

// Get returns the user's statistics; users with no history get the zero
// value rather than a not found error.
func (s *Service) Get(ctx context.Context, userID string) (_ *trainload.UserStatistics, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "stats.service.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	return s.load(ctx, userID)
}

// ApplySet folds one recorded set into the totals. Must run after the
// personal record tracker so the PR count is current.
func (s *Service) ApplySet(ctx context.Context, set trainload.Set) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "stats.service.applySet")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	stats, err := s.load(ctx, set.UserID)
	if err != nil {
		return err
	}

	stats.TotalVolume += set.SetVolume()
	stats.TotalSets++
	stats.TotalReps += set.Reps

	prs, err := s.store.ListPersonalRecords(ctx, set.UserID)
	if err != nil {
		return fmt.Errorf("list personal records: %w", err)
	}
	stats.TotalPRs = len(prs)

	return s.store.UpsertUserStatistics(ctx, stats)
}

// ApplyWorkout counts one completed workout and advances the streak.
func (s *Service) ApplyWorkout(ctx context.Context, wc trainload.WorkoutCompletion) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "stats.service.applyWorkout")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	stats, err := s.load(ctx, wc.UserID)
	if err != nil {
		return err
	}

	stats.TotalWorkouts++
	stats.TotalWorkoutDuration += wc.DurationMinutes

	st := streak.Update(streak.State{
		Current:         stats.CurrentStreak,
		Longest:         stats.LongestStreak,
		LastWorkoutDate: stats.LastWorkoutDate,
	}, wc.CompletedAt, s.loc)
	stats.CurrentStreak = st.Current
	stats.LongestStreak = st.Longest
	stats.LastWorkoutDate = st.LastWorkoutDate

	return s.store.UpsertUserStatistics(ctx, stats)
}

// AddEarned bumps the achievement counters for freshly earned achievements.
func (s *Service) AddEarned(ctx context.Context, userID string, earned []achievements.Earned) (err error) {
	if len(earned) == 0 {
		return nil
	}

	ctx, span := tracing.GlobalTracer.Start(ctx, "stats.service.addEarned")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	stats, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	for _, e := range earned {
		stats.TotalAchievements++
		stats.TotalPoints += e.Achievement.Points
	}
	return s.store.UpsertUserStatistics(ctx, stats)
}

// Rebuild recomputes the whole statistics row from the raw history and
// overwrites the stored one.
func (s *Service) Rebuild(ctx context.Context, userID string) (_ *trainload.UserStatistics, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "stats.service.rebuild")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	sets, err := s.store.ListSets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sets: %w", err)
	}
	completions, err := s.store.ListWorkoutCompletions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list workout completions: %w", err)
	}
	prs, err := s.store.ListPersonalRecords(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list personal records: %w", err)
	}
	earned, err := s.store.ListUserAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user achievements: %w", err)
	}

	stats := &trainload.UserStatistics{UserID: userID}
	for _, set := range sets {
		stats.TotalVolume += set.SetVolume()
		stats.TotalSets++
		stats.TotalReps += set.Reps
	}
	stats.TotalPRs = len(prs)

	completedAts := make([]time.Time, 0, len(completions))
	for _, wc := range completions {
		stats.TotalWorkouts++
		stats.TotalWorkoutDuration += wc.DurationMinutes
		completedAts = append(completedAts, wc.CompletedAt)
	}
	st := streak.Rebuild(completedAts, s.loc)
	stats.CurrentStreak = st.Current
	stats.LongestStreak = st.Longest
	stats.LastWorkoutDate = st.LastWorkoutDate

	for _, ua := range earned {
		stats.TotalAchievements++
		if a, ok := s.catalog.Get(ua.AchievementID); ok {
			stats.TotalPoints += a.Points
		}
	}

	if err := s.store.UpsertUserStatistics(ctx, stats); err != nil {
		return nil, fmt.Errorf("upsert user statistics: %w", err)
	}
	return stats, nil
}
