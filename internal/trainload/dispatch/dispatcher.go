// Package dispatch applies inbound workout subsystem events. Every event
// runs as one atomic unit: recovery ledger, personal records, statistics
// and achievement evaluation either all apply or none do. Events on the
// same user are serialized, redelivered events are absorbed by id.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/trainload/internal/telemetry/metrics"
	"github.com/2beens/trainload/internal/telemetry/tracing"
	"github.com/2beens/trainload/internal/trainload"
	"github.com/2beens/trainload/internal/trainload/achievements"
	"github.com/2beens/trainload/internal/trainload/fatigue"
	"github.com/2beens/trainload/internal/trainload/recovery"
	"github.com/2beens/trainload/internal/trainload/records"
	"github.com/2beens/trainload/internal/trainload/stats"
	"github.com/2beens/trainload/internal/trainload/store"
)

// errDuplicate aborts the transaction of a redelivered event without
// treating it as a failure.
var errDuplicate = errors.New("event already processed")

// statsCacheInvalidator is what the dispatcher needs from the rankings
// side: dropping stale distribution snapshots after writes.
type statsCacheInvalidator interface {
	InvalidateExercise(ctx context.Context, exerciseID string)
}

// userLocks serializes event processing per user. Locks are kept for the
// lifetime of the process, the map grows with the number of active users.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *userLocks) forUser(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = map[string]*sync.Mutex{}
	}
	lock, ok := l.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[userID] = lock
	}
	return lock
}

type Dispatcher struct {
	store       store.Store
	curve       fatigue.Curve
	catalog     *achievements.Catalog
	loc         *time.Location
	metrics     *metrics.Manager
	invalidator statsCacheInvalidator // nil disables cache invalidation
	locks       userLocks
}

func New(
	s store.Store,
	curve fatigue.Curve,
	catalog *achievements.Catalog,
	loc *time.Location,
	metricsManager *metrics.Manager,
	invalidator statsCacheInvalidator,
) *Dispatcher {
	return &Dispatcher{
		store:       s,
		curve:       curve,
		catalog:     catalog,
		loc:         loc,
		metrics:     metricsManager,
		invalidator: invalidator,
	}
}

// atomically runs fn in a transaction and retries once on a conflict.
func (d *Dispatcher) atomically(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	err := d.store.Atomically(ctx, fn)
	if errors.Is(err, trainload.ErrConflict) {
		err = d.store.Atomically(ctx, fn)
	}
	return err
}

func validateSet(set trainload.Set) error {
	if set.SetID == "" || set.UserID == "" || set.ExerciseID == "" || set.WorkoutID == "" {
		return fmt.Errorf("%w: set, user, exercise and workout ids are required", trainload.ErrInvalidInput)
	}
	if set.Weight < 0 {
		return fmt.Errorf("%w: negative weight", trainload.ErrInvalidInput)
	}
	if set.Reps <= 0 {
		return fmt.Errorf("%w: reps must be positive", trainload.ErrInvalidInput)
	}
	for _, inv := range set.Involvement {
		if !inv.MuscleGroup.Valid() {
			return fmt.Errorf("%w: unknown muscle group %q", trainload.ErrInvalidInput, inv.MuscleGroup)
		}
		if inv.Factor <= 0 || inv.Factor > 1 {
			return fmt.Errorf("%w: involvement factor %f outside (0, 1]", trainload.ErrInvalidInput, inv.Factor)
		}
	}
	if set.RecordedAt.IsZero() {
		return fmt.Errorf("%w: recordedAt is required", trainload.ErrInvalidInput)
	}
	return nil
}

// OnSetRecorded applies one recorded set: stores it, updates the personal
// record and statistics, evaluates set-scoped achievements. Returns the
// newly earned achievements. A redelivered set id is a no-op.
func (d *Dispatcher) OnSetRecorded(ctx context.Context, set trainload.Set) (_ []achievements.Earned, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "dispatch.onSetRecorded")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("set.id", set.SetID),
		attribute.String("exercise.id", set.ExerciseID),
	)

	if err := validateSet(set); err != nil {
		return nil, err
	}

	lock := d.locks.forUser(set.UserID)
	lock.Lock()
	defer lock.Unlock()

	var newly []achievements.Earned
	eventID := "set:" + set.SetID
	err = d.atomically(ctx, func(ctx context.Context, tx store.Store) error {
		newly = nil

		processed, err := tx.WasProcessed(ctx, eventID)
		if err != nil {
			return fmt.Errorf("check processed: %w", err)
		}
		if processed {
			return errDuplicate
		}
		if err := tx.MarkProcessed(ctx, eventID, time.Now()); err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
		if err := tx.AddSet(ctx, set); err != nil {
			return fmt.Errorf("add set: %w", err)
		}

		if _, _, err := records.NewTracker(tx).TrackSet(ctx, set); err != nil {
			return fmt.Errorf("track set: %w", err)
		}

		statsService := stats.NewService(tx, d.catalog, d.loc)
		if err := statsService.ApplySet(ctx, set); err != nil {
			return fmt.Errorf("apply set to statistics: %w", err)
		}

		newly, err = achievements.NewEngine(tx, d.catalog).Evaluate(
			ctx, set.UserID, achievements.SetCategories, set.RecordedAt,
		)
		if err != nil {
			return fmt.Errorf("evaluate achievements: %w", err)
		}
		return statsService.AddEarned(ctx, set.UserID, newly)
	})
	if errors.Is(err, errDuplicate) {
		d.metrics.CounterDuplicateEvents.Inc()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	d.metrics.CounterSetsRecorded.Inc()
	if len(newly) > 0 {
		d.metrics.CounterAchievementsEarned.Add(float64(len(newly)))
	}
	if d.invalidator != nil {
		d.invalidator.InvalidateExercise(ctx, set.ExerciseID)
	}
	return newly, nil
}

// OnWorkoutCompleted applies one workout completion: stores it, writes the
// recovery ledger records, advances workout totals and streak, evaluates
// workout-scoped achievements.
func (d *Dispatcher) OnWorkoutCompleted(ctx context.Context, wc trainload.WorkoutCompletion) (_ []achievements.Earned, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "dispatch.onWorkoutCompleted")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("workout.id", wc.WorkoutID))

	if wc.WorkoutID == "" || wc.UserID == "" {
		return nil, fmt.Errorf("%w: workout and user ids are required", trainload.ErrInvalidInput)
	}
	if wc.CompletedAt.IsZero() {
		return nil, fmt.Errorf("%w: completedAt is required", trainload.ErrInvalidInput)
	}
	if wc.DurationMinutes < 0 {
		return nil, fmt.Errorf("%w: negative duration", trainload.ErrInvalidInput)
	}

	lock := d.locks.forUser(wc.UserID)
	lock.Lock()
	defer lock.Unlock()

	var newly []achievements.Earned
	eventID := "workout:" + wc.WorkoutID
	err = d.atomically(ctx, func(ctx context.Context, tx store.Store) error {
		newly = nil

		processed, err := tx.WasProcessed(ctx, eventID)
		if err != nil {
			return fmt.Errorf("check processed: %w", err)
		}
		if processed {
			return errDuplicate
		}
		if err := tx.MarkProcessed(ctx, eventID, time.Now()); err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
		if err := tx.AddWorkoutCompletion(ctx, wc); err != nil {
			return fmt.Errorf("add workout completion: %w", err)
		}

		if err := recovery.NewLedger(tx, d.curve).ApplyWorkout(ctx, wc); err != nil {
			return fmt.Errorf("apply workout to recovery ledger: %w", err)
		}

		statsService := stats.NewService(tx, d.catalog, d.loc)
		if err := statsService.ApplyWorkout(ctx, wc); err != nil {
			return fmt.Errorf("apply workout to statistics: %w", err)
		}

		newly, err = achievements.NewEngine(tx, d.catalog).Evaluate(
			ctx, wc.UserID, achievements.WorkoutCategories, wc.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("evaluate achievements: %w", err)
		}
		return statsService.AddEarned(ctx, wc.UserID, newly)
	})
	if errors.Is(err, errDuplicate) {
		d.metrics.CounterDuplicateEvents.Inc()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	d.metrics.CounterWorkoutsCompleted.Inc()
	if len(newly) > 0 {
		d.metrics.CounterAchievementsEarned.Add(float64(len(newly)))
	}
	return newly, nil
}

// RecalculateAll rebuilds personal records and statistics from the raw
// event history and re-evaluates every achievement category. Returns the
// number of achievements newly earned by the rebuild.
func (d *Dispatcher) RecalculateAll(ctx context.Context, userID string) (newlyEarned int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "dispatch.recalculateAll")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", trainload.ErrInvalidInput)
	}

	lock := d.locks.forUser(userID)
	lock.Lock()
	defer lock.Unlock()

	allCategories := append(
		append([]achievements.Category{}, achievements.SetCategories...),
		achievements.WorkoutCategories...,
	)

	err = d.atomically(ctx, func(ctx context.Context, tx store.Store) error {
		newlyEarned = 0

		if _, err := records.NewTracker(tx).Rebuild(ctx, userID); err != nil {
			return fmt.Errorf("rebuild personal records: %w", err)
		}

		statsService := stats.NewService(tx, d.catalog, d.loc)
		if _, err := statsService.Rebuild(ctx, userID); err != nil {
			return fmt.Errorf("rebuild statistics: %w", err)
		}

		newly, err := achievements.NewEngine(tx, d.catalog).Evaluate(
			ctx, userID, allCategories, time.Now(),
		)
		if err != nil {
			return fmt.Errorf("evaluate achievements: %w", err)
		}
		newlyEarned = len(newly)
		return statsService.AddEarned(ctx, userID, newly)
	})
	if err != nil {
		return 0, err
	}

	if newlyEarned > 0 {
		d.metrics.CounterAchievementsEarned.Add(float64(newlyEarned))
	}
	return newlyEarned, nil
}
