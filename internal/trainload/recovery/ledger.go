// Package recovery keeps the per-muscle recovery ledger: each completed
// workout writes a fresh recovery record per touched muscle group, and the
// status endpoint reports live recovery percentages for all groups.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/trainload/internal/telemetry/tracing"
	"github.com/2beens/trainload/internal/trainload"
	"github.com/2beens/trainload/internal/trainload/fatigue"
)

type ledgerStore interface {
	ListWorkoutSets(ctx context.Context, userID, workoutID string) ([]trainload.Set, error)
	LatestRecovery(ctx context.Context, userID string, mg trainload.MuscleGroup) (*trainload.MuscleRecoveryRecord, error)
	LatestRecoveryAll(ctx context.Context, userID string) (map[trainload.MuscleGroup]*trainload.MuscleRecoveryRecord, error)
	InsertRecovery(ctx context.Context, rec *trainload.MuscleRecoveryRecord) error
}

type Ledger struct {
	store ledgerStore
	curve fatigue.Curve
}

func NewLedger(store ledgerStore, curve fatigue.Curve) *Ledger {
	return &Ledger{
		store: store,
		curve: curve,
	}
}

// ApplyWorkout writes one new recovery record per muscle group the workout
// touched. The fatigue score covers this workout only, a new record
// supersedes the previous one rather than accumulating into it; total sets
// keep running across workouts.
func (l *Ledger) ApplyWorkout(ctx context.Context, wc trainload.WorkoutCompletion) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "recovery.ledger.applyWorkout")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	sets, err := l.store.ListWorkoutSets(ctx, wc.UserID, wc.WorkoutID)
	if err != nil {
		return fmt.Errorf("list workout sets: %w", err)
	}

	type muscleLoad struct {
		fatigueScore float64
		sets         int
	}
	loads := map[trainload.MuscleGroup]*muscleLoad{}
	for _, set := range sets {
		for _, inv := range set.Involvement {
			if !inv.MuscleGroup.Valid() {
				return fmt.Errorf("%w: unknown muscle group %q", trainload.ErrInvalidInput, inv.MuscleGroup)
			}
			contribution, err := fatigue.Contribution(set.Weight, set.Reps, inv.Factor)
			if err != nil {
				return fmt.Errorf("set %s: %w", set.SetID, err)
			}
			load := loads[inv.MuscleGroup]
			if load == nil {
				load = &muscleLoad{}
				loads[inv.MuscleGroup] = load
			}
			load.fatigueScore += contribution
			load.sets++
		}
	}

	workoutID := wc.WorkoutID
	for _, mg := range trainload.AllMuscleGroups() {
		load, ok := loads[mg]
		if !ok {
			continue
		}

		prevTotalSets := 0
		prev, err := l.store.LatestRecovery(ctx, wc.UserID, mg)
		switch {
		case err == nil:
			prevTotalSets = prev.TotalSets
		case errors.Is(err, trainload.ErrNotFound):
			// first record for this muscle
		default:
			return fmt.Errorf("latest recovery for %s: %w", mg, err)
		}

		hours := l.curve.RecoveryHours(load.fatigueScore)
		until := wc.CompletedAt.Add(time.Duration(hours * float64(time.Hour)))
		rec := trainload.MuscleRecoveryRecord{
			UserID:          wc.UserID,
			MuscleGroup:     mg,
			FatigueScore:    load.fatigueScore,
			TotalSets:       prevTotalSets + load.sets,
			RecoveryHours:   hours,
			RecoveryUntil:   &until,
			SourceWorkoutID: &workoutID,
			CreatedAt:       wc.CompletedAt,
			UpdatedAt:       wc.CompletedAt,
		}
		if err := l.store.InsertRecovery(ctx, &rec); err != nil {
			return fmt.Errorf("insert recovery for %s: %w", mg, err)
		}
	}

	return nil
}

// MuscleStatus is the live recovery view of one muscle group. Groups the
// user never trained get a default row with a nil record id.
type MuscleStatus struct {
	RecordID            *int64                `json:"id"`
	MuscleGroup         trainload.MuscleGroup `json:"muscleGroup"`
	FatigueScore        float64               `json:"fatigueScore"`
	TotalSets           int                   `json:"totalSets"`
	RecoveryHours       float64               `json:"recoveryHours"`
	RecoveryUntil       *time.Time            `json:"recoveryUntil"`
	IsRecovered         bool                  `json:"isRecovered"`
	HoursUntilRecovery  float64               `json:"hoursUntilRecovery"`
	RecoveryPercentage  float64               `json:"recoveryPercentage"`
	SourceWorkoutID     *string               `json:"sourceWorkoutId"`
	CreatedAt           *time.Time            `json:"createdAt"`
	UpdatedAt           *time.Time            `json:"updatedAt"`
}

// Status returns one row per muscle group, always all of them, in the
// canonical order. Percentages are computed against `now`, nothing is
// written.
func (l *Ledger) Status(ctx context.Context, userID string, now time.Time) (_ []MuscleStatus, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "recovery.ledger.status")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	latest, err := l.store.LatestRecoveryAll(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("latest recovery records: %w", err)
	}

	statuses := make([]MuscleStatus, 0, len(trainload.AllMuscleGroups()))
	for _, mg := range trainload.AllMuscleGroups() {
		rec, ok := latest[mg]
		if !ok {
			statuses = append(statuses, MuscleStatus{
				MuscleGroup:        mg,
				IsRecovered:        true,
				RecoveryPercentage: 100,
			})
			continue
		}
		recID := rec.ID
		createdAt, updatedAt := rec.CreatedAt, rec.UpdatedAt
		hoursLeft := fatigue.HoursUntilRecovered(rec.RecoveryUntil, now)
		statuses = append(statuses, MuscleStatus{
			RecordID:           &recID,
			MuscleGroup:        mg,
			FatigueScore:       rec.FatigueScore,
			TotalSets:          rec.TotalSets,
			RecoveryHours:      rec.RecoveryHours,
			RecoveryUntil:      rec.RecoveryUntil,
			IsRecovered:        hoursLeft == 0,
			HoursUntilRecovery: hoursLeft,
			RecoveryPercentage: fatigue.RecoveryPercentage(rec.RecoveryUntil, rec.RecoveryHours, now),
			SourceWorkoutID:    rec.SourceWorkoutID,
			CreatedAt:          &createdAt,
			UpdatedAt:          &updatedAt,
		})
	}
	return statuses, nil
}
