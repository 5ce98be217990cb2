// Package records tracks per (user, exercise) personal records: best
// weight, best estimated one rep max (Brzycki) and best single set volume,
// plus lifetime totals.
package records

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/2beens/trainload/internal/telemetry/tracing"
	"github.com/2beens/trainload/internal/trainload"
)

// OneRepMax estimates the one rep max with the Brzycki formula:
// weight * 36 / (37 - reps). The formula breaks down at 37 reps and above.
func OneRepMax(weight float64, reps int) (float64, error) {
	if weight < 0 {
		return 0, fmt.Errorf("%w: negative weight", trainload.ErrInvalidInput)
	}
	if reps <= 0 {
		return 0, fmt.Errorf("%w: reps must be positive", trainload.ErrInvalidInput)
	}
	if reps >= 37 {
		return 0, fmt.Errorf("%w: no one rep max estimate for %d reps", trainload.ErrInvalidInput, reps)
	}
	return weight * 36 / float64(37-reps), nil
}

// Improvement says which personal bests a set pushed up.
type Improvement struct {
	Weight    bool `json:"weight"`
	OneRepMax bool `json:"oneRepMax"`
	Volume    bool `json:"volume"`
}

func (i Improvement) Any() bool {
	return i.Weight || i.OneRepMax || i.Volume
}

type trackerStore interface {
	GetPersonalRecord(ctx context.Context, userID, exerciseID string) (*trainload.PersonalRecord, error)
	UpsertPersonalRecord(ctx context.Context, pr *trainload.PersonalRecord) error
	ListPersonalRecords(ctx context.Context, userID string) ([]trainload.PersonalRecord, error)
	ListSets(ctx context.Context, userID string) ([]trainload.Set, error)
}

type Tracker struct {
	store trackerStore
}

func NewTracker(store trackerStore) *Tracker {
	return &Tracker{
		store: store,
	}
}

// TrackSet folds one set into the user's personal record for the exercise.
// Best values only ever go up, ties keep the earlier date; totals always
// grow. Sets of 37+ reps still count into totals but produce no one rep
// max candidate.
func (t *Tracker) TrackSet(ctx context.Context, set trainload.Set) (_ *trainload.PersonalRecord, _ Improvement, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "records.tracker.trackSet")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if set.Weight < 0 {
		return nil, Improvement{}, fmt.Errorf("%w: negative weight", trainload.ErrInvalidInput)
	}
	if set.Reps <= 0 {
		return nil, Improvement{}, fmt.Errorf("%w: reps must be positive", trainload.ErrInvalidInput)
	}

	pr, err := t.store.GetPersonalRecord(ctx, set.UserID, set.ExerciseID)
	switch {
	case err == nil:
	case errors.Is(err, trainload.ErrNotFound):
		pr = &trainload.PersonalRecord{
			UserID:     set.UserID,
			ExerciseID: set.ExerciseID,
			CreatedAt:  set.RecordedAt,
		}
	default:
		return nil, Improvement{}, fmt.Errorf("get personal record: %w", err)
	}

	improved := apply(pr, set)
	if err := t.store.UpsertPersonalRecord(ctx, pr); err != nil {
		return nil, Improvement{}, fmt.Errorf("upsert personal record: %w", err)
	}
	return pr, improved, nil
}

// apply folds one set into the record in place and reports what improved.
func apply(pr *trainload.PersonalRecord, set trainload.Set) Improvement {
	var improved Improvement
	at := set.RecordedAt

	if set.Weight > pr.BestWeight {
		pr.BestWeight = set.Weight
		pr.BestWeightReps = set.Reps
		pr.BestWeightDate = &at
		improved.Weight = true
	}

	if oneRM, err := OneRepMax(set.Weight, set.Reps); err == nil && oneRM > pr.BestOneRepMax {
		pr.BestOneRepMax = oneRM
		pr.BestOneRepMaxWeight = set.Weight
		pr.BestOneRepMaxReps = set.Reps
		pr.BestOneRepMaxDate = &at
		improved.OneRepMax = true
	}

	if vol := set.SetVolume(); vol > pr.BestSetVolume {
		pr.BestSetVolume = vol
		pr.BestSetVolumeDate = &at
		improved.Volume = true
	}

	pr.TotalVolume += set.SetVolume()
	pr.TotalSets++
	pr.TotalReps += set.Reps
	pr.UpdatedAt = at
	return improved
}

// Get returns the personal record for one exercise.
func (t *Tracker) Get(ctx context.Context, userID, exerciseID string) (_ *trainload.PersonalRecord, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "records.tracker.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	return t.store.GetPersonalRecord(ctx, userID, exerciseID)
}

// List returns all personal records of a user, ordered by exercise id.
func (t *Tracker) List(ctx context.Context, userID string) (_ []trainload.PersonalRecord, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "records.tracker.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	return t.store.ListPersonalRecords(ctx, userID)
}

// Rebuild recomputes all of the user's personal records from the raw set
// history and overwrites the stored ones. Used by the full recalculation.
func (t *Tracker) Rebuild(ctx context.Context, userID string) (_ []trainload.PersonalRecord, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "records.tracker.rebuild")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	sets, err := t.store.ListSets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sets: %w", err)
	}
	sort.SliceStable(sets, func(i, j int) bool {
		return sets[i].RecordedAt.Before(sets[j].RecordedAt)
	})

	byExercise := map[string]*trainload.PersonalRecord{}
	for _, set := range sets {
		if set.Weight < 0 || set.Reps <= 0 {
			continue
		}
		pr := byExercise[set.ExerciseID]
		if pr == nil {
			pr = &trainload.PersonalRecord{
				UserID:     userID,
				ExerciseID: set.ExerciseID,
				CreatedAt:  set.RecordedAt,
			}
			byExercise[set.ExerciseID] = pr
		}
		apply(pr, set)
	}

	prs := make([]trainload.PersonalRecord, 0, len(byExercise))
	for _, pr := range byExercise {
		if err := t.store.UpsertPersonalRecord(ctx, pr); err != nil {
			return nil, fmt.Errorf("upsert personal record: %w", err)
		}
		prs = append(prs, *pr)
	}
	sort.Slice(prs, func(i, j int) bool { return prs[i].ExerciseID < prs[j].ExerciseID })
	return prs, nil
}
