package achievements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/trainload/internal/telemetry/tracing"
	"github.com/2beens/trainload/internal/trainload"
)

type engineStore interface {
	ListUserAchievements(ctx context.Context, userID string) ([]trainload.UserAchievement, error)
	InsertUserAchievement(ctx context.Context, ua *trainload.UserAchievement) error
	MarkAchievementsNotified(ctx context.Context, userID string, achievementIDs []string) error
	GetUserStatistics(ctx context.Context, userID string) (*trainload.UserStatistics, error)
	ListPersonalRecords(ctx context.Context, userID string) ([]trainload.PersonalRecord, error)
	ListSets(ctx context.Context, userID string) ([]trainload.Set, error)
}

type Engine struct {
	store   engineStore
	catalog *Catalog
}

func NewEngine(store engineStore, catalog *Catalog) *Engine {
	return &Engine{
		store:   store,
		catalog: catalog,
	}
}

// Earned pairs a catalog entry with the user's earned record.
type Earned struct {
	Achievement Achievement               `json:"achievement"`
	Record      trainload.UserAchievement `json:"record"`
}

// aggregates is the snapshot the progress functions read from. Muscle
// volumes are computed lazily since only muscle_volume achievements need
// the full set history.
type aggregates struct {
	stats         trainload.UserStatistics
	prs           []trainload.PersonalRecord
	muscleVolumes map[trainload.MuscleGroup]float64
}

func (e *Engine) loadAggregates(ctx context.Context, userID string, needSets bool) (*aggregates, error) {
	agg := &aggregates{}

	stats, err := e.store.GetUserStatistics(ctx, userID)
	switch {
	case err == nil:
		agg.stats = *stats
	case errors.Is(err, trainload.ErrNotFound):
		// no workouts yet, everything stays zero
	default:
		return nil, fmt.Errorf("get user statistics: %w", err)
	}

	if agg.prs, err = e.store.ListPersonalRecords(ctx, userID); err != nil {
		return nil, fmt.Errorf("list personal records: %w", err)
	}

	if needSets {
		sets, err := e.store.ListSets(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list sets: %w", err)
		}
		agg.muscleVolumes = map[trainload.MuscleGroup]float64{}
		for _, set := range sets {
			for _, inv := range set.Involvement {
				agg.muscleVolumes[inv.MuscleGroup] += set.Weight * float64(set.Reps) * inv.Factor
			}
		}
	}

	return agg, nil
}

// progress derives the current value for one achievement from the
// aggregate snapshot. Consistency achievements are catalog-only and never
// progress.
func (agg *aggregates) progress(a Achievement) float64 {
	switch a.Category {
	case CategoryWorkoutCount:
		return float64(agg.stats.TotalWorkouts)
	case CategoryWorkoutStreak:
		return float64(agg.stats.LongestStreak)
	case CategoryTotalVolume:
		return agg.stats.TotalVolume
	case CategoryExerciseCount:
		return float64(len(agg.prs))
	case CategoryPRWeight:
		var best float64
		for _, pr := range agg.prs {
			if a.ExerciseID != nil && pr.ExerciseID != *a.ExerciseID {
				continue
			}
			if pr.BestWeight > best {
				best = pr.BestWeight
			}
		}
		return best
	case CategoryPROneRepMax:
		var best float64
		for _, pr := range agg.prs {
			if a.ExerciseID != nil && pr.ExerciseID != *a.ExerciseID {
				continue
			}
			if pr.BestOneRepMax > best {
				best = pr.BestOneRepMax
			}
		}
		return best
	case CategoryMuscleVolume:
		if a.MuscleGroup == nil {
			return 0
		}
		return agg.muscleVolumes[*a.MuscleGroup]
	default:
		return 0
	}
}

func needsSets(achievements []Achievement, earned map[string]trainload.UserAchievement) bool {
	for _, a := range achievements {
		if a.Category != CategoryMuscleVolume {
			continue
		}
		if _, alreadyEarned := earned[a.ID]; !alreadyEarned {
			return true
		}
	}
	return false
}

// Evaluate checks the locked achievements of the given categories against
// the current aggregates and records the ones whose requirement now holds.
// Earned is terminal, re-evaluating with the same state changes nothing.
func (e *Engine) Evaluate(ctx context.Context, userID string, categories []Category, at time.Time) (_ []Earned, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "achievements.engine.evaluate")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	earnedRecords, err := e.store.ListUserAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user achievements: %w", err)
	}
	earned := make(map[string]trainload.UserAchievement, len(earnedRecords))
	for _, ua := range earnedRecords {
		earned[ua.AchievementID] = ua
	}

	candidates := e.catalog.ByCategories(categories)
	agg, err := e.loadAggregates(ctx, userID, needsSets(candidates, earned))
	if err != nil {
		return nil, err
	}

	var newly []Earned
	for _, a := range candidates {
		if !a.IsActive {
			continue
		}
		if _, alreadyEarned := earned[a.ID]; alreadyEarned {
			continue
		}
		progress := agg.progress(a)
		if progress < a.RequirementValue {
			continue
		}
		earnedValue := progress
		ua := trainload.UserAchievement{
			UserID:          userID,
			AchievementID:   a.ID,
			EarnedAt:        at,
			CurrentProgress: progress,
			EarnedValue:     &earnedValue,
		}
		if err := e.store.InsertUserAchievement(ctx, &ua); err != nil {
			if errors.Is(err, trainload.ErrConflict) {
				// lost a race with another evaluation, fine
				continue
			}
			return nil, fmt.Errorf("insert user achievement %s: %w", a.ID, err)
		}
		newly = append(newly, Earned{Achievement: a, Record: ua})
	}

	span.SetAttributes(attribute.Int("achievements.newly_earned", len(newly)))
	return newly, nil
}

// Progress is the live view of one achievement for one user.
type Progress struct {
	Achievement     Achievement `json:"achievement"`
	IsEarned        bool        `json:"isEarned"`
	EarnedAt        *time.Time  `json:"earnedAt"`
	CurrentProgress float64     `json:"currentProgress"`
	EarnedValue     *float64    `json:"earnedValue"`
	IsNotified      bool        `json:"isNotified"`
}

// ListProgress returns progress for all active achievements, optionally
// filtered to one category. Hidden achievements only appear once earned;
// progress of locked ones is computed live, earned ones report their
// snapshot from earn time.
func (e *Engine) ListProgress(ctx context.Context, userID string, category *Category) (_ []Progress, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "achievements.engine.listProgress")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	earnedRecords, err := e.store.ListUserAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user achievements: %w", err)
	}
	earned := make(map[string]trainload.UserAchievement, len(earnedRecords))
	for _, ua := range earnedRecords {
		earned[ua.AchievementID] = ua
	}

	candidates := e.catalog.All()
	if category != nil {
		candidates = e.catalog.ByCategory(*category)
	}

	agg, err := e.loadAggregates(ctx, userID, needsSets(candidates, earned))
	if err != nil {
		return nil, err
	}

	var out []Progress
	for _, a := range candidates {
		if !a.IsActive {
			continue
		}
		if ua, isEarned := earned[a.ID]; isEarned {
			earnedAt := ua.EarnedAt
			out = append(out, Progress{
				Achievement:     a,
				IsEarned:        true,
				EarnedAt:        &earnedAt,
				CurrentProgress: ua.CurrentProgress,
				EarnedValue:     ua.EarnedValue,
				IsNotified:      ua.Notified,
			})
			continue
		}
		if a.IsHidden {
			continue
		}
		out = append(out, Progress{
			Achievement:     a,
			CurrentProgress: agg.progress(a),
		})
	}
	return out, nil
}

// Unnotified returns earned achievements the user has not been shown yet.
func (e *Engine) Unnotified(ctx context.Context, userID string) (_ []Earned, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "achievements.engine.unnotified")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	earnedRecords, err := e.store.ListUserAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user achievements: %w", err)
	}

	var out []Earned
	for _, ua := range earnedRecords {
		if ua.Notified {
			continue
		}
		a, ok := e.catalog.Get(ua.AchievementID)
		if !ok {
			// earned under an older catalog, skip
			continue
		}
		out = append(out, Earned{Achievement: a, Record: ua})
	}
	return out, nil
}

// MarkNotified flags earned achievements as shown. With no ids given, all
// currently unnotified ones are flagged.
func (e *Engine) MarkNotified(ctx context.Context, userID string, achievementIDs []string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "achievements.engine.markNotified")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if len(achievementIDs) == 0 {
		unnotified, err := e.Unnotified(ctx, userID)
		if err != nil {
			return err
		}
		for _, earned := range unnotified {
			achievementIDs = append(achievementIDs, earned.Record.AchievementID)
		}
	}
	if len(achievementIDs) == 0 {
		return nil
	}
	return e.store.MarkAchievementsNotified(ctx, userID, achievementIDs)
}
