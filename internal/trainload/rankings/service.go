package rankings

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/2beens/trainload/internal/telemetry/tracing"
	"github.com/2beens/trainload/internal/trainload"
)

type rankingsStore interface {
	ListExerciseBests(ctx context.Context, exerciseID string) ([]trainload.ExerciseBest, error)
	ListPersonalRecords(ctx context.Context, userID string) ([]trainload.PersonalRecord, error)
	GetPersonalRecord(ctx context.Context, userID, exerciseID string) (*trainload.PersonalRecord, error)
}

type Service struct {
	store         rankingsStore
	cache         *Cache // nil disables snapshot caching
	minSampleSize int
	defaultLimit  int
	group         singleflight.Group
}

func NewService(store rankingsStore, cache *Cache, minSampleSize, defaultLimit int) *Service {
	return &Service{
		store:         store,
		cache:         cache,
		minSampleSize: minSampleSize,
		defaultLimit:  defaultLimit,
	}
}

// Statistics returns the distribution snapshot for one exercise, from the
// cache when fresh enough, otherwise recomputed from all personal records.
// Concurrent cache misses for the same exercise collapse into a single
// recomputation.
func (s *Service) Statistics(ctx context.Context, exerciseID string) (_ *trainload.ExerciseStatistics, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "rankings.service.statistics")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("exercise.id", exerciseID))

	result, err, _ := s.group.Do(exerciseID, func() (any, error) {
		if s.cache != nil {
			cached, err := s.cache.GetStatistics(ctx, exerciseID)
			if err == nil {
				return cached, nil
			}
			if !errors.Is(err, trainload.ErrNotFound) {
				log.Warnf("exercise statistics cache read for %s: %s", exerciseID, err)
			}
		}

		bests, err := s.store.ListExerciseBests(ctx, exerciseID)
		if err != nil {
			return nil, fmt.Errorf("list exercise bests: %w", err)
		}
		exStats := ComputeStatistics(exerciseID, bests, time.Now())

		if s.cache != nil {
			if err := s.cache.SetStatistics(ctx, exStats); err != nil {
				// stale cache is tolerable, a failed write must not fail the read
				log.Warnf("exercise statistics cache write for %s: %s", exerciseID, err)
			}
		}
		return exStats, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*trainload.ExerciseStatistics), nil
}

// StatRank is one statistic's value and its percentile in the population.
type StatRank struct {
	Value      float64 `json:"value"`
	Percentile float64 `json:"percentile"`
}

// Ranking is a user's standing for one exercise.
type Ranking struct {
	UserID           string    `json:"userId"`
	ExerciseID       string    `json:"exerciseId"`
	Weight           *StatRank `json:"weight"`
	OneRepMax        *StatRank `json:"oneRepMax"`
	SampleSize       int       `json:"sampleSize"`
	InsufficientData bool      `json:"insufficientData"`
	ComputedAt       time.Time `json:"computedAt"`
}

// ExerciseRanking computes the user's exact percentile for one exercise
// from the full live population snapshot.
func (s *Service) ExerciseRanking(ctx context.Context, userID, exerciseID string) (_ *Ranking, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "rankings.service.exerciseRanking")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("exercise.id", exerciseID))

	pr, err := s.store.GetPersonalRecord(ctx, userID, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("get personal record: %w", err)
	}

	bests, err := s.store.ListExerciseBests(ctx, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("list exercise bests: %w", err)
	}
	if len(bests) < s.minSampleSize {
		return nil, fmt.Errorf("%w: %d of %d required samples for %s",
			trainload.ErrInsufficientData, len(bests), s.minSampleSize, exerciseID)
	}

	var weights, oneRepMaxes []float64
	for _, b := range bests {
		if b.BestWeight > 0 {
			weights = append(weights, b.BestWeight)
		}
		if b.BestOneRepMax > 0 {
			oneRepMaxes = append(oneRepMaxes, b.BestOneRepMax)
		}
	}

	ranking := &Ranking{
		UserID:     userID,
		ExerciseID: exerciseID,
		SampleSize: len(bests),
		ComputedAt: time.Now(),
	}
	if pr.BestWeight > 0 {
		ranking.Weight = &StatRank{
			Value:      pr.BestWeight,
			Percentile: Rank(weights, pr.BestWeight),
		}
	}
	if pr.BestOneRepMax > 0 {
		ranking.OneRepMax = &StatRank{
			Value:      pr.BestOneRepMax,
			Percentile: Rank(oneRepMaxes, pr.BestOneRepMax),
		}
	}
	return ranking, nil
}

// AllRankings returns one ranking per exercise the user has records for,
// approximated from cached distribution snapshots so the scan cost is per
// exercise, not per user. Exercises without enough population are flagged
// instead of dropped.
func (s *Service) AllRankings(ctx context.Context, userID string) (_ []Ranking, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "rankings.service.allRankings")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	prs, err := s.store.ListPersonalRecords(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list personal records: %w", err)
	}

	rankingsOut := make([]Ranking, 0, len(prs))
	for _, pr := range prs {
		exStats, err := s.Statistics(ctx, pr.ExerciseID)
		if err != nil {
			return nil, fmt.Errorf("statistics for %s: %w", pr.ExerciseID, err)
		}

		ranking := Ranking{
			UserID:     userID,
			ExerciseID: pr.ExerciseID,
			SampleSize: exStats.SampleSize,
			ComputedAt: exStats.ComputedAt,
		}
		if exStats.SampleSize < s.minSampleSize {
			ranking.InsufficientData = true
			rankingsOut = append(rankingsOut, ranking)
			continue
		}
		if pr.BestWeight > 0 {
			ranking.Weight = &StatRank{
				Value:      pr.BestWeight,
				Percentile: RankFromBreakpoints(exStats.WeightPercentiles, pr.BestWeight),
			}
		}
		if pr.BestOneRepMax > 0 {
			ranking.OneRepMax = &StatRank{
				Value:      pr.BestOneRepMax,
				Percentile: RankFromBreakpoints(exStats.OneRepMaxPercentiles, pr.BestOneRepMax),
			}
		}
		rankingsOut = append(rankingsOut, ranking)
	}
	return rankingsOut, nil
}

// Leaderboard builds the top-N for one exercise and stat kind, with the
// requesting user's own row when they fall outside the top.
func (s *Service) Leaderboard(ctx context.Context, exerciseID string, statKind trainload.StatKind, limit int, userID string) (_ *Leaderboard, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "rankings.service.leaderboard")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("exercise.id", exerciseID),
		attribute.String("stat.kind", string(statKind)),
	)

	if !statKind.Valid() {
		return nil, fmt.Errorf("%w: unknown stat kind %q", trainload.ErrInvalidInput, statKind)
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}

	bests, err := s.store.ListExerciseBests(ctx, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("list exercise bests: %w", err)
	}
	if len(bests) < s.minSampleSize {
		return nil, fmt.Errorf("%w: %d of %d required samples for %s",
			trainload.ErrInsufficientData, len(bests), s.minSampleSize, exerciseID)
	}

	return BuildLeaderboard(exerciseID, statKind, bests, limit, userID), nil
}

// InvalidateExercise drops the cached snapshot after writes touching the
// exercise, so the next read recomputes.
func (s *Service) InvalidateExercise(ctx context.Context, exerciseID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateStatistics(ctx, exerciseID); err != nil {
		log.Warnf("invalidate exercise statistics for %s: %s", exerciseID, err)
	}
}
