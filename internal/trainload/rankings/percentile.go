// Package rankings serves the cross-user read side: percentile ranks per
// exercise and leaderboards. Distribution snapshots are cached in redis
// with a staleness bound exposed through computedAt.
package rankings

import (
	"math"
	"sort"
	"time"

	"github.com/2beens/trainload/internal/trainload"
	"github.com/2beens/trainload/internal/trainload/fatigue"
)

// Rank is the exact percentile of x in the full population snapshot:
// share of values less than or equal to x, in percent, one decimal.
func Rank(values []float64, x float64) float64 {
	if len(values) == 0 {
		return 0
	}
	count := 0
	for _, v := range values {
		if v <= x {
			count++
		}
	}
	return fatigue.Round1(float64(count) / float64(len(values)) * 100)
}

// percentileOf computes the p-th percentile of sorted values with linear
// interpolation between the two nearest order statistics.
func percentileOf(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Breakpoints precomputes the standard percentile breakpoints of a value
// distribution. Zero values are excluded, a user with no estimate for the
// statistic is not part of its population.
func Breakpoints(values []float64) map[int]float64 {
	filtered := make([]float64, 0, len(values))
	for _, v := range values {
		if v > 0 {
			filtered = append(filtered, v)
		}
	}
	sort.Float64s(filtered)

	out := make(map[int]float64, len(trainload.PercentileBreakpoints))
	for _, p := range trainload.PercentileBreakpoints {
		out[p] = fatigue.Round2(percentileOf(filtered, float64(p)))
	}
	return out
}

// RankFromBreakpoints approximates a percentile from precomputed
// breakpoints: a value exactly on a breakpoint takes that breakpoint's
// percentile, between two it interpolates linearly, below the lowest it
// scales down to 0 and above the highest it reports the top breakpoint.
func RankFromBreakpoints(breakpoints map[int]float64, x float64) float64 {
	ps := make([]int, 0, len(breakpoints))
	for p := range breakpoints {
		ps = append(ps, p)
	}
	sort.Ints(ps)
	if len(ps) == 0 {
		return 0
	}

	lowest := breakpoints[ps[0]]
	if x <= lowest {
		if lowest <= 0 {
			return 0
		}
		return fatigue.Round1(x / lowest * float64(ps[0]))
	}
	for i := 1; i < len(ps); i++ {
		loP, hiP := ps[i-1], ps[i]
		loV, hiV := breakpoints[loP], breakpoints[hiP]
		if x == hiV {
			return float64(hiP)
		}
		if x < hiV {
			if hiV == loV {
				return float64(loP)
			}
			frac := (x - loV) / (hiV - loV)
			return fatigue.Round1(float64(loP) + frac*float64(hiP-loP))
		}
	}
	return float64(ps[len(ps)-1])
}

// ComputeStatistics builds the full distribution snapshot for one exercise
// from all users' best values.
func ComputeStatistics(exerciseID string, bests []trainload.ExerciseBest, now time.Time) *trainload.ExerciseStatistics {
	weights := make([]float64, 0, len(bests))
	oneRepMaxes := make([]float64, 0, len(bests))
	for _, b := range bests {
		if b.BestWeight > 0 {
			weights = append(weights, b.BestWeight)
		}
		if b.BestOneRepMax > 0 {
			oneRepMaxes = append(oneRepMaxes, b.BestOneRepMax)
		}
	}
	sort.Float64s(weights)
	sort.Float64s(oneRepMaxes)

	return &trainload.ExerciseStatistics{
		ExerciseID:           exerciseID,
		SampleSize:           len(bests),
		WeightPercentiles:    Breakpoints(weights),
		OneRepMaxPercentiles: Breakpoints(oneRepMaxes),
		AverageWeight:        fatigue.Round2(mean(weights)),
		MedianWeight:         fatigue.Round2(percentileOf(weights, 50)),
		AverageOneRepMax:     fatigue.Round2(mean(oneRepMaxes)),
		MedianOneRepMax:      fatigue.Round2(percentileOf(oneRepMaxes, 50)),
		ComputedAt:           now,
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
