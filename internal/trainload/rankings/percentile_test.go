package rankings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/trainload/internal/trainload"
)

func oneToHundred() []float64 {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i + 1)
	}
	return values
}

func TestRank(t *testing.T) {
	values := oneToHundred()

	assert.InDelta(t, 75, Rank(values, 75), 0.0001)
	assert.InDelta(t, 100, Rank(values, 100), 0.0001)
	assert.InDelta(t, 100, Rank(values, 500), 0.0001)
	assert.InDelta(t, 1, Rank(values, 1), 0.0001)
	assert.InDelta(t, 0, Rank(values, 0.5), 0.0001)
	assert.Zero(t, Rank(nil, 10))
}

func TestBreakpoints(t *testing.T) {
	bp := Breakpoints(oneToHundred())
	require.Len(t, bp, len(trainload.PercentileBreakpoints))

	assert.InDelta(t, 10.9, bp[10], 0.0001)
	assert.InDelta(t, 25.75, bp[25], 0.0001)
	assert.InDelta(t, 50.5, bp[50], 0.0001)
	assert.InDelta(t, 75.25, bp[75], 0.0001)
	assert.InDelta(t, 90.1, bp[90], 0.0001)
	assert.InDelta(t, 95.05, bp[95], 0.0001)
	assert.InDelta(t, 99.01, bp[99], 0.0001)
}

func TestRankFromBreakpoints(t *testing.T) {
	bp := Breakpoints(oneToHundred())

	// a value exactly on a breakpoint takes that percentile
	assert.InDelta(t, 50, RankFromBreakpoints(bp, 50.5), 0.0001)
	assert.InDelta(t, 90, RankFromBreakpoints(bp, 90.1), 0.0001)

	// between two breakpoints it interpolates
	assert.InDelta(t, 62.6, RankFromBreakpoints(bp, 63), 0.0001)

	// out of range clamps
	assert.InDelta(t, 99, RankFromBreakpoints(bp, 200), 0.0001)
	got := RankFromBreakpoints(bp, 5)
	assert.Greater(t, got, 0.0)
	assert.Less(t, got, 10.0)
}

func TestComputeStatistics(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	bests := []trainload.ExerciseBest{
		{UserID: "u1", BestWeight: 100, BestOneRepMax: 110},
		{UserID: "u2", BestWeight: 80, BestOneRepMax: 90},
		{UserID: "u3", BestWeight: 120, BestOneRepMax: 0}, // no 1RM estimate
		{UserID: "u4", BestWeight: 60, BestOneRepMax: 70},
	}

	exStats := ComputeStatistics("bench", bests, now)
	assert.Equal(t, "bench", exStats.ExerciseID)
	assert.Equal(t, 4, exStats.SampleSize)
	assert.Equal(t, now, exStats.ComputedAt)
	assert.InDelta(t, 90, exStats.AverageWeight, 0.0001)
	assert.InDelta(t, 90, exStats.MedianWeight, 0.0001)
	// the zero 1RM is not part of the 1RM population
	assert.InDelta(t, 90, exStats.AverageOneRepMax, 0.0001)
	assert.InDelta(t, 90, exStats.MedianOneRepMax, 0.0001)
	assert.InDelta(t, 119.4, exStats.WeightPercentiles[99], 0.0001)
}
