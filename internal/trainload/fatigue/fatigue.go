// Package fatigue holds the pure training load math: per-set fatigue
// contributions, the fatigue -> recovery hours curve and the linear
// recovery percentage model. No storage, no clocks, callers pass time in.
package fatigue

import (
	"fmt"
	"math"
	"time"

	"github.com/2beens/trainload/internal/trainload"
)

// Breakpoint maps a cumulative fatigue score to required recovery hours.
type Breakpoint struct {
	Fatigue float64
	Hours   float64
}

// Curve is a piecewise linear fatigue -> hours mapping. Breakpoints must be
// sorted by ascending fatigue; beyond the last breakpoint the curve
// saturates at its final hours value.
type Curve []Breakpoint

// DefaultCurve covers the common training range: a light session clears
// within a day, a brutal one takes four.
func DefaultCurve() Curve {
	return Curve{
		{Fatigue: 0, Hours: 24},
		{Fatigue: 600, Hours: 36},
		{Fatigue: 1500, Hours: 48},
		{Fatigue: 3000, Hours: 72},
		{Fatigue: 6000, Hours: 96},
	}
}

func (c Curve) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("%w: empty recovery curve", trainload.ErrInvalidInput)
	}
	for i, bp := range c {
		if bp.Fatigue < 0 || bp.Hours < 0 {
			return fmt.Errorf("%w: negative recovery curve breakpoint", trainload.ErrInvalidInput)
		}
		if i > 0 && bp.Fatigue <= c[i-1].Fatigue {
			return fmt.Errorf("%w: recovery curve breakpoints not ascending", trainload.ErrInvalidInput)
		}
	}
	return nil
}

// RecoveryHours interpolates the required recovery hours for a cumulative
// fatigue score. Scores below the first breakpoint clamp to its hours,
// scores beyond the last one saturate at the final hours value.
func (c Curve) RecoveryHours(fatigueScore float64) float64 {
	if len(c) == 0 {
		return 0
	}
	if fatigueScore <= c[0].Fatigue {
		return c[0].Hours
	}
	for i := 1; i < len(c); i++ {
		if fatigueScore <= c[i].Fatigue {
			lo, hi := c[i-1], c[i]
			frac := (fatigueScore - lo.Fatigue) / (hi.Fatigue - lo.Fatigue)
			return lo.Hours + frac*(hi.Hours-lo.Hours)
		}
	}
	return c[len(c)-1].Hours
}

// Contribution is the fatigue a single set adds to one muscle group:
// weight x reps x involvement factor. The factor must be in (0, 1].
func Contribution(weight float64, reps int, involvement float64) (float64, error) {
	if weight < 0 {
		return 0, fmt.Errorf("%w: negative weight", trainload.ErrInvalidInput)
	}
	if reps <= 0 {
		return 0, fmt.Errorf("%w: reps must be positive", trainload.ErrInvalidInput)
	}
	if involvement <= 0 || involvement > 1 {
		return 0, fmt.Errorf("%w: involvement factor %f outside (0, 1]", trainload.ErrInvalidInput, involvement)
	}
	return weight * float64(reps) * involvement, nil
}

// RecoveryPercentage is how far along recovery is at `now`, on a linear
// ramp from 0% when the fatigue was recorded to 100% at recoveryUntil.
// A muscle with no pending recovery is 100% recovered.
func RecoveryPercentage(recoveryUntil *time.Time, recoveryHours float64, now time.Time) float64 {
	if recoveryUntil == nil || recoveryHours <= 0 {
		return 100
	}
	if !now.Before(*recoveryUntil) {
		return 100
	}
	start := recoveryUntil.Add(-time.Duration(recoveryHours * float64(time.Hour)))
	if !now.After(start) {
		return 0
	}
	elapsed := now.Sub(start).Hours()
	return Round2(elapsed / recoveryHours * 100)
}

// HoursUntilRecovered is the remaining recovery time in hours, never
// negative, rounded to one decimal.
func HoursUntilRecovered(recoveryUntil *time.Time, now time.Time) float64 {
	if recoveryUntil == nil || !now.Before(*recoveryUntil) {
		return 0
	}
	return Round1(recoveryUntil.Sub(now).Hours())
}

func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
