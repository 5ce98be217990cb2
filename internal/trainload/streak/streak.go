// Package streak computes workout streaks on calendar days in a configured
// timezone. Multiple workouts on the same day count once; a missed day
// resets the current streak to 1 on the next workout.
package streak

import (
	"sort"
	"time"
)

// State is the streak part of a user's statistics.
type State struct {
	Current         int
	Longest         int
	LastWorkoutDate *time.Time
}

// DayOf truncates a timestamp to its calendar day in loc.
func DayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Update folds one workout completion into the streak state. Completions
// on or before the last known workout day leave the state untouched, so
// redelivered or out of order events are harmless.
func Update(st State, completedAt time.Time, loc *time.Location) State {
	day := DayOf(completedAt, loc)

	if st.LastWorkoutDate == nil {
		st.Current = 1
		if st.Longest < 1 {
			st.Longest = 1
		}
		st.LastWorkoutDate = &day
		return st
	}

	last := DayOf(*st.LastWorkoutDate, loc)
	switch {
	case !day.After(last):
		// same day again, or out of order
		return st
	case day.Equal(last.AddDate(0, 0, 1)):
		st.Current++
	default:
		// gap of at least one full day
		st.Current = 1
	}
	if st.Current > st.Longest {
		st.Longest = st.Current
	}
	st.LastWorkoutDate = &day
	return st
}

// Rebuild recomputes the streak state from the full completion history.
// Folding the same completions through Update one by one lands on the
// same state.
func Rebuild(completedAts []time.Time, loc *time.Location) State {
	days := make([]time.Time, 0, len(completedAts))
	for _, at := range completedAts {
		days = append(days, DayOf(at, loc))
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	var st State
	for _, day := range days {
		st = Update(st, day, loc)
	}
	return st
}
