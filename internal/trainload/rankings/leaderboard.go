package rankings

import (
	"sort"
	"time"

	"github.com/2beens/trainload/internal/trainload"
)

// LeaderboardEntry is one ranked row. Ranks are ordinal: ties are broken
// by earlier achievement date, every entry gets a distinct rank.
type LeaderboardEntry struct {
	Rank       int        `json:"rank"`
	UserID     string     `json:"userId"`
	Value      float64    `json:"value"`
	AchievedAt *time.Time `json:"achievedAt"`
}

// Leaderboard is the top slice of the ordering plus, when the requesting
// user falls outside it, their own row.
type Leaderboard struct {
	ExerciseID string             `json:"exerciseId"`
	StatKind   trainload.StatKind `json:"statKind"`
	Entries    []LeaderboardEntry `json:"entries"`
	UserEntry  *LeaderboardEntry  `json:"userEntry"`
	TotalUsers int                `json:"totalUsers"`
}

// BuildLeaderboard orders all users' best values for the stat kind
// descending and returns the top limit entries. Users without a value for
// the stat kind are left out.
func BuildLeaderboard(exerciseID string, statKind trainload.StatKind, bests []trainload.ExerciseBest, limit int, userID string) *Leaderboard {
	entries := make([]LeaderboardEntry, 0, len(bests))
	for _, b := range bests {
		value, achievedAt := b.BestWeight, b.BestWeightDate
		if statKind == trainload.StatOneRepMax {
			value, achievedAt = b.BestOneRepMax, b.BestOneRepMaxDate
		}
		if value <= 0 {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			UserID:     b.UserID,
			Value:      value,
			AchievedAt: achievedAt,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			return entries[i].Value > entries[j].Value
		}
		di, dj := entries[i].AchievedAt, entries[j].AchievedAt
		switch {
		case di != nil && dj != nil && !di.Equal(*dj):
			return di.Before(*dj)
		case di != nil && dj == nil:
			return true
		case di == nil && dj != nil:
			return false
		}
		return entries[i].UserID < entries[j].UserID
	})

	lb := &Leaderboard{
		ExerciseID: exerciseID,
		StatKind:   statKind,
		TotalUsers: len(entries),
	}

	var userEntry *LeaderboardEntry
	for i := range entries {
		entries[i].Rank = i + 1
		if entries[i].UserID == userID {
			entryCopy := entries[i]
			userEntry = &entryCopy
		}
	}

	if limit > len(entries) {
		limit = len(entries)
	}
	lb.Entries = entries[:limit]

	if userEntry != nil && userEntry.Rank > limit {
		lb.UserEntry = userEntry
	}
	return lb
}
