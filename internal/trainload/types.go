package trainload

import "time"

// MuscleGroup is one of the 16 fixed muscle group identifiers used across
// the whole service. Recovery status responses always contain all of them.
type MuscleGroup string

const (
	MuscleChest     MuscleGroup = "chest"
	MuscleShoulders MuscleGroup = "shoulders"
	MuscleBiceps    MuscleGroup = "biceps"
	MuscleTriceps   MuscleGroup = "triceps"
	MuscleForearms  MuscleGroup = "forearms"
	MuscleLats      MuscleGroup = "lats"
	MuscleTraps     MuscleGroup = "traps"
	MuscleLowerBack MuscleGroup = "lower_back"
	MuscleQuads     MuscleGroup = "quads"
	MuscleHams      MuscleGroup = "hamstrings"
	MuscleGlutes    MuscleGroup = "glutes"
	MuscleCalves    MuscleGroup = "calves"
	MuscleAbs       MuscleGroup = "abs"
	MuscleObliques  MuscleGroup = "obliques"
	MuscleAbductors MuscleGroup = "abductors"
	MuscleAdductors MuscleGroup = "adductors"
)

func AllMuscleGroups() []MuscleGroup {
	return []MuscleGroup{
		MuscleChest, MuscleShoulders, MuscleBiceps, MuscleTriceps,
		MuscleForearms, MuscleLats, MuscleTraps, MuscleLowerBack,
		MuscleQuads, MuscleHams, MuscleGlutes, MuscleCalves,
		MuscleAbs, MuscleObliques, MuscleAbductors, MuscleAdductors,
	}
}

func (mg MuscleGroup) Valid() bool {
	switch mg {
	case MuscleChest, MuscleShoulders, MuscleBiceps, MuscleTriceps,
		MuscleForearms, MuscleLats, MuscleTraps, MuscleLowerBack,
		MuscleQuads, MuscleHams, MuscleGlutes, MuscleCalves,
		MuscleAbs, MuscleObliques, MuscleAbductors, MuscleAdductors:
		return true
	}
	return false
}

// MuscleInvolvement says how much one muscle group participates in an
// exercise; the factor comes from the exercise catalog of the workout
// subsystem and must be in (0, 1].
type MuscleInvolvement struct {
	MuscleGroup MuscleGroup `json:"muscleGroup"`
	Factor      float64     `json:"factor"`
}

// Set is one recorded working set, the raw input of everything here.
type Set struct {
	SetID       string              `json:"setId"`
	UserID      string              `json:"userId"`
	ExerciseID  string              `json:"exerciseId"`
	WorkoutID   string              `json:"workoutId"`
	Weight      float64             `json:"weight"`
	Reps        int                 `json:"reps"`
	Involvement []MuscleInvolvement `json:"muscleInvolvement"`
	RecordedAt  time.Time           `json:"recordedAt"`
}

// SetVolume is weight times reps for the single set.
func (s Set) SetVolume() float64 {
	return s.Weight * float64(s.Reps)
}

// WorkoutCompletion marks a workout as done, the second inbound event kind.
// Duration is optional, zero means the workout subsystem did not report it.
type WorkoutCompletion struct {
	WorkoutID       string    `json:"workoutId"`
	UserID          string    `json:"userId"`
	CompletedAt     time.Time `json:"completedAt"`
	DurationMinutes int       `json:"durationMinutes"`
}

// MuscleRecoveryRecord is the latest recovery state for one (user, muscle
// group) pair. A new workout touching the muscle supersedes the previous
// record, it never merges into it.
type MuscleRecoveryRecord struct {
	ID              int64       `json:"id"`
	UserID          string      `json:"userId"`
	MuscleGroup     MuscleGroup `json:"muscleGroup"`
	FatigueScore    float64     `json:"fatigueScore"`
	TotalSets       int         `json:"totalSets"`
	RecoveryHours   float64     `json:"recoveryHours"`
	RecoveryUntil   *time.Time  `json:"recoveryUntil"`
	SourceWorkoutID *string     `json:"sourceWorkoutId"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// PersonalRecord tracks the best and total numbers per (user, exercise).
// Best fields never decrease, totals only grow.
type PersonalRecord struct {
	UserID     string `json:"userId"`
	ExerciseID string `json:"exerciseId"`

	BestWeight     float64    `json:"bestWeight"`
	BestWeightReps int        `json:"bestWeightReps"`
	BestWeightDate *time.Time `json:"bestWeightDate"`

	BestOneRepMax       float64    `json:"bestOneRepMax"`
	BestOneRepMaxWeight float64    `json:"bestOneRepMaxWeight"`
	BestOneRepMaxReps   int        `json:"bestOneRepMaxReps"`
	BestOneRepMaxDate   *time.Time `json:"bestOneRepMaxDate"`

	BestSetVolume     float64    `json:"bestSetVolume"`
	BestSetVolumeDate *time.Time `json:"bestSetVolumeDate"`

	TotalVolume float64 `json:"totalVolume"`
	TotalSets   int     `json:"totalSets"`
	TotalReps   int     `json:"totalReps"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ExerciseBest is one user's best values for one exercise, the cross-user
// input of percentiles and leaderboards.
type ExerciseBest struct {
	UserID            string     `json:"userId"`
	BestWeight        float64    `json:"bestWeight"`
	BestWeightDate    *time.Time `json:"bestWeightDate"`
	BestOneRepMax     float64    `json:"bestOneRepMax"`
	BestOneRepMaxDate *time.Time `json:"bestOneRepMaxDate"`
}

// UserStatistics is a materialized cache of per-user aggregates,
// rebuildable from the raw event history.
type UserStatistics struct {
	UserID               string     `json:"userId"`
	TotalWorkouts        int        `json:"totalWorkouts"`
	TotalWorkoutDuration int        `json:"totalWorkoutDuration"`
	TotalVolume          float64    `json:"totalVolume"`
	TotalSets            int        `json:"totalSets"`
	TotalReps            int        `json:"totalReps"`
	CurrentStreak        int        `json:"currentStreak"`
	LongestStreak        int        `json:"longestStreak"`
	LastWorkoutDate      *time.Time `json:"lastWorkoutDate"`
	TotalAchievements    int        `json:"totalAchievements"`
	TotalPoints          int        `json:"totalPoints"`
	TotalPRs             int        `json:"totalPRs"`
}

// UserAchievement marks one earned achievement. Earned is terminal: rows
// are only ever inserted, never removed or downgraded.
type UserAchievement struct {
	ID              int64     `json:"id"`
	UserID          string    `json:"userId"`
	AchievementID   string    `json:"achievementId"`
	EarnedAt        time.Time `json:"earnedAt"`
	CurrentProgress float64   `json:"currentProgress"`
	EarnedValue     *float64  `json:"earnedValue"`
	Notified        bool      `json:"notified"`
}

// ExerciseStatistics is the percentile snapshot for one exercise across all
// users. Staleness is tolerated, ComputedAt is exposed to callers.
type ExerciseStatistics struct {
	ExerciseID           string          `json:"exerciseId"`
	SampleSize           int             `json:"sampleSize"`
	WeightPercentiles    map[int]float64 `json:"weightPercentiles"`
	OneRepMaxPercentiles map[int]float64 `json:"oneRepMaxPercentiles"`
	AverageWeight        float64         `json:"averageWeight"`
	MedianWeight         float64         `json:"medianWeight"`
	AverageOneRepMax     float64         `json:"averageOneRepMax"`
	MedianOneRepMax      float64         `json:"medianOneRepMax"`
	ComputedAt           time.Time       `json:"computedAt"`
}

// PercentileBreakpoints are the percentiles precomputed in every
// ExerciseStatistics snapshot.
var PercentileBreakpoints = []int{10, 25, 50, 75, 90, 95, 99}

// StatKind selects which best value rankings and leaderboards rank by.
type StatKind string

const (
	StatWeight    StatKind = "weight"
	StatOneRepMax StatKind = "one_rep_max"
)

func (sk StatKind) Valid() bool {
	return sk == StatWeight || sk == StatOneRepMax
}
