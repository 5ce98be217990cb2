// Package achievements evaluates the achievement catalog against user
// aggregates and records newly earned achievements exactly once.
package achievements

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/2beens/trainload/internal/trainload"
)

type Category string

const (
	CategoryWorkoutCount  Category = "workout_count"
	CategoryWorkoutStreak Category = "workout_streak"
	CategoryPRWeight      Category = "pr_weight"
	CategoryPROneRepMax   Category = "pr_one_rep_max"
	CategoryTotalVolume   Category = "total_volume"
	CategoryExerciseCount Category = "exercise_count"
	CategoryMuscleVolume  Category = "muscle_volume"
	CategoryConsistency   Category = "consistency"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryWorkoutCount, CategoryWorkoutStreak, CategoryPRWeight,
		CategoryPROneRepMax, CategoryTotalVolume, CategoryExerciseCount,
		CategoryMuscleVolume, CategoryConsistency:
		return true
	}
	return false
}

// SetCategories are evaluated when a set is recorded, WorkoutCategories
// when a workout completes. Consistency is catalog-only for now, no event
// triggers it.
var (
	SetCategories = []Category{
		CategoryPRWeight, CategoryPROneRepMax, CategoryTotalVolume,
		CategoryExerciseCount, CategoryMuscleVolume,
	}
	WorkoutCategories = []Category{
		CategoryWorkoutCount, CategoryWorkoutStreak,
	}
)

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Achievement is one immutable catalog entry.
type Achievement struct {
	ID               string                 `toml:"id" json:"id"`
	Name             string                 `toml:"name" json:"name"`
	Description      string                 `toml:"description" json:"description"`
	Category         Category               `toml:"category" json:"category"`
	RequirementValue float64                `toml:"requirement_value" json:"requirementValue"`
	ExerciseID       *string                `toml:"exercise_id" json:"exerciseId"`
	MuscleGroup      *trainload.MuscleGroup `toml:"muscle_group" json:"muscleGroup"`
	Points           int                    `toml:"points" json:"points"`
	Rarity           Rarity                 `toml:"rarity" json:"rarity"`
	Icon             string                 `toml:"icon" json:"icon"`
	IsHidden         bool                   `toml:"is_hidden" json:"isHidden"`
	IsActive         bool                   `toml:"is_active" json:"isActive"`
	Order            int                    `toml:"order" json:"order"`
}

// Catalog keeps the achievement definitions in display order with id and
// category lookups.
type Catalog struct {
	ordered    []Achievement
	byID       map[string]Achievement
	byCategory map[Category][]Achievement
}

func NewCatalog(achievements []Achievement) (*Catalog, error) {
	c := &Catalog{
		byID:       map[string]Achievement{},
		byCategory: map[Category][]Achievement{},
	}
	for _, a := range achievements {
		if a.ID == "" {
			return nil, fmt.Errorf("%w: achievement without id", trainload.ErrInvalidInput)
		}
		if !a.Category.Valid() {
			return nil, fmt.Errorf("%w: achievement %s has unknown category %q", trainload.ErrInvalidInput, a.ID, a.Category)
		}
		if a.RequirementValue <= 0 {
			return nil, fmt.Errorf("%w: achievement %s has non-positive requirement", trainload.ErrInvalidInput, a.ID)
		}
		if a.MuscleGroup != nil && !a.MuscleGroup.Valid() {
			return nil, fmt.Errorf("%w: achievement %s has unknown muscle group %q", trainload.ErrInvalidInput, a.ID, *a.MuscleGroup)
		}
		if _, exists := c.byID[a.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate achievement id %s", trainload.ErrInvalidInput, a.ID)
		}
		c.ordered = append(c.ordered, a)
		c.byID[a.ID] = a
		c.byCategory[a.Category] = append(c.byCategory[a.Category], a)
	}
	return c, nil
}

// LoadCatalog reads achievement definitions from a TOML file. An empty
// path falls back to the built-in default catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	var file struct {
		Achievements []Achievement `toml:"achievement"`
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("decode achievements catalog %s: %w", path, err)
	}
	return NewCatalog(file.Achievements)
}

func (c *Catalog) All() []Achievement {
	return c.ordered
}

func (c *Catalog) Get(id string) (Achievement, bool) {
	a, ok := c.byID[id]
	return a, ok
}

func (c *Catalog) ByCategory(category Category) []Achievement {
	return c.byCategory[category]
}

func (c *Catalog) ByCategories(categories []Category) []Achievement {
	var out []Achievement
	for _, cat := range categories {
		out = append(out, c.byCategory[cat]...)
	}
	return out
}

// DefaultCatalog is the built-in seed set used when no catalog file is
// configured.
func DefaultCatalog() (*Catalog, error) {
	var defs []Achievement
	order := 0
	add := func(id, name, description string, category Category, requirement float64, rarity Rarity, points int) {
		order++
		defs = append(defs, Achievement{
			ID:               id,
			Name:             name,
			Description:      description,
			Category:         category,
			RequirementValue: requirement,
			Points:           points,
			Rarity:           rarity,
			IsActive:         true,
			Order:            order,
		})
	}

	type tier struct {
		requirement float64
		rarity      Rarity
		points      int
	}

	workoutTiers := []tier{
		{1, RarityCommon, 10}, {5, RarityCommon, 20}, {10, RarityCommon, 30},
		{25, RarityUncommon, 50}, {50, RarityUncommon, 100}, {100, RarityRare, 250},
		{250, RarityRare, 500}, {500, RarityEpic, 1000}, {1000, RarityLegendary, 5000},
	}
	for _, tr := range workoutTiers {
		n := int(tr.requirement)
		add(
			fmt.Sprintf("workout_count_%d", n),
			fmt.Sprintf("%d Workouts", n),
			fmt.Sprintf("Complete %d workouts", n),
			CategoryWorkoutCount, tr.requirement, tr.rarity, tr.points,
		)
	}

	streakTiers := []tier{
		{2, RarityCommon, 10}, {3, RarityCommon, 20}, {5, RarityCommon, 30},
		{7, RarityUncommon, 50}, {14, RarityUncommon, 100}, {30, RarityRare, 250},
		{60, RarityEpic, 1000}, {100, RarityLegendary, 5000},
	}
	for _, tr := range streakTiers {
		n := int(tr.requirement)
		add(
			fmt.Sprintf("workout_streak_%d", n),
			fmt.Sprintf("%d Day Streak", n),
			fmt.Sprintf("Train on %d consecutive days", n),
			CategoryWorkoutStreak, tr.requirement, tr.rarity, tr.points,
		)
	}

	volumeTiers := []tier{
		{1_000, RarityCommon, 10}, {5_000, RarityCommon, 20}, {10_000, RarityCommon, 30},
		{25_000, RarityUncommon, 50}, {50_000, RarityUncommon, 100}, {100_000, RarityRare, 250},
		{250_000, RarityRare, 500}, {500_000, RarityEpic, 1000}, {1_000_000, RarityLegendary, 5000},
	}
	for _, tr := range volumeTiers {
		n := int(tr.requirement)
		add(
			fmt.Sprintf("total_volume_%d", n),
			fmt.Sprintf("%d kg Lifted", n),
			fmt.Sprintf("Lift a total volume of %d kg", n),
			CategoryTotalVolume, tr.requirement, tr.rarity, tr.points,
		)
	}

	exerciseTiers := []tier{
		{5, RarityCommon, 20}, {10, RarityUncommon, 50},
		{25, RarityRare, 250}, {50, RarityEpic, 1000},
	}
	for _, tr := range exerciseTiers {
		n := int(tr.requirement)
		add(
			fmt.Sprintf("exercise_count_%d", n),
			fmt.Sprintf("%d Exercises", n),
			fmt.Sprintf("Log sets for %d different exercises", n),
			CategoryExerciseCount, tr.requirement, tr.rarity, tr.points,
		)
	}

	return NewCatalog(defs)
}
