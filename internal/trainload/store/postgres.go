package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/trainload/internal/telemetry/tracing"
	"github.com/2beens/trainload/internal/trainload"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same
// statement code serves plain and transactional access.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is the production Store.
type Postgres struct {
	db   querier
	pool *pgxpool.Pool // nil inside a transaction
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{db: pool, pool: pool}
}

func (p *Postgres) Atomically(ctx context.Context, fn func(ctx context.Context, s Store) error) (err error) {
	if p.pool == nil {
		// already inside a transaction, join it
		return fn(ctx, p)
	}

	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.atomically")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return fn(ctx, &Postgres{db: tx})
	})
	return mapPgErr(err)
}

// mapPgErr turns serialization failures and deadlocks into ErrConflict so
// the dispatch layer can retry them.
func mapPgErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", trainload.ErrConflict, pgErr.Code)
		case "23505":
			return fmt.Errorf("%w: %s", trainload.ErrConflict, pgErr.ConstraintName)
		}
	}
	return err
}

func (p *Postgres) WasProcessed(ctx context.Context, eventID string) (_ bool, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.wasProcessed")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var exists bool
	err = p.db.QueryRow(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_event WHERE event_id = $1);`,
		eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query processed event: %w", err)
	}
	return exists, nil
}

func (p *Postgres) MarkProcessed(ctx context.Context, eventID string, at time.Time) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.markProcessed")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	_, err = p.db.Exec(
		ctx,
		`INSERT INTO processed_event (event_id, processed_at) VALUES ($1, $2);`,
		eventID, at,
	)
	return mapPgErr(err)
}

func (p *Postgres) AddSet(ctx context.Context, set trainload.Set) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.addSet")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("set.id", set.SetID))

	involvement := make(map[string]float64, len(set.Involvement))
	for _, inv := range set.Involvement {
		involvement[string(inv.MuscleGroup)] = inv.Factor
	}

	_, err = p.db.Exec(
		ctx,
		`INSERT INTO training_set
			(set_id, user_id, exercise_id, workout_id, weight, reps, involvement, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`,
		set.SetID, set.UserID, set.ExerciseID, set.WorkoutID,
		set.Weight, set.Reps, involvement, set.RecordedAt,
	)
	return mapPgErr(err)
}

func (p *Postgres) ListSets(ctx context.Context, userID string) (_ []trainload.Set, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.listSets")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := p.db.Query(
		ctx,
		`SELECT set_id, user_id, exercise_id, workout_id, weight, reps, involvement, recorded_at
			FROM training_set
			WHERE user_id = $1
			ORDER BY recorded_at, set_id;`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSets(rows)
}

func (p *Postgres) ListWorkoutSets(ctx context.Context, userID, workoutID string) (_ []trainload.Set, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.listWorkoutSets")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("workout.id", workoutID))

	rows, err := p.db.Query(
		ctx,
		`SELECT set_id, user_id, exercise_id, workout_id, weight, reps, involvement, recorded_at
			FROM training_set
			WHERE user_id = $1 AND workout_id = $2
			ORDER BY recorded_at, set_id;`,
		userID, workoutID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSets(rows)
}

func scanSets(rows pgx.Rows) ([]trainload.Set, error) {
	var sets []trainload.Set
	for rows.Next() {
		var (
			set         trainload.Set
			involvement map[string]float64
		)
		if err := rows.Scan(
			&set.SetID, &set.UserID, &set.ExerciseID, &set.WorkoutID,
			&set.Weight, &set.Reps, &involvement, &set.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		for mg, factor := range involvement {
			set.Involvement = append(set.Involvement, trainload.MuscleInvolvement{
				MuscleGroup: trainload.MuscleGroup(mg),
				Factor:      factor,
			})
		}
		sets = append(sets, set)
	}
	return sets, rows.Err()
}

func (p *Postgres) AddWorkoutCompletion(ctx context.Context, wc trainload.WorkoutCompletion) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.addWorkoutCompletion")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("workout.id", wc.WorkoutID))

	_, err = p.db.Exec(
		ctx,
		`INSERT INTO workout_completion (workout_id, user_id, completed_at, duration_minutes) VALUES ($1, $2, $3, $4);`,
		wc.WorkoutID, wc.UserID, wc.CompletedAt, wc.DurationMinutes,
	)
	return mapPgErr(err)
}

func (p *Postgres) ListWorkoutCompletions(ctx context.Context, userID string) (_ []trainload.WorkoutCompletion, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.listWorkoutCompletions")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := p.db.Query(
		ctx,
		`SELECT workout_id, user_id, completed_at, duration_minutes
			FROM workout_completion
			WHERE user_id = $1
			ORDER BY completed_at, workout_id;`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var completions []trainload.WorkoutCompletion
	for rows.Next() {
		var wc trainload.WorkoutCompletion
		if err := rows.Scan(&wc.WorkoutID, &wc.UserID, &wc.CompletedAt, &wc.DurationMinutes); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		completions = append(completions, wc)
	}
	return completions, rows.Err()
}

func (p *Postgres) LatestRecovery(ctx context.Context, userID string, mg trainload.MuscleGroup) (_ *trainload.MuscleRecoveryRecord, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.latestRecovery")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("muscle.group", string(mg)))

	rec := trainload.MuscleRecoveryRecord{UserID: userID, MuscleGroup: mg}
	err = p.db.QueryRow(
		ctx,
		`SELECT id, fatigue_score, total_sets, recovery_hours, recovery_until, source_workout_id, created_at, updated_at
			FROM muscle_recovery
			WHERE user_id = $1 AND muscle_group = $2
			ORDER BY created_at DESC, id DESC
			LIMIT 1;`,
		userID, string(mg),
	).Scan(
		&rec.ID, &rec.FatigueScore, &rec.TotalSets, &rec.RecoveryHours,
		&rec.RecoveryUntil, &rec.SourceWorkoutID, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, trainload.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (p *Postgres) LatestRecoveryAll(ctx context.Context, userID string) (_ map[trainload.MuscleGroup]*trainload.MuscleRecoveryRecord, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.latestRecoveryAll")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := p.db.Query(
		ctx,
		`SELECT DISTINCT ON (muscle_group)
				id, muscle_group, fatigue_score, total_sets, recovery_hours, recovery_until, source_workout_id, created_at, updated_at
			FROM muscle_recovery
			WHERE user_id = $1
			ORDER BY muscle_group, created_at DESC, id DESC;`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[trainload.MuscleGroup]*trainload.MuscleRecoveryRecord{}
	for rows.Next() {
		rec := trainload.MuscleRecoveryRecord{UserID: userID}
		if err := rows.Scan(
			&rec.ID, &rec.MuscleGroup, &rec.FatigueScore, &rec.TotalSets, &rec.RecoveryHours,
			&rec.RecoveryUntil, &rec.SourceWorkoutID, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		recCopy := rec
		out[rec.MuscleGroup] = &recCopy
	}
	return out, rows.Err()
}

func (p *Postgres) InsertRecovery(ctx context.Context, rec *trainload.MuscleRecoveryRecord) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.insertRecovery")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("muscle.group", string(rec.MuscleGroup)))

	err = p.db.QueryRow(
		ctx,
		`INSERT INTO muscle_recovery
			(user_id, muscle_group, fatigue_score, total_sets, recovery_hours, recovery_until, source_workout_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id;`,
		rec.UserID, string(rec.MuscleGroup), rec.FatigueScore, rec.TotalSets,
		rec.RecoveryHours, rec.RecoveryUntil, rec.SourceWorkoutID, rec.CreatedAt, rec.UpdatedAt,
	).Scan(&rec.ID)
	return mapPgErr(err)
}

func (p *Postgres) GetPersonalRecord(ctx context.Context, userID, exerciseID string) (_ *trainload.PersonalRecord, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.getPersonalRecord")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("exercise.id", exerciseID))

	pr := trainload.PersonalRecord{UserID: userID, ExerciseID: exerciseID}
	err = p.db.QueryRow(
		ctx,
		`SELECT best_weight, best_weight_reps, best_weight_date,
				best_one_rep_max, best_one_rep_max_weight, best_one_rep_max_reps, best_one_rep_max_date,
				best_set_volume, best_set_volume_date,
				total_volume, total_sets, total_reps, created_at, updated_at
			FROM personal_record
			WHERE user_id = $1 AND exercise_id = $2;`,
		userID, exerciseID,
	).Scan(
		&pr.BestWeight, &pr.BestWeightReps, &pr.BestWeightDate,
		&pr.BestOneRepMax, &pr.BestOneRepMaxWeight, &pr.BestOneRepMaxReps, &pr.BestOneRepMaxDate,
		&pr.BestSetVolume, &pr.BestSetVolumeDate,
		&pr.TotalVolume, &pr.TotalSets, &pr.TotalReps, &pr.CreatedAt, &pr.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, trainload.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

func (p *Postgres) ListPersonalRecords(ctx context.Context, userID string) (_ []trainload.PersonalRecord, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.listPersonalRecords")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := p.db.Query(
		ctx,
		`SELECT exercise_id, best_weight, best_weight_reps, best_weight_date,
				best_one_rep_max, best_one_rep_max_weight, best_one_rep_max_reps, best_one_rep_max_date,
				best_set_volume, best_set_volume_date,
				total_volume, total_sets, total_reps, created_at, updated_at
			FROM personal_record
			WHERE user_id = $1
			ORDER BY exercise_id;`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prs []trainload.PersonalRecord
	for rows.Next() {
		pr := trainload.PersonalRecord{UserID: userID}
		if err := rows.Scan(
			&pr.ExerciseID, &pr.BestWeight, &pr.BestWeightReps, &pr.BestWeightDate,
			&pr.BestOneRepMax, &pr.BestOneRepMaxWeight, &pr.BestOneRepMaxReps, &pr.BestOneRepMaxDate,
			&pr.BestSetVolume, &pr.BestSetVolumeDate,
			&pr.TotalVolume, &pr.TotalSets, &pr.TotalReps, &pr.CreatedAt, &pr.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		prs = append(prs, pr)
	}
	return prs, rows.Err()
}

func (p *Postgres) UpsertPersonalRecord(ctx context.Context, pr *trainload.PersonalRecord) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.upsertPersonalRecord")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("exercise.id", pr.ExerciseID))

	_, err = p.db.Exec(
		ctx,
		`INSERT INTO personal_record
			(user_id, exercise_id, best_weight, best_weight_reps, best_weight_date,
			 best_one_rep_max, best_one_rep_max_weight, best_one_rep_max_reps, best_one_rep_max_date,
			 best_set_volume, best_set_volume_date,
			 total_volume, total_sets, total_reps, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (user_id, exercise_id) DO UPDATE SET
				best_weight = EXCLUDED.best_weight,
				best_weight_reps = EXCLUDED.best_weight_reps,
				best_weight_date = EXCLUDED.best_weight_date,
				best_one_rep_max = EXCLUDED.best_one_rep_max,
				best_one_rep_max_weight = EXCLUDED.best_one_rep_max_weight,
				best_one_rep_max_reps = EXCLUDED.best_one_rep_max_reps,
				best_one_rep_max_date = EXCLUDED.best_one_rep_max_date,
				best_set_volume = EXCLUDED.best_set_volume,
				best_set_volume_date = EXCLUDED.best_set_volume_date,
				total_volume = EXCLUDED.total_volume,
				total_sets = EXCLUDED.total_sets,
				total_reps = EXCLUDED.total_reps,
				updated_at = EXCLUDED.updated_at;`,
		pr.UserID, pr.ExerciseID, pr.BestWeight, pr.BestWeightReps, pr.BestWeightDate,
		pr.BestOneRepMax, pr.BestOneRepMaxWeight, pr.BestOneRepMaxReps, pr.BestOneRepMaxDate,
		pr.BestSetVolume, pr.BestSetVolumeDate,
		pr.TotalVolume, pr.TotalSets, pr.TotalReps, pr.CreatedAt, pr.UpdatedAt,
	)
	return mapPgErr(err)
}

func (p *Postgres) ListExerciseBests(ctx context.Context, exerciseID string) (_ []trainload.ExerciseBest, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.listExerciseBests")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("exercise.id", exerciseID))

	rows, err := p.db.Query(
		ctx,
		`SELECT user_id, best_weight, best_weight_date, best_one_rep_max, best_one_rep_max_date
			FROM personal_record
			WHERE exercise_id = $1
			ORDER BY user_id;`,
		exerciseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bests []trainload.ExerciseBest
	for rows.Next() {
		var b trainload.ExerciseBest
		if err := rows.Scan(&b.UserID, &b.BestWeight, &b.BestWeightDate, &b.BestOneRepMax, &b.BestOneRepMaxDate); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		bests = append(bests, b)
	}
	return bests, rows.Err()
}

func (p *Postgres) GetUserStatistics(ctx context.Context, userID string) (_ *trainload.UserStatistics, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.getUserStatistics")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	stats := trainload.UserStatistics{UserID: userID}
	err = p.db.QueryRow(
		ctx,
		`SELECT total_workouts, total_workout_duration, total_volume, total_sets, total_reps,
				current_streak, longest_streak, last_workout_date,
				total_achievements, total_points, total_prs
			FROM user_statistics
			WHERE user_id = $1;`,
		userID,
	).Scan(
		&stats.TotalWorkouts, &stats.TotalWorkoutDuration, &stats.TotalVolume, &stats.TotalSets, &stats.TotalReps,
		&stats.CurrentStreak, &stats.LongestStreak, &stats.LastWorkoutDate,
		&stats.TotalAchievements, &stats.TotalPoints, &stats.TotalPRs,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, trainload.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (p *Postgres) UpsertUserStatistics(ctx context.Context, stats *trainload.UserStatistics) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.upsertUserStatistics")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	_, err = p.db.Exec(
		ctx,
		`INSERT INTO user_statistics
			(user_id, total_workouts, total_workout_duration, total_volume, total_sets, total_reps,
			 current_streak, longest_streak, last_workout_date,
			 total_achievements, total_points, total_prs)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (user_id) DO UPDATE SET
				total_workouts = EXCLUDED.total_workouts,
				total_workout_duration = EXCLUDED.total_workout_duration,
				total_volume = EXCLUDED.total_volume,
				total_sets = EXCLUDED.total_sets,
				total_reps = EXCLUDED.total_reps,
				current_streak = EXCLUDED.current_streak,
				longest_streak = EXCLUDED.longest_streak,
				last_workout_date = EXCLUDED.last_workout_date,
				total_achievements = EXCLUDED.total_achievements,
				total_points = EXCLUDED.total_points,
				total_prs = EXCLUDED.total_prs;`,
		stats.UserID, stats.TotalWorkouts, stats.TotalWorkoutDuration, stats.TotalVolume, stats.TotalSets, stats.TotalReps,
		stats.CurrentStreak, stats.LongestStreak, stats.LastWorkoutDate,
		stats.TotalAchievements, stats.TotalPoints, stats.TotalPRs,
	)
	return mapPgErr(err)
}

func (p *Postgres) ListUserAchievements(ctx context.Context, userID string) (_ []trainload.UserAchievement, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.listUserAchievements")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := p.db.Query(
		ctx,
		`SELECT id, achievement_id, earned_at, current_progress, earned_value, notified
			FROM user_achievement
			WHERE user_id = $1
			ORDER BY earned_at, id;`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var earned []trainload.UserAchievement
	for rows.Next() {
		ua := trainload.UserAchievement{UserID: userID}
		if err := rows.Scan(&ua.ID, &ua.AchievementID, &ua.EarnedAt, &ua.CurrentProgress, &ua.EarnedValue, &ua.Notified); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		earned = append(earned, ua)
	}
	return earned, rows.Err()
}

func (p *Postgres) InsertUserAchievement(ctx context.Context, ua *trainload.UserAchievement) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.insertUserAchievement")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("achievement.id", ua.AchievementID))

	err = p.db.QueryRow(
		ctx,
		`INSERT INTO user_achievement (user_id, achievement_id, earned_at, current_progress, earned_value, notified)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id;`,
		ua.UserID, ua.AchievementID, ua.EarnedAt, ua.CurrentProgress, ua.EarnedValue, ua.Notified,
	).Scan(&ua.ID)
	return mapPgErr(err)
}

func (p *Postgres) MarkAchievementsNotified(ctx context.Context, userID string, achievementIDs []string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "store.postgres.markAchievementsNotified")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if len(achievementIDs) == 0 {
		return nil
	}
	_, err = p.db.Exec(
		ctx,
		`UPDATE user_achievement SET notified = TRUE
			WHERE user_id = $1 AND achievement_id = ANY($2);`,
		userID, achievementIDs,
	)
	return mapPgErr(err)
}
