package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/2beens/trainload/internal/trainload"
)

// Memory is an in-memory Store used in tests and for local runs without a
// database. Atomically works copy-on-write: fn runs against a clone of the
// state, which replaces the live state only when fn succeeds.
type Memory struct {
	mu sync.RWMutex
	st *memState
}

func NewMemory() *Memory {
	return &Memory{st: newMemState()}
}

func (m *Memory) Atomically(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := m.st.clone()
	if err := fn(ctx, &memTx{st: clone}); err != nil {
		return err
	}
	m.st = clone
	return nil
}

func (m *Memory) WasProcessed(ctx context.Context, eventID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.wasProcessed(eventID)
}

func (m *Memory) MarkProcessed(ctx context.Context, eventID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.markProcessed(eventID, at)
}

func (m *Memory) AddSet(ctx context.Context, set trainload.Set) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.addSet(set)
}

func (m *Memory) ListSets(ctx context.Context, userID string) ([]trainload.Set, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listSets(userID)
}

func (m *Memory) ListWorkoutSets(ctx context.Context, userID, workoutID string) ([]trainload.Set, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listWorkoutSets(userID, workoutID)
}

func (m *Memory) AddWorkoutCompletion(ctx context.Context, wc trainload.WorkoutCompletion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.addWorkoutCompletion(wc)
}

func (m *Memory) ListWorkoutCompletions(ctx context.Context, userID string) ([]trainload.WorkoutCompletion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listWorkoutCompletions(userID)
}

func (m *Memory) LatestRecovery(ctx context.Context, userID string, mg trainload.MuscleGroup) (*trainload.MuscleRecoveryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.latestRecovery(userID, mg)
}

func (m *Memory) LatestRecoveryAll(ctx context.Context, userID string) (map[trainload.MuscleGroup]*trainload.MuscleRecoveryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.latestRecoveryAll(userID)
}

func (m *Memory) InsertRecovery(ctx context.Context, rec *trainload.MuscleRecoveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertRecovery(rec)
}

func (m *Memory) GetPersonalRecord(ctx context.Context, userID, exerciseID string) (*trainload.PersonalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getPersonalRecord(userID, exerciseID)
}

func (m *Memory) ListPersonalRecords(ctx context.Context, userID string) ([]trainload.PersonalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listPersonalRecords(userID)
}

func (m *Memory) UpsertPersonalRecord(ctx context.Context, pr *trainload.PersonalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.upsertPersonalRecord(pr)
}

func (m *Memory) ListExerciseBests(ctx context.Context, exerciseID string) ([]trainload.ExerciseBest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listExerciseBests(exerciseID)
}

func (m *Memory) GetUserStatistics(ctx context.Context, userID string) (*trainload.UserStatistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getUserStatistics(userID)
}

func (m *Memory) UpsertUserStatistics(ctx context.Context, stats *trainload.UserStatistics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.upsertUserStatistics(stats)
}

func (m *Memory) ListUserAchievements(ctx context.Context, userID string) ([]trainload.UserAchievement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listUserAchievements(userID)
}

func (m *Memory) InsertUserAchievement(ctx context.Context, ua *trainload.UserAchievement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertUserAchievement(ua)
}

func (m *Memory) MarkAchievementsNotified(ctx context.Context, userID string, achievementIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.markAchievementsNotified(userID, achievementIDs)
}

// memTx is the transactional view handed to Atomically callbacks. It owns
// its state clone exclusively, so it takes no locks.
type memTx struct {
	st *memState
}

func (t *memTx) Atomically(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	return fn(ctx, t)
}

func (t *memTx) WasProcessed(_ context.Context, eventID string) (bool, error) {
	return t.st.wasProcessed(eventID)
}

func (t *memTx) MarkProcessed(_ context.Context, eventID string, at time.Time) error {
	return t.st.markProcessed(eventID, at)
}

func (t *memTx) AddSet(_ context.Context, set trainload.Set) error {
	return t.st.addSet(set)
}

func (t *memTx) ListSets(_ context.Context, userID string) ([]trainload.Set, error) {
	return t.st.listSets(userID)
}

func (t *memTx) ListWorkoutSets(_ context.Context, userID, workoutID string) ([]trainload.Set, error) {
	return t.st.listWorkoutSets(userID, workoutID)
}

func (t *memTx) AddWorkoutCompletion(_ context.Context, wc trainload.WorkoutCompletion) error {
	return t.st.addWorkoutCompletion(wc)
}

func (t *memTx) ListWorkoutCompletions(_ context.Context, userID string) ([]trainload.WorkoutCompletion, error) {
	return t.st.listWorkoutCompletions(userID)
}

func (t *memTx) LatestRecovery(_ context.Context, userID string, mg trainload.MuscleGroup) (*trainload.MuscleRecoveryRecord, error) {
	return t.st.latestRecovery(userID, mg)
}

func (t *memTx) LatestRecoveryAll(_ context.Context, userID string) (map[trainload.MuscleGroup]*trainload.MuscleRecoveryRecord, error) {
	return t.st.latestRecoveryAll(userID)
}

func (t *memTx) InsertRecovery(_ context.Context, rec *trainload.MuscleRecoveryRecord) error {
	return t.st.insertRecovery(rec)
}

func (t *memTx) GetPersonalRecord(_ context.Context, userID, exerciseID string) (*trainload.PersonalRecord, error) {
	return t.st.getPersonalRecord(userID, exerciseID)
}

func (t *memTx) ListPersonalRecords(_ context.Context, userID string) ([]trainload.PersonalRecord, error) {
	return t.st.listPersonalRecords(userID)
}

func (t *memTx) UpsertPersonalRecord(_ context.Context, pr *trainload.PersonalRecord) error {
	return t.st.upsertPersonalRecord(pr)
}

func (t *memTx) ListExerciseBests(_ context.Context, exerciseID string) ([]trainload.ExerciseBest, error) {
	return t.st.listExerciseBests(exerciseID)
}

func (t *memTx) GetUserStatistics(_ context.Context, userID string) (*trainload.UserStatistics, error) {
	return t.st.getUserStatistics(userID)
}

func (t *memTx) UpsertUserStatistics(_ context.Context, stats *trainload.UserStatistics) error {
	return t.st.upsertUserStatistics(stats)
}

func (t *memTx) ListUserAchievements(_ context.Context, userID string) ([]trainload.UserAchievement, error) {
	return t.st.listUserAchievements(userID)
}

func (t *memTx) InsertUserAchievement(_ context.Context, ua *trainload.UserAchievement) error {
	return t.st.insertUserAchievement(ua)
}

func (t *memTx) MarkAchievementsNotified(_ context.Context, userID string, achievementIDs []string) error {
	return t.st.markAchievementsNotified(userID, achievementIDs)
}

type memState struct {
	processed   map[string]time.Time
	sets        map[string][]trainload.Set
	completions map[string][]trainload.WorkoutCompletion
	recovery    map[string]map[trainload.MuscleGroup]trainload.MuscleRecoveryRecord
	prs         map[string]map[string]trainload.PersonalRecord
	stats       map[string]trainload.UserStatistics
	earned      map[string][]trainload.UserAchievement
	idSeq       int64
}

func newMemState() *memState {
	return &memState{
		processed:   map[string]time.Time{},
		sets:        map[string][]trainload.Set{},
		completions: map[string][]trainload.WorkoutCompletion{},
		recovery:    map[string]map[trainload.MuscleGroup]trainload.MuscleRecoveryRecord{},
		prs:         map[string]map[string]trainload.PersonalRecord{},
		stats:       map[string]trainload.UserStatistics{},
		earned:      map[string][]trainload.UserAchievement{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	c.idSeq = s.idSeq
	for k, v := range s.processed {
		c.processed[k] = v
	}
	for k, v := range s.sets {
		c.sets[k] = append([]trainload.Set(nil), v...)
	}
	for k, v := range s.completions {
		c.completions[k] = append([]trainload.WorkoutCompletion(nil), v...)
	}
	for userID, byMuscle := range s.recovery {
		inner := make(map[trainload.MuscleGroup]trainload.MuscleRecoveryRecord, len(byMuscle))
		for mg, rec := range byMuscle {
			inner[mg] = rec
		}
		c.recovery[userID] = inner
	}
	for userID, byExercise := range s.prs {
		inner := make(map[string]trainload.PersonalRecord, len(byExercise))
		for exID, pr := range byExercise {
			inner[exID] = pr
		}
		c.prs[userID] = inner
	}
	for k, v := range s.stats {
		c.stats[k] = v
	}
	for k, v := range s.earned {
		c.earned[k] = append([]trainload.UserAchievement(nil), v...)
	}
	return c
}

func (s *memState) nextID() int64 {
	s.idSeq++
	return s.idSeq
}

func (s *memState) wasProcessed(eventID string) (bool, error) {
	_, ok := s.processed[eventID]
	return ok, nil
}

func (s *memState) markProcessed(eventID string, at time.Time) error {
	s.processed[eventID] = at
	return nil
}

func (s *memState) addSet(set trainload.Set) error {
	s.sets[set.UserID] = append(s.sets[set.UserID], set)
	return nil
}

func (s *memState) listSets(userID string) ([]trainload.Set, error) {
	return append([]trainload.Set(nil), s.sets[userID]...), nil
}

func (s *memState) listWorkoutSets(userID, workoutID string) ([]trainload.Set, error) {
	var out []trainload.Set
	for _, set := range s.sets[userID] {
		if set.WorkoutID == workoutID {
			out = append(out, set)
		}
	}
	return out, nil
}

func (s *memState) addWorkoutCompletion(wc trainload.WorkoutCompletion) error {
	s.completions[wc.UserID] = append(s.completions[wc.UserID], wc)
	return nil
}

func (s *memState) listWorkoutCompletions(userID string) ([]trainload.WorkoutCompletion, error) {
	return append([]trainload.WorkoutCompletion(nil), s.completions[userID]...), nil
}

func (s *memState) latestRecovery(userID string, mg trainload.MuscleGroup) (*trainload.MuscleRecoveryRecord, error) {
	rec, ok := s.recovery[userID][mg]
	if !ok {
		return nil, trainload.ErrNotFound
	}
	recCopy := rec
	return &recCopy, nil
}

func (s *memState) latestRecoveryAll(userID string) (map[trainload.MuscleGroup]*trainload.MuscleRecoveryRecord, error) {
	out := make(map[trainload.MuscleGroup]*trainload.MuscleRecoveryRecord, len(s.recovery[userID]))
	for mg, rec := range s.recovery[userID] {
		recCopy := rec
		out[mg] = &recCopy
	}
	return out, nil
}

func (s *memState) insertRecovery(rec *trainload.MuscleRecoveryRecord) error {
	if !rec.MuscleGroup.Valid() {
		return trainload.ErrInvalidInput
	}
	rec.ID = s.nextID()
	if s.recovery[rec.UserID] == nil {
		s.recovery[rec.UserID] = map[trainload.MuscleGroup]trainload.MuscleRecoveryRecord{}
	}
	s.recovery[rec.UserID][rec.MuscleGroup] = *rec
	return nil
}

func (s *memState) getPersonalRecord(userID, exerciseID string) (*trainload.PersonalRecord, error) {
	pr, ok := s.prs[userID][exerciseID]
	if !ok {
		return nil, trainload.ErrNotFound
	}
	prCopy := pr
	return &prCopy, nil
}

func (s *memState) listPersonalRecords(userID string) ([]trainload.PersonalRecord, error) {
	out := make([]trainload.PersonalRecord, 0, len(s.prs[userID]))
	for _, pr := range s.prs[userID] {
		out = append(out, pr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExerciseID < out[j].ExerciseID })
	return out, nil
}

func (s *memState) upsertPersonalRecord(pr *trainload.PersonalRecord) error {
	if s.prs[pr.UserID] == nil {
		s.prs[pr.UserID] = map[string]trainload.PersonalRecord{}
	}
	s.prs[pr.UserID][pr.ExerciseID] = *pr
	return nil
}

func (s *memState) listExerciseBests(exerciseID string) ([]trainload.ExerciseBest, error) {
	var out []trainload.ExerciseBest
	for userID, byExercise := range s.prs {
		pr, ok := byExercise[exerciseID]
		if !ok {
			continue
		}
		out = append(out, trainload.ExerciseBest{
			UserID:            userID,
			BestWeight:        pr.BestWeight,
			BestWeightDate:    pr.BestWeightDate,
			BestOneRepMax:     pr.BestOneRepMax,
			BestOneRepMaxDate: pr.BestOneRepMaxDate,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *memState) getUserStatistics(userID string) (*trainload.UserStatistics, error) {
	stats, ok := s.stats[userID]
	if !ok {
		return nil, trainload.ErrNotFound
	}
	statsCopy := stats
	return &statsCopy, nil
}

func (s *memState) upsertUserStatistics(stats *trainload.UserStatistics) error {
	s.stats[stats.UserID] = *stats
	return nil
}

func (s *memState) listUserAchievements(userID string) ([]trainload.UserAchievement, error) {
	return append([]trainload.UserAchievement(nil), s.earned[userID]...), nil
}

func (s *memState) insertUserAchievement(ua *trainload.UserAchievement) error {
	for _, existing := range s.earned[ua.UserID] {
		if existing.AchievementID == ua.AchievementID {
			return trainload.ErrConflict
		}
	}
	ua.ID = s.nextID()
	s.earned[ua.UserID] = append(s.earned[ua.UserID], *ua)
	return nil
}

func (s *memState) markAchievementsNotified(userID string, achievementIDs []string) error {
	ids := make(map[string]struct{}, len(achievementIDs))
	for _, id := range achievementIDs {
		ids[id] = struct{}{}
	}
	for i := range s.earned[userID] {
		if _, ok := ids[s.earned[userID][i].AchievementID]; ok {
			s.earned[userID][i].Notified = true
		}
	}
	return nil
}
