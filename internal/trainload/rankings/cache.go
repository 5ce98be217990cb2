package rankings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/2beens/trainload/internal/trainload"
)

// Cache keeps exercise distribution snapshots in redis so ranking reads do
// not rescan all personal records on every request.
type Cache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewCache(rdb redis.Cmdable, ttl time.Duration) *Cache {
	return &Cache{
		rdb: rdb,
		ttl: ttl,
	}
}

func statisticsKey(exerciseID string) string {
	return fmt.Sprintf("trainload:exstats:%s", exerciseID)
}

func (c *Cache) GetStatistics(ctx context.Context, exerciseID string) (*trainload.ExerciseStatistics, error) {
	val, err := c.rdb.Get(ctx, statisticsKey(exerciseID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, trainload.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get exercise statistics: %w", err)
	}

	var exStats trainload.ExerciseStatistics
	if err := json.Unmarshal([]byte(val), &exStats); err != nil {
		return nil, fmt.Errorf("unmarshal exercise statistics: %w", err)
	}
	return &exStats, nil
}

func (c *Cache) SetStatistics(ctx context.Context, exStats *trainload.ExerciseStatistics) error {
	statsJson, err := json.Marshal(exStats)
	if err != nil {
		return fmt.Errorf("marshal exercise statistics: %w", err)
	}
	if err := c.rdb.Set(ctx, statisticsKey(exStats.ExerciseID), statsJson, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set exercise statistics: %w", err)
	}
	return nil
}

func (c *Cache) InvalidateStatistics(ctx context.Context, exerciseID string) error {
	if err := c.rdb.Del(ctx, statisticsKey(exerciseID)).Err(); err != nil {
		return fmt.Errorf("redis del exercise statistics: %w", err)
	}
	return nil
}
