package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"qsmart/internal/store"
	"qsmart/models"
)

// StatsCache serves queue counter blocks from Redis with a short TTL so
// the queue list doesn't hammer the database with count queries on every
// dashboard poll.
type StatsCache struct {
	store *store.Store
	redis *redis.Client
	ttl   time.Duration
}

func NewStatsCache(st *store.Store, redisClient *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{store: st, redis: redisClient, ttl: ttl}
}

func (c *StatsCache) QueueStats(ctx context.Context, queueID string) (*models.QueueStats, error) {
	key := statsKey(queueID)

	if data, err := c.redis.Get(ctx, key).Bytes(); err == nil {
		var stats models.QueueStats
		if err := json.Unmarshal(data, &stats); err == nil {
			return &stats, nil
		}
		slog.Warn("corrupt stats cache entry", "key", key)
	} else if err != redis.Nil {
		slog.Warn("stats cache read", "key", key, "error", err)
	}

	stats, err := c.store.QueueStats(ctx, queueID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(stats); err == nil {
		if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
			slog.Warn("stats cache write", "key", key, "error", err)
		}
	}
	return stats, nil
}

// Invalidate drops the cached block after a mutation so managers see fresh
// counts immediately.
func (c *StatsCache) Invalidate(ctx context.Context, queueID string) {
	if err := c.redis.Del(ctx, statsKey(queueID)).Err(); err != nil {
		slog.Warn("stats cache invalidate", "queue", queueID, "error", err)
	}
}

func statsKey(queueID string) string {
	return fmt.Sprintf("queue:stats:%s", queueID)
}
