package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/racefield/crowdflow/internal/analysis"
	"github.com/racefield/crowdflow/internal/models"
)

const (
	latestRunKey  = "crowdflow:latest_run"
	summariesKeyF = "crowdflow:run:%s:summaries"
)

// Cache keeps a latest-run pointer and the newest flag summaries in
// redis so read-heavy consumers skip the relational store.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCache creates a redis-backed latest-run cache.
func NewCache(addr, password string, db int, ttl time.Duration) *Cache {
	return &Cache{
		rdb: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		ttl: ttl,
	}
}

// Ping verifies connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the redis connection.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// SetLatest stores the run's summaries and repoints the latest-run key.
// The summaries are the flagging engine's output, marshaled untouched.
func (c *Cache) SetLatest(ctx context.Context, res *analysis.Results) error {
	data, err := json.Marshal(res.Summaries)
	if err != nil {
		return fmt.Errorf("failed to marshal summaries: %w", err)
	}
	key := fmt.Sprintf(summariesKeyF, res.RunID)
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache summaries for run %s: %w", res.RunID, err)
	}
	if err := c.rdb.Set(ctx, latestRunKey, res.RunID, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set latest run pointer: %w", err)
	}
	return nil
}

// Latest returns the cached latest run ID and its flag summaries.
func (c *Cache) Latest(ctx context.Context) (string, []models.SegmentFlagSummary, error) {
	runID, err := c.rdb.Get(ctx, latestRunKey).Result()
	if err != nil {
		return "", nil, fmt.Errorf("failed to read latest run pointer: %w", err)
	}
	data, err := c.rdb.Get(ctx, fmt.Sprintf(summariesKeyF, runID)).Bytes()
	if err != nil {
		return runID, nil, fmt.Errorf("failed to read summaries for run %s: %w", runID, err)
	}
	var summaries []models.SegmentFlagSummary
	if err := json.Unmarshal(data, &summaries); err != nil {
		return runID, nil, fmt.Errorf("failed to decode summaries for run %s: %w", runID, err)
	}
	return runID, summaries, nil
}
