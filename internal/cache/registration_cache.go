package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/GTDGit/registry_api/internal/models"
)

const duplicateStatsKey = "registry:duplicates:stats"

// RegistrationCache caches the resident status view and the admin duplicate
// statistics. Entries are invalidated by writers; the TTL bounds staleness if
// an invalidation is lost.
type RegistrationCache struct {
	redis     *RedisClient
	statusTTL time.Duration
	statsTTL  time.Duration
}

// NewRegistrationCache creates a new RegistrationCache.
func NewRegistrationCache(redis *RedisClient, statusTTL, statsTTL time.Duration) *RegistrationCache {
	return &RegistrationCache{redis: redis, statusTTL: statusTTL, statsTTL: statsTTL}
}

// keyStatus returns the Redis key for an account's registration status.
func (c *RegistrationCache) keyStatus(accountID string) string {
	return fmt.Sprintf("registry:status:%s", accountID)
}

// GetStatus returns the cached status view, or ErrMiss.
func (c *RegistrationCache) GetStatus(ctx context.Context, accountID string) (*models.RegistrationStatusView, error) {
	raw, err := c.redis.Get(ctx, c.keyStatus(accountID))
	if err != nil {
		return nil, err
	}
	var view models.RegistrationStatusView
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status view: %w", err)
	}
	return &view, nil
}

// SetStatus stores the status view for accountID.
func (c *RegistrationCache) SetStatus(ctx context.Context, accountID string, view *models.RegistrationStatusView) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal status view: %w", err)
	}
	return c.redis.Set(ctx, c.keyStatus(accountID), string(raw), c.statusTTL)
}

// InvalidateStatus drops the cached status for accountID and the duplicate
// statistics, both of which change whenever a registration changes.
func (c *RegistrationCache) InvalidateStatus(ctx context.Context, accountID string) error {
	return c.redis.Delete(ctx, c.keyStatus(accountID), duplicateStatsKey)
}

// GetDuplicateStats returns cached statistics, or ErrMiss.
func (c *RegistrationCache) GetDuplicateStats(ctx context.Context) (*models.DuplicateStats, error) {
	raw, err := c.redis.Get(ctx, duplicateStatsKey)
	if err != nil {
		return nil, err
	}
	var stats models.DuplicateStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal duplicate stats: %w", err)
	}
	return &stats, nil
}

// SetDuplicateStats stores statistics.
func (c *RegistrationCache) SetDuplicateStats(ctx context.Context, stats *models.DuplicateStats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal duplicate stats: %w", err)
	}
	return c.redis.Set(ctx, duplicateStatsKey, string(raw), c.statsTTL)
}
