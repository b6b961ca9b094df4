// Package projection caches materialized event views in Redis. Best-effort
// only: every failure degrades to recomputing the fold from the ledger.
package projection

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"civreg/internal/event/ledger"
	"civreg/pkg/domain"
)

// Cache implements ledger.ProjectionCache on Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

func key(id domain.EventID) string {
	return "civreg:view:" + id.String()
}

func (c *Cache) Get(ctx context.Context, id domain.EventID) (*ledger.View, bool) {
	raw, err := c.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("projection cache read failed", "event_id", id.String(), "error", err)
		}
		return nil, false
	}
	var view ledger.View
	if err := json.Unmarshal(raw, &view); err != nil {
		c.logger.Warn("projection cache entry corrupt, dropping", "event_id", id.String(), "error", err)
		c.Invalidate(ctx, id)
		return nil, false
	}
	return &view, true
}

func (c *Cache) Set(ctx context.Context, id domain.EventID, view *ledger.View) {
	raw, err := json.Marshal(view)
	if err != nil {
		c.logger.Warn("projection cache marshal failed", "event_id", id.String(), "error", err)
		return
	}
	if err := c.client.Set(ctx, key(id), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("projection cache write failed", "event_id", id.String(), "error", err)
	}
}

func (c *Cache) Invalidate(ctx context.Context, id domain.EventID) {
	if err := c.client.Del(ctx, key(id)).Err(); err != nil {
		c.logger.Warn("projection cache invalidate failed", "event_id", id.String(), "error", err)
	}
}
