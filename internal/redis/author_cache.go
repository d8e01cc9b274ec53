package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const authorKeyPrefix = "intelligence:author:"

// AuthorCache stores computed author-info blocks per intelligence id, so
// redelivered or related messages skip the account lookup. Misses and
// Redis failures both read as cache misses.
type AuthorCache struct {
	client *Client
	ttl    time.Duration
}

// NewAuthorCache creates an author cache with the given entry TTL.
func NewAuthorCache(client *Client, ttl time.Duration) *AuthorCache {
	return &AuthorCache{client: client, ttl: ttl}
}

// Get returns the cached author block for an intelligence id.
func (c *AuthorCache) Get(ctx context.Context, intelligenceID string) (map[string]any, bool) {
	data, err := c.client.Underlying().Get(ctx, authorKeyPrefix+intelligenceID).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("Author cache read failed", "intelligence_id", intelligenceID, "error", err)
		}
		return nil, false
	}

	var info map[string]any
	if err := json.Unmarshal([]byte(data), &info); err != nil {
		slog.Warn("Author cache entry corrupt, ignoring", "intelligence_id", intelligenceID, "error", err)
		return nil, false
	}
	return info, true
}

// Set stores the author block. Failures are logged and swallowed; the
// cache is an optimization, never a dependency.
func (c *AuthorCache) Set(ctx context.Context, intelligenceID string, info map[string]any) {
	data, err := json.Marshal(info)
	if err != nil {
		slog.Error("Failed to marshal author info for cache", "intelligence_id", intelligenceID, "error", err)
		return
	}

	if err := c.client.Underlying().Set(ctx, authorKeyPrefix+intelligenceID, data, c.ttl).Err(); err != nil {
		slog.Warn("Author cache write failed", "intelligence_id", intelligenceID, "error", err)
	}
}
