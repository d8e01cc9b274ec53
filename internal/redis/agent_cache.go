package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AIGun-Labs/aigun-backend/internal/enrich"
)

const agentListKey = "agents:list"

// AgentCache fronts the agent repository with a Redis-cached agent list.
// The list changes rarely but is consulted on every agent-tagged message,
// so a short TTL keeps the database out of the hot path.
type AgentCache struct {
	client *Client
	source enrich.AgentSource
	ttl    time.Duration
}

// NewAgentCache wraps source with a Redis cache using the given TTL.
func NewAgentCache(client *Client, source enrich.AgentSource, ttl time.Duration) *AgentCache {
	return &AgentCache{client: client, source: source, ttl: ttl}
}

// Agents returns the cached agent list, falling back to the underlying
// source (and repopulating the cache) on a miss.
func (c *AgentCache) Agents(ctx context.Context) ([]enrich.Agent, error) {
	data, err := c.client.Underlying().Get(ctx, agentListKey).Result()
	if err == nil {
		var agents []enrich.Agent
		if err := json.Unmarshal([]byte(data), &agents); err == nil {
			return agents, nil
		}
		slog.Warn("Agent cache entry corrupt, refreshing from source")
	} else if !errors.Is(err, redis.Nil) {
		slog.Warn("Agent cache read failed", "error", err)
	}

	agents, err := c.source.Agents(ctx)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(agents); err == nil {
		if err := c.client.Underlying().Set(ctx, agentListKey, encoded, c.ttl).Err(); err != nil {
			slog.Warn("Agent cache write failed", "error", err)
		}
	}
	return agents, nil
}
