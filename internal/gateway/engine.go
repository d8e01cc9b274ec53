package gateway

import (
	"encoding/json"
	"log/slog"

	"github.com/AIGun-Labs/aigun-backend/internal/metrics"
)

// Engine fans a tagged payload out to every session subscribed to a
// matching set. Delivery is best-effort, at most once per connection: each
// target's writer goroutine sends independently, so one slow or broken
// socket never blocks the rest.
type Engine struct {
	registry *Registry
}

// NewEngine creates a broadcast engine over the given registry.
func NewEngine(registry *Registry) *Engine {
	return &Engine{registry: registry}
}

// Broadcast serializes the payload once and delivers it to every target
// resolved for the given tags. A message without tags is dropped — there is
// no implicit "all" fallback. Sessions found closed during fan-out are
// collected and removed from the subscription indexes in one batched
// registry update after delivery completes.
func (e *Engine) Broadcast(payload any, tags []string) {
	if len(tags) == 0 {
		metrics.BroadcastsTotal.WithLabelValues("untagged").Inc()
		return
	}

	targets := e.registry.TargetsForTags(tags)
	metrics.BroadcastTargets.Observe(float64(len(targets)))
	if len(targets) == 0 {
		metrics.BroadcastsTotal.WithLabelValues("no_targets").Inc()
		return
	}

	data, err := json.Marshal(serverFrame{Type: "message", Data: payload})
	if err != nil {
		slog.Error("Failed to serialize broadcast payload", "error", err)
		return
	}

	var dead []*Session
	delivered := 0
	for _, s := range targets {
		if s.Closed() {
			dead = append(dead, s)
			continue
		}
		if s.writer.trySend(data) {
			delivered++
		} else {
			metrics.DeliveryDropsTotal.WithLabelValues("slow").Inc()
		}
	}

	if len(dead) > 0 {
		e.registry.DropAll(dead)
		for range dead {
			metrics.DeliveryDropsTotal.WithLabelValues("closed").Inc()
		}
	}

	metrics.BroadcastsTotal.WithLabelValues("delivered").Inc()
	slog.Debug("Broadcast complete", "tags", tags, "targets", len(targets), "delivered", delivered, "pruned", len(dead))
}
