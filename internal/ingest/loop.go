package ingest

import (
	"context"
	"encoding/json"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/AIGun-Labs/aigun-backend/internal/enrich"
	"github.com/AIGun-Labs/aigun-backend/internal/metrics"
)

// Broadcaster fans an enriched payload out to the sessions subscribed to
// the given tags.
type Broadcaster interface {
	Broadcast(payload any, tags []string)
}

// Loop processes one delivery at a time: decode, filter, enrich, route,
// broadcast. Every delivery is acked exactly once, whatever the outcome —
// a message that fails enrichment or reaches nobody must not be redelivered.
type Loop struct {
	enricher *enrich.Enricher
	engine   Broadcaster
}

// NewLoop creates the ingestion loop over the given enricher and engine.
func NewLoop(enricher *enrich.Enricher, engine Broadcaster) *Loop {
	return &Loop{enricher: enricher, engine: engine}
}

// Handle is the per-delivery callback wired into Consumer.Run.
func (l *Loop) Handle(ctx context.Context, delivery amqp.Delivery) {
	defer func() {
		if err := delivery.Ack(false); err != nil {
			slog.Error("Failed to ack delivery", "error", err)
		}
	}()

	var payload map[string]any
	if err := json.Unmarshal(delivery.Body, &payload); err != nil {
		slog.Error("Discarding undecodable intelligence message", "error", err)
		metrics.IngestMessagesTotal.WithLabelValues("malformed").Inc()
		return
	}

	if valuable, _ := payload["is_valuable"].(bool); !valuable {
		metrics.IngestMessagesTotal.WithLabelValues("filtered").Inc()
		return
	}

	l.enricher.Enrich(ctx, payload)

	tags := l.routeTags(ctx, payload)
	l.engine.Broadcast(payload, tags)
	metrics.IngestMessagesTotal.WithLabelValues("broadcast").Inc()
}

// routeTags derives the broadcast tags from the message's agent tag. A
// message without one gets no tags and is dropped by the engine; routing to
// every connection is deliberately not a fallback.
func (l *Loop) routeTags(ctx context.Context, payload map[string]any) []string {
	agentTag, _ := payload["agent_tag"].(string)
	if agentTag == "" {
		return nil
	}

	if decoration, ok := l.enricher.AgentDecoration(ctx, agentTag); ok {
		payload["ai_agent"] = decoration
	}
	return []string{agentTag}
}
