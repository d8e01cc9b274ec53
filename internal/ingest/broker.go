// Package ingest consumes intelligence messages from the broker, enriches
// them, and hands them to the broadcast engine.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/AIGun-Labs/aigun-backend/internal/metrics"
	"github.com/AIGun-Labs/aigun-backend/internal/retry"
)

// Consumer owns the AMQP connection lifecycle for one durable queue. It
// redials with backoff on any connection or channel failure and only stops
// when its context is cancelled.
type Consumer struct {
	url   string
	queue string
}

// NewConsumer creates a consumer for the durable queue at the given AMQP
// URL. The queue is declared on every (re)connect, so broker restarts that
// lose topology are transparent.
func NewConsumer(url, queue string) *Consumer {
	return &Consumer{url: url, queue: queue}
}

// Run delivers messages to handle until ctx is cancelled. handle must ack
// or reject every delivery it receives. Connection failures trigger a
// reconnect with exponential backoff; they are never surfaced to the caller.
func (c *Consumer) Run(ctx context.Context, handle func(ctx context.Context, delivery amqp.Delivery)) {
	policy := retry.Policy{
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			metrics.BrokerReconnectsTotal.Inc()
			slog.Warn("Broker connection lost, reconnecting", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}

	classify := func(err error) retry.Action {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return retry.Stop
		}
		return retry.Retry
	}

	_ = retry.DoVoid(ctx, policy, classify, func() error {
		return c.consumeOnce(ctx, handle)
	})
}

// consumeOnce runs one connection lifetime: dial, declare, consume, then
// return the error that ended it so Run can back off and redial.
func (c *Consumer) consumeOnce(ctx context.Context, handle func(ctx context.Context, delivery amqp.Delivery)) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return err
	}
	defer conn.Close()

	channel, err := conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()

	queue, err := channel.QueueDeclare(c.queue, true, false, false, false, nil)
	if err != nil {
		return err
	}

	deliveries, err := channel.Consume(queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	slog.Info("Consuming intelligence queue", "queue", queue.Name)

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr == nil {
				return amqp.ErrClosed
			}
			return amqpErr
		case delivery, ok := <-deliveries:
			if !ok {
				return amqp.ErrClosed
			}
			handle(ctx, delivery)
		}
	}
}
