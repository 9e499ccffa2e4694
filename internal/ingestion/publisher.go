package ingestion

import (
	"LendingAggregator/internal/event"
	"LendingAggregator/internal/observability"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// EventStream holds every outbound ledger event.
const EventStream = "LAGG_EVENTS"

// Publisher is the publish subset of jetstream.JetStream.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// OutboundPublisher publishes committed workflow events to NATS for
// downstream consumers. It implements event.Sink: Emit only queues, Run
// does the publishing. Subjects follow lagg.events.{event_type}.{asset}.
type OutboundPublisher struct {
	js      Publisher
	queue   chan event.Event
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewOutboundPublisher(js Publisher, buffer int, metrics *observability.Metrics, logger zerolog.Logger) *OutboundPublisher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &OutboundPublisher{
		js:      js,
		queue:   make(chan event.Event, buffer),
		metrics: metrics,
		logger:  logger,
	}
}

// Emit queues evt without blocking. When the queue is full the event is
// dropped and counted; the ledger stays the source of truth.
func (op *OutboundPublisher) Emit(_ context.Context, evt event.Event) {
	select {
	case op.queue <- evt:
	default:
		op.metrics.PublishErrors.Inc()
		op.logger.Warn().
			Str("event_type", evt.EventType().String()).
			Str("request_key", evt.IdempotencyKey()).
			Msg("outbound queue full, event dropped")
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt := <-op.queue:
			if err := op.publish(ctx, evt); err != nil {
				op.metrics.PublishErrors.Inc()
				// Non-fatal: downstream consumers can query the ledger directly
				op.logger.Warn().Err(err).Int64("sequence", evt.Sequence()).Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, evt event.Event) error {
	env := event.NewEnvelope(evt)
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = op.js.Publish(ctx, Subject(env), data,
		jetstream.WithMsgID(env.TypeName+":"+env.IdempotencyKey))
	return err
}

// Subject returns the outbound subject of env.
func Subject(env event.EventEnvelope) string {
	subject := "lagg.events." + env.TypeName
	if env.Reserve != "" {
		subject += "." + env.Reserve
	}
	return subject
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       EventStream,
		Subjects:   []string{"lagg.events.>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 2 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	logger.Info().Str("stream", EventStream).Msg("ensured outbound stream")
	return nil
}
