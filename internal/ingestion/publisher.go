package ingestion

import (
	"context"

	"PerpAMM/internal/core"
	"PerpAMM/internal/observability"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// EventStream is the outbound stream of committed events.
const EventStream = "PERP_AMM_EVENTS"

// StreamPublisher is the subset of jetstream.JetStream the publisher uses.
type StreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// OutboundPublisher publishes committed events to NATS for downstream
// consumers on perp.amm.events.{event_type}. It is fed from the
// persistence worker's flush hook, so only durable events are published.
type OutboundPublisher struct {
	js      StreamPublisher
	queue   chan core.CoreOutput
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewOutboundPublisher(js StreamPublisher, bufferSize int, metrics *observability.Metrics, logger zerolog.Logger) *OutboundPublisher {
	if bufferSize <= 0 {
		bufferSize = 4096
	}
	return &OutboundPublisher{
		js:      js,
		queue:   make(chan core.CoreOutput, bufferSize),
		metrics: metrics,
		logger:  logger,
	}
}

// Enqueue queues a persisted batch without blocking the persistence
// worker. Events that do not fit are dropped; consumers can read the event
// log for gaps.
func (op *OutboundPublisher) Enqueue(batch []core.CoreOutput) {
	for _, out := range batch {
		select {
		case op.queue <- out:
		default:
			if op.metrics != nil {
				op.metrics.PublishDrops.Inc()
			}
			op.logger.Warn().Int64("sequence", out.Envelope.Sequence).Msg("publish queue full, event dropped")
		}
	}
}

// Run publishes queued events until ctx is cancelled.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out := <-op.queue:
			op.publish(ctx, out)
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, out core.CoreOutput) {
	eventType := out.Envelope.EventType.String()
	subject, data, msgID, err := EncodeOutbound(out)
	if err == nil {
		_, err = op.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID))
	}
	if err != nil {
		op.logger.Warn().Err(err).Int64("sequence", out.Envelope.Sequence).Msg("outbound publish failed")
		op.count(eventType, "error")
		return
	}
	op.count(eventType, "ok")
}

func (op *OutboundPublisher) count(eventType, status string) {
	if op.metrics != nil {
		op.metrics.EventsPublished.WithLabelValues(eventType, status).Inc()
	}
}
