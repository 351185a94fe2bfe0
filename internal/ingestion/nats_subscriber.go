package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/observability"
	"PerpAMM/internal/oracle"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	// PriceStream holds index price observations.
	PriceStream = "PERP_AMM_PRICES"
	// DefaultPriceSubject is the subject the price feed publishes on.
	DefaultPriceSubject = "perp.amm.index.>"
)

// PriceSink receives validated index prices. *oracle.Feeder implements it.
type PriceSink interface {
	SetPrice(price fpmath.Int, timestamp int64) error
}

// PriceSubscriber consumes index prices from JetStream and writes them to
// the oracle feeder. The AMM reads the feeder on its next funding update.
type PriceSubscriber struct {
	js       jetstream.JetStream
	feeder   PriceSink
	subject  string
	consumer jetstream.ConsumeContext
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

func NewPriceSubscriber(js jetstream.JetStream, feeder PriceSink, subject string, metrics *observability.Metrics, logger zerolog.Logger) *PriceSubscriber {
	if subject == "" {
		subject = DefaultPriceSubject
	}
	return &PriceSubscriber{
		js:      js,
		feeder:  feeder,
		subject: subject,
		metrics: metrics,
		logger:  logger,
	}
}

// Subscribe creates the durable consumer and starts consuming.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ps *PriceSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := ps.js.CreateOrUpdateConsumer(ctx, PriceStream, jetstream.ConsumerConfig{
		Durable:       "perpamm-index",
		FilterSubject: ps.subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverLastPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		ps.Handle(RawMessage{
			Subject:   msg.Subject(),
			Data:      msg.Data(),
			Timestamp: time.Now(),
			AckFunc:   func() { msg.Ack() },
			NakFunc:   func() { msg.Nak() },
			TermFunc:  func() { msg.Term() },
		})
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", ps.subject, err)
	}
	ps.consumer = cc
	ps.logger.Info().Str("subject", ps.subject).Msg("subscribed to index prices")
	return nil
}

// Handle applies one price message. Malformed messages are terminated;
// prices older than the feeder's current one are acknowledged and dropped.
func (ps *PriceSubscriber) Handle(raw RawMessage) {
	update, err := ParsePriceUpdate(raw)
	if err != nil {
		ps.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("rejected price message")
		ps.record("rejected")
		call(raw.TermFunc)
		return
	}

	if err := ps.feeder.SetPrice(update.Price, update.Timestamp); err != nil {
		if errors.Is(err, oracle.ErrStalePrice) {
			ps.logger.Debug().Err(err).Str("source", update.Source).Msg("stale price")
			ps.record("stale")
			call(raw.AckFunc)
			return
		}
		ps.logger.Warn().Err(err).Str("source", update.Source).Msg("price not applied")
		ps.record("rejected")
		call(raw.TermFunc)
		return
	}

	ps.record("accepted")
	if ps.metrics != nil {
		ps.metrics.IndexPrice.Set(observability.Float(update.Price))
	}
	call(raw.AckFunc)
}

func (ps *PriceSubscriber) record(status string) {
	if ps.metrics != nil {
		ps.metrics.IndexUpdatesReceived.WithLabelValues(status).Inc()
	}
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

// Stop stops the consumer.
func (ps *PriceSubscriber) Stop() {
	if ps.consumer != nil {
		ps.consumer.Stop()
	}
	ps.logger.Info().Msg("price subscriber stopped")
}

// EnsureStreams creates the price and outbound event streams.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, priceSubject string, logger zerolog.Logger) error {
	if priceSubject == "" {
		priceSubject = DefaultPriceSubject
	}
	streams := []jetstream.StreamConfig{
		{
			Name:      PriceStream,
			Subjects:  []string{priceSubject},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:       EventStream,
			Subjects:   []string{EventSubjectPrefix + ".>"},
			Storage:    jetstream.FileStorage,
			Retention:  jetstream.LimitsPolicy,
			MaxAge:     72 * time.Hour,
			Duplicates: 2 * time.Minute,
			Replicas:   1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		logger.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("perpamm"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}
