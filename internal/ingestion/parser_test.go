package ingestion_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpAMM/internal/core"
	"PerpAMM/internal/event"
	"PerpAMM/internal/ingestion"
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/observability"
	"PerpAMM/internal/oracle"
)

type acks struct{ ack, nak, term int }

func rawFromJSON(t *testing.T, subject string, v interface{}, a *acks) ingestion.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawMessage{
		Subject:   subject,
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() { a.ack++ },
		NakFunc:   func() { a.nak++ },
		TermFunc:  func() { a.term++ },
	}
}

func TestParsePriceUpdate(t *testing.T) {
	raw := rawFromJSON(t, "perp.amm.index.binance", map[string]interface{}{
		"price":     "7012.5",
		"timestamp": int64(1700000000),
	}, &acks{})

	u, err := ingestion.ParsePriceUpdate(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if u.Price.String() != "7012.5" {
		t.Errorf("price: got %s, want 7012.5", u.Price)
	}
	if u.Timestamp != 1700000000 {
		t.Errorf("timestamp: got %d, want 1700000000", u.Timestamp)
	}
	if u.Source != "binance" {
		t.Errorf("source: got %s, want binance", u.Source)
	}
}

func TestParsePriceUpdate_Rejects(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"missing price":  {"timestamp": 1},
		"zero price":     {"price": "0", "timestamp": 1},
		"negative price": {"price": "-1", "timestamp": 1},
		"garbage price":  {"price": "abc", "timestamp": 1},
		"no timestamp":   {"price": "1"},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ingestion.ParsePriceUpdate(rawFromJSON(t, "perp.amm.index.x", payload, &acks{}))
			assert.Error(t, err)
		})
	}

	_, err := ingestion.ParsePriceUpdate(ingestion.RawMessage{Data: []byte("{")})
	assert.Error(t, err)
}

func TestPriceSubscriber_Handle(t *testing.T) {
	feeder := oracle.NewFeeder()
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	sub := ingestion.NewPriceSubscriber(nil, feeder, "", metrics, zerolog.Nop())

	a := &acks{}
	sub.Handle(rawFromJSON(t, "perp.amm.index.a", map[string]interface{}{"price": "7000", "timestamp": 100}, a))
	sub.Handle(rawFromJSON(t, "perp.amm.index.a", map[string]interface{}{"price": "6900", "timestamp": 90}, a))
	sub.Handle(rawFromJSON(t, "perp.amm.index.a", map[string]interface{}{"price": "oops", "timestamp": 110}, a))

	price, ts, err := feeder.IndexPrice()
	require.NoError(t, err)
	assert.Equal(t, "7000", price.String())
	assert.Equal(t, int64(100), ts)

	assert.Equal(t, acks{ack: 2, term: 1}, *a)
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.IndexUpdatesReceived.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.IndexUpdatesReceived.WithLabelValues("stale")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.IndexUpdatesReceived.WithLabelValues("rejected")))
	assert.Equal(t, 7000.0, promtest.ToFloat64(metrics.IndexPrice))
}

func output(seq int64, account uuid.UUID) core.CoreOutput {
	evt := &event.Deposit{Account: account, Amount: fpmath.FromInt64(5), Balance: fpmath.FromInt64(5)}
	payload, _ := event.Encode(evt)
	env := &event.EventEnvelope{
		Sequence:  seq,
		Op:        "deposit",
		RequestID: "r1",
		EventType: event.EventTypeDeposit,
		Account:   account,
		Block:     3,
		Timestamp: 1000,
		Payload:   payload,
	}
	env.StateHash[31] = 0xab
	return core.CoreOutput{Envelope: env, Event: evt}
}

func TestEncodeOutbound(t *testing.T) {
	account := uuid.MustParse("00000000-0000-0000-0000-0000000000a1")

	subject, data, msgID, err := ingestion.EncodeOutbound(output(42, account))
	require.NoError(t, err)
	assert.Equal(t, "perp.amm.events.Deposit", subject)
	assert.Equal(t, "42", msgID)

	var body ingestion.OutboundEvent
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, int64(42), body.Sequence)
	assert.Equal(t, "deposit", body.Op)
	require.NotNil(t, body.Account)
	assert.Equal(t, account, *body.Account)
	assert.Len(t, body.StateHash, 64)
	assert.Equal(t, "ab", body.StateHash[62:])

	decoded, err := event.Decode(event.EventTypeDeposit, body.Payload)
	require.NoError(t, err)
	assert.Equal(t, "5", decoded.(*event.Deposit).Balance.String())

	_, data, _, err = ingestion.EncodeOutbound(output(43, uuid.Nil))
	require.NoError(t, err)
	var system ingestion.OutboundEvent
	require.NoError(t, json.Unmarshal(data, &system))
	assert.Nil(t, system.Account)
}

type fakeStream struct {
	subjects []string
	fail     bool
}

func (f *fakeStream) Publish(_ context.Context, subject string, _ []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.fail {
		return nil, errors.New("no responders")
	}
	f.subjects = append(f.subjects, subject)
	return &jetstream.PubAck{Stream: ingestion.EventStream}, nil
}

func TestOutboundPublisher_PublishesAndDrops(t *testing.T) {
	stream := &fakeStream{}
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	pub := ingestion.NewOutboundPublisher(stream, 2, metrics, zerolog.Nop())

	account := uuid.New()
	pub.Enqueue([]core.CoreOutput{output(1, account), output(2, account), output(3, account)})
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.PublishDrops))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pub.Run(ctx) }()

	require.Eventually(t, func() bool {
		return promtest.ToFloat64(metrics.EventsPublished.WithLabelValues("Deposit", "ok")) == 2
	}, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []string{"perp.amm.events.Deposit", "perp.amm.events.Deposit"}, stream.subjects)
}
