package ingestion

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"PerpAMM/internal/core"
	fpmath "PerpAMM/internal/math"

	"github.com/google/uuid"
)

// RawMessage is an inbound NATS message before parsing.
type RawMessage struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // ACK after the message was applied
	NakFunc   func() // NAK to have it redelivered
	TermFunc  func() // TERM for messages that can never be applied
}

// PriceUpdate is an index price observation from an upstream feed.
type PriceUpdate struct {
	Source    string
	Price     fpmath.Int
	Timestamp int64
}

// priceUpdateJSON is the wire format published on the price subject.
// Prices are decimal strings so 18-decimal values survive JSON intact.
type priceUpdateJSON struct {
	Source    string `json:"source"`
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"`
}

// ParsePriceUpdate decodes and validates a price message.
func ParsePriceUpdate(raw RawMessage) (PriceUpdate, error) {
	var j priceUpdateJSON
	if err := json.Unmarshal(raw.Data, &j); err != nil {
		return PriceUpdate{}, fmt.Errorf("parse price update: %w", err)
	}
	if j.Price == "" {
		return PriceUpdate{}, fmt.Errorf("parse price update: missing price")
	}
	price, err := fpmath.Parse(j.Price)
	if err != nil {
		return PriceUpdate{}, fmt.Errorf("parse price: %w", err)
	}
	if !price.IsPositive() {
		return PriceUpdate{}, fmt.Errorf("parse price: must be positive, got %s", j.Price)
	}
	if j.Timestamp <= 0 {
		return PriceUpdate{}, fmt.Errorf("parse timestamp: must be positive, got %d", j.Timestamp)
	}

	source := j.Source
	if source == "" {
		source = sourceFromSubject(raw.Subject)
	}
	return PriceUpdate{Source: source, Price: price, Timestamp: j.Timestamp}, nil
}

// sourceFromSubject takes the last token of perp.amm.index.{source}.
func sourceFromSubject(subject string) string {
	if i := strings.LastIndexByte(subject, '.'); i >= 0 && i < len(subject)-1 {
		return subject[i+1:]
	}
	return subject
}

// OutboundEvent is the JSON body published for each committed event.
type OutboundEvent struct {
	Sequence  int64           `json:"sequence"`
	Op        string          `json:"op"`
	RequestID string          `json:"request_id,omitempty"`
	EventType string          `json:"event_type"`
	Account   *uuid.UUID      `json:"account,omitempty"`
	Block     uint64          `json:"block"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	StateHash string          `json:"state_hash"`
}

// EventSubjectPrefix is the subject root of the outbound stream.
const EventSubjectPrefix = "perp.amm.events"

// EncodeOutbound renders out for the outbound stream and returns the
// subject, the body and a message id usable for JetStream deduplication.
func EncodeOutbound(out core.CoreOutput) (subject string, data []byte, msgID string, err error) {
	env := out.Envelope
	body := OutboundEvent{
		Sequence:  env.Sequence,
		Op:        env.Op,
		RequestID: env.RequestID,
		EventType: env.EventType.String(),
		Block:     env.Block,
		Timestamp: env.Timestamp,
		Payload:   json.RawMessage(env.Payload),
		StateHash: fmt.Sprintf("%x", env.StateHash),
	}
	if env.Account != uuid.Nil {
		account := env.Account
		body.Account = &account
	}
	data, err = json.Marshal(body)
	if err != nil {
		return "", nil, "", fmt.Errorf("marshal event %d: %w", env.Sequence, err)
	}
	subject = EventSubjectPrefix + "." + body.EventType
	return subject, data, strconv.FormatInt(env.Sequence, 10), nil
}
