package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"PerpAMM/internal/event"

	"github.com/google/uuid"
)

// EventRow represents a row in event_log.events
type EventRow struct {
	Sequence  int64
	Op        string
	RequestID string
	EventType string
	Account   uuid.UUID
	Block     int64
	Timestamp int64
	Payload   []byte
	StateHash []byte
	PrevHash  []byte
}

const eventColumns = "sequence, op, request_id, event_type, account, block, timestamp, payload, state_hash, prev_hash"

// RowFromEnvelope flattens an envelope for storage.
func RowFromEnvelope(env *event.EventEnvelope) EventRow {
	return EventRow{
		Sequence:  env.Sequence,
		Op:        env.Op,
		RequestID: env.RequestID,
		EventType: env.EventType.String(),
		Account:   env.Account,
		Block:     int64(env.Block),
		Timestamp: env.Timestamp,
		Payload:   env.Payload,
		StateHash: env.StateHash[:],
		PrevHash:  env.PrevHash[:],
	}
}

// Envelope rebuilds the envelope a row was written from.
func (r EventRow) Envelope() (*event.EventEnvelope, error) {
	t := event.ParseEventType(r.EventType)
	if t == event.EventTypeUnknown {
		return nil, fmt.Errorf("event %d: unknown type %q", r.Sequence, r.EventType)
	}
	if len(r.StateHash) != 32 || len(r.PrevHash) != 32 {
		return nil, fmt.Errorf("event %d: malformed hash", r.Sequence)
	}
	env := &event.EventEnvelope{
		Sequence:  r.Sequence,
		Op:        r.Op,
		RequestID: r.RequestID,
		EventType: t,
		Account:   r.Account,
		Block:     uint64(r.Block),
		Timestamp: r.Timestamp,
		Payload:   r.Payload,
	}
	copy(env.StateHash[:], r.StateHash)
	copy(env.PrevHash[:], r.PrevHash)
	return env, nil
}

// EventLogWriter writes events to Postgres using multi-row INSERTs.
type EventLogWriter struct {
	db *sql.DB
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteBatch writes events in one transaction. Rewriting a sequence that
// is already stored is a no-op, so retries are safe.
func (w *EventLogWriter) WriteBatch(ctx context.Context, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	query, args := buildEventInsert(events)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert events: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func buildEventInsert(events []EventRow) (string, []interface{}) {
	const cols = 10
	var b strings.Builder
	b.WriteString("INSERT INTO event_log.events (" + eventColumns + ") VALUES ")

	args := make([]interface{}, 0, len(events)*cols)
	for i, e := range events {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 1; c <= cols; c++ {
			if c > 1 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i*cols+c)
		}
		b.WriteByte(')')
		args = append(args,
			e.Sequence, e.Op, e.RequestID, e.EventType, e.Account,
			e.Block, e.Timestamp, e.Payload, e.StateHash, e.PrevHash,
		)
	}
	b.WriteString(" ON CONFLICT (sequence) DO NOTHING")
	return b.String(), args
}

// LoadEventsFrom loads up to limit events starting at fromSequence.
func (w *EventLogWriter) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.Op, &e.RequestID, &e.EventType, &e.Account,
			&e.Block, &e.Timestamp, &e.Payload, &e.StateHash, &e.PrevHash,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LoadAccountEvents returns an account's most recent events, newest first.
func (w *EventLogWriter) LoadAccountEvents(ctx context.Context, account uuid.UUID, limit int) ([]EventRow, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM event_log.events
		WHERE account = $1
		ORDER BY sequence DESC
		LIMIT $2
	`, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.Op, &e.RequestID, &e.EventType, &e.Account,
			&e.Block, &e.Timestamp, &e.Payload, &e.StateHash, &e.PrevHash,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (w *EventLogWriter) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := w.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM event_log.events`).Scan(&seq); err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// RecentRequestKeys returns op:request_id keys of the latest committed
// requests, used to warm the engine's idempotency cache.
func (w *EventLogWriter) RecentRequestKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT op, request_id FROM (
			SELECT op, request_id, MAX(sequence) AS seq
			FROM event_log.events
			WHERE request_id <> ''
			GROUP BY op, request_id
		) r
		ORDER BY seq DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var op, id string
		if err := rows.Scan(&op, &id); err != nil {
			return nil, err
		}
		keys = append(keys, op+":"+id)
	}
	return keys, rows.Err()
}
