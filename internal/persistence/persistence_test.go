package persistence

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpAMM/internal/core"
	"PerpAMM/internal/event"
)

func envelope(seq int64) *event.EventEnvelope {
	env := &event.EventEnvelope{
		Sequence:  seq,
		Op:        "deposit",
		RequestID: "req-1",
		EventType: event.EventTypeDeposit,
		Account:   uuid.MustParse("00000000-0000-0000-0000-0000000000a1"),
		Block:     7,
		Timestamp: 1000,
		Payload:   []byte(`{"account":"00000000-0000-0000-0000-0000000000a1","amount":"1","balance":"1"}`),
	}
	env.StateHash[0] = byte(seq)
	env.PrevHash[0] = byte(seq - 1)
	return env
}

func TestBuildEventInsert(t *testing.T) {
	rows := []EventRow{RowFromEnvelope(envelope(1)), RowFromEnvelope(envelope(2))}

	query, args := buildEventInsert(rows)

	assert.True(t, strings.HasPrefix(query, "INSERT INTO event_log.events ("+eventColumns+") VALUES "))
	assert.Contains(t, query, "($1, $2, $3, $4, $5, $6, $7, $8, $9, $10), ($11, $12,")
	assert.True(t, strings.HasSuffix(query, "$20) ON CONFLICT (sequence) DO NOTHING"))
	require.Len(t, args, 20)
	assert.Equal(t, int64(2), args[10])
	assert.Equal(t, "Deposit", args[3])
}

func TestEventRow_RebuildsEnvelope(t *testing.T) {
	env := envelope(3)

	got, err := RowFromEnvelope(env).Envelope()
	require.NoError(t, err)
	assert.Equal(t, env, got)

	row := RowFromEnvelope(env)
	row.EventType = "Bogus"
	_, err = row.Envelope()
	assert.Error(t, err)

	row = RowFromEnvelope(env)
	row.StateHash = row.StateHash[:31]
	_, err = row.Envelope()
	assert.Error(t, err)
}

func TestListMigrationFiles(t *testing.T) {
	files := fstest.MapFS{
		"000002_b.up.sql":   {Data: []byte("SELECT 2")},
		"000001_a.up.sql":   {Data: []byte("SELECT 1")},
		"000001_a.down.sql": {Data: []byte("SELECT 0")},
		"README.md":         {Data: []byte("docs")},
	}

	up, err := listMigrationFiles(files, ".up.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_a.up.sql", "000002_b.up.sql"}, up)
	assert.Equal(t, "000002", extractVersion(up[1]))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	m := NewMigrator(nil, "", zerolog.Nop())

	up, err := listMigrationFiles(m.files, ".up.sql")
	require.NoError(t, err)
	down, err := listMigrationFiles(m.files, ".down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, up)
	require.Len(t, down, len(up))
	for i := range up {
		assert.Equal(t, strings.TrimSuffix(up[i], ".up.sql"), strings.TrimSuffix(down[i], ".down.sql"))
	}
}

type fakeWriter struct {
	mu      sync.Mutex
	fails   int
	batches [][]EventRow
}

func (w *fakeWriter) WriteBatch(_ context.Context, events []EventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fails > 0 {
		w.fails--
		return errors.New("connection reset")
	}
	w.batches = append(w.batches, append([]EventRow(nil), events...))
	return nil
}

func (w *fakeWriter) written() [][]EventRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.batches
}

func TestWorker_FlushesFullBatchesAndRemainderOnClose(t *testing.T) {
	w := &fakeWriter{}
	in := make(chan core.CoreOutput, 8)
	pw := NewPersistenceWorker(w, in, 2, time.Hour, nil, zerolog.Nop())

	var flushed []int64
	pw.OnFlush(func(batch []core.CoreOutput) {
		for _, out := range batch {
			flushed = append(flushed, out.Envelope.Sequence)
		}
	})

	for seq := int64(1); seq <= 3; seq++ {
		in <- core.CoreOutput{Envelope: envelope(seq)}
	}
	close(in)
	require.NoError(t, pw.Run(context.Background()))

	batches := w.written()
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Equal(t, int64(3), batches[1][0].Sequence)
	assert.Equal(t, []int64{1, 2, 3}, flushed)
}

func TestWorker_RetriesUntilWritten(t *testing.T) {
	w := &fakeWriter{fails: 2}
	in := make(chan core.CoreOutput, 1)
	pw := NewPersistenceWorker(w, in, 1, time.Hour, nil, zerolog.Nop())
	pw.SetBackoff(time.Millisecond, 2*time.Millisecond)

	in <- core.CoreOutput{Envelope: envelope(1)}
	close(in)
	require.NoError(t, pw.Run(context.Background()))

	batches := w.written()
	require.Len(t, batches, 1)
	assert.Equal(t, int64(1), batches[0][0].Sequence)
}

func TestWorker_FlushesOnTimeout(t *testing.T) {
	w := &fakeWriter{}
	in := make(chan core.CoreOutput, 1)
	pw := NewPersistenceWorker(w, in, 100, 5*time.Millisecond, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pw.Run(ctx) }()

	in <- core.CoreOutput{Envelope: envelope(1)}
	require.Eventually(t, func() bool { return len(w.written()) == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
