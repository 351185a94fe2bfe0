package persistence

import (
	"context"
	"errors"
	"time"

	"PerpAMM/internal/core"
	"PerpAMM/internal/observability"

	"github.com/rs/zerolog"
)

// BatchWriter stores a batch of events atomically.
type BatchWriter interface {
	WriteBatch(ctx context.Context, events []EventRow) error
}

// PersistenceWorker drains the persist channel and batch-writes to Postgres.
// The engine sends on that channel with a blocking send, so if this worker
// falls behind the engine stalls and no event is lost.
type PersistenceWorker struct {
	writer       BatchWriter
	inputChan    <-chan core.CoreOutput
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	logger       zerolog.Logger

	// onFlush sees every batch after it is durable (e.g. the NATS
	// publisher, so subscribers never observe unpersisted events).
	onFlush func([]core.CoreOutput)

	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewPersistenceWorker(
	writer BatchWriter,
	inputChan <-chan core.CoreOutput,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *PersistenceWorker {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushTimeout <= 0 {
		flushTimeout = 10 * time.Millisecond
	}
	return &PersistenceWorker{
		writer:         writer,
		inputChan:      inputChan,
		batchSize:      batchSize,
		flushTimeout:   flushTimeout,
		metrics:        metrics,
		logger:         logger,
		initialBackoff: 100 * time.Millisecond,
		maxBackoff:     30 * time.Second,
	}
}

// OnFlush registers fn to receive every durable batch.
func (pw *PersistenceWorker) OnFlush(fn func([]core.CoreOutput)) {
	pw.onFlush = fn
}

// SetBackoff overrides the retry backoff bounds.
func (pw *PersistenceWorker) SetBackoff(initial, max time.Duration) {
	pw.initialBackoff, pw.maxBackoff = initial, max
}

// Run batches incoming outputs and flushes when the batch is full or the
// flush timeout expires. It returns when the channel is closed (after a
// final flush) or ctx is cancelled.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	batch := make([]core.CoreOutput, 0, pw.batchSize)

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := pw.flushWithRetry(ctx, batch); err != nil {
			pw.logger.Error().Err(err).
				Int64("first_sequence", batch[0].Envelope.Sequence).
				Int("events", len(batch)).
				Msg("batch flush failed")
		}
		batch = make([]core.CoreOutput, 0, pw.batchSize)
	}

	for {
		select {
		case <-ctx.Done():
			flush(ctx)
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				flush(context.Background())
				return nil
			}
			batch = append(batch, output)
			if len(batch) >= pw.batchSize {
				flush(ctx)
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			flush(ctx)
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write
// succeeds. Events are never dropped: on shutdown it makes one last attempt
// with a fresh context.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, batch []core.CoreOutput) error {
	backoff := pw.initialBackoff

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			pw.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int64("first_sequence", batch[0].Envelope.Sequence).
				Msg("persistence retry")
			if pw.metrics != nil {
				pw.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				if err := pw.flush(context.Background(), batch); err != nil {
					return errors.Join(errors.New("final flush on shutdown failed"), err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > pw.maxBackoff {
				backoff = pw.maxBackoff
			}
		}

		err := pw.flush(ctx, batch)
		if err == nil {
			if attempt > 0 {
				pw.logger.Info().Int("retries", attempt).Msg("persistence flush succeeded")
			}
			return nil
		}
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("write_events").Inc()
		}
	}
}

func (pw *PersistenceWorker) flush(ctx context.Context, batch []core.CoreOutput) error {
	start := time.Now()
	rows := make([]EventRow, len(batch))
	for i, out := range batch {
		rows[i] = RowFromEnvelope(out.Envelope)
	}
	if err := pw.writer.WriteBatch(ctx, rows); err != nil {
		return err
	}

	last := rows[len(rows)-1].Sequence
	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(rows)))
		pw.metrics.PersistEventsWritten.Add(float64(len(rows)))
		pw.metrics.PersistLastSequence.Set(float64(last))
	}
	pw.logger.Debug().Int64("last_sequence", last).Int("events", len(rows)).Msg("batch persisted")
	if pw.onFlush != nil {
		pw.onFlush(batch)
	}
	return nil
}
