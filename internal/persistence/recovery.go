package persistence

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"PerpAMM/internal/core"
	"PerpAMM/internal/event"
	"PerpAMM/internal/observability"

	"github.com/rs/zerolog"
)

// ErrLogAhead means the event log holds events the restored state does not
// reflect. Events record outcomes, not commands, so they cannot be replayed
// into the engine; an operator has to restore a newer snapshot.
var ErrLogAhead = errors.New("event log is ahead of the latest snapshot")

// Recover restores eng from the latest verified snapshot, checks that the
// event log ends where the snapshot does and warms the idempotency cache.
func Recover(ctx context.Context, eng *core.Engine, snaps *SnapshotManager, events *EventLogWriter, warmKeys int, logger zerolog.Logger) error {
	snap, err := snaps.LoadLatestSnapshot(ctx)
	if err != nil {
		return err
	}
	tip, err := events.GetLatestSequence(ctx)
	if err != nil {
		return fmt.Errorf("latest sequence: %w", err)
	}

	var from int64
	if snap != nil {
		if err := eng.RestoreFromSnapshot(snap); err != nil {
			return err
		}
		from = snap.Sequence
	}
	if tip > from {
		if snap != nil {
			if err := verifyTail(ctx, events, snap, tip); err != nil {
				return err
			}
		}
		return fmt.Errorf("%w: snapshot at %d, log at %d", ErrLogAhead, from, tip)
	}

	if warmKeys > 0 {
		keys, err := events.RecentRequestKeys(ctx, warmKeys)
		if err != nil {
			return fmt.Errorf("warm idempotency cache: %w", err)
		}
		eng.WarmLRU(keys)
	}
	logger.Info().Int64("sequence", from).Bool("cold_start", snap == nil).Msg("recovery complete")
	return nil
}

// verifyTail checks the hash chain of the events after snap so the error
// reported distinguishes a lagging snapshot from a corrupted log.
func verifyTail(ctx context.Context, events *EventLogWriter, snap *core.SnapshotState, tip int64) error {
	raw, err := hex.DecodeString(snap.StateHash)
	if err != nil || len(raw) != 32 {
		return fmt.Errorf("snapshot %d: bad state hash", snap.Sequence)
	}
	var prev [32]byte
	copy(prev[:], raw)

	const page = 1000
	for next := snap.Sequence + 1; next <= tip; {
		rows, err := events.LoadEventsFrom(ctx, next, page)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			break
		}
		envs := make([]*event.EventEnvelope, 0, len(rows))
		for _, r := range rows {
			env, err := r.Envelope()
			if err != nil {
				return err
			}
			envs = append(envs, env)
		}
		if seq, ok := core.VerifyChain(prev, envs); !ok {
			return fmt.Errorf("event log hash chain broken at sequence %d", seq)
		}
		last := envs[len(envs)-1]
		prev, next = last.StateHash, last.Sequence+1
	}
	return nil
}

// Snapshotter saves engine snapshots on an interval and verifies them once
// the persistence worker has written the events they cover.
type Snapshotter struct {
	eng      *core.Engine
	snaps    *SnapshotManager
	interval time.Duration
	keep     int
	metrics  *observability.Metrics
	logger   zerolog.Logger

	pending []int64
	lastSeq int64
}

func NewSnapshotter(eng *core.Engine, snaps *SnapshotManager, interval time.Duration, metrics *observability.Metrics, logger zerolog.Logger) *Snapshotter {
	return &Snapshotter{eng: eng, snaps: snaps, interval: interval, keep: 3, metrics: metrics, logger: logger, lastSeq: -1}
}

// Run snapshots every interval until ctx is cancelled.
func (s *Snapshotter) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Take(ctx); err != nil {
				s.logger.Error().Err(err).Msg("snapshot failed")
			}
			s.VerifyPending(ctx)
		}
	}
}

// Take saves a snapshot unless nothing happened since the last one.
func (s *Snapshotter) Take(ctx context.Context) error {
	snap := s.eng.Snapshot()
	if snap.Sequence == s.lastSeq {
		return nil
	}
	size, err := s.snaps.SaveSnapshot(ctx, snap)
	if err != nil {
		return err
	}
	s.lastSeq = snap.Sequence
	s.pending = append(s.pending, snap.Sequence)
	if s.metrics != nil {
		s.metrics.SnapshotSizeBytes.Set(float64(size))
	}
	s.logger.Info().Int64("sequence", snap.Sequence).Int("size_bytes", size).Msg("snapshot saved")
	return nil
}

// VerifyPending verifies saved snapshots whose events are now persisted.
func (s *Snapshotter) VerifyPending(ctx context.Context) {
	remaining := s.pending[:0]
	verified := false
	for _, seq := range s.pending {
		err := s.snaps.Verify(ctx, seq)
		switch {
		case err == nil:
			verified = true
		case errors.Is(err, sql.ErrNoRows):
			remaining = append(remaining, seq)
		default:
			s.logger.Error().Err(err).Int64("sequence", seq).Msg("snapshot verification failed")
		}
	}
	s.pending = remaining
	if verified {
		if err := s.snaps.PruneBefore(ctx, s.keep); err != nil {
			s.logger.Warn().Err(err).Msg("snapshot prune failed")
		}
	}
}
