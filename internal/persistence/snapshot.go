package persistence

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"PerpAMM/internal/core"

	"github.com/google/uuid"
)

const snapshotFormatVersion = 1

// ErrSnapshotMismatch is returned when a snapshot's hash disagrees with the
// event log at its sequence.
var ErrSnapshotMismatch = errors.New("snapshot hash does not match event log")

// SnapshotManager stores engine snapshots in event_log.snapshots. A
// snapshot becomes loadable once verified against the persisted event at
// its sequence.
type SnapshotManager struct {
	db *sql.DB
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists snap unverified and returns its encoded size.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *core.SnapshotState) (int, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6, verified = FALSE
	`, uuid.New(), snap.Sequence, data, snap.StateHash, snapshotFormatVersion, len(data), time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// Verify checks the snapshot at sequence against the persisted event with
// the same sequence and marks it verified. A snapshot at sequence 0 is the
// genesis state and needs no event.
func (sm *SnapshotManager) Verify(ctx context.Context, sequence int64) error {
	var snapHash string
	err := sm.db.QueryRowContext(ctx,
		`SELECT state_hash FROM event_log.snapshots WHERE sequence = $1`, sequence,
	).Scan(&snapHash)
	if err != nil {
		return fmt.Errorf("load snapshot %d: %w", sequence, err)
	}

	if sequence > 0 {
		var eventHash []byte
		err := sm.db.QueryRowContext(ctx,
			`SELECT state_hash FROM event_log.events WHERE sequence = $1`, sequence,
		).Scan(&eventHash)
		if err != nil {
			return fmt.Errorf("load event %d: %w", sequence, err)
		}
		if hex.EncodeToString(eventHash) != snapHash {
			return fmt.Errorf("%w at sequence %d", ErrSnapshotMismatch, sequence)
		}
	}

	_, err = sm.db.ExecContext(ctx,
		`UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1`, sequence)
	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot, or nil on a
// cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*core.SnapshotState, error) {
	var data []byte
	err := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE AND format_version = $1
		ORDER BY sequence DESC
		LIMIT 1
	`, snapshotFormatVersion).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap core.SnapshotState
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// PruneBefore deletes verified snapshots older than the newest keep ones.
func (sm *SnapshotManager) PruneBefore(ctx context.Context, keep int) error {
	_, err := sm.db.ExecContext(ctx, `
		DELETE FROM event_log.snapshots
		WHERE sequence < (
			SELECT COALESCE(MIN(sequence), 0) FROM (
				SELECT sequence FROM event_log.snapshots
				WHERE verified = TRUE
				ORDER BY sequence DESC
				LIMIT $1
			) newest
		)
	`, keep)
	return err
}
