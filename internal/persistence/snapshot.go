package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotStore persists point-in-time state snapshots for warm restart.
// The snapshot payload is the JSON-encoded engine state; this package treats
// it as opaque bytes so the schema survives engine-side additions.
type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// SaveSnapshot stores a snapshot keyed by the last sequence it covers.
// Re-saving the same sequence overwrites, so a crash mid-save is harmless.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, sequence int64, data []byte, createdAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots (snapshot_id, sequence, data, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, size_bytes = $4
	`, uuid.New(), sequence, string(data), len(data), createdAt)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadLatestSnapshot returns the newest snapshot, or (0, nil, nil) when the
// table is empty and the service must cold-start from the event log.
func (s *SnapshotStore) LoadLatestSnapshot(ctx context.Context) (int64, []byte, error) {
	var sequence int64
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT sequence, data FROM event_log.snapshots
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(&sequence, &data)
	if err == sql.ErrNoRows {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("load snapshot: %w", err)
	}
	return sequence, data, nil
}

// LoadEventsFrom loads events at or after fromSequence in ascending order,
// for replay after a snapshot restore (or from zero on cold start).
func (s *SnapshotStore) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, contract_id, actor, payload, timestamp
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
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.ContractID,
			&e.Actor, &e.Payload, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log, 0 when empty.
func (s *SnapshotStore) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// LoadRecentIdempotencyKeys returns composite "event_type:key" strings for
// the most recent events, used to warm the core's in-memory LRU on startup.
func (s *SnapshotStore) LoadRecentIdempotencyKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type || ':' || idempotency_key
		FROM event_log.events
		WHERE idempotency_key <> ''
		ORDER BY sequence DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
