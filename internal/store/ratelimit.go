package store

import (
	"context"
	"fmt"
)

// InsertRateLimitSnapshot persists an upstream rate-limit image for a run.
func (s *Store) InsertRateLimitSnapshot(ctx context.Context, snap *RateLimitSnapshot) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_limit_snapshots (run_id, taken_at, snapshot_json)
		VALUES (?, ?, ?)`,
		snap.RunID, snap.TakenAt.UTC(), snap.SnapshotJSON)
	if err != nil {
		return fmt.Errorf("failed to insert rate-limit snapshot: %w", err)
	}
	snap.ID, _ = res.LastInsertId()
	return nil
}

// ListRateLimitSnapshots returns a run's snapshots in capture order.
func (s *Store) ListRateLimitSnapshots(ctx context.Context, runID string) ([]*RateLimitSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, taken_at, snapshot_json
		FROM rate_limit_snapshots WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rate-limit snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*RateLimitSnapshot
	for rows.Next() {
		var snap RateLimitSnapshot
		if err := rows.Scan(&snap.ID, &snap.RunID, &snap.TakenAt, &snap.SnapshotJSON); err != nil {
			return nil, err
		}
		out = append(out, &snap)
	}
	return out, rows.Err()
}
