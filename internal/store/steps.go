package store

import (
	"context"
	"fmt"
	"time"
)

// StartStep inserts a running step row and returns its id.
func (s *Store) StartStep(ctx context.Context, runID, name string, startedAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO steps (run_id, name, started_at, status)
		VALUES (?, ?, ?, ?)`,
		runID, name, startedAt.UTC(), StepRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to start step %s: %w", name, err)
	}
	return res.LastInsertId()
}

// FinishStep finalizes a step exactly once.
func (s *Store) FinishStep(ctx context.Context, stepID int64, status string, finishedAt time.Time, statsJSON string) error {
	if statsJSON == "" {
		statsJSON = "{}"
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE steps SET finished_at = ?, status = ?, stats_json = ?
		WHERE id = ? AND status = ?`,
		finishedAt.UTC(), status, statsJSON, stepID, StepRunning)
	if err != nil {
		return fmt.Errorf("failed to finish step %d: %w", stepID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("step %d already finalized or missing: %w", stepID, ErrNotFound)
	}
	return nil
}

// ListSteps returns a run's steps in start order.
func (s *Store) ListSteps(ctx context.Context, runID string) ([]*Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, name, started_at, finished_at, status, stats_json
		FROM steps WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var steps []*Step
	for rows.Next() {
		var st Step
		if err := rows.Scan(&st.ID, &st.RunID, &st.Name, &st.StartedAt, &st.FinishedAt, &st.Status, &st.StatsJSON); err != nil {
			return nil, err
		}
		steps = append(steps, &st)
	}
	return steps, rows.Err()
}
