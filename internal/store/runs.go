package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateRun inserts the run row. Runs are never mutated afterwards.
func (s *Store) CreateRun(ctx context.Context, run *Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, args_json, config_hash, git_commit)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UTC(), run.ArgsJSON, run.ConfigHash, run.GitCommit)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun fetches a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var r Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, args_json, config_hash, git_commit
		FROM runs WHERE id = ?`, id).
		Scan(&r.ID, &r.CreatedAt, &r.ArgsJSON, &r.ConfigHash, &r.GitCommit)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return &r, nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, args_json, config_hash, git_commit
		FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.ArgsJSON, &r.ConfigHash, &r.GitCommit); err != nil {
			return nil, err
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}
