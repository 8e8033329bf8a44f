package store

import (
	"context"
	"fmt"
)

// InsertBrief stores a generated brief.
func (s *Store) InsertBrief(ctx context.Context, b *Brief) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO briefs (id, run_id, score, repo_ids_json, content_json, markdown, outreach, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.RunID, b.Score, b.RepoIDsJSON, b.ContentJSON, b.Markdown,
		b.Outreach, b.Status, b.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert brief %s: %w", b.ID, err)
	}
	return nil
}

// UpdateBriefStatus records a manual review decision. Status is the only
// mutable brief field.
func (s *Store) UpdateBriefStatus(ctx context.Context, briefID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE briefs SET status = ? WHERE id = ?`, status, briefID)
	if err != nil {
		return fmt.Errorf("failed to update brief %s: %w", briefID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("brief %s: %w", briefID, ErrNotFound)
	}
	return nil
}

// ListBriefsByRun returns a run's briefs sorted by score descending then id.
func (s *Store) ListBriefsByRun(ctx context.Context, runID string) ([]*Brief, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, score, repo_ids_json, content_json, markdown, outreach, status, created_at
		FROM briefs WHERE run_id = ? ORDER BY score DESC, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list briefs for run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Brief
	for rows.Next() {
		var b Brief
		if err := rows.Scan(&b.ID, &b.RunID, &b.Score, &b.RepoIDsJSON,
			&b.ContentJSON, &b.Markdown, &b.Outreach, &b.Status, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}
