package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertReadme replaces the current README for a repo. The old blob is
// discarded; exactly one row per repo survives.
func (s *Store) UpsertReadme(ctx context.Context, r *Readme) error {
	return s.RunInTx(ctx, func(tx *Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM readmes WHERE repo_id = ?`, r.RepoID); err != nil {
			return fmt.Errorf("failed to delete prior readme for %s: %w", r.RepoID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO readmes (repo_id, content, content_sha256, fetched_at, etag, source_url)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.RepoID, r.Content, r.ContentSHA256, r.FetchedAt.UTC(), r.ETag, r.SourceURL); err != nil {
			return fmt.Errorf("failed to insert readme for %s: %w", r.RepoID, err)
		}
		return nil
	})
}

// GetReadme returns the current README for a repo.
func (s *Store) GetReadme(ctx context.Context, repoID string) (*Readme, error) {
	var r Readme
	err := s.db.QueryRowContext(ctx, `
		SELECT repo_id, content, content_sha256, fetched_at, etag, source_url
		FROM readmes WHERE repo_id = ?`, repoID).
		Scan(&r.RepoID, &r.Content, &r.ContentSHA256, &r.FetchedAt, &r.ETag, &r.SourceURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("readme for %s: %w", repoID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get readme for %s: %w", repoID, err)
	}
	return &r, nil
}

// HasReadme reports whether a repo has a current README.
func (s *Store) HasReadme(ctx context.Context, repoID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM readmes WHERE repo_id = ?`, repoID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check readme for %s: %w", repoID, err)
	}
	return true, nil
}

// CountReadmes counts stored READMEs (used by tests and doctor).
func (s *Store) CountReadmes(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readmes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count readmes: %w", err)
	}
	return n, nil
}
