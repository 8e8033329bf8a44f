package store

import (
	"context"
	"fmt"
)

// InsertQuery records a search issued during a run and returns its id.
func (s *Store) InsertQuery(ctx context.Context, q *GitHubQuery) (int64, error) {
	if q.ParamsJSON == "" {
		q.ParamsJSON = "{}"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO github_queries (run_id, pass, query, params_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		q.RunID, q.Pass, q.Query, q.ParamsJSON, q.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert query: %w", err)
	}
	q.ID, err = res.LastInsertId()
	return q.ID, err
}

// ListQueries returns a run's queries in issue order.
func (s *Store) ListQueries(ctx context.Context, runID string) ([]*GitHubQuery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, pass, query, params_json, created_at
		FROM github_queries WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var queries []*GitHubQuery
	for rows.Next() {
		var q GitHubQuery
		if err := rows.Scan(&q.ID, &q.RunID, &q.Pass, &q.Query, &q.ParamsJSON, &q.CreatedAt); err != nil {
			return nil, err
		}
		queries = append(queries, &q)
	}
	return queries, rows.Err()
}

// LinkRepoQuery records that a query returned a repo at a given rank.
// Re-linking the same (query, repo) pair is a no-op.
func (s *Store) LinkRepoQuery(ctx context.Context, queryID int64, repoID string, pass, rank int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO repo_queries (query_id, repo_id, pass, rank)
		VALUES (?, ?, ?, ?)`,
		queryID, repoID, pass, rank)
	if err != nil {
		return fmt.Errorf("failed to link repo %s to query %d: %w", repoID, queryID, err)
	}
	return nil
}
