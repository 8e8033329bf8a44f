package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// KeywordID derives the stable row id for a keyword. Aggregate rows pass an
// empty repoID.
func KeywordID(runID, repoID, keyword, kind string) string {
	sum := sha256.Sum256([]byte(runID + "|" + repoID + "|" + keyword + "|" + kind))
	return hex.EncodeToString(sum[:])
}

// UpsertKeyword inserts a keyword row, replacing any prior row with the
// same derived id (re-aggregation overwrites in place).
func (s *Store) UpsertKeyword(ctx context.Context, k *Keyword) error {
	if k.ID == "" {
		k.ID = KeywordID(k.RunID, k.RepoID, k.Keyword, k.Kind)
	}
	var repoID any
	if k.RepoID != "" {
		repoID = k.RepoID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO keywords (id, run_id, repo_id, keyword, kind, weight)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET weight = excluded.weight`,
		k.ID, k.RunID, repoID, k.Keyword, k.Kind, k.Weight)
	if err != nil {
		return fmt.Errorf("failed to upsert keyword %q: %w", k.Keyword, err)
	}
	return nil
}

// ListRepoKeywords returns the per-repo keywords for a set of repos in a
// run, ordered by repo id then kind then keyword.
func (s *Store) ListRepoKeywords(ctx context.Context, runID string, repoIDs []string) ([]*Keyword, error) {
	var out []*Keyword
	for _, repoID := range repoIDs {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, run_id, repo_id, keyword, kind, weight
			FROM keywords WHERE run_id = ? AND repo_id = ?
			ORDER BY kind, keyword`, runID, repoID)
		if err != nil {
			return nil, fmt.Errorf("failed to list keywords for %s: %w", repoID, err)
		}
		ks, err := scanKeywords(rows)
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, ks...)
	}
	return out, nil
}

// ListAggregateKeywords returns a run's aggregate keywords (repo_id NULL)
// ordered by weight descending then keyword ascending.
func (s *Store) ListAggregateKeywords(ctx context.Context, runID string) ([]*Keyword, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, repo_id, keyword, kind, weight
		FROM keywords WHERE run_id = ? AND repo_id IS NULL
		ORDER BY weight DESC, keyword`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list aggregate keywords: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanKeywords(rows)
}

func scanKeywords(rows *sql.Rows) ([]*Keyword, error) {
	var out []*Keyword
	for rows.Next() {
		var k Keyword
		var repoID *string
		if err := rows.Scan(&k.ID, &k.RunID, &repoID, &k.Keyword, &k.Kind, &k.Weight); err != nil {
			return nil, err
		}
		if repoID != nil {
			k.RepoID = *repoID
		}
		out = append(out, &k)
	}
	return out, rows.Err()
}
