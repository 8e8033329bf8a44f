package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// UpsertRepo inserts or refreshes a repo by canonical full name.
func (s *Store) UpsertRepo(ctx context.Context, r *Repo) error {
	topics, err := json.Marshal(r.Topics)
	if err != nil {
		return fmt.Errorf("failed to marshal topics for %s: %w", r.ID, err)
	}
	var lastSeen any
	if r.LastSeenRunID != "" {
		lastSeen = r.LastSeenRunID
	}
	var pushedAt any
	if r.PushedAt != nil {
		pushedAt = r.PushedAt.UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO repos (id, stars, forks, topics_json, language, license, pushed_at, archived, fork, last_seen_run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			stars = excluded.stars,
			forks = excluded.forks,
			topics_json = excluded.topics_json,
			language = excluded.language,
			license = excluded.license,
			pushed_at = excluded.pushed_at,
			archived = excluded.archived,
			fork = excluded.fork,
			last_seen_run_id = excluded.last_seen_run_id`,
		r.ID, r.Stars, r.Forks, string(topics), r.Language, r.License,
		pushedAt, boolToInt(r.Archived), boolToInt(r.Fork), lastSeen)
	if err != nil {
		return fmt.Errorf("failed to upsert repo %s: %w", r.ID, err)
	}
	return nil
}

// GetRepo fetches a repo by canonical full name.
func (s *Store) GetRepo(ctx context.Context, id string) (*Repo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, stars, forks, topics_json, language, license, pushed_at, archived, fork, last_seen_run_id
		FROM repos WHERE id = ?`, id)
	r, err := scanRepo(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("repo %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get repo %s: %w", id, err)
	}
	return r, nil
}

// GetRepos fetches the given repos, keyed by id. Missing ids are absent
// from the result rather than an error.
func (s *Store) GetRepos(ctx context.Context, ids []string) (map[string]*Repo, error) {
	out := make(map[string]*Repo, len(ids))
	for _, id := range ids {
		r, err := s.GetRepo(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out[id] = r
	}
	return out, nil
}

// ListReposSeenByRun returns repos last seen by the given run, sorted by id
// for deterministic iteration.
func (s *Store) ListReposSeenByRun(ctx context.Context, runID string) ([]*Repo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stars, forks, topics_json, language, license, pushed_at, archived, fork, last_seen_run_id
		FROM repos WHERE last_seen_run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list repos for run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var repos []*Repo
	for rows.Next() {
		r, err := scanRepo(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepo(row rowScanner) (*Repo, error) {
	var r Repo
	var topicsJSON string
	var archived, fork int
	var lastSeen sql.NullString
	var pushedAt sql.NullTime
	err := row.Scan(&r.ID, &r.Stars, &r.Forks, &topicsJSON, &r.Language,
		&r.License, &pushedAt, &archived, &fork, &lastSeen)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(topicsJSON), &r.Topics); err != nil {
		return nil, fmt.Errorf("corrupt topics_json for %s: %w", r.ID, err)
	}
	r.Archived = archived != 0
	r.Fork = fork != 0
	if lastSeen.Valid {
		r.LastSeenRunID = lastSeen.String
	}
	if pushedAt.Valid {
		t := pushedAt.Time
		r.PushedAt = &t
	}
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

