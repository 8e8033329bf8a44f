package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetCacheEntry looks up a cached response by key.
func (s *Store) GetCacheEntry(ctx context.Context, key string) (*CacheEntry, error) {
	var e CacheEntry
	var expires sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT cache_key, method, url, status, etag, last_modified, body_blob, fetched_at, expires_at
		FROM http_cache WHERE cache_key = ?`, key).
		Scan(&e.CacheKey, &e.Method, &e.URL, &e.Status, &e.ETag, &e.LastModified,
			&e.Body, &e.FetchedAt, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cache entry %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	if expires.Valid {
		t := expires.Time
		e.ExpiresAt = &t
	}
	return &e, nil
}

// PutCacheEntry upserts a cached response under its key.
func (s *Store) PutCacheEntry(ctx context.Context, e *CacheEntry) error {
	var expires any
	if e.ExpiresAt != nil {
		expires = e.ExpiresAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO http_cache (cache_key, method, url, status, etag, last_modified, body_blob, fetched_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			status = excluded.status,
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			body_blob = excluded.body_blob,
			fetched_at = excluded.fetched_at,
			expires_at = excluded.expires_at`,
		e.CacheKey, e.Method, e.URL, e.Status, e.ETag, e.LastModified,
		e.Body, e.FetchedAt.UTC(), expires)
	if err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}

// TouchCacheEntry advances fetched_at after a 304 without touching the body.
func (s *Store) TouchCacheEntry(ctx context.Context, key string, fetchedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE http_cache SET fetched_at = ? WHERE cache_key = ?`,
		fetchedAt.UTC(), key)
	if err != nil {
		return fmt.Errorf("failed to touch cache entry: %w", err)
	}
	return nil
}

// PruneCache deletes cache entries fetched before the cutoff.
func (s *Store) PruneCache(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM http_cache WHERE fetched_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune http cache: %w", err)
	}
	return res.RowsAffected()
}
