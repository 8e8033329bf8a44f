package store

import (
	"context"
	"fmt"
	"time"
)

// AppendAudit writes one immutable audit row. Data must already be redacted
// by the caller; the store never sees raw secrets.
func (s *Store) AppendAudit(ctx context.Context, e *AuditEvent) error {
	if e.DataJSON == "" {
		e.DataJSON = "{}"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (run_id, ts, level, scope, event, message, data_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.TS.UTC(), e.Level, e.Scope, e.Event, e.Message, e.DataJSON)
	if err != nil {
		return fmt.Errorf("failed to append audit event %s: %w", e.Event, err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// ListAudit returns a run's audit events in write order.
func (s *Store) ListAudit(ctx context.Context, runID string) ([]*AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, ts, level, scope, event, message, data_json
		FROM audit_log WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*AuditEvent
	for rows.Next() {
		var e AuditEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.TS, &e.Level, &e.Scope, &e.Event, &e.Message, &e.DataJSON); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// CountAuditByEvent counts a run's audit rows with the given event name.
func (s *Store) CountAuditByEvent(ctx context.Context, runID, event string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_log WHERE run_id = ? AND event = ?`,
		runID, event).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return n, nil
}

// PruneAudit deletes audit rows older than the cutoff. Used by logs:prune.
func (s *Store) PruneAudit(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE ts < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit log: %w", err)
	}
	return res.RowsAffected()
}
