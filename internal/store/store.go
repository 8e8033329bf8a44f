// Package store implements durable local storage for scout runs on SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps a single SQLite database holding every entity a run produces.
// One process opens the store in write mode at a time; concurrent runs are
// not supported.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the store at path and applies pending migrations.
// Foreign keys, WAL journaling and synchronous=FULL are enabled via the
// connection string so every pooled connection gets the same pragmas.
func Open(ctx context.Context, path string) (*Store, error) {
	connStr := "file:" + path +
		"?_pragma=foreign_keys(ON)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(FULL)" +
		"&_time_format=sqlite"

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}

	s := &Store{db: db, path: path}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

var memdbSeq atomic.Int64

// OpenMemory opens a fresh in-memory store, used by tests. Each call gets
// its own database; shared cache only ties together this store's pooled
// connections.
func OpenMemory(ctx context.Context) (*Store, error) {
	name := fmt.Sprintf("memdb%d", memdbSeq.Add(1))
	db, err := sql.Open("sqlite3",
		"file:"+name+"?mode=memory&cache=shared&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// Shared-cache memory databases vanish when the last connection closes.
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, path: ":memory:"}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DB exposes the raw handle for maintenance commands (vacuum, doctor).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Vacuum rebuilds the database file, reclaiming space from pruned rows.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	return nil
}

// Tx is a transaction handle bound to a dedicated connection. DAO helpers
// accept execer so they work both inside and outside a transaction.
type Tx struct {
	conn *sql.Conn
}

// ExecContext executes a statement on the transaction's connection.
func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.conn.ExecContext(ctx, query, args...)
}

// QueryContext runs a query on the transaction's connection.
func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query on the transaction's connection.
func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.conn.QueryRowContext(ctx, query, args...)
}

// execer is satisfied by *sql.DB, *sql.Conn and *Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RunInTx executes fn inside a transaction. BEGIN IMMEDIATE acquires the
// write lock up front; the transaction is rolled back when fn returns an
// error or panics.
func (s *Store) RunInTx(ctx context.Context, fn func(tx *Tx) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			// Background context so rollback completes even when ctx is done.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(&Tx{conn: conn}); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}
