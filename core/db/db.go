// Package db wraps the embedded SQLite store that backs the Shared Memory
// Store. modernc.org/sqlite is a pure-Go SQLite driver, chosen over a
// cgo-based one so the orchestrator stays a single static binary; it has no
// loadable-extension support, which is why the vector index is
// implemented as an in-process cosine-similarity scan in the memory package
// rather than a SQL extension — see DESIGN.md.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a *sql.DB configured for SQLite's single-writer concurrency model
// and provides a transaction helper used by the memory store's atomic
// insert-into-two-tables operations.
type DB struct {
	conn *sql.DB
}

// Config configures the embedded store.
type Config struct {
	// Path is the SQLite file path, or ":memory:" for an ephemeral store
	// (used by tests and by export-free single-shot invocations).
	Path string

	// BusyTimeoutMS bounds how long a writer blocks on a lock before SQLITE_BUSY.
	BusyTimeoutMS int
}

// New opens the database, applies the WAL pragmas, and runs pending
// migrations. Mirrors the pragma set used elsewhere in the ecosystem for
// concurrent single-writer SQLite access: WAL journaling so readers never
// block the writer, a busy timeout so a momentary lock contention retries
// instead of failing a memory-store call outright.
func New(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Path == "" {
		cfg.Path = "researchd.db"
	}
	busyTimeout := cfg.BusyTimeoutMS
	if busyTimeout <= 0 {
		busyTimeout = 5000
	}

	conn, err := sql.Open("sqlite", normalizeDSN(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// The store design accepts a single-mutex write model at this
	// scale; capping the pool to one connection makes that explicit and
	// avoids SQLITE_BUSY races between Go-level goroutines that the driver
	// itself can't see.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout),
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	if err := Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &DB{conn: conn}, nil
}

func normalizeDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?cache=shared"
	}
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?mode=rwc&_txlock=immediate"
}

// Conn returns the underlying *sql.DB for callers that need direct access
// (the memory store is the only intended caller).
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on any error (including a panic, which is re-raised after rollback).
// The Shared Memory Store uses this for store/upsert_single so a memory row
// and its vector row are never visible independently.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// nowUnix is the wall-clock seconds used for created_at columns across the
// memory store, matching the data model's `created_at: wall-clock seconds`.
func nowUnix() int64 {
	return time.Now().Unix()
}

// NowUnix exposes nowUnix to callers outside this package (the memory store
// and tool-call audit writer both need a consistent clock source).
func NowUnix() int64 {
	return nowUnix()
}
