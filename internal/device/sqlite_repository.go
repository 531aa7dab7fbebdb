package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is a single-file SQLite implementation of Repository.
// It is the default backend for a standalone agent.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLiteRepository opens (creating if needed) the database at path.
func OpenSQLiteRepository(path string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create device db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps every statement on the same WAL snapshot.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set sqlite journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set sqlite busy timeout: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS device_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create device_state table: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Get retrieves the value stored under key.
func (r *SQLiteRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM device_state WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read device state %q: %w", key, err)
	}
	return value, true, nil
}

// Set writes value under key.
func (r *SQLiteRepository) Set(ctx context.Context, key, value string) error {
	const upsert = `
INSERT INTO device_state (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	value = excluded.value,
	updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, upsert, key, value, time.Now().Unix()); err != nil {
		return fmt.Errorf("write device state %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM device_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete device state %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

var _ Repository = (*SQLiteRepository)(nil)
