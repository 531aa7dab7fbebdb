package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
// It lets a fleet of agents share one database; each agent writes under its
// own namespace.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository.
// Call Migrate once before first use.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate creates the key/value table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS push_device_state (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create push_device_state table: %w", err)
	}
	return nil
}

// Get retrieves the value stored under key.
func (r *PostgresRepository) Get(ctx context.Context, key string) (string, bool, error) {
	query := `SELECT value FROM push_device_state WHERE key = $1`

	var value string
	err := r.pool.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// Set writes value under key.
func (r *PostgresRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO push_device_state (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query, key, value)
	return err
}

// Delete removes key.
func (r *PostgresRepository) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM push_device_state WHERE key = $1`
	_, err := r.pool.Exec(ctx, query, key)
	return err
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
