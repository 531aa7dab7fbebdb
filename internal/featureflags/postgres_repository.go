package featureflags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores flags in the push_feature_flags table, so a fleet
// of agents sharing one database can be switched together.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a PostgreSQL feature flags repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate creates the flags table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS push_feature_flags (
			key        TEXT PRIMARY KEY,
			value      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := r.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create push_feature_flags: %w", err)
	}
	return nil
}

// GetFlag retrieves a single feature flag by key.
func (r *PostgresRepository) GetFlag(ctx context.Context, key string) (*Flag, error) {
	query := `
		SELECT key, value, updated_at
		FROM push_feature_flags
		WHERE key = $1
	`

	flag, err := scanFlag(r.pool.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFlagNotFound
		}
		return nil, fmt.Errorf("get flag %s: %w", key, err)
	}
	return flag, nil
}

// GetAllFlags retrieves all feature flags.
func (r *PostgresRepository) GetAllFlags(ctx context.Context) (map[string]*Flag, error) {
	query := `
		SELECT key, value, updated_at
		FROM push_feature_flags
		ORDER BY key
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	defer rows.Close()

	flags := make(map[string]*Flag)
	for rows.Next() {
		flag, err := scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan flag: %w", err)
		}
		flags[flag.Key] = flag
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	return flags, nil
}

// SetFlag creates or updates a feature flag.
func (r *PostgresRepository) SetFlag(ctx context.Context, flag *Flag) error {
	query := `
		INSERT INTO push_feature_flags (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`

	valueJSON, err := json.Marshal(flag.Value)
	if err != nil {
		return fmt.Errorf("encode flag %s: %w", flag.Key, err)
	}

	if _, err := r.pool.Exec(ctx, query, flag.Key, valueJSON, time.Now()); err != nil {
		return fmt.Errorf("set flag %s: %w", flag.Key, err)
	}
	return nil
}

// DeleteFlag removes a feature flag by key.
func (r *PostgresRepository) DeleteFlag(ctx context.Context, key string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM push_feature_flags WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete flag %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFlagNotFound
	}
	return nil
}

func scanFlag(row pgx.Row) (*Flag, error) {
	var (
		flag      Flag
		valueJSON []byte
	)
	if err := row.Scan(&flag.Key, &valueJSON, &flag.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(valueJSON, &flag.Value); err != nil {
		return nil, fmt.Errorf("decode flag %s: %w", flag.Key, err)
	}
	return &flag, nil
}

var _ Repository = (*PostgresRepository)(nil)
