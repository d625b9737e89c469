package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dloadly/backend/internal/db"
)

// PostgresSettingsRepository stores one key/value row per setting.
type PostgresSettingsRepository struct {
	pool db.Pool
}

// NewPostgresSettingsRepository constructs a settings store backed by PostgreSQL.
func NewPostgresSettingsRepository(pool db.Pool) *PostgresSettingsRepository {
	return &PostgresSettingsRepository{pool: pool}
}

// Get returns the value stored under key, or ErrNotFound.
func (r *PostgresSettingsRepository) Get(ctx context.Context, key string) (string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var value string
	row := conn.QueryRow(ctx, `
        SELECT value
        FROM settings
        WHERE key = $1
    `, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("select setting %s: %w", key, err)
	}

	return value, nil
}

// Set upserts the value stored under key.
func (r *PostgresSettingsRepository) Set(ctx context.Context, key, value string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO settings (key, value, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (key)
        DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
    `, key, value)
	if err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}

	return nil
}

var _ SettingsRepository = (*PostgresSettingsRepository)(nil)
