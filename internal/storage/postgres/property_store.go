package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PropertyStore persists small named documents (blacklist, web payload
// metadata) in a key/value table.
type PropertyStore struct {
	pool  Pool
	table string
}

// NewPropertyStore constructs a store over an existing pool.
func NewPropertyStore(pool Pool, table string) (*PropertyStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "properties"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PropertyStore{pool: pool, table: table}, nil
}

// Set upserts value under key.
func (s *PropertyStore) Set(ctx context.Context, key, value string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, s.table)
	if _, err := s.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("set property %s: %w", key, err)
	}
	return nil
}

// Get returns the stored value, or "" when the key is absent.
func (s *PropertyStore) Get(ctx context.Context, key string) (string, error) {
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = $1", s.table)
	var value string
	err := s.pool.QueryRow(ctx, query, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get property %s: %w", key, err)
	}
	return value, nil
}

// Delete removes key if present.
func (s *PropertyStore) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE key = $1", s.table)
	if _, err := s.pool.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("delete property %s: %w", key, err)
	}
	return nil
}
