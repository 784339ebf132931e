// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clanforge/headhunter/internal/recruit"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Pool is the subset of pgxpool.Pool the stores use, satisfied by pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// ConnectConfig controls the shared Postgres connection pool.
type ConnectConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Connect builds the pgx pool shared by the stores in this package.
func Connect(ctx context.Context, cfg ConnectConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// RosterStore persists the recruit pool as one table, replaced wholesale
// on every scout run.
type RosterStore struct {
	pool  Pool
	table string
}

// NewRosterStore constructs a store over an existing pool. Pass a pgxmock
// pool in tests.
func NewRosterStore(pool Pool, table string) (*RosterStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "recruits"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RosterStore{pool: pool, table: table}, nil
}

// Load reads the full pool ordered by raw score descending.
func (s *RosterStore) Load(ctx context.Context) ([]recruit.Candidate, error) {
	query := fmt.Sprintf(`
		SELECT tag, name, trophies, donations, cards_won, war_score,
		       raw_score, perf_score, found_date, invited
		FROM %s
		ORDER BY raw_score DESC, tag ASC`, s.table)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	defer rows.Close()

	var out []recruit.Candidate
	for rows.Next() {
		var c recruit.Candidate
		if err := rows.Scan(
			&c.Tag, &c.Name, &c.Trophies, &c.Donations, &c.CardsWon,
			&c.WarScore, &c.RawScore, &c.PerfScore, &c.FoundDate, &c.Invited,
		); err != nil {
			return nil, fmt.Errorf("scan roster row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster rows: %w", err)
	}
	return out, nil
}

// Replace swaps the full table contents in one transaction so readers
// never observe a half-written pool.
func (s *RosterStore) Replace(ctx context.Context, pool []recruit.Candidate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.table)); err != nil {
		return fmt.Errorf("clear roster: %w", err)
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (tag, name, trophies, donations, cards_won,
		                war_score, raw_score, perf_score, found_date, invited)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, s.table)
	for _, c := range pool {
		if _, err := tx.Exec(ctx, insert,
			c.Tag, c.Name, c.Trophies, c.Donations, c.CardsWon,
			c.WarScore, c.RawScore, c.PerfScore, c.FoundDate, c.Invited,
		); err != nil {
			return fmt.Errorf("insert recruit %s: %w", c.Tag, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}
