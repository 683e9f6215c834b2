// Package postgres builds the PostgreSQL connection pool and instruments it
// with tracing, structured query logs and per-query metrics.
package postgres

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds pool tuning flags.
type Config struct {
	MaxConns          int
	LogMinQueryMillis int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.MaxConns, "db-max-conns", 10, "maximum PostgreSQL pool connections (1..200)")
	fs.IntVar(&c.LogMinQueryMillis, "db-log-min-query-ms", 0, "only log successful queries slower than this many milliseconds (0 = log all)")
}

// Validate checks all configuration fields for correctness.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxConns < 1 || c.MaxConns > 200 {
		errs = append(errs, fmt.Errorf("invalid DB_MAX_CONNS %d (must be 1..200)", c.MaxConns))
	}
	if c.LogMinQueryMillis < 0 {
		errs = append(errs, fmt.Errorf("invalid DB_LOG_MIN_QUERY_MS %d (must be >= 0)", c.LogMinQueryMillis))
	}
	return errors.Join(errs...)
}

// NewPool parses databaseURL, attaches the otelpgx tracer wrapped with query
// logging, and opens the pool. A zero Config keeps pgxpool defaults.
func NewPool(ctx context.Context, databaseURL string, c Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if c.MaxConns > 0 {
		pcfg.MaxConns = int32(c.MaxConns) //nolint:gosec // bounded by Validate
	}
	pcfg.ConnConfig.Tracer = wrapQueryTracer(otelpgx.NewTracer())

	SetMinQueryLogDuration(time.Duration(c.LogMinQueryMillis) * time.Millisecond)

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}
	return pool, nil
}
