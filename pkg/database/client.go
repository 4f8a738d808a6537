// Package database provides the PostgreSQL connection pool and migration
// utilities.
package database

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql (migrations)
)

// ErrUnavailable is returned when a connection cannot be acquired within
// the configured timeout. Drivers map it to exit code 3.
var ErrUnavailable = errors.New("database unavailable")

// Config holds database configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Connection pool settings. The loader requires between MinConns and
	// MaxConns live connections.
	MinConns int32
	MaxConns int32

	// AcquireTimeout bounds waiting for a pooled connection before
	// ErrUnavailable is returned.
	AcquireTimeout time.Duration
}

// DSN builds a pgx-compatible connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Address implements the validator's DatabaseConfig view.
func (c Config) Address() (string, int) { return c.Host, c.Port }

// DatabaseName implements the validator's DatabaseConfig view.
func (c Config) DatabaseName() string { return c.Database }

// Username implements the validator's DatabaseConfig view.
func (c Config) Username() string { return c.User }

// Pool wraps pgxpool with acquire-timeout semantics and carries its config.
type Pool struct {
	*pgxpool.Pool
	cfg Config
}

// Config returns the pool's configuration.
func (p *Pool) Config() Config { return p.cfg }

// NewPool connects, configures pooling, and applies migrations.
func NewPool(ctx context.Context, cfg Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping failed: %v", ErrUnavailable, err)
	}

	// Migrations run over database/sql; golang-migrate owns that
	// connection and it is closed before the pool is handed out.
	db, err := stdsql.Open("pgx", cfg.DSN())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("opening migration connection: %w", err)
	}
	if err := runMigrations(ctx, db, cfg); err != nil {
		_ = db.Close()
		pool.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}
	if err := db.Close(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("closing migration connection: %w", err)
	}

	if err := CreateGINIndexes(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating GIN indexes: %w", err)
	}

	return &Pool{Pool: pool, cfg: cfg}, nil
}

// AcquireTimeout returns the configured acquire timeout, defaulted when
// unset.
func (p *Pool) AcquireTimeout() time.Duration {
	if p.cfg.AcquireTimeout > 0 {
		return p.cfg.AcquireTimeout
	}
	return 10 * time.Second
}

// Begin starts a transaction on a pooled connection, honoring the acquire
// timeout. Failure to obtain a connection in time maps to ErrUnavailable.
func (p *Pool) Begin(ctx context.Context) (Tx, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, p.AcquireTimeout())
	defer cancel()

	conn, err := p.Pool.Acquire(acquireCtx)
	if err != nil {
		if acquireCtx.Err() != nil && ctx.Err() == nil {
			return Tx{}, fmt.Errorf("%w: acquire timed out after %s", ErrUnavailable, p.AcquireTimeout())
		}
		return Tx{}, fmt.Errorf("acquiring connection: %w", err)
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()
		return Tx{}, fmt.Errorf("beginning transaction: %w", err)
	}
	return Tx{tx: tx, conn: conn}, nil
}
