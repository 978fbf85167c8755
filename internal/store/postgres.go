package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spot-Canvas/gameledger/internal/domain"
)

// DBConfig holds configuration for the PostgreSQL connection pool.
type DBConfig struct {
	// URL is the PostgreSQL connection string.
	URL string

	// MaxConns bounds the number of pooled connections.
	// Default: 5
	MaxConns int32

	// AcquireTimeout is how long a request waits for a free connection
	// before failing with domain.ErrUnavailable.
	// Default: 2 seconds
	AcquireTimeout time.Duration

	// MaxConnLifetime is the maximum amount of time a connection may be reused.
	// Default: 30 minutes
	MaxConnLifetime time.Duration
}

// DefaultDBConfig returns a DBConfig with defaults for the given URL.
func DefaultDBConfig(url string) DBConfig {
	return DBConfig{
		URL:             url,
		MaxConns:        5,
		AcquireTimeout:  2 * time.Second,
		MaxConnLifetime: 30 * time.Minute,
	}
}

// Repository provides database access for the gameledger service.
type Repository struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
}

// NewRepository creates a new Repository with a bounded connection pool.
// The caller owns the repository and must Close it at shutdown.
func NewRepository(ctx context.Context, cfg DBConfig) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	timeout := cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Repository{pool: pool, acquireTimeout: timeout}, nil
}

// Pool returns the underlying connection pool (for migration runner).
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.withConn(ctx, func(conn *pgxpool.Conn) error {
		return conn.Ping(ctx)
	})
}

// Close drains and closes the connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// acquire takes a connection from the pool, waiting at most acquireTimeout.
func (r *Repository) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, r.acquireTimeout)
	defer cancel()

	conn, err := r.pool.Acquire(acquireCtx)
	if err != nil {
		return nil, unavailable(ctx, err)
	}
	return conn, nil
}

// unavailable classifies an acquisition failure. A cancelled caller context is
// returned as-is; pool exhaustion and connect failures become ErrUnavailable.
func unavailable(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("acquire connection: %w", ctx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return fmt.Errorf("acquire connection: pool exhausted: %w", domain.ErrUnavailable)
	}
	return fmt.Errorf("acquire connection: %w: %w", domain.ErrUnavailable, err)
}

// withConn runs fn on a pooled connection and releases it on every exit path.
func (r *Repository) withConn(ctx context.Context, fn func(conn *pgxpool.Conn) error) error {
	conn, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	return fn(conn)
}

// withTx runs fn inside a database transaction on a pooled connection.
// The transaction is committed when fn returns nil and rolled back otherwise.
func (r *Repository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return r.withConn(ctx, func(conn *pgxpool.Conn) error {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}
