// Package archive persists frozen session transcripts to PostgreSQL using pgx v5.
package archive

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/mudclient/internal/config"
)

// ErrPoolClosed is returned by Health once Close has been called.
var ErrPoolClosed = errors.New("archive pool closed")

// Pool is the transcript archive's connection pool.
type Pool struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
}

// NewPool connects to the archive database described by cfg and pings it.
//
// Precondition: cfg must contain valid database connection parameters and
// MinConns must not exceed MaxConns.
// Postcondition: Returns a connected Pool or a non-nil error. The pool is ready
// for queries upon successful return.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	if cfg.MaxConns > 0 && cfg.MinConns > cfg.MaxConns {
		return nil, fmt.Errorf("archive pool: min_conns %d exceeds max_conns %d", cfg.MinConns, cfg.MaxConns)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing archive database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating archive pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging archive database: %w", err)
	}
	return &Pool{pool: pool}, nil
}

// Health checks that the archive database answers within timeout.
//
// Precondition: timeout must be positive.
// Postcondition: Returns nil if the database responds within the timeout, and
// ErrPoolClosed after Close.
func (p *Pool) Health(ctx context.Context, timeout time.Duration) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("archive health: %w", err)
	}
	return nil
}

// Transcripts returns a repository backed by this pool.
//
// Precondition: The pool must not be closed.
func (p *Pool) Transcripts() *TranscriptRepository {
	return NewTranscriptRepository(p.pool)
}

// Close releases all pool resources. Calling it more than once is safe.
//
// Postcondition: The pool is no longer usable after calling Close.
func (p *Pool) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.pool.Close()
}

// DB returns the underlying pgxpool.Pool for use by repositories.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}
