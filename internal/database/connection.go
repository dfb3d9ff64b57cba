// Package database opens the Postgres pool and applies schema migrations.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phuslu/log"
)

const (
	defaultConnLifetime  = time.Hour
	defaultHealthCheck   = 30 * time.Second
	defaultPingAttempts  = 5
	defaultPingFirstWait = 250 * time.Millisecond
)

// Config describes the pool. Zero values keep the pgx or package defaults.
type Config struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// PingAttempts is how many times the first ping is tried before giving
	// up, so the server can start alongside a database that is still booting.
	PingAttempts uint64
}

// NewPool creates a pgx pool and waits until the database answers a ping.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	poolConfig.MaxConnLifetime = defaultConnLifetime
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	poolConfig.HealthCheckPeriod = defaultHealthCheck

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := waitForPing(ctx, pool, cfg.PingAttempts); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Debug().
		Int32("max_conns", poolConfig.MaxConns).
		Str("host", poolConfig.ConnConfig.Host).
		Msg("database: pool ready")
	return pool, nil
}

func waitForPing(ctx context.Context, pool *pgxpool.Pool, attempts uint64) error {
	if attempts == 0 {
		attempts = defaultPingAttempts
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(backoff.WithInitialInterval(defaultPingFirstWait)),
			attempts-1,
		),
		ctx,
	)
	return backoff.RetryNotify(
		func() error { return pool.Ping(ctx) },
		policy,
		func(err error, wait time.Duration) {
			log.Warn().Err(err).Dur("retry_in", wait).Msg("database: not ready")
		},
	)
}
