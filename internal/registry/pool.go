// Package registry is the optional Postgres-backed members registry
// (SPEC_FULL.md §9): it stores producer identities with their last-seen
// time so operators can discover who is actively publishing, independent
// of the snapshot protocol itself (spec.md §4.3's members stream is the
// wire-level heartbeat; this package does not read that stream, and rows
// reach it only through Registry.Heartbeat).
package registry

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

func NewPool(ctx context.Context, dsn string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	cfg.MaxConns = maxConns
	cfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
