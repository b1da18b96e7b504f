package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Member is one row of the members table: a producer identity and the
// wall-clock time its last heartbeat was recorded.
type Member struct {
	Identity string
	LastSeen time.Time
}

type Registry struct {
	pool      *pgxpool.Pool
	retention time.Duration
	logger    *zap.Logger
}

func New(pool *pgxpool.Pool, retention time.Duration, logger *zap.Logger) *Registry {
	return &Registry{pool: pool, retention: retention, logger: logger}
}

func (r *Registry) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Heartbeat upserts the last-seen time for identity. Nothing in this
// repository calls it: no process here reads the members stream's
// heartbeat records (spec.md §4.3) into the registry. The wire protocol
// itself never touches Postgres.
func (r *Registry) Heartbeat(ctx context.Context, identity string, seenAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO members (identity, last_seen) VALUES ($1, $2)
		ON CONFLICT (identity) DO UPDATE SET last_seen = EXCLUDED.last_seen
	`, identity, seenAt)
	if err != nil {
		return fmt.Errorf("registry: recording heartbeat for %q: %w", identity, err)
	}
	return nil
}

// ListActive returns every member whose last heartbeat is within the
// configured retention window, most recently seen first.
func (r *Registry) ListActive(ctx context.Context) ([]Member, error) {
	cutoff := time.Now().Add(-r.retention)
	rows, err := r.pool.Query(ctx,
		`SELECT identity, last_seen FROM members WHERE last_seen >= $1 ORDER BY last_seen DESC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("registry: listing active members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.Identity, &m.LastSeen); err != nil {
			return nil, fmt.Errorf("registry: scanning member row: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry: iterating member rows: %w", err)
	}
	return members, nil
}

// Sweep deletes members whose last heartbeat is older than the retention
// window. Where the teacher's maintenance package drops whole daily
// partitions, a heartbeat table is small enough that a plain row delete
// is the idiomatic equivalent.
func (r *Registry) Sweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-r.retention)
	tag, err := r.pool.Exec(ctx, `DELETE FROM members WHERE last_seen < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("registry: sweeping stale members: %w", err)
	}
	n := tag.RowsAffected()
	if n > 0 {
		r.logger.Info("swept stale producer registrations", zap.Int64("count", n))
	}
	return n, nil
}
