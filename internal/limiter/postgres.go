package limiter

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG is a PostgreSQL-backed fixed-window limiter shared by all server instances.
type PG struct {
	pool   pgxQuerier
	window time.Duration
	max    int
	now    func() time.Time
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(q pgxQuerier, window time.Duration, max int) *PG {
	return &PG{pool: q, window: window, max: max, now: time.Now}
}

// Allow bumps the counter for key, restarting the window when it expired.
func (l *PG) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	const q = `
INSERT INTO create_limiter (key, window_start, count)
VALUES ($1, $2, 1)
ON CONFLICT (key) DO UPDATE
SET
  count = CASE WHEN $2 - create_limiter.window_start >= $3::interval THEN 1 ELSE create_limiter.count + 1 END,
  window_start = CASE WHEN $2 - create_limiter.window_start >= $3::interval THEN $2 ELSE create_limiter.window_start END
RETURNING window_start, count`
	var (
		start time.Time
		count int
	)
	if err := l.pool.QueryRow(ctx, q, key, now, l.window).Scan(&start, &count); err != nil {
		return false, 0, err
	}
	if count > l.max {
		return false, start.Add(l.window).Sub(now), nil
	}
	return true, 0, nil
}
