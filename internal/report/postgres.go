package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and creates the runs table when missing.
func OpenPostgres(ctx context.Context, dsn string) (Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	ddl, err := migrations.ReadFile("migrations/001_postgres.sql")
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("read migration 001: %w", err)
	}
	if _, err := pool.Exec(ctx, string(ddl)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("execute migration 001: %w", err)
	}
	return &postgresStore{pool: pool}, nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *postgresStore) Save(ctx context.Context, r Run) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO scribe_runs (
		id, document_id, started_at, writers, processes, interval_ms, chunks, chars,
		elapsed_ms, chars_per_sec, p50_us, p90_us, p99_us, failed_writers, verified
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		r.ID, r.DocumentID, r.StartedAt.UTC(),
		r.Writers, r.Processes, r.Interval.Milliseconds(), r.Chunks, r.Chars,
		r.Elapsed.Milliseconds(), r.CharsPerSec,
		r.P50.Microseconds(), r.P90.Microseconds(), r.P99.Microseconds(),
		r.FailedWriters, r.Verified,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return nil
}

const postgresSelect = `SELECT id, document_id, started_at, writers, processes, interval_ms, chunks,
	chars, elapsed_ms, chars_per_sec, p50_us, p90_us, p99_us, failed_writers, verified FROM scribe_runs`

func (s *postgresStore) Get(ctx context.Context, id string) (Run, error) {
	r, err := scanPostgres(s.pool.QueryRow(ctx, postgresSelect+" WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

func (s *postgresStore) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, postgresSelect+" ORDER BY started_at DESC, id DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanPostgres(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanPostgres(row pgx.Row) (Run, error) {
	var (
		r                     Run
		intervalMs, elapsedMs int64
		p50, p90, p99         int64
	)
	err := row.Scan(&r.ID, &r.DocumentID, &r.StartedAt, &r.Writers, &r.Processes, &intervalMs,
		&r.Chunks, &r.Chars, &elapsedMs, &r.CharsPerSec, &p50, &p90, &p99, &r.FailedWriters, &r.Verified)
	if err != nil {
		return Run{}, err
	}
	r.Interval = time.Duration(intervalMs) * time.Millisecond
	r.Elapsed = time.Duration(elapsedMs) * time.Millisecond
	r.P50 = time.Duration(p50) * time.Microsecond
	r.P90 = time.Duration(p90) * time.Microsecond
	r.P99 = time.Duration(p99) * time.Microsecond
	return r, nil
}
