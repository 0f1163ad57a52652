package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// startedAtLayout is fixed-width so started_at sorts as text.
const startedAtLayout = "2006-01-02T15:04:05.000000000Z"

type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the report database at path and applies
// pending migrations.
func OpenSQLite(path string) (Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create report dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", pragma, err)
		}
	}
	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("report database opened", "path", path)
	return s, nil
}

func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%f', 'now'))
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("get current migration version: %w", err)
	}
	if current >= 1 {
		return nil
	}

	sqlBytes, err := migrations.ReadFile("migrations/001_sqlite.sql")
	if err != nil {
		return fmt.Errorf("read migration 001: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(sqlBytes)); err != nil {
		return fmt.Errorf("execute migration 001: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", 1); err != nil {
		return fmt.Errorf("record migration 001: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration 001: %w", err)
	}
	slog.Info("applied report migration", "version", 1)
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Save(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs (
		id, document_id, started_at, writers, processes, interval_ms, chunks, chars,
		elapsed_ms, chars_per_sec, p50_us, p90_us, p99_us, failed_writers, verified
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.DocumentID, r.StartedAt.UTC().Format(startedAtLayout),
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

const sqliteSelect = `SELECT id, document_id, started_at, writers, processes, interval_ms, chunks,
	chars, elapsed_ms, chars_per_sec, p50_us, p90_us, p99_us, failed_writers, verified FROM runs`

func (s *sqliteStore) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelect+" WHERE id = ?", id)
	r, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

func (s *sqliteStore) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, sqliteSelect+" ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row scanner) (Run, error) {
	var (
		r                     Run
		startedAt             string
		intervalMs, elapsedMs int64
		p50, p90, p99         int64
	)
	err := row.Scan(&r.ID, &r.DocumentID, &startedAt, &r.Writers, &r.Processes, &intervalMs,
		&r.Chunks, &r.Chars, &elapsedMs, &r.CharsPerSec, &p50, &p90, &p99, &r.FailedWriters, &r.Verified)
	if err != nil {
		return Run{}, err
	}
	r.StartedAt, err = time.Parse(startedAtLayout, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	r.Interval = time.Duration(intervalMs) * time.Millisecond
	r.Elapsed = time.Duration(elapsedMs) * time.Millisecond
	r.P50 = time.Duration(p50) * time.Microsecond
	r.P90 = time.Duration(p90) * time.Microsecond
	r.P99 = time.Duration(p99) * time.Microsecond
	return r, nil
}
