// Package report keeps a history of run summaries in SQLite or PostgreSQL.
package report

import (
	"context"
	"embed"
	"errors"
	"strings"
	"time"

	"github.com/user/scribe/internal/scribe"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound is returned by Get for an unknown run.
var ErrNotFound = errors.New("run not found")

// Run is one saved run summary.
type Run struct {
	ID            string        `json:"id"`
	DocumentID    string        `json:"document_id"`
	StartedAt     time.Time     `json:"started_at"`
	Writers       int           `json:"writers"`
	Processes     int           `json:"processes"`
	Interval      time.Duration `json:"interval"`
	Chunks        int           `json:"chunks"`
	Chars         int           `json:"chars"`
	Elapsed       time.Duration `json:"elapsed"`
	CharsPerSec   float64       `json:"chars_per_sec"`
	P50           time.Duration `json:"p50"`
	P90           time.Duration `json:"p90"`
	P99           time.Duration `json:"p99"`
	FailedWriters int           `json:"failed_writers"`
	Verified      bool          `json:"verified"`
}

// FromMetrics builds a Run from a finished run's metrics.
func FromMetrics(m *scribe.Metrics, sess scribe.Session, startedAt time.Time) Run {
	return Run{
		ID:            m.RunID,
		DocumentID:    m.DocumentID,
		StartedAt:     startedAt.UTC(),
		Writers:       sess.Writers,
		Processes:     sess.Processes,
		Interval:      sess.Interval,
		Chunks:        m.ChunkCount,
		Chars:         m.TotalChars,
		Elapsed:       m.Elapsed,
		CharsPerSec:   m.TypingRate,
		P50:           m.Latency.P50,
		P90:           m.Latency.P90,
		P99:           m.Latency.P99,
		FailedWriters: m.FailedWriters,
		Verified:      m.Verified,
	}
}

// Store saves and lists run summaries.
type Store interface {
	Save(ctx context.Context, r Run) error
	Get(ctx context.Context, id string) (Run, error)
	// List returns the most recent runs first.
	List(ctx context.Context, limit int) ([]Run, error)
	Close() error
}

// Open picks a backend from target: postgres:// and postgresql:// URLs use
// PostgreSQL, anything else is a SQLite file path.
func Open(ctx context.Context, target string) (Store, error) {
	if strings.HasPrefix(target, "postgres://") || strings.HasPrefix(target, "postgresql://") {
		return OpenPostgres(ctx, target)
	}
	return OpenSQLite(target)
}
