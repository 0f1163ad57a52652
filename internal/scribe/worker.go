package scribe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/scribe/internal/document"
)

// WorkerConfig configures a worker process's share of a distributed run.
type WorkerConfig struct {
	Args     WorkerArgs
	Loader   document.Loader
	Runtime  document.Runtime
	Playback *Playback
	Sink     SampleSink
	Observer Observer
	Logger   *slog.Logger
}

// RunWorker binds to the run's document, reads its chunk range from the
// published chunk map and types it with a single writer.
func RunWorker(ctx context.Context, cfg WorkerConfig) (*Metrics, error) {
	a := cfg.Args
	if a.ProcessCount < 1 || a.ProcessIndex >= a.ProcessCount {
		return nil, NewConfigError(fmt.Sprintf("process index %d out of range for %d processes", a.ProcessIndex, a.ProcessCount))
	}
	if a.IntervalMs <= 0 {
		return nil, NewConfigError(fmt.Sprintf("interval must be > 0, got %dms", a.IntervalMs))
	}
	if cfg.Runtime == nil {
		return nil, NewConfigError("worker needs a runtime")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "scribe.worker", trace.WithAttributes(
		attribute.String("scribe.run_id", a.RunID),
		attribute.Int("scribe.process", a.ProcessIndex),
	))
	defer span.End()

	doc, text, err := acquireText(ctx, cfg.Loader, a.DocumentID)
	if err != nil {
		return nil, err
	}
	control, err := cfg.Runtime.OpenMap(ctx, a.ControlMapID)
	if err != nil {
		return nil, fmt.Errorf("open control map: %w", err)
	}
	chunkMapID, err := control.Get(ctx, ControlKeyChunks)
	if err != nil {
		return nil, fmt.Errorf("read chunk map id: %w", err)
	}
	chunkMap, err := cfg.Runtime.OpenMap(ctx, chunkMapID)
	if err != nil {
		return nil, fmt.Errorf("open chunk map: %w", err)
	}

	r := Ranges(a.ChunkCount, a.ProcessCount)[a.ProcessIndex]
	chunks, err := LoadChunks(ctx, chunkMap, r)
	if err != nil {
		return nil, err
	}
	log.Info("worker started",
		"run_id", a.RunID,
		"document", doc.ID(),
		"process", a.ProcessIndex,
		"chunks", fmt.Sprintf("[%d,%d)", r.Start, r.End),
	)

	w := NewWriter(WriterConfig{
		ID:       0,
		Process:  a.ProcessIndex,
		RunID:    a.RunID,
		Chunks:   chunks,
		Doc:      text,
		Interval: time.Duration(a.IntervalMs) * time.Millisecond,
		Playback: cfg.Playback,
		Sink:     cfg.Sink,
		Observer: cfg.Observer,
		Logger:   log,
	})
	start := time.Now()
	wm, werr := w.Run(ctx)

	m := &Metrics{
		RunID:      a.RunID,
		DocumentID: doc.ID(),
		ChunkCount: a.ChunkCount,
	}
	m.Add(wm)
	m.Finish(time.Since(start))
	m.Final = true
	return m, werr
}
