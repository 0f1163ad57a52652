package scribe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/scribe/internal/chunk"
	"github.com/user/scribe/internal/document"
)

const tracerName = "github.com/user/scribe/internal/scribe"

// DefaultSpawnInterval paces worker process launches.
const DefaultSpawnInterval = 500 * time.Millisecond

// MetricsCallback receives a running aggregate each time a writer shard
// completes and the final aggregate (Final set) when the run ends.
type MetricsCallback func(Metrics)

// TypeRequest describes one typing run.
type TypeRequest struct {
	Loader      document.Loader
	URL         string
	Control     document.SharedMap
	Runtime     document.Runtime
	Interval    time.Duration
	Text        string
	Writers     int
	Processes   int
	Callback    MetricsCallback
	Distributed bool
}

func (r TypeRequest) session() Session {
	return Session{
		Interval:    r.Interval,
		Writers:     r.Writers,
		Processes:   r.Processes,
		Distributed: r.Distributed,
	}
}

// Conductor orchestrates typing runs. A Conductor drives one run at a time;
// its playback flag is reset to playing when a run starts.
type Conductor struct {
	playback      *Playback
	spawner       Spawner
	spawnInterval time.Duration
	maxSpawn      int
	sink          SampleSink
	observer      Observer
	logger        *slog.Logger
	tracer        trace.Tracer
	verify        bool
	runID         string
}

// Option configures a Conductor.
type Option func(*Conductor)

// WithSpawner sets the process spawner used when Processes > 1.
func WithSpawner(s Spawner) Option {
	return func(c *Conductor) { c.spawner = s }
}

// WithSpawnInterval sets the minimum gap between worker launches.
func WithSpawnInterval(d time.Duration) Option {
	return func(c *Conductor) { c.spawnInterval = d }
}

// WithMaxConcurrentProcesses bounds how many workers run at once. Zero means
// all of them.
func WithMaxConcurrentProcesses(n int) Option {
	return func(c *Conductor) { c.maxSpawn = n }
}

func WithSampleSink(s SampleSink) Option {
	return func(c *Conductor) { c.sink = s }
}

func WithObserver(o Observer) Option {
	return func(c *Conductor) { c.observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Conductor) { c.logger = l }
}

// WithVerify toggles the post-run paragraph check.
func WithVerify(v bool) Option {
	return func(c *Conductor) { c.verify = v }
}

// WithPlayback shares p as the run's pause flag, so writers started outside
// the Conductor (in-process workers) pause with it.
func WithPlayback(p *Playback) Option {
	return func(c *Conductor) {
		if p != nil {
			c.playback = p
		}
	}
}

// WithRunID fixes the run ID instead of generating one per run.
func WithRunID(id string) Option {
	return func(c *Conductor) { c.runID = id }
}

func New(opts ...Option) *Conductor {
	c := &Conductor{
		playback:      NewPlayback(),
		spawnInterval: DefaultSpawnInterval,
		observer:      nopObserver{},
		logger:        slog.Default(),
		tracer:        otel.Tracer(tracerName),
		verify:        true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TogglePlay flips the run between playing and paused and returns the new
// playing state.
func (c *Conductor) TogglePlay() bool {
	playing := c.playback.Toggle()
	c.logger.Info("playback toggled", "playing", playing)
	return playing
}

// Playback exposes the run's shared pause flag.
func (c *Conductor) Playback() *Playback { return c.playback }

// Type runs the typing workload described by req and returns the aggregate
// metrics. Setup failures abort before any character is typed; writer and
// spawn failures are recorded in the metrics.
func (c *Conductor) Type(ctx context.Context, req TypeRequest) (*Metrics, error) {
	sess := req.session()
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	if req.Control == nil || req.Runtime == nil {
		return nil, NewConfigError("control map and runtime are required")
	}
	if sess.Processes > 1 && c.spawner == nil {
		return nil, NewConfigError("distributed run needs a spawner")
	}

	runID := c.runID
	if runID == "" {
		runID = NewRunID()
	}
	log := c.logger.With("run_id", runID)
	if sess.Distributed {
		log.Info("distributed run", "processes", sess.Processes, "writers", sess.Writers)
	}

	ctx, span := c.tracer.Start(ctx, "scribe.type", trace.WithAttributes(
		attribute.String("scribe.run_id", runID),
		attribute.Int("scribe.writers", sess.Writers),
		attribute.Int("scribe.processes", sess.Processes),
		attribute.Int64("scribe.interval_ms", sess.Interval.Milliseconds()),
	))
	defer span.End()

	binding, chunks, err := c.setup(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	agg := &Metrics{
		RunID:       runID,
		DocumentID:  binding.Doc.ID(),
		ChunkCount:  len(chunks),
		MarkerCount: len(chunks) + 1,
	}
	log.Info("typing started",
		"document", agg.DocumentID,
		"chunks", agg.ChunkCount,
		"chars", chunk.TotalLen(chunks),
	)

	c.playback.Resume()
	start := time.Now()
	// mu is held across the callback so snapshots arrive one at a time, in
	// the order they were taken.
	var mu sync.Mutex
	report := func(shards ...WriterMetrics) {
		mu.Lock()
		defer mu.Unlock()
		for _, w := range shards {
			agg.Add(w)
		}
		snap := agg.Snapshot()
		snap.Finish(time.Since(start))
		if req.Callback != nil {
			req.Callback(snap)
		}
	}

	if sess.Processes == 1 {
		c.runLocal(ctx, runID, sess, binding, chunks, report)
	} else {
		c.runDistributed(ctx, runID, sess, req.Control, binding, len(chunks), report)
	}

	agg.Finish(time.Since(start))
	if c.verify && agg.FailedWriters == 0 && ctx.Err() == nil {
		agg.Mismatches, err = Verify(ctx, binding.Text, chunks)
		if err != nil {
			log.Warn("verify paragraphs failed", "error", err)
		} else {
			agg.Verified = len(agg.Mismatches) == 0
		}
	}
	agg.Final = true

	span.SetAttributes(
		attribute.Int("scribe.chars", agg.TotalChars),
		attribute.Int("scribe.failed_writers", agg.FailedWriters),
	)
	log.Info("typing finished",
		"chars", agg.TotalChars,
		"elapsed", agg.Elapsed,
		"chars_per_sec", fmt.Sprintf("%.1f", agg.TypingRate),
		"failed_writers", agg.FailedWriters,
		"verified", agg.Verified,
	)
	if req.Callback != nil {
		req.Callback(agg.Snapshot())
	}
	return agg, ctx.Err()
}

func (c *Conductor) setup(ctx context.Context, req TypeRequest) (*Binding, []chunk.Chunk, error) {
	ctx, span := c.tracer.Start(ctx, "scribe.setup")
	defer span.End()

	binding, err := Bind(ctx, req.Loader, req.Runtime, req.Control, req.URL)
	if err != nil {
		return nil, nil, err
	}
	chunks := chunk.Split(req.Text)
	if err := PublishChunks(ctx, binding.Chunks, chunks); err != nil {
		return nil, nil, err
	}
	if err := LayoutMarkers(ctx, binding.Text, len(chunks)); err != nil {
		return nil, nil, err
	}
	span.SetAttributes(attribute.Int("scribe.chunks", len(chunks)))
	return binding, chunks, nil
}

func (c *Conductor) runLocal(ctx context.Context, runID string, sess Session, b *Binding, chunks []chunk.Chunk, report func(...WriterMetrics)) {
	parts := Partition(chunks, sess.Writers)
	turn := &sync.Mutex{}
	var wg sync.WaitGroup
	for i, part := range parts {
		w := NewWriter(WriterConfig{
			ID:       i,
			RunID:    runID,
			Chunks:   part,
			Doc:      b.Text,
			Interval: sess.Interval,
			Playback: c.playback,
			Turn:     turn,
			Sink:     c.sink,
			Observer: c.observer,
			Logger:   c.logger,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			wctx, span := c.tracer.Start(ctx, "scribe.writer", trace.WithAttributes(
				attribute.Int("scribe.writer", i),
				attribute.Int("scribe.chunks", len(part)),
			))
			m, err := w.Run(wctx)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
			report(m)
		}()
	}
	wg.Wait()
}

// Verify compares the document's paragraphs with the chunks and returns a
// description of every difference.
func Verify(ctx context.Context, doc document.TextDocument, chunks []chunk.Chunk) ([]string, error) {
	paras, err := doc.Paragraphs(ctx)
	if err != nil {
		return nil, fmt.Errorf("read paragraphs: %w", err)
	}
	byMarker := make(map[string]string, len(paras))
	for _, p := range paras {
		byMarker[p.MarkerID] = p.Text
	}
	var mismatches []string
	for _, c := range chunks {
		got, ok := byMarker[c.Key()]
		switch {
		case !ok:
			mismatches = append(mismatches, fmt.Sprintf("%s: missing", c.Key()))
		case got != c.Text:
			mismatches = append(mismatches, fmt.Sprintf("%s: want %q, got %q", c.Key(), c.Text, got))
		}
	}
	if got := byMarker[chunk.FinalMarkerID]; got != "" {
		mismatches = append(mismatches, fmt.Sprintf("%s: want empty, got %q", chunk.FinalMarkerID, got))
	}
	return mismatches, nil
}
