package scribe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/scribe/internal/chunk"
	"github.com/user/scribe/internal/document"
)

// WriterState is the lifecycle state of a writer.
type WriterState string

const (
	StateIdle   WriterState = "idle"
	StateTyping WriterState = "typing"
	StatePaused WriterState = "paused"
	StateDone   WriterState = "done"
	StateFailed WriterState = "failed"
)

// WriterConfig configures a Writer.
type WriterConfig struct {
	ID       int
	Process  int
	RunID    string
	Chunks   []chunk.Chunk
	Doc      document.TextDocument
	Interval time.Duration
	Playback *Playback
	// Turn serialises resolve+insert for documents that are not AnchoredInserters.
	Turn     *sync.Mutex
	Sink     SampleSink
	Observer Observer
	Logger   *slog.Logger
}

// Writer types its chunks one character per tick, each immediately before the
// chunk's paragraph marker.
type Writer struct {
	cfg   WriterConfig
	state atomic.Value
	seq   uint64
}

func NewWriter(cfg WriterConfig) *Writer {
	if cfg.Playback == nil {
		cfg.Playback = NewPlayback()
	}
	if cfg.Turn == nil {
		cfg.Turn = &sync.Mutex{}
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	w := &Writer{cfg: cfg}
	w.state.Store(StateIdle)
	return w
}

func (w *Writer) State() WriterState {
	return w.state.Load().(WriterState)
}

func (w *Writer) setState(s WriterState) {
	w.state.Store(s)
}

// Run types until every chunk is complete, an insertion fails or ctx is
// cancelled. The returned metrics are valid in every case.
func (w *Writer) Run(ctx context.Context) (WriterMetrics, error) {
	cfg := w.cfg
	m := WriterMetrics{
		Writer:  cfg.ID,
		Process: cfg.Process,
		Chunks:  make([]int, 0, len(cfg.Chunks)),
		Started: time.Now(),
	}
	for _, c := range cfg.Chunks {
		m.Chunks = append(m.Chunks, c.Index)
	}

	if cfg.Interval <= 0 {
		err := NewConfigError(fmt.Sprintf("writer %d: interval must be > 0", cfg.ID))
		return w.fail(m, err), err
	}

	w.setState(StateTyping)
	cfg.Observer.WriterStarted()
	log := cfg.Logger.With("run_id", cfg.RunID, "process", cfg.Process, "writer", cfg.ID)
	log.Debug("writer started", "chunks", len(cfg.Chunks))

	ci := 0
	var pending []rune
	offset := 0
	load := func() {
		for ci < len(cfg.Chunks) {
			if pending == nil {
				pending = []rune(cfg.Chunks[ci].Text)
				offset = 0
			}
			if offset < len(pending) {
				return
			}
			m.ChunksCompleted++
			ci++
			pending = nil
		}
	}
	load()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	last := m.Started

	for ci < len(cfg.Chunks) {
		select {
		case <-ctx.Done():
			return w.fail(m, ctx.Err()), ctx.Err()
		case <-ticker.C:
		}

		if !cfg.Playback.Playing() {
			w.setState(StatePaused)
			m.PausedTicks++
			cfg.Observer.PausedTick()
			continue
		}
		w.setState(StateTyping)

		c := cfg.Chunks[ci]
		ch := string(pending[offset])
		if err := w.insert(ctx, c.Key(), ch); err != nil {
			cfg.Observer.InsertFailed()
			ierr := NewInsertionError(fmt.Sprintf("writer %d: chunk %d offset %d", cfg.ID, c.Index, offset), err)
			log.Warn("insertion failed", "chunk", c.Index, "offset", offset, "error", err)
			return w.fail(m, ierr), ierr
		}

		now := time.Now()
		gap := now.Sub(last)
		last = now
		m.Chars++
		m.Latencies = append(m.Latencies, gap)
		cfg.Observer.Inserted(gap)
		if cfg.Sink != nil {
			w.seq++
			s := Sample{Writer: cfg.ID, Seq: w.seq, Chunk: c.Index, Offset: offset, Gap: gap, At: now}
			if err := cfg.Sink.Record(cfg.RunID, s); err != nil {
				log.Warn("record sample failed", "error", err)
			}
		}

		offset++
		load()
	}

	m.State = StateDone
	m.Finished = time.Now()
	w.setState(StateDone)
	cfg.Observer.WriterFinished(StateDone)
	log.Debug("writer done", "chars", m.Chars, "elapsed", m.Finished.Sub(m.Started))
	return m, nil
}

func (w *Writer) fail(m WriterMetrics, err error) WriterMetrics {
	m.State = StateFailed
	m.Error = err.Error()
	m.Finished = time.Now()
	w.setState(StateFailed)
	w.cfg.Observer.WriterFinished(StateFailed)
	return m
}

// insert places text immediately before the marker, resolving its position now.
func (w *Writer) insert(ctx context.Context, markerID, text string) error {
	if ai, ok := w.cfg.Doc.(document.AnchoredInserter); ok {
		return ai.InsertBefore(ctx, markerID, text)
	}
	w.cfg.Turn.Lock()
	defer w.cfg.Turn.Unlock()
	pos, err := w.cfg.Doc.MarkerPosition(ctx, markerID)
	if err != nil {
		return fmt.Errorf("resolve marker %s: %w", markerID, err)
	}
	return w.cfg.Doc.InsertText(ctx, pos, text)
}
