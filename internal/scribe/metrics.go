package scribe

import (
	"math"
	"slices"
	"time"
)

// Sample is one timed insertion.
type Sample struct {
	Writer int           `json:"writer"`
	Seq    uint64        `json:"seq"`
	Chunk  int           `json:"chunk"`
	Offset int           `json:"offset"`
	Gap    time.Duration `json:"gap"`
	At     time.Time     `json:"at"`
}

// SampleSink receives every insertion sample of a run.
type SampleSink interface {
	Record(runID string, s Sample) error
}

// Observer is notified of writer activity. Implementations must be safe for
// concurrent use.
type Observer interface {
	WriterStarted()
	WriterFinished(state WriterState)
	Inserted(gap time.Duration)
	InsertFailed()
	PausedTick()
}

// WriterMetrics is the metrics shard owned by one writer.
type WriterMetrics struct {
	Writer          int             `json:"writer"`
	Process         int             `json:"process"`
	Chunks          []int           `json:"chunks"`
	ChunksCompleted int             `json:"chunks_completed"`
	Chars           int             `json:"chars"`
	PausedTicks     int             `json:"paused_ticks"`
	State           WriterState     `json:"state"`
	Error           string          `json:"error,omitempty"`
	Started         time.Time       `json:"started"`
	Finished        time.Time       `json:"finished"`
	Latencies       []time.Duration `json:"latencies,omitempty"`
}

// LatencySummary describes the gaps between consecutive insertions.
type LatencySummary struct {
	Count  int           `json:"count"`
	Avg    time.Duration `json:"avg"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P99    time.Duration `json:"p99"`
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Stddev time.Duration `json:"stddev"`
}

// Metrics is the aggregate of a run.
type Metrics struct {
	RunID           string          `json:"run_id"`
	DocumentID      string          `json:"document_id"`
	ChunkCount      int             `json:"chunk_count"`
	MarkerCount     int             `json:"marker_count"`
	TotalChars      int             `json:"total_chars"`
	ChunksCompleted int             `json:"chunks_completed"`
	PausedTicks     int             `json:"paused_ticks"`
	FailedWriters   int             `json:"failed_writers"`
	Elapsed         time.Duration   `json:"elapsed"`
	TypingRate      float64         `json:"typing_rate"`
	Latency         LatencySummary  `json:"latency"`
	Writers         []WriterMetrics `json:"writers"`
	Verified        bool            `json:"verified"`
	Mismatches      []string        `json:"mismatches,omitempty"`
	Final           bool            `json:"final"`
}

// Add merges a writer shard into the aggregate.
func (m *Metrics) Add(w WriterMetrics) {
	m.Writers = append(m.Writers, w)
	m.TotalChars += w.Chars
	m.ChunksCompleted += w.ChunksCompleted
	m.PausedTicks += w.PausedTicks
	if w.State == StateFailed {
		m.FailedWriters++
	}
}

// Finish computes the derived fields from the merged shards.
func (m *Metrics) Finish(elapsed time.Duration) {
	m.Elapsed = elapsed
	if elapsed > 0 {
		m.TypingRate = float64(m.TotalChars) / elapsed.Seconds()
	}
	var lats []time.Duration
	for _, w := range m.Writers {
		lats = append(lats, w.Latencies...)
	}
	m.Latency = Summarize(lats)
}

// Snapshot returns a copy safe to hand to callbacks.
func (m *Metrics) Snapshot() Metrics {
	out := *m
	out.Writers = slices.Clone(m.Writers)
	out.Mismatches = slices.Clone(m.Mismatches)
	return out
}

// Summarize computes latency percentiles. lats is not modified.
func Summarize(lats []time.Duration) LatencySummary {
	if len(lats) == 0 {
		return LatencySummary{}
	}
	sorted := slices.Clone(lats)
	slices.Sort(sorted)

	n := len(sorted)
	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	avg := sum / time.Duration(n)

	var sq float64
	for _, l := range sorted {
		d := float64(l - avg)
		sq += d * d
	}
	stddev := time.Duration(math.Sqrt(sq / float64(n)))

	return LatencySummary{
		Count:  n,
		Avg:    avg,
		P50:    sorted[percentileIndex(n, 50)],
		P90:    sorted[percentileIndex(n, 90)],
		P99:    sorted[percentileIndex(n, 99)],
		Min:    sorted[0],
		Max:    sorted[n-1],
		Stddev: stddev,
	}
}

func percentileIndex(n, p int) int {
	if n <= 1 {
		return 0
	}
	if p <= 0 {
		return 0
	}
	if p >= 100 {
		return n - 1
	}
	rank := int(math.Ceil(float64(p) / 100.0 * float64(n)))
	idx := rank - 1
	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}

type nopObserver struct{}

func (nopObserver) WriterStarted()             {}
func (nopObserver) WriterFinished(WriterState) {}
func (nopObserver) Inserted(time.Duration)     {}
func (nopObserver) InsertFailed()              {}
func (nopObserver) PausedTick()                {}
