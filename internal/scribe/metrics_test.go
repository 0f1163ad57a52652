package scribe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	var lats []time.Duration
	for i := 1; i <= 100; i++ {
		lats = append(lats, time.Duration(i)*time.Millisecond)
	}
	s := Summarize(lats)
	assert.Equal(t, 100, s.Count)
	assert.Equal(t, time.Millisecond, s.Min)
	assert.Equal(t, 100*time.Millisecond, s.Max)
	assert.Equal(t, 50*time.Millisecond, s.P50)
	assert.Equal(t, 90*time.Millisecond, s.P90)
	assert.Equal(t, 99*time.Millisecond, s.P99)
	assert.Equal(t, 50500*time.Microsecond, s.Avg)
	assert.Equal(t, time.Millisecond, lats[0], "input must not be reordered")
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Equal(t, LatencySummary{}, Summarize(nil))
}

func TestMetricsAddAndFinish(t *testing.T) {
	var m Metrics
	m.Add(WriterMetrics{Chars: 4, ChunksCompleted: 1, State: StateDone, Latencies: []time.Duration{time.Millisecond, 3 * time.Millisecond}})
	m.Add(WriterMetrics{Chars: 6, ChunksCompleted: 2, PausedTicks: 3, State: StateFailed})
	m.Finish(2 * time.Second)

	assert.Equal(t, 10, m.TotalChars)
	assert.Equal(t, 3, m.ChunksCompleted)
	assert.Equal(t, 3, m.PausedTicks)
	assert.Equal(t, 1, m.FailedWriters)
	assert.InDelta(t, 5.0, m.TypingRate, 0.001)
	assert.Equal(t, 2, m.Latency.Count)
	assert.Equal(t, 2*time.Millisecond, m.Latency.Avg)
}
