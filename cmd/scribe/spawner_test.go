package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/scribe/internal/metrics"
	"github.com/user/scribe/internal/scribe"
)

type countingSink struct {
	mu sync.Mutex
	n  int
}

func (s *countingSink) Record(string, scribe.Sample) error {
	s.mu.Lock()
	s.n++
	s.mu.Unlock()
	return nil
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

func TestGoroutineWorkersShareRunPlayback(t *testing.T) {
	resetFlags(rootCmd)
	runSpawn = "goroutine"
	t.Cleanup(func() { resetFlags(rootCmd) })

	ctx := context.Background()
	be, err := openBackend(ctx, runOptions{}, false)
	require.NoError(t, err)
	defer be.close()

	playback := scribe.NewPlayback()
	collector := metrics.NewCollector(nil)
	sink := &countingSink{}
	c := scribe.New(
		scribe.WithPlayback(playback),
		scribe.WithObserver(collector),
		scribe.WithSpawnInterval(time.Millisecond),
		scribe.WithSpawner(newSpawner(be, "run_test", workerDeps{playback: playback, observer: collector, sink: sink})),
	)

	type result struct {
		m   *scribe.Metrics
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := c.Type(ctx, scribe.TypeRequest{
			Loader:    be.loader,
			URL:       be.docID,
			Control:   be.control,
			Runtime:   be.runtime,
			Interval:  5 * time.Millisecond,
			Text:      "hello\nworld",
			Writers:   1,
			Processes: 2,
		})
		done <- result{m, err}
	}()

	require.Eventually(t, func() bool { return collector.Typed() >= 1 }, 2*time.Second, time.Millisecond)
	assert.False(t, c.TogglePlay(), "now paused")

	time.Sleep(15 * time.Millisecond)
	frozen := collector.Typed()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, frozen, collector.Typed(), "workers must not type while paused")
	assert.Less(t, frozen, int64(10))

	assert.True(t, c.TogglePlay(), "playing again")
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, 10, res.m.TotalChars)
	assert.Positive(t, res.m.PausedTicks)
	assert.True(t, res.m.Verified, "mismatches: %v", res.m.Mismatches)
	assert.Equal(t, int64(10), collector.Typed())
	assert.Equal(t, 10, sink.count())
}

func TestExecSpawnerForwardsTracingFlags(t *testing.T) {
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })
	logLevel = "debug"
	otelEnabled = true
	otelEndpoint = "collector:4318"

	sp := newSpawner(&backend{serverURL: "http://127.0.0.1:7070"}, "run_test", workerDeps{})
	es, ok := sp.(*scribe.ExecSpawner)
	require.True(t, ok)
	assert.Equal(t, []string{"--log-level", "debug", "--otel-enabled", "--otel-endpoint", "collector:4318"}, es.Prefix)
	assert.Equal(t, "http://127.0.0.1:7070", es.ServerURL)

	otelEnabled = false
	assert.Equal(t, []string{"--log-level", "debug"}, workerPrefix())
}
