package scribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperWorkerProcess is not a real test. It stands in for the worker
// subcommand when re-executed by ExecSpawner.
func TestHelperWorkerProcess(t *testing.T) {
	if os.Getenv("SCRIBE_WANT_HELPER_PROCESS") != "1" {
		return
	}
	if os.Getenv("SCRIBE_HELPER_FAIL") == "1" {
		fmt.Fprintln(os.Stderr, "worker exploded")
		os.Exit(3)
	}
	if os.Getenv("SCRIBE_HELPER_PARTIAL") == "1" {
		m := Metrics{RunID: "run_helper", TotalChars: 2, Writers: []WriterMetrics{
			{Chars: 2, State: StateFailed, Error: "insertion: replica unavailable"},
		}}
		_ = json.NewEncoder(os.Stdout).Encode(m)
		os.Exit(1)
	}
	fmt.Println("worker log line")
	m := Metrics{RunID: "run_helper", TotalChars: 3, Writers: []WriterMetrics{{Chars: 3, State: StateDone}}}
	_ = json.NewEncoder(os.Stdout).Encode(m)
	os.Exit(0)
}

func helperSpawner(env ...string) *ExecSpawner {
	return &ExecSpawner{
		Path:      os.Args[0],
		Prefix:    []string{"-test.run=^TestHelperWorkerProcess$", "--"},
		ServerURL: "http://127.0.0.1:1",
		Env:       append([]string{"SCRIBE_WANT_HELPER_PROCESS=1"}, env...),
		Stderr:    io.Discard,
	}
}

func TestPositionalRoundTrip(t *testing.T) {
	args := WorkerArgs{DocumentID: "doc_1", IntervalMs: 25, ChunkCount: 7, ProcessIndex: 2}
	assert.Equal(t, []string{"doc_1", "25", "7", "2"}, args.Positional())

	got, err := ParsePositional(args.Positional())
	require.NoError(t, err)
	assert.Equal(t, args, got)
}

func TestParsePositionalRejectsBadInput(t *testing.T) {
	cases := [][]string{
		{"doc", "10", "3"},
		{"doc", "abc", "3", "0"},
		{"doc", "0", "3", "0"},
		{"doc", "10", "0", "0"},
		{"doc", "10", "3", "-1"},
	}
	for _, c := range cases {
		_, err := ParsePositional(c)
		assert.True(t, IsConfigError(err), "%v", c)
	}
}

func TestExecSpawnerCommandLine(t *testing.T) {
	s := &ExecSpawner{
		Path:      "/usr/local/bin/scribe",
		Prefix:    []string{"--log-level", "debug", "--otel-enabled", "--otel-endpoint", "localhost:4318"},
		ServerURL: "http://127.0.0.1:7070",
	}
	cmd := s.Command(context.Background(), WorkerArgs{
		DocumentID: "doc_1", IntervalMs: 50, ChunkCount: 4, ProcessIndex: 1,
		ProcessCount: 2, ControlMapID: "map_c", RunID: "run_x",
	})
	assert.Equal(t, []string{
		"/usr/local/bin/scribe",
		"--log-level", "debug", "--otel-enabled", "--otel-endpoint", "localhost:4318",
		"worker",
		"--server", "http://127.0.0.1:7070",
		"--control-map", "map_c",
		"--processes", "2",
		"--run-id", "run_x",
		"doc_1", "50", "4", "1",
	}, cmd.Args)
}

func TestExecSpawnerReadsWorkerMetrics(t *testing.T) {
	m, err := helperSpawner().Spawn(context.Background(), WorkerArgs{DocumentID: "doc_1", IntervalMs: 1, ChunkCount: 1})
	require.NoError(t, err)
	assert.Equal(t, "run_helper", m.RunID)
	require.Len(t, m.Writers, 1)
	assert.Equal(t, 3, m.Writers[0].Chars)
}

func TestExecSpawnerFailureIsSpawnError(t *testing.T) {
	_, err := helperSpawner("SCRIBE_HELPER_FAIL=1").Spawn(context.Background(), WorkerArgs{DocumentID: "doc_1", IntervalMs: 1, ChunkCount: 1})
	require.Error(t, err)
	assert.True(t, IsSpawnError(err))
}

func TestExecSpawnerKeepsPartialMetricsOfFailedWorker(t *testing.T) {
	m, err := helperSpawner("SCRIBE_HELPER_PARTIAL=1").Spawn(context.Background(), WorkerArgs{DocumentID: "doc_1", IntervalMs: 1, ChunkCount: 1})
	require.Error(t, err)
	assert.True(t, IsSpawnError(err))
	require.NotNil(t, m)
	require.Len(t, m.Writers, 1)
	assert.Equal(t, 2, m.Writers[0].Chars)
	assert.Equal(t, StateFailed, m.Writers[0].State)
}

func TestWorkerShards(t *testing.T) {
	boom := errors.New("exit status 1")

	got := workerShards(2, nil, boom)
	require.Len(t, got, 1)
	assert.Equal(t, WriterMetrics{Process: 2, State: StateFailed, Error: "exit status 1"}, got[0])

	got = workerShards(1, &Metrics{Writers: []WriterMetrics{{Chars: 4, State: StateDone}}}, boom)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Process)
	assert.Equal(t, 4, got[0].Chars)
	assert.Equal(t, StateFailed, got[0].State)
	assert.Equal(t, "exit status 1", got[0].Error)

	got = workerShards(0, &Metrics{Writers: []WriterMetrics{{Chars: 1, State: StateFailed, Error: "insertion"}}}, boom)
	assert.Equal(t, "insertion", got[0].Error)

	got = workerShards(0, &Metrics{Writers: []WriterMetrics{{Chars: 3, State: StateDone}}}, nil)
	assert.Equal(t, StateDone, got[0].State)
}

func TestDecodeWorkerMetricsNeedsOutput(t *testing.T) {
	_, err := decodeWorkerMetrics([]byte("  \n"))
	assert.Error(t, err)
	_, err = decodeWorkerMetrics([]byte("not json\n"))
	assert.Error(t, err)
}
