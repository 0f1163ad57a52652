package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/scribe/internal/scribe"
)

// resetFlags restores every flag to its default; flag values live in
// package vars and survive between Execute calls.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func runArgs(extra ...string) []string {
	base := []string{"run",
		"--interval", "1ms",
		"--writers", "1",
		"--processes", "1",
		"--progress", "0",
		"--spawn", "exec",
		"--json",
	}
	return append(base, extra...)
}

func TestRunInMemory(t *testing.T) {
	out, err := execute(t, runArgs("--text", "hello\nworld", "--writers", "2")...)
	require.NoError(t, err)

	var m scribe.Metrics
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.True(t, m.Final)
	assert.Equal(t, 2, m.ChunkCount)
	assert.Equal(t, 3, m.MarkerCount)
	assert.Equal(t, 10, m.TotalChars)
	assert.True(t, m.Verified)
	assert.Len(t, m.Writers, 2)
}

func TestRunGoroutineWorkers(t *testing.T) {
	out, err := execute(t, runArgs("--text", "ab\ncd\nef", "--processes", "2", "--spawn", "goroutine")...)
	require.NoError(t, err)

	var m scribe.Metrics
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, 6, m.TotalChars)
	assert.Equal(t, 0, m.FailedWriters)
	assert.True(t, m.Verified)
}

func TestRunSavesReportAndSamples(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "runs.db")
	sampleDir := filepath.Join(dir, "samples")

	out, err := execute(t, runArgs("--text", "hi",
		"--report-db", db,
		"--sample-store", "bolt",
		"--sample-dir", sampleDir,
	)...)
	require.NoError(t, err)
	var m scribe.Metrics
	require.NoError(t, json.Unmarshal([]byte(out), &m))

	out, err = execute(t, "history", "--report-db", db, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, m.RunID)

	out, err = execute(t, "history", "show", m.RunID,
		"--report-db", db,
		"--sample-store", "bolt",
		"--sample-dir", sampleDir,
		"--json",
	)
	require.NoError(t, err)
	var shown struct {
		Samples *scribe.LatencySummary `json:"samples"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	require.NotNil(t, shown.Samples)
	assert.Equal(t, 2, shown.Samples.Count)
}

func TestRunSessionFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "text.txt"), []byte("one\ntwo"), 0o644))
	session := filepath.Join(dir, "session.json")
	require.NoError(t, os.WriteFile(session, []byte(`{"text_file": "text.txt", "interval_ms": 1}`), 0o644))

	out, err := execute(t, "run", "--session", session, "--progress", "0", "--json")
	require.NoError(t, err)
	var m scribe.Metrics
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, 6, m.TotalChars)
}

func TestRunRejectsDocumentWithoutServer(t *testing.T) {
	_, err := execute(t, runArgs("--text", "x", "--document", "doc-1")...)
	require.Error(t, err)
}

func TestResolveServer(t *testing.T) {
	t.Setenv(serverEnv, "http://env:8090")
	assert.Equal(t, "http://flag:8090", resolveServer("http://flag:8090"))
	assert.Equal(t, "http://env:8090", resolveServer(""))
}

func TestRedactTarget(t *testing.T) {
	assert.Equal(t, "postgres://***", redactTarget("postgres://u:p@h/db"))
	assert.Equal(t, "runs.db", redactTarget("runs.db"))
}

func TestPrintMetrics(t *testing.T) {
	m := &scribe.Metrics{RunID: "run_1", TotalChars: 3, Writers: []scribe.WriterMetrics{
		{Writer: 0, State: scribe.StateFailed, Error: "insert failed"},
	}}
	var buf bytes.Buffer
	printMetrics(&buf, m)
	assert.Contains(t, buf.String(), "Run run_1")
	assert.Contains(t, buf.String(), "no insertions")
	assert.Contains(t, buf.String(), "insert failed")
}
