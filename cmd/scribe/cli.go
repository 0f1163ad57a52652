package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/user/scribe/internal/scribe"
)

const serverEnv = "SCRIBE_SERVER"

// resolveServer returns the flag value, falling back to $SCRIBE_SERVER.
func resolveServer(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(serverEnv)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printLatency(w io.Writer, s scribe.LatencySummary) {
	if s.Count == 0 {
		fmt.Fprintln(w, "  no insertions")
		return
	}
	fmt.Fprintf(w, "  samples: %d\n", s.Count)
	fmt.Fprintf(w, "  avg:     %s\n", s.Avg.Round(time.Microsecond))
	fmt.Fprintf(w, "  p50:     %s\n", s.P50.Round(time.Microsecond))
	fmt.Fprintf(w, "  p90:     %s\n", s.P90.Round(time.Microsecond))
	fmt.Fprintf(w, "  p99:     %s\n", s.P99.Round(time.Microsecond))
	fmt.Fprintf(w, "  min:     %s\n", s.Min.Round(time.Microsecond))
	fmt.Fprintf(w, "  max:     %s\n", s.Max.Round(time.Microsecond))
	fmt.Fprintf(w, "  stddev:  %s\n", s.Stddev.Round(time.Microsecond))
}

func printMetrics(w io.Writer, m *scribe.Metrics) {
	fmt.Fprintf(w, "Run %s\n", m.RunID)
	fmt.Fprintf(w, "  document:  %s\n", m.DocumentID)
	fmt.Fprintf(w, "  chunks:    %d (%d markers)\n", m.ChunkCount, m.MarkerCount)
	fmt.Fprintf(w, "  chars:     %d\n", m.TotalChars)
	fmt.Fprintf(w, "  elapsed:   %s\n", m.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  chars/sec: %.1f\n", m.TypingRate)
	fmt.Fprintf(w, "  paused:    %d ticks\n", m.PausedTicks)
	fmt.Fprintf(w, "  failed:    %d writers\n", m.FailedWriters)
	fmt.Fprintf(w, "  verified:  %t\n", m.Verified)
	for _, mm := range m.Mismatches {
		fmt.Fprintf(w, "    %s\n", mm)
	}
	fmt.Fprintln(w, "Insert gaps")
	printLatency(w, m.Latency)
	for _, wm := range m.Writers {
		line := fmt.Sprintf("  writer %d/%d: %s, %d chars, %d chunks", wm.Process, wm.Writer, wm.State, wm.Chars, wm.ChunksCompleted)
		if wm.Error != "" {
			line += ": " + wm.Error
		}
		fmt.Fprintln(w, line)
	}
}

// printJSONLine writes v as a single JSON line, the worker output contract.
func printJSONLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
