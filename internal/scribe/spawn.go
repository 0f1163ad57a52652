package scribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/user/scribe/internal/document"
	"github.com/user/scribe/internal/observability"
)

// WorkerArgs is everything a worker process needs to take part in a run.
// The first four fields form the positional command line.
type WorkerArgs struct {
	DocumentID   string
	IntervalMs   int64
	ChunkCount   int
	ProcessIndex int
	ProcessCount int
	ControlMapID string
	RunID        string
}

// Positional returns documentID, intervalMs, chunkCount and processIndex.
func (a WorkerArgs) Positional() []string {
	return []string{
		a.DocumentID,
		strconv.FormatInt(a.IntervalMs, 10),
		strconv.Itoa(a.ChunkCount),
		strconv.Itoa(a.ProcessIndex),
	}
}

// ParsePositional fills the positional fields from a worker command line.
func ParsePositional(args []string) (WorkerArgs, error) {
	if len(args) != 4 {
		return WorkerArgs{}, NewConfigError(fmt.Sprintf("want 4 worker arguments, got %d", len(args)))
	}
	interval, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || interval <= 0 {
		return WorkerArgs{}, NewConfigError(fmt.Sprintf("invalid interval %q", args[1]))
	}
	count, err := strconv.Atoi(args[2])
	if err != nil || count < 1 {
		return WorkerArgs{}, NewConfigError(fmt.Sprintf("invalid chunk count %q", args[2]))
	}
	idx, err := strconv.Atoi(args[3])
	if err != nil || idx < 0 {
		return WorkerArgs{}, NewConfigError(fmt.Sprintf("invalid process index %q", args[3]))
	}
	return WorkerArgs{
		DocumentID:   args[0],
		IntervalMs:   interval,
		ChunkCount:   count,
		ProcessIndex: idx,
	}, nil
}

// Spawner starts a worker and waits for its metrics. A worker that ran but
// failed returns its partial metrics together with the error.
type Spawner interface {
	Spawn(ctx context.Context, args WorkerArgs) (*Metrics, error)
}

// SpawnFunc adapts a function to Spawner.
type SpawnFunc func(ctx context.Context, args WorkerArgs) (*Metrics, error)

func (f SpawnFunc) Spawn(ctx context.Context, args WorkerArgs) (*Metrics, error) {
	return f(ctx, args)
}

// ExecSpawner runs each worker as a child process of Path. The child prints
// its Metrics as one JSON line on stdout.
type ExecSpawner struct {
	Path string
	// Prefix is placed before the worker subcommand.
	Prefix    []string
	ServerURL string
	Env       []string
	Stderr    io.Writer
}

// Command builds the child command for args.
func (s *ExecSpawner) Command(ctx context.Context, args WorkerArgs) *exec.Cmd {
	argv := append([]string{}, s.Prefix...)
	argv = append(argv, "worker",
		"--server", s.ServerURL,
		"--control-map", args.ControlMapID,
		"--processes", strconv.Itoa(args.ProcessCount),
	)
	if args.RunID != "" {
		argv = append(argv, "--run-id", args.RunID)
	}
	argv = append(argv, args.Positional()...)
	cmd := exec.CommandContext(ctx, s.Path, argv...)
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Env = append(cmd.Env, observability.TraceEnv(ctx)...)
	return cmd
}

func (s *ExecSpawner) Spawn(ctx context.Context, args WorkerArgs) (*Metrics, error) {
	cmd := s.Command(ctx, args)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = s.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Run(); err != nil {
		// A worker whose writer failed still prints its metrics before exiting.
		m, _ := decodeWorkerMetrics(stdout.Bytes())
		return m, NewSpawnError(fmt.Sprintf("worker %d", args.ProcessIndex), err)
	}
	m, err := decodeWorkerMetrics(stdout.Bytes())
	if err != nil {
		return nil, NewSpawnError(fmt.Sprintf("worker %d output", args.ProcessIndex), err)
	}
	return m, nil
}

// decodeWorkerMetrics reads the last non-empty line of out as Metrics.
func decodeWorkerMetrics(out []byte) (*Metrics, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return nil, fmt.Errorf("no metrics on stdout")
	}
	var m Metrics
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	return &m, nil
}

// runDistributed launches one worker per process, paced by the spawn interval
// and bounded by maxSpawn. A failed worker is recorded as a failed shard.
func (c *Conductor) runDistributed(ctx context.Context, runID string, sess Session, control document.SharedMap, b *Binding, chunkCount int, report func(...WriterMetrics)) {
	limiter := rate.NewLimiter(rate.Every(c.spawnInterval), 1)
	limit := sess.Processes
	if c.maxSpawn > 0 && c.maxSpawn < limit {
		limit = c.maxSpawn
	}
	var g errgroup.Group
	g.SetLimit(limit)

	launched := 0
	for i := range sess.Processes {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		args := WorkerArgs{
			DocumentID:   b.Doc.ID(),
			IntervalMs:   sess.Interval.Milliseconds(),
			ChunkCount:   chunkCount,
			ProcessIndex: i,
			ProcessCount: sess.Processes,
			ControlMapID: control.ID(),
			RunID:        runID,
		}
		launched++
		g.Go(func() error {
			sctx, span := c.tracer.Start(ctx, "scribe.spawn", trace.WithAttributes(
				attribute.Int("scribe.process", i),
			))
			defer span.End()
			c.logger.Debug("spawning worker", "run_id", runID, "process", i)
			m, err := c.spawner.Spawn(sctx, args)
			if err != nil {
				span.RecordError(err)
				c.logger.Warn("worker failed", "run_id", runID, "process", i, "error", err)
			}
			report(workerShards(i, m, err)...)
			return nil
		})
	}
	_ = g.Wait()

	if skipped := sess.Processes - launched; skipped > 0 {
		c.logger.Warn("workers not launched", "run_id", runID, "skipped", skipped, "error", ctx.Err())
	}
}

// workerShards turns one worker's result into metrics shards. Partial
// metrics of a failed worker are kept; if none of its writers is marked
// failed, the spawn error is attached to them.
func workerShards(process int, m *Metrics, err error) []WriterMetrics {
	if m == nil || len(m.Writers) == 0 {
		if err == nil {
			err = fmt.Errorf("worker %d reported no metrics", process)
		}
		return []WriterMetrics{{Process: process, State: StateFailed, Error: err.Error()}}
	}
	shards := make([]WriterMetrics, len(m.Writers))
	failed := false
	for j, w := range m.Writers {
		w.Process = process
		failed = failed || w.State == StateFailed
		shards[j] = w
	}
	if err != nil && !failed {
		for j := range shards {
			shards[j].State = StateFailed
			shards[j].Error = err.Error()
		}
	}
	return shards
}
