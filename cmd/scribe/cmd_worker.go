package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/scribe/internal/observability"
	"github.com/user/scribe/internal/scribe"
	"github.com/user/scribe/pkg/docclient"
)

var (
	workerServer     string
	workerControlMap string
	workerProcesses  int
	workerRunID      string
)

var workerCmd = &cobra.Command{
	Use:   "worker <documentID> <intervalMs> <chunkCount> <processIndex>",
	Short: "Type one process's share of a distributed run",
	Long: "Worker is started by `scribe run --processes N`. It reads its chunk range from the run's " +
		"published chunk map, types it and prints its metrics as one JSON line on stdout.",
	Args:   cobra.ExactArgs(4),
	Hidden: true,
	RunE:   runWorker,
}

func init() {
	workerCmd.Flags().StringVar(&workerServer, "server", "", "Document server URL (env: SCRIBE_SERVER)")
	workerCmd.Flags().StringVar(&workerControlMap, "control-map", "", "ID of the run's control map")
	workerCmd.Flags().IntVar(&workerProcesses, "processes", 1, "Number of worker processes in the run")
	workerCmd.Flags().StringVar(&workerRunID, "run-id", "", "Run ID for logs and samples")
}

func runWorker(cmd *cobra.Command, args []string) error {
	wargs, err := scribe.ParsePositional(args)
	if err != nil {
		return err
	}
	server := resolveServer(workerServer)
	if server == "" {
		return errors.New("worker needs --server or SCRIBE_SERVER")
	}
	if workerControlMap == "" {
		return errors.New("worker needs --control-map")
	}
	wargs.ControlMapID = workerControlMap
	wargs.ProcessCount = workerProcesses
	wargs.RunID = workerRunID

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	ctx = observability.ContextFromEnv(ctx)

	playback := scribe.NewPlayback()
	stopToggle := watchPlaybackSignal(playbackToggler{playback})
	defer stopToggle()

	c := docclient.New(server)
	m, err := scribe.RunWorker(ctx, scribe.WorkerConfig{
		Args:     wargs,
		Loader:   c,
		Runtime:  c,
		Playback: playback,
		Logger:   slog.Default().With("process", wargs.ProcessIndex),
	})
	if m == nil {
		return err
	}
	if perr := printJSONLine(cmd.OutOrStdout(), m); perr != nil {
		return perr
	}
	return err
}

// playbackToggler adapts a bare Playback to the signal watcher.
type playbackToggler struct{ p *scribe.Playback }

func (t playbackToggler) TogglePlay() bool {
	playing := t.p.Toggle()
	slog.Info("playback toggled", "playing", playing)
	return playing
}
