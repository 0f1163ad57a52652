package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/user/scribe/internal/docserver"
	"github.com/user/scribe/internal/document"
	"github.com/user/scribe/internal/document/memdoc"
	"github.com/user/scribe/internal/metrics"
	"github.com/user/scribe/internal/report"
	"github.com/user/scribe/internal/samples"
	"github.com/user/scribe/internal/scribe"
	"github.com/user/scribe/internal/sessionfile"
	"github.com/user/scribe/pkg/docclient"
)

var (
	runText        string
	runSession     string
	runInterval    time.Duration
	runWriters     int
	runProcesses   int
	runDistributed bool
	runServer      string
	runDocument    string
	runReportDB    string
	runSampleStore string
	runSampleDir   string
	runProgress    time.Duration
	runMetricsBind string
	runSpawn       string
	runMaxProcs    int
	runJSON        bool
	runNoVerify    bool
)

var runCmd = &cobra.Command{
	Use:   "run [text-file]",
	Short: "Type text into a shared document",
	Long: "Type text into a shared document one character per tick. Without --server the document " +
		"lives in this process; with --processes > 1 an embedded document server is started on " +
		"loopback so worker processes can share it. SIGUSR1 toggles play/pause.",
	Args: cobra.MaximumNArgs(1),
	RunE: runTyping,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runText, "text", "", "Text to type (instead of a text file)")
	f.StringVar(&runSession, "session", "", "JSON session file")
	f.DurationVar(&runInterval, "interval", 50*time.Millisecond, "Time between insertions per writer")
	f.IntVar(&runWriters, "writers", 1, "In-process writers (single-process runs)")
	f.IntVar(&runProcesses, "processes", 1, "Worker processes; > 1 distributes chunks across workers")
	f.BoolVar(&runDistributed, "distributed", false, "Mark the run as distributed (diagnostic only)")
	f.StringVar(&runServer, "server", "", "Document server URL (env: SCRIBE_SERVER)")
	f.StringVar(&runDocument, "document", "", "Existing document ID to type into (default: create one)")
	f.StringVar(&runReportDB, "report-db", "", "SQLite path or postgres:// DSN to save the run summary")
	f.StringVar(&runSampleStore, "sample-store", "", "Record every insertion sample: pebble, badger, or bolt")
	f.StringVar(&runSampleDir, "sample-dir", "scribe-samples", "Directory for the sample store")
	f.DurationVar(&runProgress, "progress", 5*time.Second, "Progress log interval (0 disables)")
	f.StringVar(&runMetricsBind, "metrics-bind", "", "Serve Prometheus metrics on this address during the run")
	f.StringVar(&runSpawn, "spawn", "exec", "How workers run when --processes > 1: exec or goroutine")
	f.IntVar(&runMaxProcs, "max-procs", 0, "Maximum concurrently running workers (0 = all)")
	f.BoolVar(&runJSON, "json", false, "Print the final metrics as JSON")
	f.BoolVar(&runNoVerify, "no-verify", false, "Skip reading paragraphs back after the run")
}

// runOptions is the merged view of flags and the optional session file.
type runOptions struct {
	sess        scribe.Session
	text        string
	server      string
	document    string
	reportDB    string
	sampleStore string
	sampleDir   string
	progress    time.Duration
}

func resolveRunOptions(cmd *cobra.Command, args []string) (runOptions, error) {
	opts := runOptions{
		sess:        scribe.DefaultSession(),
		server:      resolveServer(runServer),
		document:    runDocument,
		reportDB:    runReportDB,
		sampleStore: runSampleStore,
		sampleDir:   runSampleDir,
		progress:    runProgress,
	}
	changed := cmd.Flags().Changed

	var file *sessionfile.File
	if runSession != "" {
		f, err := sessionfile.Load(runSession)
		if err != nil {
			return opts, err
		}
		file = f
		opts.sess = f.Session(opts.sess)
		if f.Server != "" && !changed("server") {
			opts.server = f.Server
		}
		if f.Document != "" && !changed("document") {
			opts.document = f.Document
		}
		if f.ReportDB != "" && !changed("report-db") {
			opts.reportDB = f.ReportDB
		}
		if f.SampleStore != "" && !changed("sample-store") {
			opts.sampleStore = f.SampleStore
		}
		if f.SampleDir != "" && !changed("sample-dir") {
			opts.sampleDir = f.SampleDir
		}
		if f.ProgressIntervalMs > 0 && !changed("progress") {
			opts.progress = time.Duration(f.ProgressIntervalMs) * time.Millisecond
		}
	}

	if file == nil || changed("interval") {
		opts.sess.Interval = runInterval
	}
	if file == nil || changed("writers") {
		opts.sess.Writers = runWriters
	}
	if file == nil || changed("processes") {
		opts.sess.Processes = runProcesses
	}
	if changed("distributed") {
		opts.sess.Distributed = runDistributed
	}

	switch {
	case changed("text"):
		opts.text = runText
	case len(args) == 1:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return opts, fmt.Errorf("read text file: %w", err)
		}
		opts.text = string(data)
	case file != nil:
		text, err := file.ReadText()
		if err != nil {
			return opts, err
		}
		opts.text = text
	default:
		return opts, errors.New("no text: pass a text file, --text, or --session")
	}
	return opts, opts.sess.Validate()
}

// backend is the document store a run types into.
type backend struct {
	loader  document.Loader
	runtime document.Runtime
	docID   string
	control document.SharedMap
	// serverURL is where worker processes reach the document.
	serverURL string
	close     func()
}

func openBackend(ctx context.Context, opts runOptions, needServer bool) (*backend, error) {
	if opts.server != "" {
		return remoteBackend(ctx, docclient.New(opts.server), opts.server, opts.document)
	}

	if opts.document != "" {
		return nil, errors.New("--document needs --server")
	}
	store := memdoc.New()
	if !needServer {
		d, err := store.CreateDocument(memdoc.KindText)
		if err != nil {
			return nil, fmt.Errorf("create document: %w", err)
		}
		return &backend{
			loader:  store,
			runtime: store,
			docID:   d.ID(),
			control: store.NewMap(),
			close:   func() {},
		}, nil
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen for embedded server: %w", err)
	}
	srv := docserver.New(store, ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil {
			slog.Error("embedded document server failed", "error", err)
		}
	}()
	url := "http://" + ln.Addr().String()
	slog.Info("embedded document server started", "url", url)

	b, err := remoteBackend(ctx, docclient.New(url), url, "")
	if err != nil {
		_ = srv.Shutdown(context.Background())
		return nil, err
	}
	b.close = func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("embedded server shutdown", "error", err)
		}
	}
	return b, nil
}

func remoteBackend(ctx context.Context, c *docclient.Client, url, docID string) (*backend, error) {
	if err := c.Health(ctx); err != nil {
		return nil, fmt.Errorf("document server %s unreachable: %w", url, err)
	}
	if docID == "" {
		id, err := c.CreateDocument(ctx, memdoc.KindText)
		if err != nil {
			return nil, err
		}
		docID = id
	}
	control, err := c.CreateMap(ctx)
	if err != nil {
		return nil, err
	}
	return &backend{
		loader:    c,
		runtime:   c,
		docID:     docID,
		control:   control,
		serverURL: url,
		close:     func() {},
	}, nil
}

func runTyping(cmd *cobra.Command, args []string) error {
	opts, err := resolveRunOptions(cmd, args)
	if err != nil {
		return err
	}
	if runSpawn != "exec" && runSpawn != "goroutine" {
		return fmt.Errorf("unsupported --spawn %q (expected exec or goroutine)", runSpawn)
	}
	distributed := opts.sess.Processes > 1

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	be, err := openBackend(ctx, opts, distributed && runSpawn == "exec")
	if err != nil {
		return err
	}
	defer be.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	runID := scribe.NewRunID()
	log := slog.Default().With("run_id", runID)
	condOpts := []scribe.Option{
		scribe.WithRunID(runID),
		scribe.WithObserver(collector),
		scribe.WithLogger(slog.Default()),
		scribe.WithVerify(!runNoVerify),
	}
	if runMaxProcs > 0 {
		condOpts = append(condOpts, scribe.WithMaxConcurrentProcesses(runMaxProcs))
	}

	var sampleStore samples.Store
	if opts.sampleStore != "" {
		sampleStore, err = samples.Open(opts.sampleStore, opts.sampleDir)
		if err != nil {
			return err
		}
		defer sampleStore.Close()
		condOpts = append(condOpts, scribe.WithSampleSink(sampleStore))
	}

	var reports report.Store
	if opts.reportDB != "" {
		reports, err = report.Open(ctx, opts.reportDB)
		if err != nil {
			return err
		}
		defer reports.Close()
	}

	playback := scribe.NewPlayback()
	condOpts = append(condOpts, scribe.WithPlayback(playback))
	if distributed {
		deps := workerDeps{playback: playback, observer: collector, sink: sampleStore}
		condOpts = append(condOpts, scribe.WithSpawner(newSpawner(be, runID, deps)))
	}
	conductor := scribe.New(condOpts...)

	stopToggle := watchPlaybackSignal(conductor)
	defer stopToggle()

	if runMetricsBind != "" {
		msrv := &http.Server{Addr: runMetricsBind, Handler: collector.Handler(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := msrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", err)
			}
		}()
		defer msrv.Close()
		log.Info("serving metrics", "addr", runMetricsBind)
	}

	progressCtx, stopProgress := context.WithCancel(ctx)
	defer stopProgress()
	go collector.Report(progressCtx, opts.progress, log)

	startedAt := time.Now().UTC()
	m, err := conductor.Type(ctx, scribe.TypeRequest{
		Loader:      be.loader,
		URL:         be.docID,
		Control:     be.control,
		Runtime:     be.runtime,
		Interval:    opts.sess.Interval,
		Text:        opts.text,
		Writers:     opts.sess.Writers,
		Processes:   opts.sess.Processes,
		Distributed: opts.sess.Distributed,
		Callback: func(m scribe.Metrics) {
			if !m.Final {
				log.Debug("shard finished", "chunks_completed", m.ChunksCompleted, "chars", m.TotalChars)
			}
		},
	})
	stopProgress()
	if m == nil {
		return err
	}
	if err != nil {
		log.Warn("run interrupted", "error", err)
	}

	if reports != nil {
		if serr := reports.Save(context.Background(), report.FromMetrics(m, opts.sess, startedAt)); serr != nil {
			log.Error("save run report failed", "error", serr)
		} else {
			log.Info("run report saved", "target", redactTarget(opts.reportDB))
		}
	}

	if runJSON {
		if perr := printJSON(cmd.OutOrStdout(), m); perr != nil {
			return perr
		}
	} else {
		printMetrics(cmd.OutOrStdout(), m)
	}
	if err != nil {
		return err
	}
	if m.FailedWriters > 0 {
		return fmt.Errorf("%d writer(s) failed", m.FailedWriters)
	}
	return nil
}

// workerDeps are shared with in-process workers so they pause, report
// and record samples with the rest of the run.
type workerDeps struct {
	playback *scribe.Playback
	observer scribe.Observer
	sink     scribe.SampleSink
}

func newSpawner(be *backend, runID string, deps workerDeps) scribe.Spawner {
	if runSpawn == "goroutine" {
		return scribe.SpawnFunc(func(ctx context.Context, args scribe.WorkerArgs) (*scribe.Metrics, error) {
			return scribe.RunWorker(ctx, scribe.WorkerConfig{
				Args:     args,
				Loader:   be.loader,
				Runtime:  be.runtime,
				Playback: deps.playback,
				Sink:     deps.sink,
				Observer: deps.observer,
				Logger:   slog.Default().With("run_id", runID, "process", args.ProcessIndex),
			})
		})
	}
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	return &scribe.ExecSpawner{
		Path:      exe,
		Prefix:    workerPrefix(),
		ServerURL: be.serverURL,
	}
}

// workerPrefix forwards the persistent flags a worker process needs to log
// and trace like its parent.
func workerPrefix() []string {
	prefix := []string{"--log-level", logLevel}
	if otelEnabled {
		prefix = append(prefix, "--otel-enabled")
		if otelEndpoint != "" {
			prefix = append(prefix, "--otel-endpoint", otelEndpoint)
		}
	}
	return prefix
}

// redactTarget hides credentials in a postgres DSN before logging it.
func redactTarget(target string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(target, scheme) {
			return scheme + "***"
		}
	}
	return target
}
