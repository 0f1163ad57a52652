package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/user/scribe/internal/docserver"
	"github.com/user/scribe/internal/document/memdoc"
)

var (
	serveBind            string
	serveRedisAddr       string
	serveShutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the shared document server",
	Long: "Serve hosts in-memory documents and shared maps over HTTP for distributed runs, " +
		"streams applied operations on /ws/docs/{id} and optionally relays them to Redis.",
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveBind, "bind", ":8090", "HTTP bind address")
	serveCmd.Flags().StringVar(&serveRedisAddr, "redis-addr", "", "Redis address for the op relay (disabled if empty)")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 500*time.Millisecond, "Graceful HTTP shutdown timeout before force-close (e.g. 500ms, 2s)")
}

func runServe(cmd *cobra.Command, args []string) error {
	slog.Info("starting document server", "bind", serveBind, "redis", serveRedisAddr != "")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	opts := []docserver.Option{docserver.WithRegistry(reg)}

	if serveRedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: serveRedisAddr})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect redis %s: %w", serveRedisAddr, err)
		}
		opts = append(opts, docserver.WithRedis(rdb))
	}

	store := memdoc.New()
	srv := docserver.New(store, serveBind, opts...)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("document server ready", "bind", serveBind)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("received shutdown signal", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}
	slog.Info("document server stopped")
	return nil
}
