//go:build !windows

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

type toggler interface {
	TogglePlay() bool
}

// watchPlaybackSignal toggles play/pause on every SIGUSR1 until the
// returned stop func is called.
func watchPlaybackSignal(t toggler) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-sigCh:
				t.TogglePlay()
			}
		}
	}()
	slog.Debug("SIGUSR1 toggles playback", "pid", os.Getpid())
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
