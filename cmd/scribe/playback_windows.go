//go:build windows

package main

type toggler interface {
	TogglePlay() bool
}

// watchPlaybackSignal is a no-op: Windows has no SIGUSR1.
func watchPlaybackSignal(toggler) func() { return func() {} }
