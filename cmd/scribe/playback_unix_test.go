//go:build !windows

package main

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/scribe/internal/scribe"
)

func TestSIGUSR1TogglesPlayback(t *testing.T) {
	p := scribe.NewPlayback()
	stop := watchPlaybackSignal(playbackToggler{p})
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	require.Eventually(t, func() bool { return !p.Playing() }, time.Second, time.Millisecond)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	require.Eventually(t, p.Playing, time.Second, time.Millisecond)
	assert.True(t, p.Playing())
}
