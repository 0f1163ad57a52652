package scribe

import "sync/atomic"

// Playback is the play/pause flag shared by every writer of a session.
// It starts in the playing state.
type Playback struct {
	paused atomic.Bool
}

// NewPlayback returns a playing Playback.
func NewPlayback() *Playback {
	return &Playback{}
}

// Toggle flips between playing and paused and returns the new playing state.
func (p *Playback) Toggle() bool {
	for {
		old := p.paused.Load()
		if p.paused.CompareAndSwap(old, !old) {
			return old
		}
	}
}

// Playing reports whether writers may insert on their next tick.
func (p *Playback) Playing() bool {
	return !p.paused.Load()
}

func (p *Playback) Pause()  { p.paused.Store(true) }
func (p *Playback) Resume() { p.paused.Store(false) }
