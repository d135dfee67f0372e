package session

import (
	"sync"
	"time"
)

// ClockPlayer simulates a media element for the headless client: the
// playback position advances with the wall clock while playing. It
// implements Player.
type ClockPlayer struct {
	mu      sync.Mutex
	loaded  bool
	playing bool
	base    float64
	since   time.Time
}

// NewClockPlayer returns a player with media loaded at position 0.
func NewClockPlayer() *ClockPlayer {
	return &ClockPlayer{loaded: true}
}

func (p *ClockPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return
	}
	p.playing = true
	p.since = time.Now()
}

func (p *ClockPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return
	}
	p.base += time.Since(p.since).Seconds()
	p.playing = false
}

func (p *ClockPlayer) SeekTo(position float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = position
	p.since = time.Now()
}

func (p *ClockPlayer) Position() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		return 0, false
	}
	if p.playing {
		return p.base + time.Since(p.since).Seconds(), true
	}
	return p.base, true
}

// SetLoaded toggles whether a playback position is available.
func (p *ClockPlayer) SetLoaded(loaded bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = loaded
}
