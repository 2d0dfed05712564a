package player

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Playback is the media element the session samples.
type Playback interface {
	// Position is the current playback position in seconds of video time.
	Position() float64
	Playing() bool
}

// SimulatedPlayback is a Playback driven by a clock instead of a decoder.
type SimulatedPlayback struct {
	clock clockwork.Clock

	mu      sync.Mutex
	playing bool
	base    float64
	anchor  time.Time
}

func NewSimulatedPlayback(clock clockwork.Clock) *SimulatedPlayback {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SimulatedPlayback{clock: clock}
}

func (p *SimulatedPlayback) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *SimulatedPlayback) positionLocked() float64 {
	if !p.playing {
		return p.base
	}
	return p.base + p.clock.Since(p.anchor).Seconds()
}

func (p *SimulatedPlayback) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *SimulatedPlayback) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return
	}
	p.anchor = p.clock.Now()
	p.playing = true
}

func (p *SimulatedPlayback) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return
	}
	p.base = p.positionLocked()
	p.playing = false
}

// Seek jumps to pos, clamped at 0, keeping the play/pause state.
func (p *SimulatedPlayback) Seek(pos float64) {
	if pos < 0 {
		pos = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = pos
	p.anchor = p.clock.Now()
}
