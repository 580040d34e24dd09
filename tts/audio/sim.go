package audio

import (
	"sync"
	"time"
)

// SimPlayer simulates playback with timers and produces no sound. It is used
// by tests and when no output device is available.
type SimPlayer struct {
	mu sync.Mutex

	// Configuration
	speed  float64 // Playback speed multiplier; higher finishes sooner
	manual bool    // Clips only finish through Complete or Fail

	// Current clip
	token     int
	clip      Clip
	done      func(error)
	timer     *time.Timer
	remaining time.Duration
	started   time.Time
	loaded    bool
	paused    bool
	closed    bool

	// Test control
	playErr error
	history []string
}

// SimOption configures a SimPlayer.
type SimOption func(*SimPlayer)

// WithSpeed scales simulated playback time; 2 plays twice as fast.
func WithSpeed(multiplier float64) SimOption {
	return func(p *SimPlayer) {
		if multiplier > 0 {
			p.speed = multiplier
		}
	}
}

// WithManualCompletion keeps every clip playing until Complete or Fail.
func WithManualCompletion() SimOption {
	return func(p *SimPlayer) { p.manual = true }
}

// NewSimPlayer creates a simulated player.
func NewSimPlayer(opts ...SimOption) *SimPlayer {
	p := &SimPlayer{speed: 1}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play loads clip and starts its timer.
func (p *SimPlayer) Play(clip Clip, done func(error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPlayerClosed
	}
	if p.playErr != nil {
		return p.playErr
	}
	if len(clip.Data) == 0 {
		return ErrEmptyClip
	}

	p.stopLocked()
	p.token++
	p.clip = clip
	p.done = done
	p.loaded = true
	p.paused = false
	p.remaining = time.Duration(float64(clip.Duration()) / p.speed)
	p.history = append(p.history, "play")
	p.startLocked()
	return nil
}

func (p *SimPlayer) startLocked() {
	p.started = time.Now()
	if p.manual {
		return
	}
	token := p.token
	p.timer = time.AfterFunc(p.remaining, func() { p.finish(token, nil) })
}

func (p *SimPlayer) finish(token int, err error) {
	p.mu.Lock()
	if !p.loaded || p.token != token {
		p.mu.Unlock()
		return
	}
	done := p.done
	p.loaded = false
	p.paused = false
	p.done = nil
	p.timer = nil
	if err != nil {
		p.history = append(p.history, "fail")
	} else {
		p.history = append(p.history, "complete")
	}
	p.mu.Unlock()

	if done != nil {
		done(err)
	}
}

// Pause stops the timer and remembers how much is left.
func (p *SimPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPlayerClosed
	}
	if !p.loaded {
		return ErrNotPlaying
	}
	if p.paused {
		return nil
	}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.remaining -= time.Since(p.started)
	if p.remaining < 0 {
		p.remaining = 0
	}
	p.paused = true
	p.history = append(p.history, "pause")
	return nil
}

// Resume restarts the timer with the remaining time.
func (p *SimPlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPlayerClosed
	}
	if !p.loaded {
		return ErrNotPlaying
	}
	if !p.paused {
		return nil
	}
	p.paused = false
	p.history = append(p.history, "resume")
	p.startLocked()
	return nil
}

// Stop discards the current clip without calling its done func.
func (p *SimPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPlayerClosed
	}
	if p.loaded {
		p.history = append(p.history, "stop")
	}
	p.stopLocked()
	return nil
}

func (p *SimPlayer) stopLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.loaded = false
	p.paused = false
	p.done = nil
	p.token++
}

// Close stops playback and rejects further calls.
func (p *SimPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.closed = true
	return nil
}

// Test control methods

// Complete finishes the current clip as if it had played to the end.
// It reports whether a clip was loaded.
func (p *SimPlayer) Complete() bool {
	p.mu.Lock()
	token, loaded := p.token, p.loaded
	p.mu.Unlock()
	if !loaded {
		return false
	}
	p.finish(token, nil)
	return true
}

// Fail finishes the current clip with err.
func (p *SimPlayer) Fail(err error) bool {
	p.mu.Lock()
	token, loaded := p.token, p.loaded
	p.mu.Unlock()
	if !loaded {
		return false
	}
	p.finish(token, err)
	return true
}

// SetPlayError makes Play fail with err; nil clears it.
func (p *SimPlayer) SetPlayError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playErr = err
}

// Loaded reports whether a clip is loaded, and whether it is paused.
func (p *SimPlayer) Loaded() (loaded, paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded, p.paused
}

// Current returns the loaded clip.
func (p *SimPlayer) Current() Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clip
}

// History returns the recorded player events.
func (p *SimPlayer) History() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.history...)
}
