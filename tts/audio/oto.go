//go:build !nocgo
// +build !nocgo

package audio

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process.
var (
	otoOnce    sync.Once
	otoContext *oto.Context
	otoRate    int
	otoChans   int
	otoErr     error
)

func sharedContext(sampleRate, channels int) (*oto.Context, int, int, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("%w: %w", ErrUnavailable, err)
			return
		}
		<-ready
		otoContext, otoRate, otoChans = ctx, sampleRate, channels
	})
	return otoContext, otoRate, otoChans, otoErr
}

// OtoConfig configures the device player.
type OtoConfig struct {
	SampleRate   int
	Channels     int
	Volume       float64 // 0..1
	PollInterval time.Duration
}

// OtoPlayer plays clips on the default output device.
type OtoPlayer struct {
	ctx      *oto.Context
	rate     int
	channels int
	volume   float64
	poll     time.Duration

	mu     sync.Mutex
	player *oto.Player
	data   []byte // Backing store of the player's reader
	paused bool
	stop   chan struct{}
	closed bool
}

// NewOtoPlayer opens the output device. The device format is fixed by the
// first call in the process; later players convert to it.
func NewOtoPlayer(cfg OtoConfig) (*OtoPlayer, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 22050
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.Volume <= 0 || cfg.Volume > 1 {
		cfg.Volume = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 20 * time.Millisecond
	}
	ctx, rate, channels, err := sharedContext(cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, err
	}
	return &OtoPlayer{
		ctx:      ctx,
		rate:     rate,
		channels: channels,
		volume:   cfg.Volume,
		poll:     cfg.PollInterval,
	}, nil
}

// Play starts clip and watches for its end.
func (p *OtoPlayer) Play(clip Clip, done func(error)) error {
	if len(clip.Data) == 0 {
		return ErrEmptyClip
	}
	converted, err := Convert(clip, p.rate, p.channels)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPlayerClosed
	}
	p.stopLocked()

	player := p.ctx.NewPlayer(bytes.NewReader(converted.Data))
	player.SetVolume(p.volume)
	stop := make(chan struct{})
	p.player = player
	p.data = converted.Data
	p.paused = false
	p.stop = stop
	player.Play()

	go p.watch(player, stop, done)
	return nil
}

func (p *OtoPlayer) watch(player *oto.Player, stop chan struct{}, done func(error)) {
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		if p.player != player {
			p.mu.Unlock()
			return
		}
		finished := !p.paused && !player.IsPlaying()
		var err error
		if finished {
			err = player.Err()
			p.player = nil
			p.data = nil
			p.stop = nil
		}
		p.mu.Unlock()

		if finished {
			player.Close() //nolint:errcheck
			if done != nil {
				done(err)
			}
			return
		}
	}
}

// Pause holds output.
func (p *OtoPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPlayerClosed
	}
	if p.player == nil {
		return ErrNotPlaying
	}
	p.player.Pause()
	p.paused = true
	return nil
}

// Resume continues output.
func (p *OtoPlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPlayerClosed
	}
	if p.player == nil {
		return ErrNotPlaying
	}
	p.player.Play()
	p.paused = false
	return nil
}

// Stop discards the current clip.
func (p *OtoPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPlayerClosed
	}
	p.stopLocked()
	return nil
}

func (p *OtoPlayer) stopLocked() {
	if p.player == nil {
		return
	}
	close(p.stop)
	p.player.Pause()
	p.player.Close() //nolint:errcheck
	p.player = nil
	p.data = nil
	p.stop = nil
	p.paused = false
}

// Close stops playback. The shared device context stays open.
func (p *OtoPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.stopLocked()
	p.closed = true
	return nil
}
