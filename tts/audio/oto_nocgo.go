//go:build nocgo
// +build nocgo

package audio

import (
	"fmt"
	"time"
)

// Stub implementations for builds without CGO

// OtoConfig configures the device player.
type OtoConfig struct {
	SampleRate   int
	Channels     int
	Volume       float64
	PollInterval time.Duration
}

// OtoPlayer is not available without CGO.
type OtoPlayer struct{}

// NewOtoPlayer always fails in nocgo builds.
func NewOtoPlayer(OtoConfig) (*OtoPlayer, error) {
	return nil, fmt.Errorf("%w: built without cgo", ErrUnavailable)
}

func (p *OtoPlayer) Play(Clip, func(error)) error { return ErrUnavailable }
func (p *OtoPlayer) Pause() error                 { return ErrUnavailable }
func (p *OtoPlayer) Resume() error                { return ErrUnavailable }
func (p *OtoPlayer) Stop() error                  { return ErrUnavailable }
func (p *OtoPlayer) Close() error                 { return nil }
