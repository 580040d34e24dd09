// Package audio plays synthesized speech.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPlayerClosed is returned by every method after Close.
	ErrPlayerClosed = errors.New("player is closed")

	// ErrEmptyClip is returned when Play is given no audio.
	ErrEmptyClip = errors.New("audio clip is empty")

	// ErrNotPlaying is returned by Pause and Resume when nothing is loaded.
	ErrNotPlaying = errors.New("nothing is playing")

	// ErrUnavailable is returned when no audio device can be used.
	ErrUnavailable = errors.New("audio output unavailable")
)

// Clip is signed 16-bit little-endian PCM audio.
type Clip struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Duration returns the playing time of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.Data) / (2 * c.Channels)
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Player outputs one clip at a time.
type Player interface {
	// Play starts clip, replacing anything loaded. done is called once from
	// another goroutine when the clip finished playing or failed. It is not
	// called after Stop.
	Play(clip Clip, done func(error)) error

	// Pause holds output of the current clip.
	Pause() error

	// Resume continues a paused clip.
	Resume() error

	// Stop discards the current clip.
	Stop() error

	// Close releases the output device.
	Close() error
}

// Convert returns clip as PCM at the given rate and channel count. Rate
// conversion is linear interpolation; channel conversion duplicates or
// averages samples.
func Convert(clip Clip, sampleRate, channels int) (Clip, error) {
	if clip.Channels < 1 || clip.Channels > 2 || channels < 1 || channels > 2 {
		return Clip{}, fmt.Errorf("unsupported channel conversion %d -> %d", clip.Channels, channels)
	}
	if clip.SampleRate <= 0 || sampleRate <= 0 {
		return Clip{}, fmt.Errorf("invalid sample rate %d -> %d", clip.SampleRate, sampleRate)
	}
	if clip.SampleRate == sampleRate && clip.Channels == channels {
		return clip, nil
	}

	in := decode(clip)

	frames := len(in)
	outFrames := frames
	if clip.SampleRate != sampleRate && frames > 0 {
		outFrames = int(int64(frames) * int64(sampleRate) / int64(clip.SampleRate))
	}

	out := make([]byte, 0, outFrames*channels*2)
	ratio := float64(clip.SampleRate) / float64(sampleRate)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		var frame [2]float64
		switch {
		case idx >= frames-1:
			frame = in[frames-1]
		default:
			for ch := 0; ch < 2; ch++ {
				frame[ch] = in[idx][ch]*(1-frac) + in[idx+1][ch]*frac
			}
		}

		if channels == 1 {
			out = binary.LittleEndian.AppendUint16(out, uint16(int16((frame[0]+frame[1])/2)))
		} else {
			out = binary.LittleEndian.AppendUint16(out, uint16(int16(frame[0])))
			out = binary.LittleEndian.AppendUint16(out, uint16(int16(frame[1])))
		}
	}
	return Clip{Data: out, SampleRate: sampleRate, Channels: channels}, nil
}

// decode returns the clip as stereo frames; mono samples fill both sides.
func decode(clip Clip) [][2]float64 {
	frameSize := 2 * clip.Channels
	frames := make([][2]float64, len(clip.Data)/frameSize)
	for i := range frames {
		off := i * frameSize
		l := float64(int16(binary.LittleEndian.Uint16(clip.Data[off:])))
		r := l
		if clip.Channels == 2 {
			r = float64(int16(binary.LittleEndian.Uint16(clip.Data[off+2:])))
		}
		frames[i] = [2]float64{l, r}
	}
	return frames
}
