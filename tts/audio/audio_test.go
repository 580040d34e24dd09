package audio

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

func pcm(samples ...int16) []byte {
	out := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		out = binary.LittleEndian.AppendUint16(out, uint16(s))
	}
	return out
}

func samples(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// TestClipDuration tests duration math.
func TestClipDuration(t *testing.T) {
	tests := []struct {
		name string
		clip Clip
		want time.Duration
	}{
		{"one second mono", Clip{Data: make([]byte, 32000), SampleRate: 16000, Channels: 1}, time.Second},
		{"half second stereo", Clip{Data: make([]byte, 44100*2), SampleRate: 44100, Channels: 2}, 500 * time.Millisecond},
		{"invalid", Clip{Data: make([]byte, 10)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.clip.Duration(); got != tt.want {
				t.Errorf("Duration() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestConvert tests rate and channel conversion.
func TestConvert(t *testing.T) {
	mono := Clip{Data: pcm(0, 100, 200, 300), SampleRate: 8000, Channels: 1}

	same, err := Convert(mono, 8000, 1)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if &same.Data[0] != &mono.Data[0] {
		t.Error("Expected no copy when format matches")
	}

	up, err := Convert(mono, 16000, 1)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	got := samples(up.Data)
	want := []int16{0, 50, 100, 150, 200, 250, 300, 300}
	if len(got) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, want[i], got[i])
		}
	}

	stereo, err := Convert(mono, 8000, 2)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if s := samples(stereo.Data); len(s) != 8 || s[2] != 100 || s[3] != 100 {
		t.Errorf("Unexpected stereo samples %v", s)
	}

	back, err := Convert(stereo, 8000, 1)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if s := samples(back.Data); len(s) != 4 || s[3] != 300 {
		t.Errorf("Unexpected mono samples %v", s)
	}

	if _, err := Convert(Clip{Data: pcm(1), SampleRate: 8000, Channels: 6}, 8000, 1); err == nil {
		t.Error("Expected error for 6 channels")
	}
}

func tone(d time.Duration) Clip {
	const rate = 16000
	return Clip{Data: make([]byte, int(d.Seconds()*rate)*2), SampleRate: rate, Channels: 1}
}

// TestSimPlayerCompletes tests timer-driven completion.
func TestSimPlayerCompletes(t *testing.T) {
	p := NewSimPlayer()
	done := make(chan error, 1)
	if err := p.Play(tone(20*time.Millisecond), func(err error) { done <- err }); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Clip never completed")
	}
	if loaded, _ := p.Loaded(); loaded {
		t.Error("Expected no clip loaded after completion")
	}
}

// TestSimPlayerPause tests that a paused clip does not complete.
func TestSimPlayerPause(t *testing.T) {
	p := NewSimPlayer()
	done := make(chan error, 1)
	if err := p.Play(tone(30*time.Millisecond), func(err error) { done <- err }); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := p.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	select {
	case <-done:
		t.Fatal("Paused clip completed")
	case <-time.After(80 * time.Millisecond):
	}

	if err := p.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Resumed clip never completed")
	}

	want := []string{"play", "pause", "resume", "complete"}
	got := p.History()
	if len(got) != len(want) {
		t.Fatalf("Expected history %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("History[%d]: expected %s, got %s", i, want[i], got[i])
		}
	}
}

// TestSimPlayerStopSuppressesDone tests that Stop never calls done.
func TestSimPlayerStopSuppressesDone(t *testing.T) {
	p := NewSimPlayer(WithManualCompletion())
	called := false
	if err := p.Play(tone(10*time.Millisecond), func(error) { called = true }); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if p.Complete() {
		t.Error("Complete after Stop should report no clip")
	}
	if called {
		t.Error("done called after Stop")
	}
	if err := p.Pause(); !errors.Is(err, ErrNotPlaying) {
		t.Errorf("Expected ErrNotPlaying, got %v", err)
	}
}

// TestSimPlayerManual tests manual completion and failure.
func TestSimPlayerManual(t *testing.T) {
	p := NewSimPlayer(WithManualCompletion())
	var got []error
	record := func(err error) { got = append(got, err) }

	p.Play(tone(time.Millisecond), record) //nolint:errcheck
	if !p.Complete() {
		t.Fatal("Complete reported no clip")
	}

	boom := errors.New("device lost")
	p.Play(tone(time.Millisecond), record) //nolint:errcheck
	if !p.Fail(boom) {
		t.Fatal("Fail reported no clip")
	}

	if len(got) != 2 || got[0] != nil || !errors.Is(got[1], boom) {
		t.Errorf("Unexpected done results %v", got)
	}
}

// TestSimPlayerErrors tests argument and lifecycle errors.
func TestSimPlayerErrors(t *testing.T) {
	p := NewSimPlayer()
	if err := p.Play(Clip{SampleRate: 16000, Channels: 1}, nil); !errors.Is(err, ErrEmptyClip) {
		t.Errorf("Expected ErrEmptyClip, got %v", err)
	}

	injected := errors.New("busy")
	p.SetPlayError(injected)
	if err := p.Play(tone(time.Millisecond), nil); !errors.Is(err, injected) {
		t.Errorf("Expected injected error, got %v", err)
	}
	p.SetPlayError(nil)

	p.Close() //nolint:errcheck
	if err := p.Play(tone(time.Millisecond), nil); !errors.Is(err, ErrPlayerClosed) {
		t.Errorf("Expected ErrPlayerClosed, got %v", err)
	}
}
