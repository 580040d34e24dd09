// Package mock provides an in-process synthesis engine for tests and demos.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine"
)

// Engine implements engine.Engine without producing real speech. It streams
// silence sized by an estimate of how long the text takes to say.
type Engine struct {
	// Configuration
	delay        time.Duration // Simulated processing delay
	chunkDelay   time.Duration
	chunkSize    int
	sampleRate   int
	voices       []engine.Voice
	defaultVoice engine.Voice
	agreed       bool
	credential   bool

	mu sync.Mutex

	// Control for testing
	initErr      error
	shouldFail   bool
	failureError error
	gate         chan struct{}

	// State
	initialized bool
	pitch       int
	loaded      map[engine.Voice]bool
	private     map[string]string
	callCount   int
	cancelCount int
	requests    []engine.SynthesisRequest

	// In-flight request
	cancel chan struct{}
	done   chan struct{}
}

// Option configures the mock engine.
type Option func(*Engine)

// WithDelay sets the simulated processing delay before the first chunk.
func WithDelay(d time.Duration) Option {
	return func(e *Engine) { e.delay = d }
}

// WithVoices replaces the advertised voices. The first one is the default.
func WithVoices(voices ...engine.Voice) Option {
	return func(e *Engine) {
		e.voices = voices
		if len(voices) > 0 {
			e.defaultVoice = voices[0]
		}
	}
}

// WithAgreement sets the answer to CheckAppAgreed.
func WithAgreement(agreed bool) Option {
	return func(e *Engine) { e.agreed = agreed }
}

// WithCredentialRequired makes the engine demand an app credential.
func WithCredentialRequired() Option {
	return func(e *Engine) { e.credential = true }
}

// WithSampleRate sets the sample rate of the generated audio.
func WithSampleRate(rate int) Option {
	return func(e *Engine) { e.sampleRate = rate }
}

// New creates a new mock engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		delay:      10 * time.Millisecond,
		chunkDelay: time.Millisecond,
		chunkSize:  4096,
		sampleRate: 16000,
		voices: []engine.Voice{
			{Language: "en_US", Type: engine.VoiceTypeFemale},
			{Language: "en_US", Type: engine.VoiceTypeMale},
			{Language: "en_GB", Type: engine.VoiceTypeFemale},
			{Language: "ko_KR", Type: engine.VoiceTypeFemale},
			{Language: "ko_KR", Type: engine.VoiceTypeChild},
		},
		agreed:  true,
		pitch:   engine.PitchNormal,
		loaded:  make(map[engine.Voice]bool),
		private: make(map[string]string),
	}
	e.defaultVoice = e.voices[0]
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Info returns the mock engine info.
func (e *Engine) Info() engine.Info {
	return engine.Info{
		ID:      "mock",
		Name:    "Mock Engine",
		Version: "1.0.0",
	}
}

// Initialize prepares the mock engine.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	err := e.initErr
	delay := e.delay
	e.mu.Unlock()

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.initialized = true
	e.mu.Unlock()
	return nil
}

// Deinitialize simulates engine shutdown.
func (e *Engine) Deinitialize() error {
	e.stopInFlight()
	e.mu.Lock()
	e.initialized = false
	e.mu.Unlock()
	return nil
}

// ForEachVoice enumerates the mock voices.
func (e *Engine) ForEachVoice(fn func(engine.Voice) bool) error {
	e.mu.Lock()
	voices := append([]engine.Voice(nil), e.voices...)
	e.mu.Unlock()
	for _, v := range voices {
		if !fn(v) {
			return nil
		}
	}
	return nil
}

// IsValidVoice reports whether v is one of the mock voices.
func (e *Engine) IsValidVoice(v engine.Voice) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, known := range e.voices {
		if known == v {
			return true
		}
	}
	return false
}

// DefaultVoice returns the first configured voice.
func (e *Engine) DefaultVoice() (engine.Voice, bool) {
	return e.defaultVoice, !e.defaultVoice.IsZero()
}

// SetPitch records the pitch.
func (e *Engine) SetPitch(pitch int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pitch = pitch
	return nil
}

// LoadVoice marks v as loaded.
func (e *Engine) LoadVoice(v engine.Voice) error {
	if !e.IsValidVoice(v) {
		return fmt.Errorf("%w: %s", engine.ErrInvalidVoice, v)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded[v] = true
	return nil
}

// UnloadVoice marks v as unloaded.
func (e *Engine) UnloadVoice(v engine.Voice) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.loaded, v)
	return nil
}

// StartSynthesis simulates streaming synthesis on a goroutine.
func (e *Engine) StartSynthesis(ctx context.Context, req engine.SynthesisRequest, fn engine.ResultFunc) error {
	e.stopInFlight()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.callCount++
	e.requests = append(e.requests, req)

	if !e.initialized {
		return engine.ErrNotInitialized
	}
	if !e.loaded[req.Voice] {
		return fmt.Errorf("%w: voice %s not loaded", engine.ErrInvalidVoice, req.Voice)
	}

	cancel := make(chan struct{})
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done

	var failure error
	if e.shouldFail {
		failure = e.failureError
	}
	go e.run(ctx, req, fn, e.delay, failure, e.gate, cancel, done)
	return nil
}

func (e *Engine) run(ctx context.Context, req engine.SynthesisRequest, fn engine.ResultFunc, delay time.Duration, failure error, gate, cancel, done chan struct{}) {
	defer close(done)

	wait := func(d time.Duration) bool {
		if d <= 0 {
			return true
		}
		select {
		case <-time.After(d):
			return true
		case <-cancel:
			return false
		case <-ctx.Done():
			return false
		}
	}

	if !wait(delay) {
		return
	}
	if gate != nil {
		select {
		case <-gate:
		case <-cancel:
			return
		case <-ctx.Done():
			return
		}
	}

	if failure != nil {
		fn(engine.Result{Event: engine.ResultFail, Err: failure})
		return
	}

	total := e.audioSize(req.Text, req.Speed)
	event := engine.ResultStart
	for sent := 0; ; {
		size := min(e.chunkSize, total-sent)
		last := sent+size >= total
		if last {
			event = engine.ResultFinish
		}
		r := engine.Result{
			Event:      event,
			Data:       make([]byte, size),
			SampleRate: e.sampleRate,
			Channels:   1,
		}
		if !fn(r) || last {
			return
		}
		sent += size
		event = engine.ResultContinue
		if !wait(e.chunkDelay) {
			return
		}
	}
}

// CancelSynthesis stops the in-flight request and waits for its goroutine.
func (e *Engine) CancelSynthesis() error {
	e.mu.Lock()
	e.cancelCount++
	e.mu.Unlock()
	e.stopInFlight()
	return nil
}

func (e *Engine) stopInFlight() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	close(cancel)
	<-done
}

// CheckAppAgreed returns the configured agreement.
func (e *Engine) CheckAppAgreed(string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agreed, nil
}

// NeedAppCredential reports whether a credential is required.
func (e *Engine) NeedAppCredential() bool {
	return e.credential
}

// PrivateData returns a stored value.
func (e *Engine) PrivateData(key string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.private[key]
	if !ok {
		return "", fmt.Errorf("%w: no private data for %q", engine.ErrInvalidParameter, key)
	}
	return v, nil
}

// SetPrivateData stores a value.
func (e *Engine) SetPrivateData(key, data string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", engine.ErrInvalidParameter)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.private[key] = data
	return nil
}

// Test control methods

// SetDelay sets the simulated processing delay.
func (e *Engine) SetDelay(delay time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = delay
}

// SetInitError makes Initialize fail with err.
func (e *Engine) SetInitError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initErr = err
}

// SetAgreement changes the answer to CheckAppAgreed.
func (e *Engine) SetAgreement(agreed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.agreed = agreed
}

// SetFailure configures synthesis to fail with the given error.
func (e *Engine) SetFailure(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shouldFail = true
	e.failureError = err
}

// ClearFailure resets the engine to normal operation.
func (e *Engine) ClearFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shouldFail = false
	e.failureError = nil
}

// Hold makes following requests wait before producing any result until
// Release is called.
func (e *Engine) Hold() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gate == nil {
		e.gate = make(chan struct{})
	}
}

// Release lets held requests continue.
func (e *Engine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gate != nil {
		close(e.gate)
		e.gate = nil
	}
}

// CallCount returns the number of StartSynthesis calls.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.callCount
}

// CancelCount returns the number of CancelSynthesis calls.
func (e *Engine) CancelCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelCount
}

// Requests returns every request seen by StartSynthesis.
func (e *Engine) Requests() []engine.SynthesisRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.SynthesisRequest(nil), e.requests...)
}

// Pitch returns the last pitch set.
func (e *Engine) Pitch() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pitch
}

// Loaded reports whether v is loaded.
func (e *Engine) Loaded(v engine.Voice) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded[v]
}

// audioSize estimates the PCM size for text at the given speed.
func (e *Engine) audioSize(text string, speed int) int {
	// Estimate ~150 words per minute at normal speed
	words := len(text) / 5
	if words < 1 {
		words = 1
	}
	if speed <= 0 {
		speed = engine.SpeedNormal
	}
	seconds := float64(words) * 60.0 / 150.0 * float64(engine.SpeedNormal) / float64(speed)
	samples := int(seconds * float64(e.sampleRate))
	return samples * 2
}
