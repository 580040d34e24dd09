// Package engine defines the synthesis engine plugin contract and the
// adapter the client uses to talk to an engine.
package engine

import (
	"context"
	"time"
)

// Info describes an engine.
type Info struct {
	ID         string // Stable engine identifier, e.g. "mock"
	Name       string // Human-readable name
	Version    string
	UseNetwork bool // Needs network access to synthesize
}

// ResultEvent is the kind of a synthesis result.
type ResultEvent int

const (
	// ResultFail reports that synthesis failed. Err carries the cause.
	ResultFail ResultEvent = iota
	// ResultStart carries the first chunk of audio.
	ResultStart
	// ResultContinue carries a subsequent chunk of audio.
	ResultContinue
	// ResultFinish carries the last (possibly empty) chunk of audio.
	ResultFinish
)

// String returns the string representation of the event.
func (e ResultEvent) String() string {
	switch e {
	case ResultFail:
		return "fail"
	case ResultStart:
		return "start"
	case ResultContinue:
		return "continue"
	case ResultFinish:
		return "finish"
	default:
		return "unknown"
	}
}

// Result is one synthesis event delivered by an engine.
type Result struct {
	Event      ResultEvent
	Data       []byte // Signed 16-bit little-endian PCM
	SampleRate int
	Channels   int
	Err        error // Set when Event is ResultFail
}

// ResultFunc receives synthesis results. Engines call it from their own
// goroutine. Returning false asks the engine to stop delivering results for
// the current request.
type ResultFunc func(Result) bool

// SynthesisRequest is one text to synthesize.
type SynthesisRequest struct {
	UtteranceID int
	Text        string
	Voice       Voice
	Speed       int
	AppID       string
	Credential  string
}

// Engine is the contract a synthesis engine implements.
type Engine interface {
	// Info returns static information about the engine.
	Info() Info

	// Initialize connects to or starts the engine.
	Initialize(ctx context.Context) error

	// Deinitialize releases everything Initialize acquired.
	Deinitialize() error

	// ForEachVoice calls fn for every supported voice until fn returns false.
	// It must work before Initialize.
	ForEachVoice(fn func(Voice) bool) error

	// IsValidVoice reports whether the engine can speak with v.
	IsValidVoice(v Voice) bool

	// SetPitch sets the pitch for following requests.
	SetPitch(pitch int) error

	// LoadVoice prepares v for synthesis.
	LoadVoice(v Voice) error

	// UnloadVoice releases resources held for v.
	UnloadVoice(v Voice) error

	// StartSynthesis starts synthesizing req and returns without waiting.
	// Results, including failures after the call returned, are delivered to
	// fn. At most one request is in flight at a time.
	StartSynthesis(ctx context.Context, req SynthesisRequest, fn ResultFunc) error

	// CancelSynthesis aborts the in-flight request, if any. No further
	// results for it are delivered once it returns.
	CancelSynthesis() error

	// CheckAppAgreed reports whether the application accepted the engine's
	// terms.
	CheckAppAgreed(appID string) (bool, error)

	// NeedAppCredential reports whether requests must carry a credential.
	NeedAppCredential() bool
}

// PrivateDataExchanger is implemented by engines that accept engine-specific
// key/value data from applications.
type PrivateDataExchanger interface {
	PrivateData(key string) (string, error)
	SetPrivateData(key, data string) error
}

// DefaultVoiceSource is implemented by engines that have an opinion about
// the default voice.
type DefaultVoiceSource interface {
	DefaultVoice() (Voice, bool)
}

// PCMDuration returns the playing time of signed 16-bit PCM data.
func PCMDuration(size, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := size / (2 * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
