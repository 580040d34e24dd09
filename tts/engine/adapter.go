package engine

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/charmbracelet/log"
)

// Limits are the ranges the client validates requests against.
type Limits struct {
	MaxTextSize int // In bytes
	SpeedMin    int
	SpeedNormal int
	SpeedMax    int
	PitchMin    int
	PitchNormal int
	PitchMax    int
}

// DefaultLimits returns the platform ranges.
func DefaultLimits() Limits {
	return Limits{
		MaxTextSize: 2000,
		SpeedMin:    SpeedMin,
		SpeedNormal: SpeedNormal,
		SpeedMax:    SpeedMax,
		PitchMin:    PitchMin,
		PitchNormal: PitchNormal,
		PitchMax:    PitchMax,
	}
}

// Adapter wraps an Engine. It owns the default voice, resolves AUTO
// selectors, tracks loaded voices and passes every engine error through
// Classify.
type Adapter struct {
	engine Engine
	logger *log.Logger
	limits Limits

	mu           sync.RWMutex
	defaultVoice Voice
	defaultSpeed int
	loaded       map[Voice]bool
	initialized  bool
	listeners    map[int]func(prev, cur Voice)
	nextListener int
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithLimits overrides the default limits.
func WithLimits(l Limits) AdapterOption {
	return func(a *Adapter) { a.limits = l }
}

// WithDefaultVoice sets the configured default voice. It takes precedence
// over the engine's own default when the engine supports it. A voice with
// VoiceTypeAuto takes the first type advertised for its language.
func WithDefaultVoice(v Voice) AdapterOption {
	return func(a *Adapter) { a.defaultVoice = v }
}

// WithDefaultSpeed sets the speed AUTO resolves to.
func WithDefaultSpeed(speed int) AdapterOption {
	return func(a *Adapter) { a.defaultSpeed = speed }
}

// WithAdapterLogger sets the logger.
func WithAdapterLogger(l *log.Logger) AdapterOption {
	return func(a *Adapter) { a.logger = l }
}

// NewAdapter returns an adapter for e.
func NewAdapter(e Engine, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		engine:       e,
		logger:       log.Default().WithPrefix("engine"),
		limits:       DefaultLimits(),
		defaultSpeed: SpeedNormal,
		loaded:       make(map[Voice]bool),
		listeners:    make(map[int]func(prev, cur Voice)),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.defaultVoice.Language != "" && a.defaultVoice.Type == VoiceTypeAuto {
		a.defaultVoice.Type = a.firstTypeFor(a.defaultVoice.Language)
	}
	if !e.IsValidVoice(a.defaultVoice) {
		a.defaultVoice = Voice{}
		if src, ok := e.(DefaultVoiceSource); ok {
			if v, ok := src.DefaultVoice(); ok {
				a.defaultVoice = v
			}
		}
	}
	if a.defaultVoice.IsZero() || !e.IsValidVoice(a.defaultVoice) {
		for v := range a.Voices() {
			a.defaultVoice = v
			break
		}
	}
	return a
}

// Info returns the engine info.
func (a *Adapter) Info() Info {
	return a.engine.Info()
}

// Limits returns the validation ranges.
func (a *Adapter) Limits() Limits {
	return a.limits
}

// Initialize initializes the engine.
func (a *Adapter) Initialize(ctx context.Context) error {
	if err := a.engine.Initialize(ctx); err != nil {
		return Classify(err)
	}
	a.mu.Lock()
	a.initialized = true
	a.mu.Unlock()
	a.logger.Debug("engine initialized", "engine", a.engine.Info().ID)
	return nil
}

// Deinitialize unloads every loaded voice and deinitializes the engine.
func (a *Adapter) Deinitialize() error {
	a.mu.Lock()
	loaded := make([]Voice, 0, len(a.loaded))
	for v := range a.loaded {
		loaded = append(loaded, v)
	}
	a.loaded = make(map[Voice]bool)
	a.initialized = false
	a.mu.Unlock()

	for _, v := range loaded {
		if err := a.engine.UnloadVoice(v); err != nil {
			a.logger.Warn("unload voice failed", "voice", v, "err", err)
		}
	}
	if err := a.engine.Deinitialize(); err != nil {
		return Classify(err)
	}
	a.logger.Debug("engine deinitialized", "engine", a.engine.Info().ID)
	return nil
}

// Voices enumerates the supported voices. Every range over the returned
// sequence asks the engine again.
func (a *Adapter) Voices() iter.Seq[Voice] {
	return func(yield func(Voice) bool) {
		err := a.engine.ForEachVoice(func(v Voice) bool {
			return yield(v)
		})
		if err != nil {
			a.logger.Warn("voice enumeration failed", "err", err)
		}
	}
}

// IsValidVoice reports whether v is supported.
func (a *Adapter) IsValidVoice(v Voice) bool {
	return a.engine.IsValidVoice(v)
}

// DefaultVoice returns the current default voice.
func (a *Adapter) DefaultVoice() Voice {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.defaultVoice
}

// DefaultSpeed returns the speed AUTO resolves to.
func (a *Adapter) DefaultSpeed() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.defaultSpeed
}

// SetDefaultSpeed changes the speed AUTO resolves to.
func (a *Adapter) SetDefaultSpeed(speed int) error {
	if speed < a.limits.SpeedMin || speed > a.limits.SpeedMax {
		return fmt.Errorf("%w: speed %d out of range [%d, %d]", ErrInvalidParameter, speed, a.limits.SpeedMin, a.limits.SpeedMax)
	}
	a.mu.Lock()
	a.defaultSpeed = speed
	a.mu.Unlock()
	return nil
}

// SetDefaultVoice changes the default voice and notifies listeners when it
// actually changed.
func (a *Adapter) SetDefaultVoice(v Voice) error {
	if v.Type == VoiceTypeAuto || !a.engine.IsValidVoice(v) {
		return fmt.Errorf("%w: %s", ErrInvalidVoice, v)
	}

	a.mu.Lock()
	prev := a.defaultVoice
	if prev == v {
		a.mu.Unlock()
		return nil
	}
	a.defaultVoice = v
	listeners := make([]func(prev, cur Voice), 0, len(a.listeners))
	for _, fn := range a.listeners {
		listeners = append(listeners, fn)
	}
	a.mu.Unlock()

	a.logger.Info("default voice changed", "from", prev, "to", v)
	for _, fn := range listeners {
		fn(prev, v)
	}
	return nil
}

// OnDefaultVoiceChanged registers fn to be called when the default voice
// changes. The returned function removes the registration.
func (a *Adapter) OnDefaultVoiceChanged(fn func(prev, cur Voice)) (cancel func()) {
	a.mu.Lock()
	id := a.nextListener
	a.nextListener++
	a.listeners[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

// Resolve turns the selectors of an add-text request into a concrete voice
// and speed. An empty language and VoiceTypeAuto resolve against the
// default voice; SpeedAuto resolves to autoSpeed, or to the default speed
// when autoSpeed is SpeedAuto too.
func (a *Adapter) Resolve(lang string, vt VoiceType, speed, autoSpeed int) (Voice, int, error) {
	if !vt.Valid() {
		return Voice{}, 0, fmt.Errorf("%w: voice type %d", ErrInvalidParameter, vt)
	}
	if speed != SpeedAuto && (speed < a.limits.SpeedMin || speed > a.limits.SpeedMax) {
		return Voice{}, 0, fmt.Errorf("%w: speed %d out of range [%d, %d]", ErrInvalidParameter, speed, a.limits.SpeedMin, a.limits.SpeedMax)
	}

	def := a.DefaultVoice()
	if lang == "" {
		lang = def.Language
	} else {
		parsed, err := ParseLanguage(lang)
		if err != nil {
			return Voice{}, 0, err
		}
		lang = parsed
	}

	v := Voice{Language: lang, Type: vt}
	if vt == VoiceTypeAuto {
		if lang == def.Language {
			v.Type = def.Type
		} else {
			v.Type = a.firstTypeFor(lang)
		}
	}
	if v.Type == VoiceTypeAuto || !a.engine.IsValidVoice(v) {
		return Voice{}, 0, fmt.Errorf("%w: %s", ErrInvalidVoice, v)
	}

	if speed == SpeedAuto {
		speed = autoSpeed
		if speed == SpeedAuto {
			speed = a.DefaultSpeed()
		}
	}
	return v, speed, nil
}

func (a *Adapter) firstTypeFor(lang string) VoiceType {
	for v := range a.Voices() {
		if v.Language == lang {
			return v.Type
		}
	}
	return VoiceTypeAuto
}

// SetPitch forwards the pitch to the engine.
func (a *Adapter) SetPitch(pitch int) error {
	if pitch < a.limits.PitchMin || pitch > a.limits.PitchMax {
		return fmt.Errorf("%w: pitch %d out of range [%d, %d]", ErrInvalidParameter, pitch, a.limits.PitchMin, a.limits.PitchMax)
	}
	return Classify(a.engine.SetPitch(pitch))
}

// Synthesize loads the request voice if needed and starts synthesis. Every
// result is checked before fn sees it: failures are classified and unknown
// events are turned into ResultFail.
func (a *Adapter) Synthesize(ctx context.Context, req SynthesisRequest, fn ResultFunc) error {
	a.mu.RLock()
	initialized := a.initialized
	a.mu.RUnlock()
	if !initialized {
		return ErrNotInitialized
	}
	if err := a.ensureLoaded(req.Voice); err != nil {
		return err
	}

	wrapped := func(r Result) bool {
		switch r.Event {
		case ResultStart, ResultContinue, ResultFinish:
		case ResultFail:
			if r.Err == nil {
				r.Err = ErrOperationFailed
			}
			r.Err = Classify(r.Err)
		default:
			r = Result{Event: ResultFail, Err: fmt.Errorf("%w: undefined result event %d", ErrOperationFailed, r.Event)}
		}
		return fn(r)
	}

	if err := a.engine.StartSynthesis(ctx, req, wrapped); err != nil {
		return Classify(err)
	}
	return nil
}

func (a *Adapter) ensureLoaded(v Voice) error {
	a.mu.RLock()
	loaded := a.loaded[v]
	a.mu.RUnlock()
	if loaded {
		return nil
	}
	if err := a.engine.LoadVoice(v); err != nil {
		return Classify(err)
	}
	a.mu.Lock()
	a.loaded[v] = true
	a.mu.Unlock()
	return nil
}

// Cancel cancels the in-flight synthesis.
func (a *Adapter) Cancel() error {
	return Classify(a.engine.CancelSynthesis())
}

// CheckAgreement fails with ErrPermissionDenied when the application has
// not agreed to the engine's terms.
func (a *Adapter) CheckAgreement(appID string) error {
	agreed, err := a.engine.CheckAppAgreed(appID)
	if err != nil {
		return Classify(err)
	}
	if !agreed {
		return fmt.Errorf("%w: application %q has not agreed to the engine terms", ErrPermissionDenied, appID)
	}
	return nil
}

// NeedsCredential reports whether the engine requires a credential.
func (a *Adapter) NeedsCredential() bool {
	return a.engine.NeedAppCredential()
}

// PrivateData reads engine private data.
func (a *Adapter) PrivateData(key string) (string, error) {
	pd, ok := a.engine.(PrivateDataExchanger)
	if !ok {
		return "", ErrNotSupported
	}
	data, err := pd.PrivateData(key)
	if err != nil {
		return "", Classify(err)
	}
	return data, nil
}

// SetPrivateData writes engine private data.
func (a *Adapter) SetPrivateData(key, data string) error {
	pd, ok := a.engine.(PrivateDataExchanger)
	if !ok {
		return ErrNotSupported
	}
	return Classify(pd.SetPrivateData(key, data))
}
