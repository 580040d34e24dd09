// Package tts is the client side of the speech bridge. A Client queues text,
// connects to a synthesis engine and drives playback, reporting progress
// through callbacks that run on a per-client dispatcher goroutine.
package tts

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/audio"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/cache"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/queue"
)

// Client is one speech session. All methods are safe for concurrent use and
// may be called from callbacks.
type Client struct {
	mu sync.Mutex

	cfg     Config
	logger  *log.Logger
	sm      *StateMachine
	mode    Mode
	adapter *engine.Adapter
	queue   *queue.Queue

	player      audio.Player
	ownsPlayer  bool
	cache       *cache.Cache
	ownsCache   bool
	callbacks   callbacks
	dispatch    *dispatcher
	stopWatch   context.CancelFunc
	unsubscribe func()

	// Connection
	preparing bool
	connected bool

	// Playback
	gen     atomic.Uint64
	current *inflight
}

// Option configures a Client.
type Option func(*Client)

// WithConfig sets the configuration.
func WithConfig(cfg Config) Option {
	return func(c *Client) { c.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithPlayer sets the audio player. The client does not close it.
func WithPlayer(p audio.Player) Option {
	return func(c *Client) { c.player = p }
}

// WithCache sets the audio cache. The client does not close it.
func WithCache(ch *cache.Cache) Option {
	return func(c *Client) { c.cache = ch }
}

// Create returns a client for eng in StateCreated.
func Create(eng engine.Engine, opts ...Option) (*Client, error) {
	if eng == nil {
		return nil, newErrorf(CodeInvalidParameter, "Create", "engine is nil")
	}

	c := &Client{
		cfg:    DefaultConfig(),
		logger: log.Default().WithPrefix("tts"),
		sm:     NewStateMachine(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, newError(CodeInvalidParameter, "Create", err)
	}

	mode, _ := ParseMode(c.cfg.Mode)
	c.mode = mode

	voice, _ := c.cfg.DefaultVoice.Voice()
	c.adapter = engine.NewAdapter(eng,
		engine.WithLimits(c.cfg.Limits()),
		engine.WithDefaultVoice(voice),
		engine.WithDefaultSpeed(c.cfg.DefaultSpeed),
		engine.WithAdapterLogger(c.logger.WithPrefix("engine")),
	)
	c.queue = queue.New(c.cfg.MaxPending)

	if c.cache == nil && c.cfg.Cache.Enabled {
		ch, err := cache.New(c.cfg.Cache)
		if err != nil {
			return nil, newError(CodeOperationFailed, "Create", err)
		}
		c.cache, c.ownsCache = ch, true
	}

	if c.player == nil {
		c.player, c.ownsPlayer = c.newPlayer(), true
	}

	c.dispatch = newDispatcher()
	c.unsubscribe = c.adapter.OnDefaultVoiceChanged(func(prev, cur engine.Voice) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.notifyDefaultVoiceChanged(prev, cur)
	})

	if c.cfg.VoiceConfigFile != "" {
		c.watchVoiceFile()
	}

	c.logger.Debug("client created", "engine", c.adapter.Info().ID, "mode", c.mode)
	return c, nil
}

func (c *Client) newPlayer() audio.Player {
	if c.cfg.Output == "simulated" {
		return audio.NewSimPlayer()
	}
	p, err := audio.NewOtoPlayer(audio.OtoConfig{
		SampleRate: c.cfg.SampleRate,
		Channels:   c.cfg.Channels,
		Volume:     c.cfg.Volume,
	})
	if err != nil {
		c.logger.Warn("audio device unavailable, using simulated output", "err", err)
		return audio.NewSimPlayer()
	}
	return p
}

func (c *Client) watchVoiceFile() {
	w := engine.NewVoiceWatcher(c.cfg.VoiceConfigFile, c.adapter, c.logger.WithPrefix("voice"))
	if err := w.Apply(); err != nil {
		c.logger.Warn("voice config not applied", "path", c.cfg.VoiceConfigFile, "err", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.stopWatch = cancel
	go func() {
		if err := w.Run(ctx); err != nil {
			c.logger.Warn("voice config watcher stopped", "err", err)
		}
	}()
}

// Destroy releases the client. It fails with ErrOperationInProgress while a
// Prepare is pending.
func (c *Client) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkState("Destroy", StateCreated, StateReady, StatePlaying, StatePaused); err != nil {
		return err
	}
	if c.preparing {
		return newErrorf(CodeOperationInProgress, "Destroy", "prepare is pending")
	}

	c.haltLocked()
	if c.connected {
		if err := c.adapter.Deinitialize(); err != nil {
			c.logger.Warn("engine deinitialize failed", "err", err)
		}
		c.connected = false
	}
	c.unsubscribe()
	if c.stopWatch != nil {
		c.stopWatch()
	}

	if _, err := c.sm.Transition(StateNone); err != nil {
		return newError(CodeInvalidState, "Destroy", err)
	}
	c.callbacks = callbacks{}
	c.dispatch.close()

	if c.ownsPlayer {
		c.player.Close() //nolint:errcheck
	}
	if c.ownsCache {
		c.cache.Close() //nolint:errcheck
	}
	c.logger.Debug("client destroyed")
	return nil
}

// State returns the current state. It is valid in every state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sm.Current()
}

// SetMode sets the mode. Only valid in StateCreated.
func (c *Client) SetMode(m Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkState("SetMode", StateCreated); err != nil {
		return err
	}
	if !m.Valid() {
		return newErrorf(CodeInvalidParameter, "SetMode", "unknown mode %d", m)
	}
	c.mode = m
	return nil
}

// Mode returns the mode.
func (c *Client) Mode() (Mode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkState("Mode", StateCreated, StateReady, StatePlaying, StatePaused); err != nil {
		return ModeDefault, err
	}
	return c.mode, nil
}

// Voices returns the supported voices. Each range over the sequence asks the
// engine again.
func (c *Client) Voices() (iter.Seq[engine.Voice], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkState("Voices", StateCreated, StateReady, StatePlaying, StatePaused); err != nil {
		return nil, err
	}
	return c.adapter.Voices(), nil
}

// DefaultVoice returns the current default voice.
func (c *Client) DefaultVoice() (engine.Voice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkState("DefaultVoice", StateCreated, StateReady, StatePlaying, StatePaused); err != nil {
		return engine.Voice{}, err
	}
	return c.adapter.DefaultVoice(), nil
}

// MaxTextSize returns the largest text AddText accepts, in bytes. Only
// valid in StateReady.
func (c *Client) MaxTextSize() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkState("MaxTextSize", StateReady); err != nil {
		return 0, err
	}
	return c.adapter.Limits().MaxTextSize, nil
}

// SpeedRange returns the minimum, normal and maximum speed.
func (c *Client) SpeedRange() (lo, normal, hi int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkState("SpeedRange", StateReady, StatePlaying, StatePaused); err != nil {
		return 0, 0, 0, err
	}
	l := c.adapter.Limits()
	return l.SpeedMin, l.SpeedNormal, l.SpeedMax, nil
}

// PitchRange returns the minimum, normal and maximum pitch.
func (c *Client) PitchRange() (lo, normal, hi int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkState("PitchRange", StateReady, StatePlaying, StatePaused); err != nil {
		return 0, 0, 0, err
	}
	l := c.adapter.Limits()
	return l.PitchMin, l.PitchNormal, l.PitchMax, nil
}

// AddText queues text and returns its utterance id. An empty language and
// VoiceTypeAuto select the default voice; engine.SpeedAuto selects the
// default speed for the mode. AddText never waits for synthesis.
func (c *Client) AddText(text, language string, vt engine.VoiceType, speed int) (int, error) {
	const op = "AddText"

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkState(op, StateReady, StatePlaying, StatePaused); err != nil {
		return 0, err
	}
	if strings.TrimSpace(text) == "" {
		return 0, newErrorf(CodeInvalidParameter, op, "text is empty")
	}
	if limit := c.adapter.Limits().MaxTextSize; len(text) > limit {
		return 0, newErrorf(CodeInvalidParameter, op, "text is %d bytes, limit is %d", len(text), limit)
	}
	if !utf8.ValidString(text) {
		return 0, newErrorf(CodeInvalidParameter, op, "text is not valid UTF-8")
	}

	autoSpeed := engine.SpeedAuto
	if c.mode == ModeScreenReader {
		autoSpeed = c.cfg.ScreenReaderSpeed
	}
	voice, resolved, err := c.adapter.Resolve(language, vt, speed, autoSpeed)
	if err != nil {
		return 0, newError(CodeInvalidParameter, op, err)
	}

	id, err := c.queue.Push(queue.Utterance{
		Text:     text,
		Language: language,
		Voice:    voice,
		Speed:    resolved,
	})
	if err != nil {
		return 0, newError(requestCode(err), op, err)
	}
	c.logger.Debug("utterance queued", "id", id, "voice", voice, "speed", resolved, "bytes", len(text))

	c.advanceLocked()
	return id, nil
}

// Pending returns the number of queued utterances, including the one being
// spoken.
func (c *Client) Pending() int {
	return c.queue.Len()
}

// PrivateData reads engine private data. Only valid in StateReady.
func (c *Client) PrivateData(key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkState("PrivateData", StateReady); err != nil {
		return "", err
	}
	if key == "" {
		return "", newErrorf(CodeInvalidParameter, "PrivateData", "key is empty")
	}
	data, err := c.adapter.PrivateData(key)
	if err != nil {
		return "", newError(requestCode(err), "PrivateData", err)
	}
	return data, nil
}

// SetPrivateData writes engine private data. Only valid in StateReady.
func (c *Client) SetPrivateData(key, data string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkState("SetPrivateData", StateReady); err != nil {
		return err
	}
	if key == "" {
		return newErrorf(CodeInvalidParameter, "SetPrivateData", "key is empty")
	}
	if err := c.adapter.SetPrivateData(key, data); err != nil {
		return newError(requestCode(err), "SetPrivateData", err)
	}
	return nil
}

// Engine returns information about the engine.
func (c *Client) Engine() engine.Info {
	return c.adapter.Info()
}

// CacheStats returns audio cache statistics. ok is false when caching is
// disabled.
func (c *Client) CacheStats() (stats cache.Stats, ok bool) {
	if c.cache == nil {
		return cache.Stats{}, false
	}
	return c.cache.Stats(), true
}

// checkState fails with ErrInvalidState unless the current state is one of
// valid. Callers hold c.mu.
func (c *Client) checkState(op string, valid ...State) error {
	if c.sm.In(valid...) {
		return nil
	}
	return &TTSError{
		Code:    CodeInvalidState,
		Op:      op,
		Message: fmt.Sprintf("not allowed in state %s", c.sm.Current()),
	}
}

// transitionLocked moves to state to and raises state_changed.
func (c *Client) transitionLocked(to State) error {
	from, err := c.sm.Transition(to)
	if err != nil {
		return err
	}
	c.notifyStateChanged(from, to)
	return nil
}
