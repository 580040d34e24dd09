// Package piper drives the piper binary (https://github.com/rhasspy/piper)
// as a synthesis engine. Every request runs a fresh process with the text on
// stdin and raw PCM on stdout.
package piper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine"
)

// Audio format of piper's raw output.
const (
	SampleRate = 22050
	Channels   = 1

	// Speaking rate multipliers at SpeedMin and SpeedMax.
	MinRate = 0.5
	MaxRate = 2.0
)

// VoiceModel binds a voice to an ONNX model file.
type VoiceModel struct {
	Language string `yaml:"language"`
	Type     string `yaml:"type"`
	Model    string `yaml:"model"`
}

// Config configures the piper engine.
type Config struct {
	Binary      string        `yaml:"binary"`
	ModelDir    string        `yaml:"model_dir"`
	Voices      []VoiceModel  `yaml:"voices"`
	DefaultType string        `yaml:"default_type"` // Type given to scanned models
	Timeout     time.Duration `yaml:"timeout"`      // Per request
	GracePeriod time.Duration `yaml:"grace_period"` // Between SIGINT and SIGKILL
	ChunkSize   int           `yaml:"chunk_size"`
}

// DefaultConfig returns the default piper configuration.
func DefaultConfig() Config {
	return Config{
		Binary:      "piper",
		DefaultType: "female",
		Timeout:     30 * time.Second,
		GracePeriod: 500 * time.Millisecond,
		ChunkSize:   4096,
	}
}

// Engine implements engine.Engine on top of the piper CLI.
type Engine struct {
	config Config
	logger *log.Logger

	mu         sync.Mutex
	binaryPath string
	models     map[engine.Voice]string
	order      []engine.Voice
	cancel     context.CancelFunc
	done       chan struct{}
}

// New returns a piper engine. Voices come from cfg.Voices, or from the
// *.onnx files in cfg.ModelDir when none are listed.
func New(cfg Config, logger *log.Logger) (*Engine, error) {
	if logger == nil {
		logger = log.Default().WithPrefix("piper")
	}
	def := DefaultConfig()
	if cfg.Binary == "" {
		cfg.Binary = def.Binary
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = def.GracePeriod
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.DefaultType == "" {
		cfg.DefaultType = def.DefaultType
	}

	e := &Engine{
		config: cfg,
		logger: logger,
		models: make(map[engine.Voice]string),
	}

	voices := cfg.Voices
	if len(voices) == 0 && cfg.ModelDir != "" {
		scanned, err := ScanModels(cfg.ModelDir, cfg.DefaultType)
		if err != nil {
			return nil, err
		}
		voices = scanned
	}
	for _, vm := range voices {
		lang, err := engine.ParseLanguage(vm.Language)
		if err != nil {
			return nil, fmt.Errorf("piper voice %q: %w", vm.Model, err)
		}
		vt, err := engine.ParseVoiceType(vm.Type)
		if err != nil {
			return nil, fmt.Errorf("piper voice %q: %w", vm.Model, err)
		}
		if vt == engine.VoiceTypeAuto {
			vt, _ = engine.ParseVoiceType(cfg.DefaultType)
		}
		v := engine.Voice{Language: lang, Type: vt}
		if _, dup := e.models[v]; dup {
			continue
		}
		e.models[v] = vm.Model
		e.order = append(e.order, v)
	}
	if len(e.order) == 0 {
		return nil, fmt.Errorf("%w: no piper voices configured", engine.ErrInvalidParameter)
	}
	return e, nil
}

// ScanModels lists the voice models in dir. Piper model files are named
// "<language>-<name>-<quality>.onnx"; only the first model per language is
// kept.
func ScanModels(dir, voiceType string) ([]VoiceModel, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.onnx"))
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	sort.Strings(matches)

	seen := make(map[string]bool)
	var models []VoiceModel
	for _, path := range matches {
		name := strings.TrimSuffix(filepath.Base(path), ".onnx")
		lang, _, _ := strings.Cut(name, "-")
		if _, err := engine.ParseLanguage(lang); err != nil || seen[lang] {
			continue
		}
		seen[lang] = true
		models = append(models, VoiceModel{Language: lang, Type: voiceType, Model: path})
	}
	return models, nil
}

// Info returns the piper engine info.
func (e *Engine) Info() engine.Info {
	return engine.Info{
		ID:      "piper",
		Name:    "Piper",
		Version: "1",
	}
}

// Initialize checks that the binary and every model file are present.
func (e *Engine) Initialize(ctx context.Context) error {
	path, err := exec.LookPath(e.config.Binary)
	if err != nil {
		return fmt.Errorf("%w: piper binary not found: %w", engine.ErrUnavailable, err)
	}
	for v, model := range e.models {
		if _, err := os.Stat(model); err != nil {
			return fmt.Errorf("%w: model for %s: %w", engine.ErrUnavailable, v, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	e.binaryPath = path
	e.mu.Unlock()
	e.logger.Debug("piper ready", "binary", path, "voices", len(e.order))
	return nil
}

// Deinitialize cancels any running process.
func (e *Engine) Deinitialize() error {
	e.stopInFlight()
	e.mu.Lock()
	e.binaryPath = ""
	e.mu.Unlock()
	return nil
}

// ForEachVoice enumerates the configured voices.
func (e *Engine) ForEachVoice(fn func(engine.Voice) bool) error {
	for _, v := range e.order {
		if !fn(v) {
			break
		}
	}
	return nil
}

// IsValidVoice reports whether a model is configured for v.
func (e *Engine) IsValidVoice(v engine.Voice) bool {
	_, ok := e.models[v]
	return ok
}

// DefaultVoice returns the first configured voice.
func (e *Engine) DefaultVoice() (engine.Voice, bool) {
	return e.order[0], true
}

// SetPitch is not supported by piper.
func (e *Engine) SetPitch(int) error {
	return engine.ErrNotSupported
}

// LoadVoice checks that the model exists. Piper loads the model on each run.
func (e *Engine) LoadVoice(v engine.Voice) error {
	model, ok := e.models[v]
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrInvalidVoice, v)
	}
	if _, err := os.Stat(model); err != nil {
		return fmt.Errorf("%w: %w", engine.ErrUnavailable, err)
	}
	return nil
}

// UnloadVoice is a no-op.
func (e *Engine) UnloadVoice(engine.Voice) error {
	return nil
}

// StartSynthesis runs piper for req on a goroutine.
func (e *Engine) StartSynthesis(ctx context.Context, req engine.SynthesisRequest, fn engine.ResultFunc) error {
	e.stopInFlight()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.binaryPath == "" {
		return engine.ErrNotInitialized
	}
	model, ok := e.models[req.Voice]
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrInvalidVoice, req.Voice)
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	cmd := exec.CommandContext(ctx, e.binaryPath,
		"--model", model,
		"--output-raw",
		"--length-scale", fmt.Sprintf("%.2f", LengthScale(req.Speed)),
	)
	cmd.Stdin = strings.NewReader(req.Text)
	// Ask nicely first; WaitDelay escalates to SIGKILL.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = e.config.GracePeriod
	var stderr strings.Builder
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("piper stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("%w: starting piper: %w", engine.ErrUnavailable, err)
	}
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done

	go func() {
		defer close(done)
		defer cancel()
		e.stream(ctx, cancel, cmd, stdout, &stderr, req, fn)
	}()
	return nil
}

// stream forwards stdout in chunks. One chunk is held back so that the last
// piece of audio travels with ResultFinish.
func (e *Engine) stream(ctx context.Context, cancel context.CancelFunc, cmd *exec.Cmd, stdout io.Reader, stderr *strings.Builder, req engine.SynthesisRequest, fn engine.ResultFunc) {
	start := time.Now()
	event := engine.ResultStart
	var held []byte
	buf := make([]byte, e.config.ChunkSize)
	deliver := true

	for deliver {
		n, err := io.ReadFull(stdout, buf)
		if n > 0 {
			if held != nil {
				deliver = fn(result(event, held))
				event = engine.ResultContinue
			}
			held = append([]byte(nil), buf[:n]...)
		}
		if err != nil {
			break
		}
	}

	if !deliver {
		cancel()
	}
	werr := cmd.Wait()
	if !deliver || ctx.Err() == context.Canceled {
		return
	}

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		fn(engine.Result{Event: engine.ResultFail, Err: fmt.Errorf("%w: piper exceeded %s", engine.ErrTimedOut, e.config.Timeout)})
	case werr != nil:
		fn(engine.Result{Event: engine.ResultFail, Err: fmt.Errorf("piper failed: %w, stderr: %s", werr, strings.TrimSpace(stderr.String()))})
	case held == nil:
		fn(engine.Result{Event: engine.ResultFail, Err: errors.New("piper produced no audio")})
	default:
		e.logger.Debug("piper finished", "utterance", req.UtteranceID, "took", time.Since(start))
		fn(result(engine.ResultFinish, held))
	}
}

func result(ev engine.ResultEvent, data []byte) engine.Result {
	return engine.Result{Event: ev, Data: data, SampleRate: SampleRate, Channels: Channels}
}

// CancelSynthesis interrupts the running process and waits for it to exit.
func (e *Engine) CancelSynthesis() error {
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
	cancel()
	<-done
}

// CheckAppAgreed always agrees; piper runs locally.
func (e *Engine) CheckAppAgreed(string) (bool, error) {
	return true, nil
}

// NeedAppCredential returns false.
func (e *Engine) NeedAppCredential() bool {
	return false
}

// Rate maps a platform speed to piper's speaking rate multiplier.
// SpeedMin..SpeedNormal covers MinRate..1 and SpeedNormal..SpeedMax covers
// 1..MaxRate.
func Rate(speed int) float64 {
	switch {
	case speed <= engine.SpeedAuto:
		return 1
	case speed <= engine.SpeedNormal:
		return MinRate + float64(speed-engine.SpeedMin)*(1-MinRate)/float64(engine.SpeedNormal-engine.SpeedMin)
	case speed >= engine.SpeedMax:
		return MaxRate
	default:
		return 1 + float64(speed-engine.SpeedNormal)*(MaxRate-1)/float64(engine.SpeedMax-engine.SpeedNormal)
	}
}

// LengthScale is piper's --length-scale for a platform speed.
func LengthScale(speed int) float64 {
	return 1 / Rate(speed)
}
