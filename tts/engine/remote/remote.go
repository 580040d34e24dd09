// Package remote implements a synthesis engine backed by a TTS daemon that
// speaks the NAP TextToSpeechService over gRPC.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	napv1 "github.com/nupi-ai/nupi/api/nap/v1"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine"
)

// Request metadata keys.
const (
	MetaLanguage   = "nupi.lang.iso1"
	MetaLocale     = "tts.locale"
	MetaVoiceType  = "tts.voice.type"
	MetaSpeed      = "tts.speed"
	MetaAppID      = "tts.app.id"
	MetaCredential = "tts.app.credential"
)

// VoiceSpec is a voice the daemon is known to support.
type VoiceSpec struct {
	Language string `yaml:"language"`
	Type     string `yaml:"type"`
}

// Config configures the remote engine.
type Config struct {
	Address           string        `yaml:"address"`
	SessionID         string        `yaml:"session_id"`
	Voices            []VoiceSpec   `yaml:"voices"`
	SampleRate        int           `yaml:"sample_rate"`
	Channels          int           `yaml:"channels"`
	RequestsPerMinute int           `yaml:"requests_per_minute"` // 0 disables limiting
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	RequireCredential bool          `yaml:"require_credential"`
	DeniedApps        []string      `yaml:"denied_apps"`
}

// DefaultConfig returns the default remote configuration.
func DefaultConfig() Config {
	return Config{
		Address:           "localhost:50051",
		SessionID:         "tts",
		Voices:            []VoiceSpec{{Language: "en_US", Type: "female"}},
		SampleRate:        16000,
		Channels:          1,
		RequestsPerMinute: 0,
		RequestTimeout:    time.Minute,
	}
}

// Engine implements engine.Engine against a remote daemon.
type Engine struct {
	config   Config
	logger   *log.Logger
	dialOpts []grpc.DialOption
	voices   []engine.Voice
	limiter  *rate.Limiter

	mu     sync.Mutex
	conn   *grpc.ClientConn
	client napv1.TextToSpeechServiceClient
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a remote engine. Extra dial options are appended to the
// defaults, which use insecure transport credentials.
func New(cfg Config, logger *log.Logger, opts ...grpc.DialOption) (*Engine, error) {
	if logger == nil {
		logger = log.Default().WithPrefix("remote")
	}
	def := DefaultConfig()
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: remote address is required", engine.ErrInvalidParameter)
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = def.Channels
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if len(cfg.Voices) == 0 {
		cfg.Voices = def.Voices
	}

	e := &Engine{
		config:   cfg,
		logger:   logger,
		dialOpts: opts,
	}
	for _, spec := range cfg.Voices {
		lang, err := engine.ParseLanguage(spec.Language)
		if err != nil {
			return nil, fmt.Errorf("remote voice: %w", err)
		}
		vt, err := engine.ParseVoiceType(spec.Type)
		if err != nil {
			return nil, fmt.Errorf("remote voice: %w", err)
		}
		if vt == engine.VoiceTypeAuto {
			return nil, fmt.Errorf("%w: remote voice %s needs a concrete type", engine.ErrInvalidParameter, lang)
		}
		e.voices = append(e.voices, engine.Voice{Language: lang, Type: vt})
	}
	if cfg.RequestsPerMinute > 0 {
		e.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return e, nil
}

// Info returns the remote engine info.
func (e *Engine) Info() engine.Info {
	return engine.Info{
		ID:         "remote",
		Name:       "Remote (" + e.config.Address + ")",
		Version:    "1",
		UseNetwork: true,
	}
}

// Initialize dials the daemon and waits for its health check to report
// SERVING for the TTS service.
func (e *Engine) Initialize(ctx context.Context) error {
	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, e.dialOpts...)
	conn, err := grpc.NewClient(e.config.Address, opts...)
	if err != nil {
		return fmt.Errorf("%w: dialing %s: %w", engine.ErrUnavailable, e.config.Address, err)
	}

	service := napv1.TextToSpeechService_ServiceDesc.ServiceName
	resp, err := healthgrpc.NewHealthClient(conn).Check(ctx, &healthgrpc.HealthCheckRequest{Service: service})
	if err != nil {
		conn.Close() //nolint:errcheck
		if status.Code(err) == codes.Unavailable {
			return fmt.Errorf("%w: %s: %w", engine.ErrNetwork, e.config.Address, err)
		}
		return classifyRPC(ctx, err)
	}
	if resp.GetStatus() != healthgrpc.HealthCheckResponse_SERVING {
		conn.Close() //nolint:errcheck
		return fmt.Errorf("%w: %s is %s", engine.ErrUnavailable, service, resp.GetStatus())
	}

	e.mu.Lock()
	e.conn = conn
	e.client = napv1.NewTextToSpeechServiceClient(conn)
	e.mu.Unlock()
	e.logger.Debug("remote engine connected", "address", e.config.Address)
	return nil
}

// Deinitialize cancels any stream and closes the connection.
func (e *Engine) Deinitialize() error {
	e.stopInFlight()

	e.mu.Lock()
	conn := e.conn
	e.conn, e.client = nil, nil
	e.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("closing connection: %w", err)
	}
	return nil
}

// ForEachVoice enumerates the configured voices.
func (e *Engine) ForEachVoice(fn func(engine.Voice) bool) error {
	for _, v := range e.voices {
		if !fn(v) {
			break
		}
	}
	return nil
}

// IsValidVoice reports whether v is configured.
func (e *Engine) IsValidVoice(v engine.Voice) bool {
	return slices.Contains(e.voices, v)
}

// DefaultVoice returns the first configured voice.
func (e *Engine) DefaultVoice() (engine.Voice, bool) {
	if len(e.voices) == 0 {
		return engine.Voice{}, false
	}
	return e.voices[0], true
}

// SetPitch is not part of the protocol.
func (e *Engine) SetPitch(int) error {
	return engine.ErrNotSupported
}

// LoadVoice validates v. The daemon owns its voices.
func (e *Engine) LoadVoice(v engine.Voice) error {
	if !e.IsValidVoice(v) {
		return fmt.Errorf("%w: %s", engine.ErrInvalidVoice, v)
	}
	return nil
}

// UnloadVoice is a no-op.
func (e *Engine) UnloadVoice(engine.Voice) error {
	return nil
}

// StartSynthesis opens a synthesis stream for req on a goroutine.
func (e *Engine) StartSynthesis(ctx context.Context, req engine.SynthesisRequest, fn engine.ResultFunc) error {
	e.stopInFlight()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return engine.ErrNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.RequestTimeout)
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done

	client := e.client
	go func() {
		defer close(done)
		defer cancel()
		e.stream(ctx, client, req, fn)
	}()
	return nil
}

func (e *Engine) stream(ctx context.Context, client napv1.TextToSpeechServiceClient, req engine.SynthesisRequest, fn engine.ResultFunc) {
	fail := func(err error) {
		if ctx.Err() == context.Canceled {
			return
		}
		fn(engine.Result{Event: engine.ResultFail, Err: err})
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			fail(fmt.Errorf("%w: rate limit wait: %w", engine.ErrTimedOut, err))
			return
		}
	}

	streamID := uuid.NewString()
	logger := e.logger.With("stream", streamID, "utterance", req.UtteranceID)

	stream, err := client.StreamSynthesis(ctx, &napv1.StreamSynthesisRequest{
		SessionId: e.config.SessionID,
		StreamId:  streamID,
		Text:      req.Text,
		Metadata:  e.metadata(req),
	})
	if err != nil {
		fail(classifyRPC(ctx, err))
		return
	}

	event := engine.ResultStart
	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w: stream closed before finish", engine.ErrNetwork)
			} else {
				err = classifyRPC(ctx, err)
			}
			fail(err)
			return
		}

		switch resp.GetStatus() {
		case napv1.SynthesisStatus_SYNTHESIS_STATUS_STARTED:
			logger.Debug("synthesis started")

		case napv1.SynthesisStatus_SYNTHESIS_STATUS_PLAYING:
			chunk := resp.GetChunk()
			if len(chunk.GetData()) == 0 {
				continue
			}
			if !fn(e.result(event, chunk.GetData())) {
				return
			}
			event = engine.ResultContinue

		case napv1.SynthesisStatus_SYNTHESIS_STATUS_FINISHED:
			logger.Debug("synthesis finished")
			fn(e.result(engine.ResultFinish, nil))
			return

		case napv1.SynthesisStatus_SYNTHESIS_STATUS_ERROR:
			fail(fmt.Errorf("%w: %s", engine.ErrOperationFailed, resp.GetErrorMessage()))
			return

		case napv1.SynthesisStatus_SYNTHESIS_STATUS_INTERRUPTED:
			fail(fmt.Errorf("%w: interrupted by daemon: %s", engine.ErrOperationFailed, resp.GetMetadata()["reason"]))
			return
		}
	}
}

func (e *Engine) result(ev engine.ResultEvent, data []byte) engine.Result {
	return engine.Result{
		Event:      ev,
		Data:       data,
		SampleRate: e.config.SampleRate,
		Channels:   e.config.Channels,
	}
}

func (e *Engine) metadata(req engine.SynthesisRequest) map[string]string {
	md := map[string]string{
		MetaLanguage:  engine.BaseLanguage(req.Voice.Language),
		MetaLocale:    req.Voice.Language,
		MetaVoiceType: req.Voice.Type.String(),
		MetaSpeed:     strconv.Itoa(req.Speed),
	}
	if req.AppID != "" {
		md[MetaAppID] = req.AppID
	}
	if req.Credential != "" {
		md[MetaCredential] = req.Credential
	}
	return md
}

// CancelSynthesis cancels the stream and waits for its goroutine.
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

// CheckAppAgreed denies applications listed in DeniedApps.
func (e *Engine) CheckAppAgreed(appID string) (bool, error) {
	return !slices.Contains(e.config.DeniedApps, appID), nil
}

// NeedAppCredential reports whether requests must carry a credential.
func (e *Engine) NeedAppCredential() bool {
	return e.config.RequireCredential
}

// classifyRPC maps a gRPC error onto the engine sentinels.
func classifyRPC(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return engine.Classify(ctx.Err())
	}
	switch status.Code(err) {
	case codes.Unavailable:
		return fmt.Errorf("%w: %w", engine.ErrUnavailable, err)
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %w", engine.ErrTimedOut, err)
	case codes.Canceled:
		return fmt.Errorf("%w: %w", engine.ErrCanceled, err)
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("%w: %w", engine.ErrPermissionDenied, err)
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %w", engine.ErrInvalidParameter, err)
	case codes.ResourceExhausted:
		return fmt.Errorf("%w: %w", engine.ErrOutOfMemory, err)
	case codes.Unimplemented:
		return fmt.Errorf("%w: %w", engine.ErrNotSupported, err)
	}
	return fmt.Errorf("%w: %w", engine.ErrNetwork, err)
}
