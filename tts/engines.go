package tts

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine/mock"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine/piper"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine/remote"
)

// NewEngine builds the engine named by cfg.Engine.
func NewEngine(cfg Config, logger *log.Logger) (engine.Engine, error) {
	if logger == nil {
		logger = log.Default()
	}

	switch cfg.Engine {
	case "mock":
		opts := []mock.Option{
			mock.WithDelay(cfg.Mock.GenerationDelay),
			mock.WithSampleRate(cfg.Mock.SampleRate),
			mock.WithAgreement(cfg.Mock.Agreed),
		}
		if cfg.Mock.RequireCredential {
			opts = append(opts, mock.WithCredentialRequired())
		}
		return mock.New(opts...), nil
	case "piper":
		e, err := piper.New(cfg.Piper, logger.WithPrefix("piper"))
		if err != nil {
			return nil, fmt.Errorf("creating piper engine: %w", err)
		}
		return e, nil
	case "remote":
		e, err := remote.New(cfg.Remote, logger.WithPrefix("remote"))
		if err != nil {
			return nil, fmt.Errorf("creating remote engine: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown TTS engine: %s", cfg.Engine)
	}
}
