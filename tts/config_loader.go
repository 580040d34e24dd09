package tts

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"

	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/cache"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine/piper"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine/remote"
)

// LoadConfigFromViper loads TTS configuration from Viper. TTS_* environment
// variables are applied last and win over the config file.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	// Engine selection and identity
	if viper.IsSet("tts.engine") {
		cfg.Engine = viper.GetString("tts.engine")
	}
	if viper.IsSet("tts.app_id") {
		cfg.AppID = viper.GetString("tts.app_id")
	}
	if viper.IsSet("tts.credential") {
		cfg.Credential = viper.GetString("tts.credential")
	}
	if viper.IsSet("tts.mode") {
		cfg.Mode = viper.GetString("tts.mode")
	}
	if viper.IsSet("tts.connect_timeout") {
		cfg.ConnectTimeout = durationOr("tts.connect_timeout", cfg.ConnectTimeout)
	}

	// Limits
	if viper.IsSet("tts.max_text_size") {
		cfg.MaxTextSize = viper.GetInt("tts.max_text_size")
	}
	if viper.IsSet("tts.max_pending") {
		cfg.MaxPending = viper.GetInt("tts.max_pending")
	}

	// Audio settings
	if viper.IsSet("tts.output") {
		cfg.Output = viper.GetString("tts.output")
	}
	if viper.IsSet("tts.sample_rate") {
		cfg.SampleRate = viper.GetInt("tts.sample_rate")
	}
	if viper.IsSet("tts.channels") {
		cfg.Channels = viper.GetInt("tts.channels")
	}
	if viper.IsSet("tts.volume") {
		cfg.Volume = viper.GetFloat64("tts.volume")
	}
	if viper.IsSet("tts.pitch") {
		cfg.Pitch = viper.GetInt("tts.pitch")
	}

	// Playback settings
	if viper.IsSet("tts.ready_when_drained") {
		cfg.ReadyWhenDrained = viper.GetBool("tts.ready_when_drained")
	}

	// Voice settings
	if viper.IsSet("tts.default_voice.language") {
		cfg.DefaultVoice.Language = viper.GetString("tts.default_voice.language")
	}
	if viper.IsSet("tts.default_voice.type") {
		cfg.DefaultVoice.Type = viper.GetString("tts.default_voice.type")
	}
	if viper.IsSet("tts.default_speed") {
		cfg.DefaultSpeed = viper.GetInt("tts.default_speed")
	}
	if viper.IsSet("tts.screen_reader_speed") {
		cfg.ScreenReaderSpeed = viper.GetInt("tts.screen_reader_speed")
	}
	if viper.IsSet("tts.voice_config_file") {
		cfg.VoiceConfigFile = viper.GetString("tts.voice_config_file")
	}

	if viper.IsSet("tts.log.level") {
		cfg.Log.Level = viper.GetString("tts.log.level")
	}
	if viper.IsSet("tts.log.file") {
		cfg.Log.File = viper.GetString("tts.log.file")
	}

	cfg.Cache = loadCacheConfig()
	cfg.Mock = loadMockConfig()

	var err error
	if cfg.Piper, err = loadPiperConfig(); err != nil {
		return cfg, err
	}
	if cfg.Remote, err = loadRemoteConfig(); err != nil {
		return cfg, err
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("reading environment: %w", err)
	}

	// Validate the loaded configuration
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid TTS configuration: %w", err)
	}

	return cfg, nil
}

// durationOr accepts both duration strings ("250ms") and plain seconds.
func durationOr(key string, fallback time.Duration) time.Duration {
	s := viper.GetString(key)
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if secs := viper.GetFloat64(key); secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

// loadCacheConfig loads audio cache configuration from Viper.
func loadCacheConfig() cache.Config {
	cfg := cache.DefaultConfig()

	if viper.IsSet("tts.cache.enabled") {
		cfg.Enabled = viper.GetBool("tts.cache.enabled")
	}
	if viper.IsSet("tts.cache.memory_bytes") {
		cfg.MemoryBytes = viper.GetInt64("tts.cache.memory_bytes")
	}
	if viper.IsSet("tts.cache.dir") {
		cfg.Dir = viper.GetString("tts.cache.dir")
	}
	if viper.IsSet("tts.cache.disk_bytes") {
		cfg.DiskBytes = viper.GetInt64("tts.cache.disk_bytes")
	}
	if viper.IsSet("tts.cache.compression_level") {
		cfg.CompressionLevel = viper.GetInt("tts.cache.compression_level")
	}

	return cfg
}

// loadPiperConfig loads Piper-specific configuration from Viper.
func loadPiperConfig() (piper.Config, error) {
	cfg := piper.DefaultConfig()

	if viper.IsSet("tts.piper.binary") {
		cfg.Binary = viper.GetString("tts.piper.binary")
	}
	if viper.IsSet("tts.piper.model_dir") {
		cfg.ModelDir = viper.GetString("tts.piper.model_dir")
	}
	if viper.IsSet("tts.piper.voices") {
		if err := viper.UnmarshalKey("tts.piper.voices", &cfg.Voices); err != nil {
			return cfg, fmt.Errorf("parsing tts.piper.voices: %w", err)
		}
	}
	if viper.IsSet("tts.piper.default_type") {
		cfg.DefaultType = viper.GetString("tts.piper.default_type")
	}
	if viper.IsSet("tts.piper.timeout") {
		cfg.Timeout = durationOr("tts.piper.timeout", cfg.Timeout)
	}
	if viper.IsSet("tts.piper.grace_period") {
		cfg.GracePeriod = durationOr("tts.piper.grace_period", cfg.GracePeriod)
	}
	if viper.IsSet("tts.piper.chunk_size") {
		cfg.ChunkSize = viper.GetInt("tts.piper.chunk_size")
	}

	return cfg, nil
}

// loadRemoteConfig loads remote daemon configuration from Viper.
func loadRemoteConfig() (remote.Config, error) {
	cfg := remote.DefaultConfig()

	if viper.IsSet("tts.remote.address") {
		cfg.Address = viper.GetString("tts.remote.address")
	}
	if viper.IsSet("tts.remote.session_id") {
		cfg.SessionID = viper.GetString("tts.remote.session_id")
	}
	if viper.IsSet("tts.remote.voices") {
		if err := viper.UnmarshalKey("tts.remote.voices", &cfg.Voices); err != nil {
			return cfg, fmt.Errorf("parsing tts.remote.voices: %w", err)
		}
	}
	if viper.IsSet("tts.remote.sample_rate") {
		cfg.SampleRate = viper.GetInt("tts.remote.sample_rate")
	}
	if viper.IsSet("tts.remote.channels") {
		cfg.Channels = viper.GetInt("tts.remote.channels")
	}
	if viper.IsSet("tts.remote.requests_per_minute") {
		cfg.RequestsPerMinute = viper.GetInt("tts.remote.requests_per_minute")
	}
	if viper.IsSet("tts.remote.request_timeout") {
		cfg.RequestTimeout = durationOr("tts.remote.request_timeout", cfg.RequestTimeout)
	}
	if viper.IsSet("tts.remote.require_credential") {
		cfg.RequireCredential = viper.GetBool("tts.remote.require_credential")
	}
	if viper.IsSet("tts.remote.denied_apps") {
		cfg.DeniedApps = viper.GetStringSlice("tts.remote.denied_apps")
	}

	return cfg, nil
}

// loadMockConfig loads Mock TTS-specific configuration from Viper.
func loadMockConfig() MockConfig {
	cfg := DefaultMockConfig()

	if viper.IsSet("tts.mock.generation_delay") {
		cfg.GenerationDelay = durationOr("tts.mock.generation_delay", cfg.GenerationDelay)
	}
	if viper.IsSet("tts.mock.sample_rate") {
		cfg.SampleRate = viper.GetInt("tts.mock.sample_rate")
	}
	if viper.IsSet("tts.mock.agreed") {
		cfg.Agreed = viper.GetBool("tts.mock.agreed")
	}
	if viper.IsSet("tts.mock.require_credential") {
		cfg.RequireCredential = viper.GetBool("tts.mock.require_credential")
	}

	return cfg
}

// SetDefaults sets default values in Viper for TTS configuration.
func SetDefaults() {
	defaults := DefaultConfig()

	viper.SetDefault("tts.engine", defaults.Engine)
	viper.SetDefault("tts.app_id", defaults.AppID)
	viper.SetDefault("tts.mode", defaults.Mode)
	viper.SetDefault("tts.connect_timeout", defaults.ConnectTimeout.String())
	viper.SetDefault("tts.max_text_size", defaults.MaxTextSize)
	viper.SetDefault("tts.max_pending", defaults.MaxPending)

	// Audio settings
	viper.SetDefault("tts.output", defaults.Output)
	viper.SetDefault("tts.sample_rate", defaults.SampleRate)
	viper.SetDefault("tts.channels", defaults.Channels)
	viper.SetDefault("tts.volume", defaults.Volume)
	viper.SetDefault("tts.pitch", defaults.Pitch)
	viper.SetDefault("tts.ready_when_drained", defaults.ReadyWhenDrained)

	// Voice settings
	viper.SetDefault("tts.default_speed", defaults.DefaultSpeed)
	viper.SetDefault("tts.screen_reader_speed", defaults.ScreenReaderSpeed)
	viper.SetDefault("tts.log.level", defaults.Log.Level)

	// Cache defaults
	viper.SetDefault("tts.cache.enabled", defaults.Cache.Enabled)
	viper.SetDefault("tts.cache.memory_bytes", defaults.Cache.MemoryBytes)
	viper.SetDefault("tts.cache.disk_bytes", defaults.Cache.DiskBytes)
	viper.SetDefault("tts.cache.compression_level", defaults.Cache.CompressionLevel)

	// Piper defaults
	viper.SetDefault("tts.piper.binary", defaults.Piper.Binary)
	viper.SetDefault("tts.piper.default_type", defaults.Piper.DefaultType)
	viper.SetDefault("tts.piper.timeout", defaults.Piper.Timeout.String())
	viper.SetDefault("tts.piper.grace_period", defaults.Piper.GracePeriod.String())
	viper.SetDefault("tts.piper.chunk_size", defaults.Piper.ChunkSize)

	// Remote defaults
	viper.SetDefault("tts.remote.address", defaults.Remote.Address)
	viper.SetDefault("tts.remote.session_id", defaults.Remote.SessionID)
	viper.SetDefault("tts.remote.sample_rate", defaults.Remote.SampleRate)
	viper.SetDefault("tts.remote.channels", defaults.Remote.Channels)
	viper.SetDefault("tts.remote.request_timeout", defaults.Remote.RequestTimeout.String())

	// Mock defaults
	viper.SetDefault("tts.mock.generation_delay", defaults.Mock.GenerationDelay.String())
	viper.SetDefault("tts.mock.sample_rate", defaults.Mock.SampleRate)
	viper.SetDefault("tts.mock.agreed", defaults.Mock.Agreed)
}
