package tts

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/cache"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine/piper"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine/remote"
)

// Config contains all client configuration options.
type Config struct {
	// Engine selection and identity
	Engine     string `yaml:"engine" env:"TTS_ENGINE"`
	AppID      string `yaml:"app_id" env:"TTS_APP_ID"`
	Credential string `yaml:"credential" env:"TTS_CREDENTIAL"`
	Mode       string `yaml:"mode" env:"TTS_MODE"`

	// Connection
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"TTS_CONNECT_TIMEOUT"`

	// Limits
	MaxTextSize int `yaml:"max_text_size" env:"TTS_MAX_TEXT_SIZE"`
	MaxPending  int `yaml:"max_pending" env:"TTS_MAX_PENDING"` // 0 means unbounded

	// Audio settings
	Output     string  `yaml:"output" env:"TTS_OUTPUT"` // device or simulated
	SampleRate int     `yaml:"sample_rate" env:"TTS_SAMPLE_RATE"`
	Channels   int     `yaml:"channels" env:"TTS_CHANNELS"`
	Volume     float64 `yaml:"volume" env:"TTS_VOLUME"`
	Pitch      int     `yaml:"pitch" env:"TTS_PITCH"` // 0 leaves the engine default

	// Playback settings
	ReadyWhenDrained bool `yaml:"ready_when_drained" env:"TTS_READY_WHEN_DRAINED"`

	// Voice settings
	DefaultVoice      VoiceConfig `yaml:"default_voice"`
	DefaultSpeed      int         `yaml:"default_speed" env:"TTS_DEFAULT_SPEED"`
	ScreenReaderSpeed int         `yaml:"screen_reader_speed" env:"TTS_SCREEN_READER_SPEED"`
	VoiceConfigFile   string      `yaml:"voice_config_file" env:"TTS_VOICE_CONFIG_FILE"`

	Cache  cache.Config  `yaml:"cache"`
	Piper  piper.Config  `yaml:"piper"`
	Remote remote.Config `yaml:"remote"`
	Mock   MockConfig    `yaml:"mock"`
	Log    LogConfig     `yaml:"log"`
}

// VoiceConfig names a voice in configuration files.
type VoiceConfig struct {
	Language string `yaml:"language" env:"TTS_DEFAULT_LANGUAGE"`
	Type     string `yaml:"type" env:"TTS_DEFAULT_VOICE_TYPE"`
}

// Voice parses the configured voice. An empty language gives the zero
// voice, which lets the engine pick.
func (vc VoiceConfig) Voice() (engine.Voice, error) {
	if vc.Language == "" {
		return engine.Voice{}, nil
	}
	lang, err := engine.ParseLanguage(vc.Language)
	if err != nil {
		return engine.Voice{}, err
	}
	vt, err := engine.ParseVoiceType(vc.Type)
	if err != nil {
		return engine.Voice{}, err
	}
	return engine.Voice{Language: lang, Type: vt}, nil
}

// MockConfig contains mock engine settings for testing and demos.
type MockConfig struct {
	GenerationDelay   time.Duration `yaml:"generation_delay" env:"TTS_MOCK_GENERATION_DELAY"`
	SampleRate        int           `yaml:"sample_rate" env:"TTS_MOCK_SAMPLE_RATE"`
	Agreed            bool          `yaml:"agreed" env:"TTS_MOCK_AGREED"`
	RequireCredential bool          `yaml:"require_credential" env:"TTS_MOCK_REQUIRE_CREDENTIAL"`
}

// LogConfig controls file logging.
type LogConfig struct {
	Level string `yaml:"level" env:"TTS_LOG_LEVEL"`
	File  string `yaml:"file" env:"TTS_LOG_FILE"`
}

// Engines lists the engine names accepted in Config.Engine.
var Engines = []string{"mock", "piper", "remote"}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Engine:         "mock",
		AppID:          "ttsctl",
		Mode:           "default",
		ConnectTimeout: 5 * time.Second,

		MaxTextSize: 2000,

		Output:     "device",
		SampleRate: 22050,
		Channels:   1,
		Volume:     1.0,

		DefaultSpeed:      engine.SpeedNormal,
		ScreenReaderSpeed: 10,

		Cache:  cache.DefaultConfig(),
		Piper:  piper.DefaultConfig(),
		Remote: remote.DefaultConfig(),
		Mock:   DefaultMockConfig(),
		Log:    LogConfig{Level: "info"},
	}
}

// DefaultMockConfig returns default mock engine configuration.
func DefaultMockConfig() MockConfig {
	return MockConfig{
		GenerationDelay: 100 * time.Millisecond,
		SampleRate:      16000,
		Agreed:          true,
	}
}

// Validate checks if the configuration is valid. It normalizes the engine
// and output names.
func (c *Config) Validate() error {
	c.Engine = strings.ToLower(strings.TrimSpace(c.Engine))
	if !slices.Contains(Engines, c.Engine) {
		return fmt.Errorf("invalid TTS engine '%s': must be one of %v", c.Engine, Engines)
	}

	if _, err := ParseMode(c.Mode); err != nil {
		return err
	}

	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive, got %v", c.ConnectTimeout)
	}

	if c.MaxTextSize < 1 {
		return fmt.Errorf("max_text_size must be positive, got %d", c.MaxTextSize)
	}
	if c.MaxPending < 0 {
		return fmt.Errorf("max_pending cannot be negative, got %d", c.MaxPending)
	}

	c.Output = strings.ToLower(c.Output)
	if c.Output != "device" && c.Output != "simulated" {
		return fmt.Errorf("invalid output '%s': must be device or simulated", c.Output)
	}

	validSampleRates := []int{8000, 16000, 22050, 24000, 44100, 48000}
	if !slices.Contains(validSampleRates, c.SampleRate) {
		return fmt.Errorf("invalid sample rate %d: must be one of %v", c.SampleRate, validSampleRates)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", c.Channels)
	}
	if c.Volume < 0.0 || c.Volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", c.Volume)
	}

	if c.Pitch != 0 && (c.Pitch < engine.PitchMin || c.Pitch > engine.PitchMax) {
		return fmt.Errorf("pitch must be 0 or between %d and %d, got %d", engine.PitchMin, engine.PitchMax, c.Pitch)
	}
	for name, speed := range map[string]int{"default_speed": c.DefaultSpeed, "screen_reader_speed": c.ScreenReaderSpeed} {
		if speed < engine.SpeedMin || speed > engine.SpeedMax {
			return fmt.Errorf("%s must be between %d and %d, got %d", name, engine.SpeedMin, engine.SpeedMax, speed)
		}
	}

	if _, err := c.DefaultVoice.Voice(); err != nil {
		return fmt.Errorf("default_voice: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	switch c.Engine {
	case "piper":
		if c.Piper.Binary == "" {
			return fmt.Errorf("piper config: binary cannot be empty")
		}
		if c.Piper.ModelDir == "" && len(c.Piper.Voices) == 0 {
			return fmt.Errorf("piper config: model_dir or voices must be set")
		}
	case "remote":
		if c.Remote.Address == "" {
			return fmt.Errorf("remote config: address cannot be empty")
		}
	case "mock":
		if err := c.Mock.Validate(); err != nil {
			return fmt.Errorf("mock config: %w", err)
		}
	}

	return nil
}

// Validate checks if the Mock configuration is valid.
func (c *MockConfig) Validate() error {
	if c.GenerationDelay < 0 {
		return fmt.Errorf("generation_delay cannot be negative, got %v", c.GenerationDelay)
	}
	if c.SampleRate < 8000 || c.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000, got %d", c.SampleRate)
	}
	return nil
}

// Limits returns the adapter limits derived from the configuration.
func (c *Config) Limits() engine.Limits {
	l := engine.DefaultLimits()
	l.MaxTextSize = c.MaxTextSize
	return l
}
