package ui

import "github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine"

// Config contains reader-specific configuration.
type Config struct {
	GlamourMaxWidth uint
	GlamourStyle    string `env:"GLAMOUR_STYLE"`
	EnableMouse     bool

	// Title shown in the header, usually the source file name.
	Title string

	// Voice selection applied to every queued chunk.
	Language  string
	VoiceType engine.VoiceType
	Speed     int

	// Quit once the last chunk has been spoken.
	ExitWhenDone bool `env:"TTSCTL_EXIT_WHEN_DONE"`

	// For debugging the UI
	GlamourEnabled bool `env:"TTSCTL_ENABLE_GLAMOUR" envDefault:"true"`
}
