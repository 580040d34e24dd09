package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"

	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts"
)

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "ttsctl").CacheDir()
	if err != nil {
		return "", fmt.Errorf("unable to find cache directory: %w", err)
	}
	return filepath.Join(dir, "ttsctl.log"), nil
}

// setupLog sends log output to the default log file until the configuration
// says otherwise. The returned func closes whichever file is in use.
func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)

	path, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	f, err := openLogFile(path)
	if err != nil {
		return nil, err
	}
	logFile = f
	log.SetOutput(f)
	return func() error { return logFile.Close() }, nil
}

var logFile *os.File

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}
	return f, nil
}

// applyLogConfig sets the level and, when configured, moves logging to
// another file.
func applyLogConfig(cfg tts.LogConfig, debug bool) error {
	level := log.InfoLevel
	if cfg.Level != "" {
		l, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = l
	}
	if debug {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	if cfg.File == "" {
		return nil
	}
	f, err := openLogFile(expandPath(cfg.File))
	if err != nil {
		return err
	}
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f
	log.SetOutput(f)
	return nil
}
