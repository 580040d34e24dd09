package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// VoiceFile is the on-disk format of the default voice settings.
type VoiceFile struct {
	DefaultVoice struct {
		Language string `yaml:"language"`
		Type     string `yaml:"type"`
	} `yaml:"default_voice"`
	DefaultSpeed int `yaml:"default_speed"`
}

// ReadVoiceFile parses the voice settings at path.
func ReadVoiceFile(path string) (VoiceFile, error) {
	var vf VoiceFile
	data, err := os.ReadFile(path)
	if err != nil {
		return vf, fmt.Errorf("reading voice file: %w", err)
	}
	if err := yaml.Unmarshal(data, &vf); err != nil {
		return vf, fmt.Errorf("parsing voice file %s: %w", path, err)
	}
	return vf, nil
}

// Voice returns the default voice described by the file.
func (vf VoiceFile) Voice() (Voice, error) {
	lang, err := ParseLanguage(vf.DefaultVoice.Language)
	if err != nil {
		return Voice{}, err
	}
	vt, err := ParseVoiceType(vf.DefaultVoice.Type)
	if err != nil {
		return Voice{}, err
	}
	return Voice{Language: lang, Type: vt}, nil
}

// VoiceWatcher applies changes of a voice settings file to an Adapter.
type VoiceWatcher struct {
	path     string
	adapter  *Adapter
	logger   *log.Logger
	debounce time.Duration
}

// NewVoiceWatcher returns a watcher for path.
func NewVoiceWatcher(path string, a *Adapter, logger *log.Logger) *VoiceWatcher {
	if logger == nil {
		logger = log.Default().WithPrefix("voice")
	}
	return &VoiceWatcher{
		path:     path,
		adapter:  a,
		logger:   logger,
		debounce: 100 * time.Millisecond,
	}
}

// Apply reads the file once and applies it.
func (w *VoiceWatcher) Apply() error {
	vf, err := ReadVoiceFile(w.path)
	if err != nil {
		return err
	}
	if vf.DefaultSpeed != SpeedAuto {
		if err := w.adapter.SetDefaultSpeed(vf.DefaultSpeed); err != nil {
			return err
		}
	}
	if vf.DefaultVoice.Language == "" {
		return nil
	}
	v, err := vf.Voice()
	if err != nil {
		return err
	}
	return w.adapter.SetDefaultVoice(v)
}

// Run watches the file until ctx is done. The directory is watched rather
// than the file so that editors replacing the file on save are seen.
func (w *VoiceWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", w.path, err)
	}

	name := filepath.Clean(w.path)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := w.Apply(); err != nil {
				w.logger.Warn("voice file not applied", "path", w.path, "err", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "err", err)
		}
	}
}
