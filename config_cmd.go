package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# log debug output
debug: false

tts:
  # Engine: mock, piper or remote
  engine: "mock"
  # Application id sent in the agreement check
  app_id: "ttsctl"
  # credential: ""
  # Mode: default, notification or screen-reader
  mode: "default"
  # How long the engine handshake may take
  connect_timeout: "5s"
  # Longest text accepted per utterance, in bytes
  max_text_size: 2000
  # Queue capacity, 0 for unbounded
  max_pending: 0

  # Audio output: device or simulated
  output: "device"
  sample_rate: 22050
  channels: 1
  # Volume level (0.0 to 1.0)
  volume: 1.0
  # Engine pitch 1-15, 0 leaves the engine default
  pitch: 0
  # Return to ready once everything queued was spoken
  ready_when_drained: false

  # Voice used when no language or type is given
  # default_voice:
  #   language: "en_US"
  #   type: "female"
  # Speed 1-15 for default and notification mode
  default_speed: 8
  # Speed 1-15 for screen-reader mode
  screen_reader_speed: 10
  # YAML file watched for default voice changes
  # voice_config_file: "~/.config/ttsctl/voice.yml"

  log:
    level: "info"
    # file: "~/.cache/ttsctl/ttsctl.log"

  # Synthesized audio cache
  cache:
    enabled: true
    # dir: "~/.cache/ttsctl/audio"
    memory_bytes: 33554432
    disk_bytes: 268435456
    compression_level: 3

  # Piper engine
  piper:
    binary: "piper"
    # model_dir: "~/.local/share/piper"
    default_type: "female"
    timeout: "30s"
    grace_period: "500ms"
    chunk_size: 4096
    # voices:
    #   - language: "en_US"
    #     type: "female"
    #     model: "en_US-lessac-medium.onnx"

  # Remote engine (gRPC)
  remote:
    address: "localhost:50051"
    session_id: "tts"
    sample_rate: 16000
    channels: 1
    request_timeout: "1m"
    voices:
      - language: "en_US"
        type: "female"
    requests_per_minute: 0
    require_credential: false

  # Mock engine (for testing)
  mock:
    generation_delay: "100ms"
    sample_rate: 16000
    agreed: true
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the ttsctl config file",
	Long:    paragraph(fmt.Sprintf("\n%s the ttsctl config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("ttsctl config\nttsctl config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	// A broken config file must still be editable.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("ttsctl", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	configFile = expandPath(configFile)
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
