// Package main provides the entry point for the ttsctl CLI application.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/atotto/clipboard"
	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-homedir"
	"github.com/muesli/gitcha"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/markdown"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	markdownExtensions = []string{
		"*.md", "*.mdown", "*.mkdn", "*.mkd", "*.markdown",
	}

	configFile    string
	text          string
	language      string
	inputFile     string
	fromClipboard bool
	voiceType     string
	speed         int
	mode          string
	engineName    string
	tui           bool
	debug         bool
	includeCode   bool

	// Resolved in validateOptions.
	ttsConfig tts.Config
	voice     voiceOptions
	width     uint

	rootCmd = &cobra.Command{
		Use:   "ttsctl",
		Short: "Speak text through a TTS engine",
		Long: paragraph(
			fmt.Sprintf("\nQueue text or Markdown for %s and play it back as it is synthesized.", keyword("speech")),
		),
		Example: paragraph("ttsctl -t \"Hello world\"\nttsctl -f README.md -l en_GB --voice-type male\necho hi | ttsctl --engine piper"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// usageError marks errors caused by how ttsctl was invoked.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

// voiceOptions is the voice selection applied to every chunk.
type voiceOptions struct {
	Language string
	Type     engine.VoiceType
	Speed    int
}

// input is what will be spoken.
type input struct {
	title    string
	text     string
	markdown bool
}

func expandPath(path string) string {
	if p, err := homedir.Expand(path); err == nil {
		path = p
	}
	return os.ExpandEnv(path)
}

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(expandPath(configFile))
		if err := viper.ReadInConfig(); err != nil {
			return usageErrorf("unable to read config file: %w", err)
		}
	}

	cfg, err := tts.LoadConfigFromViper()
	if err != nil {
		return usageError{err}
	}

	flags := cmd.Flags()
	if flags.Changed("engine") {
		cfg.Engine = engineName
	}
	if flags.Changed("mode") {
		cfg.Mode = mode
	}
	if err := cfg.Validate(); err != nil {
		return usageError{err}
	}

	debug = debug || viper.GetBool("debug")
	if err := applyLogConfig(cfg.Log, debug); err != nil {
		return usageError{err}
	}

	voice = voiceOptions{Speed: speed}
	if language != "" {
		lang, err := engine.ParseLanguage(language)
		if err != nil {
			return usageError{err}
		}
		voice.Language = lang
	}
	if voice.Type, err = engine.ParseVoiceType(voiceType); err != nil {
		return usageError{err}
	}
	if speed != engine.SpeedAuto && (speed < engine.SpeedMin || speed > engine.SpeedMax) {
		return usageErrorf("speed must be %d (auto) or between %d and %d, got %d",
			engine.SpeedAuto, engine.SpeedMin, engine.SpeedMax, speed)
	}

	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	if tui && !isTerminal {
		return usageErrorf("--tui needs a terminal on stdout")
	}
	width = 80
	if isTerminal {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
			width = uint(min(w, 120)) //nolint:gosec
		}
	}

	ttsConfig = cfg
	log.Debug("Options validated", "engine", cfg.Engine, "mode", cfg.Mode, "voice", voice)
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func readInput(cmd *cobra.Command) (input, error) {
	flags := cmd.Flags()
	sources := 0
	for _, set := range []bool{flags.Changed("text"), flags.Changed("file"), fromClipboard} {
		if set {
			sources++
		}
	}
	if sources > 1 {
		return input{}, usageErrorf("use only one of --text, --file and --clipboard")
	}

	switch {
	case flags.Changed("text"):
		return input{title: "text", text: text}, nil

	case fromClipboard:
		s, err := clipboard.ReadAll()
		if err != nil {
			return input{}, fmt.Errorf("unable to read clipboard: %w", err)
		}
		return input{title: "clipboard", text: s}, nil

	case flags.Changed("file"):
		return readPath(expandPath(inputFile))
	}

	if yes, err := stdinIsPipe(); err != nil {
		return input{}, err
	} else if yes {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return input{}, fmt.Errorf("unable to read from stdin: %w", err)
		}
		return input{title: "stdin", text: string(b)}, nil
	}
	return input{}, usageErrorf("nothing to speak: use --text, --file or --clipboard, or pipe text on stdin")
}

// readPath reads a file, or every Markdown file below a directory.
func readPath(path string) (input, error) {
	st, err := os.Stat(path)
	if err != nil {
		return input{}, usageErrorf("unable to open file: %w", err)
	}
	if !st.IsDir() {
		b, err := os.ReadFile(path)
		if err != nil {
			return input{}, fmt.Errorf("unable to read file: %w", err)
		}
		if !utf8.Valid(b) {
			return input{}, usageErrorf("%s is not UTF-8 text", path)
		}
		return input{title: filepath.Base(path), text: string(b), markdown: isMarkdownFile(path)}, nil
	}

	ch, err := gitcha.FindFilesExcept(path, markdownExtensions, nil)
	if err != nil {
		return input{}, fmt.Errorf("unable to search %s: %w", path, err)
	}
	var paths []string
	for res := range ch {
		paths = append(paths, res.Path)
	}
	if len(paths) == 0 {
		return input{}, usageErrorf("no markdown files in %s", path)
	}
	slices.Sort(paths)

	docs := make([]string, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return input{}, fmt.Errorf("unable to read file: %w", err)
		}
		log.Debug("Found markdown file", "path", p)
		docs = append(docs, string(b))
	}
	return input{title: filepath.Base(path), text: strings.Join(docs, "\n\n"), markdown: true}, nil
}

func isMarkdownFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, pattern := range markdownExtensions {
		if ext == strings.TrimPrefix(pattern, "*") {
			return true
		}
	}
	return false
}

// chunksFor splits the input into pieces the engine accepts.
func chunksFor(in input, maxBytes int) ([]string, error) {
	blocks := []string{in.text}
	if in.markdown {
		var err error
		blocks, err = markdown.NewExtractor(markdown.Options{IncludeCode: includeCode}).Blocks([]byte(in.text))
		if err != nil {
			return nil, fmt.Errorf("unable to parse markdown: %w", err)
		}
	}

	var chunks []string
	for _, b := range blocks {
		chunks = append(chunks, markdown.Chunk(b, maxBytes)...)
	}
	if len(chunks) == 0 {
		return nil, usageErrorf("nothing to speak in %s", in.title)
	}
	return chunks, nil
}

func newClient(cfg tts.Config) (*tts.Client, error) {
	logger := log.Default().WithPrefix("tts")
	eng, err := tts.NewEngine(cfg, logger)
	if err != nil {
		return nil, err
	}
	client, err := tts.Create(eng, tts.WithConfig(cfg), tts.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("unable to create client: %w", err)
	}
	return client, nil
}

// destroy releases client, waiting out a handshake that is still running.
func destroy(client *tts.Client) {
	deadline := time.Now().Add(ttsConfig.ConnectTimeout + time.Second)
	for {
		err := client.Destroy()
		if !errors.Is(err, tts.ErrOperationInProgress) || time.Now().After(deadline) {
			if err != nil {
				log.Warn("Could not destroy client", "err", err)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func execute(cmd *cobra.Command, _ []string) error {
	in, err := readInput(cmd)
	if err != nil {
		return err
	}
	chunks, err := chunksFor(in, ttsConfig.MaxTextSize)
	if err != nil {
		return err
	}
	log.Debug("Input split", "source", in.title, "chunks", len(chunks), "bytes", len(in.text))

	client, err := newClient(ttsConfig)
	if err != nil {
		return err
	}
	defer destroy(client)

	if tui {
		return runTUI(client, in, chunks)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	res, err := speak(ctx, client, chunks, voice)
	printSummary(res)
	return err
}

func runTUI(client *tts.Client, in input, chunks []string) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	cfg.Title = in.title
	cfg.GlamourMaxWidth = width
	cfg.Language = voice.Language
	cfg.VoiceType = voice.Type
	cfg.Speed = voice.Speed

	var document string
	if in.markdown {
		document = in.text
	}
	return ui.Run(cfg, client, chunks, document)
}

func printSummary(res speakResult) {
	if res.Spoken == 0 && res.Failed == 0 {
		return
	}
	if !term.IsTerminal(int(os.Stderr.Fd())) && !debug {
		return
	}

	line := fmt.Sprintf("Spoke %d of %d chunks (%s of text) in %s",
		res.Spoken, res.Spoken+res.Failed, humanize.Bytes(uint64(res.TextBytes)), res.Elapsed.Round(100*time.Millisecond)) //nolint:gosec
	if res.CacheEnabled && res.Cache.Hits > 0 {
		line += fmt.Sprintf(", %d from cache", res.Cache.Hits)
	}
	fmt.Fprintln(os.Stderr, faint(line))
}

func exitCode(err error) int {
	var ue usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ue):
		return 2
	default:
		return 1
	}
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	err = rootCmd.Execute()
	_ = closer()
	os.Exit(exitCode(err))
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log debug output")
	rootCmd.PersistentFlags().StringVar(&engineName, "engine", "", fmt.Sprintf("synthesis engine (%s)", strings.Join(tts.Engines, ", ")))
	rootCmd.Flags().StringVarP(&text, "text", "t", "", "text to speak")
	rootCmd.Flags().StringVarP(&language, "language", "l", "", "language of the text, e.g. en_US (default voice if empty)")
	rootCmd.Flags().StringVarP(&inputFile, "file", "f", "", "UTF-8 text or markdown file, or a directory of markdown files")
	rootCmd.Flags().BoolVarP(&fromClipboard, "clipboard", "c", false, "speak the clipboard contents")
	rootCmd.Flags().StringVar(&voiceType, "voice-type", "auto", "voice type (auto, male, female, child)")
	rootCmd.Flags().IntVar(&speed, "speed", engine.SpeedAuto, fmt.Sprintf("speaking speed, %d-%d (%d picks the default)", engine.SpeedMin, engine.SpeedMax, engine.SpeedAuto))
	rootCmd.Flags().StringVar(&mode, "mode", "default", "client mode (default, notification, screen-reader)")
	rootCmd.Flags().BoolVar(&tui, "tui", false, "show a reader while speaking")
	rootCmd.Flags().BoolVar(&includeCode, "code", false, "read code blocks in markdown")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	tts.SetDefaults()
	viper.SetDefault("debug", false)

	rootCmd.AddCommand(configCmd, manCmd, voicesCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "ttsctl")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "ttsctl")}, dirs...)
	}

	if c := os.Getenv("TTSCTL_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("ttsctl")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("ttsctl")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "ttsctl.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
