// Package ui provides the terminal reader that speaks a document through a
// TTS client while showing what is being read.
package ui

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"

	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts"
)

const ellipsis = "…"

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#5A56E0")).
			Padding(0, 1)
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

// Run starts the reader for chunks on client and blocks until the user
// quits. document is the source shown in the document view; when empty the
// chunks are shown instead.
func Run(cfg Config, client *tts.Client, chunks []string, document string) error {
	bridge := tts.NewEventBridge(64)
	defer bridge.Close()
	if err := bridge.Attach(client); err != nil {
		return fmt.Errorf("unable to attach to client: %w", err)
	}

	log.Debug("Starting reader", "chunks", len(chunks), "glamour", cfg.GlamourEnabled)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	if _, err := tea.NewProgram(newModel(cfg, client, bridge, chunks, document), opts...).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

// enqueuedMsg reports the utterance ids assigned to the chunks, in order.
type enqueuedMsg struct {
	ids []int
	err error
}

type statusMessageMsg string

// clientEventMsg wraps a message delivered by the client's event bridge.
type clientEventMsg struct{ msg tea.Msg }

type model struct {
	cfg    Config
	client *tts.Client
	bridge *tts.EventBridge

	chunks   []string
	document string
	rendered string // glamour output of document

	ids      map[int]int // utterance id to chunk index
	queued   bool
	progress chunkProgress
	status   statusBar

	viewport     viewport.Model
	spinner      spinner.Model
	showDocument bool
	statusMsg    string

	width, height int
	ready         bool
}

func newModel(cfg Config, client *tts.Client, bridge *tts.EventBridge, chunks []string, document string) model {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AAFF"))

	return model{
		cfg:      cfg,
		client:   client,
		bridge:   bridge,
		chunks:   chunks,
		document: document,
		ids:      make(map[int]int),
		progress: chunkProgress{current: -1},
		status:   newStatusBar(len(chunks)),
		spinner:  sp,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen(), tts.PrepareCmd(m.client))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		h := max(m.height-3, 1)
		if !m.ready {
			m.viewport = viewport.New(m.width, h)
			m.ready = true
		} else {
			m.viewport.Width, m.viewport.Height = m.width, h
		}
		m.rendered = m.renderDocument()
		m.refresh(false)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if !m.status.preparing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case enqueuedMsg:
		for i, id := range msg.ids {
			m.ids[id] = i
		}
		if msg.err != nil {
			m.status.update(tts.ErrorMsg{Code: tts.CodeOf(msg.err), Err: msg.err})
		}
		if len(msg.ids) == 0 {
			return m, nil
		}
		return m, tts.PlayCmd(m.client)

	case statusMessageMsg:
		m.statusMsg = string(msg)
		return m, nil

	case clientEventMsg:
		next, cmd := m.handleEvent(msg.msg)
		return next, tea.Batch(next.listen(), cmd)

	case tts.ErrorMsg:
		// A command failed synchronously.
		m.status.update(msg)
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// listen waits for the next client event.
func (m model) listen() tea.Cmd {
	wait := m.bridge.Wait()
	return func() tea.Msg {
		if msg := wait(); msg != nil {
			return clientEventMsg{msg}
		}
		return nil
	}
}

func (m model) handleEvent(msg tea.Msg) (model, tea.Cmd) {
	switch msg := msg.(type) {
	case tts.StateChangedMsg:
		m.status.update(msg)
		switch {
		case msg.Cur == tts.StateReady && msg.Prev == tts.StateCreated && !m.queued:
			return m, m.enqueue()
		case msg.Cur == tts.StateReady:
			m.progress.current = -1
			m.refresh(false)
		}

	case tts.UtteranceStartedMsg:
		if i, ok := m.ids[msg.ID]; ok {
			m.progress.current = i
			m.status.current = i + 1
			m.refresh(true)
		}

	case tts.UtteranceCompletedMsg:
		return m, m.finished(msg.ID)

	case tts.ErrorMsg:
		m.status.update(msg)
		if msg.ID != 0 {
			// The failed chunk is skipped; playback moves on.
			return m, m.finished(msg.ID)
		}

	case tts.DefaultVoiceChangedMsg:
		m.status.update(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit

	case " ", "p":
		switch m.client.State() {
		case tts.StatePlaying:
			return m, tts.PauseCmd(m.client)
		case tts.StatePaused:
			return m, tts.PlayCmd(m.client)
		case tts.StateReady:
			if m.client.Pending() > 0 {
				return m, tts.PlayCmd(m.client)
			}
		}
		return m, nil

	case "s":
		return m, tts.StopCmd(m.client)

	case "r":
		if m.client.State() != tts.StateReady {
			return m, nil
		}
		m.progress = chunkProgress{current: -1}
		m.status.spoken, m.status.current = 0, 0
		m.statusMsg = ""
		m.refresh(false)
		m.viewport.GotoTop()
		return m, m.enqueue()

	case "tab":
		m.showDocument = !m.showDocument
		m.refresh(!m.showDocument)
		return m, nil

	case "c":
		if m.progress.current < 0 {
			return m, nil
		}
		text := m.chunks[m.progress.current]
		termenv.Copy(text)
		// Copy using native system clipboard
		_ = clipboard.WriteAll(text)
		return m, func() tea.Msg { return statusMessageMsg("copied to clipboard") }
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// enqueue queues every chunk on the client.
func (m *model) enqueue() tea.Cmd {
	m.queued = true
	client, cfg, chunks := m.client, m.cfg, m.chunks
	return func() tea.Msg {
		ids := make([]int, 0, len(chunks))
		for _, chunk := range chunks {
			id, err := client.AddText(chunk, cfg.Language, cfg.VoiceType, cfg.Speed)
			if err != nil {
				return enqueuedMsg{ids: ids, err: err}
			}
			ids = append(ids, id)
		}
		return enqueuedMsg{ids: ids}
	}
}

// finished marks the utterance id as done and quits after the last chunk
// when configured to.
func (m *model) finished(id int) tea.Cmd {
	i, ok := m.ids[id]
	if !ok {
		return nil
	}
	delete(m.ids, id)
	m.status.spokenChunk(i + 1)
	m.progress.spoken = max(m.progress.spoken, i+1)
	if m.progress.current == i {
		m.progress.current = -1
	}
	if stats, ok := m.client.CacheStats(); ok {
		m.status.cacheHits = stats.Hits
		m.status.cacheSize = stats.MemorySize + stats.DiskSize
	}
	m.refresh(false)

	if m.status.done() && m.cfg.ExitWhenDone {
		return tea.Quit
	}
	return nil
}

// refresh redraws the viewport content, optionally scrolling the current
// chunk into view.
func (m *model) refresh(follow bool) {
	if !m.ready {
		return
	}
	if m.showDocument && m.rendered != "" {
		m.viewport.SetContent(m.rendered)
		return
	}
	content, line := renderTranscript(m.chunks, m.progress, m.width)
	m.viewport.SetContent(content)
	if follow && m.progress.current >= 0 {
		m.viewport.SetYOffset(max(line-m.viewport.Height/3, 0))
	}
}

func (m model) renderDocument() string {
	if !m.cfg.GlamourEnabled || strings.TrimSpace(m.document) == "" {
		return ""
	}
	width := m.width
	if m.cfg.GlamourMaxWidth > 0 && width > int(m.cfg.GlamourMaxWidth) { //nolint:gosec
		width = int(m.cfg.GlamourMaxWidth) //nolint:gosec
	}

	r, err := glamour.NewTermRenderer(
		glamourStyle(m.cfg.GlamourStyle),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		log.Warn("Could not create renderer", "err", err)
		return ""
	}
	out, err := r.Render(m.document)
	if err != nil {
		log.Warn("Could not render document", "err", err)
		return ""
	}
	return out
}

func glamourStyle(style string) glamour.TermRendererOption {
	if style == "" || style == styles.AutoStyle {
		return glamour.WithAutoStyle()
	}
	return glamour.WithStylePath(style)
}

func (m model) View() string {
	if !m.ready {
		return m.spinner.View() + " Loading…"
	}

	title := m.cfg.Title
	if title == "" {
		title = "ttsctl"
	}
	if m.showDocument {
		title += " (document)"
	}
	header := titleStyle.Render(runewidth.Truncate(title, max(m.width-2, 1), ellipsis))

	help := "space play/pause • s stop • r replay • tab view • c copy • q quit"
	if m.statusMsg != "" {
		help = m.statusMsg
	}
	help = helpStyle.Render(runewidth.Truncate(help, m.width, ellipsis))

	return strings.Join([]string{
		header,
		m.viewport.View(),
		m.status.view(m.width, m.spinner.View()),
		help,
	}, "\n")
}
