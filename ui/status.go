package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"

	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine"
)

var (
	counterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	voiceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AAFF"))
)

// statusBar tracks client events for the bottom line of the reader.
type statusBar struct {
	state     tts.State
	preparing bool
	current   int // 1-based chunk number being spoken, 0 for none
	spoken    int
	total     int
	voice     engine.Voice
	cacheHits int64
	cacheSize int64
	errorMsg  string
}

func newStatusBar(total int) statusBar {
	return statusBar{
		state:     tts.StateCreated,
		preparing: true,
		total:     total,
	}
}

// update applies a client message. It reports whether anything changed.
func (s *statusBar) update(msg tea.Msg) bool {
	switch m := msg.(type) {
	case tts.StateChangedMsg:
		s.state = m.Cur
		if m.Cur != tts.StateCreated {
			s.preparing = false
		}
		if m.Cur == tts.StateReady {
			s.current = 0
		}
	case tts.DefaultVoiceChangedMsg:
		s.voice = m.Cur
	case tts.ErrorMsg:
		if m.Err != nil {
			s.errorMsg = m.Err.Error()
		}
		if m.ID == 0 && s.state == tts.StateCreated {
			s.preparing = false
		}
	default:
		return false
	}
	return true
}

// spokenChunk records that the chunk with the 1-based number n finished.
func (s *statusBar) spokenChunk(n int) {
	if n > s.spoken {
		s.spoken = n
	}
	if s.current == n {
		s.current = 0
	}
}

func (s statusBar) done() bool {
	return s.total > 0 && s.spoken >= s.total
}

func (s statusBar) icon() (string, lipgloss.Color) {
	switch {
	case s.errorMsg != "" && s.state == tts.StateCreated:
		return "✗", lipgloss.Color("#FF0000") // Red
	case s.preparing:
		return "⟳", lipgloss.Color("#00AAFF") // Blue
	}
	switch s.state {
	case tts.StatePlaying:
		return "▶", lipgloss.Color("#00FF00") // Green
	case tts.StatePaused:
		return "⏸", lipgloss.Color("#FFFF00") // Yellow
	case tts.StateReady:
		return "■", lipgloss.Color("#888888") // Gray
	default:
		return "○", lipgloss.Color("#666666") // Dark gray
	}
}

// view renders the bar. spin is drawn while the engine handshake runs.
func (s statusBar) view(width int, spin string) string {
	icon, color := s.icon()
	if s.preparing && spin != "" {
		icon = spin
	}

	left := lipgloss.NewStyle().Foreground(color).Render(fmt.Sprintf("%s %s", icon, s.label()))
	if s.total > 0 {
		n := s.spoken
		if s.current > 0 {
			n = s.current
		}
		left += counterStyle.Render(fmt.Sprintf(" %d/%d", n, s.total))
	}
	if !s.voice.IsZero() {
		left += " " + voiceStyle.Render(s.voice.String())
	}

	var right string
	if s.cacheHits > 0 {
		right = counterStyle.Render(fmt.Sprintf("cache %d hits, %s", s.cacheHits, humanize.Bytes(uint64(max(s.cacheSize, 0)))))
	}

	if s.errorMsg != "" {
		room := width - lipgloss.Width(left) - lipgloss.Width(right) - 3
		if room > 10 {
			left += " " + errorStyle.Render(truncate.StringWithTail(s.errorMsg, uint(room), ellipsis))
		}
	}

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		return truncate.StringWithTail(left, uint(max(width, 0)), ellipsis)
	}
	return left + strings.Repeat(" ", gap) + right
}

func (s statusBar) label() string {
	switch {
	case s.preparing:
		return "connecting"
	case s.done():
		return "finished"
	}
	return s.state.String()
}
