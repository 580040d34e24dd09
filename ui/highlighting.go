package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
)

const (
	currentMarker = "▶ "
	spokenMarker  = "✓ "
)

var (
	highlightStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("226")). // Yellow
			Foreground(lipgloss.Color("0")).   // Black
			Bold(true)
	spokenStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	markerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
)

// chunkProgress tells the transcript how far playback has come.
type chunkProgress struct {
	current int // index of the chunk being spoken, -1 for none
	spoken  int // number of chunks fully spoken
}

// renderTranscript lays out chunks one paragraph each, wrapped to width,
// with the chunk being spoken highlighted and finished chunks dimmed. It
// also returns the line on which the current chunk starts.
func renderTranscript(chunks []string, p chunkProgress, width int) (string, int) {
	gutter := runewidth.StringWidth(currentMarker)
	wrapAt := width - gutter
	if wrapAt < 10 {
		wrapAt = 10
	}

	var b strings.Builder
	line, currentLine := 0, 0
	for i, chunk := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
			line++
		}
		body := wordwrap.String(chunk, wrapAt)

		switch {
		case i == p.current:
			currentLine = line
			body = renderLines(body, highlightStyle)
			body = markerStyle.Render(currentMarker) + indent.String(body, uint(gutter))[gutter:]
		case i < p.spoken:
			body = renderLines(body, spokenStyle)
			body = spokenStyle.Render(spokenMarker) + indent.String(body, uint(gutter))[gutter:]
		default:
			body = indent.String(body, uint(gutter))
		}

		b.WriteString(body)
		line += strings.Count(body, "\n") + 1
	}
	return b.String(), currentLine
}

// renderLines styles each line separately so background colors do not
// bleed into the padding.
func renderLines(s string, style lipgloss.Style) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = style.Render(l)
	}
	return strings.Join(lines, "\n")
}
