package ui

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/audio"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine/mock"
)

const waitTimeout = 3 * time.Second

// TestRenderTranscript tests chunk markers and the current line offset.
func TestRenderTranscript(t *testing.T) {
	chunks := []string{"First chunk.", "Second chunk.", "Third chunk."}

	out, line := renderTranscript(chunks, chunkProgress{current: 1, spoken: 1}, 40)

	lines := strings.Split(out, "\n")
	if len(lines) != 5 {
		t.Fatalf("Expected 5 lines, got %d: %q", len(lines), out)
	}
	if line != 2 {
		t.Errorf("Current line = %d, want 2", line)
	}
	if !strings.Contains(lines[0], spokenMarker) || !strings.Contains(lines[0], "First chunk.") {
		t.Errorf("Expected spoken marker on first chunk, got %q", lines[0])
	}
	if !strings.Contains(lines[2], currentMarker) || !strings.Contains(lines[2], "Second chunk.") {
		t.Errorf("Expected current marker on second chunk, got %q", lines[2])
	}
	if strings.Contains(lines[4], currentMarker) || strings.Contains(lines[4], spokenMarker) {
		t.Errorf("Expected no marker on pending chunk, got %q", lines[4])
	}
}

// TestRenderTranscriptWraps tests that long chunks wrap and shift later lines.
func TestRenderTranscriptWraps(t *testing.T) {
	long := strings.Repeat("word ", 20)
	chunks := []string{long, "Next."}

	out, line := renderTranscript(chunks, chunkProgress{current: 1}, 24)
	for _, l := range strings.Split(out, "\n") {
		if w := len(strings.TrimRight(l, " ")); w > 24 {
			t.Errorf("Line %q is %d wide, want at most 24", l, w)
		}
	}
	if line < 4 {
		t.Errorf("Current line = %d, expected the wrapped first chunk to push it down", line)
	}
}

// TestStatusBar tests status bar updates and rendering.
func TestStatusBar(t *testing.T) {
	s := newStatusBar(3)
	if v := s.view(80, ""); !strings.Contains(v, "connecting") {
		t.Errorf("Expected connecting status, got %q", v)
	}

	s.update(tts.StateChangedMsg{Prev: tts.StateCreated, Cur: tts.StateReady})
	s.update(tts.StateChangedMsg{Prev: tts.StateReady, Cur: tts.StatePlaying})
	s.current = 2
	v := s.view(80, "")
	if !strings.Contains(v, "▶ playing") {
		t.Errorf("Expected playing status, got %q", v)
	}
	if !strings.Contains(v, "2/3") {
		t.Errorf("Expected counter 2/3, got %q", v)
	}

	voice := engine.Voice{Language: "en_GB", Type: engine.VoiceTypeFemale}
	s.update(tts.DefaultVoiceChangedMsg{Cur: voice})
	if v := s.view(80, ""); !strings.Contains(v, voice.String()) {
		t.Errorf("Expected voice %v in status, got %q", voice, v)
	}

	s.update(tts.ErrorMsg{ID: 2, Code: tts.CodeOperationFailed, Err: errors.New("synthesis exploded")})
	if v := s.view(80, ""); !strings.Contains(v, "synthesis exploded") {
		t.Errorf("Expected error text in status, got %q", v)
	}

	if s.update(tea.KeyMsg{}) {
		t.Error("Unrelated messages should not change the status")
	}

	for n := 1; n <= 3; n++ {
		s.spokenChunk(n)
	}
	if !s.done() {
		t.Error("Expected status to be done after every chunk")
	}
	if v := s.view(80, ""); !strings.Contains(v, "finished") {
		t.Errorf("Expected finished status, got %q", v)
	}
}

// TestStatusBarPrepareFailure tests the status after a failed handshake.
func TestStatusBarPrepareFailure(t *testing.T) {
	s := newStatusBar(1)
	s.update(tts.ErrorMsg{Code: tts.CodePermissionDenied, Err: tts.ErrPermissionDenied})

	if s.preparing {
		t.Error("Expected preparing to end after a handshake error")
	}
	if icon, _ := s.icon(); icon != "✗" {
		t.Errorf("Icon = %q, want ✗", icon)
	}
}

type readerHarness struct {
	model  model
	client *tts.Client
	player *audio.SimPlayer
}

func newReaderHarness(t *testing.T, cfg Config, chunks []string) *readerHarness {
	t.Helper()

	ttsCfg := tts.DefaultConfig()
	ttsCfg.Output = "simulated"
	ttsCfg.Cache.Enabled = false
	ttsCfg.ConnectTimeout = 2 * time.Second

	player := audio.NewSimPlayer(audio.WithManualCompletion())
	client, err := tts.Create(mock.New(mock.WithDelay(0)),
		tts.WithConfig(ttsCfg), tts.WithPlayer(player), tts.WithLogger(log.New(io.Discard)))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	bridge := tts.NewEventBridge(16)
	if err := bridge.Attach(client); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	t.Cleanup(func() {
		bridge.Close()
		if client.State() != tts.StateNone {
			client.Destroy() //nolint:errcheck
		}
	})

	m := newModel(cfg, client, bridge, chunks, "")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return &readerHarness{model: next.(model), client: client, player: player}
}

// until feeds client events to the model until match accepts one, running
// the commands the model returns for it.
func (h *readerHarness) until(t *testing.T, desc string, match func(tea.Msg) bool) tea.Cmd {
	t.Helper()
	for {
		ch := make(chan tea.Msg, 1)
		listen := h.model.listen()
		go func() { ch <- listen() }()

		var msg tea.Msg
		select {
		case msg = <-ch:
		case <-time.After(waitTimeout):
			t.Fatalf("Timed out waiting for %s", desc)
		}
		ev, ok := msg.(clientEventMsg)
		if !ok {
			t.Fatalf("Expected a client event, got %#v", msg)
		}

		var cmd tea.Cmd
		h.model, cmd = h.model.handleEvent(ev.msg)
		if match(ev.msg) {
			return cmd
		}
	}
}

func (h *readerHarness) complete(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if h.player.Complete() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Timed out waiting for the player to load a clip")
}

func started(id int) func(tea.Msg) bool {
	return func(msg tea.Msg) bool {
		m, ok := msg.(tts.UtteranceStartedMsg)
		return ok && m.ID == id
	}
}

func completed(id int) func(tea.Msg) bool {
	return func(msg tea.Msg) bool {
		m, ok := msg.(tts.UtteranceCompletedMsg)
		return ok && m.ID == id
	}
}

// TestReaderSpeaksChunks tests the reader from handshake to the last chunk.
func TestReaderSpeaksChunks(t *testing.T) {
	chunks := []string{"Hello there.", "General reading."}
	h := newReaderHarness(t, Config{Title: "doc.md", ExitWhenDone: true}, chunks)

	if err := h.client.Prepare(); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	enqueue := h.until(t, "ready", func(msg tea.Msg) bool {
		sc, ok := msg.(tts.StateChangedMsg)
		return ok && sc.Cur == tts.StateReady
	})
	if enqueue == nil {
		t.Fatal("Expected the reader to enqueue chunks once ready")
	}

	msg := enqueue()
	eq, ok := msg.(enqueuedMsg)
	if !ok || eq.err != nil || len(eq.ids) != 2 {
		t.Fatalf("Expected two queued chunks, got %#v", msg)
	}
	next, play := h.model.Update(eq)
	h.model = next.(model)
	if play == nil {
		t.Fatal("Expected a play command after enqueueing")
	}
	if msg := play(); msg != nil {
		t.Fatalf("Play failed: %#v", msg)
	}

	h.until(t, "first chunk", started(eq.ids[0]))
	if h.model.progress.current != 0 {
		t.Errorf("Current chunk = %d, want 0", h.model.progress.current)
	}
	if v := h.model.View(); !strings.Contains(v, "1/2") || !strings.Contains(v, "doc.md") {
		t.Errorf("Expected title and counter in view, got %q", v)
	}

	h.complete(t)
	if cmd := h.until(t, "first completion", completed(eq.ids[0])); cmd != nil {
		t.Error("Expected no command after the first chunk")
	}

	h.until(t, "second chunk", started(eq.ids[1]))
	h.complete(t)
	quit := h.until(t, "second completion", completed(eq.ids[1]))
	if quit == nil {
		t.Fatal("Expected quit after the last chunk")
	}
	if _, ok := quit().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg after the last chunk")
	}
	if !h.model.status.done() {
		t.Error("Expected status to be done")
	}
}

// TestReaderKeys tests key handling before the client is ready.
func TestReaderKeys(t *testing.T) {
	h := newReaderHarness(t, Config{}, []string{"Only chunk."})

	next, cmd := h.model.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	if cmd != nil {
		t.Error("Expected play/pause to do nothing while created")
	}

	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyTab})
	if !next.(model).showDocument {
		t.Error("Expected tab to switch to the document view")
	}

	next, cmd = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})
	if cmd != nil {
		t.Error("Expected copy to do nothing without a current chunk")
	}

	_, cmd = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("Expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
}

// TestReaderCommandError tests that a failed command shows in the status.
func TestReaderCommandError(t *testing.T) {
	h := newReaderHarness(t, Config{}, []string{"Only chunk."})

	_, cmd := h.model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	if cmd == nil {
		t.Fatal("Expected stop command")
	}
	msg := cmd()
	if _, ok := msg.(tts.ErrorMsg); !ok {
		t.Fatalf("Expected ErrorMsg from stop while created, got %#v", msg)
	}

	next, _ := h.model.Update(msg)
	if next.(model).status.errorMsg == "" {
		t.Error("Expected the error to be recorded")
	}
}
