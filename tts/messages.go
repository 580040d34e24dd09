package tts

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine"
)

// Messages for Bubble Tea programs driving a Client.

// StateChangedMsg reports a state transition.
type StateChangedMsg struct {
	Prev State
	Cur  State
}

// UtteranceStartedMsg reports that an utterance started.
type UtteranceStartedMsg struct {
	ID int
}

// UtteranceCompletedMsg reports that an utterance finished playing.
type UtteranceCompletedMsg struct {
	ID int
}

// DefaultVoiceChangedMsg reports a new default voice.
type DefaultVoiceChangedMsg struct {
	Prev engine.Voice
	Cur  engine.Voice
}

// ErrorMsg reports an asynchronous failure, or a failed command.
type ErrorMsg struct {
	ID   int // 0 when not tied to an utterance
	Code ErrorCode
	Err  error
}

// EventBridge turns client callbacks into tea.Msg values.
type EventBridge struct {
	events chan tea.Msg
	done   chan struct{}
	once   sync.Once
}

// NewEventBridge creates a bridge buffering up to size messages before the
// client's dispatcher waits for the program to catch up.
func NewEventBridge(size int) *EventBridge {
	if size < 1 {
		size = 1
	}
	return &EventBridge{
		events: make(chan tea.Msg, size),
		done:   make(chan struct{}),
	}
}

// Attach registers every callback of c. c must be in StateCreated.
func (b *EventBridge) Attach(c *Client) error {
	if err := c.SetStateChangedCallback(func(prev, cur State) {
		b.send(StateChangedMsg{Prev: prev, Cur: cur})
	}); err != nil {
		return err
	}
	if err := c.SetUtteranceStartedCallback(func(id int) {
		b.send(UtteranceStartedMsg{ID: id})
	}); err != nil {
		return err
	}
	if err := c.SetUtteranceCompletedCallback(func(id int) {
		b.send(UtteranceCompletedMsg{ID: id})
	}); err != nil {
		return err
	}
	if err := c.SetDefaultVoiceChangedCallback(func(prev, cur engine.Voice) {
		b.send(DefaultVoiceChangedMsg{Prev: prev, Cur: cur})
	}); err != nil {
		return err
	}
	return c.SetErrorCallback(func(id int, err error) {
		b.send(ErrorMsg{ID: id, Code: CodeOf(err), Err: err})
	})
}

func (b *EventBridge) send(msg tea.Msg) {
	select {
	case b.events <- msg:
	case <-b.done:
	}
}

// Wait returns a command that delivers the next event. Re-issue it after
// each message. It returns nil once the bridge is closed.
func (b *EventBridge) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.events:
			return msg
		case <-b.done:
			return nil
		}
	}
}

// Close releases waiting senders and receivers.
func (b *EventBridge) Close() {
	b.once.Do(func() { close(b.done) })
}

// Commands for Bubble Tea programs. Each returns an ErrorMsg on failure and
// nil otherwise; success is observed through the bridge.

// PrepareCmd connects the client.
func PrepareCmd(c *Client) tea.Cmd {
	return commandCmd(c.Prepare)
}

// PlayCmd starts or resumes playback.
func PlayCmd(c *Client) tea.Cmd {
	return commandCmd(c.Play)
}

// PauseCmd pauses playback.
func PauseCmd(c *Client) tea.Cmd {
	return commandCmd(c.Pause)
}

// StopCmd stops playback and flushes the queue.
func StopCmd(c *Client) tea.Cmd {
	return commandCmd(c.Stop)
}

// AddTextCmd queues text with AUTO voice and speed selectors.
func AddTextCmd(c *Client, text, language string) tea.Cmd {
	return func() tea.Msg {
		if _, err := c.AddText(text, language, engine.VoiceTypeAuto, engine.SpeedAuto); err != nil {
			return ErrorMsg{Code: CodeOf(err), Err: err}
		}
		return nil
	}
}

func commandCmd(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return ErrorMsg{Code: CodeOf(err), Err: err}
		}
		return nil
	}
}
