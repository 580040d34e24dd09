package tts

import (
	"fmt"
	"strings"
)

// State is the lifecycle state of a client handle.
type State int

const (
	// StateNone is the state of a destroyed handle.
	StateNone State = iota
	// StateCreated is the state after Create and after Unprepare.
	StateCreated
	// StateReady means the engine connection is established.
	StateReady
	// StatePlaying means queued utterances are being spoken.
	StatePlaying
	// StatePaused means output is held.
	StatePaused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateCreated:
		return "created"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Mode is the behavioral profile of a handle.
type Mode int

const (
	// ModeDefault is for ordinary applications.
	ModeDefault Mode = iota
	// ModeNotification is for short system announcements.
	ModeNotification
	// ModeScreenReader is for accessibility readers; AUTO speed resolves to
	// the screen reader speed.
	ModeScreenReader
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeDefault:
		return "default"
	case ModeNotification:
		return "notification"
	case ModeScreenReader:
		return "screen-reader"
	default:
		return "unknown"
	}
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m >= ModeDefault && m <= ModeScreenReader
}

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return ModeDefault, nil
	case "notification":
		return ModeNotification, nil
	case "screen-reader", "screen_reader", "screenreader", "sr":
		return ModeScreenReader, nil
	}
	return ModeDefault, fmt.Errorf("unknown mode %q", s)
}

// StateMachine holds the current state and the allowed transitions.
// It is not safe for concurrent use; the client guards it with its mutex.
type StateMachine struct {
	current     State
	transitions map[State][]State
	onEnter     map[State]func(from State)
	onExit      map[State]func(to State)
}

// NewStateMachine creates a state machine in StateCreated.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateCreated,
		transitions: map[State][]State{
			StateCreated: {StateReady, StateNone},
			StateReady:   {StatePlaying, StateCreated, StateNone},
			StatePlaying: {StatePaused, StateReady, StateNone},
			StatePaused:  {StatePlaying, StateReady, StateNone},
		},
		onEnter: make(map[State]func(State)),
		onExit:  make(map[State]func(State)),
	}
}

// CanTransition reports whether the current state may move to to.
func (sm *StateMachine) CanTransition(to State) bool {
	for _, s := range sm.transitions[sm.current] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves to the given state and returns the previous one. It
// fails without side effects when the transition is not allowed.
func (sm *StateMachine) Transition(to State) (State, error) {
	from := sm.current
	if !sm.CanTransition(to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidState, from, to)
	}

	if exitFn := sm.onExit[from]; exitFn != nil {
		exitFn(to)
	}

	sm.current = to

	if enterFn := sm.onEnter[to]; enterFn != nil {
		enterFn(from)
	}
	return from, nil
}

// Current returns the current state.
func (sm *StateMachine) Current() State {
	return sm.current
}

// In reports whether the current state is one of states.
func (sm *StateMachine) In(states ...State) bool {
	for _, s := range states {
		if sm.current == s {
			return true
		}
	}
	return false
}

// OnEnter registers a callback run after entering state.
func (sm *StateMachine) OnEnter(state State, fn func(from State)) {
	sm.onEnter[state] = fn
}

// OnExit registers a callback run before leaving state.
func (sm *StateMachine) OnExit(state State, fn func(to State)) {
	sm.onExit[state] = fn
}
