package tts

import (
	"errors"
	"testing"
)

// TestStateString tests the String() method for State.
func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateNone, "none"},
		{StateCreated, "created"},
		{StateReady, "ready"},
		{StatePlaying, "playing"},
		{StatePaused, "paused"},
		{State(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := tt.state.String(); result != tt.expected {
				t.Errorf("State.String() = %v, want %v", result, tt.expected)
			}
		})
	}
}

// TestParseMode tests mode name parsing.
func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"", ModeDefault, false},
		{"default", ModeDefault, false},
		{"Notification", ModeNotification, false},
		{"screen-reader", ModeScreenReader, false},
		{"screen_reader", ModeScreenReader, false},
		{" sr ", ModeScreenReader, false},
		{"loud", ModeDefault, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMode(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// TestModeValid tests the Valid() method for Mode.
func TestModeValid(t *testing.T) {
	for _, m := range []Mode{ModeDefault, ModeNotification, ModeScreenReader} {
		if !m.Valid() {
			t.Errorf("Mode %v should be valid", m)
		}
	}
	if Mode(-1).Valid() || Mode(3).Valid() {
		t.Error("Out of range modes should be invalid")
	}
	if ModeScreenReader.String() != "screen-reader" {
		t.Errorf("ModeScreenReader.String() = %v, want screen-reader", ModeScreenReader.String())
	}
}

// TestNewStateMachine tests state machine creation.
func TestNewStateMachine(t *testing.T) {
	sm := NewStateMachine()

	if sm.Current() != StateCreated {
		t.Errorf("Initial state = %v, want StateCreated", sm.Current())
	}
	if !sm.In(StateReady, StateCreated) {
		t.Error("In() should report the current state")
	}
	if sm.In(StateReady, StatePlaying) {
		t.Error("In() should not match other states")
	}
}

// TestStateMachineTransitions tests the transition table.
func TestStateMachineTransitions(t *testing.T) {
	tests := []struct {
		name        string
		from        State
		to          State
		shouldAllow bool
	}{
		// Valid transitions
		{"created to ready", StateCreated, StateReady, true},
		{"created to none", StateCreated, StateNone, true},
		{"ready to playing", StateReady, StatePlaying, true},
		{"ready to created", StateReady, StateCreated, true},
		{"ready to none", StateReady, StateNone, true},
		{"playing to paused", StatePlaying, StatePaused, true},
		{"playing to ready", StatePlaying, StateReady, true},
		{"playing to none", StatePlaying, StateNone, true},
		{"paused to playing", StatePaused, StatePlaying, true},
		{"paused to ready", StatePaused, StateReady, true},
		{"paused to none", StatePaused, StateNone, true},

		// Invalid transitions
		{"created to playing", StateCreated, StatePlaying, false},
		{"created to paused", StateCreated, StatePaused, false},
		{"ready to paused", StateReady, StatePaused, false},
		{"playing to created", StatePlaying, StateCreated, false},
		{"paused to created", StatePaused, StateCreated, false},
		{"none to created", StateNone, StateCreated, false},
		{"ready to ready", StateReady, StateReady, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateMachine()
			sm.current = tt.from

			prev, err := sm.Transition(tt.to)
			if (err == nil) != tt.shouldAllow {
				t.Fatalf("Transition from %v to %v: err = %v, want allowed %v",
					tt.from, tt.to, err, tt.shouldAllow)
			}
			if prev != tt.from {
				t.Errorf("Transition returned previous state %v, want %v", prev, tt.from)
			}

			if tt.shouldAllow && sm.Current() != tt.to {
				t.Errorf("State not changed: current = %v, expected = %v", sm.Current(), tt.to)
			} else if !tt.shouldAllow {
				if sm.Current() != tt.from {
					t.Errorf("State changed on invalid transition: current = %v, expected = %v", sm.Current(), tt.from)
				}
				if !errors.Is(err, ErrInvalidState) {
					t.Errorf("Expected ErrInvalidState, got %v", err)
				}
			}
		})
	}
}

// TestStateMachineCallbacks tests state enter/exit callbacks.
func TestStateMachineCallbacks(t *testing.T) {
	sm := NewStateMachine()

	var order []string
	sm.OnExit(StateCreated, func(to State) {
		order = append(order, "exit created to "+to.String())
	})
	sm.OnEnter(StateReady, func(from State) {
		order = append(order, "enter ready from "+from.String())
	})

	if _, err := sm.Transition(StateReady); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	want := []string{"exit created to ready", "enter ready from created"}
	if len(order) != len(want) {
		t.Fatalf("Callbacks = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("Callback %d = %q, want %q", i, order[i], want[i])
		}
	}

	// A rejected transition runs no callbacks.
	order = nil
	if _, err := sm.Transition(StatePaused); err == nil {
		t.Fatal("Expected ready to paused to be rejected")
	}
	if len(order) != 0 {
		t.Errorf("Expected no callbacks, got %v", order)
	}
}

// TestStateMachineSequentialTransitions tests a full client lifecycle.
func TestStateMachineSequentialTransitions(t *testing.T) {
	sm := NewStateMachine()

	for _, to := range []State{StateReady, StatePlaying, StatePaused, StatePlaying, StateReady, StateCreated, StateNone} {
		if _, err := sm.Transition(to); err != nil {
			t.Fatalf("Transition to %v failed: %v", to, err)
		}
	}
	if sm.Current() != StateNone {
		t.Errorf("Final state = %v, want StateNone", sm.Current())
	}
	if sm.CanTransition(StateCreated) {
		t.Error("StateNone should be terminal")
	}
}
