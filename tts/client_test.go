package tts

import (
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/audio"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine/mock"
)

const waitTimeout = 3 * time.Second

// event is one callback invocation seen by a recorder.
type event struct {
	kind      string // state, started, completed, error, voice
	id        int
	prev, cur State
	code      ErrorCode
	voice     engine.Voice
}

// recorder collects callbacks from a client.
type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) add(e event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func (r *recorder) count(kind string) int {
	n := 0
	for _, e := range r.snapshot() {
		if e.kind == kind {
			n++
		}
	}
	return n
}

// waitFor polls until an event matching match has been recorded.
func (r *recorder) waitFor(t *testing.T, desc string, match func(event) bool) event {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		for _, e := range r.snapshot() {
			if match(e) {
				return e
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s, got %+v", desc, r.snapshot())
	return event{}
}

func (r *recorder) waitState(t *testing.T, cur State) {
	t.Helper()
	r.waitFor(t, "state "+cur.String(), func(e event) bool { return e.kind == "state" && e.cur == cur })
}

func (r *recorder) waitStarted(t *testing.T, id int) {
	t.Helper()
	r.waitFor(t, "started", func(e event) bool { return e.kind == "started" && e.id == id })
}

func (r *recorder) waitCompleted(t *testing.T, id int) {
	t.Helper()
	r.waitFor(t, "completed", func(e event) bool { return e.kind == "completed" && e.id == id })
}

func (r *recorder) waitError(t *testing.T, id int) event {
	t.Helper()
	return r.waitFor(t, "error", func(e event) bool { return e.kind == "error" && e.id == id })
}

func (r *recorder) attach(t *testing.T, c *Client) {
	t.Helper()
	must(t, c.SetStateChangedCallback(func(prev, cur State) {
		r.add(event{kind: "state", prev: prev, cur: cur})
	}))
	must(t, c.SetUtteranceStartedCallback(func(id int) {
		r.add(event{kind: "started", id: id})
	}))
	must(t, c.SetUtteranceCompletedCallback(func(id int) {
		r.add(event{kind: "completed", id: id})
	}))
	must(t, c.SetDefaultVoiceChangedCallback(func(prev, cur engine.Voice) {
		r.add(event{kind: "voice", voice: cur})
	}))
	must(t, c.SetErrorCallback(func(id int, err error) {
		r.add(event{kind: "error", id: id, code: CodeOf(err)})
	}))
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func wantCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %v error, got nil", code)
	}
	if got := CodeOf(err); got != code {
		t.Errorf("Expected %v error, got %v (%v)", code, got, err)
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Output = "simulated"
	cfg.Cache.Enabled = false
	cfg.ConnectTimeout = 2 * time.Second
	return cfg
}

type harness struct {
	client *Client
	engine *mock.Engine
	player *audio.SimPlayer
	rec    *recorder
}

// newHarness creates a client on a mock engine with a manually completed
// player and every callback recorded.
func newHarness(t *testing.T, cfg Config, engOpts ...mock.Option) *harness {
	t.Helper()
	eng := mock.New(append([]mock.Option{mock.WithDelay(0)}, engOpts...)...)
	player := audio.NewSimPlayer(audio.WithManualCompletion())
	logger := log.New(io.Discard)

	c, err := Create(eng, WithConfig(cfg), WithPlayer(player), WithLogger(logger))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	h := &harness{client: c, engine: eng, player: player, rec: &recorder{}}
	h.rec.attach(t, c)
	t.Cleanup(func() {
		if c.State() != StateNone {
			c.Destroy() //nolint:errcheck
		}
	})
	return h
}

func (h *harness) prepare(t *testing.T) {
	t.Helper()
	must(t, h.client.Prepare())
	h.rec.waitState(t, StateReady)
}

func (h *harness) add(t *testing.T, text string) int {
	t.Helper()
	id, err := h.client.AddText(text, "", engine.VoiceTypeAuto, engine.SpeedAuto)
	if err != nil {
		t.Fatalf("AddText(%q) error = %v", text, err)
	}
	return id
}

// finish waits until the player holds a clip and completes it.
func (h *harness) finish(t *testing.T) {
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

func (h *harness) waitLoaded(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if loaded, _ := h.player.Loaded(); loaded {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Timed out waiting for the player to load a clip")
}

// TestCreate tests client creation.
func TestCreate(t *testing.T) {
	if _, err := Create(nil); CodeOf(err) != CodeInvalidParameter {
		t.Errorf("Create(nil) error = %v, want invalid parameter", err)
	}

	bad := testConfig()
	bad.MaxTextSize = 0
	if _, err := Create(mock.New(), WithConfig(bad)); CodeOf(err) != CodeInvalidParameter {
		t.Errorf("Create with invalid config error = %v, want invalid parameter", err)
	}

	h := newHarness(t, testConfig())
	if h.client.State() != StateCreated {
		t.Errorf("Expected StateCreated, got %v", h.client.State())
	}
	if h.client.Engine().ID != "mock" {
		t.Errorf("Expected mock engine, got %v", h.client.Engine().ID)
	}
	if _, ok := h.client.CacheStats(); ok {
		t.Error("Expected no cache when disabled")
	}
}

// TestCreatedStateRejectsCommands tests operations that need a connection.
func TestCreatedStateRejectsCommands(t *testing.T) {
	h := newHarness(t, testConfig())
	c := h.client

	wantCode(t, c.Play(), CodeInvalidState)
	wantCode(t, c.Pause(), CodeInvalidState)
	wantCode(t, c.Stop(), CodeInvalidState)
	wantCode(t, c.Unprepare(), CodeInvalidState)

	_, err := c.AddText("hello", "", engine.VoiceTypeAuto, engine.SpeedAuto)
	wantCode(t, err, CodeInvalidState)
	_, err = c.MaxTextSize()
	wantCode(t, err, CodeInvalidState)
	_, err = c.PrivateData("key")
	wantCode(t, err, CodeInvalidState)
	_, _, _, err = c.SpeedRange()
	wantCode(t, err, CodeInvalidState)

	// Queries valid in every state
	if _, err := c.DefaultVoice(); err != nil {
		t.Errorf("DefaultVoice() error = %v", err)
	}
	voices, err := c.Voices()
	must(t, err)
	if n := len(slices.Collect(voices)); n == 0 {
		t.Error("Expected the mock voices to be listed")
	}
}

// TestCallbackRegistration tests callback registration rules.
func TestCallbackRegistration(t *testing.T) {
	h := newHarness(t, testConfig())
	c := h.client

	wantCode(t, c.SetStateChangedCallback(nil), CodeInvalidParameter)
	wantCode(t, c.SetErrorCallback(nil), CodeInvalidParameter)
	must(t, c.UnsetUtteranceStartedCallback())

	h.prepare(t)

	wantCode(t, c.SetUtteranceCompletedCallback(func(int) {}), CodeInvalidState)
	wantCode(t, c.UnsetErrorCallback(), CodeInvalidState)
}

// TestSetMode tests mode changes.
func TestSetMode(t *testing.T) {
	h := newHarness(t, testConfig())
	c := h.client

	wantCode(t, c.SetMode(Mode(9)), CodeInvalidParameter)
	must(t, c.SetMode(ModeNotification))

	m, err := c.Mode()
	must(t, err)
	if m != ModeNotification {
		t.Errorf("Mode() = %v, want notification", m)
	}

	h.prepare(t)
	wantCode(t, c.SetMode(ModeDefault), CodeInvalidState)
}

// TestPrepareIsAsynchronous tests that Prepare returns before connecting.
func TestPrepareIsAsynchronous(t *testing.T) {
	h := newHarness(t, testConfig())
	h.engine.SetDelay(100 * time.Millisecond)
	c := h.client

	must(t, c.Prepare())
	if c.State() != StateCreated {
		t.Errorf("Expected StateCreated right after Prepare, got %v", c.State())
	}

	wantCode(t, c.Prepare(), CodeOperationInProgress)
	wantCode(t, c.Destroy(), CodeOperationInProgress)

	e := h.rec.waitFor(t, "ready", func(e event) bool { return e.kind == "state" })
	if e.prev != StateCreated || e.cur != StateReady {
		t.Errorf("Expected created -> ready, got %v -> %v", e.prev, e.cur)
	}
	if c.State() != StateReady {
		t.Errorf("Expected StateReady, got %v", c.State())
	}

	size, err := c.MaxTextSize()
	must(t, err)
	if size != testConfig().MaxTextSize {
		t.Errorf("MaxTextSize() = %d, want %d", size, testConfig().MaxTextSize)
	}
	wantCode(t, c.Prepare(), CodeInvalidState)
}

// TestPrepareFailures tests how connection failures are reported.
func TestPrepareFailures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*mock.Engine)
		opts   []mock.Option
		expect ErrorCode
	}{
		{
			name:   "engine unavailable",
			setup:  func(e *mock.Engine) { e.SetInitError(errors.New("no model")) },
			expect: CodeEngineUnavailable,
		},
		{
			name:   "network failure",
			setup:  func(e *mock.Engine) { e.SetInitError(engine.ErrNetwork) },
			expect: CodeConnectionFailed,
		},
		{
			name:   "app not agreed",
			setup:  func(e *mock.Engine) { e.SetAgreement(false) },
			expect: CodePermissionDenied,
		},
		{
			name:   "missing credential",
			opts:   []mock.Option{mock.WithCredentialRequired()},
			expect: CodePermissionDenied,
		},
		{
			name:   "timeout",
			setup:  func(e *mock.Engine) { e.SetDelay(time.Second) },
			expect: CodeTimedOut,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.ConnectTimeout = 50 * time.Millisecond
			h := newHarness(t, cfg, tt.opts...)
			if tt.setup != nil {
				tt.setup(h.engine)
			}

			must(t, h.client.Prepare())
			e := h.rec.waitError(t, 0)
			if e.code != tt.expect {
				t.Errorf("Expected %v, got %v", tt.expect, e.code)
			}
			if h.client.State() != StateCreated {
				t.Errorf("Expected StateCreated after failure, got %v", h.client.State())
			}
			if h.rec.count("state") != 0 {
				t.Error("Expected no state change on failure")
			}

			// The handle can be retried or destroyed.
			wantCode(t, h.client.Play(), CodeInvalidState)
			must(t, h.client.Destroy())
		})
	}
}

// TestAddTextValidation tests the checks made before queueing text.
func TestAddTextValidation(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTextSize = 16
	h := newHarness(t, cfg)
	h.prepare(t)
	c := h.client

	tests := []struct {
		name  string
		text  string
		lang  string
		vt    engine.VoiceType
		speed int
		code  ErrorCode
	}{
		{"empty", "", "", engine.VoiceTypeAuto, engine.SpeedAuto, CodeInvalidParameter},
		{"whitespace", "   \n", "", engine.VoiceTypeAuto, engine.SpeedAuto, CodeInvalidParameter},
		{"too long", strings.Repeat("a", 17), "", engine.VoiceTypeAuto, engine.SpeedAuto, CodeInvalidParameter},
		{"invalid utf8", "ab\xffcd", "", engine.VoiceTypeAuto, engine.SpeedAuto, CodeInvalidParameter},
		{"unknown language", "hello", "fr_FR", engine.VoiceTypeAuto, engine.SpeedAuto, CodeInvalidParameter},
		{"unsupported type", "hello", "en_GB", engine.VoiceTypeChild, engine.SpeedAuto, CodeInvalidParameter},
		{"speed too high", "hello", "", engine.VoiceTypeAuto, engine.SpeedMax + 1, CodeInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.AddText(tt.text, tt.lang, tt.vt, tt.speed)
			wantCode(t, err, tt.code)
		})
	}

	if c.Pending() != 0 {
		t.Errorf("Expected nothing queued, got %d", c.Pending())
	}

	// Exactly at the limit is accepted.
	if _, err := c.AddText(strings.Repeat("a", 16), "", engine.VoiceTypeAuto, engine.SpeedAuto); err != nil {
		t.Errorf("AddText at the limit error = %v", err)
	}
}

// TestUtteranceIDsIncrease tests that ids are positive and increasing.
func TestUtteranceIDsIncrease(t *testing.T) {
	h := newHarness(t, testConfig())
	h.prepare(t)

	prev := 0
	for i := 0; i < 5; i++ {
		id := h.add(t, "Hello world.")
		if id <= prev {
			t.Errorf("Expected id greater than %d, got %d", prev, id)
		}
		prev = id
	}
	if h.client.Pending() != 5 {
		t.Errorf("Expected 5 pending, got %d", h.client.Pending())
	}
	if h.engine.CallCount() != 0 {
		t.Error("Expected no synthesis before Play")
	}
}

// TestPlaybackOrder tests that utterances are spoken in order with paired
// started and completed events.
func TestPlaybackOrder(t *testing.T) {
	cfg := testConfig()
	cfg.ReadyWhenDrained = true
	h := newHarness(t, cfg)
	h.prepare(t)
	c := h.client

	first := h.add(t, "First sentence.")
	second := h.add(t, "Second sentence.")
	must(t, c.Play())

	h.rec.waitStarted(t, first)
	h.finish(t)
	h.rec.waitCompleted(t, first)
	h.rec.waitStarted(t, second)
	h.finish(t)
	h.rec.waitCompleted(t, second)
	h.rec.waitFor(t, "drained", func(e event) bool {
		return e.kind == "state" && e.prev == StatePlaying && e.cur == StateReady
	})

	var order []string
	for _, e := range h.rec.snapshot() {
		switch e.kind {
		case "started", "completed":
			order = append(order, e.kind)
		}
	}
	want := []string{"started", "completed", "started", "completed"}
	if !slices.Equal(order, want) {
		t.Errorf("Event order = %v, want %v", order, want)
	}

	must(t, c.Unprepare())
	h.rec.waitState(t, StateCreated)
	must(t, c.Destroy())

	var states []State
	for _, e := range h.rec.snapshot() {
		if e.kind == "state" {
			if len(states) == 0 {
				states = append(states, e.prev)
			}
			states = append(states, e.cur)
		}
	}
	wantStates := []State{StateCreated, StateReady, StatePlaying, StateReady, StateCreated}
	if !slices.Equal(states, wantStates) {
		t.Errorf("States = %v, want %v", states, wantStates)
	}
	if c.State() != StateNone {
		t.Errorf("Expected StateNone after Destroy, got %v", c.State())
	}
}

// TestDrainedQueueKeepsPlaying tests that new text plays without another
// Play when the client stays in StatePlaying.
func TestDrainedQueueKeepsPlaying(t *testing.T) {
	h := newHarness(t, testConfig())
	h.prepare(t)
	c := h.client

	first := h.add(t, "One.")
	must(t, c.Play())
	h.finish(t)
	h.rec.waitCompleted(t, first)

	if c.State() != StatePlaying {
		t.Fatalf("Expected StatePlaying with an empty queue, got %v", c.State())
	}

	second := h.add(t, "Two.")
	h.rec.waitStarted(t, second)
	h.finish(t)
	h.rec.waitCompleted(t, second)
}

// TestStopDiscardsQueue tests that Stop flushes the queue and suppresses
// events for discarded utterances.
func TestStopDiscardsQueue(t *testing.T) {
	h := newHarness(t, testConfig())
	h.prepare(t)
	c := h.client

	h.engine.Hold()
	h.add(t, "Never spoken.")
	h.add(t, "Also never spoken.")
	must(t, c.Play())

	must(t, c.Stop())
	if c.State() != StateReady {
		t.Errorf("Expected StateReady after Stop, got %v", c.State())
	}
	if c.Pending() != 0 {
		t.Errorf("Expected an empty queue, got %d", c.Pending())
	}
	h.engine.Release()

	time.Sleep(50 * time.Millisecond)
	if n := h.rec.count("started") + h.rec.count("completed") + h.rec.count("error"); n != 0 {
		t.Errorf("Expected no utterance events after Stop, got %+v", h.rec.snapshot())
	}

	// Stop in Ready is allowed and changes nothing.
	must(t, c.Stop())
	if c.State() != StateReady {
		t.Errorf("Expected StateReady, got %v", c.State())
	}
}

// TestStopDuringPlayback tests that an utterance stopped while audible never
// completes.
func TestStopDuringPlayback(t *testing.T) {
	h := newHarness(t, testConfig())
	h.prepare(t)
	c := h.client

	id := h.add(t, "Interrupted.")
	must(t, c.Play())
	h.rec.waitStarted(t, id)
	h.waitLoaded(t)

	must(t, c.Stop())
	if h.player.Complete() {
		t.Error("Expected the player to be stopped")
	}
	time.Sleep(50 * time.Millisecond)
	if h.rec.count("completed") != 0 {
		t.Error("Expected no completed event for a stopped utterance")
	}

	// The next utterance gets a fresh id and plays normally.
	next := h.add(t, "After stop.")
	if next <= id {
		t.Errorf("Expected id greater than %d, got %d", id, next)
	}
	must(t, c.Play())
	h.rec.waitStarted(t, next)
	h.finish(t)
	h.rec.waitCompleted(t, next)
}

// TestPauseResume tests that a paused utterance resumes without a second
// started event.
func TestPauseResume(t *testing.T) {
	h := newHarness(t, testConfig())
	h.prepare(t)
	c := h.client

	wantCode(t, c.Pause(), CodeInvalidState)

	id := h.add(t, "Paused in the middle.")
	must(t, c.Play())
	h.rec.waitStarted(t, id)
	h.waitLoaded(t)

	must(t, c.Pause())
	if c.State() != StatePaused {
		t.Errorf("Expected StatePaused, got %v", c.State())
	}
	if _, paused := h.player.Loaded(); !paused {
		t.Error("Expected the player to be paused")
	}
	wantCode(t, c.Pause(), CodeInvalidState)

	must(t, c.Play())
	if _, paused := h.player.Loaded(); paused {
		t.Error("Expected the player to be resumed")
	}
	h.finish(t)
	h.rec.waitCompleted(t, id)

	if n := h.rec.count("started"); n != 1 {
		t.Errorf("Expected 1 started event, got %d", n)
	}
	history := h.player.History()
	if !slices.Contains(history, "pause") || !slices.Contains(history, "resume") {
		t.Errorf("Player history = %v, want pause and resume", history)
	}
}

// TestPauseHoldsFinishedSynthesis tests that audio finished while paused
// waits for Play.
func TestPauseHoldsFinishedSynthesis(t *testing.T) {
	h := newHarness(t, testConfig())
	h.prepare(t)
	c := h.client

	h.engine.Hold()
	id := h.add(t, "Held.")
	must(t, c.Play())
	must(t, c.Pause())
	h.engine.Release()

	h.rec.waitStarted(t, id)
	time.Sleep(50 * time.Millisecond)
	if loaded, _ := h.player.Loaded(); loaded {
		t.Fatal("Expected nothing handed to the player while paused")
	}

	must(t, c.Play())
	h.finish(t)
	h.rec.waitCompleted(t, id)
}

// TestSynthesisFailure tests that a failed utterance is reported and the
// queue moves on.
func TestSynthesisFailure(t *testing.T) {
	h := newHarness(t, testConfig())
	h.prepare(t)
	c := h.client

	h.engine.SetFailure(errors.New("synthesizer crashed"))
	failed := h.add(t, "Broken.")
	must(t, c.Play())

	e := h.rec.waitError(t, failed)
	if e.code != CodeOperationFailed {
		t.Errorf("Expected operation failed, got %v", e.code)
	}
	if h.rec.count("completed") != 0 {
		t.Error("Expected no completed event for a failed utterance")
	}

	h.engine.ClearFailure()
	next := h.add(t, "Working.")
	h.rec.waitStarted(t, next)
	h.finish(t)
	h.rec.waitCompleted(t, next)
}

// TestPlayerFailure tests that a playback error is reported for the
// utterance.
func TestPlayerFailure(t *testing.T) {
	h := newHarness(t, testConfig())
	h.prepare(t)
	c := h.client

	id := h.add(t, "Device lost.")
	must(t, c.Play())
	h.waitLoaded(t)
	h.player.Fail(errors.New("device unplugged"))

	h.rec.waitError(t, id)
	if h.rec.count("completed") != 0 {
		t.Error("Expected no completed event after a playback error")
	}
}

// TestScreenReaderSpeed tests AUTO speed resolution per mode.
func TestScreenReaderSpeed(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultSpeed = 6
	cfg.ScreenReaderSpeed = 12

	for _, tt := range []struct {
		mode Mode
		want int
	}{
		{ModeDefault, 6},
		{ModeScreenReader, 12},
	} {
		t.Run(tt.mode.String(), func(t *testing.T) {
			h := newHarness(t, cfg)
			must(t, h.client.SetMode(tt.mode))
			h.prepare(t)

			id := h.add(t, "Speed check.")
			must(t, h.client.Play())
			h.rec.waitStarted(t, id)

			reqs := h.engine.Requests()
			if len(reqs) != 1 {
				t.Fatalf("Expected 1 request, got %d", len(reqs))
			}
			if reqs[0].Speed != tt.want {
				t.Errorf("Speed = %d, want %d", reqs[0].Speed, tt.want)
			}
			if reqs[0].UtteranceID != id {
				t.Errorf("UtteranceID = %d, want %d", reqs[0].UtteranceID, id)
			}
		})
	}
}

// TestCacheHit tests that repeated text is served from the cache.
func TestCacheHit(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Enabled = true
	h := newHarness(t, cfg)
	h.prepare(t)
	c := h.client

	first := h.add(t, "Repeat me.")
	must(t, c.Play())
	h.finish(t)
	h.rec.waitCompleted(t, first)

	second := h.add(t, "Repeat me.")
	h.rec.waitStarted(t, second)
	h.finish(t)
	h.rec.waitCompleted(t, second)

	if n := h.engine.CallCount(); n != 1 {
		t.Errorf("Expected 1 synthesis call, got %d", n)
	}
	stats, ok := c.CacheStats()
	if !ok {
		t.Fatal("Expected cache stats")
	}
	if stats.Hits != 1 {
		t.Errorf("Expected 1 cache hit, got %d", stats.Hits)
	}
}

// TestPrivateData tests engine private data exchange.
func TestPrivateData(t *testing.T) {
	h := newHarness(t, testConfig())
	h.prepare(t)
	c := h.client

	wantCode(t, c.SetPrivateData("", "x"), CodeInvalidParameter)
	must(t, c.SetPrivateData("session", "42"))

	got, err := c.PrivateData("session")
	must(t, err)
	if got != "42" {
		t.Errorf("PrivateData() = %q, want 42", got)
	}

	_, err = c.PrivateData("missing")
	wantCode(t, err, CodeInvalidParameter)

	h.add(t, "Busy.")
	must(t, c.Play())
	wantCode(t, c.SetPrivateData("session", "43"), CodeInvalidState)
}

// TestDefaultVoiceChanged tests the default voice notification.
func TestDefaultVoiceChanged(t *testing.T) {
	h := newHarness(t, testConfig())
	c := h.client

	want := engine.Voice{Language: "ko_KR", Type: engine.VoiceTypeFemale}
	must(t, c.adapter.SetDefaultVoice(want))

	e := h.rec.waitFor(t, "voice", func(e event) bool { return e.kind == "voice" })
	if e.voice != want {
		t.Errorf("Expected %v, got %v", want, e.voice)
	}
	got, err := c.DefaultVoice()
	must(t, err)
	if got != want {
		t.Errorf("DefaultVoice() = %v, want %v", got, want)
	}

	// AUTO selectors follow the new default.
	h.prepare(t)
	h.add(t, "안녕하세요")
	must(t, c.Play())
	h.rec.waitFor(t, "started", func(e event) bool { return e.kind == "started" })
	if reqs := h.engine.Requests(); len(reqs) == 0 || reqs[0].Voice != want {
		t.Errorf("Expected synthesis with %v, got %+v", want, reqs)
	}
}

// TestCallbacksMayCallClient tests that callbacks can call back into the
// client without deadlocking.
func TestCallbacksMayCallClient(t *testing.T) {
	eng := mock.New(mock.WithDelay(0))
	player := audio.NewSimPlayer(audio.WithManualCompletion())
	c, err := Create(eng, WithConfig(testConfig()), WithPlayer(player), WithLogger(log.New(io.Discard)))
	must(t, err)
	defer c.Destroy() //nolint:errcheck

	followUp := make(chan int, 1)
	must(t, c.SetStateChangedCallback(func(prev, cur State) {
		if cur == StateReady && prev == StateCreated {
			if _, err := c.AddText("Queued from a callback.", "", engine.VoiceTypeAuto, engine.SpeedAuto); err != nil {
				t.Errorf("AddText from callback error = %v", err)
			}
			if err := c.Play(); err != nil {
				t.Errorf("Play from callback error = %v", err)
			}
		}
	}))
	must(t, c.SetUtteranceStartedCallback(func(id int) {
		if c.State() != StatePlaying {
			t.Errorf("Expected StatePlaying inside started callback, got %v", c.State())
		}
		followUp <- id
	}))

	must(t, c.Prepare())
	select {
	case id := <-followUp:
		if id != 1 {
			t.Errorf("Expected utterance 1, got %d", id)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Timed out waiting for the utterance queued from a callback")
	}
}

// TestDestroy tests that a destroyed handle rejects calls and stays silent.
func TestDestroy(t *testing.T) {
	h := newHarness(t, testConfig())
	h.prepare(t)
	c := h.client

	h.engine.Hold()
	h.add(t, "Pending at destroy.")
	must(t, c.Play())
	h.rec.waitState(t, StatePlaying)
	must(t, c.Destroy())
	h.engine.Release()

	if c.State() != StateNone {
		t.Errorf("Expected StateNone, got %v", c.State())
	}
	wantCode(t, c.Destroy(), CodeInvalidState)
	wantCode(t, c.Play(), CodeInvalidState)
	_, err := c.DefaultVoice()
	wantCode(t, err, CodeInvalidState)

	before := len(h.rec.snapshot())
	time.Sleep(50 * time.Millisecond)
	if after := len(h.rec.snapshot()); after > before {
		t.Errorf("Expected no events after Destroy, got %+v", h.rec.snapshot()[before:])
	}
}
