package tts

import (
	"bytes"
	"context"

	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/audio"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/cache"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/queue"
)

// inflight is the utterance at the head of the queue.
type inflight struct {
	utt    queue.Utterance
	cancel context.CancelFunc

	started      bool // utterance_started raised
	synthesizing bool // engine results still expected
	ready        bool // audio complete, not yet handed to the player
	playing      bool // handed to the player

	audio    bytes.Buffer
	rate     int
	channels int
}

// Play starts or resumes speaking. Valid in StateReady and StatePaused.
func (c *Client) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkState("Play", StateReady, StatePaused); err != nil {
		return err
	}

	if cur := c.current; cur != nil && cur.playing {
		if err := c.player.Resume(); err != nil {
			return newError(CodeOperationFailed, "Play", err)
		}
	}
	if err := c.transitionLocked(StatePlaying); err != nil {
		return newError(CodeInvalidState, "Play", err)
	}

	if cur := c.current; cur != nil && cur.ready {
		if err := c.playLocked(cur); err != nil {
			c.dropLocked(cur, newError(CodeOperationFailed, "Play", err))
		}
	}
	c.advanceLocked()
	return nil
}

// Pause holds output. The current utterance keeps its place and resumes on
// Play without a second utterance_started. Only valid in StatePlaying.
func (c *Client) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkState("Pause", StatePlaying); err != nil {
		return err
	}
	if cur := c.current; cur != nil && cur.playing {
		if err := c.player.Pause(); err != nil {
			return newError(CodeOperationFailed, "Pause", err)
		}
	}
	if err := c.transitionLocked(StatePaused); err != nil {
		return newError(CodeInvalidState, "Pause", err)
	}
	return nil
}

// Stop cancels synthesis, silences the player and discards every queued
// utterance. No further events are raised for the discarded utterances.
// Valid in StateReady, StatePlaying and StatePaused.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkState("Stop", StateReady, StatePlaying, StatePaused); err != nil {
		return err
	}
	c.haltLocked()
	if c.sm.Current() == StateReady {
		return nil
	}
	if err := c.transitionLocked(StateReady); err != nil {
		return newError(CodeInvalidState, "Stop", err)
	}
	return nil
}

// haltLocked forces the controller idle and flushes the queue. Events from
// before the call are ignored afterwards.
func (c *Client) haltLocked() {
	c.gen.Add(1)
	if cur := c.current; cur != nil {
		if cur.synthesizing {
			cur.cancel()
			if err := c.adapter.Cancel(); err != nil {
				c.logger.Warn("cancel synthesis failed", "id", cur.utt.ID, "err", err)
			}
		}
		if cur.playing {
			if err := c.player.Stop(); err != nil {
				c.logger.Warn("player stop failed", "id", cur.utt.ID, "err", err)
			}
		}
		c.current = nil
	}
	if ids := c.queue.Clear(); len(ids) > 0 {
		c.logger.Debug("utterances discarded", "ids", ids)
	}
}

// advanceLocked starts the queue head when playing and idle. A drained
// queue leaves the client playing unless ReadyWhenDrained is set.
func (c *Client) advanceLocked() {
	for c.sm.Current() == StatePlaying && c.current == nil {
		utt, err := c.queue.Peek()
		if err != nil {
			if c.cfg.ReadyWhenDrained {
				c.logger.Debug("queue drained")
				c.transitionLocked(StateReady) //nolint:errcheck
			}
			return
		}
		if err := c.startLocked(utt); err != nil {
			c.queue.Pop() //nolint:errcheck
			c.current = nil
			c.notifyError(utt.ID, newError(CodeOperationFailed, "Synthesize", err))
		}
	}
}

func (c *Client) cacheKey(utt queue.Utterance) string {
	return cache.Key(c.adapter.Info().ID, utt.Text, utt.Voice.String(), utt.Speed)
}

// startLocked makes utt current and either plays it from the cache or asks
// the engine for it.
func (c *Client) startLocked(utt queue.Utterance) error {
	cur := &inflight{utt: utt, rate: c.cfg.SampleRate, channels: 1}
	c.current = cur

	if c.cache != nil {
		if entry, ok := c.cache.Get(c.cacheKey(utt)); ok {
			c.logger.Debug("cache hit", "id", utt.ID)
			cur.started = true
			c.notifyStarted(utt.ID)
			cur.audio.Write(entry.Data)
			cur.rate, cur.channels = entry.SampleRate, entry.Channels
			cur.ready = true
			return c.playLocked(cur)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cur.cancel = cancel
	cur.synthesizing = true

	req := engine.SynthesisRequest{
		UtteranceID: utt.ID,
		Text:        utt.Text,
		Voice:       utt.Voice,
		Speed:       utt.Speed,
		AppID:       c.cfg.AppID,
		Credential:  c.cfg.Credential,
	}
	if err := c.adapter.Synthesize(ctx, req, c.resultFunc(c.gen.Load(), utt.ID)); err != nil {
		cancel()
		return err
	}
	return nil
}

// resultFunc returns the engine callback for one utterance. It runs on an
// engine goroutine and only posts to the dispatcher.
func (c *Client) resultFunc(gen uint64, id int) engine.ResultFunc {
	return func(r engine.Result) bool {
		if c.gen.Load() != gen {
			return false
		}
		c.dispatch.post(func() { c.onResult(gen, id, r) })
		return true
	}
}

func (c *Client) onResult(gen uint64, id int, r engine.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.current
	if gen != c.gen.Load() || cur == nil || cur.utt.ID != id || !cur.synthesizing {
		return
	}

	if r.Event == engine.ResultFail {
		c.dropLocked(cur, newError(CodeOperationFailed, "Synthesize", r.Err))
		c.advanceLocked()
		return
	}

	if !cur.started && (r.Event == engine.ResultStart || len(r.Data) > 0) {
		cur.started = true
		c.notifyStarted(id)
	}
	if r.SampleRate > 0 {
		cur.rate = r.SampleRate
	}
	if r.Channels > 0 {
		cur.channels = r.Channels
	}
	cur.audio.Write(r.Data)

	if r.Event != engine.ResultFinish {
		return
	}

	cur.synthesizing = false
	cur.cancel()
	cur.ready = true
	if c.cache != nil && cur.audio.Len() > 0 {
		entry := cache.Entry{Data: bytes.Clone(cur.audio.Bytes()), SampleRate: cur.rate, Channels: cur.channels}
		if err := c.cache.Put(c.cacheKey(cur.utt), entry); err != nil {
			c.logger.Debug("not cached", "id", id, "err", err)
		}
	}

	// Audio that finishes while paused waits for Play.
	if c.sm.Current() != StatePlaying {
		return
	}
	if err := c.playLocked(cur); err != nil {
		c.dropLocked(cur, newError(CodeOperationFailed, "Play", err))
		c.advanceLocked()
	}
}

func (c *Client) playLocked(cur *inflight) error {
	clip := audio.Clip{Data: cur.audio.Bytes(), SampleRate: cur.rate, Channels: cur.channels}
	gen, id := c.gen.Load(), cur.utt.ID
	err := c.player.Play(clip, func(err error) {
		c.dispatch.post(func() { c.onPlayed(gen, id, err) })
	})
	if err != nil {
		return err
	}
	cur.ready = false
	cur.playing = true
	c.logger.Debug("playing", "id", id, "duration", clip.Duration())
	return nil
}

func (c *Client) onPlayed(gen uint64, id int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.current
	if gen != c.gen.Load() || cur == nil || cur.utt.ID != id || !cur.playing {
		return
	}
	if err != nil {
		cur.playing = false
		c.dropLocked(cur, newError(CodeOperationFailed, "Play", err))
		c.advanceLocked()
		return
	}

	c.queue.Pop() //nolint:errcheck
	c.current = nil
	c.notifyCompleted(id)
	c.advanceLocked()
}

// dropLocked abandons the current utterance and reports err for it. No
// completion is raised.
func (c *Client) dropLocked(cur *inflight, err error) {
	if cur.synthesizing {
		cur.cancel()
		cur.synthesizing = false
	}
	if cur.playing {
		c.player.Stop() //nolint:errcheck
	}
	c.queue.Pop() //nolint:errcheck
	c.current = nil
	c.notifyError(cur.utt.ID, err)
}
