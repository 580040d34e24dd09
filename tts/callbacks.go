package tts

import "github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine"

// StateChangedFunc is called after every state transition except Create and
// Destroy.
type StateChangedFunc func(prev, cur State)

// UtteranceFunc is called with the id of an utterance that started or
// completed.
type UtteranceFunc func(id int)

// DefaultVoiceChangedFunc is called when the engine default voice changes.
type DefaultVoiceChangedFunc func(prev, cur engine.Voice)

// ErrorFunc is called for asynchronous failures. id is 0 when the failure is
// not tied to an utterance, as for a failed Prepare. CodeOf(err) gives the
// error code.
type ErrorFunc func(id int, err error)

// callbacks is the per-handle registration table.
type callbacks struct {
	stateChanged        StateChangedFunc
	utteranceStarted    UtteranceFunc
	utteranceCompleted  UtteranceFunc
	defaultVoiceChanged DefaultVoiceChangedFunc
	err                 ErrorFunc
}

// SetStateChangedCallback registers fn. Only valid in StateCreated.
func (c *Client) SetStateChangedCallback(fn StateChangedFunc) error {
	return c.register("SetStateChangedCallback", fn == nil, func(cb *callbacks) { cb.stateChanged = fn })
}

// UnsetStateChangedCallback removes the state changed callback.
func (c *Client) UnsetStateChangedCallback() error {
	return c.register("UnsetStateChangedCallback", false, func(cb *callbacks) { cb.stateChanged = nil })
}

// SetUtteranceStartedCallback registers fn. Only valid in StateCreated.
func (c *Client) SetUtteranceStartedCallback(fn UtteranceFunc) error {
	return c.register("SetUtteranceStartedCallback", fn == nil, func(cb *callbacks) { cb.utteranceStarted = fn })
}

// UnsetUtteranceStartedCallback removes the utterance started callback.
func (c *Client) UnsetUtteranceStartedCallback() error {
	return c.register("UnsetUtteranceStartedCallback", false, func(cb *callbacks) { cb.utteranceStarted = nil })
}

// SetUtteranceCompletedCallback registers fn. Only valid in StateCreated.
func (c *Client) SetUtteranceCompletedCallback(fn UtteranceFunc) error {
	return c.register("SetUtteranceCompletedCallback", fn == nil, func(cb *callbacks) { cb.utteranceCompleted = fn })
}

// UnsetUtteranceCompletedCallback removes the utterance completed callback.
func (c *Client) UnsetUtteranceCompletedCallback() error {
	return c.register("UnsetUtteranceCompletedCallback", false, func(cb *callbacks) { cb.utteranceCompleted = nil })
}

// SetDefaultVoiceChangedCallback registers fn. Only valid in StateCreated.
func (c *Client) SetDefaultVoiceChangedCallback(fn DefaultVoiceChangedFunc) error {
	return c.register("SetDefaultVoiceChangedCallback", fn == nil, func(cb *callbacks) { cb.defaultVoiceChanged = fn })
}

// UnsetDefaultVoiceChangedCallback removes the default voice callback.
func (c *Client) UnsetDefaultVoiceChangedCallback() error {
	return c.register("UnsetDefaultVoiceChangedCallback", false, func(cb *callbacks) { cb.defaultVoiceChanged = nil })
}

// SetErrorCallback registers fn. Only valid in StateCreated.
func (c *Client) SetErrorCallback(fn ErrorFunc) error {
	return c.register("SetErrorCallback", fn == nil, func(cb *callbacks) { cb.err = fn })
}

// UnsetErrorCallback removes the error callback.
func (c *Client) UnsetErrorCallback() error {
	return c.register("UnsetErrorCallback", false, func(cb *callbacks) { cb.err = nil })
}

func (c *Client) register(op string, nilFunc bool, apply func(*callbacks)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkState(op, StateCreated); err != nil {
		return err
	}
	if nilFunc {
		return newErrorf(CodeInvalidParameter, op, "callback is nil")
	}
	apply(&c.callbacks)
	return nil
}

// The notify helpers must be called with c.mu held. Delivery happens on the
// dispatcher, which takes c.mu first, so a callback never runs before the
// command that raised it has returned its lock.

func (c *Client) notifyStateChanged(prev, cur State) {
	c.logger.Debug("state changed", "from", prev, "to", cur)
	c.deliver(func(cb callbacks) func() {
		if cb.stateChanged == nil {
			return nil
		}
		return func() { cb.stateChanged(prev, cur) }
	})
}

func (c *Client) notifyStarted(id int) {
	c.logger.Debug("utterance started", "id", id)
	c.deliver(func(cb callbacks) func() {
		if cb.utteranceStarted == nil {
			return nil
		}
		return func() { cb.utteranceStarted(id) }
	})
}

func (c *Client) notifyCompleted(id int) {
	c.logger.Debug("utterance completed", "id", id)
	c.deliver(func(cb callbacks) func() {
		if cb.utteranceCompleted == nil {
			return nil
		}
		return func() { cb.utteranceCompleted(id) }
	})
}

func (c *Client) notifyError(id int, err error) {
	c.logger.Warn("tts error", "id", id, "code", CodeOf(err), "err", err)
	c.deliver(func(cb callbacks) func() {
		if cb.err == nil {
			return nil
		}
		return func() { cb.err(id, err) }
	})
}

func (c *Client) notifyDefaultVoiceChanged(prev, cur engine.Voice) {
	c.deliver(func(cb callbacks) func() {
		if cb.defaultVoiceChanged == nil {
			return nil
		}
		return func() { cb.defaultVoiceChanged(prev, cur) }
	})
}

// deliver posts a notification. pick runs under c.mu on the dispatcher and
// returns the call to make, or nil when nothing is registered. Nothing is
// delivered once the handle is destroyed.
func (c *Client) deliver(pick func(callbacks) func()) {
	c.dispatch.post(func() {
		c.mu.Lock()
		if c.sm.Current() == StateNone {
			c.mu.Unlock()
			return
		}
		call := pick(c.callbacks)
		c.mu.Unlock()
		if call != nil {
			call()
		}
	})
}
