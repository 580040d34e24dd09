package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine"
)

// Prepare connects to the engine in the background and returns at once.
// Success is reported by state_changed(Created, Ready); failure by the error
// callback with id 0, leaving the client in StateCreated. A second Prepare
// before the first resolves fails with ErrOperationInProgress.
func (c *Client) Prepare() error {
	const op = "Prepare"

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.preparing {
		return newErrorf(CodeOperationInProgress, op, "prepare is pending")
	}
	if err := c.checkState(op, StateCreated); err != nil {
		return err
	}
	if !c.mode.Valid() {
		return newErrorf(CodeInvalidParameter, op, "unknown mode %d", c.mode)
	}

	c.preparing = true
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	c.logger.Debug("connecting", "engine", c.adapter.Info().ID, "timeout", c.cfg.ConnectTimeout)

	go func() {
		defer cancel()
		err := c.handshake(ctx)
		c.dispatch.post(func() { c.prepared(err) })
	}()
	return nil
}

// handshake runs off the client lock.
func (c *Client) handshake(ctx context.Context) error {
	if err := c.adapter.Initialize(ctx); err != nil {
		return err
	}

	err := c.checkAccess()
	if err == nil && c.cfg.Pitch != engine.PitchAuto {
		if perr := c.adapter.SetPitch(c.cfg.Pitch); perr != nil {
			if errors.Is(perr, engine.ErrNotSupported) {
				c.logger.Debug("engine ignores pitch", "engine", c.adapter.Info().ID)
			} else {
				err = perr
			}
		}
	}
	if err == nil && ctx.Err() != nil {
		err = engine.Classify(ctx.Err())
	}

	if err != nil {
		if derr := c.adapter.Deinitialize(); derr != nil {
			c.logger.Warn("engine deinitialize failed", "err", derr)
		}
		return err
	}
	return nil
}

func (c *Client) checkAccess() error {
	if err := c.adapter.CheckAgreement(c.cfg.AppID); err != nil {
		return err
	}
	if c.adapter.NeedsCredential() && c.cfg.Credential == "" {
		return fmt.Errorf("%w: engine requires a credential", engine.ErrPermissionDenied)
	}
	return nil
}

// prepared runs on the dispatcher with the handshake result.
func (c *Client) prepared(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.preparing = false
	if err != nil {
		code := connectionCode(err)
		c.logger.Error("connection failed", "engine", c.adapter.Info().ID, "code", code, "err", err)
		c.notifyError(0, newError(code, "Prepare", err))
		return
	}

	c.connected = true
	if err := c.transitionLocked(StateReady); err != nil {
		c.logger.Error("ready transition rejected", "err", err)
		return
	}
	c.logger.Info("connected", "engine", c.adapter.Info().ID)
}

// Unprepare disconnects from the engine. Only valid in StateReady.
func (c *Client) Unprepare() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkState("Unprepare", StateReady); err != nil {
		return err
	}

	c.haltLocked()
	if err := c.adapter.Deinitialize(); err != nil {
		c.logger.Warn("engine deinitialize failed", "err", err)
	}
	c.connected = false
	return c.transitionLocked(StateCreated)
}
