package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sahilm/fuzzy"

	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/cache"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine"
)

type speakResult struct {
	Spoken       int
	Failed       int
	TextBytes    int64
	Elapsed      time.Duration
	Cache        cache.Stats
	CacheEnabled bool
}

// utteranceDone is the outcome of one queued chunk.
type utteranceDone struct {
	id  int
	err error
}

// waitReady prepares client and waits for the handshake. ready must be fed
// by callbacks registered before the call.
func waitReady(ctx context.Context, client *tts.Client, ready <-chan error) error {
	if err := client.Prepare(); err != nil {
		return fmt.Errorf("unable to connect: %w", err)
	}
	select {
	case err := <-ready:
		if err != nil {
			return fmt.Errorf("unable to connect to %s engine: %w", client.Engine().Name, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// connectCallbacks registers the state and error callbacks. The handshake
// outcome arrives on the returned channel; utterance errors go to onError.
func connectCallbacks(client *tts.Client, onError func(id int, err error)) (<-chan error, error) {
	ready := make(chan error, 1)
	signal := func(err error) {
		select {
		case ready <- err:
		default:
			if err != nil {
				log.Error("Client error", "err", err)
			}
		}
	}
	if err := client.SetStateChangedCallback(func(prev, cur tts.State) {
		log.Debug("State changed", "from", prev, "to", cur)
		if prev == tts.StateCreated && cur == tts.StateReady {
			signal(nil)
		}
	}); err != nil {
		return nil, err
	}
	if err := client.SetErrorCallback(func(id int, err error) {
		if id == 0 || onError == nil {
			signal(err)
			return
		}
		onError(id, err)
	}); err != nil {
		return nil, err
	}
	return ready, nil
}

// speak queues chunks on client, plays them and waits until every chunk was
// spoken or failed.
func speak(ctx context.Context, client *tts.Client, chunks []string, opts voiceOptions) (res speakResult, err error) {
	start := time.Now()
	defer func() { res.Elapsed = time.Since(start) }()

	done := make(chan utteranceDone, len(chunks)+1)
	ready, err := connectCallbacks(client, func(id int, err error) {
		done <- utteranceDone{id: id, err: err}
	})
	if err != nil {
		return res, err
	}
	if err := client.SetUtteranceStartedCallback(func(id int) {
		log.Debug("Speaking", "id", id)
	}); err != nil {
		return res, err
	}
	if err := client.SetUtteranceCompletedCallback(func(id int) {
		done <- utteranceDone{id: id}
	}); err != nil {
		return res, err
	}
	if err := client.SetDefaultVoiceChangedCallback(func(prev, cur engine.Voice) {
		log.Info("Default voice changed", "from", prev, "to", cur)
	}); err != nil {
		return res, err
	}

	if err := waitReady(ctx, client, ready); err != nil {
		return res, err
	}
	if err := checkLanguage(client, opts.Language); err != nil {
		return res, err
	}

	pending := make(map[int]int, len(chunks))
	for _, chunk := range chunks {
		id, err := client.AddText(chunk, opts.Language, opts.Type, opts.Speed)
		if err != nil {
			if tts.CodeOf(err) == tts.CodeInvalidParameter {
				return res, usageError{err}
			}
			return res, fmt.Errorf("unable to queue text: %w", err)
		}
		pending[id] = len(chunk)
	}
	if err := client.Play(); err != nil {
		return res, fmt.Errorf("unable to start playback: %w", err)
	}

	var failures []error
	for len(pending) > 0 {
		select {
		case d := <-done:
			size, ok := pending[d.id]
			if !ok {
				continue
			}
			delete(pending, d.id)
			if d.err != nil {
				log.Error("Chunk failed", "id", d.id, "err", d.err)
				failures = append(failures, d.err)
				res.Failed++
				continue
			}
			res.Spoken++
			res.TextBytes += int64(size)
		case <-ctx.Done():
			if err := client.Stop(); err != nil {
				log.Warn("Could not stop playback", "err", err)
			}
			return res, ctx.Err()
		}
	}

	res.Cache, res.CacheEnabled = client.CacheStats()
	if len(failures) > 0 {
		return res, fmt.Errorf("%d of %d chunks failed: %w", len(failures), len(chunks), errors.Join(failures...))
	}
	return res, nil
}

// checkLanguage fails with a usage error, and suggestions, when no voice of
// the engine speaks lang.
func checkLanguage(client *tts.Client, lang string) error {
	if lang == "" {
		return nil
	}
	voices, err := client.Voices()
	if err != nil {
		return err
	}

	var langs []string
	seen := make(map[string]bool)
	for v := range voices {
		if v.Language == lang {
			return nil
		}
		if !seen[v.Language] {
			seen[v.Language] = true
			langs = append(langs, v.Language)
		}
	}

	msg := fmt.Sprintf("language %s is not supported by the %s engine", lang, client.Engine().Name)
	if s := suggest(engine.BaseLanguage(lang), langs, 3); len(s) > 0 {
		msg += "; did you mean " + strings.Join(s, ", ") + "?"
	}
	return usageError{errors.New(msg)}
}

// suggest returns up to n candidates that fuzzily match pattern, best first.
func suggest(pattern string, candidates []string, n int) []string {
	matches := fuzzy.Find(pattern, candidates)
	out := make([]string, 0, min(n, len(matches)))
	for _, m := range matches {
		if len(out) == n {
			break
		}
		out = append(out, m.Str)
	}
	return out
}
