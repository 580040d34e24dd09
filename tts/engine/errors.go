package engine

import (
	"context"
	"errors"
	"fmt"
)

// Errors an engine may return. Anything else coming out of an engine is
// reported as ErrOperationFailed by the adapter.
var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidVoice     = errors.New("invalid voice")
	ErrOutOfMemory      = errors.New("out of memory")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotSupported     = errors.New("not supported")
	ErrUnavailable      = errors.New("engine unavailable")
	ErrNetwork          = errors.New("network failure")
	ErrTimedOut         = errors.New("timed out")
	ErrCanceled         = errors.New("synthesis canceled")
	ErrNotInitialized   = errors.New("engine not initialized")
	ErrOperationFailed  = errors.New("operation failed")
)

var known = []error{
	ErrInvalidParameter,
	ErrInvalidVoice,
	ErrOutOfMemory,
	ErrPermissionDenied,
	ErrNotSupported,
	ErrUnavailable,
	ErrNetwork,
	ErrTimedOut,
	ErrCanceled,
	ErrNotInitialized,
	ErrOperationFailed,
}

// Classify normalizes an error returned by an engine. Errors that match one
// of the package sentinels pass through untouched, context expiry becomes
// ErrTimedOut or ErrCanceled, and everything else is wrapped as
// ErrOperationFailed with the original cause kept in the chain.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range known {
		if errors.Is(err, k) {
			return err
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimedOut, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	return fmt.Errorf("%w: %w", ErrOperationFailed, err)
}
