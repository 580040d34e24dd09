package tts

import (
	"errors"
	"fmt"

	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine"
	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/queue"
)

// Errors returned by client operations and passed to the error callback.
var (
	ErrInvalidState        = errors.New("invalid state for operation")
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrOperationInProgress = errors.New("operation in progress")
	ErrEngineUnavailable   = errors.New("engine unavailable")
	ErrConnectionFailed    = errors.New("connection failed")
	ErrOperationFailed     = errors.New("operation failed")
	ErrOutOfMemory         = errors.New("out of memory")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrTimedOut            = errors.New("timed out")

	// Shared with the engine package so a client error wrapping an engine
	// error matches either name.
	ErrInvalidVoice = engine.ErrInvalidVoice
	ErrNotSupported = engine.ErrNotSupported
)

// ErrorCode identifies the kind of a client error.
type ErrorCode int

const (
	CodeNone ErrorCode = iota
	CodeInvalidState
	CodeInvalidParameter
	CodeOperationInProgress
	CodeEngineUnavailable
	CodeConnectionFailed
	CodeOperationFailed
	CodeOutOfMemory
	CodePermissionDenied
	CodeTimedOut
	CodeInvalidVoice
	CodeNotSupported
)

var codeErrors = map[ErrorCode]error{
	CodeInvalidState:        ErrInvalidState,
	CodeInvalidParameter:    ErrInvalidParameter,
	CodeOperationInProgress: ErrOperationInProgress,
	CodeEngineUnavailable:   ErrEngineUnavailable,
	CodeConnectionFailed:    ErrConnectionFailed,
	CodeOperationFailed:     ErrOperationFailed,
	CodeOutOfMemory:         ErrOutOfMemory,
	CodePermissionDenied:    ErrPermissionDenied,
	CodeTimedOut:            ErrTimedOut,
	CodeInvalidVoice:        ErrInvalidVoice,
	CodeNotSupported:        ErrNotSupported,
}

// Err returns the sentinel error for the code.
func (c ErrorCode) Err() error {
	return codeErrors[c]
}

// String returns the string representation of the code.
func (c ErrorCode) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeInvalidState:
		return "invalid_state"
	case CodeInvalidParameter:
		return "invalid_parameter"
	case CodeOperationInProgress:
		return "operation_in_progress"
	case CodeEngineUnavailable:
		return "engine_unavailable"
	case CodeConnectionFailed:
		return "connection_failed"
	case CodeOperationFailed:
		return "operation_failed"
	case CodeOutOfMemory:
		return "out_of_memory"
	case CodePermissionDenied:
		return "permission_denied"
	case CodeTimedOut:
		return "timed_out"
	case CodeInvalidVoice:
		return "invalid_voice"
	case CodeNotSupported:
		return "not_supported"
	default:
		return "unknown"
	}
}

// TTSError provides detailed error information.
type TTSError struct {
	Code    ErrorCode
	Op      string // Operation that failed
	Message string // Optional detail
	Cause   error  // Underlying error, usually from the engine
}

// Error implements the error interface.
func (e *TTSError) Error() string {
	msg := e.Code.String()
	if sentinel := e.Code.Err(); sentinel != nil {
		msg = sentinel.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *TTSError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel error for the code.
func (e *TTSError) Is(target error) bool {
	sentinel := e.Code.Err()
	return sentinel != nil && target == sentinel
}

func newError(code ErrorCode, op string, cause error) *TTSError {
	return &TTSError{Code: code, Op: op, Cause: cause}
}

func newErrorf(code ErrorCode, op, format string, args ...any) *TTSError {
	return &TTSError{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code carried by err. Errors that are not client errors
// report CodeOperationFailed, and nil reports CodeNone.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeNone
	}
	var te *TTSError
	if errors.As(err, &te) {
		return te.Code
	}
	for code, sentinel := range codeErrors {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeOperationFailed
}

// connectionCode maps a handshake failure to the code reported to the
// application.
func connectionCode(err error) ErrorCode {
	switch {
	case errors.Is(err, engine.ErrNetwork):
		return CodeConnectionFailed
	case errors.Is(err, engine.ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, engine.ErrTimedOut):
		return CodeTimedOut
	case errors.Is(err, engine.ErrOutOfMemory):
		return CodeOutOfMemory
	default:
		return CodeEngineUnavailable
	}
}

// requestCode maps a synchronous adapter or queue failure.
func requestCode(err error) ErrorCode {
	switch {
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, engine.ErrOutOfMemory):
		return CodeOutOfMemory
	case errors.Is(err, engine.ErrInvalidParameter), errors.Is(err, engine.ErrInvalidVoice):
		return CodeInvalidParameter
	case errors.Is(err, engine.ErrNotSupported):
		return CodeNotSupported
	case errors.Is(err, engine.ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, engine.ErrTimedOut):
		return CodeTimedOut
	default:
		return CodeOperationFailed
	}
}
