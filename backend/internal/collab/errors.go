package collab

import (
	"errors"

	"collabEngine/backend/internal/ot"
	"collabEngine/backend/internal/registry"
	"collabEngine/backend/internal/store"
)

// Error codes mirror the failure buckets the coordinator acknowledges with.
// None of them ever terminates the coordinator or reaches other members.
const (
	CodeAuthFailed       = "AUTH_FAILED"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeInvalidOperation = "INVALID_OPERATION"
	CodeInternal         = "INTERNAL"
)

// EngineError carries a stable code for the acknowledgment payload while
// wrapping the underlying cause for logs.
type EngineError struct {
	Code    string
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *EngineError) Unwrap() error { return e.Err }

func newEngineError(code, message string, err error) *EngineError {
	return &EngineError{Code: code, Message: message, Err: err}
}

// Classify converts lower-layer sentinel errors into the engine taxonomy.
// Anything unrecognized is an internal failure.
func Classify(err error) *EngineError {
	if err == nil {
		return nil
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee
	}
	switch {
	case errors.Is(err, registry.ErrMissingIdentity):
		return newEngineError(CodeAuthFailed, "missing or invalid identity", err)
	case errors.Is(err, ot.ErrUnknownKind), errors.Is(err, ot.ErrBadShape):
		return newEngineError(CodeValidationFailed, "malformed operation", err)
	case errors.Is(err, store.ErrOutOfBounds), errors.Is(err, ot.ErrOutOfBounds):
		return newEngineError(CodeInvalidOperation, "operation out of bounds", err)
	case errors.Is(err, store.ErrSessionNotFound):
		return newEngineError(CodeInvalidOperation, "session has no document", err)
	default:
		return newEngineError(CodeInternal, "internal error", err)
	}
}
