// internal/agent/errors.go
package agent

import (
	"context"
	"errors"

	"github.com/Vrooli/agent-s2/api/schemas"
)

// ErrorCode is a string type used for structured error reporting on recorded
// actions. Only the predefined constants are meaningful.
type ErrorCode string

const (
	// -- General Execution Errors --
	ErrCodeExecutionFailure  ErrorCode = "EXECUTION_FAILURE"
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	ErrCodeUnknownAction     ErrorCode = "UNKNOWN_ACTION_TYPE"
	ErrCodeTimeoutError      ErrorCode = "TIMEOUT_ERROR"
	ErrCodeCancelled         ErrorCode = "CANCELLED"

	// -- Desktop Errors --
	ErrCodeBlockedBySecurity ErrorCode = "BLOCKED_BY_SECURITY"
	ErrCodeFocusFailed       ErrorCode = "FOCUS_FAILED"
	ErrCodeAppUnknown        ErrorCode = "APP_UNKNOWN"
	ErrCodeLaunchFailed      ErrorCode = "LAUNCH_FAILED"
	ErrCodeCaptureFailed     ErrorCode = "CAPTURE_FAILED"
	// ErrCodeManualReview marks a plan step that could not be normalized.
	ErrCodeManualReview ErrorCode = "MANUAL_REVIEW"

	// -- Internal System Errors --
	ErrCodeExecutorPanic ErrorCode = "EXECUTOR_PANIC"
)

// classifyError maps a dispatch error onto an ErrorCode.
func classifyError(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return ErrCodeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeoutError
	case errors.Is(err, schemas.ErrWindowFocusFailed):
		return ErrCodeFocusFailed
	case errors.Is(err, schemas.ErrBlockedBySecurity):
		return ErrCodeBlockedBySecurity
	case errors.Is(err, schemas.ErrInvalidInput):
		return ErrCodeInvalidParameters
	default:
		return ErrCodeExecutionFailure
	}
}
