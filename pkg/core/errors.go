package core

import (
	"errors"
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: not_found, session_busy, etc.
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches by code so that copies produced by WithCause/WithMessage
// still satisfy errors.Is against the predefined values.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithMessagef is WithMessage with fmt.Sprintf formatting
func (e *ExecutionError) WithMessagef(format string, args ...interface{}) *ExecutionError {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors covering the engine taxonomy
var (
	// Locate errors
	ErrNotFound = &ExecutionError{
		Category: ErrCategoryLocate,
		Code:     "not_found",
		Message:  "no element matched the locator set before the timeout",
	}
	ErrTemplateNotFound = &ExecutionError{
		Category: ErrCategoryLocate,
		Code:     "template_not_found",
		Message:  "image template is not registered for this session",
	}

	// Parameter errors
	ErrMissingParameter = &ExecutionError{
		Category: ErrCategoryParameter,
		Code:     "missing_parameter",
		Message:  "required parameter was not supplied",
	}
	ErrUnknownParameter = &ExecutionError{
		Category: ErrCategoryParameter,
		Code:     "unknown_parameter",
		Message:  "parameter name is not declared by the keyword",
	}

	// Session errors
	ErrSessionNotFound = &ExecutionError{
		Category: ErrCategorySession,
		Code:     "session_not_found",
		Message:  "session does not exist or is terminated",
	}
	ErrSessionBusy = &ExecutionError{
		Category: ErrCategorySession,
		Code:     "session_busy",
		Message:  "session already has a keyword in flight",
	}
	ErrCancelled = &ExecutionError{
		Category: ErrCategorySession,
		Code:     "cancelled",
		Message:  "session terminated while the keyword was waiting",
	}

	// Flow errors
	ErrKeywordNotFound = &ExecutionError{
		Category: ErrCategoryFlow,
		Code:     "keyword_not_found",
		Message:  "keyword is not registered",
	}
	ErrCycleDetected = &ExecutionError{
		Category: ErrCategoryFlow,
		Code:     "cycle_detected",
		Message:  "module invokes itself through the active call stack",
	}
	ErrUnimplemented = &ExecutionError{
		Category: ErrCategoryFlow,
		Code:     "unimplemented",
		Message:  "keyword is registered but not implemented",
	}

	// Expression errors
	ErrExpression = &ExecutionError{
		Category: ErrCategoryExpression,
		Code:     "expression_error",
		Message:  "expression is outside the accepted grammar",
	}

	// Backend errors
	ErrBackend = &ExecutionError{
		Category: ErrCategoryBackend,
		Code:     "backend_error",
		Message:  "driver or detection backend failed",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// AsExecutionError normalizes any error into an ExecutionError. Errors that
// are not already structured are wrapped as backend failures.
func AsExecutionError(err error) *ExecutionError {
	if err == nil {
		return nil
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee
	}
	return ErrBackend.WithCause(err)
}
