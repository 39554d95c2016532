package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestExecutionError_Error(t *testing.T) {
	err := &ExecutionError{
		Category: ErrCategoryLocate,
		Code:     "test_error",
		Message:  "test message",
	}

	if got := err.Error(); got != "test message" {
		t.Errorf("Error() = %q, want %q", got, "test message")
	}
}

func TestExecutionError_ErrorWithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := &ExecutionError{
		Category: ErrCategoryBackend,
		Code:     "test_error",
		Message:  "test message",
		Cause:    cause,
	}

	got := err.Error()
	if !strings.Contains(got, "test message") {
		t.Errorf("Error() = %q, should contain 'test message'", got)
	}
	if !strings.Contains(got, "underlying error") {
		t.Errorf("Error() = %q, should contain 'underlying error'", got)
	}
}

func TestExecutionError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &ExecutionError{
		Message: "wrapper",
		Cause:   cause,
	}

	if got := err.Unwrap(); got != cause {
		t.Errorf("Unwrap() = %v, want %v", got, cause)
	}
}

func TestExecutionError_IsMatchesCopies(t *testing.T) {
	cause := errors.New("boom")
	derived := ErrNotFound.WithCause(cause).WithMessage("no match for [Text(Home)]")

	if !errors.Is(derived, ErrNotFound) {
		t.Error("errors.Is should match a derived copy against the predefined value")
	}
	if errors.Is(derived, ErrTemplateNotFound) {
		t.Error("errors.Is should not match a different code")
	}
	if !errors.Is(derived, cause) {
		t.Error("errors.Is should reach the wrapped cause")
	}
}

func TestExecutionError_WithCause(t *testing.T) {
	original := ErrNotFound
	cause := errors.New("custom cause")

	newErr := original.WithCause(cause)

	if newErr.Cause != cause {
		t.Error("WithCause() did not set cause")
	}
	if newErr.Code != original.Code {
		t.Error("WithCause() changed code")
	}
	if original.Cause != nil {
		t.Error("WithCause() modified original error")
	}
}

func TestExecutionError_WithMessage(t *testing.T) {
	original := ErrSessionBusy
	newErr := original.WithMessage("session abc already running Press Element")

	if newErr.Message != "session abc already running Press Element" {
		t.Errorf("Message = %q", newErr.Message)
	}
	if newErr.Code != original.Code {
		t.Error("WithMessage() changed code")
	}
	if original.Message == newErr.Message {
		t.Error("WithMessage() modified original error")
	}
}

func TestExecutionError_WithDetails(t *testing.T) {
	original := ErrMissingParameter.WithDetails(map[string]interface{}{"keyword": "Enter Text"})
	merged := original.WithDetails(map[string]interface{}{"parameter": "text"})

	if merged.Details["keyword"] != "Enter Text" {
		t.Error("WithDetails() dropped existing detail")
	}
	if merged.Details["parameter"] != "text" {
		t.Error("WithDetails() did not add new detail")
	}
	if len(original.Details) != 1 {
		t.Error("WithDetails() modified receiver")
	}
}

func TestAsExecutionError(t *testing.T) {
	if AsExecutionError(nil) != nil {
		t.Error("nil should stay nil")
	}

	plain := errors.New("socket closed")
	wrapped := AsExecutionError(plain)
	if !errors.Is(wrapped, ErrBackend) {
		t.Errorf("plain errors should normalize to backend errors, got %v", wrapped)
	}
	if !errors.Is(wrapped, plain) {
		t.Error("normalized error should keep the cause")
	}

	structured := ErrCycleDetected.WithMessage("module login already on stack")
	if got := AsExecutionError(structured); got.Code != "cycle_detected" {
		t.Errorf("structured error should pass through, got code %q", got.Code)
	}

	nested := fmt.Errorf("dispatch: %w", ErrCancelled)
	if got := AsExecutionError(nested); got.Code != "cancelled" {
		t.Errorf("wrapped structured error should be recovered, got code %q", got.Code)
	}
}

func TestTaxonomyCodes(t *testing.T) {
	cases := []struct {
		err  *ExecutionError
		code string
		cat  ErrorCategory
	}{
		{ErrNotFound, "not_found", ErrCategoryLocate},
		{ErrTemplateNotFound, "template_not_found", ErrCategoryLocate},
		{ErrMissingParameter, "missing_parameter", ErrCategoryParameter},
		{ErrUnknownParameter, "unknown_parameter", ErrCategoryParameter},
		{ErrSessionNotFound, "session_not_found", ErrCategorySession},
		{ErrSessionBusy, "session_busy", ErrCategorySession},
		{ErrCancelled, "cancelled", ErrCategorySession},
		{ErrKeywordNotFound, "keyword_not_found", ErrCategoryFlow},
		{ErrCycleDetected, "cycle_detected", ErrCategoryFlow},
		{ErrUnimplemented, "unimplemented", ErrCategoryFlow},
		{ErrExpression, "expression_error", ErrCategoryExpression},
		{ErrBackend, "backend_error", ErrCategoryBackend},
	}
	for _, tc := range cases {
		if tc.err.Code != tc.code {
			t.Errorf("code = %q, want %q", tc.err.Code, tc.code)
		}
		if tc.err.Category != tc.cat {
			t.Errorf("%s: category = %v, want %v", tc.code, tc.err.Category, tc.cat)
		}
	}
}
