package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorEnvelope_Error(t *testing.T) {
	e := &ErrorEnvelope{Code: ErrNotFound, Message: "session not found"}
	want := "NOT_FOUND: session not found"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorEnvelope_implements_error(t *testing.T) {
	var _ error = (*ErrorEnvelope)(nil)
}

func TestErrorCode(t *testing.T) {
	if got := ErrorCode(NewDesignError("no steps")); got != ErrDesign {
		t.Errorf("ErrorCode = %q, want %q", got, ErrDesign)
	}
	wrapped := fmt.Errorf("designing: %w", NewDesignError("no steps"))
	if got := ErrorCode(wrapped); got != ErrDesign {
		t.Errorf("ErrorCode(wrapped) = %q, want %q", got, ErrDesign)
	}
	if got := ErrorCode(errors.New("plain")); got != ErrInternalError {
		t.Errorf("ErrorCode(plain) = %q, want %q", got, ErrInternalError)
	}
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{NewExtractionError("unusable output"), true},
		{NewDesignError("no steps to execute"), true},
		{NewValidationFailure("fatal issues remain", nil), true},
		{NewDeploymentFailure(DeployStepActivate, "engine refused"), false},
		{NewRollbackFailure("deactivate failed"), false},
		{NewCapacityError("pool exhausted"), false},
		{NewConcurrencyViolation("handler out of order"), false},
	}
	for _, tt := range tests {
		if got := IsRecoverable(tt.err); got != tt.want {
			t.Errorf("IsRecoverable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestNewExtractionError(t *testing.T) {
	e := NewExtractionError("could not parse the request")
	if e.Code != ErrExtraction {
		t.Errorf("Code = %q, want %q", e.Code, ErrExtraction)
	}
	if e.Message != "could not parse the request" {
		t.Errorf("Message = %q", e.Message)
	}
}

func TestNewDesignError(t *testing.T) {
	e := NewDesignError("no steps to execute")
	if e.Code != ErrDesign {
		t.Errorf("Code = %q, want %q", e.Code, ErrDesign)
	}
}

func TestNewValidationFailure(t *testing.T) {
	details := []FieldError{
		{Field: "notify-3", Code: IssueMissingParameter, Message: "channel is required"},
	}
	e := NewValidationFailure("1 fatal issue", details)
	if e.Code != ErrValidationFailure {
		t.Errorf("Code = %q, want %q", e.Code, ErrValidationFailure)
	}
	if len(e.Details) != 1 {
		t.Fatalf("Details length = %d, want 1", len(e.Details))
	}
	if e.Details[0].Field != "notify-3" {
		t.Errorf("Details[0].Field = %q", e.Details[0].Field)
	}
}

func TestNewDeploymentFailure(t *testing.T) {
	e := NewDeploymentFailure(DeployStepActivate, "engine returned 502")
	if e.Code != ErrDeploymentFailure {
		t.Errorf("Code = %q, want %q", e.Code, ErrDeploymentFailure)
	}
	want := "deployment step activate failed: engine returned 502"
	if e.Message != want {
		t.Errorf("Message = %q, want %q", e.Message, want)
	}
}

func TestNewRollbackFailure(t *testing.T) {
	e := NewRollbackFailure("deactivate returned 500")
	if e.Code != ErrRollbackFailure {
		t.Errorf("Code = %q, want %q", e.Code, ErrRollbackFailure)
	}
}

func TestNewCapacityError(t *testing.T) {
	e := NewCapacityError("namespace pool exhausted")
	if e.Code != ErrCapacity {
		t.Errorf("Code = %q, want %q", e.Code, ErrCapacity)
	}
}

func TestNewConcurrencyViolation(t *testing.T) {
	e := NewConcurrencyViolation("phase handler invoked out of order")
	if e.Code != ErrConcurrencyViolation {
		t.Errorf("Code = %q, want %q", e.Code, ErrConcurrencyViolation)
	}
}

func TestNewSessionArchivedError(t *testing.T) {
	e := NewSessionArchivedError()
	if e.Code != ErrSessionArchived {
		t.Errorf("Code = %q, want %q", e.Code, ErrSessionArchived)
	}
}

func TestNewEngineErrors(t *testing.T) {
	if e := NewEngineUnavailableError(); e.Code != ErrEngineUnavailable {
		t.Errorf("Code = %q, want %q", e.Code, ErrEngineUnavailable)
	}
	if e := NewEngineTimeoutError(); e.Code != ErrEngineTimeout {
		t.Errorf("Code = %q, want %q", e.Code, ErrEngineTimeout)
	}
}
