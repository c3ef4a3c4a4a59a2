package model

import (
	"errors"
	"fmt"
)

// Standard error codes.
const (
	ErrBadRequest        = "BAD_REQUEST"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrForbidden         = "FORBIDDEN"
	ErrNotFound          = "NOT_FOUND"
	ErrConflict          = "CONFLICT"
	ErrInternalError     = "INTERNAL_ERROR"
	ErrEngineUnavailable = "ENGINE_UNAVAILABLE"
	ErrEngineTimeout     = "ENGINE_TIMEOUT"
)

// Orchestration error codes. Extraction, design, and validation failures are
// recoverable: the session keeps its phase and the user may retry with a new
// message. The rest are terminal for the attempt they interrupt.
const (
	ErrExtraction           = "EXTRACTION_ERROR"
	ErrDesign               = "DESIGN_ERROR"
	ErrValidationFailure    = "VALIDATION_FAILURE"
	ErrDeploymentFailure    = "DEPLOYMENT_FAILURE"
	ErrRollbackFailure      = "ROLLBACK_FAILURE"
	ErrCapacity             = "CAPACITY_ERROR"
	ErrConcurrencyViolation = "CONCURRENCY_VIOLATION"
	ErrSessionArchived      = "SESSION_ARCHIVED"
)

// ErrorEnvelope is the standard error envelope returned by the service.
// It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode returns the envelope code carried by err, unwrapping as needed.
// Errors that carry no envelope report INTERNAL_ERROR.
func ErrorCode(err error) string {
	var envelope *ErrorEnvelope
	if errors.As(err, &envelope) {
		return envelope.Code
	}
	return ErrInternalError
}

// IsRecoverable reports whether err lets the session keep its phase so the
// user can retry with another message.
func IsRecoverable(err error) bool {
	switch ErrorCode(err) {
	case ErrExtraction, ErrDesign, ErrValidationFailure:
		return true
	}
	return false
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewEngineUnavailableError returns an ENGINE_UNAVAILABLE error.
func NewEngineUnavailableError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrEngineUnavailable,
		Message: "The automation engine is temporarily unavailable",
	}
}

// NewEngineTimeoutError returns an ENGINE_TIMEOUT error.
func NewEngineTimeoutError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrEngineTimeout,
		Message: "The automation engine did not respond in time",
	}
}

// NewExtractionError returns an EXTRACTION_ERROR. The message is shown to the
// user as a prompt to rephrase.
func NewExtractionError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrExtraction, Message: msg}
}

// NewDesignError returns a DESIGN_ERROR naming the unmet constraint.
func NewDesignError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrDesign, Message: msg}
}

// NewValidationFailure returns a VALIDATION_FAILURE with per-issue details.
func NewValidationFailure(msg string, details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationFailure,
		Message: msg,
		Details: details,
	}
}

// NewDeploymentFailure returns a DEPLOYMENT_FAILURE naming the failing step.
func NewDeploymentFailure(step, msg string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrDeploymentFailure,
		Message: fmt.Sprintf("deployment step %s failed: %s", step, msg),
	}
}

// NewRollbackFailure returns a ROLLBACK_FAILURE. Rollback failures are always
// reported on their own, never folded into the error that triggered the
// rollback.
func NewRollbackFailure(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrRollbackFailure, Message: msg}
}

// NewCapacityError returns a CAPACITY_ERROR.
func NewCapacityError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrCapacity, Message: msg}
}

// NewConcurrencyViolation returns a CONCURRENCY_VIOLATION. This code always
// indicates a bug in the orchestrator, never a user mistake.
func NewConcurrencyViolation(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConcurrencyViolation, Message: msg}
}

// NewSessionArchivedError returns a SESSION_ARCHIVED error.
func NewSessionArchivedError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrSessionArchived,
		Message: "This session has been archived. Start a new session to continue.",
	}
}
