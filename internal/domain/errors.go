package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error codes for the diagnostic pipeline
const (
	ErrCodeConsentMissing      = "CONSENT_MISSING"
	ErrCodePatientNotFound     = "PATIENT_NOT_FOUND"
	ErrCodeAggregation         = "AGGREGATION_ERROR"
	ErrCodeActiveRequestExists = "ACTIVE_REQUEST_EXISTS"
	ErrCodeAITimeout           = "AI_TIMEOUT"
	ErrCodeAIError             = "AI_ERROR"
	ErrCodeMalformedResponse   = "MALFORMED_RESPONSE"
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeRetryExhausted      = "RETRY_EXHAUSTED"
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeDatabaseError       = "DATABASE_ERROR"
	ErrCodeInternalServer      = "INTERNAL_SERVER_ERROR"
)

// Sentinel errors used across the pipeline for errors.Is checks
var (
	ErrNotFound            = errors.New("resource not found")
	ErrConsentMissing      = errors.New("patient consent not obtained")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrActiveRequestExists = errors.New("an active diagnostic request already exists for this patient")
	ErrAITimeout           = errors.New("reasoning model invocation exceeded hard timeout")
	ErrMalformedResponse   = errors.New("reasoning model response failed structural validation")
	ErrInvalidTransition   = errors.New("invalid request status transition")
	ErrRetryExhausted      = errors.New("maximum retry attempts exhausted")
	ErrRequestTerminal     = errors.New("request is in a terminal state")
)

// PipelineError is the standardized error shape surfaced to callers
type PipelineError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	Retryable bool      `json:"retryable"`
	cause     error
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As
func (e *PipelineError) Unwrap() error {
	return e.cause
}

// NewPipelineError creates a new PipelineError with timestamp
func NewPipelineError(code, message, requestID string, cause error) *PipelineError {
	return &PipelineError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
		cause:     cause,
	}
}

// AIError describes a reasoning-model invocation failure. Retryable errors
// (network faults, 5xx, rate limits) consume retry budget; terminal errors
// (auth, malformed request) fail immediately.
type AIError struct {
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
	cause      error
}

// Error implements the error interface
func (e *AIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("reasoning model error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("reasoning model error: %s", e.Message)
}

// Unwrap exposes the underlying cause
func (e *AIError) Unwrap() error {
	return e.cause
}

// NewAIError creates an AIError
func NewAIError(statusCode int, message string, retryable bool, cause error) *AIError {
	return &AIError{
		StatusCode: statusCode,
		Message:    message,
		Retryable:  retryable,
		cause:      cause,
	}
}

// IsRetryableAIError reports whether err is a reasoning-model failure that
// may be retried under the gateway's backoff loop
func IsRetryableAIError(err error) bool {
	var aiErr *AIError
	if errors.As(err, &aiErr) {
		return aiErr.Retryable
	}
	return false
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
