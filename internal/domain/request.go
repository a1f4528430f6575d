package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewDiagnosticRequest creates a pending request for the given submission.
// Consent must already have been validated by the caller.
type NewRequestParams struct {
	PatientID        string
	PharmacistID     string
	WorkplaceID      string
	Snapshot         InputSnapshot
	Priority         Priority
	ConsentObtained  bool
	ConsentTimestamp *time.Time
	PromptVersion    string
}

// NewDiagnosticRequest constructs a pending DiagnosticRequest
func NewDiagnosticRequest(p NewRequestParams) *DiagnosticRequest {
	now := time.Now().UTC()
	priority := p.Priority
	if priority == "" {
		priority = PriorityRoutine
	}
	return &DiagnosticRequest{
		ID:               uuid.New().String(),
		PatientID:        p.PatientID,
		PharmacistID:     p.PharmacistID,
		WorkplaceID:      p.WorkplaceID,
		Snapshot:         p.Snapshot,
		Priority:         priority,
		ConsentObtained:  p.ConsentObtained,
		ConsentTimestamp: p.ConsentTimestamp,
		PromptVersion:    p.PromptVersion,
		Status:           StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// IsActive reports whether the request occupies the per-patient active slot
func (r *DiagnosticRequest) IsActive() bool {
	return r.Status == StatusPending || r.Status == StatusProcessing
}

// IsTerminal reports whether no further transitions are allowed.
// A failed request is terminal once its retry budget is exhausted.
func (r *DiagnosticRequest) IsTerminal(maxRetries int) bool {
	switch r.Status {
	case StatusCompleted, StatusCancelled:
		return true
	case StatusFailed:
		return r.RetryCount >= maxRetries
	default:
		return false
	}
}

// CanRetry reports whether an explicit retry-by-id may resume this request
func (r *DiagnosticRequest) CanRetry(maxRetries int) bool {
	return r.Status == StatusFailed && r.RetryCount < maxRetries
}

// MarkProcessing transitions pending → processing, or failed → processing
// for an explicit retry
func (r *DiagnosticRequest) MarkProcessing() error {
	if r.Status != StatusPending && r.Status != StatusFailed {
		return fmt.Errorf("%w: %s → processing", ErrInvalidTransition, r.Status)
	}
	now := time.Now().UTC()
	r.Status = StatusProcessing
	r.StartedAt = &now
	r.UpdatedAt = now
	r.ErrorMessage = ""
	return nil
}

// MarkCompleted transitions processing → completed
func (r *DiagnosticRequest) MarkCompleted() error {
	if r.Status != StatusProcessing {
		return fmt.Errorf("%w: %s → completed", ErrInvalidTransition, r.Status)
	}
	now := time.Now().UTC()
	r.Status = StatusCompleted
	r.CompletedAt = &now
	r.UpdatedAt = now
	return nil
}

// MarkFailed transitions processing → failed, recording the error and
// consuming one unit of retry budget
func (r *DiagnosticRequest) MarkFailed(message string) error {
	if r.Status != StatusProcessing {
		return fmt.Errorf("%w: %s → failed", ErrInvalidTransition, r.Status)
	}
	now := time.Now().UTC()
	r.Status = StatusFailed
	r.ErrorMessage = message
	r.RetryCount++
	r.UpdatedAt = now
	return nil
}

// MarkCancelled transitions a non-terminal request to cancelled.
// Completed requests are immutable and cannot be cancelled.
func (r *DiagnosticRequest) MarkCancelled() error {
	switch r.Status {
	case StatusPending, StatusProcessing, StatusFailed:
		now := time.Now().UTC()
		r.Status = StatusCancelled
		r.CompletedAt = &now
		r.UpdatedAt = now
		return nil
	default:
		return fmt.Errorf("%w: %s → cancelled", ErrInvalidTransition, r.Status)
	}
}

// RecordAIAttempts folds transient reasoning-model attempt failures into the
// request's retry accounting. A run that succeeded on attempt N had N-1
// prior failures.
func (r *DiagnosticRequest) RecordAIAttempts(attempts int) {
	if attempts > 1 {
		r.RetryCount += attempts - 1
		r.UpdatedAt = time.Now().UTC()
	}
}
