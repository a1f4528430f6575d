package domain

import (
	"context"
	"time"
)

// PatientSource resolves patient master records from the external patient
// store. A missing patient is fatal for the pipeline.
type PatientSource interface {
	GetPatient(ctx context.Context, patientID string) (*PatientRecord, error)
}

// LabSource resolves referenced lab result ids into full records. Lookup
// failures are treated as soft by the aggregator.
type LabSource interface {
	GetLabResults(ctx context.Context, patientID string, ids []string) ([]LabResult, error)
}

// InvokeOptions controls a single reasoning-model invocation
type InvokeOptions struct {
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Timeout     time.Duration `json:"timeout"`      // hard wall-clock budget for the whole invocation
	MaxAttempts int           `json:"max_attempts"` // retry bound for retryable failures
	BackoffBase time.Duration `json:"backoff_base"`
	BackoffCap  time.Duration `json:"backoff_cap"`
}

// ReasoningModel invokes the external diagnostic reasoning model
type ReasoningModel interface {
	Invoke(ctx context.Context, input *StructuredInput, opts InvokeOptions) (*RawModelResponse, error)
}

// InteractionChecker queries the external drug-interaction service
type InteractionChecker interface {
	Check(ctx context.Context, medicationNames []string) ([]InteractionResult, error)
}

// RequestStore persists diagnostic requests. Create must enforce the
// one-active-request-per-(patient, workplace) guard atomically and return
// ErrActiveRequestExists on conflict.
type RequestStore interface {
	Create(ctx context.Context, req *DiagnosticRequest) error
	GetByID(ctx context.Context, id string) (*DiagnosticRequest, error)
	Update(ctx context.Context, req *DiagnosticRequest) error
	FindActive(ctx context.Context, patientID, workplaceID string) (*DiagnosticRequest, error)
}

// ResultStore persists diagnostic results, one per completed request
type ResultStore interface {
	Create(ctx context.Context, res *DiagnosticResult) error
	GetByRequestID(ctx context.Context, requestID string) (*DiagnosticResult, error)
}

// AuditLogger emits append-only activity log entries. Implementations must
// never fail the pipeline; errors are reported for logging only.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// ConfigManager provides access to application configuration
type ConfigManager interface {
	GetConfig() *Config
	Validate() error
}
