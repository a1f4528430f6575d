package audit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ai-diagnostics-service/internal/domain"
)

// Audit action names emitted by the pipeline
const (
	ActionRequestSubmitted  = "diagnostic_request_submitted"
	ActionProcessingStarted = "diagnostic_processing_started"
	ActionModelInvoked      = "reasoning_model_invoked"
	ActionRequestCompleted  = "diagnostic_request_completed"
	ActionRequestFailed     = "diagnostic_request_failed"
	ActionRequestCancelled  = "diagnostic_request_cancelled"
	ActionRequestRetried    = "diagnostic_request_retried"
	ActionConsentOverridden = "consent_requirement_overridden"
)

// Logger emits append-only activity entries through the structured log
// stream. Downstream log shipping owns durability; the pipeline never
// blocks or fails on audit emission.
type Logger struct {
	log *logrus.Logger
}

// NewLogger creates an audit logger on top of the application log stream
func NewLogger(log *logrus.Logger) *Logger {
	return &Logger{log: log}
}

// Record emits one audit entry
func (l *Logger) Record(ctx context.Context, entry domain.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	fields := logrus.Fields{
		"audit":      true,
		"action":     entry.Action,
		"request_id": entry.RequestID,
		"timestamp":  entry.Timestamp.Format(time.RFC3339Nano),
	}
	if entry.ResultID != "" {
		fields["result_id"] = entry.ResultID
	}
	if entry.ActorID != "" {
		fields["actor_id"] = entry.ActorID
	}
	if entry.RiskLevel != "" {
		fields["risk_level"] = entry.RiskLevel
	}
	for k, v := range entry.Metadata {
		fields["meta_"+k] = v
	}

	l.log.WithFields(fields).Info("Audit event")
	return nil
}
