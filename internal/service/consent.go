package service

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ai-diagnostics-service/internal/domain"
)

// ConsentGate validates that explicit patient consent was captured before
// any processing may start. The override is for non-production environments
// only; it is rejected at config validation when the environment is
// production and is always logged when it bypasses the gate.
type ConsentGate struct {
	override bool
	log      *logrus.Logger
}

// NewConsentGate creates a new consent gate
func NewConsentGate(override bool, logger *logrus.Logger) *ConsentGate {
	return &ConsentGate{
		override: override,
		log:      logger,
	}
}

// Validate fails fast when consent was not obtained. It has no side effects
// beyond logging an override.
func (g *ConsentGate) Validate(req *domain.DiagnosticRequest) error {
	if req.ConsentObtained {
		return nil
	}

	if g.override {
		g.log.WithFields(logrus.Fields{
			"request_id": req.ID,
			"patient_id": req.PatientID,
		}).Warn("Consent requirement bypassed by override")
		return nil
	}

	return fmt.Errorf("patient %s: %w", req.PatientID, domain.ErrConsentMissing)
}

// Overridden reports whether the gate would pass a request without consent
func (g *ConsentGate) Overridden() bool {
	return g.override
}
