package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ai-diagnostics-service/internal/domain"
)

// InteractionCrossChecker wraps the drug-interaction service as a
// best-effort pipeline stage. A failed check degrades to an empty result
// and a processing note; it never fails the request.
type InteractionCrossChecker struct {
	checker domain.InteractionChecker
	skip    bool
	log     *logrus.Logger
}

// NewInteractionCrossChecker creates a new cross-checker
func NewInteractionCrossChecker(checker domain.InteractionChecker, skip bool, logger *logrus.Logger) *InteractionCrossChecker {
	return &InteractionCrossChecker{
		checker: checker,
		skip:    skip,
		log:     logger,
	}
}

// Check resolves interactions for the medication list. The second return
// value is a processing note explaining a skip or a degraded result, empty
// when the check ran cleanly.
func (c *InteractionCrossChecker) Check(ctx context.Context, medications []domain.MedicationEntry) ([]domain.InteractionResult, string) {
	if c.skip {
		return nil, "interaction check skipped by configuration"
	}
	if len(medications) == 0 {
		return nil, ""
	}

	names := make([]string, 0, len(medications))
	for _, m := range medications {
		names = append(names, m.Name)
	}

	results, err := c.checker.Check(ctx, names)
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"medications": len(names),
			"error":       err,
		}).Warn("Interaction check failed, continuing without interaction data")
		return nil, "interaction check unavailable; results omitted"
	}

	return results, ""
}
