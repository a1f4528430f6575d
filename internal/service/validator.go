package service

import (
	"fmt"
	"strings"

	"github.com/ai-diagnostics-service/internal/domain"
)

// Quality score weights. Each sub-signal contributes monotonically; a more
// complete, more consistent, or more confident response never scores lower.
const (
	weightCompleteness = 0.3
	weightConsistency  = 0.3
	weightConfidence   = 0.4
)

// ValidateResponse checks structural completeness of a model response and
// derives its quality assessment. A response that breaks the structural
// contract fails with ErrMalformedResponse; softer defects become
// validation flags on the enhanced response.
func ValidateResponse(raw *domain.RawModelResponse) (*domain.EnhancedResponse, error) {
	if raw == nil || len(raw.DifferentialDiagnoses) == 0 {
		return nil, fmt.Errorf("response contains no differential diagnoses: %w", domain.ErrMalformedResponse)
	}

	var flags []string

	for i, d := range raw.DifferentialDiagnoses {
		if strings.TrimSpace(d.Condition) == "" {
			return nil, fmt.Errorf("diagnosis %d has no condition name: %w", i, domain.ErrMalformedResponse)
		}
		if d.Probability < 0 || d.Probability > 100 {
			return nil, fmt.Errorf("diagnosis %q probability %.2f out of range: %w", d.Condition, d.Probability, domain.ErrMalformedResponse)
		}
		if d.Severity != "" && parseSeverity(d.Severity) == "" {
			flags = append(flags, fmt.Sprintf("unrecognized severity %q on diagnosis %q", d.Severity, d.Condition))
		}
	}

	for i, rf := range raw.RedFlags {
		if strings.TrimSpace(rf.Flag) == "" {
			return nil, fmt.Errorf("red flag %d has no description: %w", i, domain.ErrMalformedResponse)
		}
		if parseSeverity(rf.Severity) == "" {
			flags = append(flags, fmt.Sprintf("unrecognized severity %q on red flag %q", rf.Severity, rf.Flag))
		}
	}

	if ref := raw.ReferralRecommendation; ref != nil && ref.Recommended && strings.TrimSpace(ref.Specialty) == "" {
		flags = append(flags, "referral recommended without a specialty")
	}

	if raw.ConfidenceScore < 0 || raw.ConfidenceScore > 100 {
		flags = append(flags, fmt.Sprintf("model confidence %.2f out of range, clamped", raw.ConfidenceScore))
	}

	return &domain.EnhancedResponse{
		Response:        raw,
		QualityScore:    scoreQuality(raw),
		ValidationFlags: flags,
	}, nil
}

// scoreQuality combines completeness, internal consistency, and the
// model-reported confidence into one score in [0,1]
func scoreQuality(raw *domain.RawModelResponse) float64 {
	score := weightCompleteness*completeness(raw) +
		weightConsistency*consistency(raw) +
		weightConfidence*clampUnit(raw.ConfidenceScore/100)
	return clampUnit(score)
}

// completeness is the fraction of optional advisory sections the model
// populated. Red flags are excluded: their absence can mean a benign
// presentation rather than a thin response.
func completeness(raw *domain.RawModelResponse) float64 {
	populated := 0
	if len(raw.RecommendedTests) > 0 {
		populated++
	}
	if len(raw.TherapeuticOptions) > 0 {
		populated++
	}
	if raw.ReferralRecommendation != nil {
		populated++
	}
	if strings.TrimSpace(raw.Disclaimer) != "" {
		populated++
	}
	return float64(populated) / 4
}

// consistency checks that high-attention signals align across sections
func consistency(raw *domain.RawModelResponse) float64 {
	c := 1.0

	if hasSevereRedFlag(raw.RedFlags) && !hasSevereDiagnosis(raw.DifferentialDiagnoses) {
		c -= 0.5
	}
	if ref := raw.ReferralRecommendation; ref != nil && ref.Recommended && isUrgentReferral(ref.Urgency) &&
		!hasSevereDiagnosis(raw.DifferentialDiagnoses) && !hasSevereRedFlag(raw.RedFlags) {
		c -= 0.25
	}

	if c < 0 {
		return 0
	}
	return c
}

func hasSevereRedFlag(flags []domain.ModelRedFlag) bool {
	for _, rf := range flags {
		s := parseSeverity(rf.Severity)
		if s == domain.SeverityHigh || s == domain.SeverityCritical {
			return true
		}
	}
	return false
}

func hasSevereDiagnosis(diagnoses []domain.ModelDiagnosis) bool {
	for _, d := range diagnoses {
		s := parseSeverity(d.Severity)
		if s == domain.SeverityHigh || s == domain.SeverityCritical {
			return true
		}
	}
	return false
}

func isUrgentReferral(urgency string) bool {
	switch strings.ToLower(strings.TrimSpace(urgency)) {
	case "urgent", "emergency", "immediate":
		return true
	}
	return false
}

// parseSeverity maps a wire severity string to the domain enum, returning
// the empty value for unrecognized input
func parseSeverity(s string) domain.Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "mild":
		return domain.SeverityLow
	case "medium", "moderate":
		return domain.SeverityMedium
	case "high", "severe":
		return domain.SeverityHigh
	case "critical":
		return domain.SeverityCritical
	}
	return ""
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
