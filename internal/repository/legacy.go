package repository

import (
	"time"

	"github.com/ai-diagnostics-service/internal/domain"
)

// LegacyCase is the flat record shape used by older deployments before the
// request/result split
type LegacyCase struct {
	CaseID    string
	RequestID string
	PatientID string
	Diagnoses []LegacyDiagnosis
	RiskLevel string
	RawOutput string
	ModelName string
	CreatedAt time.Time
}

// LegacyDiagnosis is one legacy diagnosis entry; likelihood is a percentage
type LegacyDiagnosis struct {
	Name       string  `json:"name"`
	Likelihood float64 `json:"likelihood"`
	Notes      string  `json:"notes,omitempty"`
	Severity   string  `json:"severity,omitempty"`
}

// NormalizeLegacyCase converts a legacy case row into the current
// DiagnosticResult shape, keeping the rest of the pipeline unaware of the
// old format
func NormalizeLegacyCase(legacy *LegacyCase) *domain.DiagnosticResult {
	diagnoses := make([]domain.Diagnosis, 0, len(legacy.Diagnoses))
	for _, d := range legacy.Diagnoses {
		diagnoses = append(diagnoses, domain.Diagnosis{
			Condition:   d.Name,
			Probability: clampUnit(d.Likelihood / 100.0),
			Reasoning:   d.Notes,
			Severity:    normalizeLegacySeverity(d.Severity),
		})
	}

	return &domain.DiagnosticResult{
		ID:        legacy.CaseID,
		RequestID: legacy.RequestID,
		Diagnoses: diagnoses,
		RiskAssessment: domain.RiskAssessment{
			OverallRisk: normalizeLegacyRisk(legacy.RiskLevel),
		},
		AIMetadata: domain.AIMetadata{
			ModelID: legacy.ModelName,
		},
		RawResponse:     legacy.RawOutput,
		ProcessingNotes: []string{"normalized from legacy case record " + legacy.CaseID},
		CreatedAt:       legacy.CreatedAt,
	}
}

func normalizeLegacySeverity(s string) domain.Severity {
	switch s {
	case "medium", "moderate":
		return domain.SeverityMedium
	case "high", "severe":
		return domain.SeverityHigh
	case "critical":
		return domain.SeverityCritical
	default:
		return domain.SeverityLow
	}
}

func normalizeLegacyRisk(s string) domain.RiskLevel {
	switch s {
	case "medium", "moderate":
		return domain.RiskMedium
	case "high":
		return domain.RiskHigh
	case "critical":
		return domain.RiskCritical
	default:
		return domain.RiskLow
	}
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
