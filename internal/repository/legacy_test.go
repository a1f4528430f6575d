package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-diagnostics-service/internal/domain"
)

func TestNormalizeLegacyCase(t *testing.T) {
	createdAt := time.Date(2021, 3, 14, 9, 0, 0, 0, time.UTC)
	legacy := &LegacyCase{
		CaseID:    "case-1",
		RequestID: "req-1",
		PatientID: "patient-1",
		Diagnoses: []LegacyDiagnosis{
			{Name: "Migraine", Likelihood: 72.5, Notes: "recurrent unilateral headache", Severity: "moderate"},
			{Name: "Tension headache", Likelihood: 40, Severity: ""},
		},
		RiskLevel: "moderate",
		RawOutput: `{"legacy":true}`,
		ModelName: "clinical-reasoner-0",
		CreatedAt: createdAt,
	}

	result := NormalizeLegacyCase(legacy)

	assert.Equal(t, "case-1", result.ID)
	assert.Equal(t, "req-1", result.RequestID)
	assert.Equal(t, createdAt, result.CreatedAt)
	assert.Equal(t, domain.RiskMedium, result.RiskAssessment.OverallRisk)
	assert.Equal(t, "clinical-reasoner-0", result.AIMetadata.ModelID)
	assert.Equal(t, `{"legacy":true}`, result.RawResponse)

	require.Len(t, result.Diagnoses, 2)
	assert.Equal(t, "Migraine", result.Diagnoses[0].Condition)
	assert.InDelta(t, 0.725, result.Diagnoses[0].Probability, 1e-9)
	assert.Equal(t, domain.SeverityMedium, result.Diagnoses[0].Severity)
	assert.Equal(t, domain.SeverityLow, result.Diagnoses[1].Severity)

	require.Len(t, result.ProcessingNotes, 1)
	assert.Contains(t, result.ProcessingNotes[0], "legacy case record")
}

func TestNormalizeLegacyCase_ClampsLikelihood(t *testing.T) {
	tests := []struct {
		name       string
		likelihood float64
		want       float64
	}{
		{"above range", 150, 1},
		{"below range", -10, 0},
		{"in range", 55, 0.55},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			legacy := &LegacyCase{
				Diagnoses: []LegacyDiagnosis{{Name: "X", Likelihood: tt.likelihood}},
			}
			result := NormalizeLegacyCase(legacy)
			assert.InDelta(t, tt.want, result.Diagnoses[0].Probability, 1e-9)
		})
	}
}

func TestNormalizeLegacyRisk_UnknownDefaultsLow(t *testing.T) {
	legacy := &LegacyCase{RiskLevel: "unknown-value"}
	assert.Equal(t, domain.RiskLow, NormalizeLegacyCase(legacy).RiskAssessment.OverallRisk)
}
