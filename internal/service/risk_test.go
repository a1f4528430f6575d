package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ai-diagnostics-service/internal/domain"
)

func TestSynthesizeRisk_PrecedenceChain(t *testing.T) {
	tests := []struct {
		name         string
		diagnoses    []domain.Diagnosis
		redFlags     []domain.RedFlag
		interactions []domain.InteractionResult
		expected     domain.RiskLevel
	}{
		{
			name: "critical red flag dominates everything",
			diagnoses: []domain.Diagnosis{
				{Condition: "tension headache", Severity: domain.SeverityLow, Probability: 0.9},
			},
			redFlags: []domain.RedFlag{
				{Flag: "thunderclap onset", Severity: domain.SeverityCritical},
			},
			expected: domain.RiskCritical,
		},
		{
			name: "high severity diagnosis above half probability",
			diagnoses: []domain.Diagnosis{
				{Condition: "pulmonary embolism", Severity: domain.SeverityHigh, Probability: 0.55},
			},
			expected: domain.RiskHigh,
		},
		{
			name: "high severity diagnosis at exactly half stays below high",
			diagnoses: []domain.Diagnosis{
				{Condition: "pulmonary embolism", Severity: domain.SeverityHigh, Probability: 0.5},
			},
			expected: domain.RiskLow,
		},
		{
			name: "major interaction raises to high",
			diagnoses: []domain.Diagnosis{
				{Condition: "gastritis", Severity: domain.SeverityLow, Probability: 0.7},
			},
			interactions: []domain.InteractionResult{
				{DrugPair: "warfarin + aspirin", Severity: domain.InteractionMajor},
			},
			expected: domain.RiskHigh,
		},
		{
			name: "contraindicated interaction raises to high",
			interactions: []domain.InteractionResult{
				{DrugPair: "sildenafil + nitroglycerin", Severity: domain.InteractionContraindicated},
			},
			expected: domain.RiskHigh,
		},
		{
			name: "high red flag alone raises to high",
			redFlags: []domain.RedFlag{
				{Flag: "unilateral weakness", Severity: domain.SeverityHigh},
			},
			expected: domain.RiskHigh,
		},
		{
			name: "medium diagnosis above threshold",
			diagnoses: []domain.Diagnosis{
				{Condition: "pneumonia", Severity: domain.SeverityMedium, Probability: 0.65},
			},
			expected: domain.RiskMedium,
		},
		{
			name: "medium diagnosis at threshold stays low",
			diagnoses: []domain.Diagnosis{
				{Condition: "pneumonia", Severity: domain.SeverityMedium, Probability: 0.6},
			},
			expected: domain.RiskLow,
		},
		{
			name: "minor signals only",
			diagnoses: []domain.Diagnosis{
				{Condition: "common cold", Severity: domain.SeverityLow, Probability: 0.8},
			},
			interactions: []domain.InteractionResult{
				{DrugPair: "a + b", Severity: domain.InteractionMinor},
			},
			redFlags: []domain.RedFlag{
				{Flag: "persistent cough", Severity: domain.SeverityMedium},
			},
			expected: domain.RiskLow,
		},
		{
			name:     "empty inputs",
			expected: domain.RiskLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assessment := SynthesizeRisk(tt.diagnoses, tt.redFlags, tt.interactions, nil, nil)
			assert.Equal(t, tt.expected, assessment.OverallRisk)
		})
	}
}

func TestSynthesizeRisk_AddingCriticalFlagNeverLowersRisk(t *testing.T) {
	diagnoses := []domain.Diagnosis{
		{Condition: "pneumonia", Severity: domain.SeverityMedium, Probability: 0.7},
	}
	base := SynthesizeRisk(diagnoses, nil, nil, nil, nil)

	withFlag := SynthesizeRisk(diagnoses, []domain.RedFlag{
		{Flag: "altered mental status", Severity: domain.SeverityCritical},
	}, nil, nil, nil)

	assert.Equal(t, domain.RiskMedium, base.OverallRisk)
	assert.Equal(t, domain.RiskCritical, withFlag.OverallRisk)
}

func TestSynthesizeRisk_RiskFactors(t *testing.T) {
	assessment := SynthesizeRisk(
		[]domain.Diagnosis{
			{Condition: "pulmonary embolism", Severity: domain.SeverityHigh, Probability: 0.6},
			{Condition: "costochondritis", Severity: domain.SeverityLow, Probability: 0.3},
		},
		[]domain.RedFlag{{Flag: "hypoxia", Severity: domain.SeverityHigh}},
		[]domain.InteractionResult{{DrugPair: "warfarin + aspirin", Severity: domain.InteractionMajor}},
		[]domain.LabValidation{{TestName: "D-dimer", Interpretation: domain.LabCritical}},
		nil,
	)

	assert.Len(t, assessment.RiskFactors, 4)
	assert.Contains(t, assessment.RiskFactors[0], "pulmonary embolism")
}

func TestSynthesizeRisk_MitigatingFactors(t *testing.T) {
	snapshot := &domain.PatientSnapshot{
		Symptoms:       domain.SymptomReport{Severity: "mild"},
		MedicalHistory: []string{"non-smoker", "regular exercise 3x weekly"},
	}

	assessment := SynthesizeRisk(nil, nil, nil, nil, snapshot)

	assert.Contains(t, assessment.MitigatingFactors, "non-smoker")
	assert.Contains(t, assessment.MitigatingFactors, "regular physical activity")
	assert.Contains(t, assessment.MitigatingFactors, "mild symptom severity")
}

func TestSynthesizeRisk_NilSnapshotHasNoMitigatingFactors(t *testing.T) {
	assessment := SynthesizeRisk(nil, nil, nil, nil, nil)
	assert.Empty(t, assessment.MitigatingFactors)
}
