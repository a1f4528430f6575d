package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-diagnostics-service/internal/domain"
)

func sampleSnapshot() *domain.PatientSnapshot {
	hr := 96
	temp := 38.4
	weight := 81.5
	return &domain.PatientSnapshot{
		PatientID: "patient-1",
		Demographics: domain.Demographics{
			Age:      54,
			Gender:   "female",
			WeightKG: &weight,
		},
		Symptoms: domain.SymptomReport{
			Subjective: []string{"productive cough", "fever"},
			Duration:   "5 days",
			Severity:   "moderate",
			Onset:      "acute",
		},
		Vitals: &domain.VitalSigns{
			HeartRate:   &hr,
			Temperature: &temp,
		},
		Medications: []domain.MedicationEntry{
			{Name: "metformin", Dosage: "500mg", Frequency: "bid"},
		},
		Allergies:      []string{"penicillin"},
		MedicalHistory: []string{"type 2 diabetes", "non-smoker"},
	}
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	snapshot := sampleSnapshot()

	first, firstHash, err := BuildPrompt(snapshot, "v1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		input, hash, err := BuildPrompt(snapshot, "v1")
		require.NoError(t, err)
		assert.Equal(t, first, input)
		assert.Equal(t, firstHash, hash)
	}
}

func TestBuildPrompt_VersionChangesHash(t *testing.T) {
	snapshot := sampleSnapshot()

	_, v1Hash, err := BuildPrompt(snapshot, "v1")
	require.NoError(t, err)
	_, v2Hash, err := BuildPrompt(snapshot, "v2")
	require.NoError(t, err)

	assert.NotEqual(t, v1Hash, v2Hash)
}

func TestBuildPrompt_SnapshotChangesHash(t *testing.T) {
	base := sampleSnapshot()
	changed := sampleSnapshot()
	changed.Symptoms.Subjective = append(changed.Symptoms.Subjective, "chest pain")

	_, baseHash, err := BuildPrompt(base, "v1")
	require.NoError(t, err)
	_, changedHash, err := BuildPrompt(changed, "v1")
	require.NoError(t, err)

	assert.NotEqual(t, baseHash, changedHash)
}

func TestBuildPrompt_PayloadShape(t *testing.T) {
	snapshot := sampleSnapshot()

	input, hash, err := BuildPrompt(snapshot, "v3")
	require.NoError(t, err)

	assert.Equal(t, "v3", input.PromptVersion)
	assert.Equal(t, "differential_diagnosis", input.Task)
	assert.Equal(t, *snapshot, input.Patient)
	assert.NotEmpty(t, input.Instructions)
	assert.Len(t, hash, 64)
}
