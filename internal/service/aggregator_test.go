package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-diagnostics-service/internal/domain"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func aggregatorRequest() *domain.DiagnosticRequest {
	return &domain.DiagnosticRequest{
		ID:        "req-1",
		PatientID: "patient-1",
		Snapshot: domain.InputSnapshot{
			Symptoms:     domain.SymptomReport{Subjective: []string{"fatigue"}},
			Medications:  []domain.MedicationEntry{{Name: "levothyroxine"}},
			LabResultIDs: []string{"lab-1", "lab-2"},
		},
	}
}

func TestAggregate_DerivesAgeFromDateOfBirth(t *testing.T) {
	dob := time.Now().UTC().AddDate(-42, 0, -1)
	patients := &fakePatientSource{record: &domain.PatientRecord{ID: "patient-1", DateOfBirth: &dob, Gender: "female"}}
	labs := &fakeLabSource{results: []domain.LabResult{{ID: "lab-1", TestName: "TSH"}}}

	aggregator := NewPatientDataAggregator(patients, labs, quietLogger())
	snapshot, err := aggregator.Aggregate(context.Background(), aggregatorRequest())

	require.NoError(t, err)
	assert.Equal(t, 42, snapshot.Demographics.Age)
	assert.Equal(t, "female", snapshot.Demographics.Gender)
	require.Len(t, snapshot.LabResults, 1)
	assert.Equal(t, "TSH", snapshot.LabResults[0].TestName)
}

func TestAggregate_FallsBackToStoredAge(t *testing.T) {
	age := 67
	patients := &fakePatientSource{record: &domain.PatientRecord{ID: "patient-1", Age: &age}}

	aggregator := NewPatientDataAggregator(patients, &fakeLabSource{}, quietLogger())
	snapshot, err := aggregator.Aggregate(context.Background(), aggregatorRequest())

	require.NoError(t, err)
	assert.Equal(t, 67, snapshot.Demographics.Age)
}

func TestAggregate_LabFailureIsSoft(t *testing.T) {
	dob := time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	patients := &fakePatientSource{record: &domain.PatientRecord{ID: "patient-1", DateOfBirth: &dob}}
	labs := &fakeLabSource{err: errors.New("lab store timeout")}

	aggregator := NewPatientDataAggregator(patients, labs, quietLogger())
	snapshot, err := aggregator.Aggregate(context.Background(), aggregatorRequest())

	require.NoError(t, err)
	assert.Empty(t, snapshot.LabResults)
	assert.NotEmpty(t, snapshot.Medications)
}

func TestAggregate_PatientNotFoundIsFatal(t *testing.T) {
	patients := &fakePatientSource{err: domain.ErrPatientNotFound}

	aggregator := NewPatientDataAggregator(patients, &fakeLabSource{}, quietLogger())
	_, err := aggregator.Aggregate(context.Background(), aggregatorRequest())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPatientNotFound)
}

func TestAgeFromDOB(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		dob      time.Time
		expected int
	}{
		{"birthday passed this year", time.Date(1990, 3, 1, 0, 0, 0, 0, time.UTC), 36},
		{"birthday later this year", time.Date(1990, 9, 1, 0, 0, 0, 0, time.UTC), 35},
		{"birthday today", time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC), 36},
		{"future date clamps to zero", time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ageFromDOB(tt.dob, now))
		})
	}
}
