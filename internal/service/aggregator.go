package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ai-diagnostics-service/internal/domain"
)

// PatientDataAggregator assembles the immutable clinical snapshot for one
// request. The patient master record is required input, so its absence is
// fatal; referenced lab results are best-effort and resolve to an empty
// list on transient failure.
type PatientDataAggregator struct {
	patients domain.PatientSource
	labs     domain.LabSource
	log      *logrus.Logger
}

// NewPatientDataAggregator creates a new aggregator
func NewPatientDataAggregator(patients domain.PatientSource, labs domain.LabSource, logger *logrus.Logger) *PatientDataAggregator {
	return &PatientDataAggregator{
		patients: patients,
		labs:     labs,
		log:      logger,
	}
}

// Aggregate builds the patient snapshot for a request
func (a *PatientDataAggregator) Aggregate(ctx context.Context, req *domain.DiagnosticRequest) (*domain.PatientSnapshot, error) {
	record, err := a.patients.GetPatient(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, domain.ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("aggregating patient %s: %w", req.PatientID, err)
	}

	snapshot := &domain.PatientSnapshot{
		PatientID:      req.PatientID,
		Demographics:   buildDemographics(record),
		Symptoms:       req.Snapshot.Symptoms,
		Vitals:         req.Snapshot.Vitals,
		Medications:    req.Snapshot.Medications,
		Allergies:      req.Snapshot.Allergies,
		MedicalHistory: req.Snapshot.MedicalHistory,
	}

	if len(req.Snapshot.LabResultIDs) > 0 {
		results, err := a.labs.GetLabResults(ctx, req.PatientID, req.Snapshot.LabResultIDs)
		if err != nil {
			a.log.WithFields(logrus.Fields{
				"request_id": req.ID,
				"patient_id": req.PatientID,
				"lab_ids":    len(req.Snapshot.LabResultIDs),
				"error":      err,
			}).Warn("Lab result resolution failed, proceeding without labs")
		} else {
			snapshot.LabResults = results
		}
	}

	return snapshot, nil
}

// buildDemographics derives the demographic view the reasoning model needs.
// Age comes from date of birth when present, falling back to the stored age.
func buildDemographics(record *domain.PatientRecord) domain.Demographics {
	d := domain.Demographics{
		Gender:   record.Gender,
		WeightKG: record.WeightKG,
	}

	if record.DateOfBirth != nil {
		d.Age = ageFromDOB(*record.DateOfBirth, time.Now())
		d.DateOfBirth = record.DateOfBirth.Format("2006-01-02")
	} else if record.Age != nil {
		d.Age = *record.Age
	}

	return d
}

// ageFromDOB computes completed years between dob and now
func ageFromDOB(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}
