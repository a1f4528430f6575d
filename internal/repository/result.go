package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/ai-diagnostics-service/internal/domain"
)

// DiagnosticResultRepository handles diagnostic result persistence.
// Lookups fall back to the legacy case table and normalize old rows into
// the current result shape at this boundary.
type DiagnosticResultRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewDiagnosticResultRepository creates a new result repository
func NewDiagnosticResultRepository(db *pgxpool.Pool, logger *logrus.Logger) *DiagnosticResultRepository {
	return &DiagnosticResultRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts the result for a completed request. The unique constraint
// on request_id enforces the one-result-per-request invariant.
func (r *DiagnosticResultRepository) Create(ctx context.Context, res *domain.DiagnosticResult) error {
	diagnoses, err := json.Marshal(res.Diagnoses)
	if err != nil {
		return fmt.Errorf("marshaling diagnoses: %w", err)
	}
	tests, err := json.Marshal(res.SuggestedTests)
	if err != nil {
		return fmt.Errorf("marshaling suggested tests: %w", err)
	}
	meds, err := json.Marshal(res.MedicationSuggestions)
	if err != nil {
		return fmt.Errorf("marshaling medication suggestions: %w", err)
	}
	redFlags, err := json.Marshal(res.RedFlags)
	if err != nil {
		return fmt.Errorf("marshaling red flags: %w", err)
	}
	interactions, err := json.Marshal(res.InteractionResults)
	if err != nil {
		return fmt.Errorf("marshaling interaction results: %w", err)
	}
	labs, err := json.Marshal(res.LabValidations)
	if err != nil {
		return fmt.Errorf("marshaling lab validations: %w", err)
	}
	risk, err := json.Marshal(res.RiskAssessment)
	if err != nil {
		return fmt.Errorf("marshaling risk assessment: %w", err)
	}
	meta, err := json.Marshal(res.AIMetadata)
	if err != nil {
		return fmt.Errorf("marshaling ai metadata: %w", err)
	}

	query := `
		INSERT INTO diagnostic_results (
			id, request_id, diagnoses, suggested_tests, medication_suggestions,
			red_flags, interaction_results, lab_validations, risk_assessment,
			ai_metadata, validation_flags, processing_notes, raw_response,
			disclaimer, follow_up_required, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)`

	_, err = r.db.Exec(ctx, query,
		res.ID,
		res.RequestID,
		diagnoses,
		tests,
		meds,
		redFlags,
		interactions,
		labs,
		risk,
		meta,
		res.ValidationFlags,
		res.ProcessingNotes,
		res.RawResponse,
		res.Disclaimer,
		res.FollowUpRequired,
		res.CreatedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"result_id":  res.ID,
			"request_id": res.RequestID,
			"error":      err,
		}).Error("Failed to create diagnostic result")
		return fmt.Errorf("creating diagnostic result: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"result_id":    res.ID,
		"request_id":   res.RequestID,
		"overall_risk": res.RiskAssessment.OverallRisk,
	}).Info("Diagnostic result created")

	return nil
}

// GetByRequestID retrieves the result belonging to a request. If no result
// exists in the current table, the legacy case table is consulted and the
// row normalized on the way out.
func (r *DiagnosticResultRepository) GetByRequestID(ctx context.Context, requestID string) (*domain.DiagnosticResult, error) {
	query := `
		SELECT id, request_id, diagnoses, suggested_tests, medication_suggestions,
			   red_flags, interaction_results, lab_validations, risk_assessment,
			   ai_metadata, validation_flags, processing_notes, raw_response,
			   disclaimer, follow_up_required, created_at
		FROM diagnostic_results
		WHERE request_id = $1`

	var res domain.DiagnosticResult
	var diagnoses, tests, meds, redFlags, interactions, labs, risk, meta []byte

	err := r.db.QueryRow(ctx, query, requestID).Scan(
		&res.ID,
		&res.RequestID,
		&diagnoses,
		&tests,
		&meds,
		&redFlags,
		&interactions,
		&labs,
		&risk,
		&meta,
		&res.ValidationFlags,
		&res.ProcessingNotes,
		&res.RawResponse,
		&res.Disclaimer,
		&res.FollowUpRequired,
		&res.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.getLegacyByRequestID(ctx, requestID)
		}
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err,
		}).Error("Failed to get diagnostic result")
		return nil, fmt.Errorf("getting diagnostic result: %w", err)
	}

	for _, pair := range []struct {
		data []byte
		dst  interface{}
	}{
		{diagnoses, &res.Diagnoses},
		{tests, &res.SuggestedTests},
		{meds, &res.MedicationSuggestions},
		{redFlags, &res.RedFlags},
		{interactions, &res.InteractionResults},
		{labs, &res.LabValidations},
		{risk, &res.RiskAssessment},
		{meta, &res.AIMetadata},
	} {
		if len(pair.data) > 0 {
			if err := json.Unmarshal(pair.data, pair.dst); err != nil {
				return nil, fmt.Errorf("unmarshaling result field: %w", err)
			}
		}
	}

	return &res, nil
}

// getLegacyByRequestID reads one legacy case row and normalizes it
func (r *DiagnosticResultRepository) getLegacyByRequestID(ctx context.Context, requestID string) (*domain.DiagnosticResult, error) {
	query := `
		SELECT case_id, request_id, patient_id, diagnoses, risk_level,
			   raw_output, model_name, created_at
		FROM legacy_diagnostic_cases
		WHERE request_id = $1`

	var legacy LegacyCase
	var diagnoses []byte

	err := r.db.QueryRow(ctx, query, requestID).Scan(
		&legacy.CaseID,
		&legacy.RequestID,
		&legacy.PatientID,
		&diagnoses,
		&legacy.RiskLevel,
		&legacy.RawOutput,
		&legacy.ModelName,
		&legacy.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("diagnostic result for request %s: %w", requestID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting legacy diagnostic case: %w", err)
	}

	if len(diagnoses) > 0 {
		if err := json.Unmarshal(diagnoses, &legacy.Diagnoses); err != nil {
			return nil, fmt.Errorf("unmarshaling legacy diagnoses: %w", err)
		}
	}

	r.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"case_id":    legacy.CaseID,
	}).Debug("Normalizing legacy diagnostic case")

	return NormalizeLegacyCase(&legacy), nil
}
