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

// DiagnosticRequestRepository handles diagnostic request persistence
type DiagnosticRequestRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewDiagnosticRequestRepository creates a new request repository
func NewDiagnosticRequestRepository(db *pgxpool.Pool, logger *logrus.Logger) *DiagnosticRequestRepository {
	return &DiagnosticRequestRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts a new request, enforcing the one-active-request guard
// atomically through the partial unique index on (patient_id, workplace_id).
// Returns domain.ErrActiveRequestExists when the slot is taken.
func (r *DiagnosticRequestRepository) Create(ctx context.Context, req *domain.DiagnosticRequest) error {
	snapshot, err := json.Marshal(req.Snapshot)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	query := `
		INSERT INTO diagnostic_requests (
			id, patient_id, pharmacist_id, workplace_id, snapshot, priority,
			consent_obtained, consent_timestamp, prompt_version, prompt_hash,
			status, retry_count, error_message, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
		ON CONFLICT (patient_id, workplace_id)
			WHERE status IN ('pending', 'processing')
			DO NOTHING`

	tag, err := r.db.Exec(ctx, query,
		req.ID,
		req.PatientID,
		req.PharmacistID,
		req.WorkplaceID,
		snapshot,
		req.Priority,
		req.ConsentObtained,
		req.ConsentTimestamp,
		req.PromptVersion,
		req.PromptHash,
		req.Status,
		req.RetryCount,
		req.ErrorMessage,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": req.ID,
			"patient_id": req.PatientID,
			"error":      err,
		}).Error("Failed to create diagnostic request")
		return fmt.Errorf("creating diagnostic request: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrActiveRequestExists
	}

	r.log.WithFields(logrus.Fields{
		"request_id":   req.ID,
		"patient_id":   req.PatientID,
		"workplace_id": req.WorkplaceID,
		"priority":     req.Priority,
	}).Info("Diagnostic request created")

	return nil
}

const requestColumns = `
	id, patient_id, pharmacist_id, workplace_id, snapshot, priority,
	consent_obtained, consent_timestamp, prompt_version, prompt_hash,
	status, retry_count, error_message, created_at, updated_at,
	started_at, completed_at`

// GetByID retrieves a request by its id
func (r *DiagnosticRequestRepository) GetByID(ctx context.Context, id string) (*domain.DiagnosticRequest, error) {
	query := `SELECT` + requestColumns + ` FROM diagnostic_requests WHERE id = $1`

	req, err := r.scanRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("diagnostic request %s: %w", id, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"request_id": id,
			"error":      err,
		}).Error("Failed to get diagnostic request")
		return nil, fmt.Errorf("getting diagnostic request: %w", err)
	}

	return req, nil
}

// FindActive returns the pending or processing request for a patient and
// workplace, or domain.ErrNotFound
func (r *DiagnosticRequestRepository) FindActive(ctx context.Context, patientID, workplaceID string) (*domain.DiagnosticRequest, error) {
	query := `SELECT` + requestColumns + `
		FROM diagnostic_requests
		WHERE patient_id = $1 AND workplace_id = $2
		  AND status IN ('pending', 'processing')`

	req, err := r.scanRequest(r.db.QueryRow(ctx, query, patientID, workplaceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("finding active request: %w", err)
	}

	return req, nil
}

// Update persists the mutable lifecycle fields of a request
func (r *DiagnosticRequestRepository) Update(ctx context.Context, req *domain.DiagnosticRequest) error {
	query := `
		UPDATE diagnostic_requests
		SET status = $2, retry_count = $3, error_message = $4,
			prompt_version = $5, prompt_hash = $6,
			updated_at = $7, started_at = $8, completed_at = $9
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		req.ID,
		req.Status,
		req.RetryCount,
		req.ErrorMessage,
		req.PromptVersion,
		req.PromptHash,
		req.UpdatedAt,
		req.StartedAt,
		req.CompletedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": req.ID,
			"status":     req.Status,
			"error":      err,
		}).Error("Failed to update diagnostic request")
		return fmt.Errorf("updating diagnostic request: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("diagnostic request %s: %w", req.ID, domain.ErrNotFound)
	}

	return nil
}

// scanRequest maps one row onto a DiagnosticRequest
func (r *DiagnosticRequestRepository) scanRequest(row pgx.Row) (*domain.DiagnosticRequest, error) {
	var req domain.DiagnosticRequest
	var snapshot []byte

	err := row.Scan(
		&req.ID,
		&req.PatientID,
		&req.PharmacistID,
		&req.WorkplaceID,
		&snapshot,
		&req.Priority,
		&req.ConsentObtained,
		&req.ConsentTimestamp,
		&req.PromptVersion,
		&req.PromptHash,
		&req.Status,
		&req.RetryCount,
		&req.ErrorMessage,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.StartedAt,
		&req.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &req.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
		}
	}

	return &req, nil
}
