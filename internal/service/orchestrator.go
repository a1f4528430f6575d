package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ai-diagnostics-service/internal/audit"
	"github.com/ai-diagnostics-service/internal/domain"
)

// SubmitParams carries one diagnostic submission
type SubmitParams struct {
	PatientID        string
	PharmacistID     string
	WorkplaceID      string
	Snapshot         domain.InputSnapshot
	Priority         domain.Priority
	ConsentObtained  bool
	ConsentTimestamp *time.Time
}

// Orchestrator threads one diagnostic request through the pipeline:
// consent gate, aggregation, prompt build, model invocation, validation,
// the two best-effort cross checks, risk synthesis, and result persistence.
// It owns all request state transitions.
type Orchestrator struct {
	gate       *ConsentGate
	aggregator *PatientDataAggregator
	model      domain.ReasoningModel
	crossCheck *InteractionCrossChecker
	requests   domain.RequestStore
	results    domain.ResultStore
	audit      domain.AuditLogger
	config     *domain.Config
	log        *logrus.Logger

	// dispatch runs the pipeline after a successful submit. The default
	// processes in a background goroutine; tests substitute a synchronous
	// runner.
	dispatch func(requestID string)
}

// NewOrchestrator wires the pipeline together
func NewOrchestrator(
	gate *ConsentGate,
	aggregator *PatientDataAggregator,
	model domain.ReasoningModel,
	crossCheck *InteractionCrossChecker,
	requests domain.RequestStore,
	results domain.ResultStore,
	auditLog domain.AuditLogger,
	config *domain.Config,
	logger *logrus.Logger,
) *Orchestrator {
	o := &Orchestrator{
		gate:       gate,
		aggregator: aggregator,
		model:      model,
		crossCheck: crossCheck,
		requests:   requests,
		results:    results,
		audit:      auditLog,
		config:     config,
		log:        logger,
	}
	o.dispatch = func(requestID string) {
		go func() {
			if err := o.Process(context.Background(), requestID); err != nil {
				o.log.WithFields(logrus.Fields{
					"request_id": requestID,
					"error":      err,
				}).Error("Diagnostic pipeline run failed")
			}
		}()
	}
	return o
}

// SetDispatch overrides how a submitted request is handed to the pipeline
func (o *Orchestrator) SetDispatch(dispatch func(requestID string)) {
	o.dispatch = dispatch
}

// Submit validates consent, atomically creates the pending request, and
// hands it to the pipeline. A second active request for the same patient
// and workplace is refused with ErrActiveRequestExists.
func (o *Orchestrator) Submit(ctx context.Context, params SubmitParams) (*domain.DiagnosticRequest, error) {
	req := domain.NewDiagnosticRequest(domain.NewRequestParams{
		PatientID:        params.PatientID,
		PharmacistID:     params.PharmacistID,
		WorkplaceID:      params.WorkplaceID,
		Snapshot:         params.Snapshot,
		Priority:         params.Priority,
		ConsentObtained:  params.ConsentObtained,
		ConsentTimestamp: params.ConsentTimestamp,
		PromptVersion:    o.config.Pipeline.PromptVersion,
	})

	if err := o.gate.Validate(req); err != nil {
		return nil, err
	}
	if !req.ConsentObtained && o.gate.Overridden() {
		o.emitAudit(ctx, domain.AuditEntry{
			RequestID: req.ID,
			Action:    audit.ActionConsentOverridden,
			ActorID:   req.PharmacistID,
		})
	}

	if err := o.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	o.emitAudit(ctx, domain.AuditEntry{
		RequestID: req.ID,
		Action:    audit.ActionRequestSubmitted,
		ActorID:   req.PharmacistID,
		Metadata: map[string]interface{}{
			"patient_id":   req.PatientID,
			"workplace_id": req.WorkplaceID,
			"priority":     string(req.Priority),
		},
	})

	o.dispatch(req.ID)
	return req, nil
}

// Process runs the pipeline for a pending or retryable request.
// Cancellation is cooperative: the request is re-read between stages and a
// concurrent cancel stops the run without a result, but an in-flight model
// call is never interrupted.
func (o *Orchestrator) Process(ctx context.Context, requestID string) error {
	req, err := o.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}

	if err := req.MarkProcessing(); err != nil {
		return err
	}
	if err := o.requests.Update(ctx, req); err != nil {
		return err
	}
	o.emitAudit(ctx, domain.AuditEntry{
		RequestID: req.ID,
		Action:    audit.ActionProcessingStarted,
		Metadata:  map[string]interface{}{"retry_count": req.RetryCount},
	})

	startedAt := time.Now()

	snapshot, err := o.aggregator.Aggregate(ctx, req)
	if err != nil {
		return o.failRequest(ctx, req, err)
	}
	if o.cancelled(ctx, req.ID) {
		return nil
	}

	input, promptHash, err := BuildPrompt(snapshot, o.config.Pipeline.PromptVersion)
	if err != nil {
		return o.failRequest(ctx, req, err)
	}
	req.PromptHash = promptHash

	response, err := o.model.Invoke(ctx, input, domain.InvokeOptions{
		Temperature: o.config.Reasoning.Temperature,
		MaxTokens:   o.config.Reasoning.MaxTokens,
		Timeout:     o.config.Reasoning.Timeout,
		MaxAttempts: o.config.Reasoning.MaxAttempts,
		BackoffBase: o.config.Reasoning.BackoffBase,
		BackoffCap:  o.config.Reasoning.BackoffCap,
	})
	if err != nil {
		return o.failRequest(ctx, req, err)
	}
	req.RecordAIAttempts(response.Attempts)
	o.emitAudit(ctx, domain.AuditEntry{
		RequestID: req.ID,
		Action:    audit.ActionModelInvoked,
		Metadata: map[string]interface{}{
			"model":        response.Model,
			"attempts":     response.Attempts,
			"total_tokens": response.Usage.TotalTokens,
			"prompt_hash":  promptHash,
		},
	})
	if o.cancelled(ctx, req.ID) {
		return nil
	}

	enhanced, err := ValidateResponse(response)
	if err != nil {
		return o.failRequest(ctx, req, err)
	}

	interactions, labs, notes := o.runCrossChecks(ctx, snapshot)
	if o.cancelled(ctx, req.ID) {
		return nil
	}

	result := o.assembleResult(req, snapshot, enhanced, interactions, labs, notes, time.Since(startedAt))

	if err := o.results.Create(ctx, result); err != nil {
		return o.failRequest(ctx, req, fmt.Errorf("persisting result: %w", err))
	}
	if err := req.MarkCompleted(); err != nil {
		return err
	}
	if err := o.requests.Update(ctx, req); err != nil {
		return err
	}

	o.emitAudit(ctx, domain.AuditEntry{
		RequestID: req.ID,
		ResultID:  result.ID,
		Action:    audit.ActionRequestCompleted,
		RiskLevel: string(result.RiskAssessment.OverallRisk),
		Metadata: map[string]interface{}{
			"quality_score": enhanced.QualityScore,
			"diagnoses":     len(result.Diagnoses),
		},
	})

	o.log.WithFields(logrus.Fields{
		"request_id":   req.ID,
		"overall_risk": result.RiskAssessment.OverallRisk,
		"retry_count":  req.RetryCount,
	}).Info("Diagnostic request completed")

	return nil
}

// Retry resumes a failed request by id. Requests past their retry budget
// or in another terminal state are refused.
func (o *Orchestrator) Retry(ctx context.Context, requestID string) (*domain.DiagnosticRequest, error) {
	req, err := o.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if req.Status != domain.StatusFailed {
		return nil, fmt.Errorf("request %s is %s: %w", requestID, req.Status, domain.ErrRequestTerminal)
	}
	if !req.CanRetry(o.config.Pipeline.MaxRequestRetries) {
		return nil, fmt.Errorf("request %s: %w", requestID, domain.ErrRetryExhausted)
	}

	o.emitAudit(ctx, domain.AuditEntry{
		RequestID: req.ID,
		Action:    audit.ActionRequestRetried,
		Metadata:  map[string]interface{}{"retry_count": req.RetryCount},
	})

	o.dispatch(req.ID)
	return req, nil
}

// Cancel marks a non-terminal request cancelled. The pipeline observes the
// new status at its next stage boundary.
func (o *Orchestrator) Cancel(ctx context.Context, requestID string) (*domain.DiagnosticRequest, error) {
	req, err := o.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if err := req.MarkCancelled(); err != nil {
		return nil, err
	}
	if err := o.requests.Update(ctx, req); err != nil {
		return nil, err
	}

	o.emitAudit(ctx, domain.AuditEntry{
		RequestID: req.ID,
		Action:    audit.ActionRequestCancelled,
	})

	return req, nil
}

// GetRequest looks up a request by id
func (o *Orchestrator) GetRequest(ctx context.Context, requestID string) (*domain.DiagnosticRequest, error) {
	return o.requests.GetByID(ctx, requestID)
}

// GetResult looks up the result of a completed request
func (o *Orchestrator) GetResult(ctx context.Context, requestID string) (*domain.DiagnosticResult, error) {
	return o.results.GetByRequestID(ctx, requestID)
}

// runCrossChecks runs the interaction check and lab validation
// concurrently. Both are best-effort and independent of each other.
func (o *Orchestrator) runCrossChecks(ctx context.Context, snapshot *domain.PatientSnapshot) ([]domain.InteractionResult, []domain.LabValidation, []string) {
	var (
		wg           sync.WaitGroup
		interactions []domain.InteractionResult
		crossNote    string
		labs         []domain.LabValidation
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		interactions, crossNote = o.crossCheck.Check(ctx, snapshot.Medications)
	}()
	go func() {
		defer wg.Done()
		if !o.config.Pipeline.SkipLabValidation {
			labs = ValidateLabResults(snapshot.LabResults)
		}
	}()
	wg.Wait()

	var notes []string
	if crossNote != "" {
		notes = append(notes, crossNote)
	}
	if o.config.Pipeline.SkipLabValidation {
		notes = append(notes, "lab validation skipped by configuration")
	}
	return interactions, labs, notes
}

// assembleResult builds the persisted result from the validated response
// and cross-check outputs
func (o *Orchestrator) assembleResult(
	req *domain.DiagnosticRequest,
	snapshot *domain.PatientSnapshot,
	enhanced *domain.EnhancedResponse,
	interactions []domain.InteractionResult,
	labs []domain.LabValidation,
	notes []string,
	elapsed time.Duration,
) *domain.DiagnosticResult {
	response := enhanced.Response
	diagnoses := convertDiagnoses(response.DifferentialDiagnoses, response.ConfidenceScore)
	redFlags := convertRedFlags(response.RedFlags)
	risk := SynthesizeRisk(diagnoses, redFlags, interactions, labs, snapshot)

	return &domain.DiagnosticResult{
		ID:                    uuid.New().String(),
		RequestID:             req.ID,
		Diagnoses:             diagnoses,
		SuggestedTests:        convertTests(response.RecommendedTests),
		MedicationSuggestions: convertTherapeuticOptions(response.TherapeuticOptions),
		RedFlags:              redFlags,
		InteractionResults:    interactions,
		LabValidations:        labs,
		RiskAssessment:        risk,
		AIMetadata: domain.AIMetadata{
			ModelID:          response.Model,
			ModelVersion:     response.ModelVersion,
			PromptVersion:    req.PromptVersion,
			PromptHash:       req.PromptHash,
			PromptTokens:     response.Usage.PromptTokens,
			CompletionTokens: response.Usage.CompletionTokens,
			TotalTokens:      response.Usage.TotalTokens,
			ProcessingTimeMS: elapsed.Milliseconds(),
			ConfidenceScore:  enhanced.QualityScore,
			Attempts:         response.Attempts,
		},
		ValidationFlags:  enhanced.ValidationFlags,
		ProcessingNotes:  append(notes, enhanced.ProcessingNotes...),
		RawResponse:      response.Raw,
		Disclaimer:       response.Disclaimer,
		FollowUpRequired: followUpRequired(risk.OverallRisk, response.ReferralRecommendation),
		CreatedAt:        time.Now().UTC(),
	}
}

// failRequest records a pipeline failure on the request. AI timeouts and
// malformed responses land here too; the request stays eligible for an
// explicit retry until its budget is spent.
func (o *Orchestrator) failRequest(ctx context.Context, req *domain.DiagnosticRequest, cause error) error {
	if markErr := req.MarkFailed(cause.Error()); markErr != nil {
		return errors.Join(cause, markErr)
	}
	if updateErr := o.requests.Update(ctx, req); updateErr != nil {
		return errors.Join(cause, updateErr)
	}

	o.emitAudit(ctx, domain.AuditEntry{
		RequestID: req.ID,
		Action:    audit.ActionRequestFailed,
		Metadata: map[string]interface{}{
			"error":       cause.Error(),
			"retry_count": req.RetryCount,
			"can_retry":   req.CanRetry(o.config.Pipeline.MaxRequestRetries),
		},
	})

	o.log.WithFields(logrus.Fields{
		"request_id":  req.ID,
		"retry_count": req.RetryCount,
		"error":       cause,
	}).Warn("Diagnostic request failed")

	return cause
}

// cancelled re-reads the request and reports whether a concurrent cancel
// landed. Store errors are ignored here; the next stage surfaces them.
func (o *Orchestrator) cancelled(ctx context.Context, requestID string) bool {
	current, err := o.requests.GetByID(ctx, requestID)
	if err != nil {
		return false
	}
	if current.Status == domain.StatusCancelled {
		o.log.WithField("request_id", requestID).Info("Request cancelled, stopping pipeline")
		return true
	}
	return false
}

// emitAudit records an audit entry, never failing the pipeline
func (o *Orchestrator) emitAudit(ctx context.Context, entry domain.AuditEntry) {
	if o.audit == nil {
		return
	}
	if err := o.audit.Record(ctx, entry); err != nil {
		o.log.WithFields(logrus.Fields{
			"request_id": entry.RequestID,
			"action":     entry.Action,
			"error":      err,
		}).Warn("Audit emission failed")
	}
}
