package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-diagnostics-service/internal/audit"
	"github.com/ai-diagnostics-service/internal/domain"
)

// In-memory fakes implementing the pipeline's collaborator interfaces.

type fakeRequestStore struct {
	mu       sync.Mutex
	requests map[string]*domain.DiagnosticRequest
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{requests: map[string]*domain.DiagnosticRequest{}}
}

func (s *fakeRequestStore) Create(ctx context.Context, req *domain.DiagnosticRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.requests {
		if existing.PatientID == req.PatientID && existing.WorkplaceID == req.WorkplaceID && existing.IsActive() {
			return domain.ErrActiveRequestExists
		}
	}
	clone := *req
	s.requests[req.ID] = &clone
	return nil
}

func (s *fakeRequestStore) GetByID(ctx context.Context, id string) (*domain.DiagnosticRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *req
	return &clone, nil
}

func (s *fakeRequestStore) Update(ctx context.Context, req *domain.DiagnosticRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.ID]; !ok {
		return domain.ErrNotFound
	}
	clone := *req
	s.requests[req.ID] = &clone
	return nil
}

func (s *fakeRequestStore) FindActive(ctx context.Context, patientID, workplaceID string) (*domain.DiagnosticRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, req := range s.requests {
		if req.PatientID == patientID && req.WorkplaceID == workplaceID && req.IsActive() {
			clone := *req
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

type fakeResultStore struct {
	mu      sync.Mutex
	results map[string]*domain.DiagnosticResult
	creates int
}

func newFakeResultStore() *fakeResultStore {
	return &fakeResultStore{results: map[string]*domain.DiagnosticResult{}}
}

func (s *fakeResultStore) Create(ctx context.Context, res *domain.DiagnosticResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	s.results[res.RequestID] = res
	return nil
}

func (s *fakeResultStore) GetByRequestID(ctx context.Context, requestID string) (*domain.DiagnosticResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.results[requestID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return res, nil
}

type fakePatientSource struct {
	record *domain.PatientRecord
	err    error
}

func (s *fakePatientSource) GetPatient(ctx context.Context, patientID string) (*domain.PatientRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.record, nil
}

type fakeLabSource struct {
	results []domain.LabResult
	err     error
}

func (s *fakeLabSource) GetLabResults(ctx context.Context, patientID string, ids []string) ([]domain.LabResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

type fakeReasoningModel struct {
	response *domain.RawModelResponse
	err      error
	calls    int
}

func (m *fakeReasoningModel) Invoke(ctx context.Context, input *domain.StructuredInput, opts domain.InvokeOptions) (*domain.RawModelResponse, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

type fakeInteractionChecker struct {
	results []domain.InteractionResult
	err     error
}

func (c *fakeInteractionChecker) Check(ctx context.Context, names []string) ([]domain.InteractionResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.results, nil
}

type capturingAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (a *capturingAudit) Record(ctx context.Context, entry domain.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *capturingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	actions := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		actions = append(actions, e.Action)
	}
	return actions
}

type pipelineHarness struct {
	orchestrator *Orchestrator
	requests     *fakeRequestStore
	results      *fakeResultStore
	model        *fakeReasoningModel
	audit        *capturingAudit
	patients     *fakePatientSource
	labs         *fakeLabSource
	checker      *fakeInteractionChecker
}

func newHarness(t *testing.T) *pipelineHarness {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	dob := time.Date(1970, 3, 15, 0, 0, 0, 0, time.UTC)
	h := &pipelineHarness{
		requests: newFakeRequestStore(),
		results:  newFakeResultStore(),
		model:    &fakeReasoningModel{response: wireResponse(1)},
		audit:    &capturingAudit{},
		patients: &fakePatientSource{record: &domain.PatientRecord{ID: "patient-1", DateOfBirth: &dob, Gender: "male"}},
		labs:     &fakeLabSource{},
		checker:  &fakeInteractionChecker{},
	}

	cfg := &domain.Config{
		Reasoning: domain.ReasoningConfig{
			Timeout:     time.Second,
			MaxAttempts: 3,
			BackoffBase: time.Millisecond,
			BackoffCap:  time.Millisecond,
		},
		Pipeline: domain.PipelineConfig{
			PromptVersion:     "v1",
			MaxRequestRetries: 3,
		},
	}

	h.orchestrator = NewOrchestrator(
		NewConsentGate(false, logger),
		NewPatientDataAggregator(h.patients, h.labs, logger),
		h.model,
		NewInteractionCrossChecker(h.checker, false, logger),
		h.requests,
		h.results,
		h.audit,
		cfg,
		logger,
	)
	// Synchronous processing keeps assertions deterministic
	h.orchestrator.SetDispatch(func(requestID string) {
		_ = h.orchestrator.Process(context.Background(), requestID)
	})
	return h
}

func wireResponse(attempts int) *domain.RawModelResponse {
	return &domain.RawModelResponse{
		DifferentialDiagnoses: []domain.ModelDiagnosis{
			{Condition: "Acute bronchitis", Probability: 70, Severity: "medium"},
		},
		ConfidenceScore: 80,
		Model:           "clinical-reasoner-1",
		Usage:           domain.TokenUsage{PromptTokens: 800, CompletionTokens: 200, TotalTokens: 1000},
		Raw:             `{"ok":true}`,
		Attempts:        attempts,
	}
}

func submitParams() SubmitParams {
	now := time.Now().UTC()
	return SubmitParams{
		PatientID:        "patient-1",
		PharmacistID:     "pharmacist-1",
		WorkplaceID:      "pharmacy-1",
		ConsentObtained:  true,
		ConsentTimestamp: &now,
		Snapshot: domain.InputSnapshot{
			Symptoms: domain.SymptomReport{Subjective: []string{"cough"}, Severity: "moderate"},
			Medications: []domain.MedicationEntry{
				{Name: "warfarin"}, {Name: "aspirin"},
			},
		},
	}
}

func TestSubmit_WithoutConsentFailsAndPersistsNothing(t *testing.T) {
	h := newHarness(t)
	params := submitParams()
	params.ConsentObtained = false
	params.ConsentTimestamp = nil

	_, err := h.orchestrator.Submit(context.Background(), params)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConsentMissing)
	assert.Empty(t, h.requests.requests)
	assert.Empty(t, h.audit.entries)
}

func TestSubmit_CompletesPipelineAndPersistsResultOnce(t *testing.T) {
	h := newHarness(t)

	req, err := h.orchestrator.Submit(context.Background(), submitParams())
	require.NoError(t, err)

	stored, err := h.requests.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.NotEmpty(t, stored.PromptHash)
	assert.NotNil(t, stored.CompletedAt)

	result, err := h.results.GetByRequestID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, h.results.creates)
	require.Len(t, result.Diagnoses, 1)
	assert.InDelta(t, 0.70, result.Diagnoses[0].Probability, 0.001)
	assert.Equal(t, stored.PromptHash, result.AIMetadata.PromptHash)

	assert.Equal(t, []string{
		audit.ActionRequestSubmitted,
		audit.ActionProcessingStarted,
		audit.ActionModelInvoked,
		audit.ActionRequestCompleted,
	}, h.audit.actions())
}

func TestSubmit_TransientModelFailuresReflectedInRetryCount(t *testing.T) {
	h := newHarness(t)
	h.model.response = wireResponse(3)

	req, err := h.orchestrator.Submit(context.Background(), submitParams())
	require.NoError(t, err)

	stored, err := h.requests.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.RetryCount)
	assert.Equal(t, 1, h.results.creates)
}

func TestProcess_MalformedResponseFailsRequestEligibleForRetry(t *testing.T) {
	h := newHarness(t)
	h.model.response = &domain.RawModelResponse{ConfidenceScore: 90, Attempts: 1}

	req, err := h.orchestrator.Submit(context.Background(), submitParams())
	require.NoError(t, err)

	stored, err := h.requests.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Contains(t, stored.ErrorMessage, "differential diagnoses")
	assert.True(t, stored.CanRetry(3))
	assert.Equal(t, 0, h.results.creates)
}

func TestProcess_InteractionServiceDownStillCompletes(t *testing.T) {
	h := newHarness(t)
	h.checker.err = errors.New("connection refused")

	req, err := h.orchestrator.Submit(context.Background(), submitParams())
	require.NoError(t, err)

	stored, err := h.requests.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)

	result, err := h.results.GetByRequestID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Empty(t, result.InteractionResults)
	assert.Contains(t, result.ProcessingNotes, "interaction check unavailable; results omitted")
}

func TestProcess_MajorInteractionRaisesRisk(t *testing.T) {
	h := newHarness(t)
	h.checker.results = []domain.InteractionResult{
		{DrugPair: "warfarin + aspirin", Severity: domain.InteractionMajor},
	}

	req, err := h.orchestrator.Submit(context.Background(), submitParams())
	require.NoError(t, err)

	result, err := h.results.GetByRequestID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, result.RiskAssessment.OverallRisk)
	assert.True(t, result.FollowUpRequired)
}

func TestSubmit_SecondActiveRequestRefused(t *testing.T) {
	h := newHarness(t)
	// Leave the first request parked in pending
	h.orchestrator.SetDispatch(func(string) {})

	first, err := h.orchestrator.Submit(context.Background(), submitParams())
	require.NoError(t, err)

	_, err = h.orchestrator.Submit(context.Background(), submitParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrActiveRequestExists)

	stored, err := h.requests.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestSubmit_PatientNotFoundFailsRequest(t *testing.T) {
	h := newHarness(t)
	h.patients.err = domain.ErrPatientNotFound

	req, err := h.orchestrator.Submit(context.Background(), submitParams())
	require.NoError(t, err)

	stored, err := h.requests.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Equal(t, 0, h.model.calls)
}

func TestRetry_FailedRequestRunsAgain(t *testing.T) {
	h := newHarness(t)
	h.model.err = domain.NewAIError(503, "unavailable", true, nil)

	req, err := h.orchestrator.Submit(context.Background(), submitParams())
	require.NoError(t, err)

	stored, _ := h.requests.GetByID(context.Background(), req.ID)
	require.Equal(t, domain.StatusFailed, stored.Status)

	h.model.err = nil
	_, err = h.orchestrator.Retry(context.Background(), req.ID)
	require.NoError(t, err)

	stored, _ = h.requests.GetByID(context.Background(), req.ID)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.Contains(t, h.audit.actions(), audit.ActionRequestRetried)
}

func TestRetry_ExhaustedBudgetRefused(t *testing.T) {
	h := newHarness(t)
	h.model.err = domain.NewAIError(503, "unavailable", true, nil)

	req, err := h.orchestrator.Submit(context.Background(), submitParams())
	require.NoError(t, err)

	// Burn the remaining budget
	for i := 0; i < 2; i++ {
		_, err = h.orchestrator.Retry(context.Background(), req.ID)
		require.NoError(t, err)
	}

	stored, _ := h.requests.GetByID(context.Background(), req.ID)
	require.Equal(t, 3, stored.RetryCount)
	assert.True(t, stored.IsTerminal(3))

	_, err = h.orchestrator.Retry(context.Background(), req.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRetryExhausted)
}

func TestRetry_NonFailedRequestRefused(t *testing.T) {
	h := newHarness(t)

	req, err := h.orchestrator.Submit(context.Background(), submitParams())
	require.NoError(t, err)

	_, err = h.orchestrator.Retry(context.Background(), req.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRequestTerminal)
}

func TestCancel_PendingRequest(t *testing.T) {
	h := newHarness(t)
	h.orchestrator.SetDispatch(func(string) {})

	req, err := h.orchestrator.Submit(context.Background(), submitParams())
	require.NoError(t, err)

	cancelled, err := h.orchestrator.Cancel(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	// A later processing attempt must not resurrect the request
	err = h.orchestrator.Process(context.Background(), req.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancel_CompletedRequestRefused(t *testing.T) {
	h := newHarness(t)

	req, err := h.orchestrator.Submit(context.Background(), submitParams())
	require.NoError(t, err)

	_, err = h.orchestrator.Cancel(context.Background(), req.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestGetResult_UnknownRequest(t *testing.T) {
	h := newHarness(t)
	_, err := h.orchestrator.GetResult(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
