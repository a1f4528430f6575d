package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRequest() *DiagnosticRequest {
	consentAt := time.Now().UTC()
	return NewDiagnosticRequest(NewRequestParams{
		PatientID:        "patient-1",
		PharmacistID:     "pharmacist-1",
		WorkplaceID:      "workplace-1",
		Snapshot:         InputSnapshot{Symptoms: SymptomReport{Subjective: []string{"headache"}}},
		ConsentObtained:  true,
		ConsentTimestamp: &consentAt,
		PromptVersion:    "v1",
	})
}

func TestNewDiagnosticRequest_Defaults(t *testing.T) {
	req := newTestRequest()

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, PriorityRoutine, req.Priority)
	assert.Equal(t, 0, req.RetryCount)
	assert.True(t, req.IsActive())
}

func TestDiagnosticRequest_Transitions(t *testing.T) {
	tests := []struct {
		name       string
		from       RequestStatus
		transition func(r *DiagnosticRequest) error
		wantErr    bool
		wantStatus RequestStatus
	}{
		{"pending to processing", StatusPending, (*DiagnosticRequest).MarkProcessing, false, StatusProcessing},
		{"failed to processing", StatusFailed, (*DiagnosticRequest).MarkProcessing, false, StatusProcessing},
		{"completed to processing refused", StatusCompleted, (*DiagnosticRequest).MarkProcessing, true, StatusCompleted},
		{"cancelled to processing refused", StatusCancelled, (*DiagnosticRequest).MarkProcessing, true, StatusCancelled},
		{"processing to completed", StatusProcessing, (*DiagnosticRequest).MarkCompleted, false, StatusCompleted},
		{"pending to completed refused", StatusPending, (*DiagnosticRequest).MarkCompleted, true, StatusPending},
		{"pending to cancelled", StatusPending, (*DiagnosticRequest).MarkCancelled, false, StatusCancelled},
		{"processing to cancelled", StatusProcessing, (*DiagnosticRequest).MarkCancelled, false, StatusCancelled},
		{"failed to cancelled", StatusFailed, (*DiagnosticRequest).MarkCancelled, false, StatusCancelled},
		{"completed to cancelled refused", StatusCompleted, (*DiagnosticRequest).MarkCancelled, true, StatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newTestRequest()
			req.Status = tt.from

			err := tt.transition(req)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidTransition))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantStatus, req.Status)
		})
	}
}

func TestDiagnosticRequest_MarkFailed_IncrementsRetryCount(t *testing.T) {
	req := newTestRequest()
	require.NoError(t, req.MarkProcessing())
	require.NoError(t, req.MarkFailed("model unavailable"))

	assert.Equal(t, StatusFailed, req.Status)
	assert.Equal(t, 1, req.RetryCount)
	assert.Equal(t, "model unavailable", req.ErrorMessage)

	// retrying clears the previous error
	require.NoError(t, req.MarkProcessing())
	assert.Empty(t, req.ErrorMessage)
}

func TestDiagnosticRequest_RetryBudget(t *testing.T) {
	const maxRetries = 3

	req := newTestRequest()
	for i := 0; i < maxRetries; i++ {
		require.NoError(t, req.MarkProcessing())
		require.NoError(t, req.MarkFailed("transient failure"))
	}

	assert.Equal(t, maxRetries, req.RetryCount)
	assert.False(t, req.CanRetry(maxRetries))
	assert.True(t, req.IsTerminal(maxRetries))

	// one failure short of the cap is still retryable
	fresh := newTestRequest()
	require.NoError(t, fresh.MarkProcessing())
	require.NoError(t, fresh.MarkFailed("transient failure"))
	assert.True(t, fresh.CanRetry(maxRetries))
	assert.False(t, fresh.IsTerminal(maxRetries))
}

func TestDiagnosticRequest_RecordAIAttempts(t *testing.T) {
	req := newTestRequest()
	require.NoError(t, req.MarkProcessing())

	// succeeded on the third attempt: two prior transient failures
	req.RecordAIAttempts(3)
	assert.Equal(t, 2, req.RetryCount)

	// a first-attempt success adds nothing
	req.RecordAIAttempts(1)
	assert.Equal(t, 2, req.RetryCount)
}

func TestDiagnosticRequest_TerminalStates(t *testing.T) {
	req := newTestRequest()
	require.NoError(t, req.MarkProcessing())
	require.NoError(t, req.MarkCompleted())

	assert.True(t, req.IsTerminal(3))
	assert.False(t, req.IsActive())
	assert.NotNil(t, req.CompletedAt)

	cancelled := newTestRequest()
	require.NoError(t, cancelled.MarkCancelled())
	assert.True(t, cancelled.IsTerminal(3))
}
