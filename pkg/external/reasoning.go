package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ai-diagnostics-service/internal/domain"
)

// ReasoningClient invokes the external diagnostic reasoning model.
// Retryable failures loop under bounded exponential backoff; the whole
// invocation additionally races a hard wall-clock timeout, and a late
// response after the timeout is discarded, never applied.
type ReasoningClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logrus.Logger
}

// NewReasoningClient creates a new reasoning-model client
func NewReasoningClient(config domain.ReasoningConfig, logger *logrus.Logger) *ReasoningClient {
	rps := config.RateLimit
	if rps <= 0 {
		rps = 1
	}
	return &ReasoningClient{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		model:   config.Model,
		httpClient: &http.Client{
			// Per-attempt ceiling; the invocation-level budget comes from
			// InvokeOptions.Timeout.
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     logger,
	}
}

// diagnoseRequest is the wire payload sent to the reasoning-model service
type diagnoseRequest struct {
	Model       string                  `json:"model"`
	Temperature float64                 `json:"temperature"`
	MaxTokens   int                     `json:"max_tokens"`
	Input       *domain.StructuredInput `json:"input"`
}

// invokeOutcome carries one finished retry loop across the timeout race
type invokeOutcome struct {
	response *domain.RawModelResponse
	err      error
}

// Invoke calls the reasoning model under retry and timeout discipline
func (c *ReasoningClient) Invoke(ctx context.Context, input *domain.StructuredInput, opts domain.InvokeOptions) (*domain.RawModelResponse, error) {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 30 * time.Second
	}

	invokeCtx := ctx
	cancel := context.CancelFunc(func() {})
	if opts.Timeout > 0 {
		invokeCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}
	defer cancel()

	// Buffered so the retry loop can finish after the deadline without
	// leaking; the late outcome is simply never read.
	outcomes := make(chan invokeOutcome, 1)
	go func() {
		outcomes <- c.runAttempts(invokeCtx, input, opts)
	}()

	select {
	case outcome := <-outcomes:
		if outcome.err != nil && invokeCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w after %s", domain.ErrAITimeout, opts.Timeout)
		}
		return outcome.response, outcome.err
	case <-invokeCtx.Done():
		if invokeCtx.Err() == context.DeadlineExceeded {
			c.log.WithFields(logrus.Fields{
				"prompt_version": input.PromptVersion,
				"timeout":        opts.Timeout,
			}).Warn("Reasoning model invocation exceeded hard timeout, discarding in-flight attempt")
			return nil, fmt.Errorf("%w after %s", domain.ErrAITimeout, opts.Timeout)
		}
		return nil, invokeCtx.Err()
	}
}

// runAttempts executes the bounded retry loop
func (c *ReasoningClient) runAttempts(ctx context.Context, input *domain.StructuredInput, opts domain.InvokeOptions) invokeOutcome {
	started := time.Now()
	var lastErr error

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return invokeOutcome{err: err}
		}

		c.log.WithFields(logrus.Fields{
			"attempt":        attempt,
			"max_attempts":   opts.MaxAttempts,
			"model":          c.model,
			"prompt_version": input.PromptVersion,
		}).Info("Sending reasoning model request")

		response, err := c.doAttempt(ctx, input, opts)
		if err == nil {
			response.Attempts = attempt
			response.InvocationTime = time.Since(started)
			c.log.WithFields(logrus.Fields{
				"attempt":          attempt,
				"model":            response.Model,
				"diagnoses":        len(response.DifferentialDiagnoses),
				"confidence_score": response.ConfidenceScore,
				"total_tokens":     response.Usage.TotalTokens,
			}).Info("Received reasoning model response")
			return invokeOutcome{response: response}
		}

		lastErr = err
		c.log.WithFields(logrus.Fields{
			"attempt":   attempt,
			"retryable": domain.IsRetryableAIError(err),
			"error":     err,
		}).Warn("Reasoning model request failed")

		if !domain.IsRetryableAIError(err) || attempt == opts.MaxAttempts {
			break
		}

		backoff := opts.BackoffBase << uint(attempt-1)
		if backoff > opts.BackoffCap {
			backoff = opts.BackoffCap
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return invokeOutcome{err: ctx.Err()}
		}
	}

	return invokeOutcome{err: lastErr}
}

// doAttempt performs one HTTP call against the reasoning-model service
func (c *ReasoningClient) doAttempt(ctx context.Context, input *domain.StructuredInput, opts domain.InvokeOptions) (*domain.RawModelResponse, error) {
	payload := diagnoseRequest{
		Model:       c.model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Input:       input,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.NewAIError(0, "encoding request payload", false, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/diagnose", bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewAIError(0, "creating request", false, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		// Network faults are transient by classification
		return nil, domain.NewAIError(0, "executing request", true, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewAIError(0, "reading response body", true, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(resp.StatusCode, string(respBody))
	}

	var modelResponse domain.RawModelResponse
	if err := json.Unmarshal(respBody, &modelResponse); err != nil {
		// The model broke its output contract; retrying the same prompt is
		// a request-level decision, not a gateway one.
		return nil, domain.NewAIError(resp.StatusCode, "unparseable response body", false, domain.ErrMalformedResponse)
	}
	modelResponse.Raw = string(respBody)

	return &modelResponse, nil
}

// classifyHTTPError maps a non-200 status to a retryable or terminal AIError
func classifyHTTPError(statusCode int, body string) *domain.AIError {
	retryable := statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusRequestTimeout ||
		statusCode >= 500

	message := fmt.Sprintf("service returned status %d", statusCode)
	if len(body) > 0 && len(body) <= 256 {
		message = fmt.Sprintf("%s: %s", message, body)
	}

	return domain.NewAIError(statusCode, message, retryable, nil)
}
