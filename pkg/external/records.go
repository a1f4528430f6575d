package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ai-diagnostics-service/internal/domain"
)

// RecordsClient resolves patient master records and referenced lab results
// from the clinical-records service
type RecordsClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logrus.Logger
}

// NewRecordsClient creates a new clinical-records client
func NewRecordsClient(config domain.RecordsConfig, logger *logrus.Logger) *RecordsClient {
	rps := config.RateLimit
	if rps <= 0 {
		rps = 10
	}
	return &RecordsClient{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     logger,
	}
}

// GetPatient fetches the patient master record. A 404 maps to
// ErrPatientNotFound, which the pipeline treats as fatal.
func (c *RecordsClient) GetPatient(ctx context.Context, patientID string) (*domain.PatientRecord, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/patients/%s", c.baseURL, url.PathEscape(patientID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create patient request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("patient lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("patient %s: %w", patientID, domain.ErrPatientNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("records service returned status %d for patient lookup", resp.StatusCode)
	}

	var record domain.PatientRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode patient record: %w", err)
	}

	return &record, nil
}

// GetLabResults resolves referenced lab result ids into full records.
// Unknown ids are silently absent from the response; the aggregator treats
// missing labs as soft.
func (c *RecordsClient) GetLabResults(ctx context.Context, patientID string, ids []string) ([]domain.LabResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/patients/%s/lab-results?ids=%s",
		c.baseURL, url.PathEscape(patientID), url.QueryEscape(strings.Join(ids, ",")))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create lab results request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lab results lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("records service returned status %d for lab results lookup", resp.StatusCode)
	}

	var wire struct {
		Results []domain.LabResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode lab results: %w", err)
	}

	if len(wire.Results) < len(ids) {
		c.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"requested":  len(ids),
			"resolved":   len(wire.Results),
		}).Debug("Some referenced lab results could not be resolved")
	}

	return wire.Results, nil
}

func (c *RecordsClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
