package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ai-diagnostics-service/internal/domain"
)

// InteractionClient queries the external drug-interaction knowledge service
type InteractionClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logrus.Logger
}

// NewInteractionClient creates a new drug-interaction client
func NewInteractionClient(config domain.InteractionsConfig, logger *logrus.Logger) *InteractionClient {
	rps := config.RateLimit
	if rps <= 0 {
		rps = 5
	}
	return &InteractionClient{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     logger,
	}
}

// interactionResponse is the wire shape returned by the interaction service
type interactionResponse struct {
	Interactions []struct {
		DrugA       string `json:"drug_a"`
		DrugB       string `json:"drug_b"`
		Severity    string `json:"severity"`
		Description string `json:"description"`
		Management  string `json:"management"`
	} `json:"interactions"`
}

// Check queries interactions for the given medication names. Fewer than two
// medications can never interact, so the service is not called.
func (c *InteractionClient) Check(ctx context.Context, medicationNames []string) ([]domain.InteractionResult, error) {
	names := normalizeMedicationNames(medicationNames)
	if len(names) < 2 {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/interactions?drugs=%s", c.baseURL, strings.Join(names, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create interaction request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("interaction service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("interaction service returned status %d", resp.StatusCode)
	}

	var wire interactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode interaction response: %w", err)
	}

	results := make([]domain.InteractionResult, 0, len(wire.Interactions))
	for _, i := range wire.Interactions {
		results = append(results, domain.InteractionResult{
			DrugPair:    fmt.Sprintf("%s + %s", i.DrugA, i.DrugB),
			Severity:    parseInteractionSeverity(i.Severity),
			Description: i.Description,
			Management:  i.Management,
		})
	}

	c.log.WithFields(logrus.Fields{
		"medications":  len(names),
		"interactions": len(results),
	}).Debug("Drug interaction check completed")

	return results, nil
}

// normalizeMedicationNames lowercases, trims, dedupes and sorts names so the
// same medication set always produces the same query and cache key
func normalizeMedicationNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	normalized := make([]string, 0, len(names))
	for _, name := range names {
		n := strings.ToLower(strings.TrimSpace(name))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		normalized = append(normalized, n)
	}
	sort.Strings(normalized)
	return normalized
}

// parseInteractionSeverity maps service severity strings, defaulting unknown
// values to the most cautious reading
func parseInteractionSeverity(s string) domain.InteractionSeverity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minor", "mild":
		return domain.InteractionMinor
	case "moderate":
		return domain.InteractionModerate
	case "major", "severe":
		return domain.InteractionMajor
	case "contraindicated":
		return domain.InteractionContraindicated
	default:
		return domain.InteractionModerate
	}
}
