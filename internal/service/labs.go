package service

import (
	"fmt"
	"strings"

	"github.com/ai-diagnostics-service/internal/domain"
)

// criticalThreshold defines test-specific panic values. A value outside
// these bounds is critical regardless of the reported reference range.
type criticalThreshold struct {
	low  float64
	high float64
}

// Keyed by lowercase test code or name fragment. Values are conventional
// panic thresholds in the unit each test is customarily reported in.
var criticalThresholds = map[string]criticalThreshold{
	"glucose":    {low: 40, high: 400},
	"potassium":  {low: 2.5, high: 6.5},
	"sodium":     {low: 120, high: 160},
	"calcium":    {low: 6.0, high: 13.0},
	"hemoglobin": {low: 5.0, high: 20.0},
	"platelets":  {low: 20, high: 1000},
	"wbc":        {low: 1.0, high: 50.0},
	"creatinine": {low: 0, high: 7.5},
	"inr":        {low: 0, high: 5.0},
}

// ValidateLabResults interprets each lab value. Interpretation never fails;
// values that cannot be read numerically are flagged abnormal for manual
// review.
func ValidateLabResults(results []domain.LabResult) []domain.LabValidation {
	if len(results) == 0 {
		return nil
	}
	validations := make([]domain.LabValidation, 0, len(results))
	for _, r := range results {
		validations = append(validations, ValidateLabResult(r))
	}
	return validations
}

// ValidateLabResult classifies one lab value against test-specific critical
// thresholds first, then the reported reference range
func ValidateLabResult(result domain.LabResult) domain.LabValidation {
	v := domain.LabValidation{
		TestName:       result.TestName,
		Interpretation: domain.LabNormal,
	}

	if result.NumericValue == nil {
		v.Interpretation = domain.LabAbnormal
		v.Flags = append(v.Flags, "value is not numeric")
		v.Recommendations = "Review result manually; automated interpretation unavailable."
		return v
	}
	value := *result.NumericValue

	if t, ok := lookupCriticalThreshold(result); ok {
		if value < t.low || value > t.high {
			v.Interpretation = domain.LabCritical
			v.Flags = append(v.Flags, fmt.Sprintf("critical value %.2f %s", value, result.Unit))
			v.Recommendations = fmt.Sprintf("Critical %s value. Immediate clinical review required.", result.TestName)
			return v
		}
	}

	rr := result.ReferenceRange
	switch {
	case rr.Low != nil && value < *rr.Low:
		v.Interpretation = domain.LabLow
		v.Flags = append(v.Flags, fmt.Sprintf("below reference range (%.2f < %.2f)", value, *rr.Low))
		v.Recommendations = fmt.Sprintf("Low %s. Correlate clinically and consider repeat testing.", result.TestName)
	case rr.High != nil && value > *rr.High:
		v.Interpretation = domain.LabHigh
		v.Flags = append(v.Flags, fmt.Sprintf("above reference range (%.2f > %.2f)", value, *rr.High))
		v.Recommendations = fmt.Sprintf("Elevated %s. Correlate clinically and consider repeat testing.", result.TestName)
	case rr.Low == nil && rr.High == nil:
		// No usable range and no critical rule matched
		v.Interpretation = domain.LabNormal
	}

	return v
}

// lookupCriticalThreshold matches the test code first, then falls back to a
// substring match on the test name
func lookupCriticalThreshold(result domain.LabResult) (criticalThreshold, bool) {
	if code := strings.ToLower(strings.TrimSpace(result.TestCode)); code != "" {
		if t, ok := criticalThresholds[code]; ok {
			return t, true
		}
	}
	name := strings.ToLower(result.TestName)
	for key, t := range criticalThresholds {
		if strings.Contains(name, key) {
			return t, true
		}
	}
	return criticalThreshold{}, false
}
