package service

import (
	"fmt"
	"strings"

	"github.com/ai-diagnostics-service/internal/domain"
)

// SynthesizeRisk fuses diagnoses, red flags, interaction results, and lab
// validations into one overall risk level with explanatory factors. The
// precedence chain is evaluated in order and the first match wins:
//
//  1. any critical red flag            -> critical
//  2. high-severity diagnosis, p>0.5   -> high
//  3. major or contraindicated drug    -> high
//  4. any high red flag                -> high
//  5. medium-severity diagnosis, p>0.6 -> medium
//  6. otherwise                        -> low
func SynthesizeRisk(
	diagnoses []domain.Diagnosis,
	redFlags []domain.RedFlag,
	interactions []domain.InteractionResult,
	labs []domain.LabValidation,
	snapshot *domain.PatientSnapshot,
) domain.RiskAssessment {
	return domain.RiskAssessment{
		OverallRisk:       overallRisk(diagnoses, redFlags, interactions),
		RiskFactors:       riskFactors(diagnoses, redFlags, interactions, labs),
		MitigatingFactors: mitigatingFactors(snapshot),
	}
}

func overallRisk(diagnoses []domain.Diagnosis, redFlags []domain.RedFlag, interactions []domain.InteractionResult) domain.RiskLevel {
	for _, rf := range redFlags {
		if rf.Severity == domain.SeverityCritical {
			return domain.RiskCritical
		}
	}

	for _, d := range diagnoses {
		if d.Severity == domain.SeverityHigh && d.Probability > 0.5 {
			return domain.RiskHigh
		}
	}

	for _, i := range interactions {
		if i.Severity == domain.InteractionMajor || i.Severity == domain.InteractionContraindicated {
			return domain.RiskHigh
		}
	}

	for _, rf := range redFlags {
		if rf.Severity == domain.SeverityHigh {
			return domain.RiskHigh
		}
	}

	for _, d := range diagnoses {
		if d.Severity == domain.SeverityMedium && d.Probability > 0.6 {
			return domain.RiskMedium
		}
	}

	return domain.RiskLow
}

// riskFactors explains the signals behind the computed risk
func riskFactors(diagnoses []domain.Diagnosis, redFlags []domain.RedFlag, interactions []domain.InteractionResult, labs []domain.LabValidation) []string {
	var factors []string

	for _, d := range diagnoses {
		if d.Probability > 0.5 && (d.Severity == domain.SeverityHigh || d.Severity == domain.SeverityCritical) {
			factors = append(factors, fmt.Sprintf("high-probability %s-severity diagnosis: %s (%.0f%%)", d.Severity, d.Condition, d.Probability*100))
		}
	}

	for _, rf := range redFlags {
		if rf.Severity == domain.SeverityHigh || rf.Severity == domain.SeverityCritical {
			factors = append(factors, fmt.Sprintf("%s red flag: %s", rf.Severity, rf.Flag))
		}
	}

	for _, i := range interactions {
		if i.Severity == domain.InteractionMajor || i.Severity == domain.InteractionContraindicated {
			factors = append(factors, fmt.Sprintf("%s drug interaction: %s", i.Severity, i.DrugPair))
		}
	}

	for _, l := range labs {
		if l.Interpretation == domain.LabCritical || l.Interpretation == domain.LabAbnormal {
			factors = append(factors, fmt.Sprintf("%s lab value: %s", l.Interpretation, l.TestName))
		}
	}

	return factors
}

// mitigatingFactors come from lifestyle and history signals, independent of
// the risk precedence chain
func mitigatingFactors(snapshot *domain.PatientSnapshot) []string {
	if snapshot == nil {
		return nil
	}

	var factors []string

	for _, h := range snapshot.MedicalHistory {
		entry := strings.ToLower(h)
		if strings.Contains(entry, "non-smoker") || strings.Contains(entry, "never smoked") {
			factors = append(factors, "non-smoker")
		}
		if strings.Contains(entry, "exercise") || strings.Contains(entry, "physically active") {
			factors = append(factors, "regular physical activity")
		}
	}

	if strings.EqualFold(snapshot.Symptoms.Severity, "mild") {
		factors = append(factors, "mild symptom severity")
	}

	return factors
}
