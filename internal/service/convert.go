package service

import (
	"strings"

	"github.com/ai-diagnostics-service/internal/domain"
)

// Conversions from the reasoning-model wire contract to the persisted
// result shapes. Wire probabilities are 0..100; the stored scale is 0..1.

func convertDiagnoses(wire []domain.ModelDiagnosis, modelConfidence float64) []domain.Diagnosis {
	diagnoses := make([]domain.Diagnosis, 0, len(wire))
	for _, d := range wire {
		severity := parseSeverity(d.Severity)
		if severity == "" {
			severity = domain.SeverityLow
		}
		diagnoses = append(diagnoses, domain.Diagnosis{
			Condition:     d.Condition,
			Probability:   clampUnit(d.Probability / 100),
			Reasoning:     d.Reasoning,
			Severity:      severity,
			Confidence:    clampUnit(modelConfidence / 100),
			EvidenceLevel: d.EvidenceLevel,
		})
	}
	return diagnoses
}

func convertTests(wire []domain.ModelTest) []domain.SuggestedTest {
	if len(wire) == 0 {
		return nil
	}
	tests := make([]domain.SuggestedTest, 0, len(wire))
	for _, t := range wire {
		priority := domain.PriorityRoutine
		if strings.EqualFold(strings.TrimSpace(t.Priority), string(domain.PriorityUrgent)) {
			priority = domain.PriorityUrgent
		}
		tests = append(tests, domain.SuggestedTest{
			Name:     t.Name,
			Priority: priority,
			Reason:   t.Reason,
		})
	}
	return tests
}

func convertTherapeuticOptions(wire []domain.ModelTherapeuticOption) []domain.MedicationSuggestion {
	if len(wire) == 0 {
		return nil
	}
	suggestions := make([]domain.MedicationSuggestion, 0, len(wire))
	for _, o := range wire {
		suggestions = append(suggestions, domain.MedicationSuggestion{
			Name:      o.Medication,
			Dosage:    o.Dosage,
			Frequency: o.Frequency,
			Duration:  o.Duration,
			Reason:    o.Reason,
		})
	}
	return suggestions
}

func convertRedFlags(wire []domain.ModelRedFlag) []domain.RedFlag {
	if len(wire) == 0 {
		return nil
	}
	flags := make([]domain.RedFlag, 0, len(wire))
	for _, rf := range wire {
		severity := parseSeverity(rf.Severity)
		if severity == "" {
			severity = domain.SeverityMedium
		}
		flags = append(flags, domain.RedFlag{
			Flag:     rf.Flag,
			Severity: severity,
			Action:   rf.Action,
		})
	}
	return flags
}

// followUpRequired derives the follow-up marker from the synthesized risk
// and the model's referral stance
func followUpRequired(risk domain.RiskLevel, referral *domain.ReferralRecommendation) bool {
	if risk == domain.RiskHigh || risk == domain.RiskCritical {
		return true
	}
	return referral != nil && referral.Recommended
}
