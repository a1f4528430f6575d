package service

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/ai-diagnostics-service/internal/domain"
)

// promptInstructions is the fixed instruction set sent with every prompt.
// Changing it requires bumping the prompt version so stored hashes stay
// comparable.
var promptInstructions = []string{
	"Produce a ranked differential diagnosis list with per-condition probability (0-100).",
	"List recommended confirmatory tests and therapeutic options.",
	"Flag any red-flag findings with severity and recommended action.",
	"Recommend specialist referral when the presentation warrants it.",
	"State an overall confidence score (0-100) for the assessment.",
}

// BuildPrompt deterministically serializes a snapshot into the structured
// model payload and computes its content hash. Identical snapshot and
// version always produce identical output; the hash is stored for audit
// and reproducibility, never as a substitute for comparing payloads.
func BuildPrompt(snapshot *domain.PatientSnapshot, version string) (*domain.StructuredInput, string, error) {
	input := &domain.StructuredInput{
		PromptVersion: version,
		Task:          "differential_diagnosis",
		Patient:       *snapshot,
		Instructions:  promptInstructions,
	}

	canonical, err := json.Marshal(input)
	if err != nil {
		return nil, "", fmt.Errorf("serializing prompt input: %w", err)
	}

	digest := sha256.Sum256(canonical)
	return input, fmt.Sprintf("%x", digest), nil
}
