package domain

import (
	"time"
)

// Core Enums and Types

// RequestStatus represents the lifecycle state of a diagnostic request
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusProcessing RequestStatus = "processing"
	StatusCompleted  RequestStatus = "completed"
	StatusFailed     RequestStatus = "failed"
	StatusCancelled  RequestStatus = "cancelled"
)

// Priority represents how urgently a diagnostic request should be handled
type Priority string

const (
	PriorityRoutine Priority = "routine"
	PriorityUrgent  Priority = "urgent"
)

// Severity represents the clinical severity of a diagnosis or red flag
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RiskLevel represents the synthesized overall risk of a diagnostic result
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// InteractionSeverity represents the severity of a drug-drug interaction
type InteractionSeverity string

const (
	InteractionMinor           InteractionSeverity = "minor"
	InteractionModerate        InteractionSeverity = "moderate"
	InteractionMajor           InteractionSeverity = "major"
	InteractionContraindicated InteractionSeverity = "contraindicated"
)

// LabInterpretation classifies a lab value against its reference range
type LabInterpretation string

const (
	LabLow      LabInterpretation = "low"
	LabNormal   LabInterpretation = "normal"
	LabHigh     LabInterpretation = "high"
	LabCritical LabInterpretation = "critical"
	LabAbnormal LabInterpretation = "abnormal"
)

// Input Models

// SymptomReport captures the presenting symptoms for a diagnostic request
type SymptomReport struct {
	Subjective []string `json:"subjective"`
	Objective  []string `json:"objective,omitempty"`
	Duration   string   `json:"duration,omitempty"`
	Severity   string   `json:"severity,omitempty"` // mild, moderate, severe
	Onset      string   `json:"onset,omitempty"`    // acute, subacute, chronic
}

// VitalSigns captures point-in-time vitals; absent measurements are nil
type VitalSigns struct {
	BloodPressure    string   `json:"blood_pressure,omitempty"`
	HeartRate        *int     `json:"heart_rate,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	RespiratoryRate  *int     `json:"respiratory_rate,omitempty"`
	OxygenSaturation *float64 `json:"oxygen_saturation,omitempty"`
	BloodGlucose     *float64 `json:"blood_glucose,omitempty"`
}

// MedicationEntry represents one current medication of the patient
type MedicationEntry struct {
	Name       string `json:"name"`
	Dosage     string `json:"dosage,omitempty"`
	Frequency  string `json:"frequency,omitempty"`
	Route      string `json:"route,omitempty"`
	Indication string `json:"indication,omitempty"`
}

// ReferenceRange is the expected interval for a lab value
type ReferenceRange struct {
	Low  *float64 `json:"low,omitempty"`
	High *float64 `json:"high,omitempty"`
	Text string   `json:"text,omitempty"`
}

// LabResult represents one resolved laboratory result
type LabResult struct {
	ID             string         `json:"id"`
	TestCode       string         `json:"test_code,omitempty"`
	TestName       string         `json:"test_name"`
	Value          string         `json:"value"`
	NumericValue   *float64       `json:"numeric_value,omitempty"`
	Unit           string         `json:"unit,omitempty"`
	ReferenceRange ReferenceRange `json:"reference_range"`
	PerformedAt    time.Time      `json:"performed_at,omitempty"`
}

// InputSnapshot is the clinical input captured at request creation time
type InputSnapshot struct {
	Symptoms       SymptomReport     `json:"symptoms"`
	Vitals         *VitalSigns       `json:"vitals,omitempty"`
	Medications    []MedicationEntry `json:"medications,omitempty"`
	Allergies      []string          `json:"allergies,omitempty"`
	MedicalHistory []string          `json:"medical_history,omitempty"`
	LabResultIDs   []string          `json:"lab_result_ids,omitempty"`
}

// Demographics holds the patient attributes the reasoning model needs
type Demographics struct {
	Age         int      `json:"age"`
	Gender      string   `json:"gender,omitempty"`
	WeightKG    *float64 `json:"weight_kg,omitempty"`
	DateOfBirth string   `json:"date_of_birth,omitempty"`
}

// PatientSnapshot is the immutable aggregated clinical picture for one
// request. It is assembled once by the aggregator and never mutated
// afterwards.
type PatientSnapshot struct {
	PatientID      string            `json:"patient_id"`
	Demographics   Demographics      `json:"demographics"`
	Symptoms       SymptomReport     `json:"symptoms"`
	Vitals         *VitalSigns       `json:"vitals,omitempty"`
	Medications    []MedicationEntry `json:"medications,omitempty"`
	Allergies      []string          `json:"allergies,omitempty"`
	MedicalHistory []string          `json:"medical_history,omitempty"`
	LabResults     []LabResult       `json:"lab_results,omitempty"`
}

// Request Model

// DiagnosticRequest tracks one diagnostic run from submission to terminal state
type DiagnosticRequest struct {
	ID               string        `json:"id"`
	PatientID        string        `json:"patient_id"`
	PharmacistID     string        `json:"pharmacist_id"`
	WorkplaceID      string        `json:"workplace_id"`
	Snapshot         InputSnapshot `json:"snapshot"`
	Priority         Priority      `json:"priority"`
	ConsentObtained  bool          `json:"consent_obtained"`
	ConsentTimestamp *time.Time    `json:"consent_timestamp,omitempty"`
	PromptVersion    string        `json:"prompt_version,omitempty"`
	PromptHash       string        `json:"prompt_hash,omitempty"`
	Status           RequestStatus `json:"status"`
	RetryCount       int           `json:"retry_count"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}

// Result Models

// Diagnosis is one differential diagnosis in a result
type Diagnosis struct {
	Condition     string   `json:"condition"`
	Probability   float64  `json:"probability"` // 0..1
	Reasoning     string   `json:"reasoning,omitempty"`
	Severity      Severity `json:"severity"`
	Confidence    float64  `json:"confidence,omitempty"`
	EvidenceLevel string   `json:"evidence_level,omitempty"`
}

// SuggestedTest is a recommended follow-up investigation
type SuggestedTest struct {
	Name     string   `json:"name"`
	Priority Priority `json:"priority,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// MedicationSuggestion is a therapeutic option proposed by the model
type MedicationSuggestion struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	Duration  string `json:"duration,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// RedFlag is a discrete high-attention clinical signal with its own action
type RedFlag struct {
	Flag     string   `json:"flag"`
	Severity Severity `json:"severity"`
	Action   string   `json:"action,omitempty"`
}

// RiskAssessment is the fused risk picture of one result
type RiskAssessment struct {
	OverallRisk       RiskLevel `json:"overall_risk"`
	RiskFactors       []string  `json:"risk_factors,omitempty"`
	MitigatingFactors []string  `json:"mitigating_factors,omitempty"`
}

// AIMetadata records provenance of the model invocation behind a result
type AIMetadata struct {
	ModelID          string  `json:"model_id"`
	ModelVersion     string  `json:"model_version,omitempty"`
	PromptVersion    string  `json:"prompt_version"`
	PromptHash       string  `json:"prompt_hash"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	ProcessingTimeMS int64   `json:"processing_time_ms"`
	ConfidenceScore  float64 `json:"confidence_score"` // 0..1, quality-adjusted
	Attempts         int     `json:"attempts"`
}

// DiagnosticResult is the synthesized outcome of a completed request.
// Created exactly once per completed request and immutable afterwards.
type DiagnosticResult struct {
	ID                    string                 `json:"id"`
	RequestID             string                 `json:"request_id"`
	Diagnoses             []Diagnosis            `json:"diagnoses"`
	SuggestedTests        []SuggestedTest        `json:"suggested_tests,omitempty"`
	MedicationSuggestions []MedicationSuggestion `json:"medication_suggestions,omitempty"`
	RedFlags              []RedFlag              `json:"red_flags,omitempty"`
	InteractionResults    []InteractionResult    `json:"interaction_results,omitempty"`
	LabValidations        []LabValidation        `json:"lab_validations,omitempty"`
	RiskAssessment        RiskAssessment         `json:"risk_assessment"`
	AIMetadata            AIMetadata             `json:"ai_metadata"`
	ValidationFlags       []string               `json:"validation_flags,omitempty"`
	ProcessingNotes       []string               `json:"processing_notes,omitempty"`
	RawResponse           string                 `json:"raw_response,omitempty"`
	Disclaimer            string                 `json:"disclaimer,omitempty"`
	FollowUpRequired      bool                   `json:"follow_up_required"`
	CreatedAt             time.Time              `json:"created_at"`
}

// Cross-Check Models

// InteractionResult is one drug-drug interaction reported by the
// interaction service
type InteractionResult struct {
	DrugPair    string              `json:"drug_pair"`
	Severity    InteractionSeverity `json:"severity"`
	Description string              `json:"description,omitempty"`
	Management  string              `json:"management,omitempty"`
}

// LabValidation is the interpretation of one lab value
type LabValidation struct {
	TestName        string            `json:"test_name"`
	Interpretation  LabInterpretation `json:"interpretation"`
	Flags           []string          `json:"flags,omitempty"`
	Recommendations string            `json:"recommendations,omitempty"`
}

// Reasoning-Model Wire Contract

// TokenUsage is the token accounting reported by the reasoning model
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ModelDiagnosis is a differential diagnosis as reported on the wire.
// Probability is a percentage (0..100) in the model contract.
type ModelDiagnosis struct {
	Condition     string  `json:"condition"`
	Probability   float64 `json:"probability"`
	Reasoning     string  `json:"reasoning,omitempty"`
	Severity      string  `json:"severity,omitempty"`
	EvidenceLevel string  `json:"evidence_level,omitempty"`
}

// ModelTest is a recommended test as reported on the wire
type ModelTest struct {
	Name     string `json:"name"`
	Priority string `json:"priority,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// ModelTherapeuticOption is a therapeutic option as reported on the wire
type ModelTherapeuticOption struct {
	Medication string `json:"medication"`
	Dosage     string `json:"dosage,omitempty"`
	Frequency  string `json:"frequency,omitempty"`
	Duration   string `json:"duration,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// ModelRedFlag is a red flag as reported on the wire
type ModelRedFlag struct {
	Flag     string `json:"flag"`
	Severity string `json:"severity"`
	Action   string `json:"action,omitempty"`
}

// ReferralRecommendation is the optional referral section of a model response
type ReferralRecommendation struct {
	Recommended bool   `json:"recommended"`
	Urgency     string `json:"urgency,omitempty"`
	Specialty   string `json:"specialty,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// RawModelResponse is the parsed JSON body returned by the reasoning model
type RawModelResponse struct {
	DifferentialDiagnoses  []ModelDiagnosis         `json:"differential_diagnoses"`
	RecommendedTests       []ModelTest              `json:"recommended_tests,omitempty"`
	TherapeuticOptions     []ModelTherapeuticOption `json:"therapeutic_options,omitempty"`
	RedFlags               []ModelRedFlag           `json:"red_flags,omitempty"`
	ReferralRecommendation *ReferralRecommendation  `json:"referral_recommendation,omitempty"`
	Disclaimer             string                   `json:"disclaimer,omitempty"`
	ConfidenceScore        float64                  `json:"confidence_score"` // 0..100
	Usage                  TokenUsage               `json:"usage"`
	Model                  string                   `json:"model,omitempty"`
	ModelVersion           string                   `json:"model_version,omitempty"`
	Raw                    string                   `json:"-"`
	Attempts               int                      `json:"-"`
	InvocationTime         time.Duration            `json:"-"`
}

// EnhancedResponse is a structurally validated model response plus the
// derived quality assessment
type EnhancedResponse struct {
	Response        *RawModelResponse `json:"response"`
	QualityScore    float64           `json:"quality_score"` // 0..1
	ValidationFlags []string          `json:"validation_flags,omitempty"`
	ProcessingNotes []string          `json:"processing_notes,omitempty"`
}

// StructuredInput is the deterministic prompt payload sent to the reasoning
// model. Field order is fixed; identical snapshots and prompt versions
// serialize to identical bytes.
type StructuredInput struct {
	PromptVersion string          `json:"prompt_version"`
	Task          string          `json:"task"`
	Patient       PatientSnapshot `json:"patient"`
	Instructions  []string        `json:"instructions,omitempty"`
}

// Collaborator Records

// PatientRecord is the patient master record as served by the external
// patient store
type PatientRecord struct {
	ID          string     `json:"id"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Age         *int       `json:"age,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	WeightKG    *float64   `json:"weight_kg,omitempty"`
}

// AuditEntry is one append-only activity log record. Every state transition
// and every reasoning-model attempt emits one.
type AuditEntry struct {
	RequestID string                 `json:"request_id"`
	ResultID  string                 `json:"result_id,omitempty"`
	Action    string                 `json:"action"`
	ActorID   string                 `json:"actor_id,omitempty"`
	RiskLevel string                 `json:"risk_level,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
