package models

import "time"

// Severity ranks a validation finding
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Confidence buckets the overall trust in a result
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// WarningType categorizes a validation warning
type WarningType string

const (
	WarningTypeRisk       WarningType = "risk"
	WarningTypeDependency WarningType = "dependency"
	WarningTypeQuality    WarningType = "quality"
)

// ValidationError is a finding that may block wizard progression
type ValidationError struct {
	ID                string   `json:"id"`
	StepID            string   `json:"step_id,omitempty"`
	FieldPath         string   `json:"field_path,omitempty"`
	Message           string   `json:"message"`
	Severity          Severity `json:"severity"`
	BlocksProgression bool     `json:"blocks_progression"`
}

// ValidationWarning is an informational finding that never gates navigation
type ValidationWarning struct {
	ID         string      `json:"id"`
	StepID     string      `json:"step_id,omitempty"`
	FieldPath  string      `json:"field_path,omitempty"`
	Message    string      `json:"message"`
	Severity   Severity    `json:"severity"`
	Type       WarningType `json:"type"`
	CanAutoFix bool        `json:"can_auto_fix,omitempty"`
}

// ValidationSuggestion proposes a concrete fix, optionally carrying the
// value the engine would apply
type ValidationSuggestion struct {
	ID             string      `json:"id"`
	Type           string      `json:"type,omitempty"`
	Message        string      `json:"message"`
	SuggestedValue interface{} `json:"suggested_value,omitempty"`
}

// ValidationResult is the outcome of one cross-step validation run.
// Results are cached per estimate and invalidated on the next data change.
type ValidationResult struct {
	IsValid       bool                   `json:"is_valid"`
	Errors        []ValidationError      `json:"errors"`
	Warnings      []ValidationWarning    `json:"warnings"`
	Suggestions   []ValidationSuggestion `json:"suggestions"`
	BlockedSteps  []string               `json:"blocked_steps"`
	Confidence    Confidence             `json:"confidence"`
	LastValidated time.Time              `json:"last_validated"`
}
