// Package domain contains core business entities and types for multi-agent
// medical diagnosis orchestration: requests, per-agent diagnoses, reliability
// records, confidence metrics and the consolidated diagnosis returned to callers.
//
// All probability-typed fields are constrained to [0,1]; validation methods on
// each entity enforce the constraints before data enters the pipeline.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// UrgencyLevel represents the requested clinical urgency of a diagnosis request.
// It drives agent selection boosts, emergency confidence adjustment and triage
// banding throughout the pipeline.
type UrgencyLevel string

const (
	URGENCY_LOW       UrgencyLevel = "low"
	URGENCY_MODERATE  UrgencyLevel = "moderate"
	URGENCY_HIGH      UrgencyLevel = "high"
	URGENCY_CRITICAL  UrgencyLevel = "critical"
	URGENCY_EMERGENCY UrgencyLevel = "emergency"
)

// AgentSpecialization identifies a specialized diagnostic agent. The set of
// variants is closed; values are used as map keys throughout the pipeline, so
// equality and hashing must be stable.
type AgentSpecialization string

const (
	CARDIOLOGY         AgentSpecialization = "cardiology"
	NEUROLOGY          AgentSpecialization = "neurology"
	PULMONOLOGY        AgentSpecialization = "pulmonology"
	EMERGENCY_MEDICINE AgentSpecialization = "emergency"
	PEDIATRICS         AgentSpecialization = "pediatrics"
	INFECTIOUS_DISEASE AgentSpecialization = "infectious_disease"
	PSYCHIATRY         AgentSpecialization = "psychiatry"
	ORTHOPEDICS        AgentSpecialization = "orthopedics"
	GENERAL_MEDICINE   AgentSpecialization = "general_medicine"
)

// TriageCategory represents a discrete urgency band used to prioritize
// clinical response, following the five-level triage model.
type TriageCategory string

const (
	TRIAGE_RED    TriageCategory = "RED - Immediate"
	TRIAGE_ORANGE TriageCategory = "ORANGE - Very Urgent"
	TRIAGE_YELLOW TriageCategory = "YELLOW - Urgent"
	TRIAGE_GREEN  TriageCategory = "GREEN - Standard"
	TRIAGE_BLUE   TriageCategory = "BLUE - Non-urgent"
)

// Validation errors for medical data integrity
var (
	ErrInvalidUrgency        = errors.New("invalid urgency level")
	ErrInvalidSpecialization = errors.New("invalid agent specialization")
	ErrInvalidTriageCategory = errors.New("invalid triage category")
	ErrInvalidConfidence     = errors.New("confidence score must be within [0,1]")
)

// IsValid validates that the urgency level is one of the five accepted bands.
func (u UrgencyLevel) IsValid() bool {
	switch u {
	case URGENCY_LOW, URGENCY_MODERATE, URGENCY_HIGH, URGENCY_CRITICAL, URGENCY_EMERGENCY:
		return true
	default:
		return false
	}
}

// String returns the string representation of the urgency level.
func (u UrgencyLevel) String() string {
	return string(u)
}

// IsElevated reports whether the urgency is high, critical or emergency.
// Elevated urgency activates emergency-indicator scoring during agent
// selection and the clinical confidence adjustments during aggregation.
func (u UrgencyLevel) IsElevated() bool {
	switch u {
	case URGENCY_HIGH, URGENCY_CRITICAL, URGENCY_EMERGENCY:
		return true
	default:
		return false
	}
}

// IsCritical reports whether the urgency is critical or emergency. Critical
// urgency guarantees the emergency specialization a place in the ensemble.
func (u UrgencyLevel) IsCritical() bool {
	return u == URGENCY_CRITICAL || u == URGENCY_EMERGENCY
}

// LogFields returns structured logging fields for audit trails.
func (u UrgencyLevel) LogFields() map[string]any {
	return map[string]any{
		"urgency_level": string(u),
		"is_elevated":   u.IsElevated(),
		"is_critical":   u.IsCritical(),
		"is_valid":      u.IsValid(),
	}
}

// IsValid validates the agent specialization against the closed set.
func (s AgentSpecialization) IsValid() bool {
	switch s {
	case CARDIOLOGY, NEUROLOGY, PULMONOLOGY, EMERGENCY_MEDICINE, PEDIATRICS,
		INFECTIOUS_DISEASE, PSYCHIATRY, ORTHOPEDICS, GENERAL_MEDICINE:
		return true
	default:
		return false
	}
}

// String returns the string representation of the specialization.
func (s AgentSpecialization) String() string {
	return string(s)
}

// IsValid validates the triage category.
func (t TriageCategory) IsValid() bool {
	switch t {
	case TRIAGE_RED, TRIAGE_ORANGE, TRIAGE_YELLOW, TRIAGE_GREEN, TRIAGE_BLUE:
		return true
	default:
		return false
	}
}

// String returns the string representation of the triage category.
func (t TriageCategory) String() string {
	return string(t)
}

// Severity returns the ordinal severity of the triage band, RED highest.
// Used to compare bands when the requested urgency can force a higher band
// than the computed emergency score alone.
func (t TriageCategory) Severity() int {
	switch t {
	case TRIAGE_RED:
		return 5
	case TRIAGE_ORANGE:
		return 4
	case TRIAGE_YELLOW:
		return 3
	case TRIAGE_GREEN:
		return 2
	case TRIAGE_BLUE:
		return 1
	default:
		return 0
	}
}

// DiagnosisRequest is the immutable inbound request supplied by the API layer.
type DiagnosisRequest struct {
	RequestID          string             `json:"request_id" validate:"required"`
	PatientData        map[string]any     `json:"patient_data,omitempty"`
	Symptoms           []string           `json:"symptoms"`
	VitalSigns         map[string]float64 `json:"vital_signs,omitempty"`
	MedicalHistory     []string           `json:"medical_history,omitempty"`
	UrgencyLevel       UrgencyLevel       `json:"urgency_level" validate:"required"`
	RequestingProvider string             `json:"requesting_provider"`
	Timestamp          time.Time          `json:"timestamp"`
	Context            map[string]any     `json:"context,omitempty"`
}

// Validate ensures the request meets the minimum requirements before it
// enters the diagnosis pipeline. Failures carry the offending field as a
// ValidationError so the API layer can report it.
func (r *DiagnosisRequest) Validate() error {
	if r.RequestID == "" {
		return fmt.Errorf("diagnosis request validation: %w",
			NewValidationError("request_id", "request ID is required", r.RequestID))
	}
	if !r.UrgencyLevel.IsValid() {
		return fmt.Errorf("diagnosis request validation: %w",
			NewValidationError("urgency_level", ErrInvalidUrgency.Error(), string(r.UrgencyLevel)))
	}
	if len(r.Symptoms) == 0 && len(r.MedicalHistory) == 0 {
		return fmt.Errorf("diagnosis request validation: %w",
			NewValidationError("symptoms", "at least one symptom or history item is required", r.Symptoms))
	}
	return nil
}

// PatientAge extracts the patient age from patient data if supplied.
// The second return value reports whether an age was present and numeric.
func (r *DiagnosisRequest) PatientAge() (float64, bool) {
	if r.PatientData == nil {
		return 0, false
	}
	switch v := r.PatientData["age"].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// AgentDiagnosis is the parsed output of a single specialized agent for one
// request. It is never mutated after creation except ProcessingTimeMS, which
// the invoker sets once the agent call completes.
type AgentDiagnosis struct {
	AgentSpecialization   AgentSpecialization `json:"agent_specialization"`
	PrimaryDiagnosis      string              `json:"primary_diagnosis"`
	DifferentialDiagnoses []string            `json:"differential_diagnoses,omitempty"`
	ConfidenceScore       float64             `json:"confidence_score"`
	ReasoningChain        []string            `json:"reasoning_chain,omitempty"`
	RecommendedActions    []string            `json:"recommended_actions,omitempty"`
	RiskFactors           []string            `json:"risk_factors,omitempty"`
	Contraindications     []string            `json:"contraindications,omitempty"`
	ProcessingTimeMS      float64             `json:"processing_time_ms"`
}

// Validate ensures the diagnosis data is safe to feed into aggregation.
func (d *AgentDiagnosis) Validate() error {
	if !d.AgentSpecialization.IsValid() {
		return fmt.Errorf("agent diagnosis validation: %w", ErrInvalidSpecialization)
	}
	if d.PrimaryDiagnosis == "" {
		return fmt.Errorf("agent diagnosis validation: %w", errors.New("primary diagnosis is required"))
	}
	if d.ConfidenceScore < 0 || d.ConfidenceScore > 1 {
		return fmt.Errorf("agent diagnosis validation: %w", ErrInvalidConfidence)
	}
	if d.ProcessingTimeMS < 0 {
		return fmt.Errorf("agent diagnosis validation: %w", errors.New("processing time must be non-negative"))
	}
	return nil
}

// AgentReliability is the long-lived per-specialization calibration record.
// All rate and accuracy fields are constrained to [0,1]; CaseVolume is a
// monotonic counter.
type AgentReliability struct {
	AgentSpecialization      AgentSpecialization `json:"agent_specialization"`
	HistoricalAccuracy       float64             `json:"historical_accuracy"`
	CaseVolume               int64               `json:"case_volume"`
	EmergencyAccuracy        float64             `json:"emergency_accuracy"`
	FalsePositiveRate        float64             `json:"false_positive_rate"`
	FalseNegativeRate        float64             `json:"false_negative_rate"`
	AvgConfidenceCalibration float64             `json:"avg_confidence_calibration"`
	DomainExpertiseScore     float64             `json:"domain_expertise_score"`
	LastUpdated              time.Time           `json:"last_updated"`
}

// Validate ensures every rate and accuracy field is within [0,1].
func (a *AgentReliability) Validate() error {
	for name, v := range map[string]float64{
		"historical_accuracy":        a.HistoricalAccuracy,
		"emergency_accuracy":         a.EmergencyAccuracy,
		"false_positive_rate":        a.FalsePositiveRate,
		"false_negative_rate":        a.FalseNegativeRate,
		"avg_confidence_calibration": a.AvgConfidenceCalibration,
		"domain_expertise_score":     a.DomainExpertiseScore,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("agent reliability validation: %s out of range: %f", name, v)
		}
	}
	if a.CaseVolume < 0 {
		return fmt.Errorf("agent reliability validation: %w", errors.New("case volume must be non-negative"))
	}
	return nil
}

// ConfidenceInterval is a [lower, upper] interval with both bounds in [0,1].
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// ConfidenceMetrics is the output-only value object produced once per
// aggregation call. Every probability-typed field is within [0,1].
type ConfidenceMetrics struct {
	OverallConfidence       float64            `json:"overall_confidence"`
	ConfidenceInterval      ConfidenceInterval `json:"confidence_interval"`
	UncertaintyScore        float64            `json:"uncertainty_score"`
	ReliabilityScore        float64            `json:"reliability_score"`
	ConsensusStrength       float64            `json:"consensus_strength"`
	StatisticalSignificance float64            `json:"statistical_significance"`
	BayesianPosterior       float64            `json:"bayesian_posterior"`
	BootstrapConfidence     float64            `json:"bootstrap_confidence"`
	ClinicalConfidence      float64            `json:"clinical_confidence"`
}

// UncertaintyAnalysis decomposes diagnostic uncertainty into epistemic,
// aleatoric and clinical components. Transient: produced and consumed within
// a single aggregation call.
type UncertaintyAnalysis struct {
	EpistemicUncertainty      float64  `json:"epistemic_uncertainty"`
	AleatoricUncertainty      float64  `json:"aleatoric_uncertainty"`
	ClinicalUncertainty       float64  `json:"clinical_uncertainty"`
	TotalUncertainty          float64  `json:"total_uncertainty"`
	UncertaintySources        []string `json:"uncertainty_sources,omitempty"`
	MitigationRecommendations []string `json:"mitigation_recommendations,omitempty"`
}

// ClinicalContext carries optional clinical hints used by the uncertainty
// decomposition and clinical confidence adjustment.
type ClinicalContext struct {
	IncompleteData bool     `json:"incomplete_data"`
	PatientAge     *float64 `json:"patient_age,omitempty"`
}

// ConsolidatedDiagnosis is the final result of the pipeline. It is created
// once by the consolidator and then mutated in place by the safety validator
// and downstream enrichment steps that append to ProcessingSummary.
type ConsolidatedDiagnosis struct {
	DiagnosisID           string                          `json:"diagnosis_id"`
	PrimaryDiagnosis      string                          `json:"primary_diagnosis"`
	DifferentialDiagnoses []string                        `json:"differential_diagnoses"`
	OverallConfidence     float64                         `json:"overall_confidence"`
	EmergencyScore        float64                         `json:"emergency_score"`
	TriageCategory        TriageCategory                  `json:"triage_category"`
	ImmediateActions      []string                        `json:"immediate_actions"`
	SpecialistReferrals   []string                        `json:"specialist_referrals"`
	AgentConsensus        map[AgentSpecialization]float64 `json:"agent_consensus"`
	ProcessingSummary     map[string]any                  `json:"processing_summary"`
	Timestamp             time.Time                       `json:"timestamp"`
}

// AppendSafetyWarning records an advisory safety warning in the processing
// summary. Warnings signal "needs human review", never a failed operation.
func (c *ConsolidatedDiagnosis) AppendSafetyWarning(warning string) {
	if c.ProcessingSummary == nil {
		c.ProcessingSummary = make(map[string]any)
	}
	warnings, _ := c.ProcessingSummary["safety_warnings"].([]string)
	c.ProcessingSummary["safety_warnings"] = append(warnings, warning)
}

// SafetyWarnings returns the advisory warnings recorded so far.
func (c *ConsolidatedDiagnosis) SafetyWarnings() []string {
	if c.ProcessingSummary == nil {
		return nil
	}
	warnings, _ := c.ProcessingSummary["safety_warnings"].([]string)
	return warnings
}

// LogFields returns structured logging fields for audit trails.
func (c *ConsolidatedDiagnosis) LogFields() map[string]any {
	return map[string]any{
		"diagnosis_id":       c.DiagnosisID,
		"primary_diagnosis":  c.PrimaryDiagnosis,
		"overall_confidence": c.OverallConfidence,
		"emergency_score":    c.EmergencyScore,
		"triage_category":    string(c.TriageCategory),
		"safety_warnings":    len(c.SafetyWarnings()),
	}
}
