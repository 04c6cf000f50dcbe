package service

import (
	"github.com/sirupsen/logrus"

	"github.com/medagent-orchestrator/internal/domain"
)

// SafetyValidator applies post-hoc safety checks to the consolidated
// diagnosis. It can force-elevate urgency and records advisory warnings;
// it never fails the pipeline.
type SafetyValidator struct {
	log *logrus.Logger
}

// NewSafetyValidator creates a safety validator.
func NewSafetyValidator(logger *logrus.Logger) *SafetyValidator {
	return &SafetyValidator{log: logger}
}

// Validate mutates and returns the same diagnosis. A critical condition with
// an understated emergency score is escalated to RED; an emergency score that
// outruns the confidence is flagged for human review.
func (v *SafetyValidator) Validate(diagnosis *domain.ConsolidatedDiagnosis, request *domain.DiagnosisRequest) *domain.ConsolidatedDiagnosis {
	if domain.MatchesCriticalCondition(diagnosis.PrimaryDiagnosis) && diagnosis.EmergencyScore < 0.8 {
		diagnosis.EmergencyScore = 0.9
		diagnosis.TriageCategory = domain.TRIAGE_RED
		diagnosis.AppendSafetyWarning(
			"Critical condition detected with understated emergency score; escalated to RED - Immediate")

		v.log.WithFields(logrus.Fields{
			"request_id":   request.RequestID,
			"diagnosis_id": diagnosis.DiagnosisID,
			"primary":      diagnosis.PrimaryDiagnosis,
		}).Warn("Safety escalation: critical condition force-elevated")
	}

	if diagnosis.EmergencyScore > 0.7 && diagnosis.OverallConfidence < 0.5 {
		diagnosis.AppendSafetyWarning(
			"High emergency score with low diagnostic confidence; human review recommended")

		v.log.WithFields(logrus.Fields{
			"request_id":         request.RequestID,
			"diagnosis_id":       diagnosis.DiagnosisID,
			"emergency_score":    diagnosis.EmergencyScore,
			"overall_confidence": diagnosis.OverallConfidence,
		}).Warn("Safety inconsistency: emergency score outruns confidence")
	}

	return diagnosis
}
