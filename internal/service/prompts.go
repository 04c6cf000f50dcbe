package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/medagent-orchestrator/internal/domain"
)

// specializationPersonas frames each agent's prompt with its clinical role.
var specializationPersonas = map[domain.AgentSpecialization]string{
	domain.CARDIOLOGY:         "a board-certified cardiologist",
	domain.NEUROLOGY:          "a board-certified neurologist",
	domain.PULMONOLOGY:        "a board-certified pulmonologist",
	domain.EMERGENCY_MEDICINE: "an emergency medicine physician",
	domain.PEDIATRICS:         "a board-certified pediatrician",
	domain.INFECTIOUS_DISEASE: "an infectious disease specialist",
	domain.PSYCHIATRY:         "a board-certified psychiatrist",
	domain.ORTHOPEDICS:        "an orthopedic surgeon",
	domain.GENERAL_MEDICINE:   "an internal medicine physician",
}

// PromptBuilder constructs specialization-specific diagnostic prompts. The
// output format section matches what the response parsers extract, so prompt
// and parser changes stay paired.
type PromptBuilder struct{}

// NewPromptBuilder creates a prompt builder.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildPrompt renders the diagnostic prompt for one specialization.
func (b *PromptBuilder) BuildPrompt(spec domain.AgentSpecialization, request *domain.DiagnosisRequest) string {
	persona, ok := specializationPersonas[spec]
	if !ok {
		persona = specializationPersonas[domain.GENERAL_MEDICINE]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s evaluating a patient case.\n\n", persona)

	fmt.Fprintf(&sb, "Urgency level: %s\n", request.UrgencyLevel.String())

	if len(request.Symptoms) > 0 {
		sb.WriteString("Presenting symptoms:\n")
		for _, symptom := range request.Symptoms {
			fmt.Fprintf(&sb, "- %s\n", symptom)
		}
	}

	if len(request.VitalSigns) > 0 {
		sb.WriteString("Vital signs:\n")
		names := make([]string, 0, len(request.VitalSigns))
		for name := range request.VitalSigns {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&sb, "- %s: %.1f\n", name, request.VitalSigns[name])
		}
	}

	if len(request.MedicalHistory) > 0 {
		sb.WriteString("Medical history:\n")
		for _, item := range request.MedicalHistory {
			fmt.Fprintf(&sb, "- %s\n", item)
		}
	}

	sb.WriteString(`
Provide your assessment in exactly this format:
Primary Diagnosis: <single most likely diagnosis>
Confidence Score: <0.0 to 1.0>
Differential Diagnoses: <comma-separated alternatives>
Reasoning: <one step per line, prefixed with "- ">
Recommended Actions: <comma-separated immediate actions>
Risk Factors: <comma-separated risk factors>
Contraindications: <comma-separated contraindications>
`)

	return sb.String()
}
