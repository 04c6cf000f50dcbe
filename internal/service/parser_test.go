package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medagent-orchestrator/internal/domain"
)

const sampleResponse = `Primary Diagnosis: Acute coronary syndrome
Confidence Score: 0.82
Differential Diagnoses: Unstable angina, Aortic dissection, Pulmonary embolism
Recommended Actions: 12-lead ECG, Troponin series, Aspirin 325mg
Risk Factors: Hypertension, Smoking history
Contraindications: none
Reasoning:
- Chest pain radiating to left arm
- Diaphoresis and dyspnea on exertion
- Elevated risk profile
`

func TestRegexParser_FullResponse(t *testing.T) {
	parser := NewRegexParser()

	diagnosis := parser.Parse(domain.CARDIOLOGY, sampleResponse)

	assert.Equal(t, domain.CARDIOLOGY, diagnosis.AgentSpecialization)
	assert.Equal(t, "Acute coronary syndrome", diagnosis.PrimaryDiagnosis)
	assert.InDelta(t, 0.82, diagnosis.ConfidenceScore, 1e-9)
	assert.Equal(t, []string{"Unstable angina", "Aortic dissection", "Pulmonary embolism"},
		diagnosis.DifferentialDiagnoses)
	assert.Equal(t, []string{"12-lead ECG", "Troponin series", "Aspirin 325mg"},
		diagnosis.RecommendedActions)
	assert.Equal(t, []string{"Hypertension", "Smoking history"}, diagnosis.RiskFactors)
	assert.Nil(t, diagnosis.Contraindications, "a lone 'none' entry is dropped")
	require.Len(t, diagnosis.ReasoningChain, 3)
	assert.Equal(t, "Chest pain radiating to left arm", diagnosis.ReasoningChain[0])
}

func TestRegexParser_MissingPrimaryDiagnosis(t *testing.T) {
	parser := NewRegexParser()

	diagnosis := parser.Parse(domain.NEUROLOGY, "Confidence Score: 0.4\n")

	assert.Equal(t, "Undetermined - requires clinical review", diagnosis.PrimaryDiagnosis)
	assert.InDelta(t, 0.4, diagnosis.ConfidenceScore, 1e-9)
}

func TestRegexParser_MissingConfidence(t *testing.T) {
	parser := NewRegexParser()

	diagnosis := parser.Parse(domain.NEUROLOGY, "Primary Diagnosis: Migraine with aura\n")

	assert.Equal(t, "Migraine with aura", diagnosis.PrimaryDiagnosis)
	assert.InDelta(t, 0.5, diagnosis.ConfidenceScore, 1e-9)
}

func TestRegexParser_ConfidenceClamped(t *testing.T) {
	parser := NewRegexParser()

	diagnosis := parser.Parse(domain.NEUROLOGY, "Primary Diagnosis: Migraine\nConfidence: 1.8\n")
	assert.Equal(t, 1.0, diagnosis.ConfidenceScore)
}

func TestRegexParser_CaseInsensitiveLabels(t *testing.T) {
	parser := NewRegexParser()

	diagnosis := parser.Parse(domain.PULMONOLOGY,
		"PRIMARY DIAGNOSIS: Community-acquired pneumonia\nconfidence: 0.75\n")

	assert.Equal(t, "Community-acquired pneumonia", diagnosis.PrimaryDiagnosis)
	assert.InDelta(t, 0.75, diagnosis.ConfidenceScore, 1e-9)
}

func TestRegexParser_InlineReasoning(t *testing.T) {
	parser := NewRegexParser()

	diagnosis := parser.Parse(domain.PULMONOLOGY,
		"Primary Diagnosis: Asthma exacerbation\nReasoning: Wheezing with known asthma history\n")

	assert.Equal(t, []string{"Wheezing with known asthma history"}, diagnosis.ReasoningChain)
}

func TestRegexParser_ReasoningBlockEndsAtNextLabel(t *testing.T) {
	parser := NewRegexParser()

	raw := "Reasoning:\n- First observation\nRecommended Actions: Rest\n- Stray bullet after block\n"
	diagnosis := parser.Parse(domain.GENERAL_MEDICINE, raw)

	assert.Equal(t, []string{"First observation"}, diagnosis.ReasoningChain)
	assert.Equal(t, []string{"Rest"}, diagnosis.RecommendedActions)
}

func TestRegexParser_UnparseableTextStillReturnsDiagnosis(t *testing.T) {
	parser := NewRegexParser()

	diagnosis := parser.Parse(domain.GENERAL_MEDICINE, "I am unable to assess this case.")

	require.NotNil(t, diagnosis)
	assert.Equal(t, "Undetermined - requires clinical review", diagnosis.PrimaryDiagnosis)
	assert.InDelta(t, 0.5, diagnosis.ConfidenceScore, 1e-9)
	assert.Empty(t, diagnosis.DifferentialDiagnoses)
}

func TestParserRegistry_FallbackAndOverride(t *testing.T) {
	registry := NewParserRegistry()

	fallback := registry.ParserFor(domain.CARDIOLOGY)
	require.NotNil(t, fallback)

	custom := NewRegexParser()
	registry.Register(domain.NEUROLOGY, custom)
	assert.Same(t, custom, registry.ParserFor(domain.NEUROLOGY))
	assert.NotSame(t, custom, registry.ParserFor(domain.CARDIOLOGY))
}
