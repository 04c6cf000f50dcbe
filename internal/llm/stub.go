package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/medagent-orchestrator/internal/domain"
)

// StubBackend returns deterministic canned responses per specialization. It
// is used in tests and as the development backend when no inference endpoint
// is configured.
type StubBackend struct {
	mu        sync.Mutex
	Latency   time.Duration
	failures  map[domain.AgentSpecialization]error
	responses map[domain.AgentSpecialization]string
	calls     []domain.AgentSpecialization
}

// NewStubBackend creates a stub with plausible per-specialization responses.
func NewStubBackend() *StubBackend {
	return &StubBackend{
		failures:  make(map[domain.AgentSpecialization]error),
		responses: make(map[domain.AgentSpecialization]string),
	}
}

// SetResponse overrides the canned response for one specialization.
func (s *StubBackend) SetResponse(spec domain.AgentSpecialization, response string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[spec] = response
}

// FailWith makes Invoke return err for the given specialization.
func (s *StubBackend) FailWith(spec domain.AgentSpecialization, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[spec] = err
}

// Calls returns the specializations invoked so far, in invocation order.
func (s *StubBackend) Calls() []domain.AgentSpecialization {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AgentSpecialization, len(s.calls))
	copy(out, s.calls)
	return out
}

// Invoke returns the canned response for spec, honoring configured latency
// and failures. The context is respected during the latency wait.
func (s *StubBackend) Invoke(ctx context.Context, spec domain.AgentSpecialization, prompt string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, spec)
	latency := s.Latency
	failure := s.failures[spec]
	response, hasResponse := s.responses[spec]
	s.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if failure != nil {
		return "", failure
	}
	if hasResponse {
		return response, nil
	}
	return defaultStubResponse(spec), nil
}

// defaultStubResponse renders a response in the same shape real models are
// prompted to produce, so the parser path is exercised end to end.
func defaultStubResponse(spec domain.AgentSpecialization) string {
	diagnosis := "General medical condition"
	confidence := 0.70
	differentials := "Viral syndrome, Medication side effect"

	switch spec {
	case domain.CARDIOLOGY:
		diagnosis = "Acute coronary syndrome"
		confidence = 0.82
		differentials = "Unstable angina, Pericarditis, Aortic dissection"
	case domain.NEUROLOGY:
		diagnosis = "Transient ischemic attack"
		confidence = 0.74
		differentials = "Migraine with aura, Seizure"
	case domain.EMERGENCY_MEDICINE:
		diagnosis = "Acute coronary syndrome"
		confidence = 0.78
		differentials = "Pulmonary embolism, Tension pneumothorax"
	case domain.PULMONOLOGY:
		diagnosis = "Community-acquired pneumonia"
		confidence = 0.76
		differentials = "Bronchitis, Pulmonary embolism"
	case domain.PEDIATRICS:
		diagnosis = "Viral bronchiolitis"
		confidence = 0.71
		differentials = "Asthma exacerbation, Pneumonia"
	case domain.ORTHOPEDICS:
		diagnosis = "Lumbar radiculopathy"
		confidence = 0.69
		differentials = "Muscular strain, Disc herniation"
	case domain.INFECTIOUS_DISEASE:
		diagnosis = "Bacterial sepsis"
		confidence = 0.72
		differentials = "Viral infection, Drug fever"
	case domain.PSYCHIATRY:
		diagnosis = "Panic disorder"
		confidence = 0.68
		differentials = "Generalized anxiety disorder, Hyperthyroidism"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Primary Diagnosis: %s\n", diagnosis)
	fmt.Fprintf(&b, "Confidence Score: %.2f\n", confidence)
	fmt.Fprintf(&b, "Differential Diagnoses: %s\n", differentials)
	b.WriteString("Reasoning:\n")
	b.WriteString("- Presentation is consistent with the leading diagnosis\n")
	b.WriteString("- Vital signs and history support the assessment\n")
	b.WriteString("Recommended Actions: Obtain diagnostic workup, Monitor vital signs, Specialist consultation\n")
	b.WriteString("Risk Factors: Age, Comorbid conditions\n")
	b.WriteString("Contraindications: None\n")
	return b.String()
}
