package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medagent-orchestrator/internal/domain"
)

// defaultBatchTimeout covers the whole fan-out batch, not individual agents.
const defaultBatchTimeout = 30 * time.Second

// fallbackPrimaryDiagnosis marks a per-agent failure substituted in place.
const fallbackPrimaryDiagnosis = "Unable to complete diagnosis - system error"

// ProgressFunc receives each agent diagnosis as it is produced. Used by the
// streaming API surface; the ordered batch result stays authoritative.
type ProgressFunc func(diagnosis domain.AgentDiagnosis)

// Invoker fans out one concurrent backend call per selected agent and gathers
// the results in input order. A single crashed agent degrades to a fallback
// record; a batch-wide timeout is fatal with no partial results.
type Invoker struct {
	backend domain.AgentBackend
	prompts *PromptBuilder
	parsers *ParserRegistry
	timeout time.Duration
	log     *logrus.Logger
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithBatchTimeout overrides the global batch deadline.
func WithBatchTimeout(timeout time.Duration) InvokerOption {
	return func(i *Invoker) {
		if timeout > 0 {
			i.timeout = timeout
		}
	}
}

// NewInvoker creates an agent invoker.
func NewInvoker(backend domain.AgentBackend, prompts *PromptBuilder, parsers *ParserRegistry, logger *logrus.Logger, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		backend: backend,
		prompts: prompts,
		parsers: parsers,
		timeout: defaultBatchTimeout,
		log:     logger,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// InvokeAgents runs every selected agent concurrently under one shared
// deadline and returns the diagnoses in the same order as the input agents.
// Individual failures are replaced by low-confidence fallback records; the
// call fails only on a batch-wide timeout or when zero agents succeed.
func (inv *Invoker) InvokeAgents(ctx context.Context, request *domain.DiagnosisRequest, agents []domain.AgentSpecialization, progress ProgressFunc) ([]domain.AgentDiagnosis, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("agent invocation: %w", domain.ErrNoDiagnoses)
	}

	batchCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	type agentResult struct {
		index     int
		diagnosis domain.AgentDiagnosis
		succeeded bool
		expired   bool
	}

	results := make(chan agentResult, len(agents))
	for i, spec := range agents {
		go func(index int, spec domain.AgentSpecialization) {
			start := time.Now()
			diagnosis, succeeded := inv.invokeOne(batchCtx, request, spec)
			diagnosis.ProcessingTimeMS = float64(time.Since(start).Microseconds()) / 1000.0
			// A failure produced after the batch deadline expired is a
			// timeout, not a recoverable per-agent crash. Recorded here so
			// the collector never has to guess from its own clock.
			results <- agentResult{
				index:     index,
				diagnosis: *diagnosis,
				succeeded: succeeded,
				expired:   !succeeded && batchCtx.Err() != nil,
			}
		}(i, spec)
	}

	diagnoses := make([]domain.AgentDiagnosis, len(agents))
	succeededCount := 0
	collected := 0
	accept := func(result agentResult) bool {
		if result.expired {
			return false
		}
		diagnoses[result.index] = result.diagnosis
		if result.succeeded {
			succeededCount++
		}
		if progress != nil {
			progress(result.diagnosis)
		}
		collected++
		return true
	}

	for collected < len(agents) {
		select {
		case result := <-results:
			if !accept(result) {
				inv.log.WithField("request_id", request.RequestID).
					Error("Diagnosis batch timed out")
				return nil, fmt.Errorf("agent invocation: %w", domain.ErrBatchTimeout)
			}
		case <-batchCtx.Done():
			// Results queued before the deadline fired are still valid:
			// drain them non-blocking before declaring the batch dead.
			// Agents that never reported back are abandoned and the whole
			// request fails, with no partial results.
			for drained := true; drained && collected < len(agents); {
				select {
				case result := <-results:
					drained = accept(result)
				default:
					drained = false
				}
			}
			if collected < len(agents) {
				inv.log.WithFields(logrus.Fields{
					"request_id": request.RequestID,
					"timeout":    inv.timeout.String(),
				}).Error("Diagnosis batch timed out")
				return nil, fmt.Errorf("agent invocation: %w", domain.ErrBatchTimeout)
			}
		}
	}

	if succeededCount == 0 {
		return nil, fmt.Errorf("agent invocation: %w", domain.ErrAllAgentsFailed)
	}

	inv.log.WithFields(logrus.Fields{
		"request_id": request.RequestID,
		"agents":     len(agents),
		"succeeded":  succeededCount,
		"fallbacks":  len(agents) - succeededCount,
	}).Info("Completed agent fan-out")

	return diagnoses, nil
}

// invokeOne runs a single agent and parses its output. Backend failures
// produce a fallback diagnosis instead of an error so one crashed agent never
// aborts the batch.
func (inv *Invoker) invokeOne(ctx context.Context, request *domain.DiagnosisRequest, spec domain.AgentSpecialization) (*domain.AgentDiagnosis, bool) {
	prompt := inv.prompts.BuildPrompt(spec, request)

	raw, err := inv.backend.Invoke(ctx, spec, prompt)
	if err != nil {
		inv.log.WithError(err).WithFields(logrus.Fields{
			"request_id":     request.RequestID,
			"specialization": spec.String(),
		}).Warn("Agent call failed, substituting fallback diagnosis")
		return fallbackDiagnosis(spec, err), false
	}

	return inv.parsers.ParserFor(spec).Parse(spec, raw), true
}

// fallbackDiagnosis is the low-confidence record substituted for a single
// failed agent.
func fallbackDiagnosis(spec domain.AgentSpecialization, cause error) *domain.AgentDiagnosis {
	return &domain.AgentDiagnosis{
		AgentSpecialization: spec,
		PrimaryDiagnosis:    fallbackPrimaryDiagnosis,
		ConfidenceScore:     0.1,
		ReasoningChain: []string{
			fmt.Sprintf("The %s agent could not complete its assessment: %v", spec.String(), cause),
			"A fallback record was substituted so the remaining agents' findings can still be consolidated",
		},
		RecommendedActions: []string{"Repeat the consultation once the agent backend recovers"},
	}
}
