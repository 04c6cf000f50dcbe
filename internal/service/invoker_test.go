package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medagent-orchestrator/internal/domain"
	"github.com/medagent-orchestrator/internal/llm"
)

func newTestInvoker(backend domain.AgentBackend, opts ...InvokerOption) *Invoker {
	return NewInvoker(backend, NewPromptBuilder(), NewParserRegistry(), testLogger(), opts...)
}

func invokerRequest() *domain.DiagnosisRequest {
	return &domain.DiagnosisRequest{
		RequestID:    "req-invoker",
		Symptoms:     []string{"chest pain", "shortness of breath"},
		UrgencyLevel: domain.URGENCY_HIGH,
	}
}

func TestInvokeAgents_ResultsMatchInputOrder(t *testing.T) {
	backend := llm.NewStubBackend()
	invoker := newTestInvoker(backend)

	agents := []domain.AgentSpecialization{
		domain.PULMONOLOGY,
		domain.CARDIOLOGY,
		domain.EMERGENCY_MEDICINE,
	}

	diagnoses, err := invoker.InvokeAgents(context.Background(), invokerRequest(), agents, nil)
	require.NoError(t, err)
	require.Len(t, diagnoses, 3)
	for i, spec := range agents {
		assert.Equal(t, spec, diagnoses[i].AgentSpecialization)
		assert.NotEmpty(t, diagnoses[i].PrimaryDiagnosis)
	}
}

func TestInvokeAgents_PartialFailureSubstitutesFallback(t *testing.T) {
	backend := llm.NewStubBackend()
	backend.FailWith(domain.NEUROLOGY, errors.New("connection refused"))
	invoker := newTestInvoker(backend)

	agents := []domain.AgentSpecialization{domain.CARDIOLOGY, domain.NEUROLOGY}

	diagnoses, err := invoker.InvokeAgents(context.Background(), invokerRequest(), agents, nil)
	require.NoError(t, err, "one crashed agent must not abort the batch")
	require.Len(t, diagnoses, 2)

	assert.NotEqual(t, fallbackPrimaryDiagnosis, diagnoses[0].PrimaryDiagnosis)

	fallback := diagnoses[1]
	assert.Equal(t, domain.NEUROLOGY, fallback.AgentSpecialization)
	assert.Equal(t, fallbackPrimaryDiagnosis, fallback.PrimaryDiagnosis)
	assert.InDelta(t, 0.1, fallback.ConfidenceScore, 1e-9)
	assert.NotEmpty(t, fallback.ReasoningChain)
}

func TestInvokeAgents_AllAgentsFailed(t *testing.T) {
	backend := llm.NewStubBackend()
	backend.FailWith(domain.CARDIOLOGY, errors.New("boom"))
	backend.FailWith(domain.NEUROLOGY, errors.New("boom"))
	invoker := newTestInvoker(backend)

	agents := []domain.AgentSpecialization{domain.CARDIOLOGY, domain.NEUROLOGY}

	_, err := invoker.InvokeAgents(context.Background(), invokerRequest(), agents, nil)
	assert.ErrorIs(t, err, domain.ErrAllAgentsFailed)
}

func TestInvokeAgents_BatchTimeout(t *testing.T) {
	backend := llm.NewStubBackend()
	backend.Latency = 200 * time.Millisecond
	invoker := newTestInvoker(backend, WithBatchTimeout(20*time.Millisecond))

	agents := []domain.AgentSpecialization{domain.CARDIOLOGY, domain.NEUROLOGY}

	_, err := invoker.InvokeAgents(context.Background(), invokerRequest(), agents, nil)
	assert.ErrorIs(t, err, domain.ErrBatchTimeout)
}

func TestInvokeAgents_QueuedResultsSurviveDeadline(t *testing.T) {
	// Both agents answer well within the deadline. The first progress
	// callback stalls the collector until after the deadline fires, so the
	// second result is still sitting in the queue when it does. The batch
	// must succeed on the queued result instead of reporting a timeout.
	backend := llm.NewStubBackend()
	invoker := newTestInvoker(backend, WithBatchTimeout(30*time.Millisecond))

	agents := []domain.AgentSpecialization{domain.CARDIOLOGY, domain.PULMONOLOGY}

	stalled := false
	diagnoses, err := invoker.InvokeAgents(context.Background(), invokerRequest(), agents,
		func(domain.AgentDiagnosis) {
			if !stalled {
				stalled = true
				time.Sleep(150 * time.Millisecond)
			}
		})
	require.NoError(t, err)
	require.Len(t, diagnoses, 2)
	for i, spec := range agents {
		assert.Equal(t, spec, diagnoses[i].AgentSpecialization)
		assert.NotEqual(t, fallbackPrimaryDiagnosis, diagnoses[i].PrimaryDiagnosis)
	}
}

func TestInvokeAgents_EmptyAgentList(t *testing.T) {
	invoker := newTestInvoker(llm.NewStubBackend())

	_, err := invoker.InvokeAgents(context.Background(), invokerRequest(), nil, nil)
	assert.ErrorIs(t, err, domain.ErrNoDiagnoses)
}

func TestInvokeAgents_ProgressCallback(t *testing.T) {
	backend := llm.NewStubBackend()
	invoker := newTestInvoker(backend)

	agents := []domain.AgentSpecialization{domain.CARDIOLOGY, domain.PULMONOLOGY}

	seen := make(map[domain.AgentSpecialization]bool)
	_, err := invoker.InvokeAgents(context.Background(), invokerRequest(), agents,
		func(d domain.AgentDiagnosis) { seen[d.AgentSpecialization] = true })
	require.NoError(t, err)
	assert.True(t, seen[domain.CARDIOLOGY])
	assert.True(t, seen[domain.PULMONOLOGY])
}

func TestInvokeAgents_RecordsProcessingTime(t *testing.T) {
	backend := llm.NewStubBackend()
	backend.Latency = 10 * time.Millisecond
	invoker := newTestInvoker(backend)

	diagnoses, err := invoker.InvokeAgents(context.Background(), invokerRequest(),
		[]domain.AgentSpecialization{domain.CARDIOLOGY}, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, diagnoses[0].ProcessingTimeMS, 10.0)
}
