package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medagent-orchestrator/internal/domain"
)

func TestStubBackend_DefaultResponsesParseable(t *testing.T) {
	stub := NewStubBackend()
	ctx := context.Background()

	for _, spec := range domain.SpecializationOrder {
		raw, err := stub.Invoke(ctx, spec, "prompt")
		require.NoError(t, err, spec)
		lower := strings.ToLower(raw)
		assert.Contains(t, lower, "primary diagnosis:", spec)
		assert.Contains(t, lower, "confidence", spec)
	}
}

func TestStubBackend_SetResponseOverridesDefault(t *testing.T) {
	stub := NewStubBackend()
	stub.SetResponse(domain.CARDIOLOGY, "Primary Diagnosis: Custom finding\nConfidence: 0.99\n")

	raw, err := stub.Invoke(context.Background(), domain.CARDIOLOGY, "prompt")
	require.NoError(t, err)
	assert.Contains(t, raw, "Custom finding")
}

func TestStubBackend_FailWith(t *testing.T) {
	stub := NewStubBackend()
	boom := errors.New("model unavailable")
	stub.FailWith(domain.NEUROLOGY, boom)

	_, err := stub.Invoke(context.Background(), domain.NEUROLOGY, "prompt")
	assert.ErrorIs(t, err, boom)

	// Other specializations are unaffected.
	_, err = stub.Invoke(context.Background(), domain.CARDIOLOGY, "prompt")
	assert.NoError(t, err)
}

func TestStubBackend_RecordsCallsInOrder(t *testing.T) {
	stub := NewStubBackend()
	ctx := context.Background()

	_, _ = stub.Invoke(ctx, domain.CARDIOLOGY, "p")
	_, _ = stub.Invoke(ctx, domain.NEUROLOGY, "p")
	_, _ = stub.Invoke(ctx, domain.CARDIOLOGY, "p")

	assert.Equal(t, []domain.AgentSpecialization{
		domain.CARDIOLOGY, domain.NEUROLOGY, domain.CARDIOLOGY,
	}, stub.Calls())
}

func TestStubBackend_ContextCancelledDuringLatency(t *testing.T) {
	stub := NewStubBackend()
	stub.Latency = 5 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := stub.Invoke(ctx, domain.CARDIOLOGY, "prompt")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second, "cancellation must not wait out the full latency")
}
