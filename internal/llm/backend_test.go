package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medagent-orchestrator/internal/domain"
)

func backendLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newInferenceServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestHTTPBackend_Invoke(t *testing.T) {
	var gotSpec, gotAuth string
	var gotBody inferenceRequest
	server := newInferenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/completions", r.URL.Path)
		gotSpec = r.Header.Get("X-Agent-Specialization")
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(inferenceResponse{Text: "Primary Diagnosis: Test finding\nConfidence: 0.8\n"})
	})

	backend := NewHTTPBackend(HTTPBackendConfig{
		BaseURL:   server.URL,
		APIKey:    "test-key",
		Model:     "clinical-v1",
		RateLimit: 1000,
	}, backendLogger())

	raw, err := backend.Invoke(context.Background(), domain.CARDIOLOGY, "assess chest pain")
	require.NoError(t, err)

	assert.Contains(t, raw, "Test finding")
	assert.Equal(t, "cardiology", gotSpec)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "clinical-v1", gotBody.Model)
	assert.Equal(t, "assess chest pain", gotBody.Prompt)
	assert.Equal(t, 1024, gotBody.MaxTokens, "max tokens defaults when unset")
}

func TestHTTPBackend_NoAuthHeaderWithoutAPIKey(t *testing.T) {
	var gotAuth string
	server := newInferenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(inferenceResponse{Text: "ok"})
	})

	backend := NewHTTPBackend(HTTPBackendConfig{BaseURL: server.URL, RateLimit: 1000}, backendLogger())

	_, err := backend.Invoke(context.Background(), domain.NEUROLOGY, "prompt")
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestHTTPBackend_NonOKStatus(t *testing.T) {
	server := newInferenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	backend := NewHTTPBackend(HTTPBackendConfig{BaseURL: server.URL, RateLimit: 1000}, backendLogger())

	_, err := backend.Invoke(context.Background(), domain.CARDIOLOGY, "prompt")
	assert.ErrorContains(t, err, "status 503")
}

func TestHTTPBackend_EndpointErrorField(t *testing.T) {
	server := newInferenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(inferenceResponse{Error: "model overloaded"})
	})

	backend := NewHTTPBackend(HTTPBackendConfig{BaseURL: server.URL, RateLimit: 1000}, backendLogger())

	_, err := backend.Invoke(context.Background(), domain.CARDIOLOGY, "prompt")
	assert.ErrorContains(t, err, "model overloaded")
}

func TestHTTPBackend_CircuitBreakerOpensAfterFailures(t *testing.T) {
	requests := 0
	server := newInferenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	})

	backend := NewHTTPBackend(HTTPBackendConfig{BaseURL: server.URL, RateLimit: 1000}, backendLogger())
	ctx := context.Background()

	// Trip the breaker, then confirm it fails fast without reaching the server.
	for i := 0; i < 5; i++ {
		_, err := backend.Invoke(ctx, domain.CARDIOLOGY, "prompt")
		require.Error(t, err)
	}
	served := requests

	_, err := backend.Invoke(ctx, domain.CARDIOLOGY, "prompt")
	require.Error(t, err)
	assert.Equal(t, served, requests, "open breaker short-circuits without an HTTP call")
}

func TestHTTPBackend_ContextCancelled(t *testing.T) {
	backend := NewHTTPBackend(HTTPBackendConfig{BaseURL: "http://127.0.0.1:0", RateLimit: 1000}, backendLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := backend.Invoke(ctx, domain.CARDIOLOGY, "prompt")
	assert.Error(t, err)
}
