// Package llm provides the agent backend implementations: an HTTP inference
// client hardened with rate limiting and a circuit breaker, and a
// deterministic stub for tests and development. Which implementation runs is
// a dependency-injection decision made at wiring time, never an import-time
// fallback.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/medagent-orchestrator/internal/domain"
)

// HTTPBackendConfig configures the HTTP inference backend.
type HTTPBackendConfig struct {
	BaseURL   string        `json:"base_url"`
	APIKey    string        `json:"api_key"`
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Timeout   time.Duration `json:"timeout"`
	RateLimit float64       `json:"rate_limit"` // requests per second
}

// HTTPBackend calls a remote inference endpoint. One circuit breaker guards
// the endpoint; a token-bucket limiter spreads request load.
type HTTPBackend struct {
	config     HTTPBackendConfig
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	log        *logrus.Logger
}

// inferenceRequest is the wire request to the inference endpoint.
type inferenceRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// inferenceResponse is the wire response from the inference endpoint.
type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// NewHTTPBackend creates an HTTP inference backend.
func NewHTTPBackend(config HTTPBackendConfig, logger *logrus.Logger) *HTTPBackend {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1024
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "inference",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Inference circuit breaker state changed")
		},
	})

	return &HTTPBackend{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		breaker:   breaker,
		log:       logger,
	}
}

// Invoke sends the prompt to the inference endpoint and returns the raw model
// text. The specialization rides along as a routing header so multi-model
// deployments can map specializations to fine-tuned models.
func (b *HTTPBackend) Invoke(ctx context.Context, spec domain.AgentSpecialization, prompt string) (string, error) {
	if err := b.rateLimit.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait failed: %w", err)
	}

	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.doInvoke(ctx, spec, prompt)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (b *HTTPBackend) doInvoke(ctx context.Context, spec domain.AgentSpecialization, prompt string) (string, error) {
	payload, err := json.Marshal(inferenceRequest{
		Model:     b.config.Model,
		Prompt:    prompt,
		MaxTokens: b.config.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling inference request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.config.BaseURL+"/v1/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Agent-Specialization", spec.String())
	if b.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.config.APIKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading inference response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("inference endpoint returned status %d", resp.StatusCode)
	}

	var parsed inferenceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decoding inference response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("inference error: %s", parsed.Error)
	}

	return parsed.Text, nil
}
