package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/astreus-ai/astreus-go/types"
)

// BaseConfig holds configuration common to HTTP-backed providers.
type BaseConfig struct {
	Name       string
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	MaxBatch   int
	Timeout    time.Duration

	// RequestsPerSecond caps outbound calls client-side. 0 disables
	// limiting.
	RequestsPerSecond float64
}

// BaseProvider provides shared functionality for HTTP-backed embedding
// providers: JSON transport, rate limiting, and error mapping.
type BaseProvider struct {
	name     string
	client   *http.Client
	baseURL  string
	apiKey   string
	model    string
	maxBatch int
	limiter  *rate.Limiter
}

// NewBaseProvider creates the shared HTTP layer.
func NewBaseProvider(cfg BaseConfig) *BaseProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxBatch := cfg.MaxBatch
	if maxBatch == 0 {
		maxBatch = 100
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &BaseProvider{
		name:     cfg.Name,
		client:   &http.Client{Timeout: timeout},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		maxBatch: maxBatch,
		limiter:  limiter,
	}
}

func (p *BaseProvider) Name() string      { return p.name }
func (p *BaseProvider) Model() string     { return p.model }
func (p *BaseProvider) MaxBatchSize() int { return p.maxBatch }

// DoRequest executes a JSON POST with rate limiting and common error
// handling. Context cancellation propagates as the call error.
func (p *BaseProvider) DoRequest(ctx context.Context, endpoint string, body any, headers map[string]string) ([]byte, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrEmbeddingProvider, "request failed").
			WithCause(err).
			WithRetryable(true).
			WithProvider(p.name)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, string(respBody), p.name)
	}
	return respBody, nil
}

// mapHTTPError maps an HTTP status to the engine error taxonomy.
// 429 and 5xx are retryable.
func mapHTTPError(status int, msg, provider string) *types.Error {
	retryable := status >= 500 || status == http.StatusTooManyRequests
	return types.NewErrorf(types.ErrEmbeddingProvider, "upstream status %d: %s", status, msg).
		WithRetryable(retryable).
		WithProvider(provider)
}
