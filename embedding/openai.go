package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/astreus-ai/astreus-go/types"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "text-embedding-3-small"

	// text-embedding-3-small default output size.
	defaultOpenAIDimensions = 1536
)

// OpenAIProvider talks to the OpenAI embeddings API (or any
// API-compatible endpoint via BaseURL).
type OpenAIProvider struct {
	*BaseProvider
	dimensions int
}

// NewOpenAIProvider creates an OpenAI-compatible embedding provider.
// The API key falls back to OPENAI_API_KEY when unset.
func NewOpenAIProvider(cfg BaseConfig) *OpenAIProvider {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = defaultOpenAIDimensions
	}
	return &OpenAIProvider{
		BaseProvider: NewBaseProvider(cfg),
		dimensions:   dimensions,
	}
}

// Dimensions returns the configured output dimension.
func (p *OpenAIProvider) Dimensions() int { return p.dimensions }

type openAIEmbeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed generates the vector for one text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.embedRequest(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates vectors for all texts in input order, splitting
// into provider-sized sub-batches.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.maxBatch {
		end := start + p.maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := p.embedRequest(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (p *OpenAIProvider) embedRequest(ctx context.Context, input []string) ([][]float32, error) {
	req := openAIEmbeddingRequest{Model: p.model, Input: input}
	// Only newer models accept an explicit dimensions parameter. Leave
	// it out when running at the model default.
	if p.dimensions != defaultOpenAIDimensions {
		req.Dimensions = p.dimensions
	}

	body, err := p.DoRequest(ctx, "/embeddings", req, nil)
	if err != nil {
		return nil, err
	}

	var resp openAIEmbeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	if len(resp.Data) != len(input) {
		return nil, types.NewErrorf(types.ErrEmbeddingProvider,
			"expected %d embeddings, got %d", len(input), len(resp.Data)).
			WithProvider(p.name)
	}

	// The API may return entries out of order; the index field is
	// authoritative.
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		if len(d.Embedding) == 0 {
			return nil, types.NewErrorf(types.ErrEmbeddingProvider,
				"empty embedding at index %d", d.Index).WithProvider(p.name)
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
