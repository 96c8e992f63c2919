package rag

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/astreus-ai/astreus-go/types"
)

// ChunkingConfig configures the fixed-size overlapping window chunker.
type ChunkingConfig struct {
	// ChunkSize is the window length in characters (runes).
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`

	// ChunkOverlap is how many characters consecutive windows share.
	// Must be strictly smaller than ChunkSize.
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
}

// DefaultChunkingConfig returns the production defaults.
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

// Validate checks the chunking bounds. Invalid bounds are fatal at
// construction time.
func (c ChunkingConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return types.NewErrorf(types.ErrConfiguration, "chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap <= 0 {
		return types.NewErrorf(types.ErrConfiguration, "chunk overlap must be positive, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return types.NewErrorf(types.ErrConfiguration,
			"chunk overlap %d must be smaller than chunk size %d", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// SplitText produces contiguous overlapping windows over text.
// Windows advance by ChunkSize-ChunkOverlap runes per step; the final
// window may be shorter and is always emitted. Deterministic: same
// inputs, same sequence.
func SplitText(text string, cfg ChunkingConfig) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := cfg.ChunkSize - cfg.ChunkOverlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := start + cfg.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

// Chunker splits documents into retrieval units. An optional tokenizer
// stamps token counts into chunk metadata.
type Chunker struct {
	config    ChunkingConfig
	tokenizer Tokenizer
	logger    *zap.Logger
}

// NewChunker creates a chunker. tokenizer may be nil.
func NewChunker(config ChunkingConfig, tokenizer Tokenizer, logger *zap.Logger) (*Chunker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chunker{
		config:    config,
		tokenizer: tokenizer,
		logger:    logger.With(zap.String("component", "chunker")),
	}, nil
}

// Config returns the chunking configuration in effect.
func (c *Chunker) Config() ChunkingConfig { return c.config }

// ChunkDocument splits the document content into chunks carrying a
// non-owning back-reference to the document and positional metadata.
func (c *Chunker) ChunkDocument(doc *types.Document) ([]types.Chunk, error) {
	if doc == nil || doc.ID == "" {
		return nil, types.NewError(types.ErrConfiguration, "document with id is required")
	}

	parts, err := SplitText(doc.Content, c.config)
	if err != nil {
		return nil, err
	}

	chunks := make([]types.Chunk, 0, len(parts))
	for i, content := range parts {
		metadata := map[string]any{
			"position": i,
		}
		if c.tokenizer != nil {
			metadata["token_count"] = c.tokenizer.CountTokens(content)
		}
		chunks = append(chunks, types.Chunk{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			Content:    content,
			Metadata:   metadata,
		})
	}

	c.logger.Debug("document chunked",
		zap.String("document_id", doc.ID),
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", c.config.ChunkSize),
		zap.Int("overlap", c.config.ChunkOverlap))

	return chunks, nil
}
