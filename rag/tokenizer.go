package rag

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Tokenizer counts tokens for chunk metadata.
type Tokenizer interface {
	CountTokens(text string) int
}

// TiktokenTokenizer counts tokens with a tiktoken encoding. Falls back
// to a character estimate when the encoding data cannot be loaded.
type TiktokenTokenizer struct {
	encoding string
	logger   *zap.Logger

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTiktokenTokenizer creates a tokenizer for the given encoding
// (e.g. "cl100k_base", "o200k_base"). Empty selects cl100k_base.
func NewTiktokenTokenizer(encoding string, logger *zap.Logger) *TiktokenTokenizer {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TiktokenTokenizer{
		encoding: encoding,
		logger:   logger.With(zap.String("component", "tokenizer")),
	}
}

// init lazily loads the encoding (first use may download data).
func (t *TiktokenTokenizer) init() {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			t.logger.Warn("tiktoken unavailable, falling back to estimate", zap.Error(t.initErr))
			return
		}
		t.enc = enc
	})
}

// CountTokens returns the token count, or the len/4 estimate when the
// encoding is unavailable.
func (t *TiktokenTokenizer) CountTokens(text string) int {
	t.init()
	if t.initErr != nil {
		return estimateTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// EstimatorTokenizer approximates token counts without encoding data.
type EstimatorTokenizer struct{}

func (EstimatorTokenizer) CountTokens(text string) int {
	return estimateTokens(text)
}

// estimateTokens assumes ~4 characters per token.
func estimateTokens(text string) int {
	return len(text) / 4
}
