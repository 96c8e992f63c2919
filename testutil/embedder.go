// Copyright 2025-2026 Astreus Authors. All rights reserved.
// Use of this source code is governed by the project license.

// Package testutil provides deterministic test doubles shared across
// the engine's test suites.
package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"

	"github.com/astreus-ai/astreus-go/types"
)

// HashEmbedder is a deterministic, identity-like embedding provider:
// equal texts always produce equal unit vectors, and texts sharing
// tokens score high cosine similarity. Good enough to exercise every
// retrieval path without a real model.
type HashEmbedder struct {
	Dim int
}

// NewHashEmbedder creates an embedder with the given dimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 16
	}
	return &HashEmbedder{Dim: dim}
}

func (e *HashEmbedder) Name() string    { return "hash" }
func (e *HashEmbedder) Dimensions() int { return e.Dim }

// Embed hashes lowercased tokens into buckets and normalizes the
// result to unit length.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, e.Dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%e.Dim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// Empty text still gets a valid fixed direction.
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// FlakyEmbedder fails every call once FailAfter successful calls have
// been served. Used to drive partial-ingestion paths.
type FlakyEmbedder struct {
	Inner     *HashEmbedder
	FailAfter int32

	calls int32
}

// NewFlakyEmbedder wraps a HashEmbedder that starts failing after n
// successful calls.
func NewFlakyEmbedder(dim int, n int) *FlakyEmbedder {
	return &FlakyEmbedder{Inner: NewHashEmbedder(dim), FailAfter: int32(n)}
}

func (e *FlakyEmbedder) Name() string    { return "flaky" }
func (e *FlakyEmbedder) Dimensions() int { return e.Inner.Dim }

func (e *FlakyEmbedder) fail() error {
	if atomic.AddInt32(&e.calls, 1) > e.FailAfter {
		return types.NewError(types.ErrEmbeddingProvider, "simulated provider outage").
			WithRetryable(true).
			WithProvider("flaky")
	}
	return nil
}

// Recover stops the failure injection.
func (e *FlakyEmbedder) Recover() {
	atomic.StoreInt32(&e.calls, math.MinInt32/2)
}

func (e *FlakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.fail(); err != nil {
		return nil, err
	}
	return e.Inner.Embed(ctx, text)
}

func (e *FlakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.fail(); err != nil {
		return nil, err
	}
	return e.Inner.EmbedBatch(ctx, texts)
}
