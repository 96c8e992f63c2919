package rag

import (
	"context"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/astreus-ai/astreus-go/types"
)

// IndexMatch is one nearest-neighbor hit: an id and its normalized
// similarity score in [0,1].
type IndexMatch struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// FilterFunc restricts a query to ids it returns true for. The filter
// is applied before limit, so a scoped query still fills its limit
// from the scope alone. nil means no restriction.
type FilterFunc func(id string) bool

// VectorIndex answers nearest-neighbor queries over embeddings. All
// vectors in one index share the dimension fixed at creation (or at
// first upsert when created with dimension 0).
type VectorIndex interface {
	Upsert(ctx context.Context, id string, vector []float32) error
	Remove(ctx context.Context, id string) error
	Query(ctx context.Context, vector []float32, limit int, threshold float64, filter FilterFunc) ([]IndexMatch, error)
	Len() int
}

type flatEntry struct {
	vector []float32
	seq    uint64
}

// FlatIndex is an exact brute-force VectorIndex. Suitable for the
// target scale of hundreds to low thousands of vectors; an approximate
// index can substitute behind the same interface for larger corpora.
//
// Scores are cosine similarity normalized to [0,1] via (cosine+1)/2.
// Ties break stably by insertion order, earlier-inserted first.
type FlatIndex struct {
	mu        sync.RWMutex
	entries   map[string]flatEntry
	dimension int
	nextSeq   uint64
	logger    *zap.Logger
}

// NewFlatIndex creates an index. dimension 0 fixes the dimension at
// the first upsert instead.
func NewFlatIndex(dimension int, logger *zap.Logger) *FlatIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlatIndex{
		entries:   make(map[string]flatEntry),
		dimension: dimension,
		logger:    logger.With(zap.String("component", "vector_index")),
	}
}

// Dimension returns the fixed dimension, 0 while still unset.
func (x *FlatIndex) Dimension() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dimension
}

// Len returns the number of indexed vectors.
func (x *FlatIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Upsert stores or replaces the vector for id. Replacement keeps the
// original insertion sequence so tie-breaking stays stable.
func (x *FlatIndex) Upsert(ctx context.Context, id string, vector []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return types.NewError(types.ErrConfiguration, "id is required")
	}
	if len(vector) == 0 {
		return types.NewError(types.ErrConfiguration, "vector is required")
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.dimension == 0 {
		x.dimension = len(vector)
	} else if len(vector) != x.dimension {
		return types.NewErrorf(types.ErrDimensionMismatch,
			"vector dimension mismatch: got %d want %d", len(vector), x.dimension)
	}

	ent, exists := x.entries[id]
	seq := ent.seq
	if !exists {
		seq = x.nextSeq
		x.nextSeq++
	}
	x.entries[id] = flatEntry{
		vector: append([]float32(nil), vector...),
		seq:    seq,
	}
	return nil
}

// Remove deletes the vector for id. Removing an unknown id is a no-op.
func (x *FlatIndex) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.entries, id)
	return nil
}

// Query returns up to limit ids whose normalized similarity to vector
// is at least threshold, sorted descending by score. Reads tolerate
// concurrent upserts and removes; a query started before a write may
// miss it, but never returns a removed id.
func (x *FlatIndex) Query(ctx context.Context, vector []float32, limit int, threshold float64, filter FilterFunc) ([]IndexMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []IndexMatch{}, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.dimension > 0 && len(vector) != x.dimension {
		return nil, types.NewErrorf(types.ErrDimensionMismatch,
			"query vector dimension mismatch: got %d want %d", len(vector), x.dimension)
	}

	type scored struct {
		IndexMatch
		seq uint64
	}
	matches := make([]scored, 0, len(x.entries))
	for id, ent := range x.entries {
		if filter != nil && !filter(id) {
			continue
		}
		score := normalizeScore(cosineSimilarity(vector, ent.vector))
		if score < threshold {
			continue
		}
		matches = append(matches, scored{IndexMatch{ID: id, Score: score}, ent.seq})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].seq < matches[j].seq
	})

	if limit > len(matches) {
		limit = len(matches)
	}
	out := make([]IndexMatch, limit)
	for i := 0; i < limit; i++ {
		out[i] = matches[i].IndexMatch
	}
	return out, nil
}

// cosineSimilarity returns raw cosine in [-1,1]. Zero vectors and
// length mismatches score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// normalizeScore maps raw cosine [-1,1] to [0,1]. Clamped against
// floating-point drift so thresholds of exactly 1.0 stay reachable.
func normalizeScore(cosine float64) float64 {
	score := (cosine + 1) / 2
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}
