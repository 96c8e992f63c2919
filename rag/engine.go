package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/astreus-ai/astreus-go/embedding"
	"github.com/astreus-ai/astreus-go/types"
)

// RAGConfig configures the retrieval engine.
type RAGConfig struct {
	// TableName names the backing document table when a relational
	// store is used. Default "rag_documents".
	TableName string `yaml:"table_name" json:"table_name"`

	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`

	// MaxDocuments caps the corpus size. 0 means unlimited.
	MaxDocuments int `yaml:"max_documents" json:"max_documents"`

	// MaxResultsPerQuery is the default search limit.
	MaxResultsPerQuery int `yaml:"max_results_per_query" json:"max_results_per_query"`

	// IngestBatchSize is how many chunks share one embedding call.
	// Partial ingestion failure granularity follows this size.
	IngestBatchSize int `yaml:"ingest_batch_size" json:"ingest_batch_size"`

	// IngestConcurrency bounds concurrent embedding calls during
	// ingestion.
	IngestConcurrency int `yaml:"ingest_concurrency" json:"ingest_concurrency"`

	// EmbeddingDimension overrides the provider-reported dimension for
	// the vector index. Zero uses the provider's.
	EmbeddingDimension int `yaml:"embedding_dimension" json:"embedding_dimension"`
}

// DefaultRAGConfig returns the production defaults.
func DefaultRAGConfig() RAGConfig {
	return RAGConfig{
		TableName:          "rag_documents",
		ChunkSize:          1000,
		ChunkOverlap:       200,
		MaxResultsPerQuery: 5,
		IngestBatchSize:    16,
		IngestConcurrency:  4,
	}
}

// Validate checks construction-time parameters.
func (c RAGConfig) Validate() error {
	if err := (ChunkingConfig{ChunkSize: c.ChunkSize, ChunkOverlap: c.ChunkOverlap}).Validate(); err != nil {
		return err
	}
	if c.MaxResultsPerQuery <= 0 {
		return types.NewErrorf(types.ErrConfiguration,
			"max results per query must be positive, got %d", c.MaxResultsPerQuery)
	}
	if c.MaxDocuments < 0 {
		return types.NewErrorf(types.ErrConfiguration,
			"max documents must not be negative, got %d", c.MaxDocuments)
	}
	if c.EmbeddingDimension < 0 {
		return types.NewErrorf(types.ErrConfiguration,
			"embedding dimension must not be negative, got %d", c.EmbeddingDimension)
	}
	return nil
}

// PartialIngestionError reports a document that was persisted with a
// subset of its chunks left unindexed. The document is queryable
// through its indexed chunks; Reindex retries the remainder.
type PartialIngestionError struct {
	DocumentID string
	Failed     []string
	Cause      error
}

func (e *PartialIngestionError) Error() string {
	return fmt.Sprintf("[%s] document %s: %d chunks not indexed (%s): %v",
		types.ErrPartialIngestion, e.DocumentID, len(e.Failed),
		strings.Join(e.Failed, ","), e.Cause)
}

func (e *PartialIngestionError) Unwrap() error { return e.Cause }

// SearchOptions scope a retrieval query.
type SearchOptions struct {
	// Limit caps result count; 0 uses MaxResultsPerQuery.
	Limit int

	// Threshold is the minimum normalized similarity score in [0,1].
	Threshold float64
}

// RAG composes the document store, chunker, embedding provider, and
// vector index into an ingestion pipeline and a query pipeline.
// Safe for concurrent use.
type RAG struct {
	store    DocumentStore
	chunker  *Chunker
	provider embedding.Provider
	index    VectorIndex
	config   RAGConfig
	logger   *zap.Logger
}

// New creates a retrieval engine. tokenizer may be nil.
func New(store DocumentStore, provider embedding.Provider, config RAGConfig, tokenizer Tokenizer, logger *zap.Logger) (*RAG, error) {
	if store == nil {
		return nil, types.NewError(types.ErrConfiguration, "document store is required")
	}
	if provider == nil {
		return nil, types.NewError(types.ErrConfiguration, "embedding provider is required")
	}
	if config.IngestBatchSize <= 0 {
		config.IngestBatchSize = 16
	}
	if config.IngestConcurrency <= 0 {
		config.IngestConcurrency = 4
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	chunker, err := NewChunker(ChunkingConfig{
		ChunkSize:    config.ChunkSize,
		ChunkOverlap: config.ChunkOverlap,
	}, tokenizer, logger)
	if err != nil {
		return nil, err
	}

	dim := provider.Dimensions()
	if config.EmbeddingDimension > 0 {
		dim = config.EmbeddingDimension
	}

	r := &RAG{
		store:    store,
		chunker:  chunker,
		provider: provider,
		index:    NewFlatIndex(dim, logger),
		config:   config,
		logger:   logger.With(zap.String("component", "rag")),
	}
	if err := r.hydrateIndex(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

// hydrateIndex rebuilds the vector index from embeddings the store
// already holds, so persisted documents stay searchable across
// restarts.
func (r *RAG) hydrateIndex(ctx context.Context) error {
	chunks, err := r.store.ListEmbeddedChunks(ctx)
	if err != nil {
		return err
	}
	loaded := 0
	for i := range chunks {
		if err := r.index.Upsert(ctx, chunks[i].ID, chunks[i].Embedding); err != nil {
			// Typically a dimension change between runs; the chunk
			// stays stored but out of the index.
			r.logger.Warn("skipping persisted chunk vector",
				zap.String("chunk_id", chunks[i].ID), zap.Error(err))
			continue
		}
		loaded++
	}
	if loaded > 0 {
		r.logger.Info("vector index hydrated", zap.Int("chunks", loaded))
	}
	return nil
}

// Index exposes the vector index, mainly for stats and tests.
func (r *RAG) Index() VectorIndex { return r.index }

// Ingest chunks the document, embeds the chunks in batches, persists
// document and chunks, and indexes every embedded chunk. When a subset
// of embedding batches fails the document is still persisted with the
// affected chunks marked unindexed, and a *PartialIngestionError is
// returned alongside the populated document.
func (r *RAG) Ingest(ctx context.Context, doc *types.Document) (*types.Document, error) {
	if doc == nil || doc.Content == "" {
		return nil, types.NewError(types.ErrConfiguration, "document content is required")
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	if r.config.MaxDocuments > 0 {
		count, err := r.store.CountDocuments(ctx)
		if err != nil {
			return nil, err
		}
		if count >= r.config.MaxDocuments {
			return nil, types.NewErrorf(types.ErrStorage,
				"document limit %d reached", r.config.MaxDocuments)
		}
	}

	chunks, err := r.chunker.ChunkDocument(doc)
	if err != nil {
		return nil, err
	}

	vectors, batchErrs := r.embedChunks(ctx, chunks)

	var failed []string
	var firstErr error
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
		if batchErrs[i] != nil {
			if chunks[i].Metadata == nil {
				chunks[i].Metadata = make(map[string]any, 1)
			}
			chunks[i].Metadata["indexed"] = false
			failed = append(failed, chunks[i].ID)
			if firstErr == nil {
				firstErr = batchErrs[i]
			}
		}
	}

	doc.Chunks = chunks
	if err := r.store.PutDocument(ctx, doc); err != nil {
		return nil, err
	}

	for i := range chunks {
		if vectors[i] == nil {
			continue
		}
		if err := r.index.Upsert(ctx, chunks[i].ID, vectors[i]); err != nil {
			// Dimension surprises from the provider land here; the
			// chunk stays retryable like an embedding failure.
			r.logger.Warn("chunk index upsert failed",
				zap.String("chunk_id", chunks[i].ID), zap.Error(err))
			failed = append(failed, chunks[i].ID)
			if firstErr == nil {
				firstErr = err
			}
			if markErr := r.store.MarkChunkIndexed(ctx, chunks[i].ID, false); markErr != nil {
				r.logger.Warn("mark chunk unindexed failed",
					zap.String("chunk_id", chunks[i].ID), zap.Error(markErr))
			}
		}
	}

	r.logger.Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.Int("chunks", len(chunks)),
		zap.Int("failed", len(failed)))

	if len(failed) > 0 {
		return doc, &PartialIngestionError{DocumentID: doc.ID, Failed: failed, Cause: firstErr}
	}
	return doc, nil
}

// embedChunks embeds chunk contents in bounded-concurrency batches.
// Returned slices are chunk-aligned: vectors[i] is nil exactly when
// batchErrs[i] records that chunk's batch failure.
func (r *RAG) embedChunks(ctx context.Context, chunks []types.Chunk) ([][]float32, []error) {
	vectors := make([][]float32, len(chunks))
	batchErrs := make([]error, len(chunks))

	var g errgroup.Group
	g.SetLimit(r.config.IngestConcurrency)

	for start := 0; start < len(chunks); start += r.config.IngestBatchSize {
		end := start + r.config.IngestBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		start, end := start, end

		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for i := start; i < end; i++ {
				texts = append(texts, chunks[i].Content)
			}
			batch, err := r.provider.EmbedBatch(ctx, texts)
			if err != nil {
				for i := start; i < end; i++ {
					batchErrs[i] = err
				}
				return nil
			}
			for i := start; i < end; i++ {
				vectors[i] = batch[i-start]
			}
			return nil
		})
	}
	// Goroutines record failures per batch instead of returning them,
	// so one bad batch never cancels its siblings.
	_ = g.Wait()

	return vectors, batchErrs
}

// Reindex retries embedding for the document's unindexed chunks.
// Returns how many chunks were brought into the index.
func (r *RAG) Reindex(ctx context.Context, documentID string) (int, error) {
	doc, err := r.store.GetDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}

	var pending []types.Chunk
	for _, chunk := range doc.Chunks {
		if indexed, ok := chunk.Metadata["indexed"].(bool); ok && !indexed {
			pending = append(pending, chunk)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	texts := make([]string, len(pending))
	for i, chunk := range pending {
		texts[i] = chunk.Content
	}
	vectors, err := r.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}

	reindexed := 0
	for i, chunk := range pending {
		if err := r.index.Upsert(ctx, chunk.ID, vectors[i]); err != nil {
			return reindexed, err
		}
		if err := r.store.UpdateChunkEmbedding(ctx, chunk.ID, vectors[i]); err != nil {
			return reindexed, err
		}
		if err := r.store.MarkChunkIndexed(ctx, chunk.ID, true); err != nil {
			return reindexed, err
		}
		reindexed++
	}

	r.logger.Info("document reindexed",
		zap.String("document_id", documentID),
		zap.Int("chunks", reindexed))
	return reindexed, nil
}

// Search embeds the query and returns up to limit chunks scoring at
// least threshold, each resolved back to its owning document.
func (r *RAG) Search(ctx context.Context, query string, opts SearchOptions) ([]types.SearchResult, error) {
	if query == "" {
		return nil, types.NewError(types.ErrConfiguration, "query is required")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = r.config.MaxResultsPerQuery
	}

	vector, err := r.provider.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := r.index.Query(ctx, vector, limit, opts.Threshold, nil)
	if err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(matches))
	titles := make(map[string]string, len(matches))
	for _, match := range matches {
		chunk, err := r.store.GetChunk(ctx, match.ID)
		if err != nil {
			if types.IsCode(err, types.ErrNotFound) {
				// Index/store divergence: tolerate the orphan once and
				// drop it from the index.
				r.logger.Warn("skipping orphaned index entry", zap.String("chunk_id", match.ID))
				_ = r.index.Remove(ctx, match.ID)
				continue
			}
			return nil, err
		}

		title, ok := titles[chunk.DocumentID]
		if !ok {
			parent, err := r.store.GetDocument(ctx, chunk.DocumentID)
			if err != nil {
				return nil, err
			}
			title = parent.Title
			titles[chunk.DocumentID] = title
		}

		results = append(results, types.SearchResult{
			Score:    match.Score,
			Chunk:    chunk,
			Document: &types.DocumentRef{ID: chunk.DocumentID, Title: title},
		})
	}
	return results, nil
}

// GetDocument returns a stored document with its chunks.
func (r *RAG) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	return r.store.GetDocument(ctx, id)
}

// AmendMetadata merges metadata into an ingested document. The only
// permitted mutation after ingestion.
func (r *RAG) AmendMetadata(ctx context.Context, id string, metadata map[string]any) error {
	return r.store.AmendMetadata(ctx, id, metadata)
}

// RemoveDocument deletes the document, its chunks, and their index
// entries. Deletion cascades synchronously so no removed chunk stays
// queryable.
func (r *RAG) RemoveDocument(ctx context.Context, id string) error {
	chunkIDs, err := r.store.DeleteDocument(ctx, id)
	if err != nil {
		return err
	}
	for _, chunkID := range chunkIDs {
		if err := r.index.Remove(ctx, chunkID); err != nil {
			return err
		}
	}
	return nil
}
