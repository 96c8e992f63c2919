package rag

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/astreus-ai/astreus-go/types"
)

// DocumentStore persists documents and their chunks, keyed by document
// identity. Documents are immutable once ingested except for metadata
// amendment; chunks are destroyed only with their owning document.
type DocumentStore interface {
	// PutDocument persists a document together with its chunks.
	PutDocument(ctx context.Context, doc *types.Document) error

	// GetDocument returns the document with chunks in chunking order.
	GetDocument(ctx context.Context, id string) (*types.Document, error)

	// GetChunk resolves a chunk by id.
	GetChunk(ctx context.Context, id string) (*types.Chunk, error)

	// DeleteDocument removes the document and returns the ids of its
	// chunks so callers can cascade index removal.
	DeleteDocument(ctx context.Context, id string) ([]string, error)

	// AmendMetadata merges metadata into an existing document.
	AmendMetadata(ctx context.Context, id string, metadata map[string]any) error

	// MarkChunkIndexed records whether a chunk's embedding made it into
	// the vector index.
	MarkChunkIndexed(ctx context.Context, chunkID string, indexed bool) error

	// UpdateChunkEmbedding stores a chunk's vector after the fact.
	// Used when reindexing recovers an embedding that failed at
	// ingestion time.
	UpdateChunkEmbedding(ctx context.Context, chunkID string, vector []float32) error

	// ListEmbeddedChunks returns every stored chunk that carries an
	// embedding, in no particular order. Used to rebuild the vector
	// index from persisted vectors at startup.
	ListEmbeddedChunks(ctx context.Context) ([]types.Chunk, error)

	// CountDocuments returns the number of stored documents.
	CountDocuments(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}

type chunkRef struct {
	documentID string
	position   int
}

// InMemoryDocumentStore is a DocumentStore for local development,
// testing, and small deployments. Safe for concurrent use.
type InMemoryDocumentStore struct {
	mu     sync.RWMutex
	docs   map[string]*types.Document
	chunks map[string]chunkRef
	logger *zap.Logger
}

// NewInMemoryDocumentStore creates an empty in-memory store.
func NewInMemoryDocumentStore(logger *zap.Logger) *InMemoryDocumentStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryDocumentStore{
		docs:   make(map[string]*types.Document),
		chunks: make(map[string]chunkRef),
		logger: logger.With(zap.String("component", "document_store_inmemory")),
	}
}

func (s *InMemoryDocumentStore) PutDocument(ctx context.Context, doc *types.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc == nil || doc.ID == "" {
		return types.NewError(types.ErrConfiguration, "document with id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[doc.ID]; exists {
		return types.NewErrorf(types.ErrStorage, "document %s already exists", doc.ID)
	}

	stored := cloneDocument(doc)
	s.docs[doc.ID] = stored
	for i := range stored.Chunks {
		s.chunks[stored.Chunks[i].ID] = chunkRef{documentID: doc.ID, position: i}
	}

	s.logger.Debug("document stored",
		zap.String("document_id", doc.ID),
		zap.Int("chunks", len(stored.Chunks)))
	return nil
}

func (s *InMemoryDocumentStore) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, types.NewErrorf(types.ErrNotFound, "document %s not found", id)
	}
	return cloneDocument(doc), nil
}

func (s *InMemoryDocumentStore) GetChunk(ctx context.Context, id string) (*types.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.chunks[id]
	if !ok {
		return nil, types.NewErrorf(types.ErrNotFound, "chunk %s not found", id)
	}
	chunk := cloneChunk(&s.docs[ref.documentID].Chunks[ref.position])
	return chunk, nil
}

func (s *InMemoryDocumentStore) DeleteDocument(ctx context.Context, id string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, types.NewErrorf(types.ErrNotFound, "document %s not found", id)
	}

	removed := make([]string, 0, len(doc.Chunks))
	for i := range doc.Chunks {
		removed = append(removed, doc.Chunks[i].ID)
		delete(s.chunks, doc.Chunks[i].ID)
	}
	delete(s.docs, id)

	s.logger.Debug("document deleted",
		zap.String("document_id", id),
		zap.Int("chunks", len(removed)))
	return removed, nil
}

func (s *InMemoryDocumentStore) AmendMetadata(ctx context.Context, id string, metadata map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return types.NewErrorf(types.ErrNotFound, "document %s not found", id)
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any, len(metadata))
	}
	for k, v := range metadata {
		doc.Metadata[k] = v
	}
	return nil
}

func (s *InMemoryDocumentStore) MarkChunkIndexed(ctx context.Context, chunkID string, indexed bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.chunks[chunkID]
	if !ok {
		return types.NewErrorf(types.ErrNotFound, "chunk %s not found", chunkID)
	}
	chunk := &s.docs[ref.documentID].Chunks[ref.position]
	if chunk.Metadata == nil {
		chunk.Metadata = make(map[string]any, 1)
	}
	chunk.Metadata["indexed"] = indexed
	return nil
}

func (s *InMemoryDocumentStore) UpdateChunkEmbedding(ctx context.Context, chunkID string, vector []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.chunks[chunkID]
	if !ok {
		return types.NewErrorf(types.ErrNotFound, "chunk %s not found", chunkID)
	}
	chunk := &s.docs[ref.documentID].Chunks[ref.position]
	chunk.Embedding = make([]float32, len(vector))
	copy(chunk.Embedding, vector)
	return nil
}

func (s *InMemoryDocumentStore) ListEmbeddedChunks(ctx context.Context) ([]types.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Chunk
	for _, doc := range s.docs {
		for i := range doc.Chunks {
			if doc.Chunks[i].Embedding == nil {
				continue
			}
			out = append(out, *cloneChunk(&doc.Chunks[i]))
		}
	}
	return out, nil
}

func (s *InMemoryDocumentStore) CountDocuments(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

func (s *InMemoryDocumentStore) Close() error { return nil }

// ListDocumentIDs returns stored document ids sorted lexically. Not
// part of DocumentStore; used by callers that enumerate a corpus.
func (s *InMemoryDocumentStore) ListDocumentIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func cloneDocument(doc *types.Document) *types.Document {
	out := *doc
	if doc.Metadata != nil {
		out.Metadata = make(map[string]any, len(doc.Metadata))
		for k, v := range doc.Metadata {
			out.Metadata[k] = v
		}
	}
	out.Chunks = make([]types.Chunk, len(doc.Chunks))
	for i := range doc.Chunks {
		out.Chunks[i] = *cloneChunk(&doc.Chunks[i])
	}
	return &out
}

func cloneChunk(chunk *types.Chunk) *types.Chunk {
	out := *chunk
	if chunk.Metadata != nil {
		out.Metadata = make(map[string]any, len(chunk.Metadata))
		for k, v := range chunk.Metadata {
			out.Metadata[k] = v
		}
	}
	if chunk.Embedding != nil {
		out.Embedding = make([]float32, len(chunk.Embedding))
		copy(out.Embedding, chunk.Embedding)
	}
	return &out
}
