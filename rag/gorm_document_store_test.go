package rag

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/astreus-ai/astreus-go/testutil"
	"github.com/astreus-ai/astreus-go/types"
)

func newGormStore(t *testing.T) *GormDocumentStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	store, err := NewGormDocumentStore(db, DefaultGormDocumentStoreConfig(), nil)
	require.NoError(t, err)
	return store
}

func sampleDoc() *types.Document {
	return &types.Document{
		ID:       "doc-1",
		Title:    "sample",
		Content:  "full document content",
		Metadata: map[string]any{"lang": "en"},
		Chunks: []types.Chunk{
			{ID: "chunk-1", DocumentID: "doc-1", Content: "full document", Metadata: map[string]any{"position": 0}},
			{ID: "chunk-2", DocumentID: "doc-1", Content: "document content", Metadata: map[string]any{"position": 1}},
		},
	}
}

func TestGormDocumentStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newGormStore(t)

	require.NoError(t, store.PutDocument(ctx, sampleDoc()))

	doc, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "sample", doc.Title)
	assert.Equal(t, "en", doc.Metadata["lang"])
	require.Len(t, doc.Chunks, 2)
	assert.Equal(t, "chunk-1", doc.Chunks[0].ID)
	assert.Equal(t, "chunk-2", doc.Chunks[1].ID)

	chunk, err := store.GetChunk(ctx, "chunk-2")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", chunk.DocumentID)
	assert.Equal(t, "document content", chunk.Content)

	count, err := store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGormDocumentStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store := newGormStore(t)

	_, err := store.GetDocument(ctx, "nope")
	assert.True(t, types.IsCode(err, types.ErrNotFound))

	_, err = store.GetChunk(ctx, "nope")
	assert.True(t, types.IsCode(err, types.ErrNotFound))

	_, err = store.DeleteDocument(ctx, "nope")
	assert.True(t, types.IsCode(err, types.ErrNotFound))

	err = store.AmendMetadata(ctx, "nope", map[string]any{"k": "v"})
	assert.True(t, types.IsCode(err, types.ErrNotFound))

	err = store.MarkChunkIndexed(ctx, "nope", true)
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestGormDocumentStoreDeleteCascades(t *testing.T) {
	ctx := context.Background()
	store := newGormStore(t)
	require.NoError(t, store.PutDocument(ctx, sampleDoc()))

	removed, err := store.DeleteDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"chunk-1", "chunk-2"}, removed)

	_, err = store.GetChunk(ctx, "chunk-1")
	assert.True(t, types.IsCode(err, types.ErrNotFound))

	count, err := store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGormDocumentStoreAmendMetadata(t *testing.T) {
	ctx := context.Background()
	store := newGormStore(t)
	require.NoError(t, store.PutDocument(ctx, sampleDoc()))

	require.NoError(t, store.AmendMetadata(ctx, "doc-1", map[string]any{
		"lang":  "fr",
		"pages": float64(12),
	}))

	doc, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "fr", doc.Metadata["lang"])
	assert.Equal(t, float64(12), doc.Metadata["pages"])
}

func TestGormDocumentStoreMarkChunkIndexed(t *testing.T) {
	ctx := context.Background()
	store := newGormStore(t)
	require.NoError(t, store.PutDocument(ctx, sampleDoc()))

	require.NoError(t, store.MarkChunkIndexed(ctx, "chunk-1", false))
	chunk, err := store.GetChunk(ctx, "chunk-1")
	require.NoError(t, err)
	assert.Equal(t, false, chunk.Metadata["indexed"])

	require.NoError(t, store.MarkChunkIndexed(ctx, "chunk-1", true))
	chunk, err = store.GetChunk(ctx, "chunk-1")
	require.NoError(t, err)
	assert.Equal(t, true, chunk.Metadata["indexed"])
}

func TestGormDocumentStoreDuplicateID(t *testing.T) {
	ctx := context.Background()
	store := newGormStore(t)
	require.NoError(t, store.PutDocument(ctx, sampleDoc()))

	err := store.PutDocument(ctx, sampleDoc())
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrStorage))
}

func TestGormDocumentStoreEmbeddedChunks(t *testing.T) {
	ctx := context.Background()
	store := newGormStore(t)

	doc := sampleDoc()
	doc.Chunks[0].Embedding = []float32{0.25, 0.75}
	require.NoError(t, store.PutDocument(ctx, doc))

	chunks, err := store.ListEmbeddedChunks(ctx)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "chunk-1", chunks[0].ID)
	assert.Equal(t, "doc-1", chunks[0].DocumentID)
	assert.Equal(t, []float32{0.25, 0.75}, chunks[0].Embedding)

	require.NoError(t, store.UpdateChunkEmbedding(ctx, "chunk-2", []float32{1, 0}))
	chunks, err = store.ListEmbeddedChunks(ctx)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)

	chunk, err := store.GetChunk(ctx, "chunk-2")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, chunk.Embedding)

	err = store.UpdateChunkEmbedding(ctx, "missing", []float32{1, 0})
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestRAGSearchSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	cfg := DefaultRAGConfig()
	cfg.ChunkSize = 40
	cfg.ChunkOverlap = 10
	provider := testutil.NewHashEmbedder(32)

	store, err := NewGormDocumentStore(db, DefaultGormDocumentStoreConfig(), nil)
	require.NoError(t, err)
	first, err := New(store, provider, cfg, nil, nil)
	require.NoError(t, err)

	ingested, err := first.Ingest(ctx, &types.Document{
		Title:   "notes",
		Content: "chunk vectors are written with the document so the index can be rebuilt",
	})
	require.NoError(t, err)

	// A fresh store and engine over the same database stand in for a
	// process restart.
	reopened, err := NewGormDocumentStore(db, DefaultGormDocumentStoreConfig(), nil)
	require.NoError(t, err)
	second, err := New(reopened, provider, cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, len(ingested.Chunks), second.Index().Len())

	results, err := second.Search(ctx, ingested.Chunks[0].Content, SearchOptions{Limit: 1, Threshold: 0.9})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ingested.Chunks[0].ID, results[0].Chunk.ID)
}

func TestRAGWithGormStore(t *testing.T) {
	ctx := context.Background()
	store := newGormStore(t)

	cfg := DefaultRAGConfig()
	cfg.ChunkSize = 40
	cfg.ChunkOverlap = 10

	engine, err := New(store, testutil.NewHashEmbedder(32), cfg, nil, nil)
	require.NoError(t, err)

	ingested, err := engine.Ingest(ctx, &types.Document{
		Title:   "persisted",
		Content: "relational storage keeps documents across restarts and sessions",
	})
	require.NoError(t, err)

	results, err := engine.Search(ctx, ingested.Chunks[0].Content, SearchOptions{Limit: 1, Threshold: 0.9})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ingested.Chunks[0].ID, results[0].Chunk.ID)
}
