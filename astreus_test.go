package astreus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astreus-ai/astreus-go/config"
	"github.com/astreus-ai/astreus-go/memory"
	"github.com/astreus-ai/astreus-go/rag"
	"github.com/astreus-ai/astreus-go/testutil"
	"github.com/astreus-ai/astreus-go/types"
)

func TestNewMemoryOnly(t *testing.T) {
	ctx := context.Background()
	eng, err := New()
	require.NoError(t, err)
	defer eng.Close()

	assert.Nil(t, eng.RAG)

	s := eng.Sessions.Session("chat")
	_, err = s.Add(ctx, types.RoleUser, "hello")
	require.NoError(t, err)

	history, err := s.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Content)
}

func TestNewWithProvider(t *testing.T) {
	ctx := context.Background()
	eng, err := New(WithEmbeddingProvider(testutil.NewHashEmbedder(32)))
	require.NoError(t, err)
	defer eng.Close()

	require.NotNil(t, eng.RAG)

	doc, err := eng.RAG.Ingest(ctx, &types.Document{
		Title:   "notes",
		Content: "retrieval augmented generation combines search with language models",
	})
	require.NoError(t, err)
	require.NotEmpty(t, doc.Chunks)

	results, err := eng.RAG.Search(ctx, "retrieval augmented generation", rag.SearchOptions{Limit: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, results)

	// Memory search works through the same provider.
	_, err = eng.Memory.Add(ctx, "chat", types.RoleUser, "remember the deadline is friday", memory.AddOptions{})
	require.NoError(t, err)
	hits, err := eng.Memory.SearchSimilar(ctx, "when is the deadline", memory.SearchOptions{SessionID: "chat", Limit: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestNewWithSQLite(t *testing.T) {
	ctx := context.Background()
	eng, err := New(
		WithSQLite(":memory:"),
		WithEmbeddingProvider(testutil.NewHashEmbedder(16)),
	)
	require.NoError(t, err)
	defer eng.Close()

	id, err := eng.Memory.Add(ctx, "chat", types.RoleUser, "persisted", memory.AddOptions{})
	require.NoError(t, err)

	entry, err := eng.Memory.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "persisted", entry.Content)
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New(WithOpenAI("text-embedding-3-small"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrConfiguration))
}

func TestNewWithConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Memory.MaxEntries = 1
	eng, err := New(WithConfig(cfg))
	require.NoError(t, err)
	defer eng.Close()

	ctx := context.Background()
	_, err = eng.Memory.Add(ctx, "chat", types.RoleUser, "first", memory.AddOptions{})
	require.NoError(t, err)
	_, err = eng.Memory.Add(ctx, "chat", types.RoleUser, "second", memory.AddOptions{})
	require.NoError(t, err)

	count, err := eng.Memory.Count(ctx, "chat")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
