package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astreus-ai/astreus-go/testutil"
	"github.com/astreus-ai/astreus-go/types"
)

func newTestMemory(t *testing.T, mutate func(*Config)) *Memory {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	var provider *testutil.HashEmbedder
	if cfg.EnableEmbeddings {
		provider = testutil.NewHashEmbedder(32)
	}
	var m *Memory
	var err error
	if provider != nil {
		m, err = New(NewInMemoryStore(), provider, cfg, nil)
	} else {
		m, err = New(NewInMemoryStore(), nil, cfg, nil)
	}
	require.NoError(t, err)
	return m
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, nil, DefaultConfig(), nil)
	assert.True(t, types.IsCode(err, types.ErrConfiguration))

	cfg := DefaultConfig()
	cfg.EnableEmbeddings = true
	_, err = New(NewInMemoryStore(), nil, cfg, nil)
	assert.True(t, types.IsCode(err, types.ErrConfiguration))

	cfg = DefaultConfig()
	cfg.MaxEntries = -1
	_, err = New(NewInMemoryStore(), nil, cfg, nil)
	assert.True(t, types.IsCode(err, types.ErrConfiguration))
}

func TestAddPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, nil)

	id1, err := m.Add(ctx, "s1", types.RoleUser, "hello", AddOptions{})
	require.NoError(t, err)
	id2, err := m.Add(ctx, "s1", types.RoleAssistant, "hi", AddOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	entries, err := m.GetBySession(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "hello", entries[0].Content)
	assert.Equal(t, types.RoleUser, entries[0].Role)
	assert.Equal(t, "hi", entries[1].Content)
	assert.Equal(t, types.RoleAssistant, entries[1].Role)

	count, err := m.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAddValidation(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, nil)

	_, err := m.Add(ctx, "", types.RoleUser, "x", AddOptions{})
	assert.True(t, types.IsCode(err, types.ErrConfiguration))

	_, err = m.Add(ctx, "s1", types.Role("narrator"), "x", AddOptions{})
	assert.True(t, types.IsCode(err, types.ErrConfiguration))
}

func TestGetBySessionLimitKeepsMostRecent(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, nil)

	for i := 0; i < 5; i++ {
		_, err := m.Add(ctx, "s1", types.RoleUser, fmt.Sprintf("msg-%d", i), AddOptions{})
		require.NoError(t, err)
	}

	entries, err := m.GetBySession(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "msg-3", entries[0].Content)
	assert.Equal(t, "msg-4", entries[1].Content)
}

func TestMaxEntriesEvictsOldest(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, func(cfg *Config) { cfg.MaxEntries = 2 })

	_, err := m.Add(ctx, "s1", types.RoleUser, "first", AddOptions{})
	require.NoError(t, err)
	_, err = m.Add(ctx, "s1", types.RoleUser, "second", AddOptions{})
	require.NoError(t, err)
	_, err = m.Add(ctx, "s1", types.RoleUser, "third", AddOptions{})
	require.NoError(t, err)

	entries, err := m.GetBySession(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Content)
	assert.Equal(t, "third", entries[1].Content)

	// Eviction is per session.
	_, err = m.Add(ctx, "s2", types.RoleUser, "other", AddOptions{})
	require.NoError(t, err)
	count, err := m.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, nil)

	_, err := m.Add(ctx, "s1", types.RoleUser, "hello", AddOptions{})
	require.NoError(t, err)
	cleared, err := m.Clear(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, cleared)

	count, err := m.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, count)

	entries, err := m.GetBySession(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSearchSimilarScopedToSession(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, func(cfg *Config) { cfg.EnableEmbeddings = true })

	_, err := m.Add(ctx, "s1", types.RoleUser, "the weather in tokyo is sunny", AddOptions{})
	require.NoError(t, err)
	_, err = m.Add(ctx, "s1", types.RoleUser, "deploy pipelines run nightly", AddOptions{})
	require.NoError(t, err)
	// Same content in another session must stay invisible.
	_, err = m.Add(ctx, "s2", types.RoleUser, "the weather in tokyo is sunny", AddOptions{})
	require.NoError(t, err)

	results, err := m.SearchSimilar(ctx, "the weather in tokyo is sunny", SearchOptions{
		SessionID: "s1",
		Limit:     5,
		Threshold: 0.75,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "s1", results[0].Entry.SessionID)
	assert.Equal(t, "the weather in tokyo is sunny", results[0].Entry.Content)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)

	// Unscoped search sees both sessions.
	results, err = m.SearchSimilar(ctx, "the weather in tokyo is sunny", SearchOptions{
		Limit:     5,
		Threshold: 0.75,
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchSimilarSortedByScore(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, func(cfg *Config) { cfg.EnableEmbeddings = true })

	_, err := m.Add(ctx, "s1", types.RoleUser, "cats sleep all day", AddOptions{})
	require.NoError(t, err)
	_, err = m.Add(ctx, "s1", types.RoleUser, "cats chase mice", AddOptions{})
	require.NoError(t, err)
	_, err = m.Add(ctx, "s1", types.RoleUser, "quarterly revenue grew", AddOptions{})
	require.NoError(t, err)

	results, err := m.SearchSimilar(ctx, "cats sleep all day", SearchOptions{SessionID: "s1", Limit: 3})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "cats sleep all day", results[0].Entry.Content)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSearchSimilarRequiresEmbeddings(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, nil)

	_, err := m.SearchSimilar(ctx, "anything", SearchOptions{})
	assert.True(t, types.IsCode(err, types.ErrConfiguration))
}

func TestAddStoresEntryWhenEmbeddingFails(t *testing.T) {
	ctx := context.Background()
	flaky := testutil.NewFlakyEmbedder(16, 1)
	cfg := DefaultConfig()
	cfg.EnableEmbeddings = true
	m, err := New(NewInMemoryStore(), flaky, cfg, nil)
	require.NoError(t, err)

	okID, err := m.Add(ctx, "s1", types.RoleUser, "first message survives", AddOptions{})
	require.NoError(t, err)

	failedID, err := m.Add(ctx, "s1", types.RoleUser, "second message loses its vector", AddOptions{})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrEmbeddingProvider))
	require.NotEmpty(t, failedID)

	// Both entries persisted.
	count, err := m.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Only the embedded entry is searchable.
	flaky.Recover()
	results, err := m.SearchSimilar(ctx, "second message loses its vector", SearchOptions{SessionID: "s1", Limit: 5})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, failedID, r.Entry.ID)
	}
	_ = okID
}

func TestDeleteRemovesFromIndex(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, func(cfg *Config) { cfg.EnableEmbeddings = true })

	id, err := m.Add(ctx, "s1", types.RoleUser, "forget me", AddOptions{})
	require.NoError(t, err)

	removed, err := m.Delete(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	results, err := m.SearchSimilar(ctx, "forget me", SearchOptions{SessionID: "s1", Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, results)

	// Deleting again reports zero without error.
	removed, err = m.Delete(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestEvictionRemovesFromIndex(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, func(cfg *Config) {
		cfg.EnableEmbeddings = true
		cfg.MaxEntries = 1
	})

	_, err := m.Add(ctx, "s1", types.RoleUser, "oldest entry gets evicted", AddOptions{})
	require.NoError(t, err)
	_, err = m.Add(ctx, "s1", types.RoleUser, "newest entry stays", AddOptions{})
	require.NoError(t, err)

	results, err := m.SearchSimilar(ctx, "oldest entry gets evicted", SearchOptions{
		SessionID: "s1",
		Limit:     5,
		Threshold: 0.99,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, nil)

	_, err := m.Add(ctx, "s1", types.RoleUser, "a", AddOptions{})
	require.NoError(t, err)
	_, err = m.Add(ctx, "s1", types.RoleAssistant, "b", AddOptions{})
	require.NoError(t, err)
	_, err = m.Add(ctx, "s2", types.RoleUser, "c", AddOptions{})
	require.NoError(t, err)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.SessionCount)
	assert.Equal(t, 3, stats.MessageCount)

	cleared, err := m.Clear(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, 1, cleared)
	stats, err = m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SessionCount)
	assert.Equal(t, 2, stats.MessageCount)
}

func TestUserIDAndMetadata(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, nil)

	id, err := m.Add(ctx, "s1", types.RoleUser, "tagged", AddOptions{
		UserID:   "u-7",
		Metadata: map[string]any{"channel": "cli"},
	})
	require.NoError(t, err)

	entry, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "u-7", entry.UserID)
	assert.Equal(t, "cli", entry.Metadata["channel"])
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, func(cfg *Config) { cfg.EnableEmbeddings = true })

	const sessions = 8
	const perSession = 20

	var wg sync.WaitGroup
	errs := make(chan error, sessions*perSession)
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("session-%d", n)
			for j := 0; j < perSession; j++ {
				if _, err := m.Add(ctx, sessionID, types.RoleUser, fmt.Sprintf("msg %d %d", n, j), AddOptions{}); err != nil {
					errs <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, sessions, stats.SessionCount)
	assert.Equal(t, sessions*perSession, stats.MessageCount)

	for i := 0; i < sessions; i++ {
		entries, err := m.GetBySession(ctx, fmt.Sprintf("session-%d", i), 0)
		require.NoError(t, err)
		require.Len(t, entries, perSession)
		for j, e := range entries {
			assert.Equal(t, fmt.Sprintf("msg %d %d", i, j), e.Content)
		}
	}
}
