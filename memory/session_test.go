package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astreus-ai/astreus-go/types"
)

func TestSessionManagerReturnsSameHandle(t *testing.T) {
	m := newTestMemory(t, nil)
	sm := NewSessionManager(m)

	a := sm.Session("chat-1")
	b := sm.Session("chat-1")
	assert.Same(t, a, b)

	c := sm.Session("chat-2")
	assert.NotSame(t, a, c)
	assert.ElementsMatch(t, []string{"chat-1", "chat-2"}, sm.SessionIDs())
}

func TestSessionManagerGeneratesID(t *testing.T) {
	m := newTestMemory(t, nil)
	sm := NewSessionManager(m)

	s := sm.Session("")
	assert.NotEmpty(t, s.ID())
	assert.NotSame(t, s, sm.Session(""))
}

func TestSessionScopedOperations(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, nil)
	sm := NewSessionManager(m)

	s := sm.Session("chat")
	_, err := s.Add(ctx, types.RoleUser, "hello")
	require.NoError(t, err)
	_, err = s.Add(ctx, types.RoleAssistant, "hi")
	require.NoError(t, err)

	history, err := s.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, "chat", history[0].SessionID)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	cleared, err := s.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cleared)
	count, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSessionWithUser(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, nil)
	sm := NewSessionManager(m)

	s := sm.Session("chat").WithUser("u-42")
	id, err := s.Add(ctx, types.RoleUser, "who am i")
	require.NoError(t, err)

	entry, err := m.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "u-42", entry.UserID)

	// The original handle stays unstamped.
	id2, err := sm.Session("chat").Add(ctx, types.RoleUser, "anonymous")
	require.NoError(t, err)
	entry, err = m.Get(ctx, id2)
	require.NoError(t, err)
	assert.Empty(t, entry.UserID)
}

func TestSessionSearch(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, func(cfg *Config) { cfg.EnableEmbeddings = true })
	sm := NewSessionManager(m)

	s := sm.Session("chat")
	_, err := s.Add(ctx, types.RoleUser, "database migrations run at midnight")
	require.NoError(t, err)
	_, err = sm.Session("other").Add(ctx, types.RoleUser, "database migrations run at midnight")
	require.NoError(t, err)

	results, err := s.Search(ctx, "database migrations run at midnight", 5, 0.9)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "chat", results[0].Entry.SessionID)
}

func TestSessionManagerRemove(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, nil)
	sm := NewSessionManager(m)

	s := sm.Session("chat")
	_, err := s.Add(ctx, types.RoleUser, "gone soon")
	require.NoError(t, err)

	require.NoError(t, sm.Remove(ctx, "chat"))
	assert.Empty(t, sm.SessionIDs())

	count, err := m.Count(ctx, "chat")
	require.NoError(t, err)
	assert.Zero(t, count)
}
