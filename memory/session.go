package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/astreus-ai/astreus-go/types"
)

// SessionManager hands out session-scoped views over one Memory
// engine. Sessions are logical partitions, so creating one is free;
// the manager only tracks which ids it has handed out.
type SessionManager struct {
	memory *Memory

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates a manager over the given engine.
func NewSessionManager(memory *Memory) *SessionManager {
	return &SessionManager{
		memory:   memory,
		sessions: make(map[string]*Session),
	}
}

// Session returns the scoped handle for a session id, creating it if
// needed. An empty id gets a fresh random one.
func (sm *SessionManager) Session(id string) *Session {
	if id == "" {
		id = uuid.New().String()
	}

	sm.mu.RLock()
	s, ok := sm.sessions[id]
	sm.mu.RUnlock()
	if ok {
		return s
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.sessions[id]; ok {
		return s
	}
	s = &Session{id: id, memory: sm.memory}
	sm.sessions[id] = s
	return s
}

// SessionIDs lists the ids the manager has handed out.
func (sm *SessionManager) SessionIDs() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Remove clears a session's entries and forgets the handle.
func (sm *SessionManager) Remove(ctx context.Context, id string) error {
	if _, err := sm.memory.Clear(ctx, id); err != nil {
		return err
	}
	sm.mu.Lock()
	delete(sm.sessions, id)
	sm.mu.Unlock()
	return nil
}

// Session is a Memory view bound to one session id. All calls proxy
// to the engine with the session pre-filled.
type Session struct {
	id     string
	memory *Memory
	userID string
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// WithUser returns a copy of the handle that stamps entries with the
// given user id.
func (s *Session) WithUser(userID string) *Session {
	out := *s
	out.userID = userID
	return &out
}

// Add appends an entry to this session.
func (s *Session) Add(ctx context.Context, role types.Role, content string) (string, error) {
	return s.memory.Add(ctx, s.id, role, content, AddOptions{UserID: s.userID})
}

// AddWithMetadata appends an entry carrying extra metadata.
func (s *Session) AddWithMetadata(ctx context.Context, role types.Role, content string, metadata map[string]any) (string, error) {
	return s.memory.Add(ctx, s.id, role, content, AddOptions{UserID: s.userID, Metadata: metadata})
}

// History returns the session's entries oldest first. limit > 0 keeps
// the most recent limit entries.
func (s *Session) History(ctx context.Context, limit int) ([]*types.MemoryEntry, error) {
	return s.memory.GetBySession(ctx, s.id, limit)
}

// Search runs semantic search scoped to this session.
func (s *Session) Search(ctx context.Context, query string, limit int, threshold float64) ([]types.SearchResult, error) {
	return s.memory.SearchSimilar(ctx, query, SearchOptions{
		SessionID: s.id,
		Limit:     limit,
		Threshold: threshold,
	})
}

// Count returns how many entries the session holds.
func (s *Session) Count(ctx context.Context) (int, error) {
	return s.memory.Count(ctx, s.id)
}

// Clear removes every entry in the session and reports how many there
// were.
func (s *Session) Clear(ctx context.Context) (int, error) {
	return s.memory.Clear(ctx, s.id)
}
