package memory

import (
	"context"
	"sync"

	"github.com/astreus-ai/astreus-go/types"
)

// InMemoryStore is a Backend for tests and single-process use. Entries
// live in per-session slices, which makes insertion order free.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]*types.MemoryEntry
	byID     map[string]*types.MemoryEntry
}

// NewInMemoryStore creates an empty in-memory backend.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string][]*types.MemoryEntry),
		byID:     make(map[string]*types.MemoryEntry),
	}
}

func (s *InMemoryStore) Insert(ctx context.Context, entry *types.MemoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry == nil || entry.ID == "" {
		return types.NewError(types.ErrConfiguration, "entry with id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[entry.ID]; exists {
		return types.NewErrorf(types.ErrStorage, "duplicate entry id %s", entry.ID)
	}
	stored := entry.Clone()
	s.byID[stored.ID] = stored
	s.sessions[stored.SessionID] = append(s.sessions[stored.SessionID], stored)
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (*types.MemoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.byID[id]
	if !ok {
		return nil, types.NewErrorf(types.ErrNotFound, "entry %s not found", id)
	}
	return entry.Clone(), nil
}

func (s *InMemoryStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*types.MemoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.sessions[sessionID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]*types.MemoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Clone())
	}
	return out, nil
}

func (s *InMemoryStore) OldestIDs(ctx context.Context, sessionID string, n int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.sessions[sessionID]
	if n > len(entries) {
		n = len(entries)
	}
	ids := make([]string, 0, n)
	for _, e := range entries[:n] {
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (s *InMemoryStore) Count(ctx context.Context, sessionID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[sessionID]), nil
}

func (s *InMemoryStore) Delete(ctx context.Context, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, id := range ids {
		entry, ok := s.byID[id]
		if !ok {
			continue
		}
		delete(s.byID, id)
		s.sessions[entry.SessionID] = removeEntry(s.sessions[entry.SessionID], id)
		if len(s.sessions[entry.SessionID]) == 0 {
			delete(s.sessions, entry.SessionID)
		}
		removed++
	}
	return removed, nil
}

func (s *InMemoryStore) ClearSession(ctx context.Context, sessionID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.sessions[sessionID]
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
		delete(s.byID, e.ID)
	}
	delete(s.sessions, sessionID)
	return ids, nil
}

func (s *InMemoryStore) ListEmbedded(ctx context.Context) ([]*types.MemoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.MemoryEntry
	for _, entry := range s.byID {
		if entry.Embedding == nil {
			continue
		}
		out = append(out, entry.Clone())
	}
	return out, nil
}

func (s *InMemoryStore) Stats(ctx context.Context) (types.MemoryStats, error) {
	if err := ctx.Err(); err != nil {
		return types.MemoryStats{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.MemoryStats{
		SessionCount: len(s.sessions),
		MessageCount: len(s.byID),
	}, nil
}

func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string][]*types.MemoryEntry)
	s.byID = make(map[string]*types.MemoryEntry)
	return nil
}

func removeEntry(entries []*types.MemoryEntry, id string) []*types.MemoryEntry {
	for i, e := range entries {
		if e.ID == id {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}

var _ Backend = (*InMemoryStore)(nil)
