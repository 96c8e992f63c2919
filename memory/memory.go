package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/astreus-ai/astreus-go/embedding"
	"github.com/astreus-ai/astreus-go/rag"
	"github.com/astreus-ai/astreus-go/types"
)

// Config controls the memory engine.
type Config struct {
	// TableName is passed through to relational backends. Default
	// "memories".
	TableName string `yaml:"table_name" json:"table_name"`

	// MaxEntries caps entries per session; the oldest entries are
	// evicted first when a new entry pushes a session over the cap.
	// Zero disables eviction. Default 100.
	MaxEntries int `yaml:"max_entries" json:"max_entries"`

	// EnableEmbeddings turns on semantic search. Requires a provider.
	EnableEmbeddings bool `yaml:"enable_embeddings" json:"enable_embeddings"`

	// EmbeddingDimension overrides the provider-reported dimension for
	// the vector index. Zero uses the provider's.
	EmbeddingDimension int `yaml:"embedding_dimension" json:"embedding_dimension"`
}

// DefaultConfig returns the defaults documented on Config.
func DefaultConfig() Config {
	return Config{
		TableName:  "memories",
		MaxEntries: 100,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaxEntries < 0 {
		return types.NewError(types.ErrConfiguration, "max_entries cannot be negative")
	}
	if c.EmbeddingDimension < 0 {
		return types.NewError(types.ErrConfiguration, "embedding_dimension cannot be negative")
	}
	return nil
}

// SearchOptions narrow a SearchSimilar call.
type SearchOptions struct {
	// SessionID scopes results to one session. Empty searches all.
	SessionID string
	// Limit caps results. Zero or negative means 5.
	Limit int
	// Threshold drops results scoring below it. Scores are in [0,1].
	Threshold float64
}

// AddOptions carry the optional fields of an entry.
type AddOptions struct {
	UserID   string
	Metadata map[string]any
}

// Memory is the conversation memory engine. It layers id generation,
// per-session FIFO eviction and optional semantic search on top of a
// Backend.
type Memory struct {
	backend  Backend
	provider embedding.Provider
	config   Config
	logger   *zap.Logger

	index *rag.FlatIndex

	// sessionOf maps indexed entry ids to their session for search
	// pre-filtering. Only populated when embeddings are enabled.
	mu        sync.RWMutex
	sessionOf map[string]string
}

// New creates a memory engine over the given backend. provider may be
// nil unless config.EnableEmbeddings is set.
func New(backend Backend, provider embedding.Provider, config Config, logger *zap.Logger) (*Memory, error) {
	if backend == nil {
		return nil, types.NewError(types.ErrConfiguration, "backend is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.EnableEmbeddings && provider == nil {
		return nil, types.NewError(types.ErrConfiguration, "embeddings enabled but no provider configured")
	}
	if config.TableName == "" {
		config.TableName = "memories"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Memory{
		backend:   backend,
		provider:  provider,
		config:    config,
		logger:    logger.With(zap.String("component", "memory")),
		sessionOf: make(map[string]string),
	}
	if config.EnableEmbeddings {
		dim := provider.Dimensions()
		if config.EmbeddingDimension > 0 {
			dim = config.EmbeddingDimension
		}
		m.index = rag.NewFlatIndex(dim, logger)
		if err := m.hydrateIndex(context.Background()); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// hydrateIndex rebuilds the vector index and the session map from
// embeddings the backend already holds, so entries persisted by a
// previous process stay searchable.
func (m *Memory) hydrateIndex(ctx context.Context) error {
	entries, err := m.backend.ListEmbedded(ctx)
	if err != nil {
		return err
	}
	loaded := 0
	for _, entry := range entries {
		if err := m.index.Upsert(ctx, entry.ID, entry.Embedding); err != nil {
			// Typically a dimension change between runs; the entry
			// stays stored but out of the index.
			m.logger.Warn("skipping persisted entry vector",
				zap.String("entry_id", entry.ID), zap.Error(err))
			continue
		}
		m.sessionOf[entry.ID] = entry.SessionID
		loaded++
	}
	if loaded > 0 {
		m.logger.Info("vector index hydrated", zap.Int("entries", loaded))
	}
	return nil
}

// Add appends an entry to a session and returns its id. When
// embeddings are enabled and the provider fails, the entry is stored
// anyway and the provider error is returned alongside the id; the
// entry simply stays invisible to SearchSimilar.
func (m *Memory) Add(ctx context.Context, sessionID string, role types.Role, content string, opts AddOptions) (string, error) {
	if sessionID == "" {
		return "", types.NewError(types.ErrConfiguration, "session id is required")
	}
	if !role.Valid() {
		return "", types.NewErrorf(types.ErrConfiguration, "invalid role %q", role)
	}

	entry := &types.MemoryEntry{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		UserID:    opts.UserID,
		Role:      role,
		Content:   content,
		Metadata:  opts.Metadata,
		CreatedAt: time.Now().UTC(),
	}

	// Embed before touching the store so provider latency never holds
	// a lock and a failed provider never loses the entry.
	var embedErr error
	if m.index != nil {
		vector, err := m.provider.Embed(ctx, content)
		if err != nil {
			embedErr = err
			m.logger.Warn("embedding failed, storing entry without vector",
				zap.String("entry_id", entry.ID),
				zap.Error(err))
		} else {
			entry.Embedding = vector
		}
	}

	if err := m.backend.Insert(ctx, entry); err != nil {
		return "", err
	}

	if err := m.evict(ctx, sessionID); err != nil {
		return entry.ID, err
	}

	if m.index != nil && entry.Embedding != nil {
		if err := m.index.Upsert(ctx, entry.ID, entry.Embedding); err != nil {
			return entry.ID, err
		}
		m.mu.Lock()
		m.sessionOf[entry.ID] = sessionID
		m.mu.Unlock()
	}

	m.logger.Debug("entry added",
		zap.String("session_id", sessionID),
		zap.String("entry_id", entry.ID),
		zap.String("role", string(role)))
	return entry.ID, embedErr
}

// evict trims the session back under MaxEntries, oldest first.
func (m *Memory) evict(ctx context.Context, sessionID string) error {
	if m.config.MaxEntries <= 0 {
		return nil
	}
	count, err := m.backend.Count(ctx, sessionID)
	if err != nil {
		return err
	}
	excess := count - m.config.MaxEntries
	if excess <= 0 {
		return nil
	}

	ids, err := m.backend.OldestIDs(ctx, sessionID, excess)
	if err != nil {
		return err
	}
	if _, err := m.backend.Delete(ctx, ids); err != nil {
		return err
	}
	m.forget(ctx, ids)

	m.logger.Debug("session evicted",
		zap.String("session_id", sessionID),
		zap.Int("entries", len(ids)))
	return nil
}

// forget drops ids from the index and the session map.
func (m *Memory) forget(ctx context.Context, ids []string) {
	if m.index == nil {
		return
	}
	m.mu.Lock()
	for _, id := range ids {
		delete(m.sessionOf, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		if err := m.index.Remove(ctx, id); err != nil && !types.IsCode(err, types.ErrNotFound) {
			m.logger.Warn("index removal failed", zap.String("entry_id", id), zap.Error(err))
		}
	}
}

// GetBySession returns a session's entries oldest first. limit > 0
// keeps the most recent limit entries.
func (m *Memory) GetBySession(ctx context.Context, sessionID string, limit int) ([]*types.MemoryEntry, error) {
	if sessionID == "" {
		return nil, types.NewError(types.ErrConfiguration, "session id is required")
	}
	return m.backend.ListBySession(ctx, sessionID, limit)
}

// Get returns a single entry by id.
func (m *Memory) Get(ctx context.Context, id string) (*types.MemoryEntry, error) {
	return m.backend.Get(ctx, id)
}

// Count returns the number of entries in a session.
func (m *Memory) Count(ctx context.Context, sessionID string) (int, error) {
	return m.backend.Count(ctx, sessionID)
}

// SearchSimilar ranks stored entries by semantic similarity to the
// query. Requires EnableEmbeddings; entries stored without a vector
// (provider failure at Add time) are not searched.
func (m *Memory) SearchSimilar(ctx context.Context, query string, opts SearchOptions) ([]types.SearchResult, error) {
	if m.index == nil {
		return nil, types.NewError(types.ErrConfiguration, "semantic search requires embeddings to be enabled")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 5
	}

	vector, err := m.provider.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var filter rag.FilterFunc
	if opts.SessionID != "" {
		filter = func(id string) bool {
			m.mu.RLock()
			defer m.mu.RUnlock()
			return m.sessionOf[id] == opts.SessionID
		}
	}

	matches, err := m.index.Query(ctx, vector, limit, opts.Threshold, filter)
	if err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(matches))
	for _, match := range matches {
		entry, err := m.backend.Get(ctx, match.ID)
		if err != nil {
			if types.IsCode(err, types.ErrNotFound) {
				// Index outlived the entry; drop it and move on.
				m.logger.Warn("orphaned index entry removed", zap.String("entry_id", match.ID))
				m.forget(ctx, []string{match.ID})
				continue
			}
			return nil, err
		}
		results = append(results, types.SearchResult{
			Score: match.Score,
			Entry: entry,
		})
	}
	return results, nil
}

// Delete removes entries by id and reports how many existed.
func (m *Memory) Delete(ctx context.Context, ids ...string) (int, error) {
	removed, err := m.backend.Delete(ctx, ids)
	if err != nil {
		return removed, err
	}
	m.forget(ctx, ids)
	return removed, nil
}

// Clear removes every entry in a session and reports how many there
// were.
func (m *Memory) Clear(ctx context.Context, sessionID string) (int, error) {
	if sessionID == "" {
		return 0, types.NewError(types.ErrConfiguration, "session id is required")
	}
	ids, err := m.backend.ClearSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	m.forget(ctx, ids)
	m.logger.Debug("session cleared",
		zap.String("session_id", sessionID),
		zap.Int("entries", len(ids)))
	return len(ids), nil
}

// Stats reports live totals across all sessions.
func (m *Memory) Stats(ctx context.Context) (types.MemoryStats, error) {
	return m.backend.Stats(ctx)
}

// Close releases the underlying backend.
func (m *Memory) Close() error {
	return m.backend.Close()
}
