package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/astreus-ai/astreus-go/types"
)

// RedisStoreConfig configures the Redis memory backend.
type RedisStoreConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
	// KeyPrefix namespaces every key. Default "astreus:memory:".
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// DefaultRedisStoreConfig returns a localhost configuration.
func DefaultRedisStoreConfig() RedisStoreConfig {
	return RedisStoreConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "astreus:memory:",
	}
}

// RedisStore is a Backend for distributed deployments. Entries are
// JSON blobs keyed by id; each session keeps a Redis list of its entry
// ids, so insertion order is the list order.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(config RedisStoreConfig, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, types.NewError(types.ErrStorage, "connect to redis").WithCause(err)
	}

	return NewRedisStoreFromClient(client, config.KeyPrefix, logger), nil
}

// NewRedisStoreFromClient wraps an existing client. The caller keeps
// ownership decisions simple: Close closes the client either way.
func NewRedisStoreFromClient(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "astreus:memory:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With(zap.String("component", "memory_store_redis")),
	}
}

func (s *RedisStore) entryKey(id string) string {
	return s.keyPrefix + "entry:" + id
}

func (s *RedisStore) sessionKey(sessionID string) string {
	return s.keyPrefix + "session:" + sessionID
}

func (s *RedisStore) sessionsKey() string {
	return s.keyPrefix + "sessions"
}

func (s *RedisStore) Insert(ctx context.Context, entry *types.MemoryEntry) error {
	if entry == nil || entry.ID == "" {
		return types.NewError(types.ErrConfiguration, "entry with id is required")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.entryKey(entry.ID), data, 0).Result()
	if err != nil {
		return types.NewErrorf(types.ErrStorage, "persist entry %s", entry.ID).WithCause(err)
	}
	if !ok {
		return types.NewErrorf(types.ErrStorage, "duplicate entry id %s", entry.ID)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.sessionKey(entry.SessionID), entry.ID)
	pipe.SAdd(ctx, s.sessionsKey(), entry.SessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewErrorf(types.ErrStorage, "persist entry %s", entry.ID).WithCause(err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*types.MemoryEntry, error) {
	data, err := s.client.Get(ctx, s.entryKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.NewErrorf(types.ErrNotFound, "entry %s not found", id)
	}
	if err != nil {
		return nil, types.NewError(types.ErrStorage, "load entry").WithCause(err)
	}

	var entry types.MemoryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal entry: %w", err)
	}
	return &entry, nil
}

func (s *RedisStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*types.MemoryEntry, error) {
	var start int64
	if limit > 0 {
		start = int64(-limit)
	}
	ids, err := s.client.LRange(ctx, s.sessionKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, types.NewError(types.ErrStorage, "list entries").WithCause(err)
	}

	out := make([]*types.MemoryEntry, 0, len(ids))
	for _, id := range ids {
		entry, err := s.Get(ctx, id)
		if err != nil {
			if types.IsCode(err, types.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *RedisStore) OldestIDs(ctx context.Context, sessionID string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	ids, err := s.client.LRange(ctx, s.sessionKey(sessionID), 0, int64(n)-1).Result()
	if err != nil {
		return nil, types.NewError(types.ErrStorage, "list oldest entries").WithCause(err)
	}
	return ids, nil
}

func (s *RedisStore) Count(ctx context.Context, sessionID string) (int, error) {
	n, err := s.client.LLen(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return 0, types.NewError(types.ErrStorage, "count entries").WithCause(err)
	}
	return int(n), nil
}

func (s *RedisStore) Delete(ctx context.Context, ids []string) (int, error) {
	removed := 0
	for _, id := range ids {
		entry, err := s.Get(ctx, id)
		if err != nil {
			if types.IsCode(err, types.ErrNotFound) {
				continue
			}
			return removed, err
		}

		pipe := s.client.Pipeline()
		pipe.Del(ctx, s.entryKey(id))
		pipe.LRem(ctx, s.sessionKey(entry.SessionID), 1, id)
		if _, err := pipe.Exec(ctx); err != nil {
			return removed, types.NewErrorf(types.ErrStorage, "delete entry %s", id).WithCause(err)
		}
		removed++

		remaining, err := s.client.LLen(ctx, s.sessionKey(entry.SessionID)).Result()
		if err == nil && remaining == 0 {
			s.client.SRem(ctx, s.sessionsKey(), entry.SessionID)
		}
	}
	return removed, nil
}

func (s *RedisStore) ClearSession(ctx context.Context, sessionID string) ([]string, error) {
	ids, err := s.client.LRange(ctx, s.sessionKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, types.NewError(types.ErrStorage, "list entries").WithCause(err)
	}

	pipe := s.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.entryKey(id))
	}
	pipe.Del(ctx, s.sessionKey(sessionID))
	pipe.SRem(ctx, s.sessionsKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, types.NewErrorf(types.ErrStorage, "clear session %s", sessionID).WithCause(err)
	}

	s.logger.Debug("session cleared",
		zap.String("session_id", sessionID),
		zap.Int("entries", len(ids)))
	return ids, nil
}

func (s *RedisStore) ListEmbedded(ctx context.Context) ([]*types.MemoryEntry, error) {
	sessions, err := s.client.SMembers(ctx, s.sessionsKey()).Result()
	if err != nil {
		return nil, types.NewError(types.ErrStorage, "list sessions").WithCause(err)
	}

	var out []*types.MemoryEntry
	for _, sessionID := range sessions {
		entries, err := s.ListBySession(ctx, sessionID, 0)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.Embedding == nil {
				continue
			}
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *RedisStore) Stats(ctx context.Context) (types.MemoryStats, error) {
	sessions, err := s.client.SMembers(ctx, s.sessionsKey()).Result()
	if err != nil {
		return types.MemoryStats{}, types.NewError(types.ErrStorage, "list sessions").WithCause(err)
	}

	stats := types.MemoryStats{}
	for _, sessionID := range sessions {
		n, err := s.client.LLen(ctx, s.sessionKey(sessionID)).Result()
		if err != nil {
			return types.MemoryStats{}, types.NewError(types.ErrStorage, "count entries").WithCause(err)
		}
		if n == 0 {
			continue
		}
		stats.SessionCount++
		stats.MessageCount += int(n)
	}
	return stats, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if the store is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var _ Backend = (*RedisStore)(nil)
