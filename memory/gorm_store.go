package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/astreus-ai/astreus-go/types"
)

// GormStoreConfig configures the relational memory backend.
type GormStoreConfig struct {
	// TableName names the entries table. Default "memories".
	TableName string `yaml:"table_name" json:"table_name"`
}

// DefaultGormStoreConfig returns the default table naming.
func DefaultGormStoreConfig() GormStoreConfig {
	return GormStoreConfig{TableName: "memories"}
}

// memoryRecord is the row shape. RowID is the autoincrement primary
// key: insertion order falls out of the key, so ordering never depends
// on timestamp resolution.
type memoryRecord struct {
	RowID     int64  `gorm:"primaryKey;autoIncrement"`
	EntryID   string `gorm:"uniqueIndex;size:64"`
	SessionID string `gorm:"index;size:64"`
	UserID    string `gorm:"size:64"`
	Role      string `gorm:"size:16"`
	Content   string
	Metadata  []byte
	Embedding []byte
	CreatedAt time.Time
}

// GormStore is a Backend persisted through GORM. Works with any
// supported driver; tests use the pure-Go sqlite driver.
type GormStore struct {
	db     *gorm.DB
	table  string
	logger *zap.Logger
}

// NewGormStore creates the backend and migrates its table.
func NewGormStore(db *gorm.DB, config GormStoreConfig, logger *zap.Logger) (*GormStore, error) {
	if db == nil {
		return nil, types.NewError(types.ErrConfiguration, "db is required")
	}
	if config.TableName == "" {
		config.TableName = "memories"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &GormStore{
		db:     db,
		table:  config.TableName,
		logger: logger.With(zap.String("component", "memory_store_gorm")),
	}
	if err := db.Table(s.table).AutoMigrate(&memoryRecord{}); err != nil {
		return nil, types.NewError(types.ErrStorage, "migrate memory table").WithCause(err)
	}
	return s, nil
}

func (s *GormStore) tx(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

func (s *GormStore) Insert(ctx context.Context, entry *types.MemoryEntry) error {
	if entry == nil || entry.ID == "" {
		return types.NewError(types.ErrConfiguration, "entry with id is required")
	}

	rec, err := toRecord(entry)
	if err != nil {
		return err
	}
	if err := s.tx(ctx).Create(rec).Error; err != nil {
		return types.NewErrorf(types.ErrStorage, "persist entry %s", entry.ID).WithCause(err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*types.MemoryEntry, error) {
	var rec memoryRecord
	if err := s.tx(ctx).Where("entry_id = ?", id).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewErrorf(types.ErrNotFound, "entry %s not found", id)
		}
		return nil, types.NewError(types.ErrStorage, "load entry").WithCause(err)
	}
	return fromRecord(&rec)
}

func (s *GormStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*types.MemoryEntry, error) {
	q := s.tx(ctx).Where("session_id = ?", sessionID)

	var recs []memoryRecord
	if limit > 0 {
		// Last N by row id, then reversed back to insertion order.
		if err := q.Order("row_id desc").Limit(limit).Find(&recs).Error; err != nil {
			return nil, types.NewError(types.ErrStorage, "list entries").WithCause(err)
		}
		for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
			recs[i], recs[j] = recs[j], recs[i]
		}
	} else {
		if err := q.Order("row_id asc").Find(&recs).Error; err != nil {
			return nil, types.NewError(types.ErrStorage, "list entries").WithCause(err)
		}
	}

	out := make([]*types.MemoryEntry, 0, len(recs))
	for i := range recs {
		entry, err := fromRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *GormStore) OldestIDs(ctx context.Context, sessionID string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	var recs []memoryRecord
	if err := s.tx(ctx).Select("entry_id").Where("session_id = ?", sessionID).
		Order("row_id asc").Limit(n).Find(&recs).Error; err != nil {
		return nil, types.NewError(types.ErrStorage, "list oldest entries").WithCause(err)
	}
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.EntryID)
	}
	return ids, nil
}

func (s *GormStore) Count(ctx context.Context, sessionID string) (int, error) {
	var count int64
	if err := s.tx(ctx).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
		return 0, types.NewError(types.ErrStorage, "count entries").WithCause(err)
	}
	return int(count), nil
}

func (s *GormStore) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.tx(ctx).Where("entry_id IN ?", ids).Delete(&memoryRecord{})
	if res.Error != nil {
		return 0, types.NewError(types.ErrStorage, "delete entries").WithCause(res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) ClearSession(ctx context.Context, sessionID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var recs []memoryRecord
		if err := tx.Table(s.table).Select("entry_id").Where("session_id = ?", sessionID).Find(&recs).Error; err != nil {
			return err
		}
		for _, r := range recs {
			ids = append(ids, r.EntryID)
		}
		return tx.Table(s.table).Where("session_id = ?", sessionID).Delete(&memoryRecord{}).Error
	})
	if err != nil {
		return nil, types.NewErrorf(types.ErrStorage, "clear session %s", sessionID).WithCause(err)
	}
	s.logger.Debug("session cleared",
		zap.String("session_id", sessionID),
		zap.Int("entries", len(ids)))
	return ids, nil
}

func (s *GormStore) ListEmbedded(ctx context.Context) ([]*types.MemoryEntry, error) {
	var recs []memoryRecord
	if err := s.tx(ctx).Where("embedding IS NOT NULL").Find(&recs).Error; err != nil {
		return nil, types.NewError(types.ErrStorage, "list embedded entries").WithCause(err)
	}
	out := make([]*types.MemoryEntry, 0, len(recs))
	for i := range recs {
		entry, err := fromRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *GormStore) Stats(ctx context.Context) (types.MemoryStats, error) {
	var total int64
	if err := s.tx(ctx).Count(&total).Error; err != nil {
		return types.MemoryStats{}, types.NewError(types.ErrStorage, "count entries").WithCause(err)
	}
	var sessions int64
	if err := s.tx(ctx).Distinct("session_id").Count(&sessions).Error; err != nil {
		return types.MemoryStats{}, types.NewError(types.ErrStorage, "count sessions").WithCause(err)
	}
	return types.MemoryStats{
		SessionCount: int(sessions),
		MessageCount: int(total),
	}, nil
}

// Close is a no-op: the *gorm.DB lifecycle belongs to the caller.
func (s *GormStore) Close() error { return nil }

func toRecord(entry *types.MemoryEntry) (*memoryRecord, error) {
	rec := &memoryRecord{
		EntryID:   entry.ID,
		SessionID: entry.SessionID,
		UserID:    entry.UserID,
		Role:      string(entry.Role),
		Content:   entry.Content,
		CreatedAt: entry.CreatedAt,
	}
	if entry.Metadata != nil {
		blob, err := json.Marshal(entry.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		rec.Metadata = blob
	}
	if entry.Embedding != nil {
		blob, err := json.Marshal(entry.Embedding)
		if err != nil {
			return nil, fmt.Errorf("marshal embedding: %w", err)
		}
		rec.Embedding = blob
	}
	return rec, nil
}

func fromRecord(rec *memoryRecord) (*types.MemoryEntry, error) {
	entry := &types.MemoryEntry{
		ID:        rec.EntryID,
		SessionID: rec.SessionID,
		UserID:    rec.UserID,
		Role:      types.Role(rec.Role),
		Content:   rec.Content,
		CreatedAt: rec.CreatedAt,
	}
	if len(rec.Metadata) > 0 {
		if err := json.Unmarshal(rec.Metadata, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if len(rec.Embedding) > 0 {
		if err := json.Unmarshal(rec.Embedding, &entry.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}
	return entry, nil
}

var _ Backend = (*GormStore)(nil)
