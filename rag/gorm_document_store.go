package rag

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

// GormDocumentStoreConfig configures the relational document store.
type GormDocumentStoreConfig struct {
	// TableName names the document table; chunks live in
	// TableName+"_chunks". Default "rag_documents".
	TableName string `yaml:"table_name" json:"table_name"`
}

// DefaultGormDocumentStoreConfig returns the default table naming.
func DefaultGormDocumentStoreConfig() GormDocumentStoreConfig {
	return GormDocumentStoreConfig{TableName: "rag_documents"}
}

type documentRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	Title     string
	Content   string
	Metadata  []byte
	CreatedAt time.Time
}

type chunkRecord struct {
	RowID      int64  `gorm:"primaryKey;autoIncrement"`
	ChunkID    string `gorm:"uniqueIndex;size:64"`
	DocumentID string `gorm:"index;size:64"`
	Position   int
	Content    string
	Metadata   []byte
	Embedding  []byte
}

// GormDocumentStore is a DocumentStore backed by any GORM-supported
// database. The engine assumes nothing beyond key lookup and range
// scans, so every supported driver works; tests run against the
// pure-Go sqlite driver.
type GormDocumentStore struct {
	db         *gorm.DB
	docTable   string
	chunkTable string
	logger     *zap.Logger
}

// NewGormDocumentStore creates the store and migrates its two tables.
func NewGormDocumentStore(db *gorm.DB, config GormDocumentStoreConfig, logger *zap.Logger) (*GormDocumentStore, error) {
	if db == nil {
		return nil, types.NewError(types.ErrConfiguration, "db is required")
	}
	if config.TableName == "" {
		config.TableName = "rag_documents"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &GormDocumentStore{
		db:         db,
		docTable:   config.TableName,
		chunkTable: config.TableName + "_chunks",
		logger:     logger.With(zap.String("component", "document_store_gorm")),
	}

	if err := db.Table(s.docTable).AutoMigrate(&documentRecord{}); err != nil {
		return nil, types.NewError(types.ErrStorage, "migrate document table").WithCause(err)
	}
	if err := db.Table(s.chunkTable).AutoMigrate(&chunkRecord{}); err != nil {
		return nil, types.NewError(types.ErrStorage, "migrate chunk table").WithCause(err)
	}
	return s, nil
}

func (s *GormDocumentStore) docs(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.docTable)
}

func (s *GormDocumentStore) chunks(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.chunkTable)
}

func (s *GormDocumentStore) PutDocument(ctx context.Context, doc *types.Document) error {
	if doc == nil || doc.ID == "" {
		return types.NewError(types.ErrConfiguration, "document with id is required")
	}

	metadata, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	records := make([]chunkRecord, 0, len(doc.Chunks))
	for i := range doc.Chunks {
		chunkMeta, err := marshalMetadata(doc.Chunks[i].Metadata)
		if err != nil {
			return err
		}
		embedding, err := marshalEmbedding(doc.Chunks[i].Embedding)
		if err != nil {
			return err
		}
		records = append(records, chunkRecord{
			ChunkID:    doc.Chunks[i].ID,
			DocumentID: doc.ID,
			Position:   i,
			Content:    doc.Chunks[i].Content,
			Metadata:   chunkMeta,
			Embedding:  embedding,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(s.docTable).Create(&documentRecord{
			ID:        doc.ID,
			Title:     doc.Title,
			Content:   doc.Content,
			Metadata:  metadata,
			CreatedAt: doc.CreatedAt,
		}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.Table(s.chunkTable).Create(&records).Error
	})
	if err != nil {
		return types.NewErrorf(types.ErrStorage, "persist document %s", doc.ID).WithCause(err)
	}

	s.logger.Debug("document stored",
		zap.String("document_id", doc.ID),
		zap.Int("chunks", len(records)))
	return nil
}

func (s *GormDocumentStore) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	var rec documentRecord
	if err := s.docs(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewErrorf(types.ErrNotFound, "document %s not found", id)
		}
		return nil, types.NewError(types.ErrStorage, "load document").WithCause(err)
	}

	var chunkRecs []chunkRecord
	if err := s.chunks(ctx).Where("document_id = ?", id).Order("position asc").Find(&chunkRecs).Error; err != nil {
		return nil, types.NewError(types.ErrStorage, "load chunks").WithCause(err)
	}

	doc := &types.Document{
		ID:        rec.ID,
		Title:     rec.Title,
		Content:   rec.Content,
		CreatedAt: rec.CreatedAt,
		Chunks:    make([]types.Chunk, 0, len(chunkRecs)),
	}
	if err := unmarshalMetadata(rec.Metadata, &doc.Metadata); err != nil {
		return nil, err
	}
	for i := range chunkRecs {
		chunk, err := fromChunkRecord(&chunkRecs[i])
		if err != nil {
			return nil, err
		}
		doc.Chunks = append(doc.Chunks, *chunk)
	}
	return doc, nil
}

func (s *GormDocumentStore) GetChunk(ctx context.Context, id string) (*types.Chunk, error) {
	var rec chunkRecord
	if err := s.chunks(ctx).Where("chunk_id = ?", id).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewErrorf(types.ErrNotFound, "chunk %s not found", id)
		}
		return nil, types.NewError(types.ErrStorage, "load chunk").WithCause(err)
	}

	return fromChunkRecord(&rec)
}

func (s *GormDocumentStore) UpdateChunkEmbedding(ctx context.Context, chunkID string, vector []float32) error {
	blob, err := marshalEmbedding(vector)
	if err != nil {
		return err
	}
	res := s.chunks(ctx).Where("chunk_id = ?", chunkID).Update("embedding", blob)
	if res.Error != nil {
		return types.NewError(types.ErrStorage, "update chunk embedding").WithCause(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewErrorf(types.ErrNotFound, "chunk %s not found", chunkID)
	}
	return nil
}

func (s *GormDocumentStore) ListEmbeddedChunks(ctx context.Context) ([]types.Chunk, error) {
	var chunkRecs []chunkRecord
	if err := s.chunks(ctx).Where("embedding IS NOT NULL").Find(&chunkRecs).Error; err != nil {
		return nil, types.NewError(types.ErrStorage, "list embedded chunks").WithCause(err)
	}

	out := make([]types.Chunk, 0, len(chunkRecs))
	for i := range chunkRecs {
		chunk, err := fromChunkRecord(&chunkRecs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *chunk)
	}
	return out, nil
}

func (s *GormDocumentStore) DeleteDocument(ctx context.Context, id string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chunkRecs []chunkRecord
		if err := tx.Table(s.chunkTable).Select("chunk_id").Where("document_id = ?", id).Find(&chunkRecs).Error; err != nil {
			return err
		}
		for _, cr := range chunkRecs {
			ids = append(ids, cr.ChunkID)
		}

		res := tx.Table(s.docTable).Where("id = ?", id).Delete(&documentRecord{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return types.NewErrorf(types.ErrNotFound, "document %s not found", id)
		}
		return tx.Table(s.chunkTable).Where("document_id = ?", id).Delete(&chunkRecord{}).Error
	})
	if err != nil {
		if types.IsCode(err, types.ErrNotFound) {
			return nil, err
		}
		return nil, types.NewErrorf(types.ErrStorage, "delete document %s", id).WithCause(err)
	}

	s.logger.Debug("document deleted",
		zap.String("document_id", id),
		zap.Int("chunks", len(ids)))
	return ids, nil
}

func (s *GormDocumentStore) AmendMetadata(ctx context.Context, id string, metadata map[string]any) error {
	var rec documentRecord
	if err := s.docs(ctx).Select("id", "metadata").Where("id = ?", id).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.NewErrorf(types.ErrNotFound, "document %s not found", id)
		}
		return types.NewError(types.ErrStorage, "load document").WithCause(err)
	}

	var merged map[string]any
	if err := unmarshalMetadata(rec.Metadata, &merged); err != nil {
		return err
	}
	if merged == nil {
		merged = make(map[string]any, len(metadata))
	}
	for k, v := range metadata {
		merged[k] = v
	}

	blob, err := marshalMetadata(merged)
	if err != nil {
		return err
	}
	if err := s.docs(ctx).Where("id = ?", id).Update("metadata", blob).Error; err != nil {
		return types.NewError(types.ErrStorage, "amend metadata").WithCause(err)
	}
	return nil
}

func (s *GormDocumentStore) MarkChunkIndexed(ctx context.Context, chunkID string, indexed bool) error {
	var rec chunkRecord
	if err := s.chunks(ctx).Where("chunk_id = ?", chunkID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.NewErrorf(types.ErrNotFound, "chunk %s not found", chunkID)
		}
		return types.NewError(types.ErrStorage, "load chunk").WithCause(err)
	}

	var metadata map[string]any
	if err := unmarshalMetadata(rec.Metadata, &metadata); err != nil {
		return err
	}
	if metadata == nil {
		metadata = make(map[string]any, 1)
	}
	metadata["indexed"] = indexed

	blob, err := marshalMetadata(metadata)
	if err != nil {
		return err
	}
	if err := s.chunks(ctx).Where("chunk_id = ?", chunkID).Update("metadata", blob).Error; err != nil {
		return types.NewError(types.ErrStorage, "mark chunk indexed").WithCause(err)
	}
	return nil
}

func (s *GormDocumentStore) CountDocuments(ctx context.Context) (int, error) {
	var count int64
	if err := s.docs(ctx).Count(&count).Error; err != nil {
		return 0, types.NewError(types.ErrStorage, "count documents").WithCause(err)
	}
	return int(count), nil
}

// Close is a no-op: the *gorm.DB lifecycle belongs to the caller.
func (s *GormDocumentStore) Close() error { return nil }

func fromChunkRecord(rec *chunkRecord) (*types.Chunk, error) {
	chunk := &types.Chunk{
		ID:         rec.ChunkID,
		DocumentID: rec.DocumentID,
		Content:    rec.Content,
	}
	if err := unmarshalMetadata(rec.Metadata, &chunk.Metadata); err != nil {
		return nil, err
	}
	if len(rec.Embedding) > 0 {
		if err := json.Unmarshal(rec.Embedding, &chunk.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}
	return chunk, nil
}

func marshalEmbedding(vector []float32) ([]byte, error) {
	if vector == nil {
		return nil, nil
	}
	blob, err := json.Marshal(vector)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding: %w", err)
	}
	return blob, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	blob, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return blob, nil
}

func unmarshalMetadata(blob []byte, out *map[string]any) error {
	if len(blob) == 0 {
		return nil
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return fmt.Errorf("unmarshal metadata: %w", err)
	}
	return nil
}
