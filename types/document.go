package types

import "time"

// Document represents ingested source material. Immutable once
// ingested except for metadata amendment; its id is unique within one
// retrieval engine instance.
type Document struct {
	ID        string         `json:"id"`
	Title     string         `json:"title,omitempty"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Chunks    []Chunk        `json:"chunks,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Chunk is a bounded, overlapping substring of a Document's content,
// the unit of retrieval. DocumentID is a non-owning back-reference
// resolved through the document store; chunks never form a live
// bidirectional object graph with their document.
type Chunk struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	// Embedding is the chunk's vector, persisted so the index can be
	// rebuilt from the store after a restart. Nil when the embedding
	// call failed at ingestion time.
	Embedding []float32 `json:"embedding,omitempty"`
}

// DocumentRef identifies the owning document of a retrieval hit
// without carrying its full content.
type DocumentRef struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// SearchResult is a scored retrieval hit. Exactly one of Chunk or
// Entry is set: Chunk for document retrieval (with Document naming the
// owner), Entry for memory retrieval. Transient: produced per query,
// never persisted.
//
// Score is cosine similarity normalized to [0,1] via (cosine+1)/2.
// Thresholds everywhere in the engine are compared against this
// normalized score.
type SearchResult struct {
	Score    float64      `json:"score"`
	Chunk    *Chunk       `json:"chunk,omitempty"`
	Document *DocumentRef `json:"document,omitempty"`
	Entry    *MemoryEntry `json:"entry,omitempty"`
}
