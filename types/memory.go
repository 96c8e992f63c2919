package types

import "time"

// Role represents the role of a conversation participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether the role is one of the recognized values.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// MemoryEntry represents a single conversation record in the memory
// store. Entries are append-only: created once, never mutated, removed
// only by explicit delete or clear. A session is a logical partition,
// not a separate container; entry ids are globally unique.
type MemoryEntry struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id,omitempty"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Clone returns a deep copy so stored entries never alias caller state.
func (e *MemoryEntry) Clone() *MemoryEntry {
	if e == nil {
		return nil
	}
	out := *e
	if e.Metadata != nil {
		out.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	if e.Embedding != nil {
		out.Embedding = append([]float32(nil), e.Embedding...)
	}
	return &out
}

// MemoryStats provides statistics about the live memory store.
// Computed per call, never cached.
type MemoryStats struct {
	SessionCount int `json:"session_count"`
	MessageCount int `json:"message_count"`
}
