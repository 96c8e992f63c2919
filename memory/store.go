package memory

import (
	"context"

	"github.com/astreus-ai/astreus-go/types"
)

// Backend is the persistence contract the memory engine builds on.
// Implementations must preserve per-session insertion order: entries
// read back in the order they were inserted regardless of timestamp
// resolution.
type Backend interface {
	// Insert appends an entry. The entry carries a unique id; inserting
	// a duplicate id is a STORAGE error.
	Insert(ctx context.Context, entry *types.MemoryEntry) error

	// Get returns the entry with the given id, or a NOT_FOUND error.
	Get(ctx context.Context, id string) (*types.MemoryEntry, error)

	// ListBySession returns a session's entries in insertion order,
	// oldest first. limit > 0 keeps only the most recent limit entries
	// (still oldest first); limit <= 0 returns all. An unknown session
	// yields an empty slice, not an error.
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*types.MemoryEntry, error)

	// OldestIDs returns the ids of the n oldest entries in a session,
	// oldest first. Fewer than n exist, fewer are returned.
	OldestIDs(ctx context.Context, sessionID string, n int) ([]string, error)

	// Count returns the number of entries in a session.
	Count(ctx context.Context, sessionID string) (int, error)

	// Delete removes the given entries and reports how many existed.
	// Missing ids are skipped, not errors.
	Delete(ctx context.Context, ids []string) (int, error)

	// ClearSession removes every entry in a session and returns the
	// removed ids. Clearing an unknown session returns an empty slice.
	ClearSession(ctx context.Context, sessionID string) ([]string, error)

	// ListEmbedded returns every entry that carries an embedding, in no
	// particular order. Used to rebuild the vector index from persisted
	// vectors at startup.
	ListEmbedded(ctx context.Context) ([]*types.MemoryEntry, error)

	// Stats reports live totals across all sessions.
	Stats(ctx context.Context) (types.MemoryStats, error)

	// Close releases backend resources.
	Close() error
}
