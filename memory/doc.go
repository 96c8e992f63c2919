// Copyright 2025-2026 Astreus Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# Overview

Package memory implements conversation memory: append-only session
transcripts with optional semantic search over their embeddings, and a
session manager that hands out scoped handles.

# Core interfaces/types

  - Backend — pluggable persistence for entries (in-memory, GORM and
    Redis implementations ship with the package)
  - Memory — the engine: Add / GetBySession / SearchSimilar / Delete /
    Clear / Stats, with per-session FIFO eviction
  - SessionManager / Session — scoped handles binding a session id
    (and optionally a user id) to the engine

# Contract choices

Entries within a session are ordered by insertion, not by timestamp:
each backend preserves its native append order, so two entries created
in the same nanosecond still read back in the order they were added.
Embeddings are computed before the entry is persisted and outside all
store locks; when the provider fails the entry is stored anyway and
Add returns the id together with the provider error.
*/
package memory
