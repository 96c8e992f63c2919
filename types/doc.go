// Copyright 2025-2026 Astreus Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package types provides core types used across the astreus memory and
retrieval engine. This package has ZERO dependencies on other astreus
packages to avoid circular imports. All other packages should import
types from here.

# Core types

  - MemoryEntry — one conversation record, partitioned by session
  - Document / Chunk — ingested source material and its retrieval units
  - SearchResult — a scored retrieval hit resolved back to its source
  - Error — structured error taxonomy shared by every component
  - Tool / ParameterSchema — the normalized plugin contract consumed by
    the surrounding agent (execution is out of scope here)
  - Parser — the external document parser contract (consumed, not
    implemented)
*/
package types
