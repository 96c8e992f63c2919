// Copyright 2025-2026 Astreus Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# Overview

Package rag implements the retrieval-augmented-generation engine: an
ingestion pipeline (chunking, embedding, persistence, indexing) and a
query pipeline returning ranked, attributed results.

# Core interfaces/types

  - Chunker — deterministic fixed-size overlapping text windows
  - VectorIndex / FlatIndex — exact nearest-neighbor search over
    embeddings with threshold and pre-filtering
  - DocumentStore — persistence for documents and their chunks
    (in-memory and GORM-backed implementations)
  - RAG — the composed engine: Ingest / Search / Reindex /
    RemoveDocument
  - Tokenizer — optional token counting stamped into chunk metadata

# Contract choices

Similarity scores are cosine similarity normalized to [0,1] via
(cosine+1)/2; every threshold in the engine compares against the
normalized score. Ingestion is partial-success: when embedding fails
for a subset of chunks the document is persisted with those chunks
marked unindexed and a PartialIngestionError reports them; Reindex
retries the unindexed remainder.
*/
package rag
