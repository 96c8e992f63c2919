// Copyright 2025-2026 Astreus Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package embedding wraps external models that convert text into
fixed-dimension vectors.

The Provider interface is the only thing the rest of the engine sees:
Embed for a single text, EmbedBatch for ordered batches, Dimensions for
the vector size fixed per provider instance. Failures surface as
EMBEDDING_PROVIDER errors carrying the upstream cause; the engine never
substitutes a zero vector.

BaseProvider carries the shared HTTP plumbing (JSON transport,
client-side rate limiting, status-to-error mapping); concrete providers
such as OpenAIProvider layer their wire format on top of it.
*/
package embedding
