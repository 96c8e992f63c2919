package embedding

import "context"

// Provider is the unified embedding provider interface. All vectors
// returned by one provider instance share the same dimension.
//
// Determinism is provider-dependent: the same text may yield identical
// or only near-identical vectors across calls, and the engine does not
// rely on exact repeatability.
type Provider interface {
	// Embed generates the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension, fixed per instance.
	Dimensions() int

	// Name returns the provider name.
	Name() string
}
