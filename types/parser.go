package types

import "context"

// ParseOptions carries the flags recognized by external document
// parsers (PDF extractors and the like).
type ParseOptions struct {
	TitleFromFilename bool           `json:"title_from_filename,omitempty"`
	ExtractImages     bool           `json:"extract_images,omitempty"`
	OCREnabled        bool           `json:"ocr_enabled,omitempty"`
	Language          string         `json:"language,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// Parser is the external document parser contract. The engine consumes
// parsed documents; it never implements parsing itself.
type Parser interface {
	Parse(ctx context.Context, source string, opts ParseOptions) (*Document, error)
}
