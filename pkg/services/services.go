// Package services defines the contracts for the pluggable collaborators
// the federation core depends on: concept extraction, embedding generation
// and knowledge synthesis. The core treats all three as black boxes; a nil
// interface value means the capability is unavailable and call sites
// degrade rather than probe.
package services

import "context"

// ConceptExtractor derives a bounded list of short terms from text.
// Best-effort: an empty list is a valid result, not a failure.
type ConceptExtractor interface {
	Extract(ctx context.Context, text string) ([]string, error)
}

// Embedder turns text into a fixed-length numeric vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Synthesizer produces natural-language text from concepts and a query.
// The instruction parameter is an operational directive passed to the
// service verbatim (e.g. "do not invent facts"); it is not a local
// guarantee.
type Synthesizer interface {
	Synthesize(ctx context.Context, concepts []string, query string, instruction string) (string, error)
}

// ThemeProvider maps document titles to cross-document theme labels.
// Optional; absence of themes is not an error.
type ThemeProvider interface {
	ThemesFor(title string) []string
}
