// Package matcher defines the Provider interface for lyrics corpus matching.
//
// A matcher answers one question: does this ordered window of spoken words
// appear inside the lyrics of any known song? Matching is case-insensitive
// containment against the concatenated lyrics text; result order is defined
// by the implementation and the pipeline always takes the first candidate.
package matcher

import "context"

// Song identifies a matched song in the corpus.
type Song struct {
	// ID is the corpus-internal identifier.
	ID int64

	// Title is the song title as stored in the corpus, used to locate the
	// track on the playback service.
	Title string
}

// Provider is the abstraction over any lyrics corpus backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Search returns all songs whose lyrics contain the window tokens joined
	// by single spaces, case-insensitively, in implementation-defined order.
	// An empty slice means no match. Errors are transient unless the context
	// was cancelled.
	Search(ctx context.Context, tokens []string) ([]Song, error)
}
