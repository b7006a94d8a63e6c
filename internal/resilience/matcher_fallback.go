package resilience

import (
	"context"

	"github.com/earworm-audio/earworm/pkg/provider/matcher"
)

// MatcherFallback implements [matcher.Provider] with automatic failover across
// multiple lyrics corpora. Each backend has its own circuit breaker, so a
// database outage degrades to the local songbook instead of stalling the
// window.
type MatcherFallback struct {
	group *FallbackGroup[matcher.Provider]
}

// Compile-time interface assertion.
var _ matcher.Provider = (*MatcherFallback)(nil)

// NewMatcherFallback creates a [MatcherFallback] with primary as the preferred
// corpus.
func NewMatcherFallback(primary matcher.Provider, primaryName string, cfg FallbackConfig) *MatcherFallback {
	return &MatcherFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional corpus as a fallback.
func (f *MatcherFallback) AddFallback(name string, provider matcher.Provider) {
	f.group.AddFallback(name, provider)
}

// Search queries the first healthy corpus. A miss is a successful result, not
// a failure: only errors advance to the next backend.
func (f *MatcherFallback) Search(ctx context.Context, tokens []string) ([]matcher.Song, error) {
	return ExecuteWithResult(f.group, func(p matcher.Provider) ([]matcher.Song, error) {
		return p.Search(ctx, tokens)
	})
}
