// Package mock provides a scriptable lyrics matcher for tests.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/earworm-audio/earworm/pkg/provider/matcher"
)

// Matcher is a scripted implementation of [matcher.Provider]. Map the exact
// window text (tokens joined by spaces) to the songs it should return.
type Matcher struct {
	mu      sync.Mutex
	results map[string][]matcher.Song
	err     error

	// Queries records every searched window in call order.
	Queries []string
}

var _ matcher.Provider = (*Matcher)(nil)

// New creates an empty Matcher: every search misses.
func New() *Matcher {
	return &Matcher{results: make(map[string][]matcher.Song)}
}

// MatchOn registers songs to return when the window equals text.
func (m *Matcher) MatchOn(text string, songs ...matcher.Song) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[text] = songs
}

// FailWith makes every subsequent Search return err.
func (m *Matcher) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Search consults the scripted results.
func (m *Matcher) Search(_ context.Context, tokens []string) ([]matcher.Song, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	window := strings.Join(tokens, " ")
	m.Queries = append(m.Queries, window)
	if m.err != nil {
		return nil, m.err
	}
	return m.results[window], nil
}
