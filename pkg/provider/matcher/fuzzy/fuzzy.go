// Package fuzzy implements the lyrics matcher over an in-memory songbook
// loaded from a YAML file. It needs no database: exact substring matching is
// tried first, then a Jaro-Winkler pass catches recognition slips ("crep" for
// "creep") that a literal match would miss.
package fuzzy

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/antzucaro/matchr"
	"gopkg.in/yaml.v3"

	"github.com/earworm-audio/earworm/pkg/provider/matcher"
)

const defaultFuzzyThreshold = 0.90

// Compile-time interface check.
var _ matcher.Provider = (*Matcher)(nil)

// songEntry is one song in the YAML songbook.
type songEntry struct {
	Title  string `yaml:"title"`
	Artist string `yaml:"artist"`
	Lyrics string `yaml:"lyrics"`
}

// songbook is the YAML file layout.
type songbook struct {
	Songs []songEntry `yaml:"songs"`
}

// song is the indexed in-memory form.
type song struct {
	id     int64
	title  string
	lyrics string   // normalized: lowercase, single spaces
	tokens []string // lyrics split into words
}

// Matcher holds the songbook in memory. It is read-only after construction
// and therefore safe for concurrent use.
type Matcher struct {
	songs     []song
	threshold float64
}

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithThreshold sets the minimum Jaro-Winkler score for the fuzzy fallback.
// Default: 0.90.
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) { m.threshold = threshold }
}

// Load reads a YAML songbook from path and builds a Matcher.
func Load(path string, opts ...Option) (*Matcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fuzzy matcher: read songbook %q: %w", path, err)
	}
	m, err := Parse(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("fuzzy matcher: songbook %q: %w", path, err)
	}
	return m, nil
}

// Parse builds a Matcher from raw YAML songbook data.
func Parse(data []byte, opts ...Option) (*Matcher, error) {
	var book songbook
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&book); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if len(book.Songs) == 0 {
		return nil, fmt.Errorf("songbook contains no songs")
	}

	m := &Matcher{threshold: defaultFuzzyThreshold}
	for i, entry := range book.Songs {
		if entry.Title == "" {
			return nil, fmt.Errorf("songs[%d] has no title", i)
		}
		normalized := normalize(entry.Lyrics)
		m.songs = append(m.songs, song{
			id:     int64(i + 1),
			title:  entry.Title,
			lyrics: normalized,
			tokens: strings.Fields(normalized),
		})
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// normalize lowercases and collapses whitespace so stored lyrics line up with
// the token stream the recognition stage produces.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Len returns the number of songs in the songbook.
func (m *Matcher) Len() int { return len(m.songs) }

// Search returns songs whose lyrics contain the window, exactly or within the
// fuzzy threshold. Exact matches rank before fuzzy ones; ties keep songbook
// order.
func (m *Matcher) Search(ctx context.Context, tokens []string) ([]matcher.Song, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fuzzy matcher: %w", err)
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	phrase := strings.ToLower(strings.Join(tokens, " "))

	var exact, fuzzy []matcher.Song
	for _, s := range m.songs {
		if strings.Contains(s.lyrics, phrase) {
			exact = append(exact, matcher.Song{ID: s.id, Title: s.title})
			continue
		}
		if m.windowScore(s, len(tokens), phrase) >= m.threshold {
			fuzzy = append(fuzzy, matcher.Song{ID: s.id, Title: s.title})
		}
	}
	return append(exact, fuzzy...), nil
}

// windowScore slides a window of n tokens across the song's lyrics and
// returns the best Jaro-Winkler similarity against the phrase.
func (m *Matcher) windowScore(s song, n int, phrase string) float64 {
	if len(s.tokens) < n {
		return matchr.JaroWinkler(strings.Join(s.tokens, " "), phrase, false)
	}
	best := 0.0
	for i := 0; i+n <= len(s.tokens); i++ {
		candidate := strings.Join(s.tokens[i:i+n], " ")
		if score := matchr.JaroWinkler(candidate, phrase, false); score > best {
			best = score
		}
	}
	return best
}
