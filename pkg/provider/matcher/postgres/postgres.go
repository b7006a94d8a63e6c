// Package postgres implements the lyrics matcher on a PostgreSQL corpus.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/earworm-audio/earworm/pkg/provider/matcher"
)

// Compile-time interface check.
var _ matcher.Provider = (*Matcher)(nil)

// defaultLimit caps how many matching songs a single window query returns.
// The pipeline only plays the first result, but the rest are useful in logs.
const defaultLimit = 5

// ddlSongs is the corpus schema. Lyrics are stored lowercased without
// punctuation, the same normal form the recognition stage produces, so a
// plain substring match lines up token-for-token.
const ddlSongs = `
CREATE TABLE IF NOT EXISTS songs (
	id     BIGSERIAL PRIMARY KEY,
	title  TEXT NOT NULL,
	artist TEXT NOT NULL DEFAULT '',
	lyrics TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS songs_lyrics_trgm ON songs USING gin (lyrics gin_trgm_ops);
`

// ddlTrgm enables the trigram extension the lyrics index needs.
const ddlTrgm = `CREATE EXTENSION IF NOT EXISTS pg_trgm;`

// Matcher searches a songs table for lyrics containing the current window.
// All operations are safe for concurrent use; the pool handles connection
// management.
type Matcher struct {
	pool  *pgxpool.Pool
	limit int
}

// Option is a functional option for configuring a Matcher.
type Option func(*Matcher)

// WithLimit caps the number of songs returned per search. Defaults to 5.
func WithLimit(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.limit = n
		}
	}
}

// New creates a Matcher, establishes a connection pool to the PostgreSQL
// database at dsn, and runs [Migrate] to ensure the songs table exists.
func New(ctx context.Context, dsn string, opts ...Option) (*Matcher, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres matcher: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres matcher: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres matcher: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres matcher: migrate: %w", err)
	}

	m := &Matcher{pool: pool, limit: defaultLimit}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Migrate creates or ensures the songs table and its trigram index exist.
// It is idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlTrgm, ddlSongs} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}

// Close releases all connections held by the underlying pool.
func (m *Matcher) Close() error {
	m.pool.Close()
	return nil
}

// Ping verifies the database is reachable. Used by readiness probes.
func (m *Matcher) Ping(ctx context.Context) error {
	return m.pool.Ping(ctx)
}

// Search returns the songs whose lyrics contain the window as a contiguous
// phrase, in corpus order.
func (m *Matcher) Search(ctx context.Context, tokens []string) ([]matcher.Song, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	phrase := strings.Join(tokens, " ")

	q := `
		SELECT id, title
		FROM   songs
		WHERE  lyrics ILIKE '%' || $1 || '%'
		ORDER  BY id
		LIMIT  $2`

	rows, err := m.pool.Query(ctx, q, phrase, m.limit)
	if err != nil {
		return nil, fmt.Errorf("postgres matcher: search: %w", err)
	}

	songs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (matcher.Song, error) {
		var s matcher.Song
		if err := row.Scan(&s.ID, &s.Title); err != nil {
			return matcher.Song{}, err
		}
		return s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres matcher: scan rows: %w", err)
	}
	return songs, nil
}

// Add inserts a song into the corpus and returns its id. Lyrics are
// normalized to the recognition stage's form (lowercase, single spaces)
// before storage.
func (m *Matcher) Add(ctx context.Context, title, artist, lyrics string) (int64, error) {
	normalized := strings.Join(strings.Fields(strings.ToLower(lyrics)), " ")

	var id int64
	err := m.pool.QueryRow(ctx,
		`INSERT INTO songs (title, artist, lyrics) VALUES ($1, $2, $3) RETURNING id`,
		title, artist, normalized,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres matcher: add song: %w", err)
	}
	return id, nil
}
