package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/earworm-audio/earworm/pkg/provider/matcher/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if EARWORM_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("EARWORM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("EARWORM_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestMatcher creates a fresh [postgres.Matcher] with a clean songs table.
// It calls t.Cleanup to close the matcher when the test finishes.
func newTestMatcher(t *testing.T, opts ...postgres.Option) *postgres.Matcher {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS songs`); err != nil {
		t.Fatalf("drop songs table: %v", err)
	}

	m, err := postgres.New(ctx, dsn, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func seedSongs(t *testing.T, m *postgres.Matcher) {
	t.Helper()
	ctx := context.Background()
	songs := []struct{ title, artist, lyrics string }{
		{"Karma Police", "Radiohead", "Karma police arrest this man he talks in maths"},
		{"Creep", "Radiohead", "But I'm a creep I'm a weirdo"},
		{"No Surprises", "Radiohead", "No alarms and no surprises"},
	}
	for _, s := range songs {
		if _, err := m.Add(ctx, s.title, s.artist, s.lyrics); err != nil {
			t.Fatalf("Add %q: %v", s.title, err)
		}
	}
}

func TestSearchFindsContiguousPhrase(t *testing.T) {
	m := newTestMatcher(t)
	seedSongs(t, m)

	got, err := m.Search(context.Background(), []string{"arrest", "this", "man"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Karma Police" {
		t.Fatalf("Search = %+v, want one Karma Police match", got)
	}
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	m := newTestMatcher(t)
	seedSongs(t, m)

	// Lyrics are normalized to lowercase on insert; tokens arrive lowercase
	// from the recognizer, but mixed case must still hit.
	got, err := m.Search(context.Background(), []string{"No", "ALARMS"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Title != "No Surprises" {
		t.Fatalf("Search = %+v, want one No Surprises match", got)
	}
}

func TestSearchMiss(t *testing.T) {
	m := newTestMatcher(t)
	seedSongs(t, m)

	got, err := m.Search(context.Background(), []string{"never", "sung", "anywhere"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Search = %+v, want no matches", got)
	}
}

func TestSearchEmptyWindow(t *testing.T) {
	m := newTestMatcher(t)

	got, err := m.Search(context.Background(), nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got != nil {
		t.Fatalf("Search = %+v, want nil for empty window", got)
	}
}

func TestSearchRespectsLimit(t *testing.T) {
	m := newTestMatcher(t, postgres.WithLimit(1))
	seedSongs(t, m)

	// Containment matching: the substring "i" hits all three seeded songs;
	// the limit caps the result.
	got, err := m.Search(context.Background(), []string{"i"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d matches, want 1 with limit 1", len(got))
	}
}

func TestPing(t *testing.T) {
	m := newTestMatcher(t)
	if err := m.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
