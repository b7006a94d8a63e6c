package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/earworm-audio/earworm/pkg/provider/matcher"
	matchmock "github.com/earworm-audio/earworm/pkg/provider/matcher/mock"
	"github.com/earworm-audio/earworm/pkg/provider/player"
	playmock "github.com/earworm-audio/earworm/pkg/provider/player/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func newSearchFixture(opts ...SearchOption) (*WordBuffer, *StopSignal, *matchmock.Matcher, *playmock.Player, *SearchStage) {
	b := NewWordBuffer()
	stop := NewStopSignal()
	corpus := matchmock.New()
	p := playmock.New()
	base := []SearchOption{WithVerifyDelay(time.Millisecond)}
	stage := NewSearchStage(b, stop, corpus, p, nil, append(base, opts...)...)
	return b, stop, corpus, p, stage
}

func runSearch(s *SearchStage) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()
	return errCh
}

// ── sliding window ───────────────────────────────────────────────────────────

func TestSearchSlidingEviction(t *testing.T) {
	t.Parallel()
	b, stop, corpus, p, stage := newSearchFixture()

	// No match for the first window, match after the oldest token slides out.
	corpus.MatchOn("b c d e f", matcher.Song{ID: 7, Title: "Let Down"})
	p.Tracks["Let Down"] = &player.Track{ID: "t7", Name: "Let Down"}
	p.VerifyResult = true

	b.Append("a", "b", "c", "d", "e", "f")
	if err := <-runSearch(stage); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(corpus.Queries) != 2 {
		t.Fatalf("corpus queries = %d, want 2", len(corpus.Queries))
	}
	if corpus.Queries[0] != "a b c d e" {
		t.Errorf("first query = %q, want %q", corpus.Queries[0], "a b c d e")
	}
	if corpus.Queries[1] != "b c d e f" {
		t.Errorf("second query = %q, want %q", corpus.Queries[1], "b c d e f")
	}
	if !stop.Stopped() {
		t.Error("verified playback did not trip the stop signal")
	}
}

func TestSearchWindowBound(t *testing.T) {
	t.Parallel()
	_, stop, corpus, p, _ := newSearchFixture()
	b := NewWordBuffer()
	stage := NewSearchStage(b, stop, corpus, p, nil, WithVerifyDelay(time.Millisecond))

	b.Append("a", "b", "c", "d", "e", "f", "g", "h")
	errCh := runSearch(stage)

	// Let the stage consume everything, then cut the stream.
	time.Sleep(20 * time.Millisecond)
	b.Terminate()
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(corpus.Queries) != 4 {
		t.Fatalf("corpus queries = %d, want 4", len(corpus.Queries))
	}
	for i, q := range corpus.Queries {
		if got := len(strings.Fields(q)); got != DefaultWindowSize {
			t.Errorf("query %d used %d tokens, want %d", i, got, DefaultWindowSize)
		}
	}
	if len(stage.Window()) > DefaultWindowSize {
		t.Errorf("window length %d exceeds bound %d", len(stage.Window()), DefaultWindowSize)
	}
}

// ── termination ──────────────────────────────────────────────────────────────

func TestSearchExitsWhenStreamEndsBelowWindowSize(t *testing.T) {
	t.Parallel()
	b, _, corpus, _, stage := newSearchFixture()

	b.Append("just", "two")
	errCh := runSearch(stage)

	select {
	case <-errCh:
		t.Fatal("stage exited before termination marker")
	case <-time.After(20 * time.Millisecond):
	}

	b.Terminate()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("stage did not exit after termination marker")
	}
	if len(corpus.Queries) != 0 {
		t.Errorf("stage searched %d times with a never-full window, want 0", len(corpus.Queries))
	}
}

// ── playback outcomes ────────────────────────────────────────────────────────

func TestSearchMatchTriggersPlaybackOnce(t *testing.T) {
	t.Parallel()
	b, stop, corpus, p, stage := newSearchFixture()

	corpus.MatchOn("a b c d e", matcher.Song{ID: 1, Title: "Airbag"})
	p.Tracks["Airbag"] = &player.Track{ID: "t1", Name: "Airbag"}
	p.VerifyResult = true

	b.Append("a", "b", "c", "d", "e")
	if err := <-runSearch(stage); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.FindCalls != 1 || p.StartCalls != 1 || p.VerifyCalls != 1 {
		t.Errorf("player calls find/start/verify = %d/%d/%d, want 1/1/1",
			p.FindCalls, p.StartCalls, p.VerifyCalls)
	}
	if !stop.Stopped() {
		t.Error("stop signal not tripped on verified playback")
	}
}

func TestSearchFailedVerificationKeepsSearching(t *testing.T) {
	t.Parallel()
	b, stop, corpus, p, stage := newSearchFixture()

	corpus.MatchOn("a b c d e", matcher.Song{ID: 1, Title: "Airbag"})
	p.Tracks["Airbag"] = &player.Track{ID: "t1", Name: "Airbag"}
	p.VerifyResult = false // started but never heard

	b.Append("a", "b", "c", "d", "e")
	errCh := runSearch(stage)

	// The stage must evict and go back to waiting, not stop.
	select {
	case <-errCh:
		t.Fatal("stage stopped after unverified playback")
	case <-time.After(20 * time.Millisecond):
	}
	if stop.Stopped() {
		t.Error("unverified playback tripped the stop signal")
	}

	b.Terminate()
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.VerifyCalls != 1 {
		t.Errorf("verify calls = %d, want 1", p.VerifyCalls)
	}
}

func TestSearchTrackNotFoundKeepsSearching(t *testing.T) {
	t.Parallel()
	b, stop, corpus, _, stage := newSearchFixture()

	corpus.MatchOn("a b c d e", matcher.Song{ID: 1, Title: "Unreleased"})
	// No track registered: FindTrack returns nil.

	b.Append("a", "b", "c", "d", "e", "x")
	errCh := runSearch(stage)

	select {
	case <-errCh:
		t.Fatal("stage stopped after track-not-found")
	case <-time.After(20 * time.Millisecond):
	}
	if stop.Stopped() {
		t.Error("track-not-found tripped the stop signal")
	}
	b.Terminate()
	<-errCh
}

func TestSearchAuthFaultIsFatal(t *testing.T) {
	t.Parallel()
	b, stop, corpus, p, stage := newSearchFixture()

	corpus.MatchOn("a b c d e", matcher.Song{ID: 1, Title: "Airbag"})
	p.FindErr = &player.AuthError{Err: errors.New("token expired")}

	b.Append("a", "b", "c", "d", "e")
	err := <-runSearch(stage)
	if !player.IsAuthError(err) {
		t.Fatalf("error = %v, want auth error", err)
	}
	if !stop.Stopped() {
		t.Error("auth fault did not trip the stop signal")
	}
}

func TestSearchTransientCorpusErrorEvicts(t *testing.T) {
	t.Parallel()
	b, stop, corpus, _, stage := newSearchFixture()

	corpus.FailWith(errors.New("connection reset"))

	b.Append("a", "b", "c", "d", "e", "f")
	errCh := runSearch(stage)

	select {
	case <-errCh:
		t.Fatal("stage stopped on a transient corpus error")
	case <-time.After(20 * time.Millisecond):
	}
	if stop.Stopped() {
		t.Error("transient corpus error tripped the stop signal")
	}

	b.Terminate()
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Both windows were attempted: the error path slides like a miss.
	if len(corpus.Queries) != 2 {
		t.Errorf("corpus queries = %d, want 2", len(corpus.Queries))
	}
}
