package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/earworm-audio/earworm/internal/handshake"
	"github.com/earworm-audio/earworm/internal/observe"
	"github.com/earworm-audio/earworm/pkg/provider/matcher"
	"github.com/earworm-audio/earworm/pkg/provider/player"
)

// DefaultWindowSize is the number of tokens in the sliding search window.
const DefaultWindowSize = 5

// DefaultVerifyDelay is how long the stage waits after requesting playback
// before checking that the track is actually playing.
const DefaultVerifyDelay = 2 * time.Second

// searchState enumerates the phases of the search loop. The stage is a
// state machine: exactly one stop-signal check guards each transition, so
// the cooperative-cancellation logic lives in one place instead of being
// re-tested at every nesting level.
type searchState int

const (
	// stateFilling waits for enough tokens to fill the window.
	stateFilling searchState = iota

	// stateSearching queries the corpus with a full window and handles the
	// match or the eviction.
	stateSearching

	// stateDraining is entered when the termination marker is observed:
	// the stage exits without further searching.
	stateDraining

	// stateStopped is terminal.
	stateStopped
)

// SearchStage is the second worker: it maintains the sliding token window,
// queries the lyrics corpus, and on a match drives the playback service.
// Verified playback is the pipeline's success condition and trips the stop
// signal; failed playback evicts the oldest token and keeps searching, the
// same as a corpus miss.
type SearchStage struct {
	words   *WordBuffer
	stop    *StopSignal
	corpus  matcher.Provider
	player  player.Provider
	hs      *handshake.Endpoint
	metrics *observe.Metrics

	windowSize  int
	verifyDelay time.Duration

	window []string
}

// SearchOption is a functional option for [NewSearchStage].
type SearchOption func(*SearchStage)

// WithWindowSize sets the sliding window capacity. Defaults to 5 tokens.
func WithWindowSize(n int) SearchOption {
	return func(s *SearchStage) { s.windowSize = n }
}

// WithVerifyDelay sets the pause between requesting playback and verifying
// it. Defaults to 2 s.
func WithVerifyDelay(d time.Duration) SearchOption {
	return func(s *SearchStage) { s.verifyDelay = d }
}

// WithHandshake attaches the worker endpoint of the device-selection
// channel. When present, Run performs the selection exchange before the
// search loop starts. Without it the player must already have a device set.
func WithHandshake(e *handshake.Endpoint) SearchOption {
	return func(s *SearchStage) { s.hs = e }
}

// NewSearchStage wires the stage to the word buffer, stop signal, corpus,
// and playback service. metrics may be nil in tests.
func NewSearchStage(words *WordBuffer, stop *StopSignal, corpus matcher.Provider, p player.Provider, metrics *observe.Metrics, opts ...SearchOption) *SearchStage {
	s := &SearchStage{
		words:       words,
		stop:        stop,
		corpus:      corpus,
		player:      p,
		metrics:     metrics,
		windowSize:  DefaultWindowSize,
		verifyDelay: DefaultVerifyDelay,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Window returns a copy of the current sliding window. Test hook; the window
// is otherwise owned exclusively by Run.
func (s *SearchStage) Window() []string {
	return append([]string(nil), s.window...)
}

// Run performs the device-selection handshake (when configured) and then
// executes the search state machine until the stop signal trips or the
// termination marker is reached.
func (s *SearchStage) Run(ctx context.Context) error {
	if s.hs != nil {
		if err := s.selectDevice(ctx); err != nil {
			// The parent has been told via StatusError (or the channel is
			// closed); trip the stop signal so the run winds down.
			s.stop.Trip()
			s.words.Terminate()
			return fmt.Errorf("search stage: %w", err)
		}
	}

	defer slog.Debug("search stage exiting")

	state := stateFilling
	for {
		switch state {
		case stateFilling:
			if s.stop.Stopped() {
				state = stateStopped
				continue
			}
			if terminated := s.words.AwaitWords(s.windowSize - len(s.window)); terminated {
				state = stateDraining
				continue
			}
			s.window = append(s.window, s.words.TakeUpTo(s.windowSize-len(s.window))...)
			if len(s.window) >= s.windowSize {
				state = stateSearching
			}

		case stateSearching:
			if s.stop.Stopped() {
				state = stateStopped
				continue
			}
			matched, err := s.searchOnce(ctx)
			if err != nil {
				return fmt.Errorf("search stage: %w", err)
			}
			if matched {
				state = stateStopped
				continue
			}
			state = stateFilling

		case stateDraining:
			// Termination marker observed while below the window size:
			// fewer tokens than needed will ever arrive, so exit without
			// further searching.
			state = stateStopped

		case stateStopped:
			return nil
		}
	}
}

// searchOnce runs a single corpus query against the full window. It returns
// true when playback was verified (success termination: the stop signal is
// tripped), and false after the oldest token has been evicted so the caller
// keeps sliding. Errors are returned only for fatal faults, which also trip
// the stop signal.
func (s *SearchStage) searchOnce(ctx context.Context) (bool, error) {
	start := time.Now()
	songs, err := s.corpus.Search(ctx, s.window)
	s.recordSearch(ctx, time.Since(start))

	switch {
	case err != nil && ctx.Err() != nil:
		s.countSearch(ctx, "error")
		s.stop.Trip()
		return false, fmt.Errorf("corpus search: %w", err)

	case err != nil:
		// Transient corpus fault: keep the window moving so one bad query
		// cannot stall the pipeline.
		slog.Warn("corpus search failed, continuing", "err", err)
		s.countSearch(ctx, "error")
		s.evictOldest()
		return false, nil

	case len(songs) == 0:
		s.countSearch(ctx, "miss")
		s.evictOldest()
		return false, nil
	}

	// First result wins; the matcher defines the order.
	song := songs[0]
	s.countSearch(ctx, "match")
	slog.Info("window matches song lyrics",
		"window", strings.Join(s.window, " "),
		"song", song.Title,
	)

	verified, err := s.playMatch(ctx, song)
	if err != nil {
		s.stop.Trip()
		return false, err
	}
	if verified {
		slog.Info("song verified playing, stopping pipeline", "song", song.Title)
		s.stop.Trip()
		return true, nil
	}
	if s.stop.Stopped() {
		// A fatal fault inside the playback attempt already tripped the
		// signal.
		return true, nil
	}

	// Failed playback must not stall forward progress: evict exactly as on
	// a corpus miss and keep searching.
	s.evictOldest()
	return false, nil
}

// playMatch drives the playback sequence for one matched song: locate the
// track, request playback, wait, verify. Transient faults log and report
// unverified; an authentication fault returns an error (fatal class).
func (s *SearchStage) playMatch(ctx context.Context, song matcher.Song) (bool, error) {
	start := time.Now()
	defer func() {
		s.recordPlayback(ctx, time.Since(start))
	}()

	track, err := s.player.FindTrack(ctx, song.Title)
	if err != nil {
		if player.IsAuthError(err) {
			return false, err
		}
		slog.Warn("track lookup failed, continuing", "song", song.Title, "err", err)
		s.countPlayback(ctx, "not_found")
		return false, nil
	}
	if track == nil {
		slog.Info("no playable track found", "song", song.Title)
		s.countPlayback(ctx, "not_found")
		return false, nil
	}

	slog.Info("starting playback", "track", track.Name)
	if err := s.player.StartPlayback(ctx, track); err != nil {
		if player.IsAuthError(err) {
			return false, err
		}
		slog.Warn("playback request failed, continuing", "track", track.Name, "err", err)
		s.countPlayback(ctx, "start_failed")
		return false, nil
	}

	// Give the service a moment to actually start before checking.
	select {
	case <-time.After(s.verifyDelay):
	case <-ctx.Done():
		s.countPlayback(ctx, "unverified")
		return false, nil
	}

	playing, err := s.player.VerifyPlaying(ctx, track)
	if err != nil {
		if player.IsAuthError(err) {
			return false, err
		}
		slog.Warn("playback verification failed, continuing", "track", track.Name, "err", err)
		s.countPlayback(ctx, "unverified")
		return false, nil
	}
	if !playing {
		slog.Info("track not verified playing, continuing search", "track", track.Name)
		s.countPlayback(ctx, "unverified")
		return false, nil
	}

	s.countPlayback(ctx, "verified")
	return true, nil
}

func (s *SearchStage) evictOldest() {
	if len(s.window) > 0 {
		s.window = s.window[1:]
	}
}

// ── device selection (worker half of the handshake) ──────────────────────────

// selectDevice answers the parent's list request: enumerate playback
// targets, prompt until a valid selection arrives, and confirm with
// StatusSet. Any terminal failure is reported to the parent as StatusError
// before the error is returned.
func (s *SearchStage) selectDevice(ctx context.Context) error {
	msg, err := s.hs.Recv()
	if err != nil {
		return fmt.Errorf("device selection: %w", err)
	}
	if msg.Kind != handshake.KindListRequest {
		s.sendError()
		return fmt.Errorf("device selection: unexpected message kind %d", msg.Kind)
	}

	devices, err := s.player.Devices(ctx)
	if err != nil {
		s.sendError()
		return fmt.Errorf("device selection: list devices: %w", err)
	}
	if len(devices) == 0 {
		s.sendError()
		return errors.New("device selection: no playback devices available")
	}

	labels := make([]string, len(devices))
	for i, d := range devices {
		labels[i] = fmt.Sprintf("%d: %s (%s)", i, d.Name, d.Type)
	}

	for {
		if err := s.hs.Send(handshake.Message{
			Kind:    handshake.KindStatus,
			Status:  handshake.StatusPrompt,
			Devices: labels,
		}); err != nil {
			return fmt.Errorf("device selection: %w", err)
		}

		reply, err := s.hs.Recv()
		if err != nil {
			return fmt.Errorf("device selection: %w", err)
		}
		if reply.Kind != handshake.KindSelection {
			s.sendError()
			return fmt.Errorf("device selection: unexpected message kind %d", reply.Kind)
		}

		choice, err := strconv.Atoi(strings.TrimSpace(reply.Selection))
		if err != nil || choice < 0 || choice >= len(devices) {
			slog.Info("invalid device selection, prompting again", "selection", reply.Selection)
			continue
		}

		s.player.SetDevice(devices[choice].ID)
		slog.Info("playback device selected", "device", devices[choice].Name)
		return s.hs.Send(handshake.Message{Kind: handshake.KindStatus, Status: handshake.StatusSet})
	}
}

// sendError tells the parent the handshake cannot succeed. Best effort: the
// parent may already be gone.
func (s *SearchStage) sendError() {
	_ = s.hs.Send(handshake.Message{Kind: handshake.KindStatus, Status: handshake.StatusError})
}

// ── metric helpers ───────────────────────────────────────────────────────────

func (s *SearchStage) countSearch(ctx context.Context, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.CorpusSearches.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (s *SearchStage) countPlayback(ctx context.Context, status string) {
	if s.metrics == nil {
		return
	}
	s.metrics.PlaybackAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (s *SearchStage) recordSearch(ctx context.Context, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.SearchDuration.Record(ctx, d.Seconds())
}

func (s *SearchStage) recordPlayback(ctx context.Context, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.PlaybackDuration.Record(ctx, d.Seconds())
}
