package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/earworm-audio/earworm/internal/handshake"
)

// Supervisor owns the recognition and search workers. It runs both in
// parallel over one shared word buffer and stop signal, joins them
// regardless of which terminated first or why, then closes the worker
// handshake endpoint and raises the finished flag the parent waits on.
type Supervisor struct {
	recognition *RecognitionStage
	search      *SearchStage
	hs          *handshake.Endpoint

	finished chan struct{}
	err      error
}

// NewSupervisor wires a supervisor over the two stages. hs is the worker
// endpoint of the device-selection channel; it may be nil when no handshake
// is configured.
func NewSupervisor(recognition *RecognitionStage, search *SearchStage, hs *handshake.Endpoint) *Supervisor {
	return &Supervisor{
		recognition: recognition,
		search:      search,
		hs:          hs,
		finished:    make(chan struct{}),
	}
}

// Start launches both workers and returns immediately. The supervisor joins
// them in the background; use Finished to observe completion and Err for the
// first worker error.
//
// The workers' loops are cooperative: cancellation takes effect at loop
// boundaries, never mid-call, so the group deliberately carries no derived
// cancel context.
func (s *Supervisor) Start(ctx context.Context) {
	go func() {
		defer close(s.finished)

		var g errgroup.Group
		g.Go(func() error { return s.recognition.Run(ctx) })
		g.Go(func() error { return s.search.Run(ctx) })
		s.err = g.Wait()

		if s.hs != nil {
			_ = s.hs.Close()
		}
		slog.Debug("supervisor finished", "err", s.err)
	}()
}

// Finished returns a channel that is closed once both workers have returned
// and the handshake endpoint is closed. The flag outlives the workers: it
// stays observable for the rest of the process lifetime.
func (s *Supervisor) Finished() <-chan struct{} { return s.finished }

// Err returns the first worker error, if any. Valid only after Finished is
// closed.
func (s *Supervisor) Err() error { return s.err }
