// Package app wires the Earworm subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates the pipeline plumbing,
// Run executes the capture loop until the pipeline terminates, and Shutdown
// tears everything down in order.
//
// For testing, inject mock providers via the Providers struct and a scripted
// audio source; nothing in this package touches real audio hardware.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/earworm-audio/earworm/internal/config"
	"github.com/earworm-audio/earworm/internal/handshake"
	"github.com/earworm-audio/earworm/internal/observe"
	"github.com/earworm-audio/earworm/internal/pipeline"
	"github.com/earworm-audio/earworm/pkg/audio"
	"github.com/earworm-audio/earworm/pkg/provider/matcher"
	"github.com/earworm-audio/earworm/pkg/provider/player"
	"github.com/earworm-audio/earworm/pkg/provider/recognizer"
)

// Providers holds one interface value per pipeline capability plus the audio
// source feeding it. Populated by main.go via the config registry.
type Providers struct {
	Source     audio.Source
	Recognizer recognizer.Provider
	Matcher    matcher.Provider
	Player     player.Provider
}

// DeviceSelector answers a playback-device prompt. It receives the display
// labels from the worker and returns the chosen label's index as text.
// Returning an error aborts the run.
type DeviceSelector func(devices []string) (string, error)

// App owns the capture loop and the two pipeline workers.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	queue *pipeline.JobQueue
	words *pipeline.WordBuffer
	stop  *pipeline.StopSignal
	sup   *pipeline.Supervisor

	// parentHS is the parent's half of the device-selection channel; nil
	// when a device is pre-selected in config.
	parentHS *handshake.Endpoint
	selector DeviceSelector

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics attaches pipeline metrics. Without it the pipeline runs
// unmetered.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithDeviceSelector sets the function that answers playback-device prompts.
// Required unless the config pre-selects a device.
func WithDeviceSelector(s DeviceSelector) Option {
	return func(a *App) { a.selector = s }
}

// New assembles the pipeline from config and providers. Every Providers slot
// must be filled.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Source == nil || providers.Recognizer == nil ||
		providers.Matcher == nil || providers.Player == nil {
		return nil, errors.New("app: all provider slots must be filled")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		queue:     pipeline.NewJobQueue(cfg.Pipeline.QueueCapacity),
		words:     pipeline.NewWordBuffer(),
		stop:      pipeline.NewStopSignal(),
	}
	for _, o := range opts {
		o(a)
	}

	searchOpts := []pipeline.SearchOption{}
	if cfg.Pipeline.WindowSize > 0 {
		searchOpts = append(searchOpts, pipeline.WithWindowSize(cfg.Pipeline.WindowSize))
	}
	if cfg.Pipeline.VerifyDelay > 0 {
		searchOpts = append(searchOpts, pipeline.WithVerifyDelay(cfg.Pipeline.VerifyDelay.Std()))
	}

	// Device selection: a configured device id skips the interactive
	// exchange entirely.
	var workerHS *handshake.Endpoint
	if cfg.Pipeline.PlayerDeviceID != "" {
		providers.Player.SetDevice(cfg.Pipeline.PlayerDeviceID)
		slog.Info("playback device pre-selected", "device_id", cfg.Pipeline.PlayerDeviceID)
	} else {
		if a.selector == nil {
			return nil, errors.New("app: no device selector and no pre-selected playback device")
		}
		a.parentHS, workerHS = handshake.NewPipe()
		searchOpts = append(searchOpts, pipeline.WithHandshake(workerHS))
		a.closers = append(a.closers, a.parentHS.Close)
	}

	recognition := pipeline.NewRecognitionStage(a.queue, a.words, a.stop, providers.Recognizer, a.metrics)
	search := pipeline.NewSearchStage(a.words, a.stop, providers.Matcher, providers.Player, a.metrics, searchOpts...)
	a.sup = pipeline.NewSupervisor(recognition, search, workerHS)

	a.closers = append(a.closers, providers.Source.Close)
	for _, p := range []any{providers.Recognizer, providers.Matcher, providers.Player} {
		if c, ok := p.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
	}

	return a, nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run executes the pipeline: warm up the recognizer, start both workers,
// complete the device-selection exchange, then feed captured audio into the
// job queue until a song is verified playing, the audio source ends, or ctx
// is cancelled. It blocks until both workers have fully terminated and the
// queue is settled.
func (a *App) Run(ctx context.Context) error {
	if err := a.warmUpRecognizer(ctx); err != nil {
		return err
	}

	a.sup.Start(ctx)

	// Parent half of the device-selection exchange. When the failure is on
	// the parent side the worker may still be blocked mid-exchange, so
	// close the channel to turn its pending Recv into ErrClosed; then fall
	// through to the shutdown sequence so the queue still settles.
	var selectionErr error
	if a.parentHS != nil {
		selectionErr = a.selectPlaybackDevice()
		if selectionErr != nil {
			slog.Error("device selection failed", "err", selectionErr)
			_ = a.parentHS.Close()
		}
	}

	if selectionErr == nil {
		// A bounded queue can leave the capture loop blocked in Put where
		// it cannot observe the stop signal or ctx. Lift the bound the
		// moment the run starts winding down, whatever the trigger.
		captureDone := make(chan struct{})
		go func() {
			select {
			case <-a.stop.Done():
			case <-ctx.Done():
			case <-captureDone:
			}
			a.queue.Close()
		}()
		a.captureLoop(ctx)
		close(captureDone)
	}

	// Shutdown sequence. The order matters: the end-of-stream job wakes a
	// recognition stage blocked on Get; once both workers have finished,
	// draining discards anything they never consumed (including, after an
	// early stop, the sentinel itself) so Join cannot block.
	a.queue.Put(pipeline.EndJob())
	<-a.sup.Finished()
	if n := a.queue.Drain(); n > 0 {
		slog.Debug("discarded unconsumed jobs after shutdown", "jobs", n)
	}
	a.queue.Join()

	if err := a.sup.Err(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if selectionErr != nil {
		return fmt.Errorf("app: %w", selectionErr)
	}
	return ctx.Err()
}

// captureLoop forwards phrase clips from the audio source into the job queue
// until the source closes, the stop signal trips, or ctx is cancelled.
func (a *App) captureLoop(ctx context.Context) {
	clips := a.providers.Source.Clips()
	for {
		select {
		case clip, ok := <-clips:
			if !ok {
				slog.Info("audio source ended")
				return
			}
			a.queue.Put(pipeline.Job{Clip: clip})
			a.countQueueDepth(ctx, 1)

		case <-a.stop.Done():
			slog.Info("pipeline stop observed, ending capture")
			return

		case <-ctx.Done():
			slog.Info("capture cancelled", "cause", context.Cause(ctx))
			return
		}
	}
}

// selectPlaybackDevice runs the parent half of the handshake: request the
// device list, answer prompts through the selector, and wait for the SET
// confirmation.
func (a *App) selectPlaybackDevice() error {
	if err := a.parentHS.Send(handshake.Message{Kind: handshake.KindListRequest}); err != nil {
		return fmt.Errorf("device selection: %w", err)
	}
	for {
		msg, err := a.parentHS.Recv()
		if err != nil {
			return fmt.Errorf("device selection: %w", err)
		}
		if msg.Kind != handshake.KindStatus {
			return fmt.Errorf("device selection: unexpected message kind %d", msg.Kind)
		}

		switch msg.Status {
		case handshake.StatusSet:
			slog.Info("playback device confirmed")
			return nil

		case handshake.StatusError:
			return errors.New("device selection: no usable playback device")

		case handshake.StatusPrompt:
			choice, err := a.selector(msg.Devices)
			if err != nil {
				return fmt.Errorf("device selection: %w", err)
			}
			if err := a.parentHS.Send(handshake.Message{
				Kind:      handshake.KindSelection,
				Selection: choice,
			}); err != nil {
				return fmt.Errorf("device selection: %w", err)
			}

		default:
			return fmt.Errorf("device selection: unknown status %d", msg.Status)
		}
	}
}

// warmUpRecognizer pushes a short silent clip through the recognizer so model
// loading and connection setup happen before live audio arrives. Recoverable
// verdicts are expected (silence recognizes as nothing); only a hard fault
// aborts.
func (a *App) warmUpRecognizer(ctx context.Context) error {
	rate := a.cfg.Audio.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	clip := audio.Clip{PCM: make([]int16, rate/10), SampleRate: rate}

	start := time.Now()
	_, err := a.providers.Recognizer.Recognize(ctx, clip)
	if err != nil && !errors.Is(err, recognizer.ErrUnknownValue) && !errors.Is(err, recognizer.ErrMalformedResult) {
		return fmt.Errorf("app: recognizer warm-up: %w", err)
	}
	slog.Debug("recognizer warmed up", "took", time.Since(start))
	return nil
}

// Stopped reports whether the pipeline stop signal has tripped. Used by the
// ops endpoint's readiness probe.
func (a *App) Stopped() bool { return a.stop.Stopped() }

func (a *App) countQueueDepth(ctx context.Context, delta int64) {
	if a.metrics == nil {
		return
	}
	a.metrics.QueueDepth.Add(ctx, delta)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown trips the stop signal and tears down all resources in order. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.stop.Trip()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
