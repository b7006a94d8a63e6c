package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/earworm-audio/earworm/internal/observe"
	"github.com/earworm-audio/earworm/pkg/provider/recognizer"
)

// RecognitionStage is the first worker: it consumes audio jobs from the
// queue, runs the recognizer, and feeds tokens into the word buffer. On the
// end-of-stream job it performs first-phase shutdown: trip the stop signal,
// drain the queue, and place the termination marker so the search stage can
// never block forever.
type RecognitionStage struct {
	queue   *JobQueue
	words   *WordBuffer
	stop    *StopSignal
	rec     recognizer.Provider
	metrics *observe.Metrics
}

// NewRecognitionStage wires the stage to its queue, buffer, stop signal, and
// recognition capability. metrics may be nil in tests.
func NewRecognitionStage(queue *JobQueue, words *WordBuffer, stop *StopSignal, rec recognizer.Provider, metrics *observe.Metrics) *RecognitionStage {
	return &RecognitionStage{
		queue:   queue,
		words:   words,
		stop:    stop,
		rec:     rec,
		metrics: metrics,
	}
}

// Run executes the recognition loop until the end-of-stream job arrives, the
// stop signal trips, or the recognizer fails fatally. Recoverable per-clip
// faults are logged and skipped; they never trip the stop signal.
func (s *RecognitionStage) Run(ctx context.Context) error {
	defer slog.Debug("recognition stage exiting")

	for !s.stop.Stopped() {
		job := s.queue.Get()
		s.countQueueDepth(ctx, -1)

		if job.End {
			s.finish(ctx)
			return nil
		}

		start := time.Now()
		text, err := s.rec.Recognize(ctx, job.Clip)
		s.recordRecognition(ctx, time.Since(start))

		switch {
		case errors.Is(err, recognizer.ErrUnknownValue):
			slog.Debug("recognizer could not interpret clip", "duration", job.Clip.Duration())
			s.countJob(ctx, "unknown")
			s.queue.MarkDone()
			continue

		case errors.Is(err, recognizer.ErrMalformedResult):
			slog.Warn("recognizer returned malformed result", "err", err)
			s.countJob(ctx, "malformed")
			s.queue.MarkDone()
			continue

		case err != nil:
			// Fatal capability fault: trip the stop signal, settle the
			// accounting for this job, and wake the search stage.
			slog.Error("recognizer failed fatally", "err", err)
			s.stop.Trip()
			s.queue.MarkDone()
			s.words.Terminate()
			return fmt.Errorf("recognition stage: %w", err)
		}

		if tokens := Tokenize(text); len(tokens) > 0 {
			s.words.Append(tokens...)
			slog.Info("recognized", "text", text, "tokens", len(tokens))
			s.countJob(ctx, "recognized")
			s.countTokens(ctx, len(tokens))
		} else {
			s.countJob(ctx, "unknown")
		}
		s.queue.MarkDone()
	}
	return nil
}

// finish performs first-phase shutdown after the end-of-stream job: trip the
// stop signal, discard whatever audio is still queued, settle the sentinel's
// task count, and place the termination marker for the search stage.
func (s *RecognitionStage) finish(ctx context.Context) {
	s.stop.Trip()
	if n := s.queue.Drain(); n > 0 {
		slog.Debug("discarded queued audio during shutdown", "jobs", n)
		s.countQueueDepth(ctx, int64(-n))
		if s.metrics != nil {
			s.metrics.AudioJobs.Add(ctx, int64(n),
				metric.WithAttributes(attribute.String("status", "discarded")))
		}
	}
	s.queue.MarkDone()
	s.words.Terminate()
}

// ── metric helpers ───────────────────────────────────────────────────────────

func (s *RecognitionStage) countJob(ctx context.Context, status string) {
	if s.metrics == nil {
		return
	}
	s.metrics.AudioJobs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (s *RecognitionStage) countTokens(ctx context.Context, n int) {
	if s.metrics == nil {
		return
	}
	s.metrics.TokensProduced.Add(ctx, int64(n))
}

func (s *RecognitionStage) countQueueDepth(ctx context.Context, delta int64) {
	if s.metrics == nil {
		return
	}
	s.metrics.QueueDepth.Add(ctx, delta)
}

func (s *RecognitionStage) recordRecognition(ctx context.Context, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecognitionDuration.Record(ctx, d.Seconds())
}
