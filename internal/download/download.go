// Package download drives a single request through pacing, up to
// MaxAttempts yt-dlp invocations and per-kind backoff.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ytaudio/internal/extractor"
	"ytaudio/internal/failure"
	"ytaudio/internal/metrics"
	"ytaudio/internal/pacer"
	"ytaudio/internal/shared"
	"ytaudio/internal/store"
)

// DefaultMaxAttempts is the attempt cap per request.
const DefaultMaxAttempts = 3

// Invoker performs one extraction attempt.
type Invoker interface {
	Invoke(ctx context.Context, targetURL string, slot store.Slot, cfg extractor.AttemptConfig) extractor.Result
}

// Options tunes the retry loop.
type Options struct {
	MaxAttempts int
	Policies    failure.Policies
}

// Outcome is a successful download. The caller owns File and must
// release it through the store.
type Outcome struct {
	File     *store.File
	Attempts int
}

// Orchestrator retries extraction attempts with escalating variants.
type Orchestrator struct {
	invoker Invoker
	files   *store.Store
	pacer   pacer.Pacer
	opts    Options
	jitter  extractor.Jitter
	sleep   shared.SleepFunc
	log     *slog.Logger
}

// New wires an Orchestrator. MaxAttempts below 1 falls back to the default.
func New(inv Invoker, files *store.Store, p pacer.Pacer, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if p == nil {
		p = pacer.NewLocal(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		invoker: inv,
		files:   files,
		pacer:   p,
		opts:    opts,
		jitter:  extractor.RandomJitter,
		sleep:   shared.SleepOrDone,
		log:     logger.With("component", "orchestrator"),
	}
}

// Run downloads the best audio stream of targetURL. Failures are always
// *failure.Error.
func (o *Orchestrator) Run(ctx context.Context, targetURL string) (*Outcome, error) {
	start := time.Now()
	metrics.ActiveDownloads.Inc()
	defer metrics.ActiveDownloads.Dec()

	out, err := o.run(ctx, targetURL)

	result := "success"
	var fe *failure.Error
	if errors.As(err, &fe) {
		result = string(fe.Kind())
	}
	metrics.Downloads.WithLabelValues(result).Inc()
	metrics.DownloadDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return out, err
}

func (o *Orchestrator) run(ctx context.Context, targetURL string) (*Outcome, error) {
	log := o.log.With("url", targetURL)

	wait, err := o.pacer.Gate(ctx)
	if err != nil {
		return nil, failure.NewError(failure.Unexpected, 0, "", fmt.Errorf("wait for pacing slot: %w", err))
	}
	metrics.PacerWait.Observe(wait.Seconds())
	if wait > 0 {
		log.Info("Request paced", "wait", wait.Round(time.Millisecond))
	}

	slot, err := o.files.Allocate()
	if err != nil {
		return nil, failure.NewError(failure.Unexpected, 0, "", err)
	}
	log = log.With("file_id", slot.ID)
	log.Info("Starting download")

	var (
		kind failure.Kind
		msg  string
	)
	cfg := extractor.ConfigFor(1, o.jitter)
	for {
		res := o.invoker.Invoke(ctx, targetURL, slot, cfg)
		if res.File != nil {
			metrics.Attempts.WithLabelValues(cfg.Variant.Name, "success").Inc()
			log.Info("Download succeeded", "attempts", cfg.Attempt, "variant", cfg.Variant.Name, "bytes", res.File.Size)
			return &Outcome{File: res.File, Attempts: cfg.Attempt}, nil
		}

		kind = failure.Classify(res.Failure.Message, res.Failure.Timeout)
		msg = res.Failure.Message
		metrics.Attempts.WithLabelValues(cfg.Variant.Name, "failure").Inc()
		metrics.Failures.WithLabelValues(string(kind)).Inc()
		o.files.Discard(slot.ID)

		if ctx.Err() != nil {
			log.Warn("Caller went away, abandoning download", "attempts", cfg.Attempt)
			return nil, failure.NewError(failure.Unexpected, cfg.Attempt, msg, ctx.Err())
		}

		policy := o.opts.Policies.For(kind)
		if !policy.Retryable || cfg.Attempt >= o.opts.MaxAttempts {
			break
		}

		next := extractor.ConfigFor(cfg.Attempt+1, o.jitter)
		delay := next.Delay
		if cfg.Attempt > 1 || kind.Throttled() {
			delay = policy.Backoff.Draw()
		}
		log.Warn("Attempt failed, retrying",
			"attempt", cfg.Attempt,
			"max_attempts", o.opts.MaxAttempts,
			"variant", cfg.Variant.Name,
			"kind", kind,
			"backoff", delay.Round(time.Millisecond),
			"error", msg,
		)
		if err := o.sleep(ctx, delay); err != nil {
			return nil, failure.NewError(failure.Unexpected, cfg.Attempt, msg, err)
		}
		cfg = next
	}

	log.Error("Download failed", "attempts", cfg.Attempt, "kind", kind, "error", msg)
	return nil, failure.NewError(kind, cfg.Attempt, msg, nil)
}
