// Package pacer spaces the start of download operations so that upstream
// does not see bursts from this host.
package pacer

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"ytaudio/internal/shared"
)

// Pacer gates the start of a download. Gate returns how long the caller
// was held back.
type Pacer interface {
	Gate(ctx context.Context) (time.Duration, error)
	Close() error
}

// Options configures New.
type Options struct {
	MinInterval time.Duration
	// RedisURL enables the shared pacer when set.
	RedisURL string
	Key      string
}

// New returns a Redis-backed pacer when RedisURL is set and reachable,
// otherwise an in-process one.
func New(opts Options, logger *slog.Logger) Pacer {
	if logger == nil {
		logger = slog.Default()
	}
	local := NewLocal(opts.MinInterval)
	if opts.RedisURL == "" {
		return local
	}
	sp, err := NewShared(opts, local, logger)
	if err != nil {
		logger.Warn("Redis not available, pacing in-process only", "error", err)
		return local
	}
	logger.Info("Redis connected, pacing shared across instances", "key", sp.key)
	return sp
}

// Local paces callers within this process. Each Gate takes a reservation
// on a burst-1 token bucket refilled once per interval, so concurrent
// callers are handed start slots at least interval apart.
type Local struct {
	limiter *rate.Limiter
	now     func() time.Time
	sleep   shared.SleepFunc
}

// NewLocal returns a pacer enforcing interval between starts. A
// non-positive interval disables pacing.
func NewLocal(interval time.Duration) *Local {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Local{
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
		sleep:   shared.SleepOrDone,
	}
}

func (p *Local) Gate(ctx context.Context) (time.Duration, error) {
	now := p.now()
	r := p.limiter.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	if err := p.sleep(ctx, wait); err != nil {
		r.CancelAt(p.now())
		return 0, err
	}
	return wait, nil
}

func (p *Local) Close() error { return nil }
