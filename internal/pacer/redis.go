package pacer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"ytaudio/internal/shared"
)

// DefaultKey holds the next start slot, in unix milliseconds.
const DefaultKey = "ytaudio:pacer:last_start"

// reserveScript claims the next start slot atomically and returns how many
// milliseconds the caller must wait for it.
var reserveScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local last = tonumber(redis.call("GET", KEYS[1]) or "0")
local start = now
if last + interval > now then
	start = last + interval
end
redis.call("SET", KEYS[1], string.format("%d", start), "PX", string.format("%d", start - now + interval))
return start - now
`)

// Shared paces callers across every instance pointed at the same Redis.
// Instance clocks are assumed to be NTP-synced. When Redis fails, Gate
// falls back to the in-process pacer.
type Shared struct {
	rdb      *redis.Client
	key      string
	interval time.Duration
	fallback Pacer
	now      func() time.Time
	sleep    shared.SleepFunc
	log      *slog.Logger
}

// NewShared connects to opts.RedisURL and verifies the connection.
func NewShared(opts Options, fallback Pacer, logger *slog.Logger) (*Shared, error) {
	ropts, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	rdb := redis.NewClient(ropts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return newShared(rdb, opts, fallback, logger), nil
}

func newShared(rdb *redis.Client, opts Options, fallback Pacer, logger *slog.Logger) *Shared {
	key := opts.Key
	if key == "" {
		key = DefaultKey
	}
	if fallback == nil {
		fallback = NewLocal(opts.MinInterval)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Shared{
		rdb:      rdb,
		key:      key,
		interval: opts.MinInterval,
		fallback: fallback,
		now:      time.Now,
		sleep:    shared.SleepOrDone,
		log:      logger.With("component", "pacer"),
	}
}

func (p *Shared) Gate(ctx context.Context) (time.Duration, error) {
	if p.interval <= 0 {
		return 0, ctx.Err()
	}
	ms, err := reserveScript.Run(ctx, p.rdb, []string{p.key},
		p.now().UnixMilli(), p.interval.Milliseconds()).Int64()
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		p.log.Warn("Shared pacer unavailable, using in-process pacing", "error", err)
		return p.fallback.Gate(ctx)
	}
	wait := time.Duration(ms) * time.Millisecond
	if err := p.sleep(ctx, wait); err != nil {
		return 0, err
	}
	return wait, nil
}

func (p *Shared) Close() error {
	return p.rdb.Close()
}
