// Package failure classifies yt-dlp diagnostics into a closed set of kinds
// and carries the retry policy attached to each kind.
package failure

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// Kind is the classified reason an extraction attempt failed.
type Kind string

const (
	Timeout               Kind = "timeout"
	BotDetection          Kind = "bot_detection"
	RateLimited           Kind = "rate_limited"
	SSLError              Kind = "ssl_error"
	ConversionToolMissing Kind = "conversion_tool_missing"
	Generic               Kind = "generic"
	// Unexpected covers failures outside the extractor, e.g. the file store
	// could not allocate a slot or the caller went away.
	Unexpected Kind = "unexpected"
)

// Throttled reports whether upstream rejected the request as automated
// or rate limited.
func (k Kind) Throttled() bool {
	return k == BotDetection || k == RateLimited
}

// Rule maps any of its needles to a Kind.
type Rule struct {
	Kind    Kind
	Needles []string
}

// Rules are evaluated top to bottom; the first match wins. Bot and rate
// limit checks must stay ahead of the TLS bucket.
var Rules = []Rule{
	{Kind: ConversionToolMissing, Needles: []string{"ffmpeg", "ffprobe"}},
	{Kind: BotDetection, Needles: []string{
		"bot",
		"429",
		"too many requests",
		"precondition check failed",
		"sign in to confirm",
	}},
	{Kind: SSLError, Needles: []string{"ssl", "certificate"}},
}

// Classify maps a raw diagnostic to a Kind. A timed out attempt is always
// Timeout regardless of its message.
func Classify(message string, timedOut bool) Kind {
	if timedOut {
		return Timeout
	}
	msg := strings.ToLower(message)
	for _, r := range Rules {
		for _, n := range r.Needles {
			if strings.Contains(msg, n) {
				return r.Kind
			}
		}
	}
	return Generic
}

// Range is an inclusive backoff window.
type Range struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// Draw picks a uniformly random duration within the range.
func (r Range) Draw() time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rand.N(r.Max-r.Min+1)
}

func (r Range) String() string {
	return fmt.Sprintf("%s-%s", r.Min, r.Max)
}

// Policy is the retry behaviour attached to a Kind.
type Policy struct {
	Retryable bool
	Backoff   Range
}

// Policies resolves the Policy for each Kind.
type Policies struct {
	Throttled Range
	Transient Range
}

// DefaultPolicies backs off 10-20s after bot detection and 2-5s otherwise.
func DefaultPolicies() Policies {
	return Policies{
		Throttled: Range{Min: 10 * time.Second, Max: 20 * time.Second},
		Transient: Range{Min: 2 * time.Second, Max: 5 * time.Second},
	}
}

// For returns the policy for k.
func (p Policies) For(k Kind) Policy {
	switch {
	case k == ConversionToolMissing, k == Unexpected:
		return Policy{Retryable: false}
	case k.Throttled():
		return Policy{Retryable: true, Backoff: p.Throttled}
	default:
		return Policy{Retryable: true, Backoff: p.Transient}
	}
}
