package extractor

import (
	"math/rand/v2"
	"time"
)

// Posture controls TLS certificate verification for an attempt.
type Posture int

const (
	Strict Posture = iota
	Permissive
)

func (p Posture) String() string {
	if p == Permissive {
		return "permissive"
	}
	return "strict"
}

// Header is a single request header passed to yt-dlp.
type Header struct {
	Name  string
	Value string
}

// Variant is one client identity in the rotation.
type Variant struct {
	Name         string
	UserAgent    string
	PlayerClient string
	Posture      Posture
	Headers      []Header
}

// Variants is the fixed rotation, indexed by attempt.
var Variants = []Variant{
	{
		Name:         "web",
		UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		PlayerClient: "web",
		Posture:      Strict,
		Headers: []Header{
			{Name: "Accept", Value: "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
			{Name: "Accept-Language", Value: "en-US,en;q=0.9"},
			{Name: "Sec-Fetch-Mode", Value: "navigate"},
		},
	},
	{
		Name:         "android",
		UserAgent:    "com.google.android.youtube/19.09.37 (Linux; U; Android 11) gzip",
		PlayerClient: "android",
		Posture:      Permissive,
		Headers: []Header{
			{Name: "Accept", Value: "*/*"},
			{Name: "Accept-Language", Value: "en-US,en;q=0.8"},
		},
	},
	{
		Name:         "ios",
		UserAgent:    "com.google.ios.youtube/19.09.3 (iPhone14,3; U; CPU iOS 15_6 like Mac OS X)",
		PlayerClient: "ios",
		Posture:      Permissive,
		Headers: []Header{
			{Name: "Accept", Value: "*/*"},
			{Name: "Accept-Language", Value: "en-GB,en;q=0.7"},
		},
	},
}

// Delay before every attempt after the first: PreAttemptBase plus up to
// PreAttemptJitter.
const (
	PreAttemptBase   = time.Second
	PreAttemptJitter = time.Second
)

// AttemptConfig is everything that varies between attempts.
type AttemptConfig struct {
	Attempt      int
	VariantIndex int
	Variant      Variant
	// Delay is the pre-attempt wait; zero for the first attempt.
	Delay time.Duration
}

// Jitter returns a random duration in [0, max).
type Jitter func(max time.Duration) time.Duration

// RandomJitter is the default Jitter.
func RandomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

// ConfigFor derives the configuration for a 1-based attempt number. The
// variant depends only on the attempt; jitter only affects Delay.
func ConfigFor(attempt int, jitter Jitter) AttemptConfig {
	if attempt < 1 {
		attempt = 1
	}
	idx := (attempt - 1) % len(Variants)
	cfg := AttemptConfig{
		Attempt:      attempt,
		VariantIndex: idx,
		Variant:      Variants[idx],
	}
	if attempt > 1 {
		if jitter == nil {
			jitter = RandomJitter
		}
		cfg.Delay = PreAttemptBase + jitter(PreAttemptJitter)
	}
	return cfg
}
