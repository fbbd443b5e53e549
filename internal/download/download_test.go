package download

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"ytaudio/internal/extractor"
	"ytaudio/internal/failure"
	"ytaudio/internal/pacer"
	"ytaudio/internal/store"
	"ytaudio/internal/testutils"
)

const videoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

type harness struct {
	orch   *Orchestrator
	files  *store.Store
	runner *testutils.Runner

	mu     sync.Mutex
	sleeps []time.Duration
}

func (h *harness) recordSleep(ctx context.Context, d time.Duration) error {
	h.mu.Lock()
	h.sleeps = append(h.sleeps, d)
	h.mu.Unlock()
	return ctx.Err()
}

func newHarness(t *testing.T, timeout time.Duration, steps ...testutils.Step) *harness {
	t.Helper()
	files, err := store.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	opts := extractor.DefaultOptions()
	if timeout > 0 {
		opts.Timeout = timeout
	}
	h := &harness{files: files, runner: testutils.NewRunner(steps...)}
	inv := extractor.New(opts, h.runner, files, nil)
	h.orch = New(inv, files, pacer.NewLocal(0), Options{MaxAttempts: 3, Policies: failure.DefaultPolicies()}, nil)
	h.orch.sleep = h.recordSleep
	return h
}

func (h *harness) leftovers(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(h.files.Dir())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	return len(entries)
}

func asFailure(t *testing.T, err error) *failure.Error {
	t.Helper()
	var fe *failure.Error
	if !errors.As(err, &fe) {
		t.Fatalf("error %v (%T) is not *failure.Error", err, err)
	}
	return fe
}

func TestRun_SuccessFirstAttempt(t *testing.T) {
	h := newHarness(t, 0, testutils.Success("m4a", 524288))

	out, err := h.orch.Run(context.Background(), videoURL)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", out.Attempts)
	}
	if out.File.Size != 524288 || out.File.MediaType != "audio/mp4" {
		t.Fatalf("file = %+v", out.File)
	}
	if len(h.sleeps) != 0 {
		t.Fatalf("unexpected sleeps %v", h.sleeps)
	}
}

func TestRun_BotDetectionThenSuccess(t *testing.T) {
	bot := testutils.Fail("ERROR: [youtube] dQw4w9WgXcQ: Sign in to confirm you're not a bot")
	h := newHarness(t, 0, bot, bot, testutils.Success("webm", 1000))

	out, err := h.orch.Run(context.Background(), videoURL)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", out.Attempts)
	}
	if len(h.sleeps) != 2 {
		t.Fatalf("sleeps = %v, want 2", h.sleeps)
	}
	for _, d := range h.sleeps {
		if d < 10*time.Second || d > 20*time.Second {
			t.Fatalf("bot backoff %v outside 10s-20s", d)
		}
	}

	calls := h.runner.Calls()
	for i, args := range calls {
		want := extractor.Variants[i%len(extractor.Variants)].UserAgent
		if got := testutils.Arg(args, "--user-agent"); got != want {
			t.Fatalf("attempt %d user agent = %q, want %q", i+1, got, want)
		}
	}
}

func TestRun_RateLimitedExhausted(t *testing.T) {
	h := newHarness(t, 0, testutils.Fail("ERROR: HTTP Error 429: Too Many Requests"))

	_, err := h.orch.Run(context.Background(), videoURL)
	fe := asFailure(t, err)
	if fe.Kind() != failure.BotDetection {
		t.Fatalf("kind = %s, want %s", fe.Kind(), failure.BotDetection)
	}
	if fe.Attempts != 3 || len(h.runner.Calls()) != 3 {
		t.Fatalf("attempts = %d, calls = %d; want 3", fe.Attempts, len(h.runner.Calls()))
	}
	if n := h.leftovers(t); n != 0 {
		t.Fatalf("%d files leaked", n)
	}
}

func TestRun_ConversionToolMissingStopsImmediately(t *testing.T) {
	h := newHarness(t, 0, testutils.Fail("ERROR: Postprocessing: ffmpeg not found. Please install"))

	_, err := h.orch.Run(context.Background(), videoURL)
	fe := asFailure(t, err)
	if fe.Kind() != failure.ConversionToolMissing {
		t.Fatalf("kind = %s", fe.Kind())
	}
	if fe.Attempts != 1 || len(h.runner.Calls()) != 1 {
		t.Fatalf("attempts = %d, calls = %d; want 1", fe.Attempts, len(h.runner.Calls()))
	}
	if len(h.sleeps) != 0 {
		t.Fatalf("slept before giving up: %v", h.sleeps)
	}
}

func TestRun_TimeoutEveryAttempt(t *testing.T) {
	h := newHarness(t, 10*time.Millisecond, testutils.Hang())

	_, err := h.orch.Run(context.Background(), videoURL)
	fe := asFailure(t, err)
	if fe.Kind() != failure.Timeout {
		t.Fatalf("kind = %s, want timeout", fe.Kind())
	}
	if fe.Attempts != 3 || len(h.runner.Calls()) != 3 {
		t.Fatalf("attempts = %d, calls = %d; want 3", fe.Attempts, len(h.runner.Calls()))
	}
}

func TestRun_GenericUsesShortPreAttemptDelayFirst(t *testing.T) {
	h := newHarness(t, 0, testutils.Fail("ERROR: Video unavailable"))

	_, err := h.orch.Run(context.Background(), videoURL)
	fe := asFailure(t, err)
	if fe.Kind() != failure.Generic || fe.Attempts != 3 {
		t.Fatalf("failure = %v", fe)
	}
	if len(h.sleeps) != 2 {
		t.Fatalf("sleeps = %v", h.sleeps)
	}
	first, second := h.sleeps[0], h.sleeps[1]
	if first < extractor.PreAttemptBase || first >= extractor.PreAttemptBase+extractor.PreAttemptJitter {
		t.Fatalf("first retry delay %v, want pre-attempt delay", first)
	}
	if second < 2*time.Second || second > 5*time.Second {
		t.Fatalf("second retry delay %v outside 2s-5s", second)
	}
}

func TestRun_PartialFilesDiscarded(t *testing.T) {
	step := testutils.Fail("ERROR: unable to download video data: HTTP Error 403")
	step.Partial = true
	h := newHarness(t, 0, step, testutils.Success("m4a", 10))

	out, err := h.orch.Run(context.Background(), videoURL)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := h.leftovers(t); n != 1 {
		t.Fatalf("dir holds %d files, want only the result", n)
	}
	h.files.Release(out.File.Path)
	if n := h.leftovers(t); n != 0 {
		t.Fatalf("%d files leaked after release", n)
	}
}

func TestRun_CanceledDuringBackoff(t *testing.T) {
	h := newHarness(t, 0, testutils.Fail("ERROR: Sign in to confirm you're not a bot"))
	ctx, cancel := context.WithCancel(context.Background())
	h.orch.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := h.orch.Run(ctx, videoURL)
	fe := asFailure(t, err)
	if fe.Kind() != failure.Unexpected || !errors.Is(err, context.Canceled) {
		t.Fatalf("failure = %v", fe)
	}
	if len(h.runner.Calls()) != 1 {
		t.Fatalf("calls = %d, want 1", len(h.runner.Calls()))
	}
}

type countingPacer struct{ calls int }

func (p *countingPacer) Gate(ctx context.Context) (time.Duration, error) {
	p.calls++
	return 0, ctx.Err()
}

func (p *countingPacer) Close() error { return nil }

func TestRun_GatesOncePerRequest(t *testing.T) {
	h := newHarness(t, 0, testutils.Fail("ERROR: Video unavailable"))
	p := &countingPacer{}
	h.orch.pacer = p

	_, _ = h.orch.Run(context.Background(), videoURL)
	if p.calls != 1 {
		t.Fatalf("pacer calls = %d, want 1", p.calls)
	}
}

func TestRun_PacerCanceled(t *testing.T) {
	h := newHarness(t, 0, testutils.Success("m4a", 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.orch.pacer = &countingPacer{}

	_, err := h.orch.Run(ctx, videoURL)
	if fe := asFailure(t, err); fe.Kind() != failure.Unexpected {
		t.Fatalf("kind = %s", fe.Kind())
	}
	if len(h.runner.Calls()) != 0 {
		t.Fatal("extractor invoked without a pacing slot")
	}
}
