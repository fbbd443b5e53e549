// Package extractor runs a single yt-dlp download attempt with a given
// client variant and reports the raw outcome. It does not interpret
// failure text; see package failure for that.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"ytaudio/internal/store"
)

// Format prefers m4a, then webm, then any audio-only stream.
const Format = "bestaudio[ext=m4a]/bestaudio[ext=webm]/bestaudio"

// Options configures the Invoker.
type Options struct {
	Binary      string
	Timeout     time.Duration
	CookiesFile string
	// Retry and sleep hints forwarded to yt-dlp itself.
	Retries         int
	FragmentRetries int
	SleepRequests   time.Duration
}

// DefaultOptions mirrors a stock yt-dlp install on PATH.
func DefaultOptions() Options {
	return Options{
		Binary:          "yt-dlp",
		Timeout:         300 * time.Second,
		CookiesFile:     "cookies.txt",
		Retries:         3,
		FragmentRetries: 3,
		SleepRequests:   time.Second,
	}
}

// Failure is the raw outcome of a failed attempt.
type Failure struct {
	Message string
	Timeout bool
}

// Result holds exactly one of File or Failure.
type Result struct {
	File    *store.File
	Failure *Failure
}

// Invoker performs one yt-dlp invocation per call.
type Invoker struct {
	opts   Options
	runner Runner
	files  *store.Store
	log    *slog.Logger
}

// New builds an Invoker. A nil runner uses ExecRunner.
func New(opts Options, runner Runner, files *store.Store, logger *slog.Logger) *Invoker {
	if runner == nil {
		runner = ExecRunner{}
	}
	if opts.Binary == "" {
		opts.Binary = "yt-dlp"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 300 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{opts: opts, runner: runner, files: files, log: logger.With("component", "extractor")}
}

// Invoke downloads targetURL into slot using cfg.
func (i *Invoker) Invoke(ctx context.Context, targetURL string, slot store.Slot, cfg AttemptConfig) Result {
	ctx, cancel := context.WithTimeout(ctx, i.opts.Timeout)
	defer cancel()

	args := i.Args(targetURL, slot.Template, cfg)
	start := time.Now()
	i.log.Debug("Running yt-dlp", "attempt", cfg.Attempt, "variant", cfg.Variant.Name, "args", args)

	_, stderr, err := i.runner.Run(ctx, i.opts.Binary, args...)
	if err != nil {
		timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = err.Error()
		}
		if timedOut {
			msg = fmt.Sprintf("yt-dlp timed out after %s: %s", i.opts.Timeout, msg)
		}
		return Result{Failure: &Failure{Message: msg, Timeout: timedOut}}
	}

	f, err := i.files.Locate(slot.ID)
	if err != nil {
		return Result{Failure: &Failure{Message: fmt.Sprintf("locate output: %v", err)}}
	}
	if f == nil {
		return Result{Failure: &Failure{Message: "audio file not found after download"}}
	}
	i.log.Info("Download completed", "path", f.Path, "bytes", f.Size, "elapsed", time.Since(start).Round(time.Millisecond))
	return Result{File: f}
}

// Args builds the yt-dlp command line for one attempt.
func (i *Invoker) Args(targetURL, template string, cfg AttemptConfig) []string {
	v := cfg.Variant
	args := []string{
		"-f", Format,
		"--no-playlist",
		"--no-post-overwrites",
		"--no-mtime",
		"--no-warnings",
		"--user-agent", v.UserAgent,
	}
	for _, h := range v.Headers {
		args = append(args, "--add-header", h.Name+":"+h.Value)
	}
	if v.PlayerClient != "" {
		args = append(args, "--extractor-args", "youtube:player_client="+v.PlayerClient)
	}
	if v.Posture == Permissive {
		args = append(args, "--no-check-certificates")
	}
	if i.opts.Retries > 0 {
		args = append(args,
			"--retries", strconv.Itoa(i.opts.Retries),
			"--extractor-retries", strconv.Itoa(i.opts.Retries),
		)
	}
	if i.opts.FragmentRetries > 0 {
		args = append(args, "--fragment-retries", strconv.Itoa(i.opts.FragmentRetries))
	}
	if i.opts.SleepRequests > 0 {
		args = append(args, "--sleep-requests", strconv.FormatFloat(i.opts.SleepRequests.Seconds(), 'f', -1, 64))
	}
	if i.opts.CookiesFile != "" {
		if _, err := os.Stat(i.opts.CookiesFile); err == nil {
			args = append(args, "--cookies", i.opts.CookiesFile)
		}
	}
	return append(args, "-o", template, "--", targetURL)
}
