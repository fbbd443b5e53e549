// Package testutils provides a scripted stand-in for the yt-dlp process.
package testutils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Step is the scripted outcome of one invocation.
type Step struct {
	// Ext and Size describe the file written on success.
	Ext  string
	Size int
	// Stderr, when set, makes the invocation fail with this diagnostic.
	Stderr string
	// Partial leaves a .part file behind before failing.
	Partial bool
	// Hang blocks until the context is done.
	Hang bool
}

// Success writes a file of size bytes with extension ext.
func Success(ext string, size int) Step { return Step{Ext: ext, Size: size} }

// Fail exits non-zero with stderr.
func Fail(stderr string) Step { return Step{Stderr: stderr} }

// Hang never finishes on its own.
func Hang() Step { return Step{Hang: true} }

// Runner replays Steps in order; the last step repeats once exhausted.
type Runner struct {
	mu    sync.Mutex
	steps []Step
	calls [][]string
}

// NewRunner returns a Runner scripted with steps.
func NewRunner(steps ...Step) *Runner {
	return &Runner{steps: steps}
}

// Calls returns the argument lists of every invocation so far.
func (r *Runner) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// Run implements extractor.Runner.
func (r *Runner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.mu.Lock()
	n := len(r.calls)
	r.calls = append(r.calls, append([]string(nil), args...))
	var step Step
	if len(r.steps) > 0 {
		step = r.steps[min(n, len(r.steps)-1)]
	}
	r.mu.Unlock()

	template := Arg(args, "-o")
	switch {
	case step.Hang:
		<-ctx.Done()
		return nil, []byte("[download] interrupted"), ctx.Err()
	case step.Stderr != "":
		if step.Partial && template != "" {
			_ = os.WriteFile(strings.Replace(template, "%(ext)s", "webm.part", 1), []byte("x"), 0o644)
		}
		return nil, []byte(step.Stderr), errors.New("exit status 1")
	}
	if template == "" {
		return nil, nil, fmt.Errorf("%s: no output template", name)
	}
	path := strings.Replace(template, "%(ext)s", step.Ext, 1)
	if err := os.WriteFile(path, make([]byte, step.Size), 0o644); err != nil {
		return nil, nil, err
	}
	return []byte("[download] 100%"), nil, nil
}

// Arg returns the value following flag in args.
func Arg(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

// Has reports whether args contains flag.
func Has(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}
