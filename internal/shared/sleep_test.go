package shared

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSleepOrDone(t *testing.T) {
	t.Parallel()

	if err := SleepOrDone(context.Background(), 5*time.Millisecond); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := SleepOrDone(context.Background(), 0); err != nil {
		t.Fatalf("zero duration: expected nil, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := SleepOrDone(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("sleep did not return early on cancel")
	}
}
