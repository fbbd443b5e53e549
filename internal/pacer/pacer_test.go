package pacer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

const tolerance = time.Millisecond

// fakeClock is a manually advanced clock whose sleeps advance nothing.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func near(got, want time.Duration) bool {
	d := got - want
	return d > -tolerance && d < tolerance
}

func newFakeLocal(interval time.Duration) (*Local, *fakeClock) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	p := NewLocal(interval)
	p.now = clk.Now
	p.sleep = noSleep
	return p, clk
}

func TestLocal_FirstCallPassesImmediately(t *testing.T) {
	p, _ := newFakeLocal(2 * time.Second)
	wait, err := p.Gate(context.Background())
	if err != nil || wait != 0 {
		t.Fatalf("Gate = %v, %v; want 0, nil", wait, err)
	}
}

func TestLocal_BackToBack(t *testing.T) {
	p, clk := newFakeLocal(2 * time.Second)
	t0 := clk.Now()

	if _, err := p.Gate(context.Background()); err != nil {
		t.Fatal(err)
	}
	clk.Advance(100 * time.Millisecond)
	wait, err := p.Gate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	start := clk.Now().Add(wait)
	if start.Before(t0.Add(2*time.Second - tolerance)) {
		t.Fatalf("second start at +%v, want >= +2s", start.Sub(t0))
	}
	if !near(wait, 1900*time.Millisecond) {
		t.Fatalf("wait = %v, want 1.9s", wait)
	}
}

func TestLocal_AfterIntervalNoWait(t *testing.T) {
	p, clk := newFakeLocal(2 * time.Second)
	_, _ = p.Gate(context.Background())
	clk.Advance(3 * time.Second)
	if wait, _ := p.Gate(context.Background()); wait != 0 {
		t.Fatalf("wait = %v, want 0", wait)
	}
}

func TestLocal_ConcurrentCallersSerialized(t *testing.T) {
	const n = 5
	interval := 2 * time.Second
	p, _ := newFakeLocal(interval)

	var (
		mu    sync.Mutex
		waits []time.Duration
		wg    sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := p.Gate(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			waits = append(waits, w)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(waits, func(i, j int) bool { return waits[i] < waits[j] })
	for i, w := range waits {
		if !near(w, time.Duration(i)*interval) {
			t.Fatalf("waits = %v, want multiples of %v", waits, interval)
		}
	}
}

func TestLocal_RealTimeSpacing(t *testing.T) {
	interval := 30 * time.Millisecond
	p := NewLocal(interval)

	var (
		mu     sync.Mutex
		starts []time.Time
		wg     sync.WaitGroup
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Gate(context.Background()); err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < interval-5*time.Millisecond {
			t.Fatalf("gap %d = %v, want >= %v", i, gap, interval)
		}
	}
}

func TestLocal_CancelReturnsSlot(t *testing.T) {
	p, _ := newFakeLocal(2 * time.Second)
	_, _ = p.Gate(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Gate(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	// the canceled reservation must not push the next caller further back
	wait, err := p.Gate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !near(wait, 2*time.Second) {
		t.Fatalf("wait = %v, want 2s", wait)
	}
}

func TestLocal_Disabled(t *testing.T) {
	p, _ := newFakeLocal(0)
	for i := 0; i < 3; i++ {
		if wait, _ := p.Gate(context.Background()); wait != 0 {
			t.Fatalf("wait = %v with pacing disabled", wait)
		}
	}
}

func newTestShared(t *testing.T, mr *miniredis.Miniredis, interval time.Duration) (*Shared, *fakeClock) {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	fallback, _ := newFakeLocal(interval)
	p := newShared(rdb, Options{MinInterval: interval}, fallback, nil)
	p.now = clk.Now
	p.sleep = noSleep
	return p, clk
}

func TestShared_SpacesStarts(t *testing.T) {
	mr := miniredis.RunT(t)
	p, clk := newTestShared(t, mr, 2*time.Second)

	if wait, err := p.Gate(context.Background()); err != nil || wait != 0 {
		t.Fatalf("first Gate = %v, %v", wait, err)
	}
	clk.Advance(100 * time.Millisecond)
	wait, err := p.Gate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if wait != 1900*time.Millisecond {
		t.Fatalf("wait = %v, want 1.9s", wait)
	}
	if !mr.Exists(DefaultKey) {
		t.Fatal("pacer key not stored")
	}
	if ttl := mr.TTL(DefaultKey); ttl <= 0 {
		t.Fatalf("pacer key has no ttl: %v", ttl)
	}
}

func TestShared_TwoInstancesShareSchedule(t *testing.T) {
	mr := miniredis.RunT(t)
	a, _ := newTestShared(t, mr, 2*time.Second)
	b, _ := newTestShared(t, mr, 2*time.Second)

	if wait, _ := a.Gate(context.Background()); wait != 0 {
		t.Fatalf("a wait = %v", wait)
	}
	if wait, _ := b.Gate(context.Background()); wait != 2*time.Second {
		t.Fatalf("b wait = %v, want 2s", wait)
	}
}

func TestShared_FallsBackWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	p, _ := newTestShared(t, mr, 2*time.Second)
	mr.Close()

	wait, err := p.Gate(context.Background())
	if err != nil {
		t.Fatalf("Gate with redis down: %v", err)
	}
	if wait != 0 {
		t.Fatalf("fallback first wait = %v", wait)
	}
}

func TestNew_UnreachableRedisUsesLocal(t *testing.T) {
	p := New(Options{MinInterval: time.Second, RedisURL: "redis://127.0.0.1:1/0"}, nil)
	defer p.Close()
	if _, ok := p.(*Local); !ok {
		t.Fatalf("New returned %T, want *Local", p)
	}
}

func TestNew_SharedWhenReachable(t *testing.T) {
	mr := miniredis.RunT(t)
	p := New(Options{MinInterval: time.Second, RedisURL: "redis://" + mr.Addr()}, nil)
	defer p.Close()
	if _, ok := p.(*Shared); !ok {
		t.Fatalf("New returned %T, want *Shared", p)
	}
}
