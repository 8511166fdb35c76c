package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxConcurrency != 4 {
		t.Errorf("MaxConcurrency = %d, want 4", cfg.MaxConcurrency)
	}
	if cfg.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0", cfg.Timeout)
	}
}

func TestRun_PreservesInputOrder(t *testing.T) {
	items := []int{50, 10, 40, 0, 30, 20}

	// Later items finish first; output must still follow input order.
	results := Run(context.Background(), Config{MaxConcurrency: 3}, items,
		func(ctx context.Context, i int, delayMs int) (int, error) {
			time.Sleep(time.Duration(delayMs) * time.Millisecond)
			return delayMs * 2, nil
		})

	if len(results) != len(items) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(items))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("results[%d].Index = %d", i, r.Index)
		}
		if r.Err != nil {
			t.Errorf("results[%d].Err = %v", i, r.Err)
		}
		if r.Value != items[i]*2 {
			t.Errorf("results[%d].Value = %d, want %d", i, r.Value, items[i]*2)
		}
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32

	items := make([]int, 20)
	Run(context.Background(), Config{MaxConcurrency: 4}, items,
		func(ctx context.Context, i int, _ int) (struct{}, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return struct{}{}, nil
		})

	if got := peak.Load(); got > 4 {
		t.Errorf("peak concurrency = %d, want <= 4", got)
	}
}

func TestRun_PerItemErrors(t *testing.T) {
	boom := errors.New("boom")
	items := []string{"ok", "fail", "ok"}

	results := Run(context.Background(), DefaultConfig(), items,
		func(ctx context.Context, i int, s string) (string, error) {
			if s == "fail" {
				return "", boom
			}
			return s, nil
		})

	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("unexpected errors: %v, %v", results[0].Err, results[2].Err)
	}
	if !errors.Is(results[1].Err, boom) {
		t.Errorf("results[1].Err = %v, want boom", results[1].Err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	results := Run(ctx, DefaultConfig(), []int{1, 2, 3},
		func(ctx context.Context, i int, v int) (int, error) {
			calls.Add(1)
			return v, nil
		})

	if calls.Load() != 0 {
		t.Errorf("fn called %d times after cancellation", calls.Load())
	}
	for i, r := range results {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("results[%d].Err = %v, want context.Canceled", i, r.Err)
		}
	}
}

func TestRun_ItemTimeout(t *testing.T) {
	results := Run(context.Background(), Config{MaxConcurrency: 1, Timeout: 10 * time.Millisecond}, []int{1},
		func(ctx context.Context, i int, v int) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})

	if !errors.Is(results[0].Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want context.DeadlineExceeded", results[0].Err)
	}
}

func TestRun_Empty(t *testing.T) {
	results := Run(context.Background(), DefaultConfig(), []int(nil),
		func(ctx context.Context, i int, v int) (int, error) { return v, nil })

	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}
