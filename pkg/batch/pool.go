package batch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds worker pool configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel workers.
	MaxConcurrency int

	// Timeout bounds each item; zero means no per-item timeout.
	Timeout time.Duration
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
	}
}

// Result is the outcome of processing one item.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// Func processes a single item.
type Func[In, Out any] func(ctx context.Context, index int, item In) (Out, error)

// Run processes items with a bounded worker pool. The returned slice has the
// same length as items and results[i] always belongs to items[i].
func Run[In, Out any](ctx context.Context, cfg Config, items []In, fn Func[In, Out]) []Result[Out] {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}

	results := make([]Result[Out], len(items))
	for i := range results {
		results[i].Index = i
	}
	if len(items) == 0 {
		return results
	}

	workers := cfg.MaxConcurrency
	if workers > len(items) {
		workers = len(items)
	}

	queue := make(chan int, len(items))
	for i := range items {
		queue <- i
	}
	close(queue)

	start := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go worker(ctx, cfg, items, fn, queue, results, &wg, w)
	}
	wg.Wait()

	log.Debug().
		Int("items", len(items)).
		Int("workers", workers).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")

	return results
}

// worker processes indices from the queue. Each index is owned by exactly
// one worker, so writes into results need no locking.
func worker[In, Out any](ctx context.Context, cfg Config, items []In, fn Func[In, Out], queue <-chan int, results []Result[Out], wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for i := range queue {
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}

		itemCtx, cancel := ctx, context.CancelFunc(func() {})
		if cfg.Timeout > 0 {
			itemCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		}
		value, err := fn(itemCtx, i, items[i])
		cancel()

		results[i].Value = value
		results[i].Err = err
		processed++
	}

	if processed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("items_processed", processed).
			Msg("Worker completed")
	}
}
