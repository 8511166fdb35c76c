// Package batch provides a bounded worker pool that processes a slice of
// items in parallel and returns results ordered by input index.
//
// Example usage:
//
//	cfg := batch.DefaultConfig()
//	results := batch.Run(ctx, cfg, titles, func(ctx context.Context, i int, title string) (string, error) {
//		return resolve(ctx, title)
//	})
//	for _, r := range results {
//		// r.Index == position in titles
//	}
//
// The pool:
//   - Spawns at most MaxConcurrency workers (default 4)
//   - Distributes items across workers through a queue channel
//   - Writes each result into its input slot, so completion order never leaks
//   - Stops handing out items once the context is cancelled; unprocessed
//     items carry the context error
package batch
