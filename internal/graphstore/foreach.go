package graphstore

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEach calls fn for every item of one batch. With concurrency <= 1 the
// calls are sequential and stop at the first error; otherwise up to
// concurrency calls run at once and the first error cancels the rest.
func ForEach[T any](ctx context.Context, items []T, concurrency int, fn func(context.Context, T) error) error {
	if concurrency <= 1 {
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, item); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return fn(gctx, item)
		})
	}
	return g.Wait()
}
