package resolver

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ResolveMany resolves independent requests concurrently, bounded by
// Config.BatchConcurrency. Results are returned in request order; a failed
// domain never cancels its siblings.
func (r *Resolver) ResolveMany(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.BatchConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			rec, err := r.Resolve(gctx, req)
			results[i] = Result{Record: rec, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
