package resolver

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/pthm/flowscope/pkg/source"
)

type fetchResult struct {
	raw source.RawMetadata
	err error
}

// fetcher fetches each raw definition once per run. Concurrent requests for
// the same name share one call to the source.
type fetcher struct {
	src   source.Source
	group singleflight.Group

	mu      sync.Mutex
	results map[string]fetchResult
}

func newFetcher(src source.Source) *fetcher {
	return &fetcher{src: src, results: make(map[string]fetchResult)}
}

func (f *fetcher) fetch(ctx context.Context, name string) (source.RawMetadata, error) {
	f.mu.Lock()
	if r, ok := f.results[name]; ok {
		f.mu.Unlock()
		return r.raw, r.err
	}
	f.mu.Unlock()

	v, err, _ := f.group.Do(name, func() (any, error) {
		raw, err := f.src.Fetch(ctx, name)
		f.mu.Lock()
		f.results[name] = fetchResult{raw: raw, err: err}
		f.mu.Unlock()
		return raw, err
	})
	raw, _ := v.(source.RawMetadata)
	return raw, err
}

// prefetch fetches names concurrently with at most workers in flight.
// Errors are kept for the later sequential fetch and never cancel siblings.
func (f *fetcher) prefetch(ctx context.Context, names []string, workers int) {
	if len(names) < 2 || workers < 2 {
		return
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for _, name := range names {
		name := name
		g.Go(func() error {
			_, _ = f.fetch(ctx, name)
			return nil
		})
	}
	_ = g.Wait()
}
