// Package resolver analyzes a workflow together with every sub-workflow it
// calls, transitively.
//
// Sub-workflows are fetched from a source.Source, analyzed with the same
// graph, propagation and metrics pipeline as the top-level workflow, and
// memoized in a Store so that a sub-workflow referenced from several places
// is analyzed once per run. Recursion stops at a fixed depth with a sentinel
// analysis, which also bounds reference cycles.
//
// # Concurrency
//
// Before descending into a workflow's children the resolver fetches their
// raw definitions concurrently (bounded by Options.Workers). Analysis and
// store insertion remain sequential within one resolution. Separate Resolve
// calls may run concurrently on a shared Store: a resolution that would wait
// on a sub-workflow held by a resolution already waiting on it computes that
// sub-workflow itself instead.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/pthm/flowscope/internal/ctxlog"
	"github.com/pthm/flowscope/internal/flowgraph"
	"github.com/pthm/flowscope/pkg/flow"
	"github.com/pthm/flowscope/pkg/parser"
	"github.com/pthm/flowscope/pkg/source"
)

// DefaultWorkers is the prefetch concurrency used when Options.Workers is
// unset.
const DefaultWorkers = 4

// Options configure a Resolver.
type Options struct {
	// MaxDepth is the recursion limit. Zero means flow.MaxDepth.
	MaxDepth int
	// Workers bounds concurrent sub-workflow fetches. Zero means
	// DefaultWorkers; one disables prefetching.
	Workers int
	// Graph configures loop-context propagation.
	Graph flowgraph.Options
}

// Resolver resolves workflows and their sub-workflows.
type Resolver struct {
	store   *Store
	opts    Options
	fetcher *fetcher
}

// New creates a resolver over src. A nil store gets a fresh one.
func New(src source.Source, store *Store, opts Options) *Resolver {
	if store == nil {
		store = NewStore()
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = flow.MaxDepth
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Resolver{
		store:   store,
		opts:    opts,
		fetcher: newFetcher(src),
	}
}

// Store returns the resolver's memo store.
func (r *Resolver) Store() *Store {
	return r.store
}

// Analyze fetches and analyzes the top-level workflow name at depth 0.
//
// A failed fetch or a malformed document is returned as an error; failures
// below the top level are recorded as warnings instead.
func (r *Resolver) Analyze(ctx context.Context, name string) (*flow.WorkflowAnalysis, error) {
	raw, err := r.fetcher.fetch(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	return r.AnalyzeRaw(ctx, raw)
}

// AnalyzeRaw analyzes an already fetched top-level definition.
func (r *Resolver) AnalyzeRaw(ctx context.Context, raw source.RawMetadata) (*flow.WorkflowAnalysis, error) {
	md, err := parser.Parse(raw)
	if err != nil {
		return nil, err
	}
	version := raw.Version
	return r.AnalyzeMetadata(ctx, md, &version), nil
}

// AnalyzeMetadata analyzes parsed metadata as the top-level workflow.
func (r *Resolver) AnalyzeMetadata(ctx context.Context, md *flow.Metadata, version *flow.Version) *flow.WorkflowAnalysis {
	return r.analyze(ctx, &walk{}, md, version, 0, []string{md.Name})
}

// Resolve returns the analysis of sub-workflow name at depth.
//
// At or beyond the depth limit it returns flow.DepthExceeded without
// fetching. Otherwise the result is served from the store when present; a
// served result is a shallow copy with Cached set and must not be modified.
// inLoop only annotates logging: callers record loop invocation on their own
// analysis, never on the shared child. Concurrent calls may share the store,
// including over reference cycles.
func (r *Resolver) Resolve(ctx context.Context, name string, depth int, inLoop bool) (*flow.WorkflowAnalysis, error) {
	return r.resolve(ctx, &walk{}, name, depth, inLoop, nil)
}

func (r *Resolver) resolve(ctx context.Context, w *walk, name string, depth int, inLoop bool, chain []string) (*flow.WorkflowAnalysis, error) {
	log := ctxlog.FromContext(ctx).With("flow", name, "depth", depth)

	if depth >= r.opts.MaxDepth {
		log.Debug("recursion limit reached")
		return flow.DepthExceeded(name, depth), nil
	}

	// A name already being resolved further up the chain would wait on
	// itself in the store.
	if slices.Contains(chain, name) {
		log.Debug("recursive sub-workflow reference", "in_loop", inLoop)
		return r.compute(ctx, w, name, depth, chain)
	}

	a, cached, err := r.store.do(w, name, func() (*flow.WorkflowAnalysis, error) {
		log.Debug("resolving sub-workflow", "in_loop", inLoop)
		return r.compute(ctx, w, name, depth, chain)
	})
	if errors.Is(err, errWaitCycle) {
		// Another resolution holds name and is waiting on one of ours.
		log.Debug("sub-workflow in flight on a waiting resolution", "in_loop", inLoop)
		return r.compute(ctx, w, name, depth, chain)
	}
	if err != nil {
		return nil, err
	}
	if cached {
		cp := *a
		cp.Cached = true
		return &cp, nil
	}
	return a, nil
}

func (r *Resolver) compute(ctx context.Context, w *walk, name string, depth int, chain []string) (*flow.WorkflowAnalysis, error) {
	raw, err := r.fetcher.fetch(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", flow.ErrFetchFailure, err)
	}
	md, err := parser.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", flow.ErrFetchFailure, name, err)
	}
	version := raw.Version
	return r.analyze(ctx, w, md, &version, depth, append(slices.Clip(chain), name)), nil
}

// analyze runs the per-workflow pipeline and resolves children one level
// down. chain holds the names being resolved, outermost first, including
// this workflow.
func (r *Resolver) analyze(ctx context.Context, w *walk, md *flow.Metadata, version *flow.Version, depth int, chain []string) *flow.WorkflowAnalysis {
	res := flowgraph.Analyze(md, depth, r.opts.Graph)
	a := res.Analysis
	a.Version = version

	children, inLoop := distinctChildren(flowgraph.SubflowCalls(res.Graph, res.Propagation.Contexts))
	if len(children) == 0 {
		return a
	}

	if depth+1 < r.opts.MaxDepth {
		var pending []string
		for _, c := range children {
			if !r.store.Has(c) {
				pending = append(pending, c)
			}
		}
		r.fetcher.prefetch(ctx, pending, r.opts.Workers)
	}

	log := ctxlog.FromContext(ctx)
	for _, name := range children {
		if inLoop[name] {
			a.SubflowsInLoop = append(a.SubflowsInLoop, name)
		}

		child, err := r.resolve(ctx, w, name, depth+1, inLoop[name], chain)
		if err != nil {
			log.Warn("sub-workflow excluded from analysis",
				"flow", md.Name,
				"subflow", name,
				"error", err,
			)
			a.Warnings = append(a.Warnings, fmt.Sprintf("sub-workflow %s excluded: %v", name, err))
			continue
		}

		a.ChildSubflows = append(a.ChildSubflows, child)
		a.CumulativeComplexity += child.CumulativeComplexity
		a.CumulativeDMLCount += child.CumulativeDMLCount
		a.CumulativeSOQLCount += child.CumulativeSOQLCount
	}
	return a
}

// distinctChildren returns the called workflow names in first-call order and
// which of them are called from inside a loop.
func distinctChildren(calls []flowgraph.SubflowCall) ([]string, map[string]bool) {
	var names []string
	inLoop := make(map[string]bool)
	for _, c := range calls {
		if _, seen := inLoop[c.Flow]; !seen {
			names = append(names, c.Flow)
			inLoop[c.Flow] = false
		}
		if c.InLoop {
			inLoop[c.Flow] = true
		}
	}
	return names, inLoop
}
