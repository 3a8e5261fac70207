// Package analyzer is the public entry point of the flowscope analysis
// engine.
//
// It wires a source.Source to the sub-workflow resolver and the
// recommendation generator:
//
//	src := source.NewDir("force-app/main/default/flows")
//	a, err := analyzer.Analyze(ctx, src, "Account_After_Save")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(a.BulkificationScore, a.ShouldBulkify, a.Reason)
//
// Each call uses a fresh resolver store, so results from one run never leak
// into the next. Use Analyzer directly to tune recursion depth, prefetch
// concurrency or loop-context propagation.
package analyzer

import (
	"context"

	"github.com/pthm/flowscope/internal/flowgraph"
	"github.com/pthm/flowscope/internal/recommend"
	"github.com/pthm/flowscope/internal/resolver"
	"github.com/pthm/flowscope/pkg/flow"
	"github.com/pthm/flowscope/pkg/source"
)

// Options control an analysis run.
type Options struct {
	// MaxDepth is the sub-workflow recursion limit. Zero means flow.MaxDepth.
	MaxDepth int

	// Workers bounds concurrent sub-workflow fetches. Zero uses the
	// resolver default; one fetches sequentially.
	Workers int

	// Alternate re-runs connector propagation after the reference pass until
	// neither changes anything, so elements found through a loop variable
	// reference also put their successors in the loop.
	Alternate bool

	// ExcludeExitEdges stops a loop's no-more-values target from being
	// treated as part of the loop body.
	ExcludeExitEdges bool
}

func (o Options) resolverOptions() resolver.Options {
	return resolver.Options{
		MaxDepth: o.MaxDepth,
		Workers:  o.Workers,
		Graph: flowgraph.Options{
			Alternate:        o.Alternate,
			ExcludeExitEdges: o.ExcludeExitEdges,
		},
	}
}

// Stats describe the resolver store after a run.
type Stats = resolver.Stats

// Analyzer analyzes workflows fetched from a source.
type Analyzer struct {
	src  source.Source
	opts Options
}

// New creates an Analyzer.
func New(src source.Source, opts Options) *Analyzer {
	return &Analyzer{src: src, opts: opts}
}

// Analyze is shorthand for New(src, Options{}).Analyze(ctx, name).
func Analyze(ctx context.Context, src source.Source, name string) (*flow.WorkflowAnalysis, error) {
	return New(src, Options{}).Analyze(ctx, name)
}

// Analyze fetches name, resolves its sub-workflows and attaches
// recommendations. The returned error wraps flow.ErrNotFound when name does
// not exist and flow.ErrMalformedInput when its definition cannot be parsed.
func (a *Analyzer) Analyze(ctx context.Context, name string) (*flow.WorkflowAnalysis, error) {
	res, _, err := a.AnalyzeWithStats(ctx, name)
	return res, err
}

// AnalyzeWithStats is Analyze that also reports resolver store counters.
func (a *Analyzer) AnalyzeWithStats(ctx context.Context, name string) (*flow.WorkflowAnalysis, Stats, error) {
	r := a.resolver()
	res, err := r.Analyze(ctx, name)
	if err != nil {
		return nil, r.Store().Stats(), err
	}
	res.Recommendations = recommend.Walk(res)
	return res, r.Store().Stats(), nil
}

// AnalyzeRaw analyzes a definition that did not come from the source, such
// as an uploaded document. Its sub-workflows are still fetched from the
// source.
func (a *Analyzer) AnalyzeRaw(ctx context.Context, raw source.RawMetadata) (*flow.WorkflowAnalysis, error) {
	res, err := a.resolver().AnalyzeRaw(ctx, raw)
	if err != nil {
		return nil, err
	}
	res.Recommendations = recommend.Walk(res)
	return res, nil
}

// AnalyzeMetadata analyzes parsed metadata as the top-level workflow.
func (a *Analyzer) AnalyzeMetadata(ctx context.Context, md *flow.Metadata) *flow.WorkflowAnalysis {
	res := a.resolver().AnalyzeMetadata(ctx, md, nil)
	res.Recommendations = recommend.Walk(res)
	return res
}

func (a *Analyzer) resolver() *resolver.Resolver {
	return resolver.New(a.src, resolver.NewStore(), a.opts.resolverOptions())
}
