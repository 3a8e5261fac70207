package flowgraph

import "github.com/pthm/flowscope/pkg/flow"

// Result bundles the graph-level artifacts of analyzing one workflow.
type Result struct {
	Graph       *flow.ElementGraph
	Propagation *Propagation
	Metrics     Metrics
	Analysis    *flow.WorkflowAnalysis
}

// Analyze builds, propagates and scores one workflow without resolving its
// sub-workflows. Cumulative metrics equal the workflow's own.
func Analyze(md *flow.Metadata, depth int, opts Options) *Result {
	g := Build(md)
	prop := Propagate(g, opts)
	m := ComputeMetrics(md, g, prop.Contexts, depth)

	a := &flow.WorkflowAnalysis{
		Name:                    md.Name,
		Depth:                   depth,
		ElementCount:            m.ElementCount,
		KindCounts:              m.KindCounts,
		LoopCount:               m.LoopCount,
		DecisionCount:           m.DecisionCount,
		SubflowCount:            m.SubflowCount,
		CrossObjectFormulaCount: m.CrossObjectFormulaCount,
		DirectDMLCount:          m.DMLCount,
		DirectSOQLCount:         m.SOQLCount,
		Complexity:              m.Complexity,
		CumulativeComplexity:    m.Complexity,
		CumulativeDMLCount:      m.DMLCount,
		CumulativeSOQLCount:     m.SOQLCount,
		BulkificationScore:      m.Score,
		ShouldBulkify:           m.ShouldBulkify,
		Reason:                  m.Reason,
		LoopContexts:            prop.Contexts,
		ChildSubflows:           []*flow.WorkflowAnalysis{},
		Recommendations:         []flow.Recommendation{},
		Warnings:                append([]string(nil), g.Warnings...),
	}

	return &Result{Graph: g, Propagation: prop, Metrics: m, Analysis: a}
}

// SubflowCall is one sub-workflow invocation found in a graph.
type SubflowCall struct {
	Element string
	Flow    string
	InLoop  bool
}

// SubflowCalls lists every Subflow element and flow-type ActionCall anywhere
// in the graph, in graph order, including those inside loops.
func SubflowCalls(g *flow.ElementGraph, ctxs flow.LoopContexts) []SubflowCall {
	var calls []SubflowCall
	for _, e := range g.Elements {
		name, ok := e.SubflowReference()
		if !ok {
			continue
		}
		calls = append(calls, SubflowCall{Element: e.Name, Flow: name, InLoop: ctxs.InLoop(e.Name)})
	}
	return calls
}
