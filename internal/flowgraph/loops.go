package flowgraph

import (
	"strings"

	"github.com/pthm/flowscope/pkg/flow"
)

// Options tunes loop context propagation.
type Options struct {
	// Alternate re-runs connector propagation after reference detection and
	// repeats both until neither changes anything. Elements found through a
	// loop variable then also pull their own successors into the loop.
	// Off by default: reference detection runs once and does not propagate.
	Alternate bool

	// ExcludeExitEdges ignores a Loop's no-more-values connector, so steps
	// after a loop finishes are not attributed to it.
	ExcludeExitEdges bool
}

// Propagation is the result of loop context propagation over one graph.
type Propagation struct {
	Contexts flow.LoopContexts

	// Rounds counts full connector-propagation scans, including each final
	// scan that found nothing to change.
	Rounds int

	// Seeded lists elements claimed directly by a loop, in claim order.
	Seeded []string

	// Referenced lists elements placed in a loop only because they consume
	// its current-item variable.
	Referenced []string
}

// PropagateLoopContexts classifies every element's iteration membership.
func PropagateLoopContexts(g *flow.ElementGraph, opts Options) flow.LoopContexts {
	return Propagate(g, opts).Contexts
}

// Propagate runs loop context propagation and reports how it converged.
//
// Connector pass: every Loop claims its direct targets (first loop in graph
// order wins, and a claim is only ever replaced by a context of the same
// loop), then contexts are pushed along edges until a full scan changes
// nothing. A Loop that is itself inside another loop starts a new context for
// its targets one level deeper. Back edges into the owning loop are not
// followed, so a Loop never belongs to its own iteration.
//
// Each element remembers the (loop, depth) pairs it has held and never takes
// the same pair twice, and depth never exceeds the number of loops. The pass
// therefore terminates after at most elements x loops x loops updates.
//
// Reference pass: data-consuming elements that are still outside every loop
// and reference a loop variable (Loop_Name or Loop_Name.Field) are placed in
// that loop at depth 1.
func Propagate(g *flow.ElementGraph, opts Options) *Propagation {
	p := &propagator{
		g:      g,
		opts:   opts,
		ctxs:   make(flow.LoopContexts),
		seeded: make(map[string]bool),
		held:   make(map[string]map[pair]bool),
		loops:  g.OfKind(flow.KindLoop),
		result: &Propagation{},
	}
	p.maxDepth = len(p.loops)

	if len(p.loops) == 0 {
		p.result.Contexts = p.ctxs
		return p.result
	}

	p.seed()
	p.fixedPoint()
	for p.references() && opts.Alternate {
		if !p.fixedPoint() {
			break
		}
	}

	p.result.Contexts = p.ctxs
	return p.result
}

type pair struct {
	loop  string
	depth int
}

type propagator struct {
	g        *flow.ElementGraph
	opts     Options
	ctxs     flow.LoopContexts
	seeded   map[string]bool
	held     map[string]map[pair]bool
	loops    []*flow.Element
	maxDepth int
	result   *Propagation
}

// targets returns the resolvable successors of e that propagation follows.
//
// A Loop's no-more-values edge leads out of the iteration. It is followed
// unless ExcludeExitEdges is set, except into another Loop: that is the
// return to an enclosing loop or the start of a sibling one, never a step of
// this loop's body.
func (p *propagator) targets(e *flow.Element) []string {
	if e.Kind != flow.KindLoop {
		return p.g.Targets(e.Name)
	}
	inside := make(map[string]bool)
	for _, edge := range e.Edges {
		if edge.Kind != flow.EdgeNoMoreValues {
			inside[edge.Target] = true
		}
	}
	var out []string
	for _, t := range p.g.Targets(e.Name) {
		if inside[t] || (!p.opts.ExcludeExitEdges && p.g.Kind(t) != flow.KindLoop) {
			out = append(out, t)
		}
	}
	return out
}

// encloses reports whether loop t transitively contains loop r, judged by the
// contexts assigned so far.
func (p *propagator) encloses(t, r string) bool {
	seen := make(map[string]bool)
	for cur := r; cur != "" && !seen[cur]; {
		seen[cur] = true
		c, ok := p.ctxs[cur]
		if !ok {
			return false
		}
		if c.LoopReferenceName == t {
			return true
		}
		cur = c.LoopReferenceName
	}
	return false
}

func (p *propagator) seed() {
	for _, loop := range p.loops {
		for _, t := range p.targets(loop) {
			if t == loop.Name {
				continue
			}
			if _, claimed := p.ctxs[t]; claimed {
				continue
			}
			p.set(t, flow.LoopContext{
				IsInLoop:          true,
				LoopReferenceName: loop.Name,
				Depth:             1,
				Path:              []string{t},
				PathKinds:         []flow.StepKind{p.g.Kind(t)},
				Via:               flow.ViaConnector,
			})
			p.seeded[t] = true
			p.result.Seeded = append(p.result.Seeded, t)
		}
	}
}

// fixedPoint scans until nothing changes and reports whether any scan did.
func (p *propagator) fixedPoint() bool {
	progressed := false
	for {
		p.result.Rounds++
		changed := false
		for _, e := range p.g.Elements {
			c, ok := p.ctxs[e.Name]
			if !ok || !c.IsInLoop {
				continue
			}
			for _, t := range p.targets(e) {
				cand, ok := p.candidate(e, c, t)
				if !ok {
					continue
				}
				if p.apply(t, cand) {
					changed = true
				}
			}
		}
		if !changed {
			return progressed
		}
		progressed = true
	}
}

// candidate computes the context e would give its successor t.
func (p *propagator) candidate(e *flow.Element, c flow.LoopContext, t string) (flow.LoopContext, bool) {
	if t == c.LoopReferenceName || t == e.Name {
		return flow.LoopContext{}, false
	}

	if e.Kind == flow.KindLoop {
		// e iterates inside the loop that owns c.
		return flow.LoopContext{
			IsInLoop:          true,
			LoopReferenceName: e.Name,
			Depth:             c.Depth + 1,
			Path:              []string{t},
			PathKinds:         []flow.StepKind{p.g.Kind(t)},
			Via:               flow.ViaConnector,
		}, true
	}

	path := make([]string, len(c.Path), len(c.Path)+1)
	copy(path, c.Path)
	kinds := make([]flow.StepKind, len(c.PathKinds), len(c.PathKinds)+1)
	copy(kinds, c.PathKinds)

	return flow.LoopContext{
		IsInLoop:          true,
		LoopReferenceName: c.LoopReferenceName,
		Depth:             c.Depth,
		Path:              append(path, t),
		PathKinds:         append(kinds, p.g.Kind(t)),
		Via:               c.Via,
	}, true
}

// apply installs cand on t if it is new information and reports whether it
// did.
func (p *propagator) apply(t string, cand flow.LoopContext) bool {
	existing, ok := p.ctxs[t]
	if !ok {
		if cand.Depth > p.maxDepth || (p.g.Kind(t) == flow.KindLoop && p.encloses(t, cand.LoopReferenceName)) {
			return false
		}
		p.set(t, cand)
		return true
	}

	key := pair{cand.LoopReferenceName, cand.Depth}
	switch {
	case existing.LoopReferenceName == cand.LoopReferenceName && existing.Depth == cand.Depth:
		return false
	case p.seeded[t] && existing.LoopReferenceName != cand.LoopReferenceName:
		return false
	case p.held[t][key]:
		return false
	case cand.Depth > p.maxDepth:
		return false
	}
	if p.g.Kind(t) == flow.KindLoop && p.encloses(t, cand.LoopReferenceName) {
		return false
	}

	p.set(t, cand)
	return true
}

func (p *propagator) set(name string, c flow.LoopContext) {
	p.ctxs[name] = c
	h, ok := p.held[name]
	if !ok {
		h = make(map[pair]bool)
		p.held[name] = h
	}
	h[pair{c.LoopReferenceName, c.Depth}] = true
}

// referenceKinds are the kinds inspected for loop variable references.
var referenceKinds = map[flow.StepKind]bool{
	flow.KindAssignment:   true,
	flow.KindRecordLookup: true,
	flow.KindRecordCreate: true,
	flow.KindRecordUpdate: true,
	flow.KindRecordDelete: true,
	flow.KindSubflow:      true,
	flow.KindActionCall:   true,
}

// references runs the reference pass and reports whether it marked anything.
func (p *propagator) references() bool {
	changed := false
	for _, e := range p.g.Elements {
		if !referenceKinds[e.Kind] || p.ctxs.InLoop(e.Name) {
			continue
		}
		loop, ok := p.referencedLoop(e)
		if !ok {
			continue
		}
		p.set(e.Name, flow.LoopContext{
			IsInLoop:          true,
			LoopReferenceName: loop,
			Depth:             1,
			Path:              []string{e.Name},
			PathKinds:         []flow.StepKind{e.Kind},
			Via:               flow.ViaReference,
		})
		p.result.Referenced = append(p.result.Referenced, e.Name)
		changed = true
	}
	return changed
}

// referencedLoop returns the first loop whose variable e consumes.
func (p *propagator) referencedLoop(e *flow.Element) (string, bool) {
	for _, expr := range e.Props.ValueExpressions() {
		ref := StripMergeField(expr)
		for _, loop := range p.loops {
			if ReferencesLoop(ref, loop.Name) {
				return loop.Name, true
			}
		}
	}
	return "", false
}

// ReferencesLoop reports whether expr is the loop variable or a member of it.
func ReferencesLoop(expr, loop string) bool {
	if loop == "" || !strings.HasPrefix(expr, loop) {
		return false
	}
	rest := expr[len(loop):]
	return rest == "" || rest[0] == '.'
}

// StripMergeField removes a {!...} wrapper and surrounding space.
func StripMergeField(expr string) string {
	s := strings.TrimSpace(expr)
	if strings.HasPrefix(s, "{!") && strings.HasSuffix(s, "}") {
		s = strings.TrimSpace(s[2 : len(s)-1])
	}
	return s
}

// LoopOwners maps every nested Loop to the loop whose iteration contains it.
func LoopOwners(g *flow.ElementGraph, ctxs flow.LoopContexts) map[string]string {
	owners := make(map[string]string)
	for _, loop := range g.OfKind(flow.KindLoop) {
		if c, ok := ctxs[loop.Name]; ok && c.IsInLoop && c.LoopReferenceName != loop.Name {
			owners[loop.Name] = c.LoopReferenceName
		}
	}
	return owners
}

// NestedUnder reports whether the element with context c runs inside loop.
// That holds when c names the loop, the loop lies on c's path, or the loop
// transitively owns the loop c names.
func NestedUnder(c flow.LoopContext, loop string, owners map[string]string) bool {
	if !c.IsInLoop {
		return false
	}
	if c.LoopReferenceName == loop {
		return true
	}
	for _, n := range c.Path {
		if n == loop {
			return true
		}
	}
	seen := map[string]bool{}
	for cur := owners[c.LoopReferenceName]; cur != "" && !seen[cur]; cur = owners[cur] {
		if cur == loop {
			return true
		}
		seen[cur] = true
	}
	return false
}
