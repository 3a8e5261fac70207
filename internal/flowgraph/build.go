// Package flowgraph builds element graphs from workflow metadata and runs the
// per-workflow analyses over them: loop context propagation and metrics.
//
// Everything in this package is a pure function of its inputs. There is no
// I/O, no recursion into sub-workflows (see internal/resolver) and no shared
// state, so a graph and its contexts can be computed from any goroutine.
package flowgraph

import (
	"fmt"

	"github.com/pthm/flowscope/pkg/flow"
)

// UnnamedElement is the name given to steps without a name.
const UnnamedElement = "Unnamed"

// Build walks the metadata once and produces the element graph.
//
// Elements are added in flow.Kinds order, then source order within a kind,
// so the graph (and every analysis over it) is deterministic for a given
// input. Steps without a name are registered as Unnamed, Unnamed_2, ... so the
// graph stays total; generated names skip any name a step declares. A step whose name is already taken is dropped with a
// warning; the first definition wins. Edges whose target names no element are
// kept on the element and listed in Dangling.
func Build(md *flow.Metadata) *flow.ElementGraph {
	g := flow.NewElementGraph()

	taken := make(map[string]bool)
	for _, kind := range flow.Kinds {
		for _, st := range md.Steps(kind) {
			if st.Name != "" {
				taken[st.Name] = true
			}
		}
	}
	unnamed := 0

	for _, kind := range flow.Kinds {
		for i := range md.Steps(kind) {
			st := &md.Steps(kind)[i]

			name := st.Name
			if name == "" {
				for {
					unnamed++
					name = UnnamedElement
					if unnamed > 1 {
						name = fmt.Sprintf("%s_%d", UnnamedElement, unnamed)
					}
					if !taken[name] {
						break
					}
				}
				taken[name] = true
				g.Warnings = append(g.Warnings, fmt.Sprintf("%s #%d has no name; registered as %s", kind, i+1, name))
			}

			e := &flow.Element{
				Name:  name,
				Kind:  kind,
				Props: buildProps(kind, st),
				Edges: buildEdges(kind, st),
			}
			if !g.Add(e) {
				g.Warnings = append(g.Warnings, fmt.Sprintf("duplicate element name %q (%s); keeping the first definition", name, kind))
			}
		}
	}

	for _, e := range g.Elements {
		for _, target := range g.Adjacency[e.Name] {
			if !g.Has(target) {
				d := flow.DanglingReference{From: e.Name, Target: target}
				g.Dangling = append(g.Dangling, d)
				g.Warnings = append(g.Warnings, fmt.Sprintf("%v: %s", flow.ErrUnresolvedReference, d))
			}
		}
	}

	return g
}

// buildEdges collects the outgoing connections of a step in a fixed order:
// primary, next value, no more values, default, fault, then one per rule.
func buildEdges(kind flow.StepKind, st *flow.Step) []flow.Edge {
	var edges []flow.Edge
	add := func(c *flow.Connector, ek flow.EdgeKind) {
		if t := c.Target(); t != "" {
			edges = append(edges, flow.Edge{Target: t, Kind: ek})
		}
	}

	add(st.Connector, flow.EdgePrimary)
	add(st.NextValueConnector, flow.EdgeNextValue)
	add(st.NoMoreValuesConnector, flow.EdgeNoMoreValues)
	add(st.DefaultConnector, flow.EdgeDefault)
	add(st.FaultConnector, flow.EdgeFault)

	if kind == flow.KindDecision {
		for _, r := range st.Rules {
			t := r.Connector.Target()
			if t == "" {
				continue
			}
			edges = append(edges, flow.Edge{
				Target:         t,
				Kind:           flow.EdgeRule,
				Rule:           r.Name,
				ConditionLogic: r.ConditionLogic,
				Conditions:     r.Conditions,
			})
		}
	}
	return edges
}

// buildProps projects the step record onto the variant for its kind.
func buildProps(kind flow.StepKind, st *flow.Step) flow.Props {
	switch kind {
	case flow.KindRecordCreate, flow.KindRecordUpdate, flow.KindRecordDelete,
		flow.KindRecordLookup, flow.KindRecordRollback:
		return &flow.RecordOpProps{
			Object:           st.Object,
			Fields:           recordFields(st),
			InputReference:   st.InputReference,
			OutputReference:  st.OutputReference,
			InputAssignments: st.InputAssignments,
			Filters:          st.Filters,
		}
	case flow.KindAssignment:
		return &flow.AssignmentProps{Items: st.AssignmentItems}
	case flow.KindDecision:
		rules := make([]string, 0, len(st.Rules))
		for _, r := range st.Rules {
			rules = append(rules, r.Name)
		}
		return &flow.DecisionProps{Rules: rules}
	case flow.KindLoop:
		return &flow.LoopProps{Collection: st.CollectionReference, Order: st.IterationOrder}
	case flow.KindSubflow:
		return &flow.SubflowProps{FlowName: st.FlowName, Inputs: st.InputAssignments}
	case flow.KindActionCall:
		return &flow.ActionCallProps{ActionName: st.ActionName, ActionType: st.ActionType, Inputs: st.InputAssignments}
	case flow.KindScreen:
		return &flow.ScreenProps{Fields: st.Fields}
	}
	return &flow.ScreenProps{}
}

// recordFields returns the queried fields followed by every assigned field
// not already listed.
func recordFields(st *flow.Step) []string {
	fields := append([]string(nil), st.Fields...)
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		seen[f] = true
	}
	for _, in := range st.InputAssignments {
		if in.Field != "" && !seen[in.Field] {
			seen[in.Field] = true
			fields = append(fields, in.Field)
		}
	}
	return fields
}
