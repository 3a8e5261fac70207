package flowgraph

import "github.com/pthm/flowscope/pkg/flow"

// mdBuilder assembles metadata for tests.
type mdBuilder struct {
	md *flow.Metadata
}

func newMD(name string) *mdBuilder {
	return &mdBuilder{md: &flow.Metadata{Name: name}}
}

func (b *mdBuilder) add(kind flow.StepKind, st flow.Step) *mdBuilder {
	b.md.SetSteps(kind, append(b.md.Steps(kind), st))
	return b
}

// op adds a non-branching step with an optional primary connector.
func (b *mdBuilder) op(kind flow.StepKind, name, next string) *mdBuilder {
	return b.add(kind, flow.Step{Name: name, Connector: conn(next)})
}

// loop adds a Loop with next-value and no-more-values connectors.
func (b *mdBuilder) loop(name, next, exit string) *mdBuilder {
	return b.add(flow.KindLoop, flow.Step{
		Name:                  name,
		NextValueConnector:    conn(next),
		NoMoreValuesConnector: conn(exit),
	})
}

// decision adds a Decision with one rule per target and an optional default.
func (b *mdBuilder) decision(name, def string, ruleTargets ...string) *mdBuilder {
	st := flow.Step{Name: name, DefaultConnector: conn(def)}
	for _, t := range ruleTargets {
		st.Rules = append(st.Rules, flow.Rule{Name: name + "_" + t, ConditionLogic: "and", Connector: conn(t)})
	}
	return b.add(flow.KindDecision, st)
}

// subflow adds a Subflow calling flowName.
func (b *mdBuilder) subflow(name, flowName, next string, inputs ...string) *mdBuilder {
	st := flow.Step{Name: name, FlowName: flowName, Connector: conn(next)}
	for i, in := range inputs {
		st.InputAssignments = append(st.InputAssignments, flow.InputAssignment{
			Field: "in" + string(rune('A'+i)),
			Value: flow.Value{ElementReference: in},
		})
	}
	return b.add(flow.KindSubflow, st)
}

func (b *mdBuilder) build() *flow.Metadata {
	return b.md
}

func conn(target string) *flow.Connector {
	if target == "" {
		return nil
	}
	return &flow.Connector{TargetReference: target}
}
