package flowgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/flowscope/pkg/flow"
)

func TestBuildEdges(t *testing.T) {
	md := newMD("Edges").
		add(flow.KindDecision, flow.Step{
			Name:             "D",
			DefaultConnector: conn("B"),
			Rules: []flow.Rule{
				{
					Name:           "Is_Big",
					ConditionLogic: "and",
					Conditions:     []flow.Condition{{LeftValueReference: "amount", Operator: "GreaterThan", RightValue: flow.Value{NumberValue: "100"}}},
					Connector:      conn("A"),
				},
				{Name: "No_Target"},
			},
		}).
		add(flow.KindRecordCreate, flow.Step{Name: "A", Connector: conn("B"), FaultConnector: conn("Err")}).
		op(flow.KindAssignment, "B", "").
		op(flow.KindScreen, "Err", "").
		build()

	g := Build(md)

	// Kinds order: RecordCreate before Assignment before Decision before Screen.
	names := make([]string, 0, g.Len())
	for _, e := range g.Elements {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"A", "B", "D", "Err"}, names)

	d, ok := g.Element("D")
	require.True(t, ok)
	require.Len(t, d.Edges, 2)
	assert.Equal(t, flow.Edge{Target: "B", Kind: flow.EdgeDefault}, d.Edges[0])
	assert.Equal(t, flow.EdgeRule, d.Edges[1].Kind)
	assert.Equal(t, "A", d.Edges[1].Target)
	assert.Equal(t, "Is_Big", d.Edges[1].Rule)
	assert.Equal(t, "and", d.Edges[1].ConditionLogic)
	require.Len(t, d.Edges[1].Conditions, 1)
	assert.Equal(t, []string{"Is_Big", "No_Target"}, d.Props.(*flow.DecisionProps).Rules)

	a, _ := g.Element("A")
	assert.Equal(t, []flow.EdgeKind{flow.EdgePrimary, flow.EdgeFault}, []flow.EdgeKind{a.Edges[0].Kind, a.Edges[1].Kind})
	assert.Equal(t, []string{"B", "Err"}, g.Adjacency["A"])
	assert.Empty(t, g.Dangling)
}

func TestBuildLoopEdges(t *testing.T) {
	g := Build(newMD("L").loop("L", "C", "Done").op(flow.KindRecordCreate, "C", "L").op(flow.KindScreen, "Done", "").build())

	l, ok := g.Element("L")
	require.True(t, ok)
	require.Len(t, l.Edges, 2)
	assert.Equal(t, flow.EdgeNextValue, l.Edges[0].Kind)
	assert.Equal(t, flow.EdgeNoMoreValues, l.Edges[1].Kind)
	assert.IsType(t, &flow.LoopProps{}, l.Props)
}

func TestBuildUnnamedAndDuplicates(t *testing.T) {
	md := newMD("Names").
		op(flow.KindRecordCreate, "", "").
		op(flow.KindRecordCreate, "", "").
		op(flow.KindAssignment, "Same", "").
		op(flow.KindScreen, "Same", "").
		build()

	g := Build(md)
	assert.True(t, g.Has("Unnamed"))
	assert.True(t, g.Has("Unnamed_2"))
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, flow.KindAssignment, g.Kind("Same"), "first definition wins")
	assert.Len(t, g.Warnings, 3)
}

func TestBuildUnnamedSkipsDeclaredNames(t *testing.T) {
	md := newMD("Collide").
		op(flow.KindRecordCreate, "", "Unnamed").
		op(flow.KindRecordCreate, "", "").
		op(flow.KindAssignment, "Unnamed", "").
		op(flow.KindAssignment, "Unnamed_3", "").
		build()

	g := Build(md)
	assert.Equal(t, 4, g.Len())
	assert.Equal(t, flow.KindAssignment, g.Kind("Unnamed"))
	assert.Equal(t, flow.KindAssignment, g.Kind("Unnamed_3"))
	assert.Equal(t, flow.KindRecordCreate, g.Kind("Unnamed_2"))
	assert.Equal(t, flow.KindRecordCreate, g.Kind("Unnamed_4"))

	// The first nameless step connects to the declared Unnamed, not itself.
	first, ok := g.Element("Unnamed_2")
	require.True(t, ok)
	assert.Equal(t, []string{"Unnamed"}, g.Targets(first.Name))
	for _, w := range g.Warnings {
		assert.NotContains(t, w, "duplicate")
	}
}

func TestBuildDanglingReference(t *testing.T) {
	g := Build(newMD("Dangling").op(flow.KindAssignment, "A", "Ghost").build())

	assert.Equal(t, []string{"Ghost"}, g.Adjacency["A"])
	assert.Empty(t, g.Targets("A"))
	require.Len(t, g.Dangling, 1)
	assert.Equal(t, flow.DanglingReference{From: "A", Target: "Ghost"}, g.Dangling[0])
	require.Len(t, g.Warnings, 1)
	assert.Contains(t, g.Warnings[0], "A -> Ghost")
}

func TestBuildProps(t *testing.T) {
	md := newMD("Props").
		add(flow.KindRecordLookup, flow.Step{
			Name:   "Get",
			Object: "Contact",
			Fields: []string{"Id", "Email"},
			InputAssignments: []flow.InputAssignment{
				{Field: "Email"},
				{Field: "Phone"},
			},
		}).
		add(flow.KindActionCall, flow.Step{Name: "Act", ActionName: "Child", ActionType: "flow"}).
		build()

	g := Build(md)
	get, _ := g.Element("Get")
	props, ok := get.Props.(*flow.RecordOpProps)
	require.True(t, ok)
	assert.Equal(t, "Contact", props.Object)
	assert.Equal(t, []string{"Id", "Email", "Phone"}, props.Fields)

	act, _ := g.Element("Act")
	ref, ok := act.SubflowReference()
	assert.True(t, ok)
	assert.Equal(t, "Child", ref)
}

func TestBuildDeterministic(t *testing.T) {
	md := newMD("Det").
		loop("L", "C", "").
		op(flow.KindRecordCreate, "C", "L").
		decision("D", "C", "L").
		build()

	first := Build(md)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Build(md))
	}
}
