package flowgraph

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/flowscope/pkg/flow"
)

func TestLoopToCreate(t *testing.T) {
	g := Build(newMD("Simple").loop("L", "C", "").op(flow.KindRecordCreate, "C", "").build())
	ctxs := PropagateLoopContexts(g, Options{})

	want := flow.LoopContexts{
		"C": {
			IsInLoop:          true,
			LoopReferenceName: "L",
			Depth:             1,
			Path:              []string{"C"},
			PathKinds:         []flow.StepKind{flow.KindRecordCreate},
			Via:               flow.ViaConnector,
		},
	}
	if diff := cmp.Diff(want, ctxs); diff != "" {
		t.Errorf("loop contexts mismatch (-want +got):\n%s", diff)
	}
}

func TestNoLoopNoContexts(t *testing.T) {
	g := Build(newMD("Branches").
		decision("D1", "", "D2").
		decision("D2", "", "S").
		subflow("S", "Child", "").
		build())

	ctxs := PropagateLoopContexts(g, Options{})
	assert.Empty(t, ctxs)
	for _, name := range []string{"D1", "D2", "S"} {
		assert.False(t, ctxs.InLoop(name))
	}
}

func TestPathExtension(t *testing.T) {
	g := Build(newMD("Chain").
		loop("L", "A", "").
		op(flow.KindAssignment, "A", "D").
		decision("D", "L", "U").
		op(flow.KindRecordUpdate, "U", "L").
		build())

	ctxs := PropagateLoopContexts(g, Options{})
	require.Contains(t, ctxs, "U")
	u := ctxs["U"]
	assert.Equal(t, "L", u.LoopReferenceName)
	assert.Equal(t, 1, u.Depth)
	assert.Equal(t, []string{"A", "D", "U"}, u.Path)
	assert.Equal(t, []flow.StepKind{flow.KindAssignment, flow.KindDecision, flow.KindRecordUpdate}, u.PathKinds)

	// Back edges to the loop never put the loop inside itself.
	assert.NotContains(t, ctxs, "L")
}

func TestFirstClaimPriority(t *testing.T) {
	g := Build(newMD("TwoLoops").
		loop("L1", "X", "").
		loop("L2", "Y", "X").
		op(flow.KindAssignment, "Y", "X").
		op(flow.KindRecordCreate, "X", "").
		build())

	prop := Propagate(g, Options{})
	assert.Equal(t, "L1", prop.Contexts["X"].LoopReferenceName)
	assert.Equal(t, "L2", prop.Contexts["Y"].LoopReferenceName)
	assert.Equal(t, []string{"X", "Y"}, prop.Seeded)

	// Stable across repeated runs.
	for i := 0; i < 3; i++ {
		assert.Equal(t, "L1", PropagateLoopContexts(g, Options{})["X"].LoopReferenceName)
	}
}

func TestNestedLoops(t *testing.T) {
	tests := []struct {
		name string
		md   *flow.Metadata
	}{
		{
			name: "outer first",
			md: newMD("Nested").
				loop("Outer", "Inner", "Done").
				loop("Inner", "C", "Outer").
				op(flow.KindRecordCreate, "C", "Inner").
				op(flow.KindScreen, "Done", "").
				build(),
		},
		{
			name: "inner first",
			md: newMD("Nested").
				loop("Inner", "C", "Outer").
				loop("Outer", "Inner", "Done").
				op(flow.KindRecordCreate, "C", "Inner").
				op(flow.KindScreen, "Done", "").
				build(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := Build(tt.md)
			ctxs := PropagateLoopContexts(g, Options{})

			assert.NotContains(t, ctxs, "Outer")
			require.Contains(t, ctxs, "Inner")
			assert.Equal(t, "Outer", ctxs["Inner"].LoopReferenceName)
			assert.Equal(t, 1, ctxs["Inner"].Depth)

			require.Contains(t, ctxs, "C")
			assert.Equal(t, "Inner", ctxs["C"].LoopReferenceName)
			assert.Equal(t, 2, ctxs["C"].Depth)
			assert.Equal(t, []string{"C"}, ctxs["C"].Path)

			owners := LoopOwners(g, ctxs)
			assert.Equal(t, map[string]string{"Inner": "Outer"}, owners)
			assert.True(t, NestedUnder(ctxs["C"], "Outer", owners))
			assert.True(t, NestedUnder(ctxs["C"], "Inner", owners))
		})
	}
}

func TestExitEdges(t *testing.T) {
	md := newMD("Exit").
		loop("L", "C", "After").
		op(flow.KindRecordCreate, "C", "L").
		op(flow.KindRecordUpdate, "After", "").
		build()
	g := Build(md)

	ctxs := PropagateLoopContexts(g, Options{})
	assert.True(t, ctxs.InLoop("After"), "every loop edge target is claimed")

	ctxs = PropagateLoopContexts(g, Options{ExcludeExitEdges: true})
	assert.False(t, ctxs.InLoop("After"))
	assert.True(t, ctxs.InLoop("C"))
}

func TestReferencePass(t *testing.T) {
	md := newMD("Indirect").
		loop("Loop_over_Accounts", "Body", "").
		op(flow.KindAssignment, "Body", "Loop_over_Accounts").
		subflow("S", "Child", "Next", "Loop_over_Accounts.Id").
		op(flow.KindRecordCreate, "Next", "").
		build()
	g := Build(md)

	prop := Propagate(g, Options{})
	want := flow.LoopContext{
		IsInLoop:          true,
		LoopReferenceName: "Loop_over_Accounts",
		Depth:             1,
		Path:              []string{"S"},
		PathKinds:         []flow.StepKind{flow.KindSubflow},
		Via:               flow.ViaReference,
	}
	if diff := cmp.Diff(want, prop.Contexts["S"]); diff != "" {
		t.Errorf("S context mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"S"}, prop.Referenced)

	// The reference pass does not feed back into connector propagation.
	assert.False(t, prop.Contexts.InLoop("Next"))

	alt := Propagate(g, Options{Alternate: true})
	require.True(t, alt.Contexts.InLoop("Next"))
	assert.Equal(t, []string{"S", "Next"}, alt.Contexts["Next"].Path)
	assert.Equal(t, flow.ViaReference, alt.Contexts["Next"].Via)
}

func TestReferencePassKeepsConnectorContext(t *testing.T) {
	md := newMD("Both").
		loop("L1", "A", "").
		loop("L2", "", "").
		add(flow.KindAssignment, flow.Step{
			Name:            "A",
			AssignmentItems: []flow.AssignmentItem{{AssignToReference: "x", Value: flow.Value{ElementReference: "L2.Id"}}},
		}).
		build()

	ctxs := PropagateLoopContexts(Build(md), Options{})
	assert.Equal(t, "L1", ctxs["A"].LoopReferenceName)
	assert.Equal(t, flow.ViaConnector, ctxs["A"].Via)
}

func TestReferencesLoop(t *testing.T) {
	tests := []struct {
		expr string
		loop string
		want bool
	}{
		{"Loop_A", "Loop_A", true},
		{"Loop_A.Id", "Loop_A", true},
		{"Loop_A.Account.Name", "Loop_A", true},
		{"Loop_AB.Id", "Loop_A", false},
		{"Other.Loop_A", "Loop_A", false},
		{"", "Loop_A", false},
		{"x", "", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.expr, tt.loop), func(t *testing.T) {
			assert.Equal(t, tt.want, ReferencesLoop(tt.expr, tt.loop))
		})
	}

	assert.Equal(t, "Loop_A.Id", StripMergeField(" {!Loop_A.Id} "))
	assert.Equal(t, "Loop_A.Id", StripMergeField("Loop_A.Id"))
}

func TestReferencePassMergeFieldAndKinds(t *testing.T) {
	md := newMD("Merge").
		loop("L", "", "").
		add(flow.KindRecordLookup, flow.Step{
			Name:    "Get",
			Filters: []flow.Filter{{Field: "AccountId", Operator: "EqualTo", Value: flow.Value{ElementReference: "{!L.AccountId}"}}},
		}).
		add(flow.KindScreen, flow.Step{Name: "Show", Fields: []string{"L"}}).
		add(flow.KindRecordUpdate, flow.Step{Name: "Save", InputReference: "L"}).
		build()

	ctxs := PropagateLoopContexts(Build(md), Options{})
	assert.True(t, ctxs.InLoop("Get"))
	assert.True(t, ctxs.InLoop("Save"))
	assert.False(t, ctxs.InLoop("Show"), "screens are not inspected for references")
}

// randomMetadata builds an arbitrary, usually cyclic, workflow.
func randomMetadata(r *rand.Rand, n int) *flow.Metadata {
	b := newMD(fmt.Sprintf("Random_%d", n))
	kinds := []flow.StepKind{
		flow.KindRecordCreate, flow.KindRecordUpdate, flow.KindRecordLookup,
		flow.KindAssignment, flow.KindDecision, flow.KindLoop, flow.KindSubflow,
	}
	name := func(i int) string { return fmt.Sprintf("E%d", i) }
	pick := func() string { return name(r.Intn(n)) }

	for i := 0; i < n; i++ {
		kind := kinds[r.Intn(len(kinds))]
		switch kind {
		case flow.KindLoop:
			b.loop(name(i), pick(), pick())
		case flow.KindDecision:
			b.decision(name(i), pick(), pick(), pick())
		case flow.KindSubflow:
			b.subflow(name(i), "Child", pick(), name(r.Intn(n))+".Id")
		default:
			b.add(kind, flow.Step{
				Name:           name(i),
				Connector:      conn(pick()),
				FaultConnector: conn(pick()),
				InputReference: name(r.Intn(n)),
			})
		}
	}
	return b.build()
}

func TestPropagationProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		n := 2 + r.Intn(30)
		md := randomMetadata(r, n)
		g := Build(md)
		loops := g.Count(flow.KindLoop)

		for _, opts := range []Options{{}, {Alternate: true}, {ExcludeExitEdges: true}} {
			prop := Propagate(g, opts)

			// Termination within the elements x loops bound (plus the final
			// no-change scan of each phase).
			bound := g.Len()*max(loops, 1)*max(loops, 1) + 2*(g.Len()+1)
			assert.LessOrEqual(t, prop.Rounds, bound, "graph %d", i)

			for name, c := range prop.Contexts {
				assert.True(t, c.IsInLoop, "%s", name)
				assert.GreaterOrEqual(t, c.Depth, 1)
				assert.LessOrEqual(t, c.Depth, max(loops, 1))
				assert.Equal(t, flow.KindLoop, g.Kind(c.LoopReferenceName))
				assert.Len(t, c.PathKinds, len(c.Path))
				assert.NotEqual(t, name, c.LoopReferenceName, "loop inside itself")
			}

			m := ComputeMetrics(md, g, prop.Contexts, i%2)
			assert.GreaterOrEqual(t, m.Score, 0)
			assert.LessOrEqual(t, m.Score, 100)
		}

		// Monotonicity: the stronger fixed point never removes membership.
		base := PropagateLoopContexts(g, Options{})
		alt := PropagateLoopContexts(g, Options{Alternate: true})
		for name := range base {
			assert.True(t, alt.InLoop(name), "graph %d: %s lost loop membership", i, name)
		}
	}
}
