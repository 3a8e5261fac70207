package flow

// Via records how an element was proven to be inside a loop.
type Via string

const (
	// ViaConnector means the element is reachable from a loop through
	// connector edges.
	ViaConnector Via = "connector"
	// ViaReference means the element consumes a loop's current-item
	// variable but no connector path from the loop was found.
	ViaReference Via = "reference"
)

// LoopContext classifies one element's iteration membership.
//
// Once IsInLoop is true it never reverts. A context established through
// connectors is never overwritten by a reference inference.
type LoopContext struct {
	IsInLoop          bool       `json:"is_in_loop"`
	LoopReferenceName string     `json:"loop_reference_name"`
	Depth             int        `json:"depth"`
	Path              []string   `json:"path"`
	PathKinds         []StepKind `json:"path_kinds"`
	Via               Via        `json:"via"`
}

// LoopContexts maps element names to their contexts. Elements that are not
// reachable from any loop have no entry.
type LoopContexts map[string]LoopContext

// InLoop reports whether the named element is inside a loop.
func (lc LoopContexts) InLoop(name string) bool {
	c, ok := lc[name]
	return ok && c.IsInLoop
}

// MaxDepth is the sub-workflow recursion limit.
const MaxDepth = 10

// DepthExceededReason is the reason recorded on sentinel analyses.
const DepthExceededReason = "maximum recursion depth reached"

// WorkflowAnalysis is the analysis result for one workflow.
//
// Depth is 0 for the top-level workflow and grows by one per level of
// sub-workflow nesting. ChildSubflows may contain analyses shared with other
// parents through the resolver store; those must be treated as read-only.
type WorkflowAnalysis struct {
	Name    string   `json:"name"`
	Depth   int      `json:"depth"`
	Version *Version `json:"version,omitempty"`

	ElementCount            int              `json:"element_count"`
	KindCounts              map[StepKind]int `json:"kind_counts,omitempty"`
	LoopCount               int              `json:"loop_count"`
	DecisionCount           int              `json:"decision_count"`
	SubflowCount            int              `json:"subflow_count"`
	CrossObjectFormulaCount int              `json:"cross_object_formula_count"`

	DirectDMLCount  int `json:"direct_dml_count"`
	DirectSOQLCount int `json:"direct_soql_count"`
	Complexity      int `json:"complexity"`

	CumulativeComplexity int `json:"cumulative_complexity"`
	CumulativeDMLCount   int `json:"cumulative_dml_count"`
	CumulativeSOQLCount  int `json:"cumulative_soql_count"`

	BulkificationScore int    `json:"bulkification_score"`
	ShouldBulkify      bool   `json:"should_bulkify"`
	Reason             string `json:"reason"`

	LoopContexts    LoopContexts        `json:"loop_contexts"`
	ChildSubflows   []*WorkflowAnalysis `json:"child_subflows"`
	SubflowsInLoop  []string            `json:"subflows_in_loop,omitempty"`
	Recommendations []Recommendation    `json:"recommendations"`
	Warnings        []string            `json:"warnings,omitempty"`

	// Cached is set on analyses served from the resolver store.
	Cached bool `json:"cached,omitempty"`
}

// HasKind reports whether the workflow contains at least one step of kind.
func (a *WorkflowAnalysis) HasKind(kind StepKind) bool {
	return a.KindCounts[kind] > 0
}

// IsSentinel reports whether a is the depth-limit placeholder.
func (a *WorkflowAnalysis) IsSentinel() bool {
	return a.Reason == DepthExceededReason && a.ElementCount == 0
}

// DepthExceeded returns the conservative placeholder analysis used when the
// recursion limit is reached. Metrics are zero and ShouldBulkify is true.
func DepthExceeded(name string, depth int) *WorkflowAnalysis {
	return &WorkflowAnalysis{
		Name:               name,
		Depth:              depth,
		BulkificationScore: 0,
		ShouldBulkify:      true,
		Reason:             DepthExceededReason,
		LoopContexts:       LoopContexts{},
		ChildSubflows:      []*WorkflowAnalysis{},
		Recommendations:    []Recommendation{},
	}
}

// Walk visits a and its descendants depth-first, parents before children.
// Returning false from fn stops descent below that node.
func (a *WorkflowAnalysis) Walk(fn func(*WorkflowAnalysis) bool) {
	if a == nil || !fn(a) {
		return
	}
	for _, child := range a.ChildSubflows {
		child.Walk(fn)
	}
}

// Recommendation is a decomposition suggestion for one workflow.
type Recommendation struct {
	Flow                string   `json:"flow"`
	ShouldSplit         bool     `json:"should_split"`
	Reason              string   `json:"reason"`
	SuggestedClassNames []string `json:"suggested_class_names"`
}
