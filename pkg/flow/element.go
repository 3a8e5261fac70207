package flow

import "fmt"

// EdgeKind identifies which connector produced an edge.
type EdgeKind string

const (
	EdgePrimary      EdgeKind = "connector"
	EdgeNextValue    EdgeKind = "next_value"     // loop: per-iteration edge
	EdgeNoMoreValues EdgeKind = "no_more_values" // loop: exit edge
	EdgeDefault      EdgeKind = "default"        // decision: default outcome
	EdgeFault        EdgeKind = "fault"
	EdgeRule         EdgeKind = "rule" // decision: one per rule
)

// Edge is a typed outgoing connection from an element.
// Rule edges carry the rule's name, condition logic and conditions.
type Edge struct {
	Target         string      `json:"target"`
	Kind           EdgeKind    `json:"kind"`
	Rule           string      `json:"rule,omitempty"`
	ConditionLogic string      `json:"condition_logic,omitempty"`
	Conditions     []Condition `json:"conditions,omitempty"`
}

// Props holds the kind-specific properties of an element.
//
// It is a closed variant: the graph builder produces exactly one of the
// *Props types in this file for each element, chosen by the element kind.
type Props interface {
	// ValueExpressions returns the value expressions the element consumes:
	// input assignment values and direct value properties.
	ValueExpressions() []string

	props()
}

// RecordOpProps are the properties of RecordCreate, RecordUpdate,
// RecordDelete, RecordLookup and RecordRollback elements.
type RecordOpProps struct {
	Object           string            `json:"object,omitempty"`
	Fields           []string          `json:"fields,omitempty"`
	InputReference   string            `json:"input_reference,omitempty"`
	OutputReference  string            `json:"output_reference,omitempty"`
	InputAssignments []InputAssignment `json:"input_assignments,omitempty"`
	Filters          []Filter          `json:"filters,omitempty"`
}

func (p *RecordOpProps) props() {}

// ValueExpressions returns the input reference and every assignment and
// filter value.
func (p *RecordOpProps) ValueExpressions() []string {
	var out []string
	if p.InputReference != "" {
		out = append(out, p.InputReference)
	}
	for _, a := range p.InputAssignments {
		out = appendExpr(out, a.Value)
	}
	for _, f := range p.Filters {
		out = appendExpr(out, f.Value)
	}
	return out
}

// AssignmentProps are the properties of Assignment elements.
type AssignmentProps struct {
	Items []AssignmentItem `json:"items,omitempty"`
}

func (p *AssignmentProps) props() {}

// ValueExpressions returns the value of every assignment item.
func (p *AssignmentProps) ValueExpressions() []string {
	var out []string
	for _, it := range p.Items {
		out = appendExpr(out, it.Value)
	}
	return out
}

// DecisionProps are the properties of Decision elements.
type DecisionProps struct {
	Rules []string `json:"rules,omitempty"`
}

func (p *DecisionProps) props() {}

// ValueExpressions returns nil; decisions branch but do not consume values.
func (p *DecisionProps) ValueExpressions() []string { return nil }

// LoopProps are the properties of Loop elements.
type LoopProps struct {
	Collection string `json:"collection,omitempty"`
	Order      string `json:"order,omitempty"`
}

func (p *LoopProps) props() {}

// ValueExpressions returns nil.
func (p *LoopProps) ValueExpressions() []string { return nil }

// SubflowProps are the properties of Subflow elements.
type SubflowProps struct {
	FlowName string            `json:"flow_name"`
	Inputs   []InputAssignment `json:"inputs,omitempty"`
}

func (p *SubflowProps) props() {}

// ValueExpressions returns every input value.
func (p *SubflowProps) ValueExpressions() []string {
	var out []string
	for _, in := range p.Inputs {
		out = appendExpr(out, in.Value)
	}
	return out
}

// ActionTypeFlow is the action type of an ActionCall that launches a flow.
const ActionTypeFlow = "flow"

// ActionCallProps are the properties of ActionCall elements.
type ActionCallProps struct {
	ActionName string            `json:"action_name"`
	ActionType string            `json:"action_type,omitempty"`
	Inputs     []InputAssignment `json:"inputs,omitempty"`
}

func (p *ActionCallProps) props() {}

// ValueExpressions returns every input value.
func (p *ActionCallProps) ValueExpressions() []string {
	var out []string
	for _, in := range p.Inputs {
		out = appendExpr(out, in.Value)
	}
	return out
}

// ScreenProps are the properties of Screen elements.
type ScreenProps struct {
	Fields []string `json:"fields,omitempty"`
}

func (p *ScreenProps) props() {}

// ValueExpressions returns nil.
func (p *ScreenProps) ValueExpressions() []string { return nil }

func appendExpr(out []string, v Value) []string {
	if e := v.Expression(); e != "" {
		return append(out, e)
	}
	return out
}

// Element is one workflow step in the graph.
// Elements are created once by the graph builder and never modified after.
type Element struct {
	Name  string   `json:"name"`
	Kind  StepKind `json:"kind"`
	Props Props    `json:"props"`
	Edges []Edge   `json:"edges,omitempty"`
}

// SubflowReference returns the name of the workflow this element invokes.
// Subflow elements always reference a workflow; ActionCalls only when their
// action type is "flow".
func (e *Element) SubflowReference() (string, bool) {
	switch p := e.Props.(type) {
	case *SubflowProps:
		return p.FlowName, p.FlowName != ""
	case *ActionCallProps:
		if p.ActionType == ActionTypeFlow && p.ActionName != "" {
			return p.ActionName, true
		}
	}
	return "", false
}

// ElementGraph owns the elements of one workflow.
//
// Adjacency maps each element name to the de-duplicated set of directly
// reachable target names (the union over all edge kinds), in first-seen order.
// Targets that do not resolve to an element stay in Adjacency but are ignored
// by the algorithms; Dangling lists them.
type ElementGraph struct {
	Elements  []*Element          `json:"elements"`
	Adjacency map[string][]string `json:"adjacency"`
	Dangling  []DanglingReference `json:"dangling,omitempty"`
	Warnings  []string            `json:"warnings,omitempty"`

	index map[string]int
}

// DanglingReference is an edge whose target names no element.
type DanglingReference struct {
	From   string `json:"from"`
	Target string `json:"target"`
}

// String returns a human-readable description.
func (d DanglingReference) String() string {
	return fmt.Sprintf("%s -> %s", d.From, d.Target)
}

// NewElementGraph returns an empty graph.
func NewElementGraph() *ElementGraph {
	return &ElementGraph{
		Adjacency: make(map[string][]string),
		index:     make(map[string]int),
	}
}

// Add registers an element and its edge target set.
// It returns false, leaving the graph unchanged, if the name is taken.
func (g *ElementGraph) Add(e *Element) bool {
	if _, exists := g.index[e.Name]; exists {
		return false
	}
	g.index[e.Name] = len(g.Elements)
	g.Elements = append(g.Elements, e)

	seen := make(map[string]bool, len(e.Edges))
	targets := make([]string, 0, len(e.Edges))
	for _, edge := range e.Edges {
		if edge.Target == "" || seen[edge.Target] {
			continue
		}
		seen[edge.Target] = true
		targets = append(targets, edge.Target)
	}
	g.Adjacency[e.Name] = targets
	return true
}

// Has reports whether an element with the given name exists.
func (g *ElementGraph) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Element returns the named element.
func (g *ElementGraph) Element(name string) (*Element, bool) {
	i, ok := g.index[name]
	if !ok {
		return nil, false
	}
	return g.Elements[i], true
}

// Kind returns the kind of the named element, or "" if it does not exist.
func (g *ElementGraph) Kind(name string) StepKind {
	if e, ok := g.Element(name); ok {
		return e.Kind
	}
	return ""
}

// Targets returns the resolvable targets of the named element.
func (g *ElementGraph) Targets(name string) []string {
	all := g.Adjacency[name]
	out := make([]string, 0, len(all))
	for _, t := range all {
		if g.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// OfKind returns every element of the given kind in graph order.
func (g *ElementGraph) OfKind(kind StepKind) []*Element {
	var out []*Element
	for _, e := range g.Elements {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of elements of the given kind.
func (g *ElementGraph) Count(kind StepKind) int {
	n := 0
	for _, e := range g.Elements {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Len returns the number of elements.
func (g *ElementGraph) Len() int {
	return len(g.Elements)
}
