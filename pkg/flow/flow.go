// Package flow defines the data model shared by every stage of the flowscope
// analysis pipeline.
//
// A Flow is a declarative workflow: a directed graph of typed steps (record
// operations, assignments, decisions, loops, sub-workflow calls, actions and
// screens) joined by connectors. flowscope is the semantic-analysis phase of a
// Flow-to-Apex compiler. It decides, for every step, whether the step runs once
// or is effectively iterated, and scores the flow for bulkification.
//
// # Pipeline
//
// The types in this package flow through four stages:
//
//  1. Metadata - the canonical, list-normalized tree produced by pkg/parser
//     from XML, JSON or YAML flow definitions.
//  2. ElementGraph - elements and typed outgoing edges built from Metadata.
//  3. LoopContext - per-element iteration membership computed over the graph.
//  4. WorkflowAnalysis - metrics, cumulative sub-workflow metrics and
//     recommendations for one workflow.
//
// # Dependency Isolation
//
// The flow package is stdlib only. Parsing, graph algorithms, persistence and
// transport all live in other packages and exchange these types.
package flow

// StepKind identifies the category of a workflow step.
// The set is closed: the analysis recognizes exactly these kinds.
type StepKind string

const (
	KindRecordCreate   StepKind = "RecordCreate"
	KindRecordUpdate   StepKind = "RecordUpdate"
	KindRecordDelete   StepKind = "RecordDelete"
	KindRecordLookup   StepKind = "RecordLookup"
	KindRecordRollback StepKind = "RecordRollback"
	KindAssignment     StepKind = "Assignment"
	KindDecision       StepKind = "Decision"
	KindLoop           StepKind = "Loop"
	KindSubflow        StepKind = "Subflow"
	KindActionCall     StepKind = "ActionCall"
	KindScreen         StepKind = "Screen"
)

// Kinds lists every StepKind in canonical order. Graph construction and all
// iteration over step categories follow this order, which makes analysis
// results deterministic for a given input.
var Kinds = []StepKind{
	KindRecordCreate,
	KindRecordUpdate,
	KindRecordDelete,
	KindRecordLookup,
	KindRecordRollback,
	KindAssignment,
	KindDecision,
	KindLoop,
	KindSubflow,
	KindActionCall,
	KindScreen,
}

// String returns the kind name.
func (k StepKind) String() string {
	return string(k)
}

// Valid reports whether k is one of the known step kinds.
func (k StepKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// IsDML returns true for steps that write records.
func (k StepKind) IsDML() bool {
	return k == KindRecordCreate || k == KindRecordUpdate || k == KindRecordDelete
}

// IsSOQL returns true for steps that query records.
func (k StepKind) IsSOQL() bool {
	return k == KindRecordLookup
}

// IsRecordOperation returns true for every record-oriented step, including
// rollbacks.
func (k StepKind) IsRecordOperation() bool {
	return k.IsDML() || k.IsSOQL() || k == KindRecordRollback
}
