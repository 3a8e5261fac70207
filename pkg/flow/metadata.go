package flow

import (
	"strings"
	"time"
)

// Metadata is the canonical tree for one workflow definition.
//
// Every step category is an ordered slice regardless of how the source
// document expressed it: a category with a single step in XML or JSON still
// arrives here as a one-element slice. The analysis never re-checks
// cardinality.
type Metadata struct {
	Name        string
	Label       string
	ProcessType string
	Status      string
	APIVersion  string

	Start             *Start
	Formulas          []Formula
	DynamicChoiceSets []ChoiceSet
	Variables         []Variable

	RecordCreates   []Step
	RecordUpdates   []Step
	RecordDeletes   []Step
	RecordLookups   []Step
	RecordRollbacks []Step
	Assignments     []Step
	Decisions       []Step
	Loops           []Step
	Subflows        []Step
	ActionCalls     []Step
	Screens         []Step
}

// Steps returns the steps of one category.
func (m *Metadata) Steps(kind StepKind) []Step {
	switch kind {
	case KindRecordCreate:
		return m.RecordCreates
	case KindRecordUpdate:
		return m.RecordUpdates
	case KindRecordDelete:
		return m.RecordDeletes
	case KindRecordLookup:
		return m.RecordLookups
	case KindRecordRollback:
		return m.RecordRollbacks
	case KindAssignment:
		return m.Assignments
	case KindDecision:
		return m.Decisions
	case KindLoop:
		return m.Loops
	case KindSubflow:
		return m.Subflows
	case KindActionCall:
		return m.ActionCalls
	case KindScreen:
		return m.Screens
	}
	return nil
}

// SetSteps replaces the steps of one category.
func (m *Metadata) SetSteps(kind StepKind, steps []Step) {
	switch kind {
	case KindRecordCreate:
		m.RecordCreates = steps
	case KindRecordUpdate:
		m.RecordUpdates = steps
	case KindRecordDelete:
		m.RecordDeletes = steps
	case KindRecordLookup:
		m.RecordLookups = steps
	case KindRecordRollback:
		m.RecordRollbacks = steps
	case KindAssignment:
		m.Assignments = steps
	case KindDecision:
		m.Decisions = steps
	case KindLoop:
		m.Loops = steps
	case KindSubflow:
		m.Subflows = steps
	case KindActionCall:
		m.ActionCalls = steps
	case KindScreen:
		m.Screens = steps
	}
}

// StepCount returns the number of steps across all categories.
func (m *Metadata) StepCount() int {
	n := 0
	for _, k := range Kinds {
		n += len(m.Steps(k))
	}
	return n
}

// IsRecordTriggered reports whether the workflow is activated by a record
// save or delete. Record-triggered flows pay one implicit query for the
// triggering record.
func (m *Metadata) IsRecordTriggered() bool {
	if m.Start == nil {
		return false
	}
	return strings.HasPrefix(m.Start.TriggerType, "Record")
}

// Start describes how the workflow is launched.
type Start struct {
	Object            string
	TriggerType       string // RecordAfterSave, RecordBeforeSave, Scheduled, ...
	RecordTriggerType string // Create, Update, CreateAndUpdate, Delete
	Connector         *Connector
}

// Formula is a named formula resource.
type Formula struct {
	Name       string
	DataType   string
	Expression string
}

// ChoiceSet is a dynamic record choice set. Each one issues a query when the
// screen that uses it renders.
type ChoiceSet struct {
	Name     string
	DataType string
	Object   string
}

// Variable is a flow resource variable.
type Variable struct {
	Name         string
	DataType     string
	ObjectType   string
	IsCollection bool
}

// Connector points at the next step.
type Connector struct {
	TargetReference string
}

// Target returns the connector target, tolerating a nil connector.
func (c *Connector) Target() string {
	if c == nil {
		return ""
	}
	return c.TargetReference
}

// Value is a typed value holder. Exactly one field is normally set.
type Value struct {
	ElementReference string `json:"element_reference,omitempty"`
	StringValue      string `json:"string_value,omitempty"`
	NumberValue      string `json:"number_value,omitempty"`
	BooleanValue     string `json:"boolean_value,omitempty"`
}

// Expression returns the value as an expression string. Element references
// win over literals because they are what the loop analysis inspects.
func (v Value) Expression() string {
	switch {
	case v.ElementReference != "":
		return v.ElementReference
	case v.StringValue != "":
		return v.StringValue
	case v.NumberValue != "":
		return v.NumberValue
	default:
		return v.BooleanValue
	}
}

// IsZero reports whether no field is set.
func (v Value) IsZero() bool {
	return v == Value{}
}

// Condition is one comparison inside a decision rule or record filter.
type Condition struct {
	LeftValueReference string `json:"left_value_reference"`
	Operator           string `json:"operator"`
	RightValue         Value  `json:"right_value"`
}

// Rule is one outcome of a decision.
type Rule struct {
	Name           string
	Label          string
	ConditionLogic string
	Conditions     []Condition
	Connector      *Connector
}

// InputAssignment binds a field or parameter to a value.
// Record operations name the target with a field, subflows and actions with
// a parameter name; both land in Field.
type InputAssignment struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Filter is a record lookup, update or delete criterion.
type Filter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    Value  `json:"value"`
}

// AssignmentItem is one operation of an Assignment step.
type AssignmentItem struct {
	AssignToReference string `json:"assign_to_reference"`
	Operator          string `json:"operator"`
	Value             Value  `json:"value"`
}

// Step is one canonical step record. It is the union of the properties of
// every step category; the graph builder projects it onto a typed Props
// variant for its kind.
type Step struct {
	Name  string
	Label string

	// Record operations.
	Object           string
	InputReference   string
	OutputReference  string
	Fields           []string
	InputAssignments []InputAssignment
	Filters          []Filter

	// Assignment.
	AssignmentItems []AssignmentItem

	// Loop.
	CollectionReference string
	IterationOrder      string

	// Subflow and ActionCall.
	FlowName   string
	ActionName string
	ActionType string

	// Connectors.
	Connector             *Connector
	NextValueConnector    *Connector
	NoMoreValuesConnector *Connector
	DefaultConnector      *Connector
	FaultConnector        *Connector
	Rules                 []Rule
}

// Version is the flow_version record that accompanies every fetch.
type Version struct {
	Version      int       `json:"version"`
	Status       string    `json:"status"`
	LastModified time.Time `json:"last_modified"`
}
