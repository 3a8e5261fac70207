package parser

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"
)

// list decodes a JSON value that may be a single object or an array of
// objects. XML repeated elements decode into it like any other slice.
type list[T any] []T

func (l *list[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if b[0] == '[' {
		var items []T
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*l = list[T]{one}
	return nil
}

// scalar is a leaf value. JSON sources use strings, numbers and booleans
// interchangeably for the same field; scalar keeps the literal text.
type scalar string

func (s *scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*s = ""
	case b[0] == '"':
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = scalar(str)
	case b[0] == '{' || b[0] == '[':
		return fmt.Errorf("expected scalar, got %s", b[:1])
	default:
		*s = scalar(b)
	}
	return nil
}

func (s scalar) String() string {
	return strings.TrimSpace(string(s))
}

type rawFlow struct {
	XMLName xml.Name `xml:"Flow" json:"-"`

	FullName    scalar `xml:"fullName" json:"fullName"`
	Label       scalar `xml:"label" json:"label"`
	ProcessType scalar `xml:"processType" json:"processType"`
	Status      scalar `xml:"status" json:"status"`
	APIVersion  scalar `xml:"apiVersion" json:"apiVersion"`

	Start             *rawStart          `xml:"start" json:"start"`
	Formulas          list[rawFormula]   `xml:"formulas" json:"formulas"`
	DynamicChoiceSets list[rawChoiceSet] `xml:"dynamicChoiceSets" json:"dynamicChoiceSets"`
	Variables         list[rawVariable]  `xml:"variables" json:"variables"`

	RecordCreates   list[rawStep] `xml:"recordCreates" json:"recordCreates"`
	RecordUpdates   list[rawStep] `xml:"recordUpdates" json:"recordUpdates"`
	RecordDeletes   list[rawStep] `xml:"recordDeletes" json:"recordDeletes"`
	RecordLookups   list[rawStep] `xml:"recordLookups" json:"recordLookups"`
	RecordRollbacks list[rawStep] `xml:"recordRollbacks" json:"recordRollbacks"`
	Assignments     list[rawStep] `xml:"assignments" json:"assignments"`
	Decisions       list[rawStep] `xml:"decisions" json:"decisions"`
	Loops           list[rawStep] `xml:"loops" json:"loops"`
	Subflows        list[rawStep] `xml:"subflows" json:"subflows"`
	ActionCalls     list[rawStep] `xml:"actionCalls" json:"actionCalls"`
	Screens         list[rawStep] `xml:"screens" json:"screens"`
}

type rawStart struct {
	Object            scalar        `xml:"object" json:"object"`
	TriggerType       scalar        `xml:"triggerType" json:"triggerType"`
	RecordTriggerType scalar        `xml:"recordTriggerType" json:"recordTriggerType"`
	Connector         *rawConnector `xml:"connector" json:"connector"`
}

type rawFormula struct {
	Name       scalar `xml:"name" json:"name"`
	DataType   scalar `xml:"dataType" json:"dataType"`
	Expression scalar `xml:"expression" json:"expression"`
}

type rawChoiceSet struct {
	Name     scalar `xml:"name" json:"name"`
	DataType scalar `xml:"dataType" json:"dataType"`
	Object   scalar `xml:"object" json:"object"`
}

type rawVariable struct {
	Name         scalar `xml:"name" json:"name"`
	DataType     scalar `xml:"dataType" json:"dataType"`
	ObjectType   scalar `xml:"objectType" json:"objectType"`
	IsCollection scalar `xml:"isCollection" json:"isCollection"`
}

type rawConnector struct {
	TargetReference scalar `xml:"targetReference" json:"targetReference"`
}

type rawValue struct {
	ElementReference scalar `xml:"elementReference" json:"elementReference"`
	StringValue      scalar `xml:"stringValue" json:"stringValue"`
	NumberValue      scalar `xml:"numberValue" json:"numberValue"`
	BooleanValue     scalar `xml:"booleanValue" json:"booleanValue"`
}

// rawInput covers record-operation inputAssignments (keyed by field) and
// subflow inputAssignments / action inputParameters (keyed by name).
type rawInput struct {
	Field scalar   `xml:"field" json:"field"`
	Name  scalar   `xml:"name" json:"name"`
	Value rawValue `xml:"value" json:"value"`
}

type rawFilter struct {
	Field    scalar   `xml:"field" json:"field"`
	Operator scalar   `xml:"operator" json:"operator"`
	Value    rawValue `xml:"value" json:"value"`
}

type rawAssignmentItem struct {
	AssignToReference scalar   `xml:"assignToReference" json:"assignToReference"`
	Operator          scalar   `xml:"operator" json:"operator"`
	Value             rawValue `xml:"value" json:"value"`
}

type rawCondition struct {
	LeftValueReference scalar   `xml:"leftValueReference" json:"leftValueReference"`
	Operator           scalar   `xml:"operator" json:"operator"`
	RightValue         rawValue `xml:"rightValue" json:"rightValue"`
}

type rawRule struct {
	Name           scalar             `xml:"name" json:"name"`
	Label          scalar             `xml:"label" json:"label"`
	ConditionLogic scalar             `xml:"conditionLogic" json:"conditionLogic"`
	Conditions     list[rawCondition] `xml:"conditions" json:"conditions"`
	Connector      *rawConnector      `xml:"connector" json:"connector"`
}

type rawScreenField struct {
	Name scalar `xml:"name" json:"name"`
}

// rawStep is the union of every step category's elements.
type rawStep struct {
	Name  scalar `xml:"name" json:"name"`
	Label scalar `xml:"label" json:"label"`

	Object           scalar                  `xml:"object" json:"object"`
	InputReference   scalar                  `xml:"inputReference" json:"inputReference"`
	OutputReference  scalar                  `xml:"outputReference" json:"outputReference"`
	QueriedFields    list[scalar]            `xml:"queriedFields" json:"queriedFields"`
	InputAssignments list[rawInput]          `xml:"inputAssignments" json:"inputAssignments"`
	InputParameters  list[rawInput]          `xml:"inputParameters" json:"inputParameters"`
	Filters          list[rawFilter]         `xml:"filters" json:"filters"`
	AssignmentItems  list[rawAssignmentItem] `xml:"assignmentItems" json:"assignmentItems"`
	Fields           list[rawScreenField]    `xml:"fields" json:"fields"`

	CollectionReference scalar `xml:"collectionReference" json:"collectionReference"`
	IterationOrder      scalar `xml:"iterationOrder" json:"iterationOrder"`

	FlowName   scalar `xml:"flowName" json:"flowName"`
	ActionName scalar `xml:"actionName" json:"actionName"`
	ActionType scalar `xml:"actionType" json:"actionType"`

	Connector             *rawConnector `xml:"connector" json:"connector"`
	NextValueConnector    *rawConnector `xml:"nextValueConnector" json:"nextValueConnector"`
	NoMoreValuesConnector *rawConnector `xml:"noMoreValuesConnector" json:"noMoreValuesConnector"`
	DefaultConnector      *rawConnector `xml:"defaultConnector" json:"defaultConnector"`
	FaultConnector        *rawConnector `xml:"faultConnector" json:"faultConnector"`
	Rules                 list[rawRule] `xml:"rules" json:"rules"`
}
