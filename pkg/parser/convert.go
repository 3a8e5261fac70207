package parser

import (
	"strings"

	"github.com/pthm/flowscope/pkg/flow"
)

// convertFlow maps the decoded document onto the canonical model.
func convertFlow(rf *rawFlow) *flow.Metadata {
	md := &flow.Metadata{
		Name:        rf.FullName.String(),
		Label:       rf.Label.String(),
		ProcessType: rf.ProcessType.String(),
		Status:      rf.Status.String(),
		APIVersion:  rf.APIVersion.String(),
	}

	if rf.Start != nil {
		md.Start = &flow.Start{
			Object:            rf.Start.Object.String(),
			TriggerType:       rf.Start.TriggerType.String(),
			RecordTriggerType: rf.Start.RecordTriggerType.String(),
			Connector:         convertConnector(rf.Start.Connector),
		}
	}

	for _, f := range rf.Formulas {
		md.Formulas = append(md.Formulas, flow.Formula{
			Name:       f.Name.String(),
			DataType:   f.DataType.String(),
			Expression: f.Expression.String(),
		})
	}
	for _, cs := range rf.DynamicChoiceSets {
		md.DynamicChoiceSets = append(md.DynamicChoiceSets, flow.ChoiceSet{
			Name:     cs.Name.String(),
			DataType: cs.DataType.String(),
			Object:   cs.Object.String(),
		})
	}
	for _, v := range rf.Variables {
		md.Variables = append(md.Variables, flow.Variable{
			Name:         v.Name.String(),
			DataType:     v.DataType.String(),
			ObjectType:   v.ObjectType.String(),
			IsCollection: strings.EqualFold(v.IsCollection.String(), "true"),
		})
	}

	categories := []struct {
		kind  flow.StepKind
		steps list[rawStep]
	}{
		{flow.KindRecordCreate, rf.RecordCreates},
		{flow.KindRecordUpdate, rf.RecordUpdates},
		{flow.KindRecordDelete, rf.RecordDeletes},
		{flow.KindRecordLookup, rf.RecordLookups},
		{flow.KindRecordRollback, rf.RecordRollbacks},
		{flow.KindAssignment, rf.Assignments},
		{flow.KindDecision, rf.Decisions},
		{flow.KindLoop, rf.Loops},
		{flow.KindSubflow, rf.Subflows},
		{flow.KindActionCall, rf.ActionCalls},
		{flow.KindScreen, rf.Screens},
	}
	for _, c := range categories {
		steps := make([]flow.Step, 0, len(c.steps))
		for i := range c.steps {
			steps = append(steps, convertStep(&c.steps[i]))
		}
		md.SetSteps(c.kind, steps)
	}

	return md
}

func convertStep(rs *rawStep) flow.Step {
	st := flow.Step{
		Name:                rs.Name.String(),
		Label:               rs.Label.String(),
		Object:              rs.Object.String(),
		InputReference:      rs.InputReference.String(),
		OutputReference:     rs.OutputReference.String(),
		CollectionReference: rs.CollectionReference.String(),
		IterationOrder:      rs.IterationOrder.String(),
		FlowName:            rs.FlowName.String(),
		ActionName:          rs.ActionName.String(),
		ActionType:          rs.ActionType.String(),

		Connector:             convertConnector(rs.Connector),
		NextValueConnector:    convertConnector(rs.NextValueConnector),
		NoMoreValuesConnector: convertConnector(rs.NoMoreValuesConnector),
		DefaultConnector:      convertConnector(rs.DefaultConnector),
		FaultConnector:        convertConnector(rs.FaultConnector),
	}

	for _, f := range rs.QueriedFields {
		st.Fields = append(st.Fields, f.String())
	}
	for _, f := range rs.Fields {
		st.Fields = append(st.Fields, f.Name.String())
	}

	for _, in := range rs.InputAssignments {
		st.InputAssignments = append(st.InputAssignments, convertInput(in))
	}
	for _, in := range rs.InputParameters {
		st.InputAssignments = append(st.InputAssignments, convertInput(in))
	}

	for _, f := range rs.Filters {
		st.Filters = append(st.Filters, flow.Filter{
			Field:    f.Field.String(),
			Operator: f.Operator.String(),
			Value:    convertValue(f.Value),
		})
	}
	for _, it := range rs.AssignmentItems {
		st.AssignmentItems = append(st.AssignmentItems, flow.AssignmentItem{
			AssignToReference: it.AssignToReference.String(),
			Operator:          it.Operator.String(),
			Value:             convertValue(it.Value),
		})
	}

	for _, r := range rs.Rules {
		rule := flow.Rule{
			Name:           r.Name.String(),
			Label:          r.Label.String(),
			ConditionLogic: r.ConditionLogic.String(),
			Connector:      convertConnector(r.Connector),
		}
		for _, c := range r.Conditions {
			rule.Conditions = append(rule.Conditions, flow.Condition{
				LeftValueReference: c.LeftValueReference.String(),
				Operator:           c.Operator.String(),
				RightValue:         convertValue(c.RightValue),
			})
		}
		st.Rules = append(st.Rules, rule)
	}

	return st
}

func convertInput(in rawInput) flow.InputAssignment {
	field := in.Field.String()
	if field == "" {
		field = in.Name.String()
	}
	return flow.InputAssignment{Field: field, Value: convertValue(in.Value)}
}

func convertValue(v rawValue) flow.Value {
	return flow.Value{
		ElementReference: v.ElementReference.String(),
		StringValue:      v.StringValue.String(),
		NumberValue:      v.NumberValue.String(),
		BooleanValue:     v.BooleanValue.String(),
	}
}

// convertConnector drops connectors without a target.
func convertConnector(c *rawConnector) *flow.Connector {
	if c == nil {
		return nil
	}
	target := c.TargetReference.String()
	if target == "" {
		return nil
	}
	return &flow.Connector{TargetReference: target}
}
