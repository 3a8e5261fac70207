package flowgraph

import (
	"fmt"
	"strings"

	"github.com/pthm/flowscope/pkg/flow"
)

// Complexity weights. Sub-workflows use the nested weights: a decision, loop
// or call buried inside another workflow costs more to reason about.
type Weights struct {
	Decision int
	Loop     int
	Subflow  int
}

var (
	TopLevelWeights = Weights{Decision: 2, Loop: 3, Subflow: 2}
	NestedWeights   = Weights{Decision: 3, Loop: 4, Subflow: 3}
)

// WeightsFor returns the weights for a workflow at the given nesting depth.
func WeightsFor(depth int) Weights {
	if depth > 0 {
		return NestedWeights
	}
	return TopLevelWeights
}

// Scoring thresholds.
const (
	ScoreThreshold      = 80
	ComplexityThreshold = 5

	dmlWeight  = 2
	soqlWeight = 2

	nestedDMLPenalty     = 30
	nestedSOQLPenalty    = 20
	nestedSubflowPenalty = 15
	nestedOpsAllowance   = 5
	nestedOpsPenaltyCap  = 20
)

// LoopPenalty explains the score deduction attributed to one Loop.
type LoopPenalty struct {
	Loop          string `json:"loop"`
	NestedDML     int    `json:"nested_dml"`
	NestedSOQL    int    `json:"nested_soql"`
	NestedSubflow int    `json:"nested_subflow"`
	Penalty       int    `json:"penalty"`
}

// NestedOps returns the number of operations iterated by the loop.
func (lp LoopPenalty) NestedOps() int {
	return lp.NestedDML + lp.NestedSOQL + lp.NestedSubflow
}

// Metrics are the per-workflow counts and scores.
type Metrics struct {
	ElementCount            int
	KindCounts              map[flow.StepKind]int
	LoopCount               int
	DecisionCount           int
	SubflowCount            int
	CrossObjectFormulaCount int

	DMLCount   int
	SOQLCount  int
	Complexity int

	Score         int
	ShouldBulkify bool
	Reason        string
	LoopPenalties []LoopPenalty
}

// ComputeMetrics counts operations and scores one workflow.
//
// DML is every create, update and delete. SOQL is every lookup plus one per
// dynamic choice set, one for the triggering record of a record-triggered
// workflow and one per cross-object formula. The bulkification score starts
// at 100 and loses points for repeated DML and SOQL and for operations
// iterated inside loops; it is clamped to [0, 100].
func ComputeMetrics(md *flow.Metadata, g *flow.ElementGraph, ctxs flow.LoopContexts, depth int) Metrics {
	m := Metrics{
		ElementCount: g.Len(),
		KindCounts:   make(map[flow.StepKind]int),
	}
	for _, e := range g.Elements {
		m.KindCounts[e.Kind]++
	}
	m.LoopCount = m.KindCounts[flow.KindLoop]
	m.DecisionCount = m.KindCounts[flow.KindDecision]
	m.SubflowCount = m.KindCounts[flow.KindSubflow]

	m.DMLCount = m.KindCounts[flow.KindRecordCreate] + m.KindCounts[flow.KindRecordUpdate] + m.KindCounts[flow.KindRecordDelete]

	m.SOQLCount = m.KindCounts[flow.KindRecordLookup]
	if md != nil {
		m.SOQLCount += len(md.DynamicChoiceSets)
		if md.IsRecordTriggered() {
			m.SOQLCount++
		}
		for _, f := range md.Formulas {
			if IsCrossObjectFormula(f.Expression) {
				m.CrossObjectFormulaCount++
			}
		}
		m.SOQLCount += m.CrossObjectFormulaCount
	}

	w := WeightsFor(depth)
	m.Complexity = 1 +
		m.DecisionCount*w.Decision +
		m.LoopCount*w.Loop +
		m.DMLCount*dmlWeight +
		m.SOQLCount*soqlWeight +
		m.SubflowCount*w.Subflow +
		m.CrossObjectFormulaCount

	m.LoopPenalties = loopPenalties(g, ctxs)
	m.Score = score(m.DMLCount, m.SOQLCount, m.LoopPenalties)
	m.ShouldBulkify, m.Reason = bulkify(m)
	return m
}

// loopPenalties computes the deduction for every Loop element, in graph
// order.
func loopPenalties(g *flow.ElementGraph, ctxs flow.LoopContexts) []LoopPenalty {
	loops := g.OfKind(flow.KindLoop)
	if len(loops) == 0 {
		return nil
	}
	owners := LoopOwners(g, ctxs)

	out := make([]LoopPenalty, 0, len(loops))
	for _, loop := range loops {
		lp := LoopPenalty{Loop: loop.Name}
		for _, e := range g.Elements {
			c, ok := ctxs[e.Name]
			if !ok || !NestedUnder(c, loop.Name, owners) {
				continue
			}
			switch {
			case e.Kind.IsDML():
				lp.NestedDML++
			case e.Kind.IsSOQL():
				lp.NestedSOQL++
			case e.Kind == flow.KindSubflow:
				lp.NestedSubflow++
			}
		}

		if lp.NestedDML > 0 {
			lp.Penalty += nestedDMLPenalty
		}
		if lp.NestedSOQL > 0 {
			lp.Penalty += nestedSOQLPenalty
		}
		if lp.NestedSubflow > 0 {
			lp.Penalty += nestedSubflowPenalty
		}
		if n := lp.NestedOps(); n > nestedOpsAllowance {
			lp.Penalty += min(nestedOpsPenaltyCap, (n-nestedOpsAllowance)*2)
		}
		out = append(out, lp)
	}
	return out
}

func score(dml, soql int, penalties []LoopPenalty) int {
	s := 100
	s -= 10 * max(0, dml-1)
	s -= 5 * max(0, soql-1)
	for _, lp := range penalties {
		s -= lp.Penalty
	}
	return max(0, min(100, s))
}

// bulkify decides whether the workflow needs bulkification and lists every
// condition that triggered.
func bulkify(m Metrics) (bool, string) {
	var reasons []string
	if m.Score < ScoreThreshold {
		reasons = append(reasons, fmt.Sprintf("bulkification score %d is below %d", m.Score, ScoreThreshold))
	}
	if m.DMLCount > 0 {
		reasons = append(reasons, fmt.Sprintf("%d DML operation(s)", m.DMLCount))
	}
	if m.SOQLCount > 0 {
		reasons = append(reasons, fmt.Sprintf("%d SOQL quer(ies)", m.SOQLCount))
	}
	if m.Complexity > ComplexityThreshold {
		reasons = append(reasons, fmt.Sprintf("complexity %d exceeds %d", m.Complexity, ComplexityThreshold))
	}
	if m.LoopCount > 0 {
		reasons = append(reasons, fmt.Sprintf("%d loop(s)", m.LoopCount))
	}
	if len(reasons) == 0 {
		return false, "no bulkification concerns"
	}
	return true, strings.Join(reasons, "; ")
}
