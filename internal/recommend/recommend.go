// Package recommend suggests how to decompose a workflow whose cumulative
// cost is too high.
package recommend

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/pthm/flowscope/pkg/flow"
)

// Split thresholds.
const (
	ComplexityThreshold = 15
	OperationThreshold  = 5

	// MaxClassNameLength bounds suggested class names, suffix included.
	MaxClassNameLength = 40

	// DefaultClassName is suggested when a workflow has no sub-workflows to
	// group.
	DefaultClassName = "MainFlowProcessor"
)

// Group classifies a sub-workflow by the most significant work it does.
type Group string

const (
	GroupDataAccess       Group = "DataAccess"
	GroupDataModification Group = "DataModification"
	GroupBusinessLogic    Group = "BusinessLogic"
	GroupUtility          Group = "Utility"
)

// Groups lists groups in priority order.
var Groups = []Group{GroupDataAccess, GroupDataModification, GroupBusinessLogic, GroupUtility}

// Suffix returns the class-name suffix for the group.
func (g Group) Suffix() string {
	switch g {
	case GroupDataAccess:
		return "DataService"
	case GroupDataModification:
		return "DataManager"
	case GroupBusinessLogic:
		return "BusinessService"
	default:
		return "Processor"
	}
}

// Classify returns the group of a workflow: any lookup makes it data access,
// else any create, update or delete makes it data modification, else any
// decision makes it business logic.
func Classify(a *flow.WorkflowAnalysis) Group {
	switch {
	case a.HasKind(flow.KindRecordLookup):
		return GroupDataAccess
	case a.HasKind(flow.KindRecordCreate), a.HasKind(flow.KindRecordUpdate), a.HasKind(flow.KindRecordDelete):
		return GroupDataModification
	case a.HasKind(flow.KindDecision):
		return GroupBusinessLogic
	default:
		return GroupUtility
	}
}

// Generate builds the recommendation for one workflow from its cumulative
// metrics and its direct children.
//
// grouped holds the names of sub-workflows already assigned to a group by an
// ancestor. Children not in it are classified and added to it. A nil map is
// treated as empty.
func Generate(a *flow.WorkflowAnalysis, grouped map[string]bool) flow.Recommendation {
	if grouped == nil {
		grouped = make(map[string]bool)
	}

	rec := flow.Recommendation{Flow: a.Name}

	var reasons []string
	if a.CumulativeComplexity > ComplexityThreshold {
		reasons = append(reasons, fmt.Sprintf("cumulative complexity %d exceeds %d", a.CumulativeComplexity, ComplexityThreshold))
	}
	if ops := a.CumulativeDMLCount + a.CumulativeSOQLCount; ops > OperationThreshold {
		reasons = append(reasons, fmt.Sprintf("%d cumulative DML and SOQL operations (%d DML, %d SOQL) exceed %d",
			ops, a.CumulativeDMLCount, a.CumulativeSOQLCount, OperationThreshold))
	}
	rec.ShouldSplit = len(reasons) > 0
	if rec.ShouldSplit {
		rec.Reason = strings.Join(reasons, "; ")
	} else {
		rec.Reason = fmt.Sprintf("cumulative complexity %d and %d operations are within limits",
			a.CumulativeComplexity, a.CumulativeDMLCount+a.CumulativeSOQLCount)
	}

	first := make(map[Group]string)
	for _, child := range a.ChildSubflows {
		if grouped[child.Name] {
			continue
		}
		grouped[child.Name] = true
		g := Classify(child)
		if _, ok := first[g]; !ok {
			first[g] = child.Name
		}
	}

	for _, g := range Groups {
		if name, ok := first[g]; ok {
			rec.SuggestedClassNames = append(rec.SuggestedClassNames, ClassName(name, g.Suffix()))
		}
	}
	if len(rec.SuggestedClassNames) == 0 {
		rec.SuggestedClassNames = []string{DefaultClassName}
	}
	return rec
}

// Walk generates recommendations over an analysis tree, depth-first. The
// root's recommendation is always first; a descendant's is included only
// when it should be split. Each workflow name is visited once.
func Walk(root *flow.WorkflowAnalysis) []flow.Recommendation {
	grouped := map[string]bool{root.Name: true}
	recs := []flow.Recommendation{Generate(root, grouped)}

	seen := map[string]bool{root.Name: true}
	var visit func(*flow.WorkflowAnalysis)
	visit = func(a *flow.WorkflowAnalysis) {
		for _, child := range a.ChildSubflows {
			if seen[child.Name] {
				continue
			}
			seen[child.Name] = true
			if rec := Generate(child, grouped); rec.ShouldSplit {
				recs = append(recs, rec)
			}
			visit(child)
		}
	}
	visit(root)
	return recs
}

// ClassName joins the sanitized workflow name and suffix.
func ClassName(name, suffix string) string {
	return Sanitize(name, MaxClassNameLength-len(suffix)) + suffix
}

// Sanitize converts a workflow API name to a PascalCase identifier of at
// most limit characters. Non-alphanumeric runs separate words; a name that
// does not start with a letter gets a "Flow" prefix.
func Sanitize(name string, limit int) string {
	var b strings.Builder
	upper := true
	for _, r := range name {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}

	out := b.String()
	if out == "" || !unicode.IsLetter(rune(out[0])) {
		out = "Flow" + out
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
