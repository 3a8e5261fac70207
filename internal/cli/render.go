package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/pthm/flowscope/pkg/flow"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatDOT  = "dot"
)

// CheckFormat returns a ConfigError unless format is one of allowed.
func CheckFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return ConfigError(fmt.Sprintf("unknown output format %q (want one of %s)", format, strings.Join(allowed, ", ")), nil)
}

// WriteStructured writes v as indented JSON or as YAML.
func WriteStructured(w io.Writer, v any, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		out, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		_, err = w.Write(out)
		return err
	}
	return fmt.Errorf("unsupported structured format %q", format)
}

// WriteAnalysis renders an analysis tree.
func WriteAnalysis(w io.Writer, a *flow.WorkflowAnalysis, format string) error {
	if format != FormatText {
		return WriteStructured(w, a, format)
	}
	writeAnalysisText(w, a, "")
	if len(a.Recommendations) > 0 {
		_, _ = fmt.Fprintln(w, "\nRecommendations:")
		for _, r := range a.Recommendations {
			verdict := "keep"
			if r.ShouldSplit {
				verdict = "split"
			}
			_, _ = fmt.Fprintf(w, "  %s: %s (%s)\n", r.Flow, verdict, r.Reason)
			if len(r.SuggestedClassNames) > 0 {
				_, _ = fmt.Fprintf(w, "    classes: %s\n", strings.Join(r.SuggestedClassNames, ", "))
			}
		}
	}
	return nil
}

func writeAnalysisText(w io.Writer, a *flow.WorkflowAnalysis, indent string) {
	bulkify := "no"
	if a.ShouldBulkify {
		bulkify = "yes"
	}
	tags := ""
	if a.Cached {
		tags += " [cached]"
	}
	if a.IsSentinel() {
		tags += " [depth limit]"
	}
	_, _ = fmt.Fprintf(w, "%s%s%s\n", indent, a.Name, tags)
	in := indent + "  "
	_, _ = fmt.Fprintf(w, "%sscore %d, bulkify %s: %s\n", in, a.BulkificationScore, bulkify, a.Reason)
	if a.IsSentinel() {
		return
	}
	_, _ = fmt.Fprintf(w, "%scomplexity %d (cumulative %d), DML %d (cumulative %d), SOQL %d (cumulative %d)\n",
		in, a.Complexity, a.CumulativeComplexity,
		a.DirectDMLCount, a.CumulativeDMLCount,
		a.DirectSOQLCount, a.CumulativeSOQLCount)

	if len(a.LoopContexts) > 0 {
		names := make([]string, 0, len(a.LoopContexts))
		for n := range a.LoopContexts {
			names = append(names, n)
		}
		sort.Strings(names)
		_, _ = fmt.Fprintf(w, "%sin loop:\n", in)
		for _, n := range names {
			c := a.LoopContexts[n]
			_, _ = fmt.Fprintf(w, "%s  %s (%s, depth %d, %s)\n", in, n, c.LoopReferenceName, c.Depth, c.Via)
		}
	}
	if len(a.SubflowsInLoop) > 0 {
		_, _ = fmt.Fprintf(w, "%ssub-workflows called in loops: %s\n", in, strings.Join(a.SubflowsInLoop, ", "))
	}
	for _, warn := range a.Warnings {
		_, _ = fmt.Fprintf(w, "%swarning: %s\n", in, warn)
	}
	for _, child := range a.ChildSubflows {
		writeAnalysisText(w, child, in)
	}
}

// GraphView is the structured form of a rendered graph.
type GraphView struct {
	Flow         string             `json:"flow"`
	Graph        *flow.ElementGraph `json:"graph"`
	LoopContexts flow.LoopContexts  `json:"loop_contexts"`
}

// WriteGraph renders an element graph with its loop contexts.
func WriteGraph(w io.Writer, name string, g *flow.ElementGraph, ctxs flow.LoopContexts, format string) error {
	switch format {
	case FormatText:
		writeGraphText(w, name, g, ctxs)
		return nil
	case FormatDOT:
		writeGraphDOT(w, name, g, ctxs)
		return nil
	}
	return WriteStructured(w, GraphView{Flow: name, Graph: g, LoopContexts: ctxs}, format)
}

func writeGraphText(w io.Writer, name string, g *flow.ElementGraph, ctxs flow.LoopContexts) {
	_, _ = fmt.Fprintf(w, "%s (%d elements)\n", name, g.Len())
	for _, e := range g.Elements {
		marker := ""
		if c, ok := ctxs[e.Name]; ok {
			marker = fmt.Sprintf(" [loop %s, depth %d]", c.LoopReferenceName, c.Depth)
		}
		_, _ = fmt.Fprintf(w, "  %s (%s)%s\n", e.Name, e.Kind, marker)
		for _, edge := range e.Edges {
			label := string(edge.Kind)
			if edge.Rule != "" {
				label += " " + edge.Rule
			}
			_, _ = fmt.Fprintf(w, "    -> %s (%s)\n", edge.Target, label)
		}
	}
	for _, d := range g.Dangling {
		_, _ = fmt.Fprintf(w, "  dangling: %s\n", d)
	}
}

func writeGraphDOT(w io.Writer, name string, g *flow.ElementGraph, ctxs flow.LoopContexts) {
	_, _ = fmt.Fprintf(w, "digraph %s {\n", dotID(name))
	for _, e := range g.Elements {
		attrs := fmt.Sprintf("label=%s", dotID(fmt.Sprintf("%s\\n%s", e.Name, e.Kind)))
		if e.Kind == flow.KindLoop {
			attrs += ", shape=box"
		}
		if ctxs.InLoop(e.Name) {
			attrs += ", style=filled, fillcolor=lightyellow"
		}
		_, _ = fmt.Fprintf(w, "  %s [%s];\n", dotID(e.Name), attrs)
	}
	for _, e := range g.Elements {
		for _, edge := range e.Edges {
			if !g.Has(edge.Target) {
				continue
			}
			style := ""
			if edge.Kind == flow.EdgeFault {
				style = ", style=dashed"
			}
			_, _ = fmt.Fprintf(w, "  %s -> %s [label=%s%s];\n", dotID(e.Name), dotID(edge.Target), dotID(string(edge.Kind)), style)
		}
	}
	_, _ = fmt.Fprintln(w, "}")
}

func dotID(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
