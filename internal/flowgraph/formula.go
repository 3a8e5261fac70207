package flowgraph

import (
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// Global roots that name the triggering record. A reference through them
// crosses objects after two hops ($Record.Account.Name); any other reference
// needs three segments (var.Account.Name).
var recordRoots = map[string]bool{
	"$Record":        true,
	"$Record__Prior": true,
}

const dollarPrefix = "__dollar_"

// MergeFields returns the contents of every {!...} merge field in expr, in
// order of appearance.
func MergeFields(expr string) []string {
	var out []string
	for {
		start := strings.Index(expr, "{!")
		if start < 0 {
			return out
		}
		rest := expr[start+2:]
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			return out
		}
		if f := strings.TrimSpace(rest[:end]); f != "" {
			out = append(out, f)
		}
		expr = rest[end+1:]
	}
}

// IsCrossObjectFormula reports whether a formula expression traverses a
// relationship: some merge field in it is a member chain long enough to reach
// a field on a related record.
func IsCrossObjectFormula(expression string) bool {
	for _, field := range MergeFields(expression) {
		for _, chain := range referenceChains(field) {
			if isCrossObject(chain) {
				return true
			}
		}
	}
	return false
}

func isCrossObject(chain []string) bool {
	if len(chain) == 0 {
		return false
	}
	if recordRoots[chain[0]] {
		return len(chain)-1 >= 2
	}
	return len(chain) >= 3
}

// referenceChains parses a merge field and returns each member chain in it
// as its dotted segments. Fields the expression parser rejects yield nothing.
func referenceChains(field string) [][]string {
	tree, err := parser.Parse(strings.ReplaceAll(field, "$", dollarPrefix))
	if err != nil {
		return nil
	}
	c := &chainCollector{}
	ast.Walk(&tree.Node, c)
	return c.chains
}

type chainCollector struct {
	chains [][]string
}

// Visit implements ast.Visitor.
func (c *chainCollector) Visit(node *ast.Node) {
	if node == nil || *node == nil {
		return
	}
	switch (*node).(type) {
	case *ast.MemberNode, *ast.IdentifierNode:
		if chain := memberChain(*node); len(chain) > 0 {
			c.chains = append(c.chains, chain)
		}
	}
}

func memberChain(n ast.Node) []string {
	switch v := n.(type) {
	case *ast.IdentifierNode:
		return []string{strings.ReplaceAll(v.Value, dollarPrefix, "$")}
	case *ast.MemberNode:
		prop, ok := v.Property.(*ast.StringNode)
		if !ok {
			return nil
		}
		base := memberChain(v.Node)
		if base == nil {
			return nil
		}
		return append(base, prop.Value)
	}
	return nil
}
