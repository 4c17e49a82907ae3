package lint

import (
	"context"

	"github.com/fshforge/fsh/internal/lexer"
	"github.com/fshforge/fsh/internal/syntax"
	"github.com/fshforge/fsh/internal/text"
)

// DiagnosticSliceNameCollision reports two items in the same contains rule
// that resolve to the same slice name.
const DiagnosticSliceNameCollision syntax.DiagnosticCode = "correctness/slice-name-collision"

// SliceNameCollisionRule flags `contains A and A` / `contains X named dup
// and Y named dup` style duplicate slice names within a single ContainsRule.
// Two colliding slices silently shadow one another downstream (the exporter
// keys sliced elements by name), so this is a correctness issue, not style.
type SliceNameCollisionRule struct{}

// ID returns the stable rule identifier.
func (SliceNameCollisionRule) ID() string {
	return string(DiagnosticSliceNameCollision)
}

// Description returns a human-readable rule summary.
func (SliceNameCollisionRule) Description() string {
	return "a contains rule should not declare the same slice name more than once"
}

// Run evaluates the rule against a syntax tree.
func (SliceNameCollisionRule) Run(ctx context.Context, tree *syntax.Tree) ([]syntax.Diagnostic, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]syntax.Diagnostic, 0, 4)
	forEachNamedNode(tree, func(n *syntax.Node, kind string) {
		if kind != "ContainsRule" {
			return
		}
		if hasAnyNodeFlag(n.Flags, syntax.NodeFlagError|syntax.NodeFlagMissing) {
			return
		}
		seen := make(map[string]text.Span)
		for _, id := range tree.ChildNodeIDs(n.ID) {
			item := tree.NodeByID(id)
			if item == nil || item.Kind != syntax.KindContainsItem {
				continue
			}
			name, span, ok := sliceItemName(tree, item)
			if !ok {
				continue
			}
			if first, dup := seen[name]; dup {
				out = append(out, syntax.Diagnostic{
					Code:        DiagnosticSliceNameCollision,
					Message:     "slice name \"" + name + "\" is declared more than once in this contains rule",
					Severity:    syntax.SeverityError,
					Span:        span,
					Related:     []syntax.RelatedDiagnostic{{Message: "first declared here", Span: first}},
					Recoverable: true,
					Category:    "correctness",
				})
				continue
			}
			seen[name] = span
		}
	})
	return out, nil
}

// sliceItemName resolves a ContainsItem's effective slice name: the
// identifier after a `named` keyword if present, otherwise the item's own
// leading identifier (the referenced type name doubles as its slice name).
func sliceItemName(tree *syntax.Tree, item *syntax.Node) (string, text.Span, bool) {
	var base, override lexer.Token
	var haveBase, haveOverride, sawNamed bool
	for _, c := range item.Children {
		if !c.IsToken {
			continue
		}
		tok := tree.Token(c.Index)
		switch tok.Kind {
		case lexer.TokenKwNamed:
			sawNamed = true
		case lexer.TokenIdentifier:
			switch {
			case sawNamed && !haveOverride:
				override, haveOverride = tok, true
			case !sawNamed && !haveBase:
				base, haveBase = tok, true
			}
		}
	}
	if haveOverride {
		return string(override.Text(tree.Source)), override.Span, true
	}
	if haveBase {
		return string(base.Text(tree.Source)), base.Span, true
	}
	return "", text.Span{}, false
}
