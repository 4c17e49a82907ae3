package lint

import (
	"context"

	"github.com/fshforge/fsh/internal/lexer"
	"github.com/fshforge/fsh/internal/syntax"
)

// DiagnosticExtensionContextMissing reports an Extension with no Context:
// metadata clause. An extension without a declared context can be applied
// anywhere, which is rarely what the author intended.
const DiagnosticExtensionContextMissing syntax.DiagnosticCode = "correctness/extension-context-missing"

// ExtensionContextMissingRule flags Extension definitions that omit a
// Context: clause (and the equivalent `^context[+]` caret rule, which this
// rule does not yet look for — see the Run doc comment).
type ExtensionContextMissingRule struct{}

// ID returns the stable rule identifier.
func (ExtensionContextMissingRule) ID() string {
	return string(DiagnosticExtensionContextMissing)
}

// Description returns a human-readable rule summary.
func (ExtensionContextMissingRule) Description() string {
	return "extensions should declare at least one Context: so authoring tools know where they apply"
}

// Run evaluates the rule against a syntax tree. It only inspects the
// Context: metadata clause form; a context declared purely via
// `^context[+].type`/`^context[+].expression` caret rules is not detected,
// since those are ordinary CaretValueRule nodes indistinguishable from any
// other caret assignment without resolving the caret path.
func (ExtensionContextMissingRule) Run(ctx context.Context, tree *syntax.Tree) ([]syntax.Diagnostic, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]syntax.Diagnostic, 0, 2)
	forEachNamedNode(tree, func(n *syntax.Node, kind string) {
		if kind != "Extension" {
			return
		}
		if hasAnyNodeFlag(n.Flags, syntax.NodeFlagError|syntax.NodeFlagMissing) {
			return
		}
		if hasMetadataKeyword(tree, n.ID, lexer.TokenKwContext) {
			return
		}
		out = append(out, syntax.Diagnostic{
			Code:        DiagnosticExtensionContextMissing,
			Message:     "extension has no Context: clause; without one it may be applied anywhere",
			Severity:    syntax.SeverityWarning,
			Span:        n.Span,
			Recoverable: true,
			Category:    "correctness",
		})
	})
	return out, nil
}

// hasMetadataKeyword reports whether parent has a MetadataClause child
// whose leading keyword token is want.
func hasMetadataKeyword(tree *syntax.Tree, parent syntax.NodeID, want lexer.TokenKind) bool {
	for _, id := range tree.ChildNodeIDs(parent) {
		child := tree.NodeByID(id)
		if child == nil || child.Kind != syntax.KindMetadataClause || len(child.Children) == 0 {
			continue
		}
		first := child.Children[0]
		if !first.IsToken {
			continue
		}
		if tree.Token(first.Index).Kind == want {
			return true
		}
	}
	return false
}
