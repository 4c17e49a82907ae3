package lint

import (
	"context"

	"github.com/fshforge/fsh/internal/lexer"
	"github.com/fshforge/fsh/internal/syntax"
)

// DiagnosticBindingStrengthRequired reports a `from` binding rule that
// leaves its strength implicit. The exporter defaults an unstated strength
// to "required" (§4.6), which is exactly the behavior worth flagging: a
// reader can't tell an intentional required binding from one that just
// forgot to say so.
const DiagnosticBindingStrengthRequired syntax.DiagnosticCode = "blocking/binding-strength-required"

// BindingStrengthRequiredRule flags `* path from ValueSet` rules that omit
// an explicit `(strength)` suffix.
type BindingStrengthRequiredRule struct{}

// ID returns the stable rule identifier.
func (BindingStrengthRequiredRule) ID() string {
	return string(DiagnosticBindingStrengthRequired)
}

// Description returns a human-readable rule summary.
func (BindingStrengthRequiredRule) Description() string {
	return "binding rules should state their strength explicitly rather than rely on the required default"
}

// Run evaluates the rule against a syntax tree.
func (BindingStrengthRequiredRule) Run(ctx context.Context, tree *syntax.Tree) ([]syntax.Diagnostic, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]syntax.Diagnostic, 0, 4)
	forEachNamedNode(tree, func(n *syntax.Node, kind string) {
		if kind != "ValueSetRule" {
			return
		}
		if hasAnyNodeFlag(n.Flags, syntax.NodeFlagError|syntax.NodeFlagMissing|syntax.NodeFlagRecovered) {
			return
		}
		if hasExplicitStrength(tree, n) {
			return
		}
		out = append(out, syntax.Diagnostic{
			Code:        DiagnosticBindingStrengthRequired,
			Message:     "binding has no explicit strength; it will be treated as (required) — state it explicitly, e.g. `(required)`",
			Severity:    syntax.SeverityWarning,
			Span:        n.Span,
			Recoverable: true,
			Category:    "blocking",
			Suggestions: []syntax.CodeSuggestion{{
				Message:     "append (required)",
				Replacement: string(tree.NodeText(n)) + " (required)",
				Span:        n.Span,
				// Unsafe: the rule line may already end in a parenthesized
				// comment or continuation that a blind text append would
				// corrupt, so this isn't eligible for unattended batch fixing.
				Safety: syntax.SafetyUnsafe,
			}},
		})
	})
	return out, nil
}

func hasExplicitStrength(tree *syntax.Tree, n *syntax.Node) bool {
	for _, c := range n.Children {
		if !c.IsToken {
			continue
		}
		switch tree.Token(c.Index).Kind {
		case lexer.TokenStrengthRequired, lexer.TokenStrengthExtensible,
			lexer.TokenStrengthPreferred, lexer.TokenStrengthExample:
			return true
		}
	}
	return false
}
