package lint

import (
	"context"
	"strings"

	"github.com/fshforge/fsh/internal/ast"
	"github.com/fshforge/fsh/internal/lexer"
	"github.com/fshforge/fsh/internal/syntax"
)

// DiagnosticMustSupportPropagation reports a rule on a child of a
// MustSupport element that does not itself carry MS. A consumer that
// understands the parent element as must-support has no signal that it
// also needs to honor the child.
const DiagnosticMustSupportPropagation syntax.DiagnosticCode = "suspicious/must-support-propagation"

// MustSupportPropagationRule flags rules whose path is nested under a path
// this definition already marked MS, when the nested rule sets flags of
// its own but omits MS.
type MustSupportPropagationRule struct{}

func (MustSupportPropagationRule) ID() string {
	return string(DiagnosticMustSupportPropagation)
}

func (MustSupportPropagationRule) Description() string {
	return "elements nested under a MustSupport element should usually be MustSupport themselves"
}

// Run evaluates the rule against a syntax tree.
func (MustSupportPropagationRule) Run(ctx context.Context, tree *syntax.Tree) ([]syntax.Diagnostic, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, ok := ast.CastDocument(tree)
	if !ok {
		return nil, nil
	}

	out := make([]syntax.Diagnostic, 0, 4)
	for _, entity := range doc.Entities() {
		def, ok := entity.AsDefinition()
		if !ok {
			continue
		}
		out = append(out, checkMustSupportPropagation(tree, def)...)
	}
	return out, nil
}

type flaggedRule struct {
	path    string
	rule    ast.Rule
	hasMS   bool
	hasFlag bool
}

func checkMustSupportPropagation(tree *syntax.Tree, def ast.Definition) []syntax.Diagnostic {
	var flagged []flaggedRule
	msPaths := make(map[string]bool)

	for _, rule := range def.Rules() {
		path := rule.Path()
		if path == "" {
			continue
		}
		flags := ruleFlagTokens(tree, rule)
		if len(flags) == 0 {
			continue
		}
		fr := flaggedRule{path: path, rule: rule}
		for _, f := range flags {
			if f.Kind == lexer.TokenFlagMS {
				fr.hasMS = true
				msPaths[path] = true
			}
		}
		fr.hasFlag = true
		flagged = append(flagged, fr)
	}

	if len(msPaths) == 0 {
		return nil
	}

	var out []syntax.Diagnostic
	for _, fr := range flagged {
		if fr.hasMS {
			continue
		}
		parent, ok := deepestMustSupportAncestor(fr.path, msPaths)
		if !ok {
			continue
		}
		out = append(out, syntax.Diagnostic{
			Code:        DiagnosticMustSupportPropagation,
			Message:     "\"" + fr.path + "\" is nested under MustSupport element \"" + parent + "\" but is not itself MS",
			Severity:    syntax.SeverityWarning,
			Span:        fr.rule.Node().Span,
			Recoverable: true,
			Category:    "suspicious",
		})
	}
	return out
}

// deepestMustSupportAncestor reports whether path has a strict dotted-prefix
// ancestor present in msPaths, returning the nearest one.
func deepestMustSupportAncestor(path string, msPaths map[string]bool) (string, bool) {
	segments := strings.Split(path, ".")
	for end := len(segments) - 1; end > 0; end-- {
		candidate := strings.Join(segments[:end], ".")
		if msPaths[candidate] {
			return candidate, true
		}
	}
	return "", false
}

func ruleFlagTokens(tree *syntax.Tree, rule ast.Rule) []lexer.Token {
	n := rule.Node()
	var out []lexer.Token
	for _, c := range n.Children {
		if c.IsToken {
			continue
		}
		fn := tree.NodeByID(syntax.NodeID(c.Index))
		if fn == nil || fn.Kind != syntax.KindFlagList {
			continue
		}
		for _, fc := range fn.Children {
			if fc.IsToken {
				out = append(out, tree.Token(fc.Index))
			}
		}
	}
	return out
}
