package format

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fshforge/fsh/internal/lexer"
	"github.com/fshforge/fsh/internal/syntax"
	"github.com/fshforge/fsh/internal/text"
)

const (
	// DiagnosticFormatterRangeNoSafeAncestor reports that range widening found no format-safe ancestor.
	DiagnosticFormatterRangeNoSafeAncestor syntax.DiagnosticCode = "FMT_RANGE_NO_SAFE_ANCESTOR"
	// DiagnosticFormatterRangeUnboundedNode reports token/span coverage mismatch for the widened ancestor.
	DiagnosticFormatterRangeUnboundedNode syntax.DiagnosticCode = "FMT_RANGE_UNBOUNDED_ANCESTOR"
)

func findRangeFormatAncestor(tree *syntax.Tree, r text.Span) (syntax.NodeID, syntax.Diagnostic, error) {
	if tree == nil {
		return syntax.NoNode, syntax.Diagnostic{}, errors.New("nil syntax tree")
	}

	best := syntax.NoNode
	bestLen := text.ByteOffset(-1)
	for i := 1; i < len(tree.Nodes); i++ {
		id := syntax.NodeID(i)
		n := tree.NodeByID(id)
		if n == nil || !isFormatSafeAncestorKind(syntax.KindName(n.Kind)) {
			continue
		}
		if !nodeContainsRange(n, r) {
			continue
		}
		if best == syntax.NoNode || n.Span.Len() < bestLen {
			best = id
			bestLen = n.Span.Len()
		}
	}

	if best == syntax.NoNode {
		return rangeBlockingFailure(
			DiagnosticFormatterRangeNoSafeAncestor,
			r,
			"selected range cannot be widened to a format-safe ancestor",
			"selected range cannot be widened to a format-safe ancestor",
		)
	}

	n := tree.NodeByID(best)
	if !hasBoundedTokenCoverage(tree, n) {
		span := r
		if n != nil {
			span = n.Span
		}
		return rangeBlockingFailure(
			DiagnosticFormatterRangeUnboundedNode,
			span,
			"range formatting ancestor does not have fully bounded token coverage",
			"range formatting requires a format-safe ancestor with fully bounded token coverage",
		)
	}

	return best, syntax.Diagnostic{}, nil
}

func formatNodeRange(tree *syntax.Tree, id syntax.NodeID, opts Options, policy SourcePolicy) ([]byte, error) {
	n := tree.NodeByID(id)
	if n == nil {
		return nil, fmt.Errorf("range ancestor node %d not found", id)
	}
	if !hasBoundedTokenCoverage(tree, n) {
		return nil, fmt.Errorf("node %d does not have bounded token coverage", id)
	}
	if int(n.FirstToken) >= len(tree.Tokens) || int(n.LastToken) >= len(tree.Tokens) || n.LastToken < n.FirstToken {
		return nil, fmt.Errorf("node %d token range out of bounds", id)
	}

	hints := collectFormatHints(tree, opts)
	writerAtLineStart := isLineStartOffset(tree.Source, n.Span.Start)
	w := newTokenWriter(policy.Newline, opts.indent(), opts.maxBlankLines())
	w.atLineStart = writerAtLineStart

	var prevKind lexer.TokenKind
	var havePrev bool

	for ti := n.FirstToken; ti <= n.LastToken; ti++ {
		if int(ti) >= len(tree.Tokens) {
			return nil, fmt.Errorf("token index %d out of bounds", ti)
		}
		tok := tree.Tokens[ti]
		if tok.Kind == lexer.TokenEOF {
			break
		}

		if ti != n.FirstToken {
			if hints.ruleBlockStart[ti] {
				if opts.BlankLineBeforeRules {
					w.requestBreaks(2)
				} else {
					w.requestBreaks(1)
				}
			} else if hints.lineStart[ti] {
				w.requestBreaks(1)
			}
			// Top-level blank-line spacing between entities is intentionally
			// omitted here; surrounding whitespace remains outside the edit span.
			if err := w.emitLeadingTrivia(tree.Source, tok.Leading, 0, false); err != nil {
				return nil, err
			}
		}
		if havePrev {
			if hints.forceSpaceBeforeParen[ti] {
				w.requestSpace()
			} else if fshShouldInsertSpace(prevKind, tok.Kind) {
				w.requestSpace()
			}
		}

		raw := tok.Text(tree.Source)
		if raw == nil {
			return nil, fmt.Errorf("invalid token span %s at index %d", tok.Span, ti)
		}
		w.writeRaw(0, raw)
		if pad, ok := hints.pathPadAfter[ti]; ok && pad > 0 {
			w.buf.WriteString(strings.Repeat(" ", pad))
			w.pendingSpace = false
			w.skipNextSpace()
		}

		prevKind = tok.Kind
		havePrev = true
	}

	return w.finish(), nil
}

func hasBoundedTokenCoverage(tree *syntax.Tree, n *syntax.Node) bool {
	if tree == nil || n == nil {
		return false
	}
	if !n.Span.IsValid() {
		return false
	}
	if int(n.FirstToken) >= len(tree.Tokens) || int(n.LastToken) >= len(tree.Tokens) || n.LastToken < n.FirstToken {
		return false
	}

	first := tree.Tokens[n.FirstToken]
	last := tree.Tokens[n.LastToken]
	if first.Kind == lexer.TokenEOF || last.Kind == lexer.TokenEOF {
		return false
	}
	if first.Span.Start != n.Span.Start || last.Span.End != n.Span.End {
		return false
	}
	for i := n.FirstToken; i <= n.LastToken; i++ {
		tok := tree.Tokens[i]
		if tok.Kind == lexer.TokenEOF || !n.Span.ContainsSpan(tok.Span) {
			return false
		}
	}
	return true
}

func nodeContainsRange(n *syntax.Node, r text.Span) bool {
	if n == nil || !n.Span.IsValid() || !r.IsValid() {
		return false
	}
	if r.IsEmpty() {
		return n.Span.Start <= r.Start && r.Start <= n.Span.End
	}
	return n.Span.ContainsSpan(r)
}

func isFormatSafeAncestorKind(kind string) bool {
	switch kind {
	case "Profile", "Extension", "ValueSet", "CodeSystem", "Instance", "Invariant",
		"Mapping", "Logical", "Resource", "RuleSet",
		"MetadataClause",
		"CardRule", "FlagRule", "ValueSetRule", "FixedValueRule", "ContainsRule",
		"OnlyRule", "ObeysRule", "MappingRule", "CaretValueRule", "CodeCaretValueRule",
		"CodeInsertRule", "InsertRule":
		return true
	default:
		return false
	}
}

func isLineStartOffset(src []byte, off text.ByteOffset) bool {
	if !off.IsValid() {
		return false
	}
	if off == 0 {
		return true
	}
	i := int(off)
	if i <= 0 || i > len(src) {
		return false
	}
	return src[i-1] == '\n' || src[i-1] == '\r'
}

func rangeBlockingDiagnostic(code syntax.DiagnosticCode, sp text.Span, msg string) syntax.Diagnostic {
	return syntax.Diagnostic{
		Code:        code,
		Message:     msg,
		Severity:    syntax.SeverityError,
		Span:        sp,
		Source:      "formatter",
		Recoverable: false,
	}
}

func rangeBlockingFailure(code syntax.DiagnosticCode, sp text.Span, diagMsg, errMsg string) (syntax.NodeID, syntax.Diagnostic, error) {
	diag := rangeBlockingDiagnostic(code, sp, diagMsg)
	return syntax.NoNode, diag, &ErrUnsafeToFormat{Reason: UnsafeReasonSyntaxErrors, Message: errMsg}
}
