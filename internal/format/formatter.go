package format

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/fshforge/fsh/internal/ast"
	"github.com/fshforge/fsh/internal/lexer"
	"github.com/fshforge/fsh/internal/syntax"
)

// formatHints precomputes, per token index, the structural decisions that
// depend on the typed AST rather than on local token adjacency: where a
// blank or single line break belongs, how much padding a rule's path needs
// for caret alignment, and which '(' tokens need a preceding space that the
// generic adjacency rule would otherwise suppress (a ValueSetRule's
// trailing "(strength)").
type formatHints struct {
	topLevelStart         map[uint32]int
	lineStart             map[uint32]bool
	ruleBlockStart        map[uint32]bool
	pathPadAfter          map[uint32]int
	forceSpaceBeforeParen map[uint32]bool
}

type tokenWriter struct {
	buf           bytes.Buffer
	newline       string
	indent        string
	maxBlankLines int
	atLineStart   bool
	pendingSpace  bool
	pendingBreaks int
	suppressSpace bool
}

func newTokenWriter(newline, indent string, maxBlankLines int) *tokenWriter {
	return &tokenWriter{
		newline:       newline,
		indent:        indent,
		maxBlankLines: maxBlankLines,
		atLineStart:   true,
	}
}

func (w *tokenWriter) requestSpace() {
	if w.suppressSpace {
		w.suppressSpace = false
		return
	}
	if w.atLineStart || w.pendingBreaks > 0 {
		return
	}
	w.pendingSpace = true
}

// skipNextSpace suppresses the next requestSpace call, used after caret
// alignment padding already supplied the separator it would have added.
func (w *tokenWriter) skipNextSpace() {
	w.suppressSpace = true
}

func (w *tokenWriter) requestBreaks(lines int) {
	if lines <= 0 {
		return
	}
	if lines > w.pendingBreaks {
		w.pendingBreaks = lines
	}
	w.pendingSpace = false
}

func (w *tokenWriter) flushBeforeContent(indentLevel int) {
	if w.pendingBreaks > 0 {
		if w.buf.Len() > 0 {
			w.buf.WriteString(repeatString(w.newline, w.cappedBreaks()))
		}
		w.atLineStart = true
		w.pendingBreaks = 0
	}
	if w.atLineStart {
		if indentLevel > 0 {
			w.buf.WriteString(repeatString(w.indent, indentLevel))
		}
		w.atLineStart = false
		w.pendingSpace = false
		return
	}
	if w.pendingSpace {
		w.buf.WriteByte(' ')
		w.pendingSpace = false
	}
}

func (w *tokenWriter) writeRaw(indentLevel int, raw []byte) {
	if len(raw) == 0 {
		return
	}
	w.flushBeforeContent(indentLevel)
	w.buf.Write(raw)
	w.pendingSpace = false
	w.atLineStart = endsWithLineBreak(raw)
}

func (w *tokenWriter) emitLeadingTrivia(src []byte, trivia []lexer.Trivia, indentLevel int, preserveNewlines bool) error {
	hasComment := triviaHasComment(trivia)
	for _, tr := range trivia {
		switch tr.Kind {
		case lexer.TriviaWhitespace:
			if hasComment {
				w.requestSpace()
			}
		case lexer.TriviaNewline:
			if hasComment || preserveNewlines {
				w.addBreak()
			}
		case lexer.TriviaLineComment, lexer.TriviaBlockComment:
			raw := tr.Bytes(src)
			if raw == nil {
				return fmt.Errorf("invalid trivia span %s", tr.Span)
			}
			w.writeRaw(indentLevel, raw)
		default:
			// Ignore unknown trivia conservatively.
		}
	}
	return nil
}

func (w *tokenWriter) addBreak() {
	w.pendingBreaks++
	w.pendingSpace = false
}

func (w *tokenWriter) finish() []byte {
	if w.pendingBreaks > 0 {
		w.buf.WriteString(repeatString(w.newline, w.cappedBreaks()))
		w.pendingBreaks = 0
		w.pendingSpace = false
		w.atLineStart = true
	}
	return w.buf.Bytes()
}

func (w *tokenWriter) cappedBreaks() int {
	return min(w.pendingBreaks, max(w.maxBlankLines+1, 1))
}

// formatSyntaxTree renders the canonical FSH text for tree by replaying its
// token stream with adjacency-driven spacing and AST-driven line breaks.
// Walking the flat token stream (rather than recursively printing the AST)
// keeps every comment and piece of trivia in place automatically, since
// trivia always travels with the token it leads.
func formatSyntaxTree(tree *syntax.Tree, opts Options, policy SourcePolicy) ([]byte, error) {
	if tree == nil {
		return nil, errors.New("nil syntax tree")
	}
	if len(tree.Tokens) == 0 || tree.Root == syntax.NoNode {
		return bytes.Clone(tree.Source), nil
	}

	hints := collectFormatHints(tree, opts)
	w := newTokenWriter(policy.Newline, opts.indent(), opts.maxBlankLines())
	if policy.HasBOM {
		w.buf.WriteString(utf8BOM)
		w.atLineStart = false
	}

	var prevKind lexer.TokenKind
	var havePrev bool

	for i := range tree.Tokens {
		idx := uint32(i)
		tok := tree.Tokens[i]
		if tok.Kind == lexer.TokenEOF {
			if err := w.emitLeadingTrivia(tree.Source, tok.Leading, 0, true); err != nil {
				return nil, err
			}
			break
		}

		switch {
		case hints.topLevelStart[idx] > 0:
			w.requestBreaks(2)
		case hints.ruleBlockStart[idx]:
			if opts.BlankLineBeforeRules {
				w.requestBreaks(2)
			} else {
				w.requestBreaks(1)
			}
		case hints.lineStart[idx]:
			w.requestBreaks(1)
		}

		if err := w.emitLeadingTrivia(tree.Source, tok.Leading, 0, false); err != nil {
			return nil, err
		}
		if havePrev {
			if hints.forceSpaceBeforeParen[idx] {
				w.requestSpace()
			} else if fshShouldInsertSpace(prevKind, tok.Kind) {
				w.requestSpace()
			}
		}

		raw := tok.Text(tree.Source)
		if raw == nil {
			return nil, fmt.Errorf("invalid token span %s at index %d", tok.Span, i)
		}
		w.writeRaw(0, raw)
		if pad, ok := hints.pathPadAfter[idx]; ok && pad > 0 {
			w.buf.WriteString(strings.Repeat(" ", pad))
			w.pendingSpace = false
			w.skipNextSpace()
		}

		prevKind = tok.Kind
		havePrev = true
	}

	return bytes.Clone(w.finish()), nil
}

func collectFormatHints(tree *syntax.Tree, opts Options) formatHints {
	hints := formatHints{
		topLevelStart:         make(map[uint32]int),
		lineStart:             make(map[uint32]bool),
		ruleBlockStart:        make(map[uint32]bool),
		pathPadAfter:          make(map[uint32]int),
		forceSpaceBeforeParen: make(map[uint32]bool),
	}

	for order, id := range tree.TopLevelDeclarationIDs() {
		n := tree.NodeByID(id)
		if n == nil {
			continue
		}
		hints.topLevelStart[n.FirstToken] = order
	}

	doc, ok := ast.CastDocument(tree)
	if !ok {
		return hints
	}

	for _, entity := range doc.Entities() {
		def, ok := entity.AsDefinition()
		if !ok {
			continue // Alias: a single line, no internal breaks
		}

		for _, mc := range def.MetadataClauses() {
			hints.lineStart[mc.Node().FirstToken] = true
		}

		rules := def.Rules()
		for i, rule := range rules {
			n := rule.Node()
			hints.lineStart[n.FirstToken] = true
			if i == 0 {
				hints.ruleBlockStart[n.FirstToken] = true
			}
			if rule.Kind() == syntax.KindValueSetRule {
				markStrengthParen(tree, n, hints.forceSpaceBeforeParen)
			}
		}

		if opts.AlignCarets {
			alignRuleCarets(tree, rules, hints.pathPadAfter)
		}
	}

	return hints
}

// alignRuleCarets pads every rule's path (where present) to the length of
// the longest "* path" prefix among rules sharing this definition, so the
// cardinality/flags/value that follows lines up in a column.
func alignRuleCarets(tree *syntax.Tree, rules []ast.Rule, pad map[uint32]int) {
	type candidate struct {
		lastPathToken uint32
		prefixLen     int
	}
	var candidates []candidate
	maxLen := 0
	for _, rule := range rules {
		path := rule.Path()
		if path == "" {
			continue
		}
		pathNode := findChildOfKind(tree, rule.Node(), syntax.KindPath)
		if pathNode == nil {
			continue
		}
		prefixLen := len("* ") + len(path)
		if prefixLen > maxLen {
			maxLen = prefixLen
		}
		candidates = append(candidates, candidate{lastPathToken: pathNode.LastToken, prefixLen: prefixLen})
	}
	for _, c := range candidates {
		extra := maxLen - c.prefixLen + 1
		if extra < 1 {
			extra = 1
		}
		pad[c.lastPathToken] = extra
	}
}

func markStrengthParen(tree *syntax.Tree, n *syntax.Node, out map[uint32]bool) {
	for _, c := range n.Children {
		if !c.IsToken {
			continue
		}
		if tree.Token(c.Index).Kind == lexer.TokenLParen {
			out[c.Index] = true
		}
	}
}

func findChildOfKind(tree *syntax.Tree, n *syntax.Node, kind syntax.NodeKind) *syntax.Node {
	for _, c := range n.Children {
		if c.IsToken {
			continue
		}
		cn := tree.NodeByID(syntax.NodeID(c.Index))
		if cn != nil && cn.Kind == kind {
			return cn
		}
	}
	return nil
}

// fshShouldInsertSpace decides whether a space belongs between two adjacent
// tokens in the canonical rendering, based purely on their kinds. Structural
// line breaks are handled separately by formatHints; this only governs
// spacing within a single line.
func fshShouldInsertSpace(prev, cur lexer.TokenKind) bool {
	switch {
	case prev == lexer.TokenDotDot, cur == lexer.TokenDotDot:
		return false
	case prev == lexer.TokenDot, cur == lexer.TokenDot:
		return false
	case cur == lexer.TokenColon, cur == lexer.TokenComma:
		return false
	case prev == lexer.TokenColon, prev == lexer.TokenComma:
		return true
	case prev == lexer.TokenEquals, cur == lexer.TokenEquals:
		return true
	case prev == lexer.TokenArrow, cur == lexer.TokenArrow:
		return true
	case cur == lexer.TokenCaret:
		return true
	case prev == lexer.TokenCaret:
		return false
	case prev == lexer.TokenDollar:
		return false
	case cur == lexer.TokenDollar:
		return prev != lexer.TokenLParen
	case prev == lexer.TokenHash:
		return false
	case cur == lexer.TokenSoftIndex, cur == lexer.TokenReuse:
		return false
	case cur == lexer.TokenLBracket:
		return false
	case prev == lexer.TokenLBracket:
		return false
	case cur == lexer.TokenRBracket, cur == lexer.TokenRParen, cur == lexer.TokenRBrace:
		return false
	case prev == lexer.TokenLParen, prev == lexer.TokenLBrace:
		return false
	case cur == lexer.TokenLParen:
		return false
	case prev == lexer.TokenStar:
		return true
	case isClosingDelimiter(prev) && isWordLike(cur):
		return true
	case isWordLike(prev) && isWordLike(cur):
		return true
	default:
		return false
	}
}

func isWordLike(k lexer.TokenKind) bool {
	switch {
	case k == lexer.TokenIdentifier, k == lexer.TokenString, k == lexer.TokenMultilineString,
		k == lexer.TokenInteger, k == lexer.TokenDecimal, k == lexer.TokenCode,
		k == lexer.TokenDate, k == lexer.TokenDateTime, k == lexer.TokenTime, k == lexer.TokenUnit:
		return true
	case k == lexer.TokenError:
		return true
	case k >= lexer.TokenKwAlias && k <= lexer.TokenKwXPath:
		return true
	case k >= lexer.TokenKwFrom && k <= lexer.TokenKwFalse:
		return true
	case k >= lexer.TokenFlagMS && k <= lexer.TokenFlagDraft:
		return true
	case k >= lexer.TokenStrengthExample && k <= lexer.TokenStrengthRequired:
		return true
	case k == lexer.TokenModifier:
		return true
	default:
		return false
	}
}

func isClosingDelimiter(k lexer.TokenKind) bool {
	return k == lexer.TokenRParen || k == lexer.TokenRBracket || k == lexer.TokenRBrace
}

func isCommentTrivia(k lexer.TriviaKind) bool {
	return k == lexer.TriviaLineComment || k == lexer.TriviaBlockComment
}

func triviaHasComment(trivia []lexer.Trivia) bool {
	for _, tr := range trivia {
		if isCommentTrivia(tr.Kind) {
			return true
		}
	}
	return false
}

func repeatString(s string, count int) string {
	if count <= 0 || s == "" {
		return ""
	}
	return strings.Repeat(s, count)
}

func endsWithLineBreak(b []byte) bool {
	return bytes.HasSuffix(b, []byte("\n")) || bytes.HasSuffix(b, []byte("\r\n"))
}
