// Package parser implements the recursive-descent FSH parser that builds a
// lossless syntax.Tree over the trivia-preserving lexer token stream.
package parser

import (
	"github.com/fshforge/fsh/internal/lexer"
	"github.com/fshforge/fsh/internal/syntax"
	"github.com/fshforge/fsh/internal/text"
)

const defaultMaxDiagnostics = 500

// Parse lexes and parses src into a syntax.Tree. The tree is always
// lossless: concat(Tokens.Leading + Tokens.Text) == src, even when the
// parser recovered from errors.
func Parse(src []byte, opts syntax.ParseOptions) *syntax.Tree {
	lexResult := lexer.Lex(src)

	p := &parser{
		src:            src,
		tokens:         lexResult.Tokens,
		maxDiagnostics: opts.MaxDiagnostics,
	}
	if p.maxDiagnostics <= 0 {
		p.maxDiagnostics = defaultMaxDiagnostics
	}
	for _, d := range lexResult.Diagnostics {
		p.addDiagnostic(syntax.Diagnostic{
			Code:        syntax.DiagnosticCode(d.Code),
			Message:     d.Message,
			Severity:    syntax.SeverityError,
			Span:        d.Span,
			Source:      "lexer",
			Recoverable: true,
		})
	}

	root := p.parseDocument()

	tree := &syntax.Tree{
		URI:         opts.URI,
		Source:      src,
		Tokens:      lexResult.Tokens,
		Nodes:       p.nodes,
		Root:        root,
		Diagnostics: p.diagnostics,
		LineIndex:   text.NewLineIndex(src),
	}
	return tree
}

type parser struct {
	src            []byte
	tokens         []lexer.Token
	pos            int
	nodes          []syntax.Node // index 0 reserved sentinel
	diagnostics    []syntax.Diagnostic
	maxDiagnostics int
}

func (p *parser) addDiagnostic(d syntax.Diagnostic) {
	if len(p.diagnostics) >= p.maxDiagnostics {
		return
	}
	p.diagnostics = append(p.diagnostics, d)
	if len(p.diagnostics) == p.maxDiagnostics {
		p.diagnostics = append(p.diagnostics, syntax.Diagnostic{
			Code:     syntax.DiagnosticTooManyDiagnostics,
			Message:  "diagnostic limit reached; remaining diagnostics suppressed",
			Severity: syntax.SeverityWarning,
			Source:   "parser",
		})
	}
}

func (p *parser) newNode(kind syntax.NodeKind, firstTok, lastTok uint32, children []syntax.ChildRef, flags syntax.NodeFlags) syntax.NodeID {
	if len(p.nodes) == 0 {
		p.nodes = append(p.nodes, syntax.Node{}) // slot 0 sentinel
	}
	id := syntax.NodeID(len(p.nodes))
	sp := text.Span{Start: p.tok(firstTok).Span.Start, End: p.tok(lastTok).Span.End}
	n := syntax.Node{
		ID:         id,
		Kind:       kind,
		Span:       sp,
		FirstToken: firstTok,
		LastToken:  lastTok,
		Children:   children,
		Flags:      flags | syntax.NodeFlagNamed,
	}
	p.nodes = append(p.nodes, n)
	for _, c := range children {
		if !c.IsToken {
			p.nodes[c.Index].Parent = id
		}
	}
	return id
}

func (p *parser) tok(i uint32) lexer.Token {
	if int(i) >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1] // EOF
	}
	return p.tokens[i]
}

func (p *parser) cur() lexer.Token {
	return p.tok(uint32(p.pos))
}

func (p *parser) curKind() lexer.TokenKind {
	return p.cur().Kind
}

func (p *parser) at(k lexer.TokenKind) bool {
	return p.curKind() == k
}

func (p *parser) atEOF() bool {
	return p.curKind() == lexer.TokenEOF
}

// advance consumes the current token as a ChildRef and moves the cursor.
func (p *parser) advance() syntax.ChildRef {
	ref := syntax.ChildRef{IsToken: true, Index: uint32(p.pos)}
	if !p.atEOF() {
		p.pos++
	}
	return ref
}

// expect consumes the current token if it matches k, else reports
// SyntaxError and returns a missing-token child ref pointing at the current
// (unconsumed) token.
func (p *parser) expect(k lexer.TokenKind) syntax.ChildRef {
	if p.at(k) {
		return p.advance()
	}
	p.addDiagnostic(syntax.Diagnostic{
		Code:        syntax.DiagnosticSyntaxError,
		Message:     "expected " + k.String() + ", found " + p.curKind().String(),
		Severity:    syntax.SeverityError,
		Span:        p.cur().Span,
		Source:      "parser",
		Recoverable: true,
	})
	return syntax.ChildRef{IsToken: true, Index: uint32(p.pos)}
}

// startsLine reports whether the current token begins a new physical line
// with no leading indentation trivia following the newline — the column-0
// heuristic used by error recovery synchronization (§4.3) and by the
// RuleSet keyword's 'insert' disambiguation.
func (p *parser) startsLine(tok lexer.Token) bool {
	if len(tok.Leading) == 0 {
		return p.pos == 0
	}
	last := tok.Leading[len(tok.Leading)-1]
	return last.Kind == lexer.TriviaNewline
}

// isSyncPoint reports whether the current token is a valid error-recovery
// synchronization point: a definition keyword or '*' starting a line, or EOF.
func (p *parser) isSyncPoint() bool {
	if p.atEOF() {
		return true
	}
	if !p.startsLine(p.cur()) {
		return false
	}
	switch p.curKind() {
	case lexer.TokenKwAlias, lexer.TokenKwProfile, lexer.TokenKwExtension,
		lexer.TokenKwValueSet, lexer.TokenKwCodeSystem, lexer.TokenKwInstance,
		lexer.TokenKwInvariant, lexer.TokenKwMapping, lexer.TokenKwLogical,
		lexer.TokenKwResource, lexer.TokenKwRuleSet, lexer.TokenStar:
		return true
	default:
		return false
	}
}

// recover skips tokens until the next synchronization point, wrapping the
// skipped span in a KindError node.
func (p *parser) recover() syntax.NodeID {
	start := uint32(p.pos)
	var skipped []syntax.ChildRef
	for !p.isSyncPoint() {
		skipped = append(skipped, p.advance())
	}
	if len(skipped) == 0 {
		return syntax.NoNode
	}
	last := uint32(p.pos - 1)
	return p.newNode(syntax.KindError, start, last, skipped, syntax.NodeFlagError|syntax.NodeFlagRecovered)
}

func (p *parser) parseDocument() syntax.NodeID {
	startTok := uint32(0)
	var children []syntax.ChildRef
	for !p.atEOF() {
		before := p.pos
		if id := p.parseEntity(); id != syntax.NoNode {
			children = append(children, syntax.ChildRef{Index: uint32(id)})
		}
		if p.pos == before {
			// parseEntity made no progress (unrecognized token at document level).
			if errID := p.recover(); errID != syntax.NoNode {
				children = append(children, syntax.ChildRef{Index: uint32(errID)})
			} else {
				p.advance() // guarantee forward progress
			}
		}
	}
	lastTok := uint32(p.pos)
	if lastTok > 0 {
		lastTok--
	}
	return p.newNode(syntax.KindDocument, startTok, lastTok, children, 0)
}

var definitionKinds = map[lexer.TokenKind]syntax.NodeKind{
	lexer.TokenKwProfile:    syntax.KindProfile,
	lexer.TokenKwExtension:  syntax.KindExtension,
	lexer.TokenKwValueSet:   syntax.KindValueSet,
	lexer.TokenKwCodeSystem: syntax.KindCodeSystem,
	lexer.TokenKwInstance:   syntax.KindInstance,
	lexer.TokenKwInvariant:  syntax.KindInvariant,
	lexer.TokenKwMapping:    syntax.KindMapping,
	lexer.TokenKwLogical:    syntax.KindLogical,
	lexer.TokenKwResource:   syntax.KindResource,
	lexer.TokenKwRuleSet:    syntax.KindRuleSet,
}

// metadataKeywords lists tokens that open a metadata clause ("Keyword ':'
// value"), shared by every definition shape per §4.3.
var metadataKeywords = map[lexer.TokenKind]bool{
	lexer.TokenKwParent:          true,
	lexer.TokenKwId:              true,
	lexer.TokenKwTitle:           true,
	lexer.TokenKwDescription:     true,
	lexer.TokenKwInstanceOf:      true,
	lexer.TokenKwUsage:           true,
	lexer.TokenKwContext:         true,
	lexer.TokenKwCharacteristics: true,
	lexer.TokenKwSource:          true,
	lexer.TokenKwTarget:          true,
	lexer.TokenKwExpression:      true,
	lexer.TokenKwSeverity:        true,
	lexer.TokenKwXPath:           true,
}

func (p *parser) parseEntity() syntax.NodeID {
	if p.at(lexer.TokenKwAlias) {
		return p.parseAlias()
	}
	kind, ok := definitionKinds[p.curKind()]
	if !ok {
		return syntax.NoNode
	}
	return p.parseDefinition(kind)
}

func (p *parser) parseAlias() syntax.NodeID {
	start := uint32(p.pos)
	var children []syntax.ChildRef
	children = append(children, p.advance()) // 'Alias'
	children = append(children, p.expect(lexer.TokenColon))
	children = append(children, p.expect(lexer.TokenIdentifier)) // $Name
	children = append(children, p.expect(lexer.TokenEquals))
	children = append(children, p.advance()) // value (identifier/canonical URL)
	last := uint32(p.pos - 1)
	return p.newNode(syntax.KindAlias, start, last, children, 0)
}

// parseDefinition handles the shared "Keyword ':' Name MetadataClause*
// Rule*" shape used by every definition kind.
func (p *parser) parseDefinition(kind syntax.NodeKind) syntax.NodeID {
	start := uint32(p.pos)
	var children []syntax.ChildRef
	children = append(children, p.advance()) // definition keyword
	children = append(children, p.expect(lexer.TokenColon))
	children = append(children, p.expect(lexer.TokenIdentifier)) // name

	if kind == syntax.KindRuleSet && p.at(lexer.TokenLParen) {
		children = append(children, p.parseParamList())
	}

	seenMetadata := map[lexer.TokenKind]bool{}
	for metadataKeywords[p.curKind()] {
		clauseStart := uint32(p.pos)
		kw := p.curKind()
		var clauseChildren []syntax.ChildRef
		clauseChildren = append(clauseChildren, p.advance())
		clauseChildren = append(clauseChildren, p.expect(lexer.TokenColon))
		for !p.atEOF() && !p.startsLine(p.cur()) {
			clauseChildren = append(clauseChildren, p.advance())
		}
		// A clause value may also legitimately start the line if it is the
		// sole token before the next keyword/rule; consume at least one
		// value token to guarantee progress.
		if len(clauseChildren) == 2 && !p.atEOF() {
			clauseChildren = append(clauseChildren, p.advance())
		}
		last := uint32(p.pos - 1)
		if seenMetadata[kw] {
			p.addDiagnostic(syntax.Diagnostic{
				Code:     syntax.DiagnosticDuplicateMetadata,
				Message:  "duplicate metadata clause " + kw.String(),
				Severity: syntax.SeverityWarning,
				Span:     p.tok(clauseStart).Span,
				Source:   "parser",
			})
		}
		seenMetadata[kw] = true
		clauseID := p.newNode(syntax.KindMetadataClause, clauseStart, last, clauseChildren, 0)
		children = append(children, syntax.ChildRef{Index: uint32(clauseID)})
	}

	for p.at(lexer.TokenStar) {
		before := p.pos
		ruleID := p.parseRule()
		if ruleID != syntax.NoNode {
			children = append(children, syntax.ChildRef{Index: uint32(ruleID)})
		}
		if p.pos == before {
			break
		}
	}

	last := uint32(p.pos - 1)
	return p.newNode(kind, start, last, children, 0)
}
