package parser

import (
	"github.com/fshforge/fsh/internal/lexer"
	"github.com/fshforge/fsh/internal/syntax"
)

var flagTokens = map[lexer.TokenKind]bool{
	lexer.TokenFlagMS:        true,
	lexer.TokenFlagSU:        true,
	lexer.TokenFlagTU:        true,
	lexer.TokenFlagNormative: true,
	lexer.TokenFlagDraft:     true,
	lexer.TokenModifier:      true,
}

// parseRule dispatches on the rule prefix starting at '*', per the
// disambiguation table in §4.3.
func (p *parser) parseRule() syntax.NodeID {
	start := uint32(p.pos)
	star := p.advance() // '*'

	if p.at(lexer.TokenCode) {
		return p.parseCodePrefixedRule(start, star)
	}

	pathID := p.parsePath()
	var pathChild *syntax.ChildRef
	if pathID != syntax.NoNode {
		pathChild = &syntax.ChildRef{Index: uint32(pathID)}
	}

	switch {
	case p.at(lexer.TokenInteger):
		return p.parseCardRule(start, star, pathChild)
	case flagTokens[p.curKind()]:
		return p.parseFlagRule(start, star, pathChild)
	case p.at(lexer.TokenKwFrom):
		return p.parseValueSetRule(start, star, pathChild)
	case p.at(lexer.TokenEquals):
		if pathID != syntax.NoNode && p.pathHasCaret(pathID) {
			return p.parseCaretValueRule(start, star, pathChild)
		}
		return p.parseFixedValueRule(start, star, pathChild)
	case p.at(lexer.TokenKwContains):
		return p.parseContainsRule(start, star, pathChild)
	case p.at(lexer.TokenKwOnly):
		return p.parseOnlyRule(start, star, pathChild)
	case p.at(lexer.TokenKwObeys):
		return p.parseObeysRule(start, star, pathChild)
	case p.at(lexer.TokenArrow):
		return p.parseMappingRule(start, star, pathChild)
	case p.at(lexer.TokenKwInsert):
		return p.parseInsertRule(start, star, pathChild)
	default:
		p.addDiagnostic(syntax.Diagnostic{
			Code:        syntax.DiagnosticSyntaxError,
			Message:     "unrecognized rule prefix at " + p.curKind().String(),
			Severity:    syntax.SeverityError,
			Span:        p.cur().Span,
			Source:      "parser",
			Recoverable: true,
		})
		return p.recover()
	}
}

func (p *parser) pathHasCaret(pathID syntax.NodeID) bool {
	node := p.nodes[pathID]
	for _, c := range node.Children {
		if c.IsToken && p.tok(c.Index).Kind == lexer.TokenCaret {
			return true
		}
	}
	return false
}

// parsePath parses a dotted path, optionally followed by a caret path
// (e.g. "component[Systolic].value[x] ^short" or the caret-only "^status").
// It returns NoNode if the current token cannot start a path. Every rule
// keyword that can follow a path (from/contains/only/obeys/insert/and/or)
// is itself a distinct token kind, never TokenIdentifier, so the segment
// loop naturally stops there without an explicit stop-token table.
func (p *parser) parsePath() syntax.NodeID {
	start := uint32(p.pos)
	var children []syntax.ChildRef

	consumeSegments := func() {
		for {
			switch p.curKind() {
			case lexer.TokenIdentifier:
				children = append(children, p.advance())
			default:
				return
			}
			for p.at(lexer.TokenLBracket) {
				segStart := uint32(p.pos)
				var segChildren []syntax.ChildRef
				segChildren = append(segChildren, p.advance())
				// The selector itself may be more than one token — e.g. a
				// RuleSet template's "{param}" placeholder lexes as
				// LBrace/Identifier/RBrace — so consume everything up to the
				// matching ']' rather than assuming a single token.
				for !p.at(lexer.TokenRBracket) && !p.atEOF() && !p.startsLine(p.cur()) {
					segChildren = append(segChildren, p.advance())
				}
				segChildren = append(segChildren, p.expect(lexer.TokenRBracket))
				last := uint32(p.pos - 1)
				segID := p.newNode(syntax.KindPathSegment, segStart, last, segChildren, 0)
				children = append(children, syntax.ChildRef{Index: uint32(segID)})
			}
			if p.at(lexer.TokenDot) {
				children = append(children, p.advance())
				continue
			}
			return
		}
	}

	consumeSegments()
	if p.at(lexer.TokenCaret) {
		children = append(children, p.advance())
		consumeSegments()
	}

	if len(children) == 0 {
		return syntax.NoNode
	}
	last := uint32(p.pos - 1)
	return p.newNode(syntax.KindPath, start, last, children, 0)
}

// parseParamList parses a parameterized RuleSet's "'(' name (',' name)* ')'"
// declaration, e.g. "RuleSet: VitalSignRuleSet(system, code)".
func (p *parser) parseParamList() syntax.ChildRef {
	start := uint32(p.pos)
	var children []syntax.ChildRef
	children = append(children, p.advance()) // '('
	for !p.at(lexer.TokenRParen) && !p.atEOF() {
		children = append(children, p.expect(lexer.TokenIdentifier))
		if p.at(lexer.TokenComma) {
			children = append(children, p.advance())
			continue
		}
		break
	}
	children = append(children, p.expect(lexer.TokenRParen))
	last := uint32(p.pos - 1)
	id := p.newNode(syntax.KindParamList, start, last, children, 0)
	return syntax.ChildRef{Index: uint32(id)}
}

func (p *parser) parseCardinality() syntax.NodeID {
	start := uint32(p.pos)
	var children []syntax.ChildRef
	children = append(children, p.expect(lexer.TokenInteger)) // min
	children = append(children, p.expect(lexer.TokenDotDot))
	if p.at(lexer.TokenStar) || p.at(lexer.TokenInteger) {
		children = append(children, p.advance()) // max
	} else {
		p.addDiagnostic(syntax.Diagnostic{
			Code:     syntax.DiagnosticInvalidCardinality,
			Message:  "expected integer or '*' for cardinality max",
			Severity: syntax.SeverityError,
			Span:     p.cur().Span,
			Source:   "parser",
		})
	}
	last := uint32(p.pos - 1)
	return p.newNode(syntax.KindCardinality, start, last, children, 0)
}

func (p *parser) parseFlagList() syntax.NodeID {
	start := uint32(p.pos)
	var children []syntax.ChildRef
	for flagTokens[p.curKind()] {
		children = append(children, p.advance())
	}
	last := uint32(p.pos - 1)
	return p.newNode(syntax.KindFlagList, start, last, children, 0)
}

func appendPath(children []syntax.ChildRef, pathChild *syntax.ChildRef) []syntax.ChildRef {
	if pathChild != nil {
		return append(children, *pathChild)
	}
	return children
}

func (p *parser) parseCardRule(start uint32, star syntax.ChildRef, pathChild *syntax.ChildRef) syntax.NodeID {
	children := appendPath([]syntax.ChildRef{star}, pathChild)
	cardID := p.parseCardinality()
	children = append(children, syntax.ChildRef{Index: uint32(cardID)})
	if flagTokens[p.curKind()] {
		flagsID := p.parseFlagList()
		children = append(children, syntax.ChildRef{Index: uint32(flagsID)})
	}
	last := uint32(p.pos - 1)
	return p.newNode(syntax.KindCardRule, start, last, children, 0)
}

func (p *parser) parseFlagRule(start uint32, star syntax.ChildRef, pathChild *syntax.ChildRef) syntax.NodeID {
	children := appendPath([]syntax.ChildRef{star}, pathChild)
	flagsID := p.parseFlagList()
	children = append(children, syntax.ChildRef{Index: uint32(flagsID)})
	last := uint32(p.pos - 1)
	return p.newNode(syntax.KindFlagRule, start, last, children, 0)
}

func (p *parser) parseValueSetRule(start uint32, star syntax.ChildRef, pathChild *syntax.ChildRef) syntax.NodeID {
	children := appendPath([]syntax.ChildRef{star}, pathChild)
	children = append(children, p.advance()) // 'from'
	children = append(children, p.expect(lexer.TokenIdentifier))
	if p.at(lexer.TokenLParen) {
		children = append(children, p.advance())
		children = append(children, p.advance()) // strength
		children = append(children, p.expect(lexer.TokenRParen))
	}
	last := uint32(p.pos - 1)
	return p.newNode(syntax.KindValueSetRule, start, last, children, 0)
}

func (p *parser) parseFixedValueRule(start uint32, star syntax.ChildRef, pathChild *syntax.ChildRef) syntax.NodeID {
	children := appendPath([]syntax.ChildRef{star}, pathChild)
	children = append(children, p.advance()) // '='
	children = append(children, p.parseValueTokens()...)
	last := uint32(p.pos - 1)
	return p.newNode(syntax.KindFixedValueRule, start, last, children, 0)
}

func (p *parser) parseCaretValueRule(start uint32, star syntax.ChildRef, pathChild *syntax.ChildRef) syntax.NodeID {
	children := appendPath([]syntax.ChildRef{star}, pathChild)
	children = append(children, p.advance()) // '='
	children = append(children, p.parseValueTokens()...)
	last := uint32(p.pos - 1)
	return p.newNode(syntax.KindCaretValueRule, start, last, children, 0)
}

// parseValueTokens consumes every token making up a rule's fixed value,
// up to end of line: a literal (possibly followed by a unit literal for
// quantities, e.g. "5.4 'mg'", or a display string for codes, e.g.
// "$sct#1234-5 \"Very severe\""), or — inside a RuleSet template — a raw
// run of tokens that may contain unsubstituted "{param}" placeholders, left
// untouched here and substituted textually during ruleset expansion.
func (p *parser) parseValueTokens() []syntax.ChildRef {
	var children []syntax.ChildRef
	children = append(children, p.advance())
	for !p.atEOF() && !p.startsLine(p.cur()) {
		children = append(children, p.advance())
	}
	return children
}

func (p *parser) parseContainsRule(start uint32, star syntax.ChildRef, pathChild *syntax.ChildRef) syntax.NodeID {
	children := appendPath([]syntax.ChildRef{star}, pathChild)
	children = append(children, p.advance()) // 'contains'
	children = append(children, p.parseContainsItem())
	for p.at(lexer.TokenKwAnd) {
		children = append(children, p.advance())
		children = append(children, p.parseContainsItem())
	}
	last := uint32(p.pos - 1)
	return p.newNode(syntax.KindContainsRule, start, last, children, 0)
}

// parseContainsItem parses "name ('and' name)?" forms used inside a
// ContainsRule item: "itemName [card] [flag*] named alias" or a bare
// referenced type name followed by cardinality/flags.
func (p *parser) parseContainsItem() syntax.ChildRef {
	start := uint32(p.pos)
	var children []syntax.ChildRef
	if p.at(lexer.TokenIdentifier) {
		children = append(children, p.advance())
	}
	if p.at(lexer.TokenKwNamed) {
		children = append(children, p.advance())
		children = append(children, p.expect(lexer.TokenIdentifier))
	}
	if p.at(lexer.TokenInteger) && p.tok(uint32(p.pos+1)).Kind == lexer.TokenDotDot {
		children = append(children, p.advance()) // min
		children = append(children, p.advance()) // '..'
		if p.at(lexer.TokenStar) || p.at(lexer.TokenInteger) {
			children = append(children, p.advance()) // max
		}
	}
	for flagTokens[p.curKind()] {
		children = append(children, p.advance())
	}
	last := uint32(p.pos - 1)
	id := p.newNode(syntax.KindContainsItem, start, last, children, 0)
	return syntax.ChildRef{Index: uint32(id)}
}

func (p *parser) parseOnlyRule(start uint32, star syntax.ChildRef, pathChild *syntax.ChildRef) syntax.NodeID {
	children := appendPath([]syntax.ChildRef{star}, pathChild)
	children = append(children, p.advance()) // 'only'
	children = append(children, p.parseOnlyType())
	for p.at(lexer.TokenKwOr) {
		children = append(children, p.advance())
		children = append(children, p.parseOnlyType())
	}
	last := uint32(p.pos - 1)
	return p.newNode(syntax.KindOnlyRule, start, last, children, 0)
}

// parseOnlyType parses a single type reference, which may be a bare
// identifier or a "Reference(A|B|C)"/"Canonical(A|B)" parameterized form.
func (p *parser) parseOnlyType() syntax.ChildRef {
	start := uint32(p.pos)
	var children []syntax.ChildRef
	children = append(children, p.expect(lexer.TokenIdentifier))
	if p.at(lexer.TokenLParen) {
		children = append(children, p.advance())
		for !p.at(lexer.TokenRParen) && !p.atEOF() {
			children = append(children, p.advance())
		}
		children = append(children, p.expect(lexer.TokenRParen))
	}
	last := uint32(p.pos - 1)
	id := p.newNode(syntax.KindOnlyType, start, last, children, 0)
	return syntax.ChildRef{Index: uint32(id)}
}

func (p *parser) parseObeysRule(start uint32, star syntax.ChildRef, pathChild *syntax.ChildRef) syntax.NodeID {
	children := appendPath([]syntax.ChildRef{star}, pathChild)
	children = append(children, p.advance()) // 'obeys'
	children = append(children, p.expect(lexer.TokenIdentifier))
	for p.at(lexer.TokenKwAnd) {
		children = append(children, p.advance())
		children = append(children, p.expect(lexer.TokenIdentifier))
	}
	last := uint32(p.pos - 1)
	return p.newNode(syntax.KindObeysRule, start, last, children, 0)
}

func (p *parser) parseMappingRule(start uint32, star syntax.ChildRef, pathChild *syntax.ChildRef) syntax.NodeID {
	children := appendPath([]syntax.ChildRef{star}, pathChild)
	children = append(children, p.advance()) // '->'
	children = append(children, p.expect(lexer.TokenString))
	if p.at(lexer.TokenString) {
		children = append(children, p.advance())
	}
	if p.at(lexer.TokenCode) {
		children = append(children, p.advance())
	}
	last := uint32(p.pos - 1)
	return p.newNode(syntax.KindMappingRule, start, last, children, 0)
}

func (p *parser) parseInsertRule(start uint32, star syntax.ChildRef, pathChild *syntax.ChildRef) syntax.NodeID {
	children := appendPath([]syntax.ChildRef{star}, pathChild)
	children = append(children, p.advance()) // 'insert'
	children = append(children, p.expect(lexer.TokenIdentifier))
	if p.at(lexer.TokenLParen) {
		children = append(children, p.parseInsertArgs())
	}
	last := uint32(p.pos - 1)
	return p.newNode(syntax.KindInsertRule, start, last, children, 0)
}

// parseInsertArgs parses "'(' arg (',' arg)* ')'". Each arg is the raw
// token run up to the next top-level comma or the closing paren; arguments
// are substituted textually during ruleset expansion, not re-parsed here.
func (p *parser) parseInsertArgs() syntax.ChildRef {
	start := uint32(p.pos)
	var children []syntax.ChildRef
	children = append(children, p.advance()) // '('
	depth := 0
	for !p.atEOF() {
		switch p.curKind() {
		case lexer.TokenRParen:
			if depth == 0 {
				children = append(children, p.advance())
				last := uint32(p.pos - 1)
				id := p.newNode(syntax.KindInsertArgList, start, last, children, 0)
				return syntax.ChildRef{Index: uint32(id)}
			}
			depth--
		case lexer.TokenLParen, lexer.TokenLBracket:
			depth++
		case lexer.TokenRBracket:
			depth--
		}
		children = append(children, p.advance())
	}
	p.addDiagnostic(syntax.Diagnostic{
		Code:        syntax.DiagnosticUnclosedParameterBracket,
		Message:     "unclosed '(' in insert argument list",
		Severity:    syntax.SeverityError,
		Span:        p.tok(start).Span,
		Source:      "parser",
		Recoverable: true,
	})
	last := uint32(p.pos - 1)
	id := p.newNode(syntax.KindInsertArgList, start, last, children, syntax.NodeFlagRecovered)
	return syntax.ChildRef{Index: uint32(id)}
}

// parseCodePrefixedRule handles the "'*' '#'code+ caret_path '=' value"
// (CodeCaretValueRule) and "'*' '#'code+ 'insert' name (...)"
// (CodeInsertRule) shapes, used to target a coded slice element.
func (p *parser) parseCodePrefixedRule(start uint32, star syntax.ChildRef) syntax.NodeID {
	children := []syntax.ChildRef{star}
	for p.at(lexer.TokenCode) {
		children = append(children, p.advance())
	}
	if p.at(lexer.TokenKwInsert) {
		children = append(children, p.advance())
		children = append(children, p.expect(lexer.TokenIdentifier))
		if p.at(lexer.TokenLParen) {
			children = append(children, p.parseInsertArgs())
		}
		last := uint32(p.pos - 1)
		return p.newNode(syntax.KindCodeInsertRule, start, last, children, 0)
	}

	pathID := p.parsePath()
	if pathID != syntax.NoNode {
		children = append(children, syntax.ChildRef{Index: uint32(pathID)})
	}
	children = append(children, p.expect(lexer.TokenEquals))
	children = append(children, p.parseValueTokens()...)
	last := uint32(p.pos - 1)
	return p.newNode(syntax.KindCodeCaretValueRule, start, last, children, 0)
}
