package semantic

import (
	"strings"

	"github.com/fshforge/fsh/internal/ast"
	"github.com/fshforge/fsh/internal/lexer"
)

// AliasUse records one resolved "$Name" occurrence: its source span and
// the substituted value text.
type AliasUse struct {
	Name  string
	Value string
}

// expandAliases substitutes "$Name" occurrences token-identically outside
// strings and brackets (§4.5 phase 2). Bracket selectors live under a
// rule's nested Path/PathSegment node and are excluded automatically,
// since only a rule's own direct token children are scanned here; string
// literals are never lexed as Identifier tokens, so they are excluded too.
func (m *Model) expandAliases(doc ast.Document) {
	m.AliasUses = make(map[int]AliasUse)
	for _, entity := range doc.Entities() {
		def, ok := entity.AsDefinition()
		if !ok {
			continue
		}
		for _, mc := range def.MetadataClauses() {
			m.scanAliasTokens(mc.Tokens())
		}
		for _, rule := range def.Rules() {
			m.scanAliasTokens(rule.Tokens())
		}
	}
}

func (m *Model) scanAliasTokens(tokens []lexer.Token) {
	for _, tok := range tokens {
		if tok.Kind != lexer.TokenIdentifier {
			continue
		}
		text := string(tok.Text(m.Tree.Source))
		if !strings.HasPrefix(text, "$") {
			continue
		}
		value, ok := m.Aliases.Resolve(text)
		if !ok {
			m.addDiagnostic(Diagnostic{
				Rule:     "correctness/undefined-alias",
				Message:  "undefined alias " + text,
				Severity: SeverityError,
				Span:     tok.Span,
			})
			continue
		}
		m.AliasUses[int(tok.Span.Start)] = AliasUse{Name: text, Value: value}
	}
}

// ResolvedText returns the effective text for a token — its alias
// substitution if it is a resolved "$Name" occurrence, else its raw text.
func (m *Model) ResolvedText(tok lexer.Token) string {
	if use, ok := m.AliasUses[int(tok.Span.Start)]; ok {
		return use.Value
	}
	return string(tok.Text(m.Tree.Source))
}
