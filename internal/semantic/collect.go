package semantic

import (
	"fmt"
	"strings"

	"github.com/fshforge/fsh/internal/ast"
	"github.com/fshforge/fsh/internal/lexer"
	"github.com/fshforge/fsh/internal/syntax"
)

// collect walks the CST once, registering one symbol per top-level
// definition and populating the alias table (§4.5 phase 1). Duplicate-name
// diagnostics are deferred to a second pass over the now-complete symbol
// table, since a correct count and a diagnostic at every occurrence's own
// span (not just the second-and-later ones) can only be known once every
// definition has been seen.
func (m *Model) collect(doc ast.Document) {
	for _, entity := range doc.Entities() {
		if alias, ok := entity.AsAlias(); ok {
			m.Aliases.Define(alias.Name(), alias.Value())
			continue
		}
		def, ok := entity.AsDefinition()
		if !ok {
			continue
		}
		name := def.Name()
		if name == "" {
			continue
		}
		m.Symbols.Add(&Symbol{Name: name, Kind: def.Kind(), Entity: entity})
		switch def.Kind() {
		case syntax.KindRuleSet:
			m.RuleSets[name] = def
		case syntax.KindInvariant:
			m.registerInvariant(name, def)
		}
	}
	m.diagnoseDuplicateDefinitions()
}

// diagnoseDuplicateDefinitions emits one correctness/duplicate-definition
// diagnostic per occurrence of every name declared more than once, each
// anchored at that occurrence's own source range (spec.md S5: "two
// diagnostics (both source ranges)").
func (m *Model) diagnoseDuplicateDefinitions() {
	seen := map[string]bool{}
	for _, sym := range m.Symbols.All() {
		if seen[sym.Name] {
			continue
		}
		seen[sym.Name] = true
		group := m.Symbols.Lookup(sym.Name)
		if len(group) < 2 {
			continue
		}
		for _, dup := range group {
			m.addDiagnostic(Diagnostic{
				Rule:     "correctness/duplicate-definition",
				Message:  fmt.Sprintf("duplicate definition of %q (%d occurrences)", sym.Name, len(group)),
				Severity: SeverityError,
				Span:     dup.Entity.Node().Span,
			})
		}
	}
}

func (m *Model) registerInvariant(name string, def ast.Definition) {
	inv := &Invariant{Key: name}
	if mc, ok := def.Metadata(lexer.TokenKwExpression); ok {
		inv.Expression = unquoteFSHString(mc.Value())
	}
	if mc, ok := def.Metadata(lexer.TokenKwDescription); ok {
		inv.Human = unquoteFSHString(mc.Value())
	}
	if mc, ok := def.Metadata(lexer.TokenKwSeverity); ok {
		inv.Severity = unquoteFSHString(mc.Value())
	}
	if mc, ok := def.Metadata(lexer.TokenKwXPath); ok {
		inv.XPath = unquoteFSHString(mc.Value())
	}
	if err := m.Invariants.Register(inv); err != nil {
		m.addDiagnostic(Diagnostic{
			Rule:     "correctness/invalid-invariant",
			Message:  err.Error(),
			Severity: SeverityError,
			Span:     def.Node().Span,
		})
	}
}

// unquoteFSHString strips a metadata clause value's surrounding quotes and
// resolves the handful of backslash escapes FSH string literals support,
// leaving unquoted values (e.g. a bare "error"/"warning" severity keyword)
// untouched.
func unquoteFSHString(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	inner := s[1 : len(s)-1]
	var out strings.Builder
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
			switch inner[i] {
			case 'n':
				out.WriteByte('\n')
			case 't':
				out.WriteByte('\t')
			default:
				out.WriteByte(inner[i])
			}
			continue
		}
		out.WriteByte(inner[i])
	}
	return out.String()
}
