package semantic

import (
	"strconv"

	"github.com/fshforge/fsh/internal/ast"
	"github.com/fshforge/fsh/internal/lexer"
	"github.com/fshforge/fsh/internal/syntax"
)

// validate checks the structural invariants that only make sense once every
// other phase has run: duplicate resource ids, missing required metadata,
// malformed cardinality, and contains-rule slicing registration (§4.5
// phase 5).
func (m *Model) validate(doc ast.Document) {
	seenIDs := make(map[string]*syntax.Node)
	for _, entity := range doc.Entities() {
		def, ok := entity.AsDefinition()
		if !ok || !definitionRuleKinds[def.Kind()] {
			continue
		}

		if mc, ok := def.Metadata(lexer.TokenKwId); ok {
			id := mc.Value()
			if id != "" {
				if _, dup := seenIDs[id]; dup {
					m.addDiagnostic(Diagnostic{
						Rule:     "correctness/duplicate-id",
						Message:  "duplicate resource id \"" + id + "\"",
						Severity: SeverityError,
						Span:     mc.Node().Span,
					})
				} else {
					seenIDs[id] = mc.Node()
				}
			}
		}

		switch def.Kind() {
		case syntax.KindProfile:
			if mc, ok := def.Metadata(lexer.TokenKwParent); !ok {
				m.addDiagnostic(Diagnostic{
					Rule:     "correctness/missing-parent",
					Message:  "Profile \"" + def.Name() + "\" has no Parent",
					Severity: SeverityError,
					Span:     def.Node().Span,
				})
			} else {
				m.validateParentValid(mc)
			}
		case syntax.KindExtension:
			if _, ok := def.Metadata(lexer.TokenKwContext); !ok {
				m.addDiagnostic(Diagnostic{
					Rule:     "style/missing-context",
					Message:  "Extension \"" + def.Name() + "\" has no Context",
					Severity: SeverityWarning,
					Span:     def.Node().Span,
				})
			}
			if mc, ok := def.Metadata(lexer.TokenKwParent); ok {
				m.validateParentValid(mc)
			}
		case syntax.KindLogical, syntax.KindResource:
			if mc, ok := def.Metadata(lexer.TokenKwParent); ok {
				m.validateParentValid(mc)
			}
		case syntax.KindInstance:
			if _, ok := def.Metadata(lexer.TokenKwInstanceOf); !ok {
				m.addDiagnostic(Diagnostic{
					Rule:     "correctness/missing-instance-of",
					Message:  "Instance \"" + def.Name() + "\" has no InstanceOf",
					Severity: SeverityError,
					Span:     def.Node().Span,
				})
			}
		}

		for _, rule := range def.Rules() {
			m.validateRule(def, rule)
		}
	}
}

func (m *Model) validateRule(def ast.Definition, rule ast.Rule) {
	n := rule.Node()
	switch rule.Kind() {
	case syntax.KindCardRule:
		m.validateCardinality(n)
	case syntax.KindContainsRule:
		m.registerContainsSlices(def, rule)
	}
}

// validateCardinality diagnoses "min > max" where both bounds are literal
// integers; a '*' max is always valid.
func (m *Model) validateCardinality(ruleNode *syntax.Node) {
	for _, c := range ruleNode.Children {
		if c.IsToken {
			continue
		}
		cn := m.Tree.NodeByID(syntax.NodeID(c.Index))
		if cn.Kind != syntax.KindCardinality {
			continue
		}
		minTok, maxTok, ok := cardinalityBounds(m.Tree, cn)
		if !ok {
			return
		}
		if maxTok.Kind == lexer.TokenStar {
			return
		}
		min, errMin := strconv.Atoi(string(minTok.Text(m.Tree.Source)))
		max, errMax := strconv.Atoi(string(maxTok.Text(m.Tree.Source)))
		if errMin == nil && errMax == nil && min > max {
			m.addDiagnostic(Diagnostic{
				Rule:     "correctness/invalid-cardinality",
				Message:  "cardinality min " + strconv.Itoa(min) + " exceeds max " + strconv.Itoa(max),
				Severity: SeverityError,
				Span:     cn.Span,
			})
		}
		return
	}
}

func cardinalityBounds(tree *syntax.Tree, cn *syntax.Node) (min, max lexer.Token, ok bool) {
	var toks []lexer.Token
	for _, c := range cn.Children {
		if c.IsToken {
			toks = append(toks, tree.Token(c.Index))
		}
	}
	if len(toks) < 3 {
		return lexer.Token{}, lexer.Token{}, false
	}
	return toks[0], toks[2], true
}

// validateParentValid implements correctness/profile-parent-valid: Parent
// must name a FHIR base resource/datatype, a symbol defined in this
// document, or a well-formed canonical URL. A canonical URL outside the
// core hl7.org/fhir space is accepted but downgraded to a warning, since an
// external IG's profile can't be checked without that IG installed.
func (m *Model) validateParentValid(mc ast.MetadataClause) {
	name := mc.Value()
	if name == "" {
		return
	}
	if isBuiltinFHIRType(name) {
		return
	}
	if syms := m.Symbols.Lookup(name); len(syms) > 0 {
		return
	}
	if m.Resolver != nil {
		if _, ok := m.Resolver.Fish(name); ok {
			return
		}
	}
	if looksLikeCanonicalURL(name) {
		if isCoreFHIRCanonicalURL(name) {
			return
		}
		m.addDiagnostic(Diagnostic{
			Rule:     "correctness/profile-parent-valid",
			Message:  "Parent \"" + name + "\" is an external canonical URL and cannot be validated without that package installed",
			Severity: SeverityWarning,
			Span:     mc.Node().Span,
		})
		return
	}
	m.addDiagnostic(Diagnostic{
		Rule:     "correctness/profile-parent-valid",
		Message:  "Parent \"" + name + "\" does not refer to a known FHIR base type, a local definition, or a valid canonical URL",
		Severity: SeverityError,
		Span:     mc.Node().Span,
	})
}

func isCoreFHIRCanonicalURL(url string) bool {
	const corePrefix = "http://hl7.org/fhir/StructureDefinition/"
	return hasScheme(url, corePrefix)
}

// registerContainsSlices feeds every ContainsRule item name into the
// slicing engine, inferring a discriminator for the rule's element path
// unless one was already configured by an explicit "^slicing" caret rule.
func (m *Model) registerContainsSlices(def ast.Definition, rule ast.Rule) {
	path := rule.Path()
	if path == "" {
		return
	}
	n := rule.Node()
	var names []string
	for _, c := range n.Children {
		if c.IsToken {
			continue
		}
		cn := m.Tree.NodeByID(syntax.NodeID(c.Index))
		if cn.Kind != syntax.KindContainsItem {
			continue
		}
		if name := firstIdentifier(m.Tree, cn); name != "" {
			names = append(names, name)
		}
	}
	if len(names) > 0 {
		m.Slicing.Contains(path, names)
	}
}
