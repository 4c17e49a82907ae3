package semantic

import (
	"github.com/fshforge/fsh/internal/ast"
	"github.com/fshforge/fsh/internal/lexer"
	"github.com/fshforge/fsh/internal/syntax"
)

// resolveReferences looks up every cross-entity name a definition mentions
// — Parent/InstanceOf metadata, OnlyRule target types, ContainsRule item
// names, ObeysRule invariant keys — first against the local symbol table,
// then (if a resolver was supplied) against the canonical resolver's
// installed-package session. A well-formed canonical URL is accepted
// optimistically without a resolver lookup, per §4.4/S6: packages are not
// always available while editing a single file.
func (m *Model) resolveReferences(doc ast.Document) {
	for _, entity := range doc.Entities() {
		def, ok := entity.AsDefinition()
		if !ok {
			continue
		}
		if mc, ok := def.Metadata(lexer.TokenKwParent); ok {
			m.resolveName(mc.Value(), mc.Node())
		}
		if mc, ok := def.Metadata(lexer.TokenKwInstanceOf); ok {
			m.resolveName(mc.Value(), mc.Node())
		}
		for _, rule := range def.Rules() {
			m.resolveRuleReferences(rule)
		}
	}
}

func (m *Model) resolveRuleReferences(rule ast.Rule) {
	n := rule.Node()
	switch rule.Kind() {
	case syntax.KindOnlyRule:
		for _, c := range n.Children {
			if c.IsToken {
				continue
			}
			tn := m.Tree.NodeByID(syntax.NodeID(c.Index))
			if tn.Kind != syntax.KindOnlyType {
				continue
			}
			if name := firstIdentifier(m.Tree, tn); name != "" {
				m.resolveName(name, tn)
			}
		}
	case syntax.KindContainsRule:
		for _, c := range n.Children {
			if c.IsToken {
				continue
			}
			cn := m.Tree.NodeByID(syntax.NodeID(c.Index))
			if cn.Kind != syntax.KindContainsItem {
				continue
			}
			if name := firstIdentifier(m.Tree, cn); name != "" {
				m.resolveName(name, cn)
			}
		}
	case syntax.KindObeysRule:
		for _, c := range n.Children {
			if !c.IsToken {
				continue
			}
			tok := m.Tree.Token(c.Index)
			if tok.Kind != lexer.TokenIdentifier {
				continue
			}
			key := string(tok.Text(m.Tree.Source))
			if _, ok := m.Invariants.Lookup(key); !ok {
				m.addDiagnostic(Diagnostic{
					Rule:     "correctness/unresolved-reference",
					Message:  "obeys references undefined invariant " + key,
					Severity: SeverityError,
					Span:     tok.Span,
				})
			}
		}
	}
}

// resolveName resolves a single cross-entity reference against the symbol
// table, then the canonical resolver. A well-formed canonical URL (one
// beginning with a scheme) is accepted without diagnosing even on a
// resolver miss, since at-rest the target package may simply not be
// installed yet.
func (m *Model) resolveName(name string, at *syntax.Node) {
	if name == "" {
		return
	}
	if syms := m.Symbols.Lookup(name); len(syms) > 0 {
		return
	}
	if looksLikeCanonicalURL(name) {
		return
	}
	if m.Resolver != nil {
		if _, ok := m.Resolver.Fish(name); ok {
			return
		}
	}
	if isBuiltinFHIRType(name) {
		return
	}
	m.addDiagnostic(Diagnostic{
		Rule:     "correctness/unresolved-reference",
		Message:  "unresolved reference " + name,
		Severity: SeverityWarning,
		Span:     at.Span,
	})
}

func firstIdentifier(tree *syntax.Tree, n *syntax.Node) string {
	for _, c := range n.Children {
		if !c.IsToken {
			continue
		}
		tok := tree.Token(c.Index)
		if tok.Kind == lexer.TokenIdentifier {
			return string(tok.Text(tree.Source))
		}
	}
	return ""
}

func looksLikeCanonicalURL(s string) bool {
	return len(s) > 0 && (hasScheme(s, "http://") || hasScheme(s, "https://") || hasScheme(s, "urn:"))
}

func hasScheme(s, scheme string) bool {
	return len(s) >= len(scheme) && s[:len(scheme)] == scheme
}

// isBuiltinFHIRType recognizes FHIR base resource/datatype names that are
// never declared locally and never need a package lookup to exist. This is
// a curated subset of the R4 core package; the module embeds no full base
// definition set, so names outside this list are not recognized here.
var builtinFHIRTypes = map[string]bool{
	"Resource": true, "DomainResource": true, "Element": true, "BackboneElement": true,
	"Extension": true, "Reference": true, "CodeableConcept": true, "Coding": true,
	"Identifier": true, "Quantity": true, "Period": true, "Range": true, "Ratio": true,
	"Annotation": true, "Attachment": true, "HumanName": true, "Address": true,
	"ContactPoint": true, "Money": true, "Signature": true, "Timing": true,
	"string": true, "boolean": true, "integer": true, "decimal": true, "uri": true,
	"url": true, "canonical": true, "code": true, "date": true, "dateTime": true,
	"instant": true, "time": true, "base64Binary": true, "markdown": true, "id": true,
	"oid": true, "positiveInt": true, "unsignedInt": true, "uuid": true, "xhtml": true,
	// Commonly profiled base resources.
	"Patient": true, "Practitioner": true, "PractitionerRole": true, "Organization": true,
	"Observation": true, "Condition": true, "Procedure": true, "Encounter": true,
	"MedicationRequest": true, "MedicationStatement": true, "Medication": true,
	"AllergyIntolerance": true, "Immunization": true, "DiagnosticReport": true,
	"DocumentReference": true, "Bundle": true, "CarePlan": true, "CareTeam": true,
	"Location": true, "Device": true, "Specimen": true, "ServiceRequest": true,
	"Coverage": true, "Claim": true, "ExplanationOfBenefit": true, "Goal": true,
	"RelatedPerson": true, "Person": true, "Group": true, "HealthcareService": true,
	"Provenance": true, "Composition": true, "QuestionnaireResponse": true,
	"Questionnaire": true, "Task": true, "List": true, "Basic": true,
}

func isBuiltinFHIRType(name string) bool {
	return builtinFHIRTypes[name]
}
