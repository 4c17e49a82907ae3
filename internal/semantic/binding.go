package semantic

import (
	"strings"

	"github.com/fshforge/fsh/internal/ast"
	"github.com/fshforge/fsh/internal/fhir"
	"github.com/fshforge/fsh/internal/lexer"
	"github.com/fshforge/fsh/internal/resolve"
	"github.com/fshforge/fsh/internal/syntax"
	"github.com/fshforge/fsh/internal/text"
)

var bindingStrengthRank = map[string]int{
	"required":   0,
	"extensible": 1,
	"preferred":  2,
	"example":    3,
}

// validateBindingStrengths implements correctness/binding-strength-weakening:
// a profile or extension may only narrow a parent's binding, never widen it.
// It runs only when the resolver can produce the parent's
// StructureDefinition; without one, there is nothing to compare against.
func (m *Model) validateBindingStrengths(doc ast.Document) {
	if m.Resolver == nil {
		return
	}
	for _, entity := range doc.Entities() {
		def, ok := entity.AsDefinition()
		if !ok {
			continue
		}
		if def.Kind() != syntax.KindProfile && def.Kind() != syntax.KindExtension {
			continue
		}
		mc, ok := def.Metadata(lexer.TokenKwParent)
		if !ok {
			continue
		}
		parentSD := m.lookupStructureDefinition(mc.Value())
		if parentSD == nil {
			continue
		}
		for _, rule := range def.Rules() {
			if rule.Kind() != syntax.KindValueSetRule {
				continue
			}
			m.checkBindingWeakening(parentSD, rule)
		}
	}
}

func (m *Model) lookupStructureDefinition(nameOrURL string) *fhir.StructureDefinition {
	r, ok := m.Resolver.Fish(nameOrURL, resolve.TypeStructureDefinition, resolve.TypeProfile, resolve.TypeExtension, resolve.TypeResource)
	if !ok || r.StructureDefinition == nil {
		return nil
	}
	return r.StructureDefinition
}

func (m *Model) checkBindingWeakening(parentSD *fhir.StructureDefinition, rule ast.Rule) {
	path := rule.Path()
	if path == "" {
		return
	}
	parentEl := findElementBySuffix(parentSD, path)
	if parentEl == nil || parentEl.Binding == nil || parentEl.Binding.Strength == "" {
		return
	}
	parentRank, ok := bindingStrengthRank[parentEl.Binding.Strength]
	if !ok {
		return
	}
	childStrength, span := valueSetRuleStrength(m.Tree, rule)
	childRank, ok := bindingStrengthRank[childStrength]
	if !ok {
		return
	}
	if childRank <= parentRank {
		return
	}
	m.addDiagnostic(Diagnostic{
		Rule: "correctness/binding-strength-weakening",
		Message: "binding on \"" + path + "\" weakens the parent's " + parentEl.Binding.Strength +
			" binding to " + childStrength,
		Severity: SeverityError,
		Span:     span,
	})
}

// findElementBySuffix finds a Snapshot or Differential element whose path,
// with its leading "ResourceType." segment stripped, equals suffix.
func findElementBySuffix(sd *fhir.StructureDefinition, suffix string) *fhir.ElementDefinition {
	if el := findInElements(sd.Snapshot, suffix); el != nil {
		return el
	}
	return findInElements(sd.Differential, suffix)
}

func findInElements(elements []fhir.ElementDefinition, suffix string) *fhir.ElementDefinition {
	for i := range elements {
		if pathSuffix(elements[i].Path) == suffix {
			return &elements[i]
		}
	}
	return nil
}

func pathSuffix(path string) string {
	_, rest, ok := strings.Cut(path, ".")
	if !ok {
		return ""
	}
	return rest
}

// valueSetRuleStrength returns the rule's effective binding strength: the
// explicit "(strength)" suffix if present, otherwise "required" per §4.6's
// default, along with the span an unacceptable weakening should point at.
func valueSetRuleStrength(tree *syntax.Tree, rule ast.Rule) (string, text.Span) {
	n := rule.Node()
	for _, c := range n.Children {
		if !c.IsToken {
			continue
		}
		tok := tree.Token(c.Index)
		switch tok.Kind {
		case lexer.TokenStrengthRequired, lexer.TokenStrengthExtensible,
			lexer.TokenStrengthPreferred, lexer.TokenStrengthExample:
			return strings.ToLower(string(tok.Text(tree.Source))), n.Span
		}
	}
	return "required", n.Span
}
