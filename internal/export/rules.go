package export

import (
	"strconv"
	"strings"

	"github.com/fshforge/fsh/internal/ast"
	"github.com/fshforge/fsh/internal/fhir"
	"github.com/fshforge/fsh/internal/lexer"
	"github.com/fshforge/fsh/internal/semantic"
	"github.com/fshforge/fsh/internal/syntax"
)

// qualifyPath joins a rule's relative element path onto the definition's
// base type name, e.g. baseType="Patient", rulePath="name" -> "Patient.name".
// A caret-only rule (no leading path) targets the root element itself.
func qualifyPath(baseType, rulePath string) string {
	if rulePath == "" {
		return baseType
	}
	return baseType + "." + rulePath
}

// applyRule dispatches one rule onto the working snapshot (§4.6 step 2-3).
func (ex *Exporter) applyRule(b *sdBuilder, rule ast.Rule) {
	switch rule.Kind() {
	case syntax.KindCardRule:
		ex.applyCardRule(b, rule)
	case syntax.KindFlagRule:
		ex.applyFlagRule(b, rule)
	case syntax.KindValueSetRule:
		ex.applyValueSetRule(b, rule)
	case syntax.KindFixedValueRule:
		ex.applyAssignmentRule(b, rule)
	case syntax.KindCaretValueRule:
		ex.applyCaretValueRule(b, rule)
	case syntax.KindContainsRule:
		ex.applyContainsRule(b, rule)
	case syntax.KindOnlyRule:
		ex.applyOnlyRule(b, rule)
	case syntax.KindObeysRule:
		ex.applyObeysRule(b, rule)
	case syntax.KindMappingRule:
		ex.applyMappingRule(b, rule)
	case syntax.KindInsertRule, syntax.KindCodeInsertRule:
		lines := ex.Model.ExpandedInserts[rule.Node().ID]
		for _, r := range applyExpandedInsertRules(lines) {
			ex.applyRule(b, r)
		}
	}
}

func (ex *Exporter) applyCardRule(b *sdBuilder, rule ast.Rule) {
	n := rule.Node()
	for _, c := range n.Children {
		if c.IsToken {
			continue
		}
		cn := ex.Model.Tree.NodeByID(syntax.NodeID(c.Index))
		if cn.Kind != syntax.KindCardinality {
			continue
		}
		toks := directTokens(ex.Model.Tree, cn)
		if len(toks) < 3 {
			return
		}
		e := b.find(qualifyPath(b.baseType, rule.Path()), "")
		min, err := strconv.Atoi(string(toks[0].Text(ex.Model.Tree.Source)))
		if err == nil {
			e.Min = min
		}
		if toks[2].Kind == lexer.TokenStar {
			e.MaxUnbounded = true
		} else if max, err := strconv.Atoi(string(toks[2].Text(ex.Model.Tree.Source))); err == nil {
			e.MaxUnbounded = false
			e.Max = max
		}
		applyFlagTokensTo(e, flagListTokens(ex.Model.Tree, n))
		return
	}
}

func (ex *Exporter) applyFlagRule(b *sdBuilder, rule ast.Rule) {
	e := b.find(qualifyPath(b.baseType, rule.Path()), "")
	applyFlagTokensTo(e, flagListTokens(ex.Model.Tree, rule.Node()))
}

func flagListTokens(tree *syntax.Tree, n *syntax.Node) []lexer.Token {
	for _, c := range n.Children {
		if c.IsToken {
			continue
		}
		cn := tree.NodeByID(syntax.NodeID(c.Index))
		if cn.Kind == syntax.KindFlagList {
			return directTokens(tree, cn)
		}
	}
	return nil
}

func applyFlagTokensTo(e *fhir.ElementDefinition, toks []lexer.Token) {
	for _, t := range toks {
		switch t.Kind {
		case lexer.TokenFlagMS:
			e.MustSupport = true
		case lexer.TokenFlagSU:
			e.IsSummary = true
		case lexer.TokenModifier:
			e.IsModifier = true
		}
		// TU/Normative/Draft have no ElementDefinition-shaped field in this
		// simplified model; they carry no wire representation here.
	}
}

func (ex *Exporter) applyValueSetRule(b *sdBuilder, rule ast.Rule) {
	e := b.find(qualifyPath(b.baseType, rule.Path()), "")
	n := rule.Node()
	toks := directTokens(ex.Model.Tree, n)
	var valueSet, strength string
	sawFrom := false
	for i, t := range toks {
		if t.Kind == lexer.TokenKwFrom {
			sawFrom = true
			continue
		}
		if !sawFrom {
			continue
		}
		if valueSet == "" {
			valueSet = string(t.Text(ex.Model.Tree.Source))
			if resolved, ok := ex.Model.Aliases.Resolve(valueSet); ok {
				valueSet = resolved
			}
			continue
		}
		if strengthFromToken(t.Kind) != "" {
			strength = strengthFromToken(t.Kind)
		}
		_ = i
	}
	if strength == "" {
		strength = "required"
	}
	e.Binding = &fhir.Binding{Strength: strength, ValueSet: valueSet}
}

func strengthFromToken(k lexer.TokenKind) string {
	switch k {
	case lexer.TokenStrengthExample:
		return "example"
	case lexer.TokenStrengthPreferred:
		return "preferred"
	case lexer.TokenStrengthExtensible:
		return "extensible"
	case lexer.TokenStrengthRequired:
		return "required"
	default:
		return ""
	}
}

// applyAssignmentRule implements §4.6's fixed-vs-pattern rule: a single
// primitive literal token produces fixed[x]; anything else (multiple
// tokens, a code+display pair) is treated as a partial-match pattern[x].
func (ex *Exporter) applyAssignmentRule(b *sdBuilder, rule ast.Rule) {
	e := b.find(qualifyPath(b.baseType, rule.Path()), "")
	toks := valueTokensAfterEquals(ex.Model.Tree, rule.Node())
	value, isPattern := decodeAssignmentValue(ex.Model, toks)
	if isPattern {
		e.Pattern = value
	} else {
		e.Fixed = value
	}
}

// valueTokensAfterEquals returns every token following the rule's '='
// (skipping the leading '*', path, and '=' itself).
func valueTokensAfterEquals(tree *syntax.Tree, n *syntax.Node) []lexer.Token {
	var out []lexer.Token
	sawEquals := false
	for _, c := range n.Children {
		if !c.IsToken {
			continue
		}
		t := tree.Token(c.Index)
		if sawEquals {
			out = append(out, t)
			continue
		}
		if t.Kind == lexer.TokenEquals {
			sawEquals = true
		}
	}
	return out
}

func decodeAssignmentValue(m *semantic.Model, toks []lexer.Token) (value any, isPattern bool) {
	if len(toks) == 0 {
		return nil, false
	}
	if len(toks) == 1 {
		t := toks[0]
		text := string(t.Text(m.Tree.Source))
		switch t.Kind {
		case lexer.TokenString:
			return unquote(text), false
		case lexer.TokenKwTrue:
			return true, false
		case lexer.TokenKwFalse:
			return false, false
		case lexer.TokenInteger:
			if i, err := strconv.Atoi(text); err == nil {
				return i, false
			}
		case lexer.TokenDecimal:
			return text, false
		case lexer.TokenCode:
			return decodeCodeToken(text), false
		case lexer.TokenDate, lexer.TokenDateTime, lexer.TokenTime:
			return text, false
		}
		return text, false
	}
	// Multiple tokens (e.g. a code followed by a display string, or a
	// quantity followed by a unit) assign a partial-match complex value.
	first := toks[0]
	out := map[string]any{}
	if first.Kind == lexer.TokenCode {
		for k, v := range decodeCodeToken(string(first.Text(m.Tree.Source))) {
			out[k] = v
		}
		out["_fhirType"] = "CodeableConcept"
	}
	if len(toks) > 1 && toks[1].Kind == lexer.TokenString {
		out["text"] = unquote(string(toks[1].Text(m.Tree.Source)))
	}
	return out, true
}

// decodeCodeToken splits a "system#code" or "#code" token into its FHIR
// Coding shape.
func decodeCodeToken(text string) map[string]any {
	out := map[string]any{}
	idx := strings.IndexByte(text, '#')
	if idx < 0 {
		out["code"] = text
		return out
	}
	if system := text[:idx]; system != "" {
		out["system"] = system
	}
	out["code"] = text[idx+1:]
	return out
}

// applyCaretValueRule handles a small, common subset of "^path = value"
// caret rules: short/definition/comment text, the MS/isModifier/isSummary
// booleans, and binding.strength/binding.valueSet, matched by the caret
// path's trailing segment name.
func (ex *Exporter) applyCaretValueRule(b *sdBuilder, rule ast.Rule) {
	elementPath := caretPathBase(rule.Path())
	e := b.find(qualifyPath(b.baseType, elementPath), "")
	caretPath := caretPathSuffix(rule.Path())
	toks := valueTokensAfterEquals(ex.Model.Tree, rule.Node())
	value, _ := decodeAssignmentValue(ex.Model, toks)
	switch caretPath {
	case "short":
		if s, ok := value.(string); ok {
			e.Short = s
		}
	case "definition":
		if s, ok := value.(string); ok {
			e.Definition = s
		}
	case "comment":
		if s, ok := value.(string); ok {
			e.Comment = s
		}
	case "mustSupport":
		if v, ok := value.(bool); ok {
			e.MustSupport = v
		}
	case "isModifier":
		if v, ok := value.(bool); ok {
			e.IsModifier = v
		}
	case "isSummary":
		if v, ok := value.(bool); ok {
			e.IsSummary = v
		}
	case "binding.strength":
		if s, ok := value.(string); ok {
			if e.Binding == nil {
				e.Binding = &fhir.Binding{}
			}
			e.Binding.Strength = s
		}
	case "binding.valueSet":
		if s, ok := value.(string); ok {
			if e.Binding == nil {
				e.Binding = &fhir.Binding{}
			}
			e.Binding.ValueSet = s
		}
	}
}

// caretPathSuffix returns the portion of a rule path after its last '^',
// e.g. "^short" -> "short", "component[Systolic] ^binding.strength" ->
// "binding.strength".
func caretPathSuffix(path string) string {
	idx := strings.LastIndexByte(path, '^')
	if idx < 0 {
		return strings.TrimSpace(path)
	}
	return strings.TrimSpace(path[idx+1:])
}

// caretPathBase returns the element-path portion before the caret, e.g.
// "component[Systolic] ^short" -> "component[Systolic]", "^status" -> "".
// This is the portion that must be qualified against the base type and
// looked up in the working snapshot; the caret suffix itself names a
// metadata field on that element, not a child element path.
func caretPathBase(path string) string {
	idx := strings.IndexByte(path, '^')
	if idx < 0 {
		return strings.TrimSpace(path)
	}
	return strings.TrimSpace(path[:idx])
}

func (ex *Exporter) applyContainsRule(b *sdBuilder, rule ast.Rule) {
	rawPath := rule.Path()
	fullPath := qualifyPath(b.baseType, rawPath)
	parent := b.find(fullPath, "")
	cfg, hasCfg := ex.Model.Slicing.Lookup(rawPath)

	n := rule.Node()
	for _, c := range n.Children {
		if c.IsToken {
			continue
		}
		cn := ex.Model.Tree.NodeByID(syntax.NodeID(c.Index))
		if cn.Kind != syntax.KindContainsItem {
			continue
		}
		name, min, max, maxUnbounded, flags := parseContainsItem(ex.Model.Tree, cn)
		if name == "" {
			continue
		}
		slice := b.find(fullPath, name)
		slice.SliceName = name
		slice.Min = min
		slice.MaxUnbounded = maxUnbounded
		slice.Max = max
		applyFlagTokensTo(slice, flags)
		if strings.HasSuffix(fullPath, ".extension") || fullPath == "Extension.extension" {
			slice.Types = []fhir.TypeRef{{Code: "Extension", Profile: []string{name}}}
		}
	}

	if parent.Slicing == nil {
		rules := "open"
		var discriminators []fhir.Discriminator
		if hasCfg {
			rules = orDefault(cfg.Rules, "open")
			for _, d := range cfg.Discriminators {
				discriminators = append(discriminators, fhir.Discriminator{Type: d.Type, Path: d.Path})
			}
		}
		parent.Slicing = &fhir.Slicing{Rules: rules, Discriminator: discriminators}
	}
}

func parseContainsItem(tree *syntax.Tree, cn *syntax.Node) (name string, min int, max int, maxUnbounded bool, flags []lexer.Token) {
	toks := directTokens(tree, cn)
	maxUnbounded = true
	i := 0
	if i < len(toks) && toks[i].Kind == lexer.TokenIdentifier {
		name = string(toks[i].Text(tree.Source))
		i++
	}
	if i < len(toks) && toks[i].Kind == lexer.TokenKwNamed {
		i++
		if i < len(toks) {
			name = string(toks[i].Text(tree.Source))
			i++
		}
	}
	if i < len(toks) && toks[i].Kind == lexer.TokenInteger {
		if v, err := strconv.Atoi(string(toks[i].Text(tree.Source))); err == nil {
			min = v
		}
		i += 2 // integer, '..'
		if i < len(toks) {
			if toks[i].Kind == lexer.TokenStar {
				maxUnbounded = true
			} else if v, err := strconv.Atoi(string(toks[i].Text(tree.Source))); err == nil {
				maxUnbounded = false
				max = v
			}
			i++
		}
	}
	flags = toks[min(i, len(toks)):]
	return name, min, max, maxUnbounded, flags
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (ex *Exporter) applyOnlyRule(b *sdBuilder, rule ast.Rule) {
	e := b.find(qualifyPath(b.baseType, rule.Path()), "")
	n := rule.Node()
	var types []fhir.TypeRef
	for _, c := range n.Children {
		if c.IsToken {
			continue
		}
		cn := ex.Model.Tree.NodeByID(syntax.NodeID(c.Index))
		if cn.Kind != syntax.KindOnlyType {
			continue
		}
		toks := directTokens(ex.Model.Tree, cn)
		if len(toks) == 0 {
			continue
		}
		code := string(toks[0].Text(ex.Model.Tree.Source))
		var profiles []string
		for _, t := range toks[1:] {
			if t.Kind == lexer.TokenIdentifier {
				profiles = append(profiles, string(t.Text(ex.Model.Tree.Source)))
			}
		}
		switch code {
		case "Reference":
			types = append(types, fhir.TypeRef{Code: "Reference", TargetProfile: profiles})
		case "Canonical":
			types = append(types, fhir.TypeRef{Code: "canonical", TargetProfile: profiles})
		default:
			if len(profiles) > 0 {
				types = append(types, fhir.TypeRef{Code: code, Profile: profiles})
			} else {
				types = append(types, fhir.TypeRef{Code: code})
			}
		}
	}
	e.Types = types
}

func (ex *Exporter) applyObeysRule(b *sdBuilder, rule ast.Rule) {
	e := b.find(qualifyPath(b.baseType, rule.Path()), "")
	for _, t := range directTokens(ex.Model.Tree, rule.Node()) {
		if t.Kind != lexer.TokenIdentifier {
			continue
		}
		key := string(t.Text(ex.Model.Tree.Source))
		inv, ok := ex.Model.Invariants.Lookup(key)
		if !ok {
			continue
		}
		e.Constraints = append(e.Constraints, fhir.Constraint{
			Key:        inv.Key,
			Severity:   orDefault(strings.TrimPrefix(inv.Severity, "#"), "error"),
			Human:      inv.Human,
			Expression: inv.Expression,
			XPath:      inv.XPath,
		})
	}
}

func (ex *Exporter) applyMappingRule(b *sdBuilder, rule ast.Rule) {
	e := b.find(qualifyPath(b.baseType, rule.Path()), "")
	toks := directTokens(ex.Model.Tree, rule.Node())
	var strs []string
	for _, t := range toks {
		if t.Kind == lexer.TokenString {
			strs = append(strs, unquote(string(t.Text(ex.Model.Tree.Source))))
		}
	}
	m := fhir.Mapping{}
	if len(strs) > 0 {
		m.Map = strs[0]
	}
	if len(strs) > 1 {
		m.Comment = strs[1]
	}
	e.Mappings = append(e.Mappings, m)
}

func directTokens(tree *syntax.Tree, n *syntax.Node) []lexer.Token {
	var out []lexer.Token
	for _, c := range n.Children {
		if c.IsToken {
			out = append(out, tree.Token(c.Index))
		}
	}
	return out
}
