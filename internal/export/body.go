package export

import (
	"strings"

	"github.com/fshforge/fsh/internal/ast"
	"github.com/fshforge/fsh/internal/fhir"
	"github.com/fshforge/fsh/internal/lexer"
	"github.com/fshforge/fsh/internal/semantic"
	"github.com/fshforge/fsh/internal/syntax"
	"github.com/google/uuid"
)

// instanceIDNamespace seeds deterministic synthetic instance ids so the same
// source produces the same id across runs (§4.6 ADDED: instances with no
// explicit Id clause).
var instanceIDNamespace = uuid.MustParse("8f14e45f-ceea-467e-bd3a-5d3f4a1c9b1e")

func synthesizeInstanceID(definitionName string) string {
	return uuid.NewSHA1(instanceIDNamespace, []byte(definitionName)).String()
}

// bodyTokenLines returns the flattened, leading-star-stripped token sequence
// of every non-metadata child under def, in source order. ValueSet compose
// and CodeSystem concept bodies have no dedicated grammar production (the
// parser only recognizes the shared rule family), so their lines surface
// here as whatever node shape the parser happened to recover into
// (ValueSetRule, CodeCaretValueRule, or an error-recovered node) and are
// reinterpreted from their raw tokens rather than their node Kind.
func bodyTokenLines(def ast.Definition) [][]lexer.Token {
	n := def.Node()
	tree := def.Tree
	var out [][]lexer.Token
	for _, c := range n.Children {
		if c.IsToken {
			continue
		}
		cn := tree.NodeByID(syntax.NodeID(c.Index))
		if cn.Kind == syntax.KindMetadataClause {
			continue
		}
		toks := dedupeAdjacentSpans(flattenTokens(tree, cn))
		if len(toks) > 0 && toks[0].Kind == lexer.TokenStar {
			toks = toks[1:]
		}
		out = append(out, toks)
	}
	return out
}

// flattenTokens collects every token under n, in source order, regardless of
// how deeply nested the parser placed them.
func flattenTokens(tree *syntax.Tree, n *syntax.Node) []lexer.Token {
	var out []lexer.Token
	for _, c := range n.Children {
		if c.IsToken {
			out = append(out, tree.Token(c.Index))
			continue
		}
		out = append(out, flattenTokens(tree, tree.NodeByID(syntax.NodeID(c.Index)))...)
	}
	return out
}

// dedupeAdjacentSpans collapses a token that appears twice at the same
// source span, an artifact of the parser's error-recovery placeholder for a
// missing expected token (e.g. a bare concept-definition line with no '='
// leaves the following value token referenced once as the placeholder and
// once as the start of the value-token run).
func dedupeAdjacentSpans(toks []lexer.Token) []lexer.Token {
	out := toks[:0:0]
	for _, t := range toks {
		if len(out) > 0 && out[len(out)-1].Span == t.Span {
			continue
		}
		out = append(out, t)
	}
	return out
}

// identEquals compares a token's raw text case-insensitively, regardless of
// whether the lexer classified it as an identifier or a keyword (e.g. "from"
// lexes as TokenKwFrom, but "codes"/"system"/"include" are plain
// identifiers here — there's no dedicated compose-clause grammar).
func identEquals(t lexer.Token, src []byte, word string) bool {
	return strings.EqualFold(string(t.Text(src)), word)
}

// exportValueSet implements §4.6 for ValueSet definitions: metadata plus a
// best-effort compose from "include/exclude codes from system X" and bare
// code-literal lines.
func (ex *Exporter) exportValueSet(def ast.Definition) *Result {
	name := def.Name()
	res := &Result{Name: name}
	vs := &fhir.ValueSet{
		URL:         ex.canonicalURLFor(def, "ValueSet"),
		Name:        name,
		Title:       metaValue(def, "Title"),
		Description: metaValue(def, "Description"),
		Status:      "draft",
	}

	src := def.Tree.Source
	compose := &fhir.ValueSetCompose{}
	for _, toks := range bodyTokenLines(def) {
		mode, rest := composeMode(toks, src)
		system, vsRefs, codeComp := parseComposeLine(rest, src, ex.Model.Aliases)
		if system == "" && len(vsRefs) == 0 && codeComp == nil {
			continue
		}
		comp := fhir.ConceptSetComponent{System: system, ValueSet: vsRefs}
		if codeComp != nil {
			comp.Concept = append(comp.Concept, *codeComp)
		}
		if mode == "exclude" {
			compose.Exclude = mergeComponent(compose.Exclude, comp)
		} else {
			compose.Include = mergeComponent(compose.Include, comp)
		}
	}
	if len(compose.Include) > 0 || len(compose.Exclude) > 0 {
		vs.Compose = compose
	}

	if vs.URL == "" || vs.Name == "" {
		res.Err = newError(CodeMissingRequiredField, name, "url or name is empty")
		return res
	}
	res.ValueSet = vs
	return res
}

// composeMode reports whether a compose line is an include (default) or
// exclude, stripping the leading include/exclude keyword if present.
func composeMode(toks []lexer.Token, src []byte) (string, []lexer.Token) {
	if len(toks) == 0 {
		return "include", toks
	}
	if identEquals(toks[0], src, "exclude") {
		return "exclude", toks[1:]
	}
	if identEquals(toks[0], src, "include") {
		return "include", toks[1:]
	}
	return "include", toks
}

// parseComposeLine recognizes two compose line shapes: "codes from system
// <ref> [from valueset <ref>]" and a bare "<system#code|#code> [\"display\"]"
// literal.
func parseComposeLine(toks []lexer.Token, src []byte, aliases *semantic.AliasTable) (system string, valueSets []string, concept *fhir.ConceptReference) {
	if len(toks) == 0 {
		return "", nil, nil
	}
	if identEquals(toks[0], src, "codes") {
		i := 1
		for i < len(toks) {
			if identEquals(toks[i], src, "from") && i+1 < len(toks) {
				if identEquals(toks[i+1], src, "system") && i+2 < len(toks) {
					system = resolveRef(toks[i+2], src, aliases)
					i += 3
					continue
				}
				if identEquals(toks[i+1], src, "valueset") && i+2 < len(toks) {
					valueSets = append(valueSets, resolveRef(toks[i+2], src, aliases))
					i += 3
					continue
				}
			}
			i++
		}
		return system, valueSets, nil
	}
	if toks[0].Kind == lexer.TokenCode {
		c := decodeCodeToken(string(toks[0].Text(src)))
		ref := &fhir.ConceptReference{}
		if s, ok := c["code"].(string); ok {
			ref.Code = s
		}
		if len(toks) > 1 && toks[1].Kind == lexer.TokenString {
			ref.Display = unquote(string(toks[1].Text(src)))
		}
		if s, ok := c["system"].(string); ok {
			system = s
		}
		return system, nil, ref
	}
	return "", nil, nil
}

func resolveRef(t lexer.Token, src []byte, aliases *semantic.AliasTable) string {
	text := string(t.Text(src))
	if aliases == nil {
		return text
	}
	if resolved, ok := aliases.Resolve(text); ok {
		return resolved
	}
	return text
}

func mergeComponent(list []fhir.ConceptSetComponent, comp fhir.ConceptSetComponent) []fhir.ConceptSetComponent {
	if len(comp.Concept) > 0 {
		for i := range list {
			if list[i].System == comp.System && len(list[i].ValueSet) == 0 && len(comp.ValueSet) == 0 {
				list[i].Concept = append(list[i].Concept, comp.Concept...)
				return list
			}
		}
	}
	return append(list, comp)
}

// exportCodeSystem implements §4.6 for CodeSystem definitions: metadata plus
// a best-effort concept tree from "#code ["display" ["definition"]]" lines
// and "#code ^property = value" property assignments, chained "#parent
// #child ..." code sequences nesting into Concept.
func (ex *Exporter) exportCodeSystem(def ast.Definition) *Result {
	name := def.Name()
	res := &Result{Name: name}
	cs := &fhir.CodeSystem{
		URL:         ex.canonicalURLFor(def, "CodeSystem"),
		Name:        name,
		Title:       metaValue(def, "Title"),
		Description: metaValue(def, "Description"),
		Status:      "draft",
		Content:     "complete",
	}

	src := def.Tree.Source
	for _, toks := range bodyTokenLines(def) {
		codes, rest := leadingCodeTokens(toks)
		if len(codes) == 0 {
			continue
		}
		concept := findOrCreateConceptPath(&cs.Concept, codes, src)
		applyConceptRest(concept, rest, src)
	}

	if cs.URL == "" || cs.Name == "" {
		res.Err = newError(CodeMissingRequiredField, name, "url or name is empty")
		return res
	}
	res.CodeSystem = cs
	return res
}

func leadingCodeTokens(toks []lexer.Token) ([]lexer.Token, []lexer.Token) {
	i := 0
	for i < len(toks) && toks[i].Kind == lexer.TokenCode {
		i++
	}
	return toks[:i], toks[i:]
}

func findOrCreateConceptPath(list *[]fhir.CodeSystemConcept, codes []lexer.Token, src []byte) *fhir.CodeSystemConcept {
	cur := list
	var found *fhir.CodeSystemConcept
	for _, tok := range codes {
		c := decodeCodeToken(string(tok.Text(src)))
		code, _ := c["code"].(string)
		found = nil
		for i := range *cur {
			if (*cur)[i].Code == code {
				found = &(*cur)[i]
				break
			}
		}
		if found == nil {
			*cur = append(*cur, fhir.CodeSystemConcept{Code: code})
			found = &(*cur)[len(*cur)-1]
		}
		cur = &found.Concept
	}
	return found
}

// applyConceptRest interprets whatever follows a concept's code token(s):
// a bare display/definition string pair, or a "^property = value" caret
// assignment.
func applyConceptRest(concept *fhir.CodeSystemConcept, rest []lexer.Token, src []byte) {
	if concept == nil || len(rest) == 0 {
		return
	}
	if rest[0].Kind == lexer.TokenCaret {
		propName, value := decodeConceptCaret(rest, src)
		if propName != "" {
			concept.Property = append(concept.Property, fhir.ConceptProperty{Code: propName, Value: value})
		}
		return
	}
	if rest[0].Kind == lexer.TokenString {
		concept.Display = unquote(string(rest[0].Text(src)))
		if len(rest) > 1 && rest[1].Kind == lexer.TokenString {
			concept.Definition = unquote(string(rest[1].Text(src)))
		}
	}
}

func decodeConceptCaret(toks []lexer.Token, src []byte) (string, any) {
	var nameParts []string
	i := 1 // skip leading '^'
	for i < len(toks) && toks[i].Kind != lexer.TokenEquals {
		if toks[i].Kind == lexer.TokenIdentifier || toks[i].Kind == lexer.TokenInteger {
			nameParts = append(nameParts, string(toks[i].Text(src)))
		}
		i++
	}
	if i >= len(toks) {
		return "", nil
	}
	valueToks := toks[i+1:]
	if len(valueToks) == 0 {
		return strings.Join(nameParts, "."), nil
	}
	t := valueToks[0]
	switch t.Kind {
	case lexer.TokenString:
		return strings.Join(nameParts, "."), unquote(string(t.Text(src)))
	case lexer.TokenCode:
		return strings.Join(nameParts, "."), decodeCodeToken(string(t.Text(src)))
	case lexer.TokenKwTrue:
		return strings.Join(nameParts, "."), true
	case lexer.TokenKwFalse:
		return strings.Join(nameParts, "."), false
	default:
		return strings.Join(nameParts, "."), string(t.Text(src))
	}
}

// exportInstance implements §4.6's ADDED instance-export note: field
// assignments apply exactly like FixedValueRule on a StructureDefinition,
// keyed by their relative dotted path rather than resolved against a
// snapshot, since an instance has no element tree to diff.
func (ex *Exporter) exportInstance(def ast.Definition) *Result {
	name := def.Name()
	res := &Result{Name: name}
	instanceOf := metaValue(def, "InstanceOf")
	if instanceOf == "" {
		res.Err = newError(CodeMissingRequiredField, name, "InstanceOf is empty")
		return res
	}

	inst := &fhir.Instance{
		ResourceType: instanceOf,
		ID:           metaValue(def, "Id"),
		Fields:       make(map[string]any),
	}
	if inst.ID == "" {
		inst.ID = synthesizeInstanceID(name)
	}
	if sd, ok := ex.lookupStructureDefinition(instanceOf); ok && sd.Derivation == "constraint" {
		inst.ResourceType = sd.Type
		inst.Profile = []string{sd.URL}
	}

	for _, rule := range def.Rules() {
		if rule.Kind() != syntax.KindFixedValueRule {
			continue
		}
		toks := valueTokensAfterEquals(ex.Model.Tree, rule.Node())
		value, _ := decodeAssignmentValue(ex.Model, toks)
		inst.Fields[rule.Path()] = value
	}

	res.Instance = inst
	return res
}

// canonicalURLFor builds a canonical url for a non-StructureDefinition
// exportable under the given resource-type segment (e.g. "ValueSet").
func (ex *Exporter) canonicalURLFor(def ast.Definition, segment string) string {
	id := metaValue(def, "Id")
	if id == "" {
		id = def.Name()
	}
	if ex.Config.Canonical == "" {
		return id
	}
	base := ex.Config.Canonical
	if len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + "/" + segment + "/" + id
}
