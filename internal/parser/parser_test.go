package parser

import (
	"strings"
	"testing"

	"github.com/fshforge/fsh/internal/syntax"
)

func TestParseIsLosslessEvenWithErrors(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"Profile: MyPatient\nParent: Patient\nId: my-patient\n* name 1..1 MS\n",
		"Alias: $sct = http://snomed.info/sct\n",
		"Profile: Foo\n@@@ garbage\n* name 1..1\n",
		"",
	}
	for _, src := range inputs {
		tree := Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
		if got := string(tree.Text()); got != src {
			t.Fatalf("lossless mismatch for %q:\n got=%q", src, got)
		}
	}
}

func TestParseMinimalProfileMatchesS1Shape(t *testing.T) {
	t.Parallel()

	src := "Profile: MyPatient\nParent: Patient\nId: my-patient\n* name 1..1 MS\n"
	tree := Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	if len(tree.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", tree.Diagnostics)
	}

	doc := tree.RootNode()
	if doc == nil || doc.Kind != syntax.KindDocument {
		t.Fatalf("expected Document root, got %+v", doc)
	}
	if len(doc.Children) != 1 {
		t.Fatalf("expected 1 top-level entity, got %d", len(doc.Children))
	}
	profile := tree.NodeByID(syntax.NodeID(doc.Children[0].Index))
	if profile.Kind != syntax.KindProfile {
		t.Fatalf("expected Profile, got %s", syntax.KindName(profile.Kind))
	}

	var metadataCount, ruleCount int
	var cardRule *syntax.Node
	for _, c := range profile.Children {
		if c.IsToken {
			continue
		}
		n := tree.NodeByID(syntax.NodeID(c.Index))
		switch n.Kind {
		case syntax.KindMetadataClause:
			metadataCount++
		case syntax.KindCardRule:
			ruleCount++
			cardRule = n
		}
	}
	if metadataCount != 2 {
		t.Fatalf("expected 2 metadata clauses (Parent, Id), got %d", metadataCount)
	}
	if ruleCount != 1 || cardRule == nil {
		t.Fatalf("expected exactly 1 CardRule, got %d", ruleCount)
	}
}

func TestParseRuleDisambiguation(t *testing.T) {
	t.Parallel()

	tests := map[string]syntax.NodeKind{
		"* name 1..1 MS\n":                             syntax.KindCardRule,
		"* name MS SU\n":                                syntax.KindFlagRule,
		"* gender from GenderVS (required)\n":           syntax.KindValueSetRule,
		"* active = true\n":                              syntax.KindFixedValueRule,
		"* component contains Systolic 1..1 and Diastolic 1..1\n": syntax.KindContainsRule,
		"* value[x] only Quantity or string\n":          syntax.KindOnlyRule,
		"* name obeys my-invariant-1\n":                 syntax.KindObeysRule,
		"* status -> \"Status\"\n":                      syntax.KindMappingRule,
		"* insert MyRuleSet\n":                           syntax.KindInsertRule,
		"* ^status = #active\n":                          syntax.KindCaretValueRule,
	}

	for src, want := range tests {
		full := "Profile: X\nParent: Y\n" + src
		tree := Parse([]byte(full), syntax.ParseOptions{URI: "test.fsh"})
		doc := tree.RootNode()
		profile := tree.NodeByID(syntax.NodeID(doc.Children[0].Index))
		var got syntax.NodeKind
		for _, c := range profile.Children {
			if c.IsToken {
				continue
			}
			n := tree.NodeByID(syntax.NodeID(c.Index))
			if n.Kind != syntax.KindMetadataClause {
				got = n.Kind
			}
		}
		if got != want {
			t.Fatalf("rule %q: kind = %s, want %s (diagnostics: %+v)", src, syntax.KindName(got), syntax.KindName(want), tree.Diagnostics)
		}
	}
}

func TestParseCodePrefixedRules(t *testing.T) {
	t.Parallel()

	src := "CodeSystem: CS\n* #active ^display = \"Active\"\n* #retired insert RS(\"a\")\n"
	tree := Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	if len(tree.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", tree.Diagnostics)
	}
	doc := tree.RootNode()
	cs := tree.NodeByID(syntax.NodeID(doc.Children[0].Index))
	var kinds []syntax.NodeKind
	for _, c := range cs.Children {
		if c.IsToken {
			continue
		}
		n := tree.NodeByID(syntax.NodeID(c.Index))
		kinds = append(kinds, n.Kind)
	}
	want := []syntax.NodeKind{syntax.KindCodeCaretValueRule, syntax.KindCodeInsertRule}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i, k := range kinds {
		if k != want[i] {
			t.Fatalf("kinds[%d] = %s, want %s", i, syntax.KindName(k), syntax.KindName(want[i]))
		}
	}
}

func TestParseRecoversFromGarbageAndResynchronizesAtNextDefinition(t *testing.T) {
	t.Parallel()

	src := "Profile: Foo\n@@@garbage\nExtension: Bar\nContext: Patient\n"
	tree := Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	if len(tree.Diagnostics) == 0 {
		t.Fatalf("expected at least one diagnostic for garbage input")
	}

	// The skipped garbage stays in the tree as an Error node between the
	// two entities (Foo, Bar).
	doc := tree.RootNode()
	if len(doc.Children) != 3 {
		t.Fatalf("expected Foo, an Error node, and Bar despite garbage, got %d children", len(doc.Children))
	}
	if garbage := tree.NodeByID(syntax.NodeID(doc.Children[1].Index)); garbage.Kind != syntax.KindError {
		t.Fatalf("expected the garbage to be wrapped in an Error node, got %s", syntax.KindName(garbage.Kind))
	}
	ext := tree.NodeByID(syntax.NodeID(doc.Children[2].Index))
	if ext.Kind != syntax.KindExtension {
		t.Fatalf("expected second entity to be Extension, got %s", syntax.KindName(ext.Kind))
	}
}

func TestParseDuplicateDefinitionStillProducesTwoEntities(t *testing.T) {
	t.Parallel()

	// S5: two "Profile: Foo" blocks — duplicate-name diagnosis is a
	// semantic-layer concern; the parser must retain both occurrences.
	src := "Profile: Foo\nParent: Patient\nProfile: Foo\nParent: Practitioner\n"
	tree := Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	doc := tree.RootNode()
	if len(doc.Children) != 2 {
		t.Fatalf("expected both Foo definitions retained, got %d entities", len(doc.Children))
	}
}

func TestParseCanonicalURLAsParent(t *testing.T) {
	t.Parallel()

	src := "Profile: USCorePatient\nParent: http://hl7.org/fhir/us/core/StructureDefinition/us-core-patient\n"
	tree := Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	if len(tree.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics: %+v", tree.Diagnostics)
	}
}

func TestParseMaxDiagnosticsCapIsRespected(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString("@@@ ")
	}
	tree := Parse([]byte(b.String()), syntax.ParseOptions{URI: "test.fsh", MaxDiagnostics: 3})
	if len(tree.Diagnostics) > 4 { // cap + 1 "too many" marker
		t.Fatalf("expected diagnostics capped near 3, got %d", len(tree.Diagnostics))
	}
}

func TestParseNoPanicsOnMalformedCorpusSamples(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"*",
		"* 1..",
		"Profile:",
		"* insert X(",
		"* component[Systolic",
		"Alias: $x =",
	}
	for _, src := range inputs {
		_ = Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	}
}
