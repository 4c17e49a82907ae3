package semantic

import (
	"testing"

	"github.com/fshforge/fsh/internal/ast"
	"github.com/fshforge/fsh/internal/fhir"
	"github.com/fshforge/fsh/internal/parser"
	"github.com/fshforge/fsh/internal/resolve"
	"github.com/fshforge/fsh/internal/syntax"
)

// fakeResolver is a minimal resolve.Fishable backed by a name-keyed map, for
// tests that need a resolver without spinning up a real package store.
type fakeResolver struct {
	byName map[string]*resolve.Resource
}

func (f *fakeResolver) Fish(nameOrURL string, types ...resolve.ResourceType) (*resolve.Resource, bool) {
	r, ok := f.byName[nameOrURL]
	return r, ok
}
func (f *fakeResolver) FishByURL(url string) (*resolve.Resource, bool)   { return nil, false }
func (f *fakeResolver) FishByID(id string) (*resolve.Resource, bool)     { return nil, false }
func (f *fakeResolver) FishByName(name string) (*resolve.Resource, bool) { return f.Fish(name) }
func (f *fakeResolver) FishByType(t resolve.ResourceType) []*resolve.Resource { return nil }

func parseDoc(t *testing.T, src string) ast.Document {
	t.Helper()
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	doc, ok := ast.CastDocument(tree)
	if !ok {
		t.Fatalf("failed to cast document for %q", src)
	}
	return doc
}

func diagnosticRules(m *Model) []string {
	out := make([]string, len(m.Diagnostics))
	for i, d := range m.Diagnostics {
		out[i] = d.Rule
	}
	return out
}

func hasRule(rules []string, rule string) bool {
	for _, r := range rules {
		if r == rule {
			return true
		}
	}
	return false
}

func TestCollectRegistersSymbolsAndDiagnosesDuplicates(t *testing.T) {
	t.Parallel()
	src := "Profile: MyPatient\nParent: Patient\n\nProfile: MyPatient\nParent: Patient\n"
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	m := Run(tree, nil)
	if len(m.Symbols.Lookup("MyPatient")) != 2 {
		t.Fatalf("expected 2 registered symbols named MyPatient, got %d", len(m.Symbols.Lookup("MyPatient")))
	}
	if !hasRule(diagnosticRules(m), "correctness/duplicate-definition") {
		t.Fatalf("expected duplicate-definition diagnostic, got %+v", m.Diagnostics)
	}
}

func TestAliasExpansionResolvesOutsideBracketsAndIgnoresBracketContents(t *testing.T) {
	t.Parallel()
	src := "Alias: $sct = http://snomed.info/sct\n" +
		"Profile: MyObs\nParent: Observation\n" +
		"* code from $sct\n" +
		"* component[$undefined] 0..1\n"
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	m := Run(tree, nil)

	found := false
	for _, use := range m.AliasUses {
		if use.Name == "$sct" && use.Value == "http://snomed.info/sct" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected $sct alias use to resolve, got %+v", m.AliasUses)
	}
	// $undefined lives inside a bracket selector (a PathSegment child, not a
	// direct rule token), so it must never be scanned as an alias reference
	// and therefore never diagnosed as undefined.
	if hasRule(diagnosticRules(m), "correctness/undefined-alias") {
		t.Fatalf("bracket-selector identifier should not be treated as an alias reference: %+v", m.Diagnostics)
	}
}

func TestAliasExpansionDiagnosesUndefinedAliasOutsideBrackets(t *testing.T) {
	t.Parallel()
	src := "Profile: MyObs\nParent: Observation\n* code from $missing\n"
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	m := Run(tree, nil)
	if !hasRule(diagnosticRules(m), "correctness/undefined-alias") {
		t.Fatalf("expected undefined-alias diagnostic, got %+v", m.Diagnostics)
	}
}

func TestRuleSetExpansionSubstitutesParametersOutsideBrackets(t *testing.T) {
	t.Parallel()
	src := "RuleSet: VitalSign(system, code)\n" +
		"* code = {system}#{code}\n" +
		"Profile: MyObs\nParent: Observation\n" +
		"* insert VitalSign(http://loinc.org, 1234-5)\n"
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	m := Run(tree, nil)

	var expanded []string
	for _, lines := range m.ExpandedInserts {
		expanded = append(expanded, lines...)
	}
	if len(expanded) != 1 {
		t.Fatalf("expected exactly one expanded rule line, got %+v (diagnostics=%+v)", expanded, m.Diagnostics)
	}
	want := "* code = http://loinc.org#1234-5"
	if expanded[0] != want {
		t.Fatalf("expanded rule = %q, want %q", expanded[0], want)
	}
}

func TestRuleSetExpansionDoesNotSubstituteInsideBrackets(t *testing.T) {
	t.Parallel()
	src := "RuleSet: Sliced(name)\n" +
		"* component[{name}] 0..1\n" +
		"Profile: MyObs\nParent: Observation\n" +
		"* insert Sliced(Systolic)\n"
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	m := Run(tree, nil)

	var expanded []string
	for _, lines := range m.ExpandedInserts {
		expanded = append(expanded, lines...)
	}
	if len(expanded) != 1 {
		t.Fatalf("expected exactly one expanded rule line, got %+v", expanded)
	}
	// "{name}" sits inside the '[' ']' bracket selector, so it must survive
	// substitution unchanged even though "name" is a declared parameter.
	want := "* component[{name}] 0..1"
	if expanded[0] != want {
		t.Fatalf("expanded rule = %q, want %q (bracket contents must not be substituted)", expanded[0], want)
	}
}

func TestRuleSetExpansionDetectsCircularReference(t *testing.T) {
	t.Parallel()
	src := "RuleSet: A\n* insert B\n" +
		"RuleSet: B\n* insert A\n" +
		"Profile: MyObs\nParent: Observation\n* insert A\n"
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	m := Run(tree, nil)
	if !hasRule(diagnosticRules(m), "correctness/circular-reference") {
		t.Fatalf("expected circular-reference diagnostic, got %+v", m.Diagnostics)
	}
}

func TestRuleSetExpansionDiagnosesArityMismatch(t *testing.T) {
	t.Parallel()
	src := "RuleSet: Needs2(a, b)\n* code = {a}#{b}\n" +
		"Profile: MyObs\nParent: Observation\n* insert Needs2(only-one)\n"
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	m := Run(tree, nil)
	if !hasRule(diagnosticRules(m), "correctness/insert-arity-mismatch") {
		t.Fatalf("expected insert-arity-mismatch diagnostic, got %+v", m.Diagnostics)
	}
}

func TestValidateFlagsProfileMissingParent(t *testing.T) {
	t.Parallel()
	src := "Profile: Orphan\nId: orphan\n"
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	m := Run(tree, nil)
	if !hasRule(diagnosticRules(m), "correctness/missing-parent") {
		t.Fatalf("expected missing-parent diagnostic, got %+v", m.Diagnostics)
	}
}

func TestValidateFlagsInvalidCardinality(t *testing.T) {
	t.Parallel()
	src := "Profile: MyPatient\nParent: Patient\n* name 5..1 MS\n"
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	m := Run(tree, nil)
	if !hasRule(diagnosticRules(m), "correctness/invalid-cardinality") {
		t.Fatalf("expected invalid-cardinality diagnostic, got %+v", m.Diagnostics)
	}
}

func TestValidateAcceptsWellFormedCardinalityWithStarMax(t *testing.T) {
	t.Parallel()
	src := "Profile: MyPatient\nParent: Patient\n* name 1..* MS\n"
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	m := Run(tree, nil)
	if hasRule(diagnosticRules(m), "correctness/invalid-cardinality") {
		t.Fatalf("did not expect invalid-cardinality diagnostic, got %+v", m.Diagnostics)
	}
}

func TestValidateFlagsDuplicateResourceID(t *testing.T) {
	t.Parallel()
	src := "Profile: First\nParent: Patient\nId: shared-id\n" +
		"Profile: Second\nParent: Patient\nId: shared-id\n"
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	m := Run(tree, nil)
	if !hasRule(diagnosticRules(m), "correctness/duplicate-id") {
		t.Fatalf("expected duplicate-id diagnostic, got %+v", m.Diagnostics)
	}
}

func TestContainsRuleRegistersInferredExtensionDiscriminator(t *testing.T) {
	t.Parallel()
	src := "Profile: MyPatient\nParent: Patient\n" +
		"* extension contains MyExtension named myExt 0..1\n"
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	m := Run(tree, nil)
	cfg, ok := m.Slicing.Lookup("extension")
	if !ok {
		t.Fatalf("expected a slicing configuration registered at path \"extension\"")
	}
	if len(cfg.Discriminators) != 1 || cfg.Discriminators[0].Type != "value" || cfg.Discriminators[0].Path != "url" {
		t.Fatalf("expected inferred value/url discriminator, got %+v", cfg.Discriminators)
	}
}

func TestInvariantRegistryRejectsInvalidExpression(t *testing.T) {
	t.Parallel()
	r := NewInvariantRegistry()
	err := r.Register(&Invariant{Key: "us-1", Expression: "(((", Severity: "error"})
	if err == nil {
		t.Fatalf("expected an error for an unparsable FHIRPath expression")
	}
}

func TestInvariantRegistryAcceptsValidExpression(t *testing.T) {
	t.Parallel()
	r := NewInvariantRegistry()
	err := r.Register(&Invariant{Key: "us-1", Expression: "name.exists()", Severity: "error"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.Lookup("us-1"); !ok {
		t.Fatalf("expected us-1 to be registered")
	}
}

func TestObeysRuleDiagnosesUndefinedInvariant(t *testing.T) {
	t.Parallel()
	src := "Profile: MyPatient\nParent: Patient\n* obeys us-core-1\n"
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	m := Run(tree, nil)
	if !hasRule(diagnosticRules(m), "correctness/unresolved-reference") {
		t.Fatalf("expected unresolved-reference diagnostic for obeys, got %+v", m.Diagnostics)
	}
}

func TestValidateParentValidAcceptsBaseResource(t *testing.T) {
	t.Parallel()
	src := "Profile: MyPatient\nParent: Patient\n"
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	m := Run(tree, nil)
	if hasRule(diagnosticRules(m), "correctness/profile-parent-valid") {
		t.Fatalf("did not expect profile-parent-valid diagnostic for a base resource, got %+v", m.Diagnostics)
	}
}

func TestValidateParentValidFlagsUnknownParent(t *testing.T) {
	t.Parallel()
	src := "Profile: MyThing\nParent: NotARealResource\n"
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	m := Run(tree, nil)
	if !hasRule(diagnosticRules(m), "correctness/profile-parent-valid") {
		t.Fatalf("expected profile-parent-valid diagnostic, got %+v", m.Diagnostics)
	}
}

func TestValidateParentValidWarnsOnExternalCanonicalURL(t *testing.T) {
	t.Parallel()
	src := "Profile: MyThing\nParent: http://example.org/fhir/StructureDefinition/some-other-ig-profile\n"
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	m := Run(tree, nil)
	found := false
	for _, d := range m.Diagnostics {
		if d.Rule == "correctness/profile-parent-valid" {
			found = true
			if d.Severity != SeverityWarning {
				t.Fatalf("expected warning severity for an external IG canonical URL, got %v", d.Severity)
			}
		}
	}
	if !found {
		t.Fatalf("expected profile-parent-valid diagnostic, got %+v", m.Diagnostics)
	}
}

func TestValidateParentValidAcceptsLocalSymbol(t *testing.T) {
	t.Parallel()
	src := "Profile: Base\nParent: Patient\n\nProfile: Derived\nParent: Base\n"
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	m := Run(tree, nil)
	if hasRule(diagnosticRules(m), "correctness/profile-parent-valid") {
		t.Fatalf("did not expect profile-parent-valid diagnostic for a locally defined parent, got %+v", m.Diagnostics)
	}
}

func TestBindingStrengthWeakeningFlagsWeakerChildBinding(t *testing.T) {
	t.Parallel()
	src := "Profile: VitalSigns\nParent: Observation\n* code from http://loinc.org/vs (extensible)\n"
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})

	resolver := &fakeResolver{byName: map[string]*resolve.Resource{
		"Observation": {
			Name: "Observation",
			Type: resolve.TypeResource,
			StructureDefinition: &fhir.StructureDefinition{
				Name: "Observation",
				Type: "Observation",
				Snapshot: []fhir.ElementDefinition{
					{Path: "Observation.code", Binding: &fhir.Binding{Strength: "required"}},
				},
			},
		},
	}}

	m := Run(tree, resolver)
	if !hasRule(diagnosticRules(m), "correctness/binding-strength-weakening") {
		t.Fatalf("expected binding-strength-weakening diagnostic, got %+v", m.Diagnostics)
	}
}

func TestBindingStrengthWeakeningAllowsNarrowerChildBinding(t *testing.T) {
	t.Parallel()
	src := "Profile: VitalSigns\nParent: Observation\n* code from http://loinc.org/vs (required)\n"
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})

	resolver := &fakeResolver{byName: map[string]*resolve.Resource{
		"Observation": {
			Name: "Observation",
			Type: resolve.TypeResource,
			StructureDefinition: &fhir.StructureDefinition{
				Name: "Observation",
				Type: "Observation",
				Snapshot: []fhir.ElementDefinition{
					{Path: "Observation.code", Binding: &fhir.Binding{Strength: "extensible"}},
				},
			},
		},
	}}

	m := Run(tree, resolver)
	if hasRule(diagnosticRules(m), "correctness/binding-strength-weakening") {
		t.Fatalf("did not expect binding-strength-weakening diagnostic, got %+v", m.Diagnostics)
	}
}
