package export

import (
	"testing"

	"github.com/fshforge/fsh/internal/ast"
	"github.com/fshforge/fsh/internal/parser"
	"github.com/fshforge/fsh/internal/semantic"
	"github.com/fshforge/fsh/internal/syntax"
)

func parseAndRun(t *testing.T, src string) (ast.Document, *semantic.Model) {
	t.Helper()
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
	doc, ok := ast.CastDocument(tree)
	if !ok {
		t.Fatalf("failed to cast document for %q", src)
	}
	m := semantic.Run(tree, nil)
	return doc, m
}

// TestMinimalProfile covers S1: a bare-type-name Parent resolves optimistically
// and a single CardRule+flag produces exactly one differential element.
func TestMinimalProfile(t *testing.T) {
	t.Parallel()
	src := "Profile: MyPatient\nParent: Patient\nId: my-patient\n* name 1..1 MS\n"
	doc, m := parseAndRun(t, src)
	ex := New(m, nil, nil)
	results := ex.ExportAll(doc)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	res := results[0]
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	sd := res.StructureDefinition
	if sd == nil {
		t.Fatalf("expected a StructureDefinition result")
	}
	if sd.Kind != "resource" {
		t.Errorf("expected kind=resource, got %q", sd.Kind)
	}
	if sd.Type != "Patient" {
		t.Errorf("expected type=Patient, got %q", sd.Type)
	}
	if sd.Derivation != "constraint" {
		t.Errorf("expected derivation=constraint, got %q", sd.Derivation)
	}
	if sd.BaseDefinition != "http://hl7.org/fhir/StructureDefinition/Patient" {
		t.Errorf("unexpected baseDefinition %q", sd.BaseDefinition)
	}
	if len(sd.Differential) != 1 {
		t.Fatalf("expected exactly 1 differential element, got %d: %+v", len(sd.Differential), sd.Differential)
	}
	ed := sd.Differential[0]
	if ed.Path != "Patient.name" {
		t.Errorf("expected path Patient.name, got %q", ed.Path)
	}
	if ed.Min != 1 || ed.MaxUnbounded || ed.Max != 1 {
		t.Errorf("expected cardinality 1..1, got min=%d max=%s", ed.Min, ed.MaxString())
	}
	if !ed.MustSupport {
		t.Errorf("expected mustSupport=true")
	}
}

// TestExtensionXORWarns covers S4: constraining both value[x] and extension
// on an Extension produces a warning but still succeeds.
func TestExtensionXORWarns(t *testing.T) {
	t.Parallel()
	src := "Extension: MyExt\nId: my-ext\n* value[x] only string\n* extension contains sub 0..*\n"
	doc, m := parseAndRun(t, src)
	ex := New(m, nil, nil)
	results := ex.ExportAll(doc)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	res := results[0]
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.StructureDefinition == nil {
		t.Fatalf("expected export to succeed with a StructureDefinition")
	}
	found := false
	for _, w := range res.Warnings {
		if w.Rule == "conflicting-extension-shape" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected conflicting-extension-shape warning, got %+v", res.Warnings)
	}
}

// TestCanonicalURLParentNotFound covers S6: a canonical-URL Parent that the
// resolver can't resolve is a hard ParentNotFound, isolated to that
// definition only.
func TestCanonicalURLParentNotFound(t *testing.T) {
	t.Parallel()
	src := "Profile: USCorePatientVariant\n" +
		"Parent: http://hl7.org/fhir/us/core/StructureDefinition/us-core-patient\n" +
		"* name 1..1\n" +
		"\n" +
		"Profile: OtherProfile\nParent: Patient\n* name 1..1\n"
	doc, m := parseAndRun(t, src)
	ex := New(m, nil, nil)
	results := ex.ExportAll(doc)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	first := results[0]
	if first.Err == nil {
		t.Fatalf("expected ParentNotFound error for unresolved canonical URL parent")
	}
	if first.Err.Code() != CodeParentNotFound {
		t.Errorf("expected CodeParentNotFound, got %v", first.Err.Code())
	}
	second := results[1]
	if second.Err != nil {
		t.Fatalf("expected second profile to export cleanly, got %v", second.Err)
	}
	if second.StructureDefinition == nil {
		t.Fatalf("expected second profile to still produce a StructureDefinition")
	}
}

// TestValueSetComposeIncludeCodes covers the ValueSet "include codes from
// system" and bare code-literal compose shapes.
func TestValueSetComposeIncludeCodes(t *testing.T) {
	t.Parallel()
	src := "ValueSet: MyVS\nId: my-vs\nTitle: \"My VS\"\n" +
		"* include codes from system ZZZ\n" +
		"* ZZZ#abc \"Abc display\"\n"
	doc, m := parseAndRun(t, src)
	ex := New(m, nil, nil)
	results := ex.ExportAll(doc)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	res := results[0]
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	vs := res.ValueSet
	if vs == nil {
		t.Fatalf("expected a ValueSet result")
	}
	if vs.Title != "My VS" {
		t.Errorf("expected title, got %q", vs.Title)
	}
	if vs.Compose == nil || len(vs.Compose.Include) == 0 {
		t.Fatalf("expected at least one compose.include component, got %+v", vs.Compose)
	}
}

// TestCodeSystemConceptsAndProperties covers bare concept definitions and
// caret property assignment within a CodeSystem body.
func TestCodeSystemConceptsAndProperties(t *testing.T) {
	t.Parallel()
	src := "CodeSystem: MyCS\nId: my-cs\n" +
		"* #final \"Final\" \"The order is complete.\"\n" +
		"* #final ^property.code = #child\n"
	doc, m := parseAndRun(t, src)
	ex := New(m, nil, nil)
	results := ex.ExportAll(doc)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	res := results[0]
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	cs := res.CodeSystem
	if cs == nil {
		t.Fatalf("expected a CodeSystem result")
	}
	if len(cs.Concept) != 1 {
		t.Fatalf("expected exactly 1 top-level concept, got %d: %+v", len(cs.Concept), cs.Concept)
	}
	c := cs.Concept[0]
	if c.Code != "final" {
		t.Errorf("expected code=final, got %q", c.Code)
	}
	if c.Display != "Final" {
		t.Errorf("expected display=Final, got %q", c.Display)
	}
	if c.Definition != "The order is complete." {
		t.Errorf("expected definition text, got %q", c.Definition)
	}
	if len(c.Property) != 1 {
		t.Fatalf("expected exactly 1 property, got %d: %+v", len(c.Property), c.Property)
	}
}

// TestInstanceFieldsAndSyntheticID covers instance field assignment and
// deterministic synthetic id generation when Id is omitted.
func TestInstanceFieldsAndSyntheticID(t *testing.T) {
	t.Parallel()
	src := "Instance: MyExample\nInstanceOf: Patient\nUsage: #example\n* active = true\n* gender = #male\n"
	doc, m := parseAndRun(t, src)
	ex := New(m, nil, nil)
	results := ex.ExportAll(doc)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	res := results[0]
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	inst := res.Instance
	if inst == nil {
		t.Fatalf("expected an Instance result")
	}
	if inst.ResourceType != "Patient" {
		t.Errorf("expected resourceType=Patient, got %q", inst.ResourceType)
	}
	if inst.ID == "" {
		t.Errorf("expected a synthesized id")
	}
	if active, ok := inst.Fields["active"].(bool); !ok || !active {
		t.Errorf("expected active=true field, got %+v", inst.Fields["active"])
	}
	if _, ok := inst.Fields["gender"]; !ok {
		t.Errorf("expected a gender field, got %+v", inst.Fields)
	}
}

// TestInstanceDeterministicID confirms the same definition name always
// synthesizes the same id across runs.
func TestInstanceDeterministicID(t *testing.T) {
	t.Parallel()
	if synthesizeInstanceID("MyExample") != synthesizeInstanceID("MyExample") {
		t.Errorf("expected synthesizeInstanceID to be deterministic")
	}
	if synthesizeInstanceID("MyExample") == synthesizeInstanceID("OtherExample") {
		t.Errorf("expected distinct names to synthesize distinct ids")
	}
}
