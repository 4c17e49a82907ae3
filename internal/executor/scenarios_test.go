package executor

import (
	"context"
	"strings"
	"testing"

	"github.com/fshforge/fsh/internal/ast"
	"github.com/fshforge/fsh/internal/export"
	"github.com/fshforge/fsh/internal/lint"
)

// These tests drive the concrete end-to-end scenarios (S1-S6) through the
// same Executor pipeline a real CLI uses: read -> parse -> semantic ->
// run_rules -> collect, with the forward exporter run as a caller-side step
// over each result's Tree/Model the way cmd/fshc compile does.

func runOne(t *testing.T, ex *Executor, path, src string) *JobResult {
	t.Helper()
	loader := newMapLoader()
	loader.set(path, src)
	// Rebuilding the executor with New(WithSourceLoader(...)) here would drop
	// any engine/resolver the caller configured; instead swap the loader in
	// place for this one-file run.
	ex.loader = loader
	batch := ex.Run(context.Background(), []string{path})
	return batch.Results[0]
}

// S1: minimal profile exports an SD with the documented shape.
func TestScenarioMinimalProfile(t *testing.T) {
	src := "Profile: MyPatient\nParent: Patient\nId: my-patient\n* name 1..1 MS\n"
	r := runOne(t, New(), "s1.fsh", src)
	if r.Err != nil {
		t.Fatalf("unexpected pipeline error: %v", r.Err)
	}

	doc, ok := ast.CastDocument(r.Tree)
	if !ok {
		t.Fatalf("failed to cast document")
	}
	results := export.New(r.Model, nil, nil).ExportAll(doc)
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("unexpected export result: %+v", results)
	}
	sd := results[0].StructureDefinition
	if sd.Kind != "resource" || sd.Type != "Patient" || sd.Derivation != "constraint" {
		t.Errorf("unexpected SD shape: %+v", sd)
	}
	if !strings.HasSuffix(sd.BaseDefinition, "/Patient") {
		t.Errorf("expected baseDefinition ending in /Patient, got %q", sd.BaseDefinition)
	}
	if len(sd.Differential) != 1 {
		t.Fatalf("expected exactly one differential element, got %d", len(sd.Differential))
	}
	ed := sd.Differential[0]
	if ed.Path != "Patient.name" || ed.Min != 1 || ed.MaxString() != "1" || !ed.MustSupport {
		t.Errorf("unexpected differential element: %+v", ed)
	}
}

// S2: a ruleset's bracketed substitution expands textually, not by
// re-parsing, so a parameter name inside a `[...]` slice selector is left
// untouched while the same name used outside brackets is substituted.
func TestScenarioRulesetBracketSkip(t *testing.T) {
	src := "RuleSet: Sliced(name)\n" +
		"* component[{name}] 0..1\n" +
		"Profile: MyObs\nParent: Observation\n" +
		"* insert Sliced(Systolic)\n"
	r := runOne(t, New(), "s2.fsh", src)
	if r.Err != nil {
		t.Fatalf("unexpected pipeline error: %v", r.Err)
	}
	var expanded []string
	for _, lines := range r.Model.ExpandedInserts {
		expanded = append(expanded, lines...)
	}
	if len(expanded) != 1 {
		t.Fatalf("expected exactly one expanded rule line, got %+v", expanded)
	}
	want := "* component[{name}] 0..1"
	if expanded[0] != want {
		t.Errorf("expanded rule = %q, want %q", expanded[0], want)
	}
}

// S3: a binding rule with no explicit strength is flagged by the rule
// engine as blocking/binding-strength-required.
func TestScenarioBindingStrengthRequired(t *testing.T) {
	src := "Profile: MyPatient\nParent: Patient\n* gender from GenderVS\n"
	engine := lint.NewRunner(lint.BindingStrengthRequiredRule{})
	r := runOne(t, New(WithRuleEngine(engine)), "s3.fsh", src)
	if r.Err != nil {
		t.Fatalf("unexpected pipeline error: %v", r.Err)
	}
	found := false
	for _, d := range r.Diagnostics {
		if d.Code == string(lint.DiagnosticBindingStrengthRequired) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a blocking/binding-strength-required diagnostic, got %+v", r.Diagnostics)
	}
}

// S4: an extension constraining both value[x] and a sub-extension slice
// warns but still exports.
func TestScenarioExtensionXOR(t *testing.T) {
	src := "Extension: MyExt\nId: my-ext\n* value[x] only string\n* extension contains sub 0..*\n"
	r := runOne(t, New(), "s4.fsh", src)
	if r.Err != nil {
		t.Fatalf("unexpected pipeline error: %v", r.Err)
	}
	doc, ok := ast.CastDocument(r.Tree)
	if !ok {
		t.Fatalf("failed to cast document")
	}
	results := export.New(r.Model, nil, nil).ExportAll(doc)
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("expected export to still succeed: %+v", results)
	}
	found := false
	for _, w := range results[0].Warnings {
		if w.Rule == "conflicting-extension-shape" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a conflicting-extension-shape warning, got %+v", results[0].Warnings)
	}
}

// S5: two same-named profiles each get their own duplicate-definition
// diagnostic, both mentioning the name and the total occurrence count.
func TestScenarioDuplicateDefinition(t *testing.T) {
	src := "Profile: Foo\nParent: Patient\n\nProfile: Foo\nParent: Patient\n"
	r := runOne(t, New(), "s5.fsh", src)
	if r.Err != nil {
		t.Fatalf("unexpected pipeline error: %v", r.Err)
	}
	var matches []string
	for _, d := range r.Diagnostics {
		if d.Code == "correctness/duplicate-definition" {
			matches = append(matches, d.Message)
		}
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 duplicate-definition diagnostics, got %d: %+v", len(matches), matches)
	}
	for _, msg := range matches {
		if !strings.Contains(msg, "Foo") || !strings.Contains(msg, "2 occurrences") {
			t.Errorf("unexpected diagnostic message %q", msg)
		}
	}
}

// S6: a canonical-URL Parent that can't be resolved fails only the
// profile that names it; other exportables in the same batch proceed.
func TestScenarioCanonicalURLParentNotFound(t *testing.T) {
	src := "Profile: Broken\n" +
		"Parent: http://hl7.org/fhir/us/core/StructureDefinition/us-core-patient\n" +
		"* name 1..1\n" +
		"\n" +
		"Profile: Fine\nParent: Patient\n* name 1..1\n"
	r := runOne(t, New(), "s6.fsh", src)
	if r.Err != nil {
		t.Fatalf("unexpected pipeline error: %v", r.Err)
	}
	doc, ok := ast.CastDocument(r.Tree)
	if !ok {
		t.Fatalf("failed to cast document")
	}
	results := export.New(r.Model, nil, nil).ExportAll(doc)
	if len(results) != 2 {
		t.Fatalf("expected both definitions to produce a result, got %d", len(results))
	}
	if results[0].Err == nil || results[0].Err.Code() != export.CodeParentNotFound {
		t.Fatalf("expected Broken to fail with ParentNotFound, got %+v", results[0])
	}
	if results[1].Err != nil {
		t.Errorf("expected Fine to export cleanly, got %+v", results[1].Err)
	}
}
