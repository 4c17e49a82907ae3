package pattern

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fshforge/fsh/internal/parser"
	"github.com/fshforge/fsh/internal/syntax"
)

func TestRuleRunEmitsDiagnosticWithSubstitutedMessage(t *testing.T) {
	t.Parallel()

	compiled, err := Compile(
		"kind: ValueSetRule\n" +
			"match: `* $path from $vs ($strength)`\n" +
			"where: $strength != \"required\"\n",
	)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	r := &Rule{
		id:       "suspicious/weak-binding-strength",
		desc:     "flags non-required bindings",
		category: "suspicious",
		severity: syntax.SeverityWarning,
		message:  "\"$path\" is bound with strength $strength, not required",
		compiled: compiled,
	}

	src := []byte("Profile: MyObs\nParent: Observation\n\n* code from LabCodesVS (extensible)\n")
	tree := parser.Parse(src, syntax.ParseOptions{URI: "test.fsh"})

	diags, err := r.Run(context.Background(), tree)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d: %+v", len(diags), diags)
	}
	want := `"code" is bound with strength extensible, not required`
	if diags[0].Message != want {
		t.Fatalf("Message = %q, want %q", diags[0].Message, want)
	}
	if diags[0].Code != syntax.DiagnosticCode(r.id) {
		t.Fatalf("Code = %q, want %q", diags[0].Code, r.id)
	}
}

func TestRuleRunSkipsMatchesThatFailWhereClause(t *testing.T) {
	t.Parallel()

	compiled, err := Compile(
		"kind: ValueSetRule\n" +
			"match: `* $path from $vs ($strength)`\n" +
			"where: $strength != \"required\"\n",
	)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	r := &Rule{id: "suspicious/weak-binding-strength", compiled: compiled}

	src := []byte("Profile: MyObs\nParent: Observation\n\n* code from LabCodesVS (required)\n")
	tree := parser.Parse(src, syntax.ParseOptions{URI: "test.fsh"})

	diags, err := r.Run(context.Background(), tree)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics for a required binding, got %+v", diags)
	}
}

func TestRuleRunProducesUnsafeFixSuggestionFromEffectTemplate(t *testing.T) {
	t.Parallel()

	compiled, err := Compile(
		"kind: OnlyRule\n" +
			"match: `* $path only Reference(Resource)`\n",
	)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	r := &Rule{
		id:       "correctness/unbounded-reference-target",
		message:  "\"$path\" only constrains to an unbounded Reference(Resource)",
		effect:   "* $path only Reference(Patient)",
		safety:   syntax.SafetyUnsafe,
		compiled: compiled,
	}

	src := []byte("Profile: MyObs\nParent: Observation\n\n* subject only Reference(Resource)\n")
	tree := parser.Parse(src, syntax.ParseOptions{URI: "test.fsh"})

	diags, err := r.Run(context.Background(), tree)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d: %+v", len(diags), diags)
	}
	if len(diags[0].Suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %+v", diags[0].Suggestions)
	}
	sugg := diags[0].Suggestions[0]
	if sugg.Replacement != "* subject only Reference(Patient)" {
		t.Fatalf("Replacement = %q", sugg.Replacement)
	}
	if sugg.Safety != syntax.SafetyUnsafe {
		t.Fatalf("Safety = %v, want Unsafe", sugg.Safety)
	}
}

func TestLoadFileCompilesEveryRuleAndReportsLocationOnError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(good, []byte(`rules:
  - id: suspicious/weak-binding-strength
    description: flags non-required bindings
    category: suspicious
    severity: warning
    kind: ValueSetRule
    match: "* $path from $vs ($strength)"
    where:
      - $strength != "required"
    message: "\"$path\" is bound with strength $strength, not required"
`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	rules, err := LoadFile(good)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	if rules[0].ID() != "suspicious/weak-binding-strength" {
		t.Fatalf("ID = %q", rules[0].ID())
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte(`rules:
  - id: broken
    kind: ValueSetRule
    match: "* $path from $vs ("
`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadFile(bad); err == nil {
		t.Fatal("expected LoadFile to fail on an unbalanced match template")
	}
}
