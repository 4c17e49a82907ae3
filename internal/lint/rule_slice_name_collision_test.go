package lint

import (
	"context"
	"testing"

	"github.com/fshforge/fsh/internal/parser"
	"github.com/fshforge/fsh/internal/syntax"
)

func TestSliceNameCollisionRuleFlagsDuplicateImplicitNames(t *testing.T) {
	t.Parallel()

	tree := parser.Parse([]byte(`
Profile: VitalSigns
Parent: Observation
* component contains SystolicBP 0..1 and SystolicBP 0..1
`), syntax.ParseOptions{URI: "test.fsh"})

	diags, err := SliceNameCollisionRule{}.Run(context.Background(), tree)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(diags) != 1 {
		t.Fatalf("diagnostic count=%d, want 1: %+v", len(diags), diags)
	}
	if diags[0].Code != DiagnosticSliceNameCollision {
		t.Errorf("unexpected code: %+v", diags[0])
	}
	if len(diags[0].Related) != 1 {
		t.Errorf("expected one related diagnostic pointing at the first declaration, got %+v", diags[0].Related)
	}
}

func TestSliceNameCollisionRuleFlagsDuplicateNamedAlias(t *testing.T) {
	t.Parallel()

	tree := parser.Parse([]byte(`
Profile: VitalSigns
Parent: Observation
* component contains SystolicBP named bp 0..1 and DiastolicBP named bp 0..1
`), syntax.ParseOptions{URI: "test.fsh"})

	diags, err := SliceNameCollisionRule{}.Run(context.Background(), tree)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(diags) != 1 {
		t.Fatalf("diagnostic count=%d, want 1: %+v", len(diags), diags)
	}
}

func TestSliceNameCollisionRuleAllowsDistinctNames(t *testing.T) {
	t.Parallel()

	tree := parser.Parse([]byte(`
Profile: VitalSigns
Parent: Observation
* component contains SystolicBP 0..1 and DiastolicBP 0..1
`), syntax.ParseOptions{URI: "test.fsh"})

	diags, err := SliceNameCollisionRule{}.Run(context.Background(), tree)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %+v", diags)
	}
}
