package lint

import (
	"context"
	"testing"

	"github.com/fshforge/fsh/internal/parser"
	"github.com/fshforge/fsh/internal/syntax"
)

func TestRunnerAggregatesRulesAndStampsSource(t *testing.T) {
	t.Parallel()

	tree := mustParseTree(t, `
Extension: FavoriteColor
Id: favorite-color
* value[x] only string

Profile: VitalSigns
Parent: Observation
* component contains SystolicBP 0..1 and SystolicBP 0..1
`)

	runner := NewDefaultRunner()
	diags, err := runner.Run(context.Background(), tree)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(diags) != 2 {
		t.Fatalf("diagnostic count=%d, want 2: %+v", len(diags), diags)
	}
	if !hasCode(diags, DiagnosticExtensionContextMissing) {
		t.Fatalf("missing %s in %+v", DiagnosticExtensionContextMissing, diags)
	}
	if !hasCode(diags, DiagnosticSliceNameCollision) {
		t.Fatalf("missing %s in %+v", DiagnosticSliceNameCollision, diags)
	}
	for _, d := range diags {
		if d.Source != DiagnosticSource {
			t.Fatalf("diagnostic source=%q, want %q", d.Source, DiagnosticSource)
		}
	}
}

func TestRunnerSortsDiagnosticsBySpan(t *testing.T) {
	t.Parallel()

	tree := mustParseTree(t, `
Profile: VitalSigns
Parent: Observation
* component contains SystolicBP 0..1 and SystolicBP 0..1 and DiastolicBP 0..1 and DiastolicBP 0..1
`)

	diags, err := (SliceNameCollisionRule{}).Run(context.Background(), tree)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	SortDiagnostics(diags)
	for i := 1; i < len(diags); i++ {
		if diags[i-1].Span.Start > diags[i].Span.Start {
			t.Fatalf("diagnostics not sorted by span start: %+v", diags)
		}
	}
}

func mustParseTree(t *testing.T, src string) *syntax.Tree {
	t.Helper()

	return parser.Parse([]byte(src), syntax.ParseOptions{URI: "file:///lint.fsh"})
}

func hasCode(diags []syntax.Diagnostic, code syntax.DiagnosticCode) bool {
	for _, d := range diags {
		if d.Code == code {
			return true
		}
	}
	return false
}
