package lint

import (
	"testing"

	"github.com/fshforge/fsh/internal/syntax"
	"github.com/fshforge/fsh/internal/text"
)

func span(start, end int) text.Span {
	return text.Span{Start: text.ByteOffset(start), End: text.ByteOffset(end)}
}

func TestApplyFixesNonOverlappingMatchesIndividualApplication(t *testing.T) {
	src := []byte("one two three")
	suggestions := []syntax.CodeSuggestion{
		{Span: span(0, 3), Replacement: "ONE", Safety: syntax.SafetySafe},
		{Span: span(8, 13), Replacement: "THREE", Safety: syntax.SafetySafe},
	}
	out, conflicts, err := ApplyFixes(src, suggestions, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("unexpected conflicts: %+v", conflicts)
	}
	if got, want := string(out), "ONE two THREE"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApplyFixesDropsUnsafeByDefault(t *testing.T) {
	src := []byte("one two")
	suggestions := []syntax.CodeSuggestion{
		{Span: span(0, 3), Replacement: "ONE", Safety: syntax.SafetyUnsafe},
	}
	out, _, err := ApplyFixes(src, suggestions, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "one two" {
		t.Errorf("expected unsafe suggestion to be dropped, got %q", out)
	}
}

func TestApplyFixesAppliesUnsafeWhenRequested(t *testing.T) {
	src := []byte("one two")
	suggestions := []syntax.CodeSuggestion{
		{Span: span(0, 3), Replacement: "ONE", Safety: syntax.SafetyUnsafe},
	}
	out, _, err := ApplyFixes(src, suggestions, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "ONE two" {
		t.Errorf("got %q, want %q", out, "ONE two")
	}
}

func TestApplyFixesMergesIdenticalDuplicateSuggestions(t *testing.T) {
	src := []byte("one two")
	suggestions := []syntax.CodeSuggestion{
		{Span: span(0, 3), Replacement: "ONE", Safety: syntax.SafetySafe},
		{Span: span(0, 3), Replacement: "ONE", Safety: syntax.SafetySafe},
	}
	out, conflicts, err := ApplyFixes(src, suggestions, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("expected no conflict for identical duplicates, got %+v", conflicts)
	}
	if string(out) != "ONE two" {
		t.Errorf("got %q, want %q", out, "ONE two")
	}
}

func TestApplyFixesRejectsConflictingSameSpanSuggestions(t *testing.T) {
	src := []byte("one two")
	suggestions := []syntax.CodeSuggestion{
		{Span: span(0, 3), Replacement: "ONE", Safety: syntax.SafetySafe},
		{Span: span(0, 3), Replacement: "UNO", Safety: syntax.SafetySafe},
	}
	out, conflicts, err := ApplyFixes(src, suggestions, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected exactly one conflict, got %+v", conflicts)
	}
	if string(out) != "one two" {
		t.Errorf("expected neither conflicting suggestion applied, got %q", out)
	}
}

func TestSafeSuggestionsFiltersBySafety(t *testing.T) {
	diags := []syntax.Diagnostic{
		{Suggestions: []syntax.CodeSuggestion{
			{Replacement: "a", Safety: syntax.SafetySafe},
			{Replacement: "b", Safety: syntax.SafetyUnsafe},
		}},
	}
	got := SafeSuggestions(diags)
	if len(got) != 1 || got[0].Replacement != "a" {
		t.Fatalf("unexpected filtered suggestions: %+v", got)
	}
}
