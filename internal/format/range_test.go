package format

import (
	"bytes"
	"context"
	"testing"

	"github.com/fshforge/fsh/internal/syntax"
	"github.com/fshforge/fsh/internal/text"
)

func TestRangeWidensToRuleAncestorAndReturnsEdit(t *testing.T) {
	t.Parallel()

	src := []byte("Profile: Foo\nParent: Observation\n\n*   status   MS\n*   value[x]   only   string\n")
	tree := mustParse(t, string(src))

	start := bytes.Index(src, []byte("value[x]"))
	r := text.Span{Start: text.ByteOffset(start), End: text.ByteOffset(start + len("value[x]"))}

	got, err := Range(context.Background(), tree, r, Options{})
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(got.Edits) != 1 {
		t.Fatalf("expected 1 edit, got %d: %+v", got.Edits, got.Edits)
	}
	if string(got.Edits[0].NewText) != "* value[x] only string" {
		t.Fatalf("edit NewText = %q", got.Edits[0].NewText)
	}

	out, err := text.ApplyEdits(src, got.Edits)
	if err != nil {
		t.Fatalf("ApplyEdits: %v", err)
	}
	want := []byte("Profile: Foo\nParent: Observation\n\n*   status   MS\n* value[x] only string\n")
	if !bytes.Equal(out, want) {
		t.Fatalf("range formatted output mismatch\n--- got ---\n%s\n--- want ---\n%s", out, want)
	}
}

func TestRangeWidensToMetadataClauseAncestor(t *testing.T) {
	t.Parallel()

	src := []byte("Profile: Foo\nParent:   Observation\n\n* status MS\n")
	tree := mustParse(t, string(src))

	start := bytes.Index(src, []byte("Observation"))
	r := text.Span{Start: text.ByteOffset(start), End: text.ByteOffset(start + len("Observation"))}

	got, err := Range(context.Background(), tree, r, Options{})
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(got.Edits) != 1 {
		t.Fatalf("expected 1 edit, got %d: %+v", got.Edits, got.Edits)
	}
	if string(got.Edits[0].NewText) != "Parent: Observation" {
		t.Fatalf("edit NewText = %q", got.Edits[0].NewText)
	}
}

func TestRangeRefusesWhenNoSafeAncestorExists(t *testing.T) {
	t.Parallel()

	src := []byte("Alias: a = http://example.org/a\n")
	tree := mustParse(t, string(src))

	start := bytes.Index(src, []byte("a ="))
	r := text.Span{Start: text.ByteOffset(start), End: text.ByteOffset(start + 1)}

	res, err := Range(context.Background(), tree, r, Options{})
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(res.Edits) != 0 {
		t.Fatalf("expected no edits for a range with no format-safe ancestor, got %+v", res.Edits)
	}
	found := false
	for _, d := range res.Diagnostics {
		if d.Code == DiagnosticFormatterRangeNoSafeAncestor {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected %q diagnostic, got %+v", DiagnosticFormatterRangeNoSafeAncestor, res.Diagnostics)
	}
}

func TestRangeRefusesUnboundedAncestorCoverage(t *testing.T) {
	t.Parallel()

	src := []byte("Profile: Foo\nParent: Observation\n\n* status MS\n")
	tree := mustParse(t, string(src))

	var rule *syntax.Node
	for i := 1; i < len(tree.Nodes); i++ {
		n := &tree.Nodes[i]
		if syntax.KindName(n.Kind) == "FlagRule" {
			rule = n
			break
		}
	}
	if rule == nil {
		t.Fatal("FlagRule node not found")
	}
	rule.Span.End--

	start := bytes.Index(src, []byte("status"))
	r := text.Span{Start: text.ByteOffset(start), End: text.ByteOffset(start + len("status"))}

	res, err := Range(context.Background(), tree, r, Options{})
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(res.Edits) != 0 {
		t.Fatalf("expected no edits for an ancestor with unbounded token coverage, got %+v", res.Edits)
	}
	found := false
	for _, d := range res.Diagnostics {
		if d.Code == DiagnosticFormatterRangeUnboundedNode {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected %q diagnostic, got %+v", DiagnosticFormatterRangeUnboundedNode, res.Diagnostics)
	}
}
