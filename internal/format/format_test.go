package format

import (
	"bytes"
	"context"
	"testing"

	"github.com/fshforge/fsh/internal/parser"
	"github.com/fshforge/fsh/internal/syntax"
	"github.com/fshforge/fsh/internal/text"
)

func TestNormalizeOptionsDefaultsAndValidation(t *testing.T) {
	t.Parallel()

	got, err := normalizeOptions(Options{})
	if err != nil {
		t.Fatalf("normalizeOptions default: %v", err)
	}
	if got.IndentSize != defaultIndentSize {
		t.Fatalf("IndentSize = %d, want %d", got.IndentSize, defaultIndentSize)
	}
	if got.MaxLineLength != defaultMaxLineLength {
		t.Fatalf("MaxLineLength = %d, want %d", got.MaxLineLength, defaultMaxLineLength)
	}
	if !got.AlignCarets || !got.BlankLineBeforeRules {
		t.Fatalf("defaults should enable caret alignment and blank-line-before-rules: %+v", got)
	}

	if _, err := normalizeOptions(Options{IndentSize: -1}); err == nil {
		t.Fatal("expected error for negative IndentSize")
	}
	if _, err := normalizeOptions(Options{MaxLineLength: -1}); err == nil {
		t.Fatal("expected error for negative MaxLineLength")
	}
}

func mustParse(t *testing.T, src string) *syntax.Tree {
	t.Helper()
	return parser.Parse([]byte(src), syntax.ParseOptions{URI: "test.fsh"})
}

func TestDocumentReportsMixedNewlines(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "Alias: a = http://example.org/a\r\nAlias: b = http://example.org/b\n")

	res, err := Document(context.Background(), tree, Options{})
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if len(res.Output) == 0 {
		t.Fatal("expected formatted output")
	}

	var sawMixed bool
	for _, d := range res.Diagnostics {
		if d.Code == DiagnosticFormatterMixedNewlines {
			sawMixed = true
			break
		}
	}
	if !sawMixed {
		t.Fatal("expected mixed newline formatter diagnostic")
	}
}

func TestDocumentRefusesInvalidUTF8AndReturnsSourceUnchanged(t *testing.T) {
	t.Parallel()

	tree := &syntax.Tree{Source: []byte{0xff}}
	res, err := Document(context.Background(), tree, Options{})
	if err == nil {
		t.Fatal("expected ErrUnsafeToFormat")
	}
	if !IsErrUnsafeToFormat(err) {
		t.Fatalf("unexpected error type: %T %v", err, err)
	}
	if !bytes.Equal(res.Output, tree.Source) {
		t.Fatalf("Output = %q, want source returned unchanged", res.Output)
	}
	if res.Changed {
		t.Fatal("Changed should be false on refusal")
	}

	var unsafe *ErrUnsafeToFormat
	if !AsUnsafeToFormat(err, &unsafe) {
		t.Fatal("AsUnsafeToFormat = false")
	}
	if unsafe.Reason != UnsafeReasonInvalidUTF8 {
		t.Fatalf("unsafe reason = %q, want %q", unsafe.Reason, UnsafeReasonInvalidUTF8)
	}
}

func TestSourceRefusesUnsafeSyntaxAndReturnsSourceUnchanged(t *testing.T) {
	t.Parallel()

	src := []byte("Profile: X\nTitle: \"unterminated\n")
	res, err := Source(context.Background(), src, "test.fsh", Options{})
	if err == nil {
		t.Fatal("expected unsafe formatting refusal")
	}
	if !IsErrUnsafeToFormat(err) {
		t.Fatalf("expected ErrUnsafeToFormat, got %T %v", err, err)
	}
	if !bytes.Equal(res.Output, src) {
		t.Fatalf("Output = %q, want source returned unchanged", res.Output)
	}
	if len(res.Diagnostics) == 0 {
		t.Fatal("expected parse diagnostics in result")
	}
}

func TestSourceFormatsCleanInput(t *testing.T) {
	t.Parallel()

	res, err := Source(context.Background(), []byte("Profile:X\nParent:Observation\n*status MS\n"), "test.fsh", Options{})
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	want := "Profile: X\nParent: Observation\n\n* status MS\n"
	if string(res.Output) != want {
		t.Fatalf("Output = %q, want %q", res.Output, want)
	}
	if !res.Changed {
		t.Fatal("expected Changed=true")
	}
}

func TestRangeReturnsNoEditsForAlreadyFormattedLine(t *testing.T) {
	t.Parallel()

	src := []byte("Profile: X\nParent: Observation\n\n* status MS\n")
	tree := mustParse(t, string(src))
	start := bytes.Index(src, []byte("status"))
	r := text.Span{Start: text.ByteOffset(start), End: text.ByteOffset(start + len("status"))}

	res, err := Range(context.Background(), tree, r, Options{})
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(res.Edits) != 0 {
		t.Fatalf("expected no edits for already-formatted rule, got %d", len(res.Edits))
	}
}

func TestRangeReturnsMinimalEditForUnformattedRule(t *testing.T) {
	t.Parallel()

	src := []byte("Profile: X\nParent: Observation\n\n*   status   MS\n")
	tree := mustParse(t, string(src))
	start := bytes.Index(src, []byte("status"))
	r := text.Span{Start: text.ByteOffset(start), End: text.ByteOffset(start + len("status"))}

	res, err := Range(context.Background(), tree, r, Options{})
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(res.Edits) != 1 {
		t.Fatalf("expected exactly one edit, got %d: %+v", res.Edits, res.Edits)
	}
	if string(res.Edits[0].NewText) != "* status MS" {
		t.Fatalf("edit NewText = %q, want %q", res.Edits[0].NewText, "* status MS")
	}
}
