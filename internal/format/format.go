package format

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/fshforge/fsh/internal/parser"
	"github.com/fshforge/fsh/internal/syntax"
	"github.com/fshforge/fsh/internal/text"
)

// Document formats a full syntax tree, applying the canonical FSH style
// (§4.9): one metadata clause per line, a blank line, then a rule block
// with carets aligned to the block's longest path. When the tree carries
// any non-formatter error diagnostic, formatting is refused fail-closed
// and the original source is returned unchanged.
func Document(ctx context.Context, tree *syntax.Tree, opts Options) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if tree == nil {
		return Result{}, errors.New("nil syntax tree")
	}
	normOpts, err := normalizeOptions(opts)
	if err != nil {
		return Result{}, err
	}

	diags := append([]syntax.Diagnostic(nil), tree.Diagnostics...)
	policy, policyDiags := analyzeSourcePolicy(tree.Source)
	diags = append(diags, policyDiags...)

	if !policy.ValidUTF8 {
		return unsafeResult(tree.Source, diags, UnsafeReasonInvalidUTF8, "input contains invalid UTF-8 bytes")
	}
	if hasUnsafeSyntaxDiagnostics(tree.Diagnostics) {
		return unsafeResult(tree.Source, diags, UnsafeReasonSyntaxErrors, "syntax diagnostics present; returning source unchanged")
	}

	out, err := formatSyntaxTree(tree, normOpts, policy)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Output:      out,
		Changed:     !bytes.Equal(out, tree.Source),
		Diagnostics: diags,
	}, nil
}

// Range formats the smallest format-safe ancestor (a definition, a metadata
// clause, or a rule) that contains r, and returns the edit needed to replace
// that ancestor's span with its reformatted text. It performs the same
// fail-closed safety checks as Document before widening the range.
func Range(ctx context.Context, tree *syntax.Tree, r text.Span, opts Options) (RangeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if tree == nil {
		return RangeResult{}, errors.New("nil syntax tree")
	}
	if err := r.Validate(); err != nil {
		return RangeResult{}, fmt.Errorf("invalid range: %w", err)
	}
	srcSpan := sourceSpan(tree.Source)
	if !srcSpan.ContainsSpan(r) {
		return RangeResult{}, fmt.Errorf("range %s out of bounds for source length %d", r, len(tree.Source))
	}
	normOpts, err := normalizeOptions(opts)
	if err != nil {
		return RangeResult{}, err
	}

	diags := append([]syntax.Diagnostic(nil), tree.Diagnostics...)
	policy, policyDiags := analyzeSourcePolicy(tree.Source)
	diags = append(diags, policyDiags...)
	if !policy.ValidUTF8 || hasUnsafeSyntaxDiagnostics(tree.Diagnostics) {
		return RangeResult{Diagnostics: diags}, nil
	}

	ancestor, blockDiag, err := findRangeFormatAncestor(tree, r)
	if err != nil {
		if blockDiag.Code != "" {
			diags = append(diags, blockDiag)
		}
		return RangeResult{Diagnostics: diags}, nil
	}
	n := tree.NodeByID(ancestor)

	formatted, err := formatNodeRange(tree, ancestor, normOpts, policy)
	if err != nil {
		return RangeResult{}, err
	}
	original := tree.Source[n.Span.Start:n.Span.End]
	if bytes.Equal(original, formatted) {
		return RangeResult{Diagnostics: diags}, nil
	}

	return RangeResult{
		Edits:       []text.ByteEdit{{Span: n.Span, NewText: formatted}},
		Diagnostics: diags,
	}, nil
}

// Source parses and formats source bytes in one step.
func Source(ctx context.Context, src []byte, uri string, opts Options) (Result, error) {
	tree := parser.Parse(src, syntax.ParseOptions{URI: uri})
	return Document(ctx, tree, opts)
}

func hasUnsafeSyntaxDiagnostics(diags []syntax.Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == syntax.SeverityError && d.Source != "formatter" {
			return true
		}
	}
	return false
}

// unsafeResult returns src unchanged along with the diagnostics explaining
// why: per §4.9's idempotency contract, a source that fails to parse
// cleanly is returned as-is rather than partially reformatted. err still
// carries an *ErrUnsafeToFormat so callers that need to distinguish "no
// changes needed" from "refused to format" can do so with errors.As.
func unsafeResult(src []byte, diags []syntax.Diagnostic, reason UnsafeReason, msg string) (Result, error) {
	return Result{
			Output:      bytes.Clone(src),
			Changed:     false,
			Diagnostics: diags,
		}, &ErrUnsafeToFormat{
			Reason:  reason,
			Message: msg,
		}
}
