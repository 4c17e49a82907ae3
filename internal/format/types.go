// Package format provides formatter core APIs and primitives for FHIR
// Shorthand source formatting.
package format

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fshforge/fsh/internal/syntax"
	"github.com/fshforge/fsh/internal/text"
)

const (
	defaultIndentSize    = 2
	defaultMaxLineLength = 100
	defaultMaxBlankLines = 1
)

// Options configure formatter behavior (§4.9).
type Options struct {
	// IndentSize is the number of spaces per indent level. FSH rule lines
	// are emitted flat (no brace nesting), so this currently only affects
	// continuation indentation inside wrapped trivia.
	IndentSize int
	// AlignCarets pads each rule block's paths to the block's longest path
	// so the cardinality/flags/value column lines up.
	AlignCarets bool
	// MaxLineLength is advisory; the formatter does not hard-wrap rule lines.
	MaxLineLength int
	// BlankLineBeforeRules inserts a blank line between a definition's
	// metadata clauses and its rule block.
	BlankLineBeforeRules bool
	// PreserveBlankLines keeps a single author-written blank line between
	// rules instead of collapsing the block to one line per rule.
	PreserveBlankLines bool
}

func (o Options) indent() string {
	return strings.Repeat(" ", o.IndentSize)
}

func (o Options) maxBlankLines() int {
	if o.PreserveBlankLines {
		return 1
	}
	return 0
}

// Result is the full-document formatting result.
type Result struct {
	Output      []byte
	Changed     bool
	Diagnostics []syntax.Diagnostic
}

// RangeResult is the range-formatting result.
type RangeResult struct {
	Edits       []text.ByteEdit
	Diagnostics []syntax.Diagnostic
}

// UnsafeReason identifies why a request was refused as unsafe.
type UnsafeReason string

const (
	// UnsafeReasonInvalidUTF8 indicates invalid UTF-8 bytes in the source input.
	UnsafeReasonInvalidUTF8 UnsafeReason = "invalid_utf8"
	// UnsafeReasonSyntaxErrors indicates fail-closed refusal due to parser/lexer error diagnostics.
	UnsafeReasonSyntaxErrors UnsafeReason = "syntax_errors"
)

// ErrUnsafeToFormat is returned when formatting is refused due to unsafe input state.
type ErrUnsafeToFormat struct {
	Reason  UnsafeReason
	Message string
}

func (e *ErrUnsafeToFormat) Error() string {
	if e == nil {
		return "unsafe to format"
	}
	if e.Message == "" {
		return fmt.Sprintf("unsafe to format (%s)", e.Reason)
	}
	return fmt.Sprintf("unsafe to format (%s): %s", e.Reason, e.Message)
}

// IsErrUnsafeToFormat reports whether err is a formatter safety refusal.
func IsErrUnsafeToFormat(err error) bool {
	var target *ErrUnsafeToFormat
	return AsUnsafeToFormat(err, &target)
}

// AsUnsafeToFormat reports whether err contains an ErrUnsafeToFormat.
func AsUnsafeToFormat(err error, target **ErrUnsafeToFormat) bool {
	if err == nil || target == nil {
		return false
	}
	return errors.As(err, target)
}

// DefaultOptions returns the formatter's canonical style: the style a bare
// "fshfmt file.fsh" invocation produces.
func DefaultOptions() Options {
	return Options{
		IndentSize:           defaultIndentSize,
		AlignCarets:          true,
		MaxLineLength:        defaultMaxLineLength,
		BlankLineBeforeRules: true,
		PreserveBlankLines:   true,
	}
}

func normalizeOptions(opts Options) (Options, error) {
	if opts.IndentSize < 0 {
		return Options{}, fmt.Errorf("invalid IndentSize %d", opts.IndentSize)
	}
	if opts.MaxLineLength < 0 {
		return Options{}, fmt.Errorf("invalid MaxLineLength %d", opts.MaxLineLength)
	}
	if opts == (Options{}) {
		return DefaultOptions(), nil
	}
	if opts.IndentSize == 0 {
		opts.IndentSize = defaultIndentSize
	}
	if opts.MaxLineLength == 0 {
		opts.MaxLineLength = defaultMaxLineLength
	}
	return opts, nil
}
