package executor

import (
	"time"

	"github.com/fshforge/fsh/internal/semantic"
	"github.com/fshforge/fsh/internal/syntax"
	"github.com/fshforge/fsh/internal/text"
)

// Job is one unit of work submitted to the pool: a file to drive through
// read -> parse -> semantic -> run_rules -> collect (spec.md §4.10).
type Job struct {
	// Index is the position of Path in the caller's input slice, preserved
	// so results can be reassembled in input order regardless of which
	// worker finishes first.
	Index int
	Path  string
}

// Diagnostic unifies syntax.Diagnostic (lexer/parser), semantic.Diagnostic,
// and the rule engine's syntax.Diagnostic output into one collected shape,
// since the three producers don't share a diagnostic type.
type Diagnostic struct {
	Code     string
	Message  string
	Severity syntax.Severity
	Span     text.Span
	Source   string // "lexer" | "parser" | "semantic" | lint.DiagnosticSource
}

func fromSyntaxDiagnostic(d syntax.Diagnostic) Diagnostic {
	return Diagnostic{
		Code:     string(d.Code),
		Message:  d.Message,
		Severity: d.Severity,
		Span:     d.Span,
		Source:   d.Source,
	}
}

func fromSemanticDiagnostic(d semantic.Diagnostic) Diagnostic {
	return Diagnostic{
		Code:     d.Rule,
		Message:  d.Message,
		Severity: d.Severity,
		Span:     d.Span,
		Source:   "semantic",
	}
}

// JobResult is the outcome of processing one Job. Err is set when the rule
// engine returns an error (the lexer, parser and semantic diagnostics
// collected before it are kept), or for a
// read failure that aborted the pipeline before any diagnostics could be
// produced (spec.md §4.10: "an I/O or parse failure produces a result
// carrying only the available diagnostics" — a parse failure still reaches
// here as Diagnostics, since the parser recovers and always returns a
// tree; only a read failure leaves Diagnostics empty).
type JobResult struct {
	Index       int
	Path        string
	Tree        *syntax.Tree
	Model       *semantic.Model
	Diagnostics []Diagnostic
	Err         error
	Duration    time.Duration
}

// BatchResult aggregates every JobResult from one Executor.Run call, in
// the caller's original input order.
type BatchResult struct {
	Results       []*JobResult
	TotalJobs     int
	CompletedJobs int
	FailedJobs    int
	TotalDuration time.Duration
}

// HasErrors reports whether any result failed outright or carries an error
// severity diagnostic.
func (b *BatchResult) HasErrors() bool {
	for _, r := range b.Results {
		if r == nil {
			continue
		}
		if r.Err != nil {
			return true
		}
		for _, d := range r.Diagnostics {
			if d.Severity == syntax.SeverityError {
				return true
			}
		}
	}
	return false
}
