package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/fshforge/fsh/internal/executor"
	"github.com/fshforge/fsh/internal/syntax"
)

// printDiagnostics renders one file's collected diagnostics as
// "path:line:col: severity: message (source/code)".
func printDiagnostics(w io.Writer, r *executor.JobResult) {
	if r.Err != nil {
		fmt.Fprintf(w, "%s: %v\n", r.Path, r.Err)
		return
	}
	for _, d := range r.Diagnostics {
		loc := d.Span.String()
		if r.Tree != nil && r.Tree.LineIndex != nil && d.Span.Start.IsValid() {
			if p, err := r.Tree.LineIndex.OffsetToPoint(d.Span.Start); err == nil {
				loc = fmt.Sprintf("%d:%d", p.Line+1, p.Column+1)
			}
		}
		fmt.Fprintf(w, "%s:%s: %s: %s (%s/%s)\n", r.Path, loc, severityLabel(d.Severity), d.Message, d.Source, d.Code)
	}
}

func severityLabel(s syntax.Severity) string {
	switch s {
	case syntax.SeverityError:
		return "error"
	case syntax.SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// summarize reports a humanized one-line batch summary, in the idiom the
// executor's own doc comments describe for progress/ETA rendering: a
// started-N-ago-style elapsed phrase built from humanize.RelTime rather
// than a bare time.Duration.String().
func summarize(w io.Writer, batch *executor.BatchResult) {
	started := time.Now().Add(-batch.TotalDuration)
	fmt.Fprintf(w, "%s files, %d failed, total work %s\n",
		humanize.Comma(int64(batch.TotalJobs)), batch.FailedJobs, humanize.RelTime(started, started.Add(batch.TotalDuration), "", "elapsed"))
}
