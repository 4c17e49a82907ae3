// Package executor implements the per-file pipeline driver (C10): given a
// set of FSH files, a rule engine, and a canonical resolver, it runs
// read -> parse -> semantic -> run_rules -> collect independently and in
// parallel over a worker pool, returning results in the caller's input
// order regardless of completion order (spec.md §4.10).
package executor

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/fshforge/fsh/internal/parser"
	"github.com/fshforge/fsh/internal/resolve"
	"github.com/fshforge/fsh/internal/semantic"
	"github.com/fshforge/fsh/internal/syntax"
)

// RuleEngine runs the diagnostic rule engine (C8) over a parsed tree. It is
// satisfied structurally by *lint.Runner without this package importing
// lint directly, keeping the executor usable before and after the lint
// rule set is rewritten for FSH.
type RuleEngine interface {
	Run(ctx context.Context, tree *syntax.Tree) ([]syntax.Diagnostic, error)
}

// SourceLoader reads a file's bytes for the pipeline's one I/O suspension
// point (besides canonical resolution). Abstracted so tests can drive the
// executor over in-memory sources without touching disk.
type SourceLoader interface {
	Load(path string) ([]byte, error)
}

type osSourceLoader struct{}

func (osSourceLoader) Load(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// ProgressFunc is invoked after each file completes. elapsed and eta are
// plain time.Duration (not pre-formatted) so callers can render them
// however they like; the executor's own progress test, for example,
// renders elapsed with github.com/dustin/go-humanize's RelTime.
type ProgressFunc func(total, completed int, currentFile string, elapsed, eta time.Duration)

// Option configures an Executor.
type Option func(*Executor)

// WithWorkers sets the worker pool size. Defaults to runtime.NumCPU() (via
// Pool's own default) when unset or <= 0.
func WithWorkers(n int) Option {
	return func(e *Executor) { e.workers = n }
}

// WithResolver wires the canonical resolver (C4) used during semantic
// analysis for cross-reference resolution.
func WithResolver(r resolve.Fishable) Option {
	return func(e *Executor) { e.resolver = r }
}

// WithRuleEngine wires the diagnostic rule engine (C8) run after semantic
// analysis. A nil engine (the default) skips the run_rules stage.
func WithRuleEngine(engine RuleEngine) Option {
	return func(e *Executor) { e.engine = engine }
}

// WithProgress registers a progress callback invoked after each file.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Executor) { e.progress = fn }
}

// WithSourceLoader overrides how file bytes are read. Defaults to
// os.ReadFile.
func WithSourceLoader(l SourceLoader) Option {
	return func(e *Executor) { e.loader = l }
}

// WithMemoryBackpressure enables the optional backpressure controller:
// monitor is sampled after every completed file, halving effective
// parallelism above thresholdBytes and doubling it back (up to the worker
// count) once usage falls below half that threshold.
func WithMemoryBackpressure(monitor MemoryMonitor, thresholdBytes uint64) Option {
	return func(e *Executor) {
		e.memoryMonitor = monitor
		e.memoryThreshold = thresholdBytes
	}
}

// Executor owns no mutable shared state beyond counters and accumulators;
// per-file processing is independent (spec.md §3 ownership discussion).
type Executor struct {
	workers         int
	resolver        resolve.Fishable
	engine          RuleEngine
	progress        ProgressFunc
	loader          SourceLoader
	memoryMonitor   MemoryMonitor
	memoryThreshold uint64
}

// New builds an Executor from the given options.
func New(opts ...Option) *Executor {
	e := &Executor{loader: osSourceLoader{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run drives every path in paths through the per-file pipeline and returns
// their results in the same order as paths, regardless of which worker
// finished first. Cancelling ctx stops new files from starting; files
// already in flight complete normally.
func (e *Executor) Run(ctx context.Context, paths []string) *BatchResult {
	if ctx == nil {
		ctx = context.Background()
	}
	total := len(paths)
	batch := &BatchResult{Results: make([]*JobResult, total), TotalJobs: total}
	if total == 0 {
		return batch
	}

	workers := e.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	sem := newSemaphore(workers, workers)
	var backpressure *BackpressureController
	if e.memoryMonitor != nil && e.memoryThreshold > 0 {
		backpressure = newBackpressureController(e.memoryMonitor, e.memoryThreshold, sem, workers)
	}

	pool := NewPool(ctx, workers, sem, e.processFile)

	go func() {
		for i, p := range paths {
			if !pool.Submit(Job{Index: i, Path: p}) {
				break
			}
		}
		pool.CloseSubmission()
	}()

	start := time.Now()
	for r := range pool.Results() {
		batch.Results[r.Index] = r
		batch.CompletedJobs++
		if r.Err != nil {
			batch.FailedJobs++
		}
		batch.TotalDuration += r.Duration

		if backpressure != nil {
			backpressure.evaluate()
		}
		if e.progress != nil {
			elapsed := time.Since(start)
			e.progress(total, batch.CompletedJobs, r.Path, elapsed, estimateETA(elapsed, batch.CompletedJobs, total))
		}
	}
	return batch
}

// processFile runs one file through read -> parse -> semantic -> run_rules
// -> collect. A read failure is isolated to this result and carries no
// diagnostics; a parse failure never occurs as a Go error since the parser
// always recovers and returns a tree, so its diagnostics simply flow into
// the collected set.
func (e *Executor) processFile(ctx context.Context, job Job) *JobResult {
	start := time.Now()
	result := &JobResult{Index: job.Index, Path: job.Path}

	src, err := e.loader.Load(job.Path)
	if err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	tree := parser.Parse(src, syntax.ParseOptions{URI: job.Path})
	result.Tree = tree
	for _, d := range tree.Diagnostics {
		result.Diagnostics = append(result.Diagnostics, fromSyntaxDiagnostic(d))
	}

	model := semantic.Run(tree, e.resolver)
	result.Model = model
	for _, d := range model.Diagnostics {
		result.Diagnostics = append(result.Diagnostics, fromSemanticDiagnostic(d))
	}

	if e.engine != nil {
		if ruleDiags, ruleErr := e.engine.Run(ctx, tree); ruleErr != nil {
			result.Err = ruleErr
		} else {
			for _, d := range ruleDiags {
				result.Diagnostics = append(result.Diagnostics, fromSyntaxDiagnostic(d))
			}
		}
	}

	result.Duration = time.Since(start)
	return result
}

func estimateETA(elapsed time.Duration, completed, total int) time.Duration {
	if completed == 0 || completed >= total {
		return 0
	}
	perFile := elapsed / time.Duration(completed)
	return perFile * time.Duration(total-completed)
}

