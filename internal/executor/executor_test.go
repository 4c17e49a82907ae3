package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/fshforge/fsh/internal/syntax"
)

// mapLoader serves in-memory sources keyed by path, optionally blocking a
// named path on a channel until released, so tests can control completion
// order without depending on real goroutine scheduling.
type mapLoader struct {
	mu      sync.Mutex
	sources map[string][]byte
	errs    map[string]error
	gate    map[string]chan struct{}
}

func newMapLoader() *mapLoader {
	return &mapLoader{sources: map[string][]byte{}, errs: map[string]error{}, gate: map[string]chan struct{}{}}
}

func (l *mapLoader) set(path, src string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources[path] = []byte(src)
}

func (l *mapLoader) failOn(path string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs[path] = err
}

func (l *mapLoader) blockOn(path string) chan struct{} {
	ch := make(chan struct{})
	l.mu.Lock()
	l.gate[path] = ch
	l.mu.Unlock()
	return ch
}

func (l *mapLoader) Load(path string) ([]byte, error) {
	l.mu.Lock()
	gate := l.gate[path]
	err := l.errs[path]
	src := l.sources[path]
	l.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

func minimalProfileSource(name string) string {
	return fmt.Sprintf("Profile: %s\nParent: Patient\n* name 1..1 MS\n", name)
}

func TestRunOrdersResultsByInputOrder(t *testing.T) {
	loader := newMapLoader()
	paths := []string{"a.fsh", "b.fsh", "c.fsh"}
	for _, p := range paths {
		loader.set(p, minimalProfileSource("Doc"+p))
	}
	// Make the first submitted path the slowest to finish, so a naive
	// completion-order collector would misplace it.
	gate := loader.blockOn("a.fsh")
	go func() {
		time.Sleep(5 * time.Millisecond)
		close(gate)
	}()

	ex := New(WithSourceLoader(loader), WithWorkers(3))
	batch := ex.Run(context.Background(), paths)

	if batch.TotalJobs != 3 || batch.CompletedJobs != 3 {
		t.Fatalf("unexpected batch counts: %+v", batch)
	}
	for i, p := range paths {
		if batch.Results[i] == nil || batch.Results[i].Path != p {
			t.Fatalf("result %d: expected path %q, got %+v", i, p, batch.Results[i])
		}
	}
}

func TestReadFailureIsolatesResult(t *testing.T) {
	loader := newMapLoader()
	loader.set("ok.fsh", minimalProfileSource("OkDoc"))
	loader.failOn("missing.fsh", errors.New("no such file"))

	ex := New(WithSourceLoader(loader))
	batch := ex.Run(context.Background(), []string{"missing.fsh", "ok.fsh"})

	if batch.FailedJobs != 1 {
		t.Fatalf("expected 1 failed job, got %d", batch.FailedJobs)
	}
	if batch.Results[0].Err == nil {
		t.Errorf("expected missing.fsh to carry a read error")
	}
	if len(batch.Results[0].Diagnostics) != 0 {
		t.Errorf("expected no diagnostics for a read failure, got %+v", batch.Results[0].Diagnostics)
	}
	if batch.Results[1].Err != nil {
		t.Errorf("ok.fsh should not be affected by missing.fsh's failure: %v", batch.Results[1].Err)
	}
}

func TestParseDiagnosticsAndSemanticDiagnosticsAreCollected(t *testing.T) {
	loader := newMapLoader()
	// Two profiles declaring the same name trip the semantic duplicate-name
	// diagnostic; the pipeline must carry it through to the result.
	loader.set("dup.fsh", "Profile: Dup\nParent: Patient\n\nProfile: Dup\nParent: Patient\n")

	ex := New(WithSourceLoader(loader))
	batch := ex.Run(context.Background(), []string{"dup.fsh"})

	r := batch.Results[0]
	if r.Err != nil {
		t.Fatalf("unexpected error: %v", r.Err)
	}
	found := false
	for _, d := range r.Diagnostics {
		if d.Source == "semantic" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected at least one semantic diagnostic, got %+v", r.Diagnostics)
	}
}

// ruleEngineFunc adapts a function literal to the RuleEngine interface so
// tests can confirm run_rules output reaches the collected result without
// depending on any real lint rule having been ported to FSH yet.
type ruleEngineFunc func(ctx context.Context, tree *syntax.Tree) ([]syntax.Diagnostic, error)

func (f ruleEngineFunc) Run(ctx context.Context, tree *syntax.Tree) ([]syntax.Diagnostic, error) {
	return f(ctx, tree)
}

func TestRuleEngineDiagnosticsAreCollected(t *testing.T) {
	loader := newMapLoader()
	loader.set("a.fsh", minimalProfileSource("Doc"))

	var calls int32
	engine := ruleEngineFunc(func(ctx context.Context, tree *syntax.Tree) ([]syntax.Diagnostic, error) {
		atomic.AddInt32(&calls, 1)
		return []syntax.Diagnostic{{Code: "fsh-example-rule", Message: "example", Severity: syntax.SeverityWarning}}, nil
	})

	ex := New(WithSourceLoader(loader), WithRuleEngine(engine))
	batch := ex.Run(context.Background(), []string{"a.fsh"})

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected the rule engine to run exactly once, got %d", calls)
	}
	found := false
	for _, d := range batch.Results[0].Diagnostics {
		if d.Code == "fsh-example-rule" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the rule engine's diagnostic in the collected result, got %+v", batch.Results[0].Diagnostics)
	}
}

func TestProgressCallbackReceivesMonotonicCounts(t *testing.T) {
	loader := newMapLoader()
	paths := []string{"a.fsh", "b.fsh", "c.fsh"}
	for _, p := range paths {
		loader.set(p, minimalProfileSource("Doc"+p))
	}

	var mu sync.Mutex
	var seen []int
	ex := New(WithSourceLoader(loader), WithProgress(func(total, completed int, current string, elapsed, eta time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, completed)
		// Exercise go-humanize on elapsed the way a caller would format it
		// for humans, per SPEC_FULL.md §4.10 (the core ProgressFunc itself stays plain
		// time.Duration so callers can format however they like).
		_ = humanize.RelTime(time.Now().Add(-elapsed), time.Now(), "ago", "from now")
	}))
	batch := ex.Run(context.Background(), paths)

	if batch.CompletedJobs != 3 {
		t.Fatalf("expected 3 completions, got %d", batch.CompletedJobs)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 || seen[2] != 3 {
		t.Errorf("expected monotonically increasing completed counts ending at 3, got %v", seen)
	}
}

func TestCancellationStopsNewFilesButLetsInFlightFinish(t *testing.T) {
	loader := newMapLoader()
	paths := []string{"a.fsh", "b.fsh", "c.fsh", "d.fsh"}
	for _, p := range paths {
		loader.set(p, minimalProfileSource("Doc"+p))
	}
	gate := loader.blockOn("a.fsh")

	ctx, cancel := context.WithCancel(context.Background())
	ex := New(WithSourceLoader(loader), WithWorkers(1))

	done := make(chan *BatchResult, 1)
	go func() {
		done <- ex.Run(ctx, paths)
	}()

	// With one worker, a.fsh is in flight and blocking; cancel now so no
	// further file is allowed to start.
	time.Sleep(2 * time.Millisecond)
	cancel()
	close(gate)

	batch := <-done
	if batch.CompletedJobs >= len(paths) {
		t.Errorf("expected cancellation to stop at least one file from starting, got %d/%d completed", batch.CompletedJobs, len(paths))
	}
	if batch.Results[0] == nil {
		t.Errorf("expected the in-flight file to be allowed to complete")
	}
}

func TestBackpressureControllerHalvesAndDoublesEffectiveParallelism(t *testing.T) {
	sem := newSemaphore(4, 4)
	monitor := &fakeMonitor{bytes: 0}
	bp := newBackpressureController(monitor, 1000, sem, 4)

	monitor.bytes = 2000 // over threshold
	bp.evaluate()
	if bp.Effective() != 2 {
		t.Fatalf("expected halving to 2, got %d", bp.Effective())
	}

	monitor.bytes = 2000
	bp.evaluate()
	if bp.Effective() != 1 {
		t.Fatalf("expected halving to 1, got %d", bp.Effective())
	}

	monitor.bytes = 100 // well under threshold/2
	bp.evaluate()
	if bp.Effective() != 2 {
		t.Fatalf("expected doubling to 2, got %d", bp.Effective())
	}
}

type fakeMonitor struct{ bytes uint64 }

func (f *fakeMonitor) SampleBytes() uint64 { return f.bytes }
