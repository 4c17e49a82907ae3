package executor

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// processFunc runs one Job to completion and produces its JobResult.
type processFunc func(ctx context.Context, job Job) *JobResult

// Pool drives processFunc across a bounded set of worker goroutines over
// buffered job/result channels with atomic counters, the same shape as the
// reference FHIR validator's worker.Pool, adapted from a per-resource
// validation job to a per-file compile-and-lint job. sem additionally
// gates how many workers may be *processing* at once, independent of how
// many goroutines exist, so a BackpressureController can shrink/grow
// effective parallelism without tearing down and restarting goroutines.
type Pool struct {
	workers int
	process processFunc
	sem     *semaphore

	jobsChan   chan Job
	resultChan chan *JobResult

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	jobsSubmitted atomic.Uint64
	jobsCompleted atomic.Uint64
}

// NewPool starts workers goroutines (defaulting to runtime.NumCPU() when
// workers <= 0) backed by sem for effective-parallelism control. sem must
// not be nil; pass a semaphore sized to workers for unconstrained behavior.
func NewPool(parent context.Context, workers int, sem *semaphore, process processFunc) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	p := &Pool{
		workers:    workers,
		process:    process,
		sem:        sem,
		jobsChan:   make(chan Job, workers*2),
		resultChan: make(chan *JobResult, workers*2),
		ctx:        ctx,
		cancel:     cancel,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	go func() {
		p.wg.Wait()
		close(p.resultChan)
	}()
	return p
}

// Submit enqueues job, blocking if the queue is full. It returns false if
// the pool has been closed for submission or the context was cancelled.
func (p *Pool) Submit(job Job) bool {
	if p.closed.Load() {
		return false
	}
	select {
	case <-p.ctx.Done():
		return false
	case p.jobsChan <- job:
		p.jobsSubmitted.Add(1)
		return true
	}
}

// CloseSubmission signals that no further jobs will be submitted. Workers
// drain whatever remains in the queue, honoring cancellation between jobs,
// then exit and close Results().
func (p *Pool) CloseSubmission() {
	if p.closed.Swap(true) {
		return
	}
	close(p.jobsChan)
}

// Cancel stops the pool from starting any job not already in flight. Per
// spec.md §4.10, work already started is allowed to run to completion.
func (p *Pool) Cancel() {
	p.cancel()
}

// Results returns the channel of completed job results. It closes once
// every worker has exited.
func (p *Pool) Results() <-chan *JobResult {
	return p.resultChan
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobsChan {
		select {
		case <-p.ctx.Done():
			return
		default:
		}
		if p.sem != nil && !p.sem.acquire(p.ctx) {
			return
		}
		result := p.process(p.ctx, job)
		if p.sem != nil {
			p.sem.release()
		}
		p.jobsCompleted.Add(1)
		// A job that has already started always reports its result, even if
		// ctx was cancelled while it ran: cancellation stops new work from
		// starting, it does not discard work that was allowed to finish.
		// resultChan is only ever closed after every worker exits, so this
		// send cannot land on a closed channel.
		p.resultChan <- result
	}
}

// semaphore is a resizable token bucket used to throttle how many workers
// may be processing at once without changing the underlying goroutine
// count. shrink/grow are best-effort and non-blocking so a sampling
// backpressure controller never stalls on them.
type semaphore struct {
	tokens chan struct{}
	max    int
}

func newSemaphore(initial, max int) *semaphore {
	if max < 1 {
		max = 1
	}
	if initial > max {
		initial = max
	}
	if initial < 1 {
		initial = 1
	}
	s := &semaphore{tokens: make(chan struct{}, max), max: max}
	for i := 0; i < initial; i++ {
		s.tokens <- struct{}{}
	}
	return s
}

func (s *semaphore) acquire(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.tokens:
		return true
	}
}

func (s *semaphore) release() {
	select {
	case s.tokens <- struct{}{}:
	default:
		// Bucket at capacity; happens if a shrink raced a release. Drop the
		// token rather than block: the next grow() will restore capacity.
	}
}

// shrink permanently removes one token, reducing effective parallelism by
// one. Returns false if no token was immediately available (already at the
// floor of in-flight work).
func (s *semaphore) shrink() bool {
	select {
	case <-s.tokens:
		return true
	default:
		return false
	}
}

// grow adds one token back, capped at max. Returns false if already at max.
func (s *semaphore) grow() bool {
	select {
	case s.tokens <- struct{}{}:
		return true
	default:
		return false
	}
}
