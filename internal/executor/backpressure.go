package executor

import "sync/atomic"

// MemoryMonitor samples resident memory for the backpressure controller.
// Implementations are expected to be cheap enough to call after every
// completed file.
type MemoryMonitor interface {
	SampleBytes() uint64
}

// BackpressureController halves effective parallelism when MemoryMonitor
// reports usage above ThresholdBytes, and doubles it back (up to the pool's
// worker count) once usage falls comfortably below half that threshold
// (spec.md §4.10: "may inform a backpressure controller that halves/doubles
// effective parallelism against a configured threshold").
type BackpressureController struct {
	monitor   MemoryMonitor
	threshold uint64
	sem       *semaphore
	current   atomic.Int32
}

func newBackpressureController(monitor MemoryMonitor, thresholdBytes uint64, sem *semaphore, initial int) *BackpressureController {
	c := &BackpressureController{monitor: monitor, threshold: thresholdBytes, sem: sem}
	c.current.Store(int32(initial))
	return c
}

// Effective returns the controller's current view of effective parallelism.
func (c *BackpressureController) Effective() int {
	return int(c.current.Load())
}

// evaluate samples memory and adjusts the semaphore. A nil monitor or zero
// threshold makes this a no-op, leaving the pool at its configured worker
// count.
func (c *BackpressureController) evaluate() {
	if c == nil || c.monitor == nil || c.threshold == 0 {
		return
	}
	used := c.monitor.SampleBytes()
	cur := int(c.current.Load())
	switch {
	case used > c.threshold && cur > 1:
		target := cur / 2
		if target < 1 {
			target = 1
		}
		for i := 0; i < cur-target; i++ {
			if !c.sem.shrink() {
				break
			}
		}
		c.current.Store(int32(target))
	case used < c.threshold/2 && cur < c.sem.max:
		target := cur * 2
		if target > c.sem.max {
			target = c.sem.max
		}
		for i := 0; i < target-cur; i++ {
			if !c.sem.grow() {
				break
			}
		}
		c.current.Store(int32(target))
	}
}
