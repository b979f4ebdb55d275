// Package loop implements the parallel loop engine of the simulator core
// (component B): a fork-join partition of [0, N) across threads, a nested
// execute/barrier/single_execute protocol for phased kernels, and the
// first-structured-exception-wins failure collection rule of spec.md §4.2.
//
// The policy split (Sequential inline vs Parallel goroutine pool) and the
// error-channel join pattern are grounded on the teacher's worker pools in
// qc/simulator/parstat_runner.go and parchan_runner.go; the barrier/
// single_execute protocol is grounded on
// original_source/ket/include/ket/utility/parallel/loop_n.hpp's
// mutex+condition-variable execute/barrier/single_execute classes.
package loop

import (
	"errors"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Policy selects how LoopN partitions its iteration space.
type Policy interface {
	isPolicy()
	numWorkers(n uint64) int
}

// Sequential runs the loop body inline on a single logical thread (id 0).
type Sequential struct{}

func (Sequential) isPolicy()            {}
func (Sequential) numWorkers(uint64) int { return 1 }

// Parallel runs the loop body across NumThreads goroutines. NumThreads<=0
// is clamped to 1; NumThreads above runtime.NumCPU() is clamped down to
// it, per spec.md §4.2.
type Parallel struct {
	NumThreads int
}

func (Parallel) isPolicy() {}

func (p Parallel) numWorkers(n uint64) int {
	workers := p.NumThreads
	if workers <= 0 {
		workers = 1
	}
	if max := runtime.NumCPU(); workers > max {
		workers = max
	}
	if uint64(workers) > n && n > 0 {
		workers = int(n)
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// ErrNonStandardFailure is raised at join when some thread panicked with a
// value that does not implement error, and no thread reported a
// structured error first.
var ErrNonStandardFailure = errors.New("loop: nonstandard failure in kernel body")

// Body is the per-index kernel invoked by LoopN. It must never block or
// suspend (spec.md §4.2); synchronization is limited to the nested
// Execute/Barrier/SingleExecute protocol.
type Body func(i uint64, threadID int)

// LoopN partitions [0, n) across policy's worker count and calls body(i,
// threadID) for each i. There is no ordering guarantee between threads;
// within a single thread, i is ascending. The first structured error
// observed by any worker is returned; if only non-structured panics
// occurred, ErrNonStandardFailure is returned instead.
func LoopN(policy Policy, n uint64, body Body) error {
	workers := policy.numWorkers(n)
	if workers <= 1 {
		return runSequential(n, body)
	}
	return runParallel(workers, n, body)
}

func runSequential(n uint64, body Body) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = toError(r)
		}
	}()
	for i := uint64(0); i < n; i++ {
		body(i, 0)
	}
	return nil
}

func runParallel(workers int, n uint64, body Body) error {
	per := n / uint64(workers)
	extra := n % uint64(workers)

	var g errgroup.Group
	var mu sync.Mutex
	var structured error
	nonStandard := false
	var start uint64
	for w := 0; w < workers; w++ {
		cnt := per
		if uint64(w) < extra {
			cnt++
		}
		lo, hi := start, start+cnt
		start = hi
		threadID := w
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					if e, ok := r.(error); !ok {
						nonStandard = true
					} else if structured == nil {
						structured = e
					}
					mu.Unlock()
				}
			}()
			for i := lo; i < hi; i++ {
				body(i, threadID)
			}
			return nil
		})
	}
	_ = g.Wait()
	if structured != nil {
		return structured
	}
	if nonStandard {
		return ErrNonStandardFailure
	}
	return nil
}

func toError(r interface{}) error {
	if e, ok := r.(error); ok {
		return e
	}
	return ErrNonStandardFailure
}

// Executor backs the nested Execute/Barrier/SingleExecute protocol shared
// by every thread participating in one LoopN call. Construct one per
// kernel invocation that needs phased synchronization (e.g. a cumulative
// probability scan for complete measurement) and pass it down to every
// worker.
type Executor struct {
	numThreads int

	mu              sync.Mutex
	cond            *sync.Cond
	barrierCounters []int
}

// NewExecutor creates an Executor for numThreads participants.
func NewExecutor(numThreads int) *Executor {
	e := &Executor{numThreads: numThreads, barrierCounters: make([]int, 0, 8)}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Barrier blocks the calling thread until all numThreads participants have
// called Barrier for this phase, then releases them together.
func (e *Executor) Barrier() {
	e.mu.Lock()
	defer e.mu.Unlock()

	index := len(e.barrierCounters) - 1
	if index < 0 || e.barrierCounters[index] == 0 {
		e.barrierCounters = append(e.barrierCounters, e.numThreads)
		index = len(e.barrierCounters) - 1
	}

	e.barrierCounters[index]--
	if e.barrierCounters[index] == 0 {
		e.cond.Broadcast()
		return
	}
	for e.barrierCounters[index] != 0 {
		e.cond.Wait()
	}
}

// SingleExecute runs fn on exactly one of the calling threads (whichever
// arrives first for this phase); every other thread blocks until fn has
// returned, matching ket's single_execute semantics.
func (e *Executor) SingleExecute(fn func()) {
	e.mu.Lock()
	index := len(e.barrierCounters) - 1
	first := index < 0 || e.barrierCounters[index] == 0
	if first {
		e.barrierCounters = append(e.barrierCounters, e.numThreads)
		index = len(e.barrierCounters) - 1
	}
	e.mu.Unlock()

	if first {
		fn()
	}

	e.mu.Lock()
	e.barrierCounters[index]--
	if e.barrierCounters[index] == 0 {
		e.cond.Broadcast()
	} else {
		for e.barrierCounters[index] != 0 {
			e.cond.Wait()
		}
	}
	e.mu.Unlock()
}
