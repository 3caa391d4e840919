package processor

import (
	"runtime"
	"sync"
)

// maxDefaultWorkers caps the auto-sized pool on large machines.
const maxDefaultWorkers = 120

// Task is a unit of work run by the pool
type Task func()

// Pool runs submitted tasks on a fixed set of long-lived workers
type Pool struct {
	queue   chan Task
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
	workers int
}

// DefaultWorkerCount returns twice the available CPUs, capped at 120
func DefaultWorkerCount() int {
	n := runtime.NumCPU() * 2
	if n > maxDefaultWorkers {
		n = maxDefaultWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// NewPool creates a pool and starts its workers. A non-positive worker
// count selects DefaultWorkerCount.
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkerCount()
	}
	if queueSize < 0 {
		queueSize = 0
	}

	p := &Pool{
		queue:   make(chan Task, queueSize),
		workers: workers,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	return p
}

// Workers returns the number of workers in the pool
func (p *Pool) Workers() int {
	return p.workers
}

// Submit queues a task, blocking while the queue is full. It returns
// false without running the task once Stop has been called.
func (p *Pool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return false
	}
	p.queue <- task
	return true
}

// Stop rejects further submissions, lets the workers finish every task
// already queued, and waits for them to exit. It is safe to call more
// than once.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// worker runs tasks until the queue is closed and drained
func (p *Pool) worker() {
	defer p.wg.Done()

	for task := range p.queue {
		task()
	}
}
