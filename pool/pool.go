// Package pool provides a bounded worker pool for running independent
// tasks, used to decode many containers in parallel.
package pool

import (
	"runtime"
	"sync"
)

type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// New starts a pool with the given number of workers. Zero or negative
// counts fall back to the number of CPUs.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers <= 0 {
		workers = 2
	}

	p := &Pool{tasks: make(chan func())}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit queues a task. It blocks while all workers are busy and the
// queue is full. Submitting after Shutdown panics.
func (p *Pool) Submit(task func()) {
	p.tasks <- task
}

// Shutdown stops accepting tasks and waits until every queued task has
// finished.
func (p *Pool) Shutdown() {
	p.closeOnce.Do(func() { close(p.tasks) })
	p.wg.Wait()
}
