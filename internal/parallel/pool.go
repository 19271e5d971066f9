// Package parallel provides the worker pool and work partitioning shared by
// the per-pixel and per-cell stages of the segmentation.
//
// Work is expressed as a slice of closures over disjoint pixel ranges
// (row bands or tiles). [Pool.ExecuteAll] returns only after every closure
// ran, which is the barrier the automaton relies on between passes.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a fixed set of goroutines, each owning a queue. Idle workers steal
// from the other queues so uneven bands do not stall a pass.
//
// Pool is safe for concurrent use.
type Pool struct {
	workers int
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	// mu is held shared while enqueueing and exclusively by Close, so no
	// item is sent after the workers start draining.
	mu      sync.RWMutex
	running atomic.Bool
}

// NewPool starts a pool of the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)
	p := &Pool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)
	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	own := p.queues[id]
	for {
		select {
		case <-p.done:
			drain(own)
			return
		case work := <-own:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				drain(own)
				return
			case work := <-own:
				work()
			}
		}
	}
}

func drain(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

func (p *Pool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case work := <-p.queues[i]:
			return work
		default:
		}
	}
	return nil
}

// ExecuteAll distributes work round-robin across workers and blocks until
// every item completed. If the pool is closed the work runs on the calling
// goroutine so callers never observe a partially executed batch.
func (p *Pool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	if !p.running.Load() {
		for _, fn := range work {
			fn()
		}
		return
	}
	var batch sync.WaitGroup
	batch.Add(len(work))
	for i, fn := range work {
		fn := fn
		wrapped := func() {
			defer batch.Done()
			fn()
		}
		p.mu.RLock()
		if !p.running.Load() {
			p.mu.RUnlock()
			wrapped()
			continue
		}
		p.queues[i%p.workers] <- wrapped
		p.mu.RUnlock()
	}
	batch.Wait()
}

// Close stops the workers after draining queued work. Close is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.mu.Unlock()
		return
	}
	close(p.done)
	p.mu.Unlock()
	p.wg.Wait()
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int { return p.workers }
