package worker

import (
	"sync"
	"time"
)

const defaultWorkerIdle = 30 * time.Second

// slot tracks one worker goroutine.
type slot struct {
	worker    *Worker
	idleSince time.Time
	parked    bool
	retired   bool
}

// workerPool keeps between minSize and maxSize workers alive. Idle workers
// park in FIFO order; the janitor stops workers parked longer than idleTTL
// while more than minSize are alive.
type workerPool struct {
	manager *Manager
	minSize int
	maxSize int
	idleTTL time.Duration

	mu     sync.Mutex
	cond   *sync.Cond
	slots  map[int]*slot
	parked []*slot
	seq    int
	closed bool
	done   chan struct{}
}

func newWorkerPool(minSize, maxSize int, idleTTL time.Duration, manager *Manager) *workerPool {
	if idleTTL <= 0 {
		idleTTL = defaultWorkerIdle
	}
	if minSize < 1 {
		minSize = 1
	}
	if maxSize < minSize {
		maxSize = minSize
	}
	p := &workerPool{
		manager: manager,
		minSize: minSize,
		maxSize: maxSize,
		idleTTL: idleTTL,
		slots:   make(map[int]*slot),
		done:    make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	go p.janitor()
	return p
}

// addLocked starts a worker. p.mu must be held.
func (p *workerPool) addLocked() {
	p.seq++
	w := newWorker(p.seq, p, p.manager)
	p.slots[w.id] = &slot{worker: w}
	w.start()
}

// warm starts workers until n are alive.
func (p *workerPool) warm(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && len(p.slots) < n && len(p.slots) < p.maxSize {
		p.addLocked()
	}
}

// acquire blocks until a worker is parked, growing the pool when there is room.
// It returns nil once the pool is closed.
func (p *workerPool) acquire() *Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed {
		if s := p.takeParkedLocked(); s != nil {
			return s.worker
		}
		if len(p.slots) < p.maxSize {
			// parks itself once running
			p.addLocked()
		}
		p.cond.Wait()
	}
	return nil
}

func (p *workerPool) takeParkedLocked() *slot {
	for len(p.parked) > 0 {
		s := p.parked[0]
		p.parked = p.parked[1:]
		if s.retired {
			continue
		}
		s.parked = false
		return s
	}
	return nil
}

// park marks w as waiting for a job.
func (p *workerPool) park(w *Worker) {
	p.mu.Lock()
	s, ok := p.slots[w.id]
	if !ok || s.retired || s.parked {
		p.mu.Unlock()
		return
	}
	s.parked = true
	s.idleSince = time.Now()
	p.parked = append(p.parked, s)
	p.mu.Unlock()
	p.cond.Signal()
}

// retire forgets w after its goroutine exited.
func (p *workerPool) retire(w *Worker) {
	p.mu.Lock()
	if s, ok := p.slots[w.id]; ok {
		s.retired = true
		delete(p.slots, w.id)
	}
	p.mu.Unlock()
	p.cond.Broadcast()
}

func (p *workerPool) stats() (alive, parked int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots), len(p.parked)
}

func (p *workerPool) janitor() {
	ticker := time.NewTicker(p.idleTTL)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			p.reap(now)
		case <-p.done:
			return
		}
	}
}

// reap stops workers idle since before now-idleTTL, never going below minSize.
func (p *workerPool) reap(now time.Time) {
	p.mu.Lock()
	alive := len(p.slots)
	var expired []*slot
	kept := p.parked[:0]
	for _, s := range p.parked {
		switch {
		case s.retired:
		case alive > p.minSize && now.Sub(s.idleSince) >= p.idleTTL:
			s.retired = true
			s.parked = false
			alive--
			expired = append(expired, s)
		default:
			kept = append(kept, s)
		}
	}
	p.parked = kept
	p.mu.Unlock()

	for _, s := range expired {
		select {
		case s.worker.jobs <- Job{Type: Stop}:
		case <-p.done:
			return
		}
	}
}

// close stops every worker and wakes goroutines blocked in acquire.
func (p *workerPool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()
	p.cond.Broadcast()
}
