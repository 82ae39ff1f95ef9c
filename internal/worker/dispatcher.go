package worker

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrDispatcherBusy   = errors.New("too many pending requests, please retry")
	ErrDispatcherClosed = errors.New("dispatcher closed")
	ErrJobCancelled     = errors.New("request cancelled")
)

type userQueue struct {
	jobs     []Job
	enqueued bool // waiting in the ready list
	active   bool // a job of this user is running
}

// Dispatcher fans jobs out to the worker pool. Users take turns in LRU order
// and each user has at most one job running at a time.
type Dispatcher struct {
	pool     *workerPool
	JobQueue chan Job // interface for outer jobs get in the dispatcher
	logger   *zap.Logger

	mu        sync.Mutex
	capacity  int
	pending   int                   // accepted jobs not yet handed to a worker
	queues    map[string]*userQueue // job queue for each user
	ready     *list.List            // LRU queue storing user IDs
	positions map[string]*list.Element
	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewDispatcher(minWorkers, maxWorkers, queueSize int, manager *Manager, idleTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{
		pool:      newWorkerPool(minWorkers, maxWorkers, idleTimeout, manager),
		JobQueue:  make(chan Job, queueSize),
		logger:    logger,
		capacity:  queueSize,
		queues:    make(map[string]*userQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	d.pool.warm(d.pool.minSize)

	go d.run()
	return d
}

// Submit queues job without blocking. Once queueSize jobs are waiting,
// across all users, Submit yields ErrDispatcherBusy.
func (d *Dispatcher) Submit(job Job) error {
	select {
	case <-d.done:
		return ErrDispatcherClosed
	default:
	}
	d.mu.Lock()
	if d.pending >= d.capacity {
		d.mu.Unlock()
		return ErrDispatcherBusy
	}
	d.pending++
	d.mu.Unlock()
	select {
	case d.JobQueue <- job:
		return nil
	default:
		d.release(1)
		return ErrDispatcherBusy
	}
}

// release gives back n slots of the pending budget.
func (d *Dispatcher) release(n int) {
	if n == 0 {
		return
	}
	d.mu.Lock()
	d.pending -= n
	d.mu.Unlock()
}

func (d *Dispatcher) run() {
	for {
		// dispatch one job of user in the front of LRU queue
		if d.dispatchOne() {
			select {
			case job := <-d.JobQueue:
				d.enqueueJob(job)
			case <-d.done:
				d.drain()
				return
			default:
			}
			continue
		}
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		case <-d.wake:
		case <-d.done:
			d.drain()
			return
		}
	}
}

// CancelUser drops every queued job of the user. A running job is left to finish.
func (d *Dispatcher) CancelUser(userID string) {
	d.mu.Lock()
	q := d.queues[userID]
	var dropped []Job
	if q != nil {
		dropped = q.jobs
		q.jobs = nil
		if !q.active {
			delete(d.queues, userID)
		}
	}
	if elem, ok := d.positions[userID]; ok {
		d.ready.Remove(elem)
		delete(d.positions, userID)
		if q != nil {
			q.enqueued = false
		}
	}
	d.pending -= len(dropped)
	d.mu.Unlock()

	for _, job := range dropped {
		job.fail(ErrJobCancelled)
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.UserID]
	if q == nil {
		q = &userQueue{}
		d.queues[job.UserID] = q
	}
	q.jobs = append(q.jobs, job)
	d.markReadyLocked(job.UserID, q)
}

func (d *Dispatcher) markReadyLocked(userID string, q *userQueue) {
	if q.enqueued || q.active || len(q.jobs) == 0 {
		return
	}
	q.enqueued = true
	d.positions[userID] = d.ready.PushBack(userID)
}

// dispatchOne get first user in LRU and dispatch its job
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	userID := elem.Value.(string)
	q := d.queues[userID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.enqueued = false
	q.active = true
	d.pending--
	d.ready.Remove(elem)
	delete(d.positions, userID)
	d.mu.Unlock()

	job.finish = func() { d.complete(userID) }

	w := d.pool.acquire()
	if w == nil {
		job.fail(ErrDispatcherClosed)
		return true
	}
	if d.logger != nil {
		d.logger.Debug("dispatch job",
			zap.String("type", string(job.Type)),
			zap.String("user_id", userID),
			zap.Int("worker", w.id))
	}
	select {
	case w.jobs <- job:
	case <-d.pool.done:
		job.fail(ErrDispatcherClosed)
	}
	return true
}

// complete lets the user's next job through once the running one returns.
func (d *Dispatcher) complete(userID string) {
	d.mu.Lock()
	if q, ok := d.queues[userID]; ok {
		q.active = false
		if len(q.jobs) == 0 {
			delete(d.queues, userID)
		} else {
			d.markReadyLocked(userID, q)
		}
	}
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// drain fails every job still waiting once the dispatcher closes.
func (d *Dispatcher) drain() {
	d.mu.Lock()
	var pending []Job
	for _, q := range d.queues {
		pending = append(pending, q.jobs...)
		q.jobs = nil
	}
	d.ready.Init()
	d.positions = make(map[string]*list.Element)
	d.mu.Unlock()

	for {
		select {
		case job := <-d.JobQueue:
			pending = append(pending, job)
		default:
			d.release(len(pending))
			for _, job := range pending {
				job.fail(ErrDispatcherClosed)
			}
			return
		}
	}
}

// Close stops dispatching and shuts the pool down.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
		d.pool.close()
	})
}
