package worker

import "context"

type JobType string

const (
	Reply JobType = "reply"
	Stop  JobType = "stop"
)

// Job is a unit of work handed from the dispatcher to a worker.
type Job struct {
	Type   JobType
	UserID string

	reply  *replyTask
	finish func()
}

type replyTask struct {
	ctx      context.Context
	req      ReplyRequest
	resultCh chan replyResult
}

type replyResult struct {
	result *ReplyResult
	err    error
}

// fail answers a job that never reached a worker.
func (j Job) fail(err error) {
	if j.reply != nil {
		j.reply.resultCh <- replyResult{err: err}
	}
}

// Worker runs jobs one at a time on its own goroutine.
type Worker struct {
	id      int
	jobs    chan Job
	pool    *workerPool
	manager *Manager
}

func newWorker(id int, pool *workerPool, manager *Manager) *Worker {
	return &Worker{id: id, jobs: make(chan Job), pool: pool, manager: manager}
}

func (w *Worker) start() {
	go func() {
		defer w.pool.retire(w)
		for {
			w.pool.park(w)
			select {
			case job := <-w.jobs:
				if job.Type == Stop {
					return
				}
				w.run(job)
			case <-w.pool.done:
				return
			}
		}
	}()
}

func (w *Worker) run(job Job) {
	if job.finish != nil {
		defer job.finish()
	}
	if job.Type == Reply {
		res, err := w.manager.handleReply(job.reply)
		job.reply.resultCh <- replyResult{result: res, err: err}
	}
}
