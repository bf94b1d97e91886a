package queue

import (
	"context"
	"sync"

	"github.com/viant/asyncauth"
)

// MemoryQueue is an in-process queue for development and tests.
type MemoryQueue struct {
	mux      sync.Mutex
	pending  []*asyncauth.Job
	inFlight map[string]*asyncauth.Job
	dead     []*asyncauth.Job
	ready    chan struct{}
	closed   chan struct{}
	once     sync.Once
}

// NewMemoryQueue creates an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		inFlight: map[string]*asyncauth.Job{},
		ready:    make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *asyncauth.Job) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}
	q.mux.Lock()
	q.pending = append(q.pending, job)
	q.mux.Unlock()
	q.signal()
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*asyncauth.Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if job := q.pop(); job != nil {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.closed:
			return nil, ErrClosed
		case <-q.ready:
		}
	}
}

func (q *MemoryQueue) Ack(ctx context.Context, job *asyncauth.Job) error {
	q.mux.Lock()
	delete(q.inFlight, job.ID)
	q.mux.Unlock()
	return nil
}

func (q *MemoryQueue) Fail(ctx context.Context, job *asyncauth.Job, cause error) (bool, error) {
	recordFailure(job, cause)
	dead := shouldDeadLetter(job, cause)
	q.mux.Lock()
	delete(q.inFlight, job.ID)
	if dead {
		q.dead = append(q.dead, job)
	} else {
		q.pending = append(q.pending, job)
	}
	q.mux.Unlock()
	if !dead {
		q.signal()
	}
	return dead, nil
}

// Close wakes blocked consumers with ErrClosed.
func (q *MemoryQueue) Close() {
	q.once.Do(func() { close(q.closed) })
}

// Len returns the number of pending jobs.
func (q *MemoryQueue) Len() int {
	q.mux.Lock()
	defer q.mux.Unlock()
	return len(q.pending)
}

// InFlight returns the number of delivered, unsettled jobs.
func (q *MemoryQueue) InFlight() int {
	q.mux.Lock()
	defer q.mux.Unlock()
	return len(q.inFlight)
}

// DeadLetters returns dead-lettered jobs.
func (q *MemoryQueue) DeadLetters() []*asyncauth.Job {
	q.mux.Lock()
	defer q.mux.Unlock()
	return append([]*asyncauth.Job(nil), q.dead...)
}

func (q *MemoryQueue) pop() *asyncauth.Job {
	q.mux.Lock()
	defer q.mux.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	job := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	job.Attempt++
	q.inFlight[job.ID] = job
	if len(q.pending) > 0 {
		q.signalLocked()
	}
	return job
}

func (q *MemoryQueue) signal() {
	q.mux.Lock()
	q.signalLocked()
	q.mux.Unlock()
}

func (q *MemoryQueue) signalLocked() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
