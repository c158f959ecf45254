package memory

import (
	"context"
	"fmt"
	"sync"

	"auction-marketplace/internal/domain"
)

// JobQueue is a bounded FIFO backed by a channel. A full or closed queue
// reports domain.ErrQueueUnavailable so callers take their fallback path.
type JobQueue struct {
	jobs   chan domain.Job
	mu     sync.RWMutex
	closed bool
}

func NewJobQueue(capacity int) *JobQueue {
	return &JobQueue{jobs: make(chan domain.Job, capacity)}
}

func (q *JobQueue) Enqueue(ctx context.Context, job domain.Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("enqueue %s: %w", job.JobID(), domain.ErrQueueUnavailable)
	}
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("enqueue %s: queue full: %w", job.JobID(), domain.ErrQueueUnavailable)
	}
}

func (q *JobQueue) Dequeue(ctx context.Context) (domain.Job, error) {
	select {
	case job, ok := <-q.jobs:
		if !ok {
			return nil, domain.ErrQueueUnavailable
		}
		return job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports the number of jobs waiting.
func (q *JobQueue) Len() int {
	return len(q.jobs)
}

// Close stops accepting jobs; queued jobs remain available to Dequeue.
func (q *JobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
}
