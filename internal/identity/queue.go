package identity

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/bus-ticketing-crm/internal/model"
)

// Job is a pending phone-to-user link. When ExternalID is set the
// messenger identity is stored again before linking.
type Job struct {
	ID            string         `json:"id"`
	Platform      model.Platform `json:"platform,omitempty"`
	ExternalID    string         `json:"external_id,omitempty"`
	Phone         string         `json:"phone"`
	Name          string         `json:"name"`
	Attempts      int            `json:"attempts"`
	NextAttemptAt time.Time      `json:"next_attempt_at"`
	LastError     string         `json:"last_error,omitempty"`
}

// Delivery is a dequeued job. Exactly one of Ack or Nack must be called:
// Ack drops it from the queue, Nack returns it for redelivery.
type Delivery struct {
	Job  Job
	ack  func() error
	nack func() error
}

// NewDelivery wraps a job with its acknowledgement callbacks.
func NewDelivery(job Job, ack, nack func() error) Delivery {
	return Delivery{Job: job, ack: ack, nack: nack}
}

func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

func (d Delivery) Nack() error {
	if d.nack == nil {
		return nil
	}
	return d.nack()
}

// Queue is an at-least-once work queue of link jobs. Dequeue returns
// ok=false when the queue is empty.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (d Delivery, ok bool, err error)
}

// MemoryQueue is a FIFO Queue held in process memory. Jobs are lost on
// restart.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs []Job
}

func NewMemoryQueue() *MemoryQueue { return &MemoryQueue{} }

func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *MemoryQueue) Dequeue(_ context.Context) (Delivery, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return Delivery{}, false, nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	nack := func() error {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.jobs = append([]Job{job}, q.jobs...)
		return nil
	}
	return NewDelivery(job, nil, nack), true, nil
}

// Len returns the number of queued jobs.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Snapshot returns a copy of the queued jobs in order.
func (q *MemoryQueue) Snapshot() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Job(nil), q.jobs...)
}
