package jobserver

import (
	"sync"
	"time"

	"github.com/masa-finance/timeline-worker/api/types"
)

// queuedJob is what a worker needs to run a job. The credential travels with
// the queue entry and is never written to the job store.
type queuedJob struct {
	ID         string
	Target     string
	Filter     types.FilterConfig
	Credential string
}

// JobQueue is a bounded FIFO of accepted jobs waiting for a worker.
type JobQueue struct {
	jobs    chan queuedJob
	mu      sync.RWMutex
	closed  bool
	statsMu sync.Mutex
	stats   QueueStats
}

// QueueStats provides real-time metrics about the queue.
type QueueStats struct {
	Depth          int       `json:"depth"`
	Capacity       int       `json:"capacity"`
	Enqueued       int64     `json:"enqueued"`
	Rejected       int64     `json:"rejected"`
	Dequeued       int64     `json:"dequeued"`
	LastUpdateTime time.Time `json:"last_update_time"`
}

func NewJobQueue(size int) *JobQueue {
	if size <= 0 {
		size = 1
	}
	return &JobQueue{
		jobs:  make(chan queuedJob, size),
		stats: QueueStats{LastUpdateTime: time.Now()},
	}
}

// Enqueue adds a job without blocking.
// Returns ErrQueueFull if the queue is at capacity and ErrQueueClosed once Close has been called.
func (q *JobQueue) Enqueue(j queuedJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- j:
		q.record(func(s *QueueStats) { s.Enqueued++ })
		return nil
	default:
		q.record(func(s *QueueStats) { s.Rejected++ })
		return ErrQueueFull
	}
}

// Jobs is the channel workers receive from. It is closed by Close, after
// which the jobs still buffered can be drained.
func (q *JobQueue) Jobs() <-chan queuedJob {
	return q.jobs
}

func (q *JobQueue) markDequeued() {
	q.record(func(s *QueueStats) { s.Dequeued++ })
}

// Close stops accepting jobs. It is idempotent.
func (q *JobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
}

// GetStats returns a snapshot of current queue statistics.
func (q *JobQueue) GetStats() QueueStats {
	q.statsMu.Lock()
	defer q.statsMu.Unlock()

	s := q.stats
	s.Depth = len(q.jobs)
	s.Capacity = cap(q.jobs)
	return s
}

func (q *JobQueue) record(update func(*QueueStats)) {
	q.statsMu.Lock()
	defer q.statsMu.Unlock()
	update(&q.stats)
	q.stats.LastUpdateTime = time.Now()
}
