package jobserver

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/masa-finance/timeline-worker/api/types"
)

// Default values
const (
	defaultMaxSize = 1000
	defaultMaxAge  = time.Hour
)

type storeEntry struct {
	job       types.Job
	timestamp time.Time
	element   *list.Element // pointer to the element in the list
}

// MemoryJobStore keeps jobs in process memory. Jobs that are still pending or
// running are never evicted; terminal jobs are dropped oldest first once the
// store holds more than maxSize jobs, or once they are older than maxAge.
type MemoryJobStore struct {
	lock    sync.Mutex
	entries map[string]*storeEntry
	order   *list.List // least recently written at Front
	maxSize int
	maxAge  time.Duration
	done    chan struct{}
	once    sync.Once
}

func NewMemoryJobStore(maxSize int, maxAge time.Duration) *MemoryJobStore {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	s := &MemoryJobStore{
		entries: make(map[string]*storeEntry),
		order:   list.New(),
		maxSize: maxSize,
		maxAge:  maxAge,
		done:    make(chan struct{}),
	}
	go s.periodicCleanup()
	return s
}

func (s *MemoryJobStore) Create(_ context.Context, target string, filter types.FilterConfig) (string, error) {
	job := newJob(target, filter)

	s.lock.Lock()
	defer s.lock.Unlock()
	entry := &storeEntry{job: job, timestamp: time.Now()}
	entry.element = s.order.PushBack(job.ID)
	s.entries[job.ID] = entry
	s.evictOverflow(entry)
	return job.ID, nil
}

func (s *MemoryJobStore) MarkRunning(_ context.Context, id string) error {
	return s.update(id, types.JobRunning, func(j *types.Job) {
		j.StartedAt = now()
	})
}

func (s *MemoryJobStore) UpdateStats(_ context.Context, id string, stats types.Stats) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return ErrJobNotFound
	}
	if entry.job.Status != types.JobRunning {
		return errNotRunning(id, entry.job.Status)
	}
	entry.job.Stats = stats
	s.touch(entry)
	return nil
}

func (s *MemoryJobStore) MarkCompleted(_ context.Context, id string, stats types.Stats, artifactRef string) error {
	return s.update(id, types.JobCompleted, func(j *types.Job) {
		j.Stats = stats
		j.ArtifactRef = artifactRef
		j.CompletedAt = now()
	})
}

func (s *MemoryJobStore) MarkFailed(_ context.Context, id string, errorMessage string) error {
	return s.update(id, types.JobFailed, func(j *types.Job) {
		j.ErrorMessage = errorMessage
		j.CompletedAt = now()
	})
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (types.Job, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return types.Job{}, ErrJobNotFound
	}
	if s.expired(entry, time.Now()) {
		s.remove(entry)
		return types.Job{}, ErrJobNotFound
	}
	return entry.job, nil
}

// Len returns the number of jobs currently held.
func (s *MemoryJobStore) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.entries)
}

// Close stops the background cleanup.
func (s *MemoryJobStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *MemoryJobStore) update(id string, to types.JobStatus, apply func(*types.Job)) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return ErrJobNotFound
	}
	if err := checkTransition(id, entry.job.Status, to); err != nil {
		return err
	}
	entry.job.Status = to
	apply(&entry.job)
	s.touch(entry)
	if to.IsTerminal() {
		s.evictOverflow(entry)
	}
	return nil
}

func (s *MemoryJobStore) touch(entry *storeEntry) {
	entry.timestamp = time.Now()
	s.order.MoveToBack(entry.element)
}

func (s *MemoryJobStore) remove(entry *storeEntry) {
	s.order.Remove(entry.element)
	delete(s.entries, entry.job.ID)
}

func (s *MemoryJobStore) expired(entry *storeEntry, at time.Time) bool {
	return entry.job.Status.IsTerminal() && at.Sub(entry.timestamp) > s.maxAge
}

// evictOverflow drops the least recently written terminal jobs until the
// store is back within maxSize. The entry just written is kept so its final
// state stays readable; it becomes a candidate on the next write. It must be
// called with the lock held.
func (s *MemoryJobStore) evictOverflow(written *storeEntry) {
	for e := s.order.Front(); e != nil && len(s.entries) > s.maxSize; {
		next := e.Next()
		entry := s.entries[e.Value.(string)]
		if entry != written && entry.job.Status.IsTerminal() {
			s.remove(entry)
		}
		e = next
	}
}

func (s *MemoryJobStore) periodicCleanup() {
	ticker := time.NewTicker(s.maxAge / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

func (s *MemoryJobStore) cleanupExpired() {
	s.lock.Lock()
	defer s.lock.Unlock()
	at := time.Now()
	for e := s.order.Front(); e != nil; {
		next := e.Next()
		entry := s.entries[e.Value.(string)]
		if s.expired(entry, at) {
			s.remove(entry)
		}
		e = next
	}
}
