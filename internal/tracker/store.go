package tracker

import (
	"sync"

	"github.com/subgen/api/internal/model"
)

// StateStore holds one job record per key. A key with no record is Absent.
// Implementations must make each method atomic with respect to the others.
type StateStore interface {
	Get(key string) (model.Job, bool)
	// CompareAndSwap stores next if the current state of key is from
	// (JobStateAbsent meaning no record) and reports whether it did.
	CompareAndSwap(key string, from model.JobState, next model.Job) bool
	// CompareAndDelete removes the record if its state is from.
	CompareAndDelete(key string, from model.JobState) bool
	// Range calls fn for each record until fn returns false.
	Range(fn func(model.Job) bool)
	Len() int
}

// MemoryStore is a StateStore backed by a map. Its lock is held only for
// map access.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]model.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]model.Job)}
}

func (s *MemoryStore) Get(key string) (model.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[key]
	return job, ok
}

func (s *MemoryStore) CompareAndSwap(key string, from model.JobState, next model.Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stateOf(s.jobs, key) != from {
		return false
	}
	s.jobs[key] = next
	return true
}

func (s *MemoryStore) CompareAndDelete(key string, from model.JobState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[key]
	if !ok || job.State != from {
		return false
	}
	delete(s.jobs, key)
	return true
}

func (s *MemoryStore) Range(fn func(model.Job) bool) {
	s.mu.RLock()
	snapshot := make([]model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		snapshot = append(snapshot, job)
	}
	s.mu.RUnlock()

	for _, job := range snapshot {
		if !fn(job) {
			return
		}
	}
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func stateOf(jobs map[string]model.Job, key string) model.JobState {
	if job, ok := jobs[key]; ok {
		return job.State
	}
	return model.JobStateAbsent
}
