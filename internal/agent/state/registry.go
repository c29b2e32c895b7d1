// Package state holds the process-wide job registry.
package state

import (
	"sync"
	"sync/atomic"

	"github.com/simpleremote/simpleremote/internal/agent/core/job"
)

// Registry maps job ids to live jobs. Id allocation is an atomic counter
// starting at 1; uniqueness is per process lifetime, not per host.
type Registry struct {
	mu     sync.RWMutex
	jobs   map[int64]*job.Job
	nextID atomic.Int64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[int64]*job.Job),
	}
}

// NextID allocates the next job id
func (r *Registry) NextID() int64 {
	return r.nextID.Add(1)
}

// Put inserts or replaces a job under its id
func (r *Registry) Put(j *job.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.ID] = j
}

// TryGet returns the job for id, or false on a registry miss
func (r *Registry) TryGet(id int64) (*job.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	return j, ok
}

// TryRemove removes and returns the job for id, or false on a miss
func (r *Registry) TryRemove(id int64) (*job.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if ok {
		delete(r.jobs, id)
	}
	return j, ok
}

// Snapshot returns a consistent id -> isDone view of all tracked jobs
func (r *Registry) Snapshot() map[int64]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[int64]bool, len(r.jobs))
	for id, j := range r.jobs {
		snapshot[id] = j.IsDone()
	}
	return snapshot
}

// Len returns the number of tracked jobs
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
