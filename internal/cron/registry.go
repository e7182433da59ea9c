package cron

import (
	"context"
	"sync"
)

// Job represents a scheduled task run by the service.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry tracks scheduled jobs in registration order.
type Registry struct {
	mu   sync.RWMutex
	jobs []Job
}

// NewRegistry builds a registry preloaded with the provided jobs.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register adds a job. Nil jobs and repeated names are ignored.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.jobs {
		if existing.Name() == job.Name() {
			return
		}
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}
