package cron

import (
	"context"
	"fmt"
)

// Job is a scheduled task. Run reports how many rows it changed.
type Job interface {
	Name() string
	Run(ctx context.Context) (int, error)
}

// Registry tracks registered cron jobs in registration order.
type Registry struct {
	jobs  []Job
	names map[string]bool
}

// NewRegistry builds a registry preloaded with jobs. Nil jobs are skipped.
func NewRegistry(jobs ...Job) (*Registry, error) {
	registry := &Registry{names: map[string]bool{}}
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Register adds a job. Job names must be unique since they label metrics.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	if r.names == nil {
		r.names = map[string]bool{}
	}
	if r.names[job.Name()] {
		return fmt.Errorf("cron job %q already registered", job.Name())
	}
	r.names[job.Name()] = true
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}
