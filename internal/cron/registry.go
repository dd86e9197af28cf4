package cron

import (
	"context"
	"fmt"
	"time"
)

// Job is one unit of periodic maintenance run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Cadenced jobs run at most once per Every(). Jobs without a cadence run on
// every cycle.
type Cadenced interface {
	Every() time.Duration
}

type entry struct {
	job     Job
	every   time.Duration
	lastRun time.Time
}

// Registry holds jobs in registration order, keyed by unique name.
type Registry struct {
	entries []*entry
	names   map[string]struct{}
}

// NewRegistry registers jobs in order. Nil jobs are skipped; a duplicate name
// panics because it is a wiring mistake.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{names: map[string]struct{}{}}
	for _, job := range jobs {
		if job == nil {
			continue
		}
		if err := registry.Register(job); err != nil {
			panic(err)
		}
	}
	return registry
}

func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	if r.names == nil {
		r.names = map[string]struct{}{}
	}
	if _, exists := r.names[job.Name()]; exists {
		return fmt.Errorf("cron job %q already registered", job.Name())
	}
	var every time.Duration
	if cadenced, ok := job.(Cadenced); ok {
		every = cadenced.Every()
	}
	r.names[job.Name()] = struct{}{}
	r.entries = append(r.entries, &entry{job: job, every: every})
	return nil
}

// Jobs returns a copy of the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.entries))
	for _, e := range r.entries {
		jobs = append(jobs, e.job)
	}
	return jobs
}

// due returns the jobs whose cadence has elapsed at now and stamps them as run.
func (r *Registry) due(now time.Time) []Job {
	var jobs []Job
	for _, e := range r.entries {
		if e.every > 0 && !e.lastRun.IsZero() && now.Sub(e.lastRun) < e.every {
			continue
		}
		e.lastRun = now
		jobs = append(jobs, e.job)
	}
	return jobs
}
