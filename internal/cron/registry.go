package cron

import "context"

// Job is a maintenance task run once per cron cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry is the ordered job list of one cron worker.
type Registry struct {
	jobs []Job
}

// NewRegistry skips nil jobs, so optional jobs can be passed unconditionally.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{jobs: make([]Job, 0, len(jobs))}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

func (r *Registry) Register(job Job) {
	if job != nil {
		r.jobs = append(r.jobs, job)
	}
}

func (r *Registry) Jobs() []Job {
	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}
