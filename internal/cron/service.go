package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	defaultInterval   = time.Hour
	defaultJobTimeout = 10 * time.Minute
)

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// JobTimeout bounds a single job run; zero means ten minutes.
	JobTimeout time.Duration
}

// Service runs the registry once per interval. Only the instance holding the
// lock runs a cycle; the others skip it.
type Service struct {
	logg       *logger.Logger
	jobs       *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	s := &Service{
		logg:       params.Logger,
		jobs:       params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
	}
	if s.jobs == nil {
		s.jobs = NewRegistry()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.jobTimeout <= 0 {
		s.jobTimeout = defaultJobTimeout
	}
	return s, nil
}

// Run starts with an immediate cycle, then one per tick until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle finished with errors", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs every job in order under the lock and returns their combined
// errors. One failing job does not prevent the rest from running.
func (s *Service) RunOnce(ctx context.Context) (err error) {
	acquired, lockErr := s.lock.Acquire(ctx)
	if lockErr != nil {
		return fmt.Errorf("cron lock: %w", lockErr)
	}
	if !acquired {
		s.logg.Info(ctx, "cron lock held elsewhere, skipping cycle")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "cron lock release failed", relErr)
		}
	}()

	for i, job := range s.jobs.Jobs() {
		if i > 0 && ctx.Err() != nil {
			return multierr.Append(err, ctx.Err())
		}
		err = multierr.Append(err, s.runJob(ctx, job))
	}
	return err
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	name := job.Name()
	jobCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()
	jobCtx = s.logg.WithFields(jobCtx, map[string]any{"event": "cron.job", "job": name})

	start := time.Now()
	err := job.Run(jobCtx)
	elapsed := time.Since(start)
	s.metrics.ObserveDuration(name, elapsed)

	logCtx := s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.metrics.IncFailure(name)
		s.logg.Error(logCtx, "cron job failed", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	s.metrics.IncSuccess(name)
	s.logg.Info(logCtx, "cron job completed")
	return nil
}
