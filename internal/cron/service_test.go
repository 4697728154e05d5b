package cron

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type fakeLock struct {
	held     bool
	err      error
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (j *testJob) Name() string { return j.name }

func (j *testJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestRunOnceRunsEveryJobDespiteFailures(t *testing.T) {
	ok := &testJob{name: "ok"}
	failing := &testJob{name: "failing", err: errors.New("boom")}
	last := &testJob{name: "last"}
	lock := &fakeLock{}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(ok, failing, last),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	err = svc.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "failing: boom") {
		t.Fatalf("expected the failing job error, got %v", err)
	}
	for _, job := range []*testJob{ok, failing, last} {
		if job.runs != 1 {
			t.Fatalf("job %s ran %d times", job.name, job.runs)
		}
	}
	if lock.held || lock.releases != 1 {
		t.Fatalf("expected lock released once, held=%v releases=%d", lock.held, lock.releases)
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "job"}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{held: true},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job should not run without the lock")
	}
}

func TestRunOnceReportsLockError(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Logger: testLogger(),
		Lock:   &fakeLock{err: errors.New("redis down")},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.RunOnce(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "job"}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected the initial cycle to run, got %d runs", job.runs)
	}
}

type slowJob struct{}

func (slowJob) Name() string { return "slow" }

func (slowJob) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunOnceBoundsEachJob(t *testing.T) {
	after := &testJob{name: "after"}
	svc, err := NewService(ServiceParams{
		Logger:     testLogger(),
		Registry:   NewRegistry(slowJob{}, after),
		Lock:       &fakeLock{},
		JobTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	err = svc.RunOnce(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if after.runs != 1 {
		t.Fatal("job after a timed out job should still run")
	}
}

func TestRunOnceStopsBetweenJobsOnCancel(t *testing.T) {
	first := &testJob{name: "first"}
	second := &testJob{name: "second"}
	ctx, cancel := context.WithCancel(context.Background())
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(first, cancelJob{cancel}, second),
		Lock:     &fakeLock{},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err := svc.RunOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if first.runs != 1 || second.runs != 0 {
		t.Fatalf("unexpected runs first=%d second=%d", first.runs, second.runs)
	}
}

type cancelJob struct{ cancel context.CancelFunc }

func (cancelJob) Name() string { return "cancel" }

func (j cancelJob) Run(context.Context) error {
	j.cancel()
	return nil
}

func TestRegistryIgnoresNilAndCopies(t *testing.T) {
	a := &testJob{name: "a"}
	registry := NewRegistry(a, nil)
	registry.Register(nil)
	registry.Register(&testJob{name: "b"})

	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != a {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatal("registry slice leaked to caller")
	}
}
