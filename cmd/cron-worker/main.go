package main

import (
	"context"
	"errors"
	"os"

	"github.com/angelmondragon/storefront-backend/internal/bootstrap"
	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

func main() {
	proc := bootstrap.Start("cron-worker", bootstrap.Needs{Redis: true})
	defer proc.Close()
	ctx, stop := proc.SignalContext()
	defer stop()
	cfg, logg := proc.Config, proc.Logger

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(proc.Redis, "cron-worker:"+env, cfg.Cron.LockTTL)
	proc.Must(ctx, "failed to create cron lock", err)

	outboxRepo := outbox.NewRepository(proc.DB.DB())
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionParams{
		Logger:        logg,
		DB:            proc.DB,
		Repository:    outboxRepo,
		RetentionDays: cfg.Cron.OutboxRetentionDay,
		MaxAttempts:   cfg.Outbox.MaxAttempts,
	})
	proc.Must(ctx, "failed to create outbox retention job", err)

	backlog, err := cron.NewOutboxBacklogJob(cron.OutboxBacklogParams{
		Logger:      logg,
		Repository:  outboxRepo,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})
	proc.Must(ctx, "failed to create outbox backlog job", err)

	registry := bootstrap.NewRegistry()
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   cron.NewRegistry(retention, backlog),
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(registry),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	proc.Must(ctx, "failed to create cron service", err)

	if port := os.Getenv("PORT"); port != "" {
		go bootstrap.ServeMetrics(ctx, logg, ":"+port, registry)
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		proc.Must(ctx, "cron worker stopped unexpectedly", err)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}
