package main

import (
	"context"
	"errors"
	"os"

	"github.com/angelmondragon/storefront-backend/internal/bootstrap"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

func main() {
	proc := bootstrap.Start("order-sink-worker", bootstrap.Needs{})
	defer proc.Close()
	ctx, stop := proc.SignalContext()
	defer stop()
	logg := proc.Logger

	airtableClient, err := proc.Airtable()
	proc.Must(ctx, "failed to create airtable client", err)
	if airtableClient == nil {
		logg.Warn(ctx, "airtable not configured, airtable order events will be dead-lettered")
	}

	registry := bootstrap.NewRegistry()
	drainer, err := orders.NewDrainer(orders.DrainerParams{
		Config:   proc.Config,
		Logger:   logg,
		DB:       proc.DB,
		Airtable: airtableClient,
		Metrics:  metrics.NewSinkMetrics(registry),
	})
	proc.Must(ctx, "failed to create order drainer", err)

	if port := os.Getenv("PORT"); port != "" {
		go bootstrap.ServeMetrics(ctx, logg, ":"+port, registry)
	}

	logg.Info(ctx, "starting order sink worker")
	if err := drainer.Run(ctx); !errors.Is(err, context.Canceled) {
		proc.Must(ctx, "order sink worker stopped unexpectedly", err)
	}
	logg.Info(ctx, "order sink worker shutting down gracefully")
}
