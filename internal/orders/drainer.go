package orders

import (
	"errors"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/airtable"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type DrainerParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Airtable *airtable.Client
	Metrics  *metrics.SinkMetrics
}

// NewDrainer builds the outbox dispatcher that delivers order sink events.
// Without an Airtable client only the database sink is routed; Airtable
// events then land in the DLQ as unroutable.
func NewDrainer(params DrainerParams) (*outbox.Dispatcher, error) {
	if params.Config == nil {
		return nil, errors.New("config required")
	}
	if params.DB == nil {
		return nil, errors.New("database client required")
	}
	cfg := params.Config

	var airtableSink *AirtableSink
	if params.Airtable != nil {
		sink, err := NewAirtableSink(params.Airtable, cfg.Airtable.OrdersTable, params.Logger)
		if err != nil {
			return nil, err
		}
		airtableSink = sink
	}
	registry, err := SinkRegistry(NewDatabaseSink(NewRepository(params.DB.DB())), airtableSink)
	if err != nil {
		return nil, err
	}

	return outbox.NewDispatcher(outbox.DispatcherParams{
		Logger:         params.Logger,
		DB:             params.DB,
		Repository:     outbox.NewRepository(params.DB.DB()),
		DLQRepository:  outbox.NewDLQRepository(params.DB.DB()),
		Registry:       registry,
		Metrics:        params.Metrics,
		BatchSize:      cfg.Outbox.BatchSize,
		PollInterval:   time.Duration(cfg.Outbox.PollIntervalMS) * time.Millisecond,
		MaxAttempts:    cfg.Outbox.MaxAttempts,
		DeliverTimeout: cfg.Airtable.Timeout + 5*time.Second,
	})
}
