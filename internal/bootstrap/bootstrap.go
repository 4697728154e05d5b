// Package bootstrap holds the start-up sequence shared by the storefront
// binaries: environment, config, logger, database and Redis.
package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/airtable"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Needs selects the optional dependencies a binary opens.
type Needs struct {
	Redis bool
}

// Process is a started binary. Start exits the process on any failure, so a
// returned Process is always usable.
type Process struct {
	Kind   string
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client
	Redis  *redis.Client

	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

func Start(kind string, needs Needs) *Process {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: kind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = kind

	p := &Process{
		Kind:   kind,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
		}),
	}

	p.DB, err = db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, p.Logger)
	p.Must(ctx, "failed to bootstrap database", err)
	p.closers = append(p.closers, closer{"database", p.DB.Close})

	p.Must(ctx, "failed to run dev migrations", migrate.MaybeRunDev(ctx, cfg, p.Logger, p.DB))

	if needs.Redis {
		p.Redis, err = redis.New(ctx, cfg.Redis, p.Logger)
		p.Must(ctx, "failed to bootstrap redis", err)
		p.closers = append(p.closers, closer{"redis", p.Redis.Close})
	}
	return p
}

// Must logs err, closes what Start opened and exits when err is non-nil.
// Deferred calls in main do not run.
func (p *Process) Must(ctx context.Context, msg string, err error) {
	if err == nil {
		return
	}
	p.Logger.Error(ctx, msg, err)
	p.Close()
	os.Exit(1)
}

// Airtable builds the Airtable client from config, or returns nil when no
// credentials are configured.
func (p *Process) Airtable() (*airtable.Client, error) {
	cfg := p.Config.Airtable
	if !cfg.Enabled() {
		return nil, nil
	}
	return airtable.NewClient(cfg.APIKey, cfg.BaseID,
		airtable.WithBaseURL(cfg.BaseURL),
		airtable.WithRateLimit(cfg.RequestsPerSec),
		airtable.WithTimeout(cfg.Timeout),
	)
}

// SignalContext is cancelled on SIGINT or SIGTERM and carries the fields
// every log line of the binary should have.
func (p *Process) SignalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = p.Logger.WithFields(ctx, map[string]any{
		"env":         p.Config.App.Env,
		"serviceKind": p.Kind,
		"instance":    instance.GetID(),
	})
	return ctx, stop
}

// Close releases resources in reverse order of opening.
func (p *Process) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if err := c.fn(); err != nil {
			p.Logger.Error(context.Background(), "error closing "+c.name, err)
		}
	}
	p.closers = nil
}
