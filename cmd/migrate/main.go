package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

const usage = `usage: migrate [-dir path] <command> [arg]

commands:
  up              apply pending migrations
  down            roll back the latest migration
  status          list migrations and their state
  to <version>    migrate up or down to version (YYYYMMDDHHMMSS)
  create <name>   write a new migration file into -dir
  validate        check migration files in -dir
`

func main() {
	dir := flag.String("dir", migrate.SourceDir, "migration source directory for create and validate")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	command, arg := flag.Arg(0), flag.Arg(1)

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	// File commands work without a database.
	switch command {
	case "create":
		if arg == "" {
			fail("create needs a migration name")
		}
		path, err := migrate.Create(*dir, arg, time.Now())
		if err != nil {
			fail("create migration: %v", err)
		}
		fmt.Println("created", path)
		return
	case "validate":
		if err := migrate.Validate(os.DirFS(*dir)); err != nil {
			fail("validation failed: %v", err)
		}
		fmt.Println("migrations valid")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":     cfg.App.Env,
		"command": command,
	})

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	if cfg.FeatureFlags.UseSQLite {
		if command != "up" {
			fail("sqlite databases only support up")
		}
		if err := dbClient.DB().WithContext(ctx).AutoMigrate(migrate.Models()...); err != nil {
			fail("sqlite auto-migrate: %v", err)
		}
		logg.Info(ctx, "sqlite schema migrated")
		return
	}

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		fail("sql handle: %v", err)
	}
	runner, err := migrate.NewRunner(sqlDB, migrate.Migrations(), logg)
	if err != nil {
		fail("%v", err)
	}

	switch command {
	case "up":
		err = runner.Up(ctx)
	case "down":
		err = runner.Down(ctx)
	case "to":
		version, perr := strconv.ParseInt(arg, 10, 64)
		if perr != nil {
			fail("to needs a numeric version, got %q", arg)
		}
		err = runner.To(ctx, version)
	case "status":
		err = printStatus(ctx, runner)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logg.Error(ctx, "migration command failed", err)
		os.Exit(1)
	}
}

func printStatus(ctx context.Context, runner *migrate.Runner) error {
	statuses, err := runner.Status(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, s := range statuses {
		applied := "-"
		if !s.AppliedAt.IsZero() {
			applied = s.AppliedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Source.Version, s.State, applied, s.Source.Path)
	}
	return w.Flush()
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
