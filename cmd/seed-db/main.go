package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/printshop/db"
	"github.com/xenking/printshop/internal/grid"
	"github.com/xenking/printshop/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		gridFile    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&gridFile, "grid-file", "", "path to a pricing grid JSON file (defaults to the embedded grid)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, gridFile); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}

	lg.Info("Seed completed successfully")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, gridFile string) error {
	data := db.DefaultGrid
	if gridFile != "" {
		lg.Info("Reading grid file", zap.String("path", gridFile))
		b, err := os.ReadFile(gridFile)
		if err != nil {
			return errors.Wrap(err, "read grid file")
		}
		data = b
	}

	rows, err := grid.DecodeJSON(data)
	if err != nil {
		return errors.Wrap(err, "parse grid")
	}
	tiers, err := grid.Tiers(rows)
	if err != nil {
		return errors.Wrap(err, "validate grid")
	}

	lg.Info("Connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewTierRepository(pool)
	if err := repo.ReplaceGrid(ctx, tiers); err != nil {
		return errors.Wrap(err, "replace grid")
	}

	active, err := repo.ListActive(ctx)
	if err != nil {
		return errors.Wrap(err, "list active tiers")
	}
	lg.Info("Seeded pricing grid",
		zap.Int("tiers", len(tiers)),
		zap.Int("active", len(active)),
	)
	return nil
}
