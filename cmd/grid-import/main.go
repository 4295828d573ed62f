package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/printshop/internal/grid"
	"github.com/xenking/printshop/internal/storage/postgres"
	"github.com/xenking/printshop/internal/storage/rediscache"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		redisURL    string
		dryRun      bool
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.csv.gz grid exports")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&redisURL, "redis-url", "", "Redis URL whose tier cache is flushed after import (or REDIS_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "validate the exports without writing")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}
	if redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	files := flag.Args()
	if len(files) == 0 {
		matches, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
		if err != nil {
			lg.Fatal("List exports", zap.Error(err))
		}
		files = matches
	}
	if len(files) == 0 {
		lg.Fatal("No grid exports found", zap.String("dir", dataDir))
	}
	slices.Sort(files)

	if err := run(ctx, lg, files, databaseURL, redisURL, dryRun); err != nil {
		lg.Fatal("Grid import failed", zap.Error(err))
	}

	lg.Info("Grid import completed successfully")
}

func run(ctx context.Context, lg *zap.Logger, files []string, databaseURL, redisURL string, dryRun bool) error {
	// Pass 1: parse every export concurrently.
	lg.Info("Pass 1: reading exports", zap.Int("files", len(files)))

	parsed, err := readFiles(ctx, lg, files)
	if err != nil {
		return errors.Wrap(err, "read exports")
	}

	// Pass 2: a (signature, seq) slot may only be defined by one export.
	lg.Info("Pass 2: checking for slots defined twice")

	if dups := grid.CrossFileDuplicates(parsed); len(dups) > 0 {
		for _, d := range dups {
			lg.Error("Tier defined in several exports",
				zap.String("tier", d.Key),
				zap.String("files", strings.Join(d.Files, ",")),
			)
		}
		return errors.Errorf("%d tiers defined in several exports", len(dups))
	}

	var rows []grid.Row
	for _, f := range parsed {
		rows = append(rows, f.Rows...)
	}
	tiers, err := grid.Tiers(rows)
	if err != nil {
		return errors.Wrap(err, "validate grid")
	}
	lg.Info("Grid is valid", zap.Int("tiers", len(tiers)))

	if dryRun {
		return nil
	}

	lg.Info("Connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	if err := postgres.NewTierRepository(pool).ReplaceGrid(ctx, tiers); err != nil {
		return errors.Wrap(err, "replace grid")
	}
	lg.Info("Grid written", zap.Int("tiers", len(tiers)))

	if redisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	defer func() { _ = client.Close() }()

	cache := rediscache.NewTierCache(nil, client, 0)
	if err := cache.InvalidateAll(ctx); err != nil {
		return errors.Wrap(err, "flush tier cache")
	}
	lg.Info("Tier cache flushed")
	return nil
}

// readFiles parses every gzipped CSV export concurrently. The result keeps
// the order of files.
func readFiles(ctx context.Context, lg *zap.Logger, files []string) ([]grid.File, error) {
	out := make([]grid.File, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			rows, err := readGzCSV(ctx, path)
			if err != nil {
				return errors.Wrapf(err, "file %s", path)
			}
			lg.Info("Pass 1 complete",
				zap.String("file", path),
				zap.Int("rows", len(rows)),
			)
			out[i] = grid.File{Name: filepath.Base(path), Rows: rows}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// readGzCSV opens a gzip-compressed grid export and parses it.
func readGzCSV(ctx context.Context, path string) ([]grid.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	return grid.ReadCSV(gz)
}
