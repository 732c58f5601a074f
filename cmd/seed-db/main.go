// Command seed-db loads users and the product catalog into PostgreSQL.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		seedFile    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedFile, "file", "db/seed/catalog.json", "path to seed document (.json or .json.gz)")
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
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, seedFile); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, seedFile string) error {
	doc, err := readDocument(seedFile)
	if err != nil {
		return errors.Wrap(err, "read seed document")
	}
	lg.Info("Read seed document",
		zap.String("path", seedFile),
		zap.Int("users", len(doc.Users)),
		zap.Int("products", len(doc.Products)),
	)

	if err := postgres.Migrate(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.NewUserRepository(pool).UpsertUsers(ctx, doc.Users); err != nil {
		return errors.Wrap(err, "upsert users")
	}
	lg.Info("Upserted users", zap.Int("count", len(doc.Users)))

	if err := postgres.NewCatalogRepository(pool).UpsertProducts(ctx, doc.Products); err != nil {
		return errors.Wrap(err, "upsert products")
	}
	for _, p := range doc.Products {
		lg.Info("Upserted product",
			zap.Int64("id", p.ID),
			zap.String("name", p.Name),
			zap.Int("versions", len(p.Versions)),
		)
	}

	return nil
}
