package main

import (
	"context"
	"flag"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/auth"
	"github.com/xenking/pos-pricing/internal/importer"
	"github.com/xenking/pos-pricing/internal/repository"
)

type options struct {
	databaseURL  string
	seedFile     string
	apiKey       string
	apiKeyName   string
	apiKeyPepper string
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.seedFile, "seed-file", "db/seed/catalog.json", "path to the catalog seed document")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed (or POS_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyName, "api-key-name", "till-1", "name recorded as the actor of changes made with the key")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or POS_API_KEY_PEPPER env)")
	flag.Parse()

	opts.databaseURL = firstNonEmpty(opts.databaseURL, os.Getenv("POS_DATABASE_URL"), os.Getenv("DATABASE_URL"))
	opts.apiKey = firstNonEmpty(opts.apiKey, os.Getenv("POS_SEED_API_KEY"))
	opts.apiKeyPepper = firstNonEmpty(opts.apiKeyPepper, os.Getenv("POS_API_KEY_PEPPER"))

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if opts.databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		if opts.apiKey == "" {
			return errors.New("API key is required: set --api-key or POS_SEED_API_KEY")
		}
		if opts.apiKeyPepper == "" {
			return errors.New("API key pepper is required: set --api-key-pepper or POS_API_KEY_PEPPER")
		}
		if err := run(zctx.Base(ctx, lg), opts); err != nil {
			return errors.Wrap(err, "seed")
		}
		lg.Info("Seed completed successfully")
		return nil
	})
}

func run(ctx context.Context, opts options) error {
	lg := zctx.From(ctx)

	f, err := os.Open(opts.seedFile)
	if err != nil {
		return errors.Wrap(err, "open seed file")
	}
	defer func() { _ = f.Close() }()

	seed, err := importer.ReadSeed(f)
	if err != nil {
		return errors.Wrapf(err, "read %s", opts.seedFile)
	}

	lg.Info("Connecting to database")
	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seed.Apply(ctx, repository.NewCatalogRepository(pool)); err != nil {
		return errors.Wrap(err, "apply seed")
	}

	if err := repository.NewAPIKeyRepository(pool).Upsert(ctx, auth.APIKeyInfo{
		ID:      opts.apiKeyName,
		KeyHash: auth.HashKey(opts.apiKey, opts.apiKeyPepper),
		Name:    opts.apiKeyName,
		Scopes:  []string{auth.ScopeOrdersRead, auth.ScopeOrdersWrite},
	}); err != nil {
		return errors.Wrap(err, "upsert api key")
	}
	lg.Info("Upserted API key", zap.String("name", opts.apiKeyName))

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
