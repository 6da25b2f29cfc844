// Command catalog-import bulk loads products and services from
// gzip-compressed JSON Lines files into the PostgreSQL catalog.
//
//	catalog-import -database-url postgres://... data/products-1.jsonl.gz data/products-2.jsonl.gz
//
// Each line is one sellable:
//
//	{"kind":"product","id":"p-1","name":"Widget","code":"WID-1","price":"14.99","tax_code":"std","stock":10}
//
// Codes must be unique. The first occurrence in argument order wins; later
// ones, and invalid lines, are logged and skipped.
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

	"github.com/xenking/pos-pricing/internal/importer"
	"github.com/xenking/pos-pricing/internal/repository"
)

// maxLoggedRejects caps per-line reject logging; the totals are always logged.
const maxLoggedRejects = 100

func main() {
	_ = godotenv.Load()

	var (
		databaseURL string
		expected    uint
		strict      bool
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&expected, "expected-records", 1_000_000, "expected records per file, sizes the duplicate filters")
	flag.BoolVar(&strict, "strict", false, "exit with an error when any line is rejected")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	files := flag.Args()

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		if len(files) == 0 {
			return errors.New("no import files given")
		}
		ctx = zctx.Base(ctx, lg)

		pool, err := repository.NewPool(ctx, databaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()

		report, err := importer.New(repository.NewCatalogRepository(pool), importer.Options{
			ExpectedRecords: expected,
		}).Import(ctx, files)
		if err != nil {
			return errors.Wrap(err, "catalog import")
		}

		logRejects(lg, "Invalid line", report.Invalid)
		logRejects(lg, "Duplicate code", report.Duplicates)

		rejected := len(report.Invalid) + len(report.Duplicates)
		if strict && rejected > 0 {
			return errors.Errorf("%d lines rejected", rejected)
		}
		return nil
	})
}

func logRejects(lg *zap.Logger, msg string, rejects []importer.Reject) {
	for i, r := range rejects {
		if i == maxLoggedRejects {
			lg.Warn("Further rejects not logged", zap.Int("remaining", len(rejects)-i))
			return
		}
		lg.Warn(msg,
			zap.String("file", r.File),
			zap.Int("line", r.Line),
			zap.String("code", r.Code),
			zap.String("reason", r.Reason),
		)
	}
}
