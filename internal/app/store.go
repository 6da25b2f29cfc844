package app

import (
	"context"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pos-pricing/internal/domain/auth"
	"github.com/xenking/pos-pricing/internal/domain/catalog"
	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/domain/order"
	"github.com/xenking/pos-pricing/internal/importer"
	"github.com/xenking/pos-pricing/internal/repository"
	"github.com/xenking/pos-pricing/internal/storage/memory"
	"github.com/xenking/pos-pricing/pkg/health"
)

// store bundles the storage-backed dependencies of the API, whichever driver
// provides them.
type store struct {
	tx        order.Transactor
	sellables catalog.SellableRepository
	taxes     catalog.TaxCodeRepository
	customers catalog.CustomerRepository
	discounts discount.Repository
	apikeys   auth.Repository
	writer    importer.Writer
	// pinger is nil when there is no remote database to probe.
	pinger health.Pinger
	close  func()
}

// openStore connects the configured driver and applies the seed document, if
// any.
func openStore(ctx context.Context, cfg *Config) (*store, error) {
	var (
		st  *store
		err error
	)
	switch cfg.Store.Driver {
	case DriverMemory:
		st = openMemory(cfg)
	default:
		st, err = openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Store.SeedFile != "" {
		if err := seedFile(ctx, cfg.Store.SeedFile, st.writer); err != nil {
			st.close()
			return nil, errors.Wrap(err, "seed catalog")
		}
	}
	return st, nil
}

func openPostgres(ctx context.Context, cfg *Config) (*store, error) {
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := repository.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	cat := repository.NewCatalogRepository(pool)
	return &store{
		tx:        repository.NewTransactor(pool),
		sellables: cat,
		taxes:     cat,
		customers: cat,
		discounts: cat,
		apikeys:   repository.NewAPIKeyRepository(pool),
		writer:    cat,
		pinger:    pool,
		close:     pool.Close,
	}, nil
}

func openMemory(cfg *Config) *store {
	cat := memory.NewCatalog()
	if cfg.Store.APIKey != "" {
		cat.PutAPIKey(auth.APIKeyInfo{
			ID:      "bootstrap",
			KeyHash: auth.HashKey(cfg.Store.APIKey, cfg.APIKeyPepper),
			Name:    "bootstrap",
			Scopes:  []string{auth.ScopeOrdersRead, auth.ScopeOrdersWrite},
		})
	}
	return &store{
		tx:        memory.NewDB(cat),
		sellables: cat,
		taxes:     cat,
		customers: cat,
		discounts: cat,
		apikeys:   cat,
		writer:    cat,
		close:     func() {},
	}
}

func seedFile(ctx context.Context, path string, w importer.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open seed file")
	}
	defer func() { _ = f.Close() }()

	seed, err := importer.ReadSeed(f)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	zctx.From(ctx).Info("Applying seed", zap.String("path", path))
	return seed.Apply(ctx, w)
}
