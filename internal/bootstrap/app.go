// Package bootstrap assembles the catalog engine from configuration. The
// HTTP server and the operator CLI share it so both run the same services
// against the same storage, sink and outbox.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	catalogapp "github.com/erp/catalog-engine/internal/application/catalog"
	eventapp "github.com/erp/catalog-engine/internal/application/event"
	inventoryapp "github.com/erp/catalog-engine/internal/application/inventory"
	domainsearch "github.com/erp/catalog-engine/internal/domain/search"
	"github.com/erp/catalog-engine/internal/infrastructure/cache"
	"github.com/erp/catalog-engine/internal/infrastructure/config"
	"github.com/erp/catalog-engine/internal/infrastructure/event"
	"github.com/erp/catalog-engine/internal/infrastructure/logger"
	"github.com/erp/catalog-engine/internal/infrastructure/persistence"
	"github.com/erp/catalog-engine/internal/infrastructure/scheduler"
	"github.com/erp/catalog-engine/internal/infrastructure/search"
	"github.com/erp/catalog-engine/internal/infrastructure/storage"
	"github.com/erp/catalog-engine/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// App holds the wired services. Background loops are not running until
// Start is called.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB        *persistence.Database
	Sink      domainsearch.Sink
	Media     catalogapp.MediaStorage
	Listings  *cache.CatalogCache
	Bus       *event.InMemoryEventBus
	Outbox    *event.OutboxProcessor
	Scheduler *scheduler.Scheduler

	Products   *catalogapp.ProductService
	SortOrder  *catalogapp.SortOrderService
	Projection *catalogapp.ProjectionService
	Prices     *catalogapp.PriceProjector
	Storefront *catalogapp.StorefrontService
	Ledger     *inventoryapp.LedgerService

	// OutboxAdmin reports on and requeues undelivered change notifications
	OutboxAdmin *eventapp.OutboxService

	invalidator *cache.RedisInvalidator
	closers     []func(context.Context) error
}

// Options adjusts what New builds
type Options struct {
	// Telemetry, when set, traces database statements
	Telemetry *telemetry.Telemetry
}

// New connects to storage and wires every service
func New(cfg *config.Config, log *zap.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.onClose(func(context.Context) error { return db.Close() })

	if opts.Telemetry != nil && opts.Telemetry.Enabled() && cfg.Telemetry.DBTraceEnabled {
		if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
			DBName:          cfg.Database.DBName,
		}, opts.Telemetry.TracerProvider()); err != nil {
			a.closeQuietly()
			return nil, fmt.Errorf("failed to register database tracing: %w", err)
		}
	}

	if a.Sink, err = newSink(cfg.Search, log); err != nil {
		a.closeQuietly()
		return nil, err
	}
	if a.Media, err = newMediaStorage(cfg.Storage, log); err != nil {
		a.closeQuietly()
		return nil, err
	}

	products := persistence.NewGormProductRepository(db.DB)
	categories := persistence.NewGormCategoryRepository(db.DB)
	currencies := persistence.NewGormCurrencyRepository(db.DB)
	ledger := persistence.NewGormLedger(db.DB)
	routes := persistence.NewGormRouteRegistry(db.DB)

	serializer := event.NewCatalogSerializer()
	outboxPublisher := event.NewOutboxPublisher(serializer)
	a.Bus = event.NewInMemoryEventBus(log)
	outboxRepo := event.NewGormOutboxRepository(db.DB)
	a.Outbox = event.NewOutboxProcessor(outboxRepo, a.Bus, serializer, event.OutboxProcessorConfig{
		BatchSize:        cfg.Event.BatchSize,
		PollInterval:     cfg.Event.PollInterval,
		CleanupEnabled:   cfg.Event.CleanupEnabled,
		CleanupRetention: cfg.Event.CleanupRetention,
	}, log)

	a.OutboxAdmin = eventapp.NewOutboxService(outboxRepo, a.Outbox, log)

	catalogScope := persistence.NewGormCatalogTransactionScope(db.DB, outboxPublisher)
	a.Products = catalogapp.NewProductService(catalogapp.ProductServiceDeps{
		Scope:           catalogScope,
		Products:        products,
		Categories:      categories,
		Currencies:      currencies,
		Ledger:          ledger,
		Routes:          routes,
		Media:           a.Media,
		Dispatcher:      a.Outbox,
		DefaultCurrency: cfg.Catalog.DefaultCurrency,
		Logger:          log,
	})
	a.SortOrder = catalogapp.NewSortOrderService(catalogScope, products, categories, a.Outbox, log)
	a.Projection = catalogapp.NewProjectionService(products, ledger, a.Sink, catalogapp.ProjectionConfig{
		BatchSize:        cfg.Search.BatchSize,
		BatchesPerSecond: cfg.Search.BatchesPerSecond,
	}, log)
	a.Prices = catalogapp.NewPriceProjector(catalogScope, a.Sink, a.Outbox, cfg.Catalog.DefaultCurrency, log)
	a.Ledger = inventoryapp.NewLedgerService(
		persistence.NewGormInventoryTransactionScope(db.DB, outboxPublisher), ledger, a.Outbox, log)

	a.Listings = cache.NewCatalogCache(cache.WithTTL(cfg.Cache.TTL), cache.WithLogger(log))
	a.onClose(func(context.Context) error { a.Listings.Stop(); return nil })
	a.Storefront = catalogapp.NewStorefrontService(a.Sink, products, a.Listings)

	var broadcaster cache.Broadcaster
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(cfg.Redis)
		if err != nil {
			a.closeQuietly()
			return nil, err
		}
		a.invalidator = cache.NewRedisInvalidator(client,
			cache.WithInvalidatorChannel(cfg.Redis.Channel),
			cache.WithInvalidatorLogger(log))
		a.onClose(func(context.Context) error { return client.Close() })
		a.onClose(func(context.Context) error { return a.invalidator.Close() })
		broadcaster = a.invalidator
	}

	// The projection runs first so a cache refill reads the updated index
	a.Bus.Subscribe(catalogapp.NewProjectionHandler(a.Projection, log))
	a.Bus.Subscribe(cache.NewInvalidationHandler(a.Listings, broadcaster, log))

	a.Scheduler = scheduler.NewScheduler(scheduler.SchedulerConfig{
		Workers:       cfg.Scheduler.Workers,
		QueueSize:     cfg.Scheduler.QueueSize,
		JobTimeout:    cfg.Scheduler.JobTimeout,
		RetryAttempts: cfg.Scheduler.RetryAttempts,
		RetryDelay:    cfg.Scheduler.RetryDelay,
	}, scheduler.NewCatalogJobExecutor(a.Projection, a.SortOrder), log)

	return a, nil
}

// Start creates the search index and starts the event bus, the outbox
// processor, the job scheduler and the cross-instance cache subscription
func (a *App) Start(ctx context.Context) error {
	if err := a.Projection.EnsureIndex(ctx); err != nil {
		// The sink is a rebuildable cache; the engine serves writes without it
		a.Logger.Warn("Failed to ensure search index", zap.Error(err))
	}
	if s3, ok := a.Media.(*storage.S3MediaStorage); ok {
		if err := s3.EnsureBucket(ctx); err != nil {
			a.Logger.Warn("Failed to ensure media bucket", zap.Error(err))
		}
	}
	if err := a.Bus.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}
	a.onClose(a.Bus.Stop)

	if a.Config.Event.ProcessorEnabled {
		if err := a.Outbox.Start(ctx); err != nil {
			return fmt.Errorf("failed to start outbox processor: %w", err)
		}
		a.onClose(a.Outbox.Stop)
		a.Logger.Info("Outbox processor started",
			zap.Int("batch_size", a.Config.Event.BatchSize),
			zap.Duration("poll_interval", a.Config.Event.PollInterval),
		)
	}

	if err := a.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start job scheduler: %w", err)
	}
	a.onClose(a.Scheduler.Stop)

	if a.invalidator != nil {
		go func() {
			if err := a.invalidator.Subscribe(ctx, a.Listings); err != nil {
				a.Logger.Error("Cache invalidation subscription failed", zap.Error(err))
			}
		}()
	}
	return nil
}

// Close stops everything Start and New opened, newest first
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *App) closeQuietly() {
	if err := a.Close(context.Background()); err != nil {
		a.Logger.Warn("Cleanup after failed startup", zap.Error(err))
	}
}

func newSink(cfg config.SearchConfig, log *zap.Logger) (domainsearch.Sink, error) {
	switch cfg.Driver {
	case "elasticsearch":
		client, err := search.NewElasticsearchClient(cfg)
		if err != nil {
			return nil, err
		}
		return search.NewElasticsearchSink(client, log), nil
	case "memory", "":
		log.Warn("Using the in-memory search sink; listings are lost on restart")
		return search.NewMemorySink(), nil
	default:
		return nil, fmt.Errorf("unknown search driver %q", cfg.Driver)
	}
}

func newMediaStorage(cfg config.StorageConfig, log *zap.Logger) (catalogapp.MediaStorage, error) {
	switch cfg.Driver {
	case "s3":
		s3, err := storage.NewS3MediaStorage(&cfg, storage.WithLogger(log))
		if err != nil {
			return nil, err
		}
		return s3, nil
	case "memory", "":
		return storage.NewMemoryMediaStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
