package persistence

import (
	"context"

	catalogapp "github.com/erp/catalog-engine/internal/application/catalog"
	"github.com/erp/catalog-engine/internal/domain/catalog"
	"github.com/erp/catalog-engine/internal/domain/inventory"
	"github.com/erp/catalog-engine/internal/domain/review"
	"github.com/erp/catalog-engine/internal/domain/routing"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"gorm.io/gorm"
)

// GormCatalogTransactionScope implements the catalog TransactionScope. The
// product, ledger, route, counter and outbox writes of one operation share
// a single GORM transaction.
type GormCatalogTransactionScope struct {
	db       *gorm.DB
	recorder TxEventRecorder
}

// NewGormCatalogTransactionScope creates a new GormCatalogTransactionScope.
func NewGormCatalogTransactionScope(db *gorm.DB, recorder TxEventRecorder) *GormCatalogTransactionScope {
	return &GormCatalogTransactionScope{db: db, recorder: recorder}
}

// Execute runs the given function within a database transaction.
func (s *GormCatalogTransactionScope) Execute(ctx context.Context, fn func(repos catalogapp.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormCatalogRepositories{tx: tx, recorder: s.recorder})
	})
}

type gormCatalogRepositories struct {
	tx       *gorm.DB
	recorder TxEventRecorder
}

func (r *gormCatalogRepositories) Products() catalog.ProductRepository {
	return NewGormProductRepository(r.tx)
}

func (r *gormCatalogRepositories) Currencies() catalog.CurrencyRepository {
	return NewGormCurrencyRepository(r.tx)
}

func (r *gormCatalogRepositories) Counters() shared.CounterAllocator {
	return NewGormCounterAllocator(r.tx)
}

func (r *gormCatalogRepositories) Ledger() inventory.Ledger {
	return NewGormLedger(r.tx)
}

func (r *gormCatalogRepositories) Routes() routing.Registry {
	return NewGormRouteRegistry(r.tx)
}

func (r *gormCatalogRepositories) Reviews() review.Repository {
	return NewGormReviewRepository(r.tx)
}

func (r *gormCatalogRepositories) Events() shared.OutboxEventSaver {
	return txEvents{recorder: r.recorder, tx: r.tx}
}

var (
	_ catalogapp.TransactionScope          = (*GormCatalogTransactionScope)(nil)
	_ catalogapp.TransactionalRepositories = (*gormCatalogRepositories)(nil)
)
