package catalog_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	catalogapp "github.com/erp/catalog-engine/internal/application/catalog"
	"github.com/erp/catalog-engine/internal/domain/catalog"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/erp/catalog-engine/internal/infrastructure/event"
	"github.com/erp/catalog-engine/internal/infrastructure/persistence"
	"github.com/erp/catalog-engine/internal/infrastructure/search"
	"github.com/erp/catalog-engine/internal/infrastructure/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type countingDispatcher struct {
	triggers int
}

func (d *countingDispatcher) Trigger() { d.triggers++ }

// testCatalog wires the catalog services to sqlite and in-process sinks
type testCatalog struct {
	db         *gorm.DB
	products   *persistence.GormProductRepository
	categories *persistence.GormCategoryRepository
	currencies *persistence.GormCurrencyRepository
	ledger     *persistence.GormLedger
	routes     *persistence.GormRouteRegistry
	sink       *search.MemorySink
	media      *storage.MemoryMediaStorage
	dispatcher *countingDispatcher

	scope      *persistence.GormCatalogTransactionScope
	service    *catalogapp.ProductService
	sortOrder  *catalogapp.SortOrderService
	projection *catalogapp.ProjectionService
	prices     *catalogapp.PriceProjector
}

func newTestCatalog(t *testing.T) *testCatalog {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, persistence.AutoMigrate(db))

	log := zaptest.NewLogger(t)
	c := &testCatalog{
		db:         db,
		products:   persistence.NewGormProductRepository(db),
		categories: persistence.NewGormCategoryRepository(db),
		currencies: persistence.NewGormCurrencyRepository(db),
		ledger:     persistence.NewGormLedger(db),
		routes:     persistence.NewGormRouteRegistry(db),
		sink:       search.NewMemorySink(),
		media:      storage.NewMemoryMediaStorage(),
		dispatcher: &countingDispatcher{},
	}
	c.scope = persistence.NewGormCatalogTransactionScope(db, event.NewOutboxPublisher(event.NewCatalogSerializer()))
	c.service = catalogapp.NewProductService(catalogapp.ProductServiceDeps{
		Scope:           c.scope,
		Products:        c.products,
		Categories:      c.categories,
		Currencies:      c.currencies,
		Ledger:          c.ledger,
		Routes:          c.routes,
		Media:           c.media,
		Dispatcher:      c.dispatcher,
		DefaultCurrency: "uah",
		Logger:          log,
	})
	c.sortOrder = catalogapp.NewSortOrderService(c.scope, c.products, c.categories, c.dispatcher, log)
	c.projection = catalogapp.NewProjectionService(c.products, c.ledger, c.sink,
		catalogapp.ProjectionConfig{BatchSize: 2}, log)
	c.prices = catalogapp.NewPriceProjector(c.scope, c.sink, c.dispatcher, "uah", log)

	require.NoError(t, c.currencies.Save(context.Background(), &catalog.Currency{Code: "uah", Rate: decimal.NewFromInt(1), IsDefault: true}))
	return c
}

func (c *testCatalog) addCategory(t *testing.T, id int64, parent *int64, slug string) {
	t.Helper()
	level := 0
	if parent != nil {
		level = 1
	}
	require.NoError(t, c.categories.Save(context.Background(), &catalog.Category{
		ID:       id,
		ParentID: parent,
		Name:     catalog.LocalizedText{"en": strings.ToUpper(slug[:1]) + slug[1:]},
		Slug:     slug,
		Level:    level,
	}))
}

func (c *testCatalog) addCurrency(t *testing.T, code string, rate float64) {
	t.Helper()
	cur, err := catalog.NewCurrency(code, decimal.NewFromFloat(rate))
	require.NoError(t, err)
	require.NoError(t, c.currencies.Save(context.Background(), cur))
}

func (c *testCatalog) create(t *testing.T, name string, categoryIDs []int64, variants ...catalogapp.VariantInput) *catalogapp.ProductDTO {
	t.Helper()
	p, err := c.service.CreateProduct(context.Background(), catalogapp.CreateProductInput{
		Name:        catalog.LocalizedText{"en": name},
		Enabled:     true,
		CategoryIDs: categoryIDs,
		Variants:    variants,
	})
	require.NoError(t, err)
	return p
}

// setSales overrides the sales count the default order is derived from
func (c *testCatalog) setSales(t *testing.T, productID, sales int64) {
	t.Helper()
	require.NoError(t, c.db.Exec("UPDATE products SET sales_count = ? WHERE id = ?", sales, productID).Error)
}

func (c *testCatalog) outboxTypes(t *testing.T) []string {
	t.Helper()
	var types []string
	require.NoError(t, c.db.Model(&shared.OutboxEntry{}).Order("created_at ASC").Pluck("event_type", &types).Error)
	return types
}

func (c *testCatalog) orders(t *testing.T, categoryID int64) map[int64]catalog.SortEntry {
	t.Helper()
	entries, err := c.products.SortEntries(context.Background(), categoryID)
	require.NoError(t, err)
	out := make(map[int64]catalog.SortEntry, len(entries))
	for _, e := range entries {
		out[e.ProductID] = e
	}
	return out
}

func variant(slug string, price int64, currency string) catalogapp.VariantInput {
	return catalogapp.VariantInput{
		Slug:     slug,
		Price:    decimal.NewFromInt(price),
		Currency: currency,
		Enabled:  true,
	}
}

func withQuantity(v catalogapp.VariantInput, qty int64) catalogapp.VariantInput {
	v.Quantity = &qty
	return v
}

func withSKU(v catalogapp.VariantInput, sku int64) catalogapp.VariantInput {
	v.SKU = &sku
	return v
}

func ptr[T any](v T) *T { return &v }
