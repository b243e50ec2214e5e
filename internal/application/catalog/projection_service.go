package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/catalog-engine/internal/domain/catalog"
	"github.com/erp/catalog-engine/internal/domain/inventory"
	"github.com/erp/catalog-engine/internal/domain/search"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ProjectionConfig tunes the search projection
type ProjectionConfig struct {
	// BatchSize is the number of products per bulk request of a full reindex
	BatchSize int
	// BatchesPerSecond throttles a full reindex; zero disables throttling
	BatchesPerSecond float64
}

// DefaultProjectionConfig returns the default projection configuration
func DefaultProjectionConfig() ProjectionConfig {
	return ProjectionConfig{
		BatchSize:        200,
		BatchesPerSecond: 5,
	}
}

// ReindexReport summarizes a full reindex
type ReindexReport struct {
	Products int           `json:"products"`
	Batches  int           `json:"batches"`
	Duration time.Duration `json:"duration"`
}

// ProjectionService copies catalog state into the search sink. It only
// ever reads catalog storage and the inventory ledger; the sink is never
// consulted as a source.
type ProjectionService struct {
	products catalog.ProductRepository
	ledger   inventory.Ledger
	sink     search.Sink
	config   ProjectionConfig
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewProjectionService creates a new ProjectionService
func NewProjectionService(
	products catalog.ProductRepository,
	ledger inventory.Ledger,
	sink search.Sink,
	config ProjectionConfig,
	logger *zap.Logger,
) *ProjectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultProjectionConfig().BatchSize
	}
	limit := rate.Inf
	if config.BatchesPerSecond > 0 {
		limit = rate.Limit(config.BatchesPerSecond)
	}
	return &ProjectionService{
		products: products,
		ledger:   ledger,
		sink:     sink,
		config:   config,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
	}
}

// EnsureIndex creates the product collection if needed
func (s *ProjectionService) EnsureIndex(ctx context.Context) error {
	return s.sink.EnsureCollection(ctx, catalog.ProductIndex, catalog.ProductSearchSchema)
}

// ProjectProducts upserts the documents of the given products. Ids that no
// longer exist in catalog storage are removed from the sink.
func (s *ProjectionService) ProjectProducts(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load products: %w", err)
	}

	docs, err := s.documents(ctx, products)
	if err != nil {
		return err
	}
	if len(docs) > 0 {
		if err := s.sink.AddDocuments(ctx, catalog.ProductIndex, docs); err != nil {
			return err
		}
	}

	found := make(map[int64]struct{}, len(products))
	for _, p := range products {
		found[p.ID] = struct{}{}
	}
	var gone []int64
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			gone = append(gone, id)
		}
	}
	return s.RemoveProducts(ctx, gone)
}

// RemoveProducts deletes product documents; absent documents are fine
func (s *ProjectionService) RemoveProducts(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if err := s.sink.DeleteDocument(ctx, catalog.ProductIndex, catalog.DocumentID(id)); err != nil {
			return err
		}
	}
	return nil
}

// Reindex rebuilds the whole product collection from catalog storage.
// With recreate the collection is dropped first, which also purges
// documents of products deleted while the sink was unreachable.
func (s *ProjectionService) Reindex(ctx context.Context, recreate bool) (*ReindexReport, error) {
	start := time.Now()
	if recreate {
		if err := s.sink.DeleteCollection(ctx, catalog.ProductIndex); err != nil {
			return nil, err
		}
	}
	if err := s.EnsureIndex(ctx); err != nil {
		return nil, err
	}

	report := &ReindexReport{}
	var after int64
	for {
		ids, err := s.products.FindIDsAfter(ctx, after, s.config.BatchSize)
		if err != nil {
			return report, fmt.Errorf("page products after %d: %w", after, err)
		}
		if len(ids) == 0 {
			break
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return report, err
		}
		if err := s.ProjectProducts(ctx, ids); err != nil {
			return report, fmt.Errorf("project batch after %d: %w", after, err)
		}
		report.Products += len(ids)
		report.Batches++
		after = ids[len(ids)-1]
	}

	report.Duration = time.Since(start)
	s.logger.Info("search reindex finished",
		zap.Int("products", report.Products),
		zap.Int("batches", report.Batches),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (s *ProjectionService) documents(ctx context.Context, products []*catalog.Product) ([]search.Document, error) {
	var skus []int64
	for _, p := range products {
		skus = append(skus, p.SKUs()...)
	}
	records, err := s.ledger.FindBySKUs(ctx, skus)
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}
	available := inventory.SellableBySKU(records)

	docs := make([]search.Document, len(products))
	for i, p := range products {
		docs[i] = catalog.BuildSearchDocument(p, available)
	}
	return docs, nil
}
