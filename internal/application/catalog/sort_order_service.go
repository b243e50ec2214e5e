package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/catalog-engine/internal/domain/catalog"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// SortOrderService resolves per-category display order. Each operation
// loads one category into a SortOrderPlan, mutates it in memory and writes
// the changed memberships back in one bulk write.
type SortOrderService struct {
	scope      TransactionScope
	products   catalog.ProductRepository
	categories catalog.CategoryRepository
	dispatcher EventDispatcher
	logger     *zap.Logger
	moved      metric.Int64Counter
}

// NewSortOrderService creates a new SortOrderService
func NewSortOrderService(
	scope TransactionScope,
	products catalog.ProductRepository,
	categories catalog.CategoryRepository,
	dispatcher EventDispatcher,
	logger *zap.Logger,
) *SortOrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	moved, _ := otel.Meter("catalog-engine/sort-order").Int64Counter(
		"catalog.sort_order.changed_products",
		metric.WithDescription("Products whose category position was rewritten"),
	)
	return &SortOrderService{
		scope:      scope,
		products:   products,
		categories: categories,
		dispatcher: dispatcher,
		logger:     logger,
		moved:      moved,
	}
}

// RecomputeCategoryOrder reassigns the positions of every unpinned product
func (s *SortOrderService) RecomputeCategoryOrder(ctx context.Context, categoryID int64) (*SortOrderResult, error) {
	return s.apply(ctx, categoryID, "recompute", func(_ TransactionalRepositories, plan *catalog.SortOrderPlan) error {
		plan.Recompute()
		return nil
	})
}

// LockProductSortOrder pins a product immediately next to a target product
func (s *SortOrderService) LockProductSortOrder(ctx context.Context, input LockSortOrderInput) (*SortOrderResult, error) {
	placement, err := catalog.ParsePlacement(input.Position)
	if err != nil {
		return nil, err
	}
	if input.ProductID == input.TargetProductID {
		return nil, shared.NewValidationError("product %d cannot be pinned relative to itself", input.ProductID)
	}

	return s.apply(ctx, input.CategoryID, "lock", func(repos TransactionalRepositories, plan *catalog.SortOrderPlan) error {
		if err := ensureProducts(ctx, repos.Products(), input.ProductID, input.TargetProductID); err != nil {
			return err
		}
		if err := plan.Lock(input.ProductID, input.TargetProductID, placement); err != nil {
			return err
		}
		entry, _ := plan.Entry(input.ProductID)
		return repos.Products().AppendAudit(ctx, input.ProductID, fmt.Sprintf(
			"sort order pinned at %d in category %d (%s of product %d)",
			entry.Order, input.CategoryID, placement, input.TargetProductID))
	})
}

// UnlockProductSortOrder releases a pin and recomputes the category
func (s *SortOrderService) UnlockProductSortOrder(ctx context.Context, input UnlockSortOrderInput) (*SortOrderResult, error) {
	return s.apply(ctx, input.CategoryID, "unlock", func(repos TransactionalRepositories, plan *catalog.SortOrderPlan) error {
		if err := ensureProducts(ctx, repos.Products(), input.ProductID); err != nil {
			return err
		}
		if err := plan.Unlock(input.ProductID); err != nil {
			return err
		}
		return repos.Products().AppendAudit(ctx, input.ProductID,
			fmt.Sprintf("sort order unpinned in category %d", input.CategoryID))
	})
}

// RecomputeAll recomputes every category that has members. It is safe to
// re-run; a failing category does not stop the others.
func (s *SortOrderService) RecomputeAll(ctx context.Context) (int, error) {
	ids, err := s.products.CategoryIDsInUse(ctx)
	if err != nil {
		return 0, err
	}

	var errs []error
	done := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := s.RecomputeCategoryOrder(ctx, id); err != nil {
			s.logger.Error("category recompute failed", zap.Int64("category_id", id), zap.Error(err))
			errs = append(errs, fmt.Errorf("category %d: %w", id, err))
			continue
		}
		done++
	}
	s.logger.Info("sort order recomputed",
		zap.Int("categories", done),
		zap.Int("failed", len(errs)),
	)
	return done, errors.Join(errs...)
}

func (s *SortOrderService) apply(
	ctx context.Context,
	categoryID int64,
	op string,
	mutate func(repos TransactionalRepositories, plan *catalog.SortOrderPlan) error,
) (*SortOrderResult, error) {
	if _, err := s.categories.FindByID(ctx, categoryID); err != nil {
		return nil, err
	}

	result := &SortOrderResult{CategoryID: categoryID, ChangedProductIDs: []int64{}}
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := repos.Products().LockCategory(ctx, categoryID); err != nil {
			return err
		}
		entries, err := repos.Products().SortEntries(ctx, categoryID)
		if err != nil {
			return err
		}

		plan := catalog.NewSortOrderPlan(categoryID, entries)
		if err := mutate(repos, plan); err != nil {
			return err
		}

		changed := plan.Changed()
		if len(changed) == 0 {
			return nil
		}
		if err := repos.Products().SaveSortEntries(ctx, categoryID, changed); err != nil {
			return err
		}
		result.ChangedProductIDs = plan.ChangedIDs()
		return repos.Events().SaveEvents(ctx, catalog.NewSortOrderChangedEvent(categoryID, result.ChangedProductIDs))
	})
	if err != nil {
		return nil, err
	}

	if len(result.ChangedProductIDs) > 0 {
		if s.moved != nil {
			s.moved.Add(ctx, int64(len(result.ChangedProductIDs)),
				metric.WithAttributes(attribute.String("operation", op)))
		}
		if s.dispatcher != nil {
			s.dispatcher.Trigger()
		}
	}
	s.logger.Debug("sort order applied",
		zap.String("operation", op),
		zap.Int64("category_id", categoryID),
		zap.Int64s("changed", result.ChangedProductIDs),
	)
	return result, nil
}

func ensureProducts(ctx context.Context, products catalog.ProductRepository, ids ...int64) error {
	for _, id := range ids {
		if _, err := products.FindByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
