package catalog

import (
	"context"
	"fmt"

	"github.com/erp/catalog-engine/internal/domain/catalog"
	"github.com/erp/catalog-engine/internal/domain/inventory"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"go.uber.org/zap"
)

// ProjectionHandler keeps the search sink in step with committed catalog
// changes. It runs behind the outbox: an error here leaves the outbox
// entry for a retry.
type ProjectionHandler struct {
	projection *ProjectionService
	logger     *zap.Logger
}

// NewProjectionHandler creates a new ProjectionHandler
func NewProjectionHandler(projection *ProjectionService, logger *zap.Logger) *ProjectionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectionHandler{projection: projection, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *ProjectionHandler) EventTypes() []string {
	return []string{
		catalog.EventTypeProductCreated,
		catalog.EventTypeProductUpdated,
		catalog.EventTypeProductDeleted,
		catalog.EventTypeSortOrderChanged,
		catalog.EventTypePricesReprojected,
		inventory.EventTypeInventoryChanged,
	}
}

// Handle projects the products touched by an event
func (h *ProjectionHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	var err error
	switch e := event.(type) {
	case *catalog.ProductCreatedEvent:
		err = h.projection.ProjectProducts(ctx, []int64{e.ProductID})
	case *catalog.ProductUpdatedEvent:
		err = h.projection.ProjectProducts(ctx, []int64{e.ProductID})
	case *catalog.ProductDeletedEvent:
		err = h.projection.RemoveProducts(ctx, []int64{e.ProductID})
	case *catalog.SortOrderChangedEvent:
		err = h.projection.ProjectProducts(ctx, e.ProductIDs)
	case *catalog.PricesReprojectedEvent:
		// the sink reprices in floating point; the stored prices are exact
		err = h.projection.ProjectProducts(ctx, e.ProductIDs)
	case *inventory.InventoryChangedEvent:
		if e.ProductID > 0 {
			err = h.projection.ProjectProducts(ctx, []int64{e.ProductID})
		}
	default:
		h.logger.Debug("projection ignores event", zap.String("event_type", event.EventType()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("project %s %s: %w", event.EventType(), event.EventID(), err)
	}
	return nil
}

var _ shared.EventHandler = (*ProjectionHandler)(nil)
