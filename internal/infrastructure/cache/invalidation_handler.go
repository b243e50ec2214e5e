package cache

import (
	"context"

	"github.com/erp/catalog-engine/internal/domain/catalog"
	"github.com/erp/catalog-engine/internal/domain/inventory"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"go.uber.org/zap"
)

// Invalidator clears local cached state
type Invalidator interface {
	InvalidateAll()
}

// Broadcaster tells other instances to clear their caches
type Broadcaster interface {
	PublishInvalidation(ctx context.Context, reason string) error
}

// InvalidationHandler clears the read cache after catalog changes. It is
// subscribed after the search projection so a refill reads the new index.
type InvalidationHandler struct {
	cache       Invalidator
	broadcaster Broadcaster
	logger      *zap.Logger
}

// NewInvalidationHandler creates the handler. broadcaster may be nil on a
// single instance.
func NewInvalidationHandler(cache Invalidator, broadcaster Broadcaster, logger *zap.Logger) *InvalidationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvalidationHandler{cache: cache, broadcaster: broadcaster, logger: logger}
}

// EventTypes implements shared.EventHandler
func (h *InvalidationHandler) EventTypes() []string {
	return []string{
		catalog.EventTypeProductCreated,
		catalog.EventTypeProductUpdated,
		catalog.EventTypeProductDeleted,
		catalog.EventTypeSortOrderChanged,
		catalog.EventTypePricesReprojected,
		inventory.EventTypeInventoryChanged,
	}
}

// Handle implements shared.EventHandler. A failed broadcast is logged;
// peers still converge when their entries expire.
func (h *InvalidationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.cache.InvalidateAll()
	if h.broadcaster == nil {
		return nil
	}
	if err := h.broadcaster.PublishInvalidation(ctx, event.EventType()); err != nil {
		h.logger.Warn("Failed to broadcast cache invalidation",
			zap.String("event_type", event.EventType()),
			zap.Error(err))
	}
	return nil
}

var _ shared.EventHandler = (*InvalidationHandler)(nil)
