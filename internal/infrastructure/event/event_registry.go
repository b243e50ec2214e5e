package event

import (
	"github.com/erp/catalog-engine/internal/domain/catalog"
	"github.com/erp/catalog-engine/internal/domain/inventory"
)

// RegisterAllEvents registers every domain event that goes through the
// outbox. OutboxPublisher refuses unregistered types.
func RegisterAllEvents(serializer *EventSerializer) {
	// Catalog
	serializer.Register(catalog.EventTypeProductCreated, &catalog.ProductCreatedEvent{})
	serializer.Register(catalog.EventTypeProductUpdated, &catalog.ProductUpdatedEvent{})
	serializer.Register(catalog.EventTypeProductDeleted, &catalog.ProductDeletedEvent{})
	serializer.Register(catalog.EventTypeSortOrderChanged, &catalog.SortOrderChangedEvent{})
	serializer.Register(catalog.EventTypePricesReprojected, &catalog.PricesReprojectedEvent{})

	// Inventory
	serializer.Register(inventory.EventTypeInventoryChanged, &inventory.InventoryChangedEvent{})
}

// NewCatalogSerializer returns a serializer with every catalog event registered
func NewCatalogSerializer() *EventSerializer {
	s := NewEventSerializer()
	RegisterAllEvents(s)
	return s
}
