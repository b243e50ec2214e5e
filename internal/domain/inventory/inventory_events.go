package inventory

import (
	"github.com/erp/catalog-engine/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeInventory = "Inventory"

// EventTypeInventoryChanged is published when the sellable quantity of a SKU changes
const EventTypeInventoryChanged = "InventoryChanged"

// Ledger operations carried by InventoryChangedEvent
const (
	OperationReserve          = "reserve"
	OperationRelease          = "release"
	OperationReleaseAndDeduct = "release_and_deduct"
	OperationSetQuantity      = "set_quantity"
)

// InventoryChangedEvent is raised after a committed ledger mutation
type InventoryChangedEvent struct {
	shared.BaseDomainEvent
	SKU       int64  `json:"sku"`
	ProductID int64  `json:"product_id"`
	Operation string `json:"operation"`
	Quantity  int64  `json:"quantity"`
	OrderID   string `json:"order_id,omitempty"`
}

// NewInventoryChangedEvent creates a new InventoryChangedEvent
func NewInventoryChangedEvent(sku, productID int64, operation string, qty int64, orderID string) *InventoryChangedEvent {
	return &InventoryChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInventoryChanged, AggregateTypeInventory, sku),
		SKU:             sku,
		ProductID:       productID,
		Operation:       operation,
		Quantity:        qty,
		OrderID:         orderID,
	}
}
