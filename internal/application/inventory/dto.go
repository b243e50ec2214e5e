package inventory

import (
	"time"

	"github.com/erp/catalog-engine/internal/domain/inventory"
)

// ReserveInput holds stock of a SKU for an order
type ReserveInput struct {
	SKU      int64  `json:"sku" binding:"required,gt=0"`
	Quantity int64  `json:"quantity" binding:"required,gt=0"`
	OrderID  string `json:"order_id" binding:"required,max=100"`
}

// ReleaseInput drops the reservations of an order
type ReleaseInput struct {
	SKU     int64  `json:"sku" binding:"required,gt=0"`
	OrderID string `json:"order_id" binding:"required,max=100"`
}

// SetQuantityInput overwrites the stock of a SKU
type SetQuantityInput struct {
	SKU      int64 `json:"sku" binding:"required,gt=0"`
	Quantity int64 `json:"quantity" binding:"gte=0"`
}

// ReservationResponse is one reservation in responses
type ReservationResponse struct {
	OrderID   string    `json:"order_id"`
	Quantity  int64     `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// InventoryResponse is a ledger record in responses
type InventoryResponse struct {
	SKU          int64                 `json:"sku"`
	ProductID    int64                 `json:"product_id"`
	Quantity     int64                 `json:"quantity"`
	Reserved     int64                 `json:"reserved"`
	Available    int64                 `json:"available"`
	Reservations []ReservationResponse `json:"reservations"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// ToInventoryResponse converts a ledger record to a response
func ToInventoryResponse(record *inventory.Inventory) *InventoryResponse {
	reservations := make([]ReservationResponse, len(record.Reservations))
	for i, r := range record.Reservations {
		reservations[i] = ReservationResponse{OrderID: r.OrderID, Quantity: r.Quantity, CreatedAt: r.CreatedAt}
	}
	return &InventoryResponse{
		SKU:          record.SKU,
		ProductID:    record.ProductID,
		Quantity:     record.Quantity,
		Reserved:     record.Reserved,
		Available:    record.SellableQuantity(),
		Reservations: reservations,
		UpdatedAt:    record.UpdatedAt,
	}
}
