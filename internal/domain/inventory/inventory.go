// Package inventory models per-SKU stock and order reservations.
package inventory

import (
	"context"
	"time"
)

// Inventory is the stock record of one SKU. Reserved always equals the sum
// of the quantities of Reservations.
type Inventory struct {
	SKU          int64
	ProductID    int64
	Quantity     int64
	Reserved     int64
	Reservations []Reservation
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SellableQuantity is the stock not held by any reservation
func (i *Inventory) SellableQuantity() int64 {
	return i.Quantity - i.Reserved
}

// CanReserve reports whether qty can be reserved right now
func (i *Inventory) CanReserve(qty int64) bool {
	return qty > 0 && i.SellableQuantity() >= qty
}

// ReservedBy returns the quantity held by one order
func (i *Inventory) ReservedBy(orderID string) int64 {
	var total int64
	for _, r := range i.Reservations {
		if r.OrderID == orderID {
			total += r.Quantity
		}
	}
	return total
}

// Reservation holds stock for a pending order
type Reservation struct {
	OrderID   string
	Quantity  int64
	CreatedAt time.Time
}

// Ledger is the inventory ledger. Implementations are bound to the
// transaction they were created over, so every mutation commits or rolls
// back together with the surrounding catalog write.
type Ledger interface {
	// CreateInventory creates the record of a new SKU
	CreateInventory(ctx context.Context, sku, productID, initialQty int64) error

	// Reserve holds qty for orderID; fails with InsufficientStock when the
	// sellable quantity is lower than qty at the moment of the update
	Reserve(ctx context.Context, sku, qty int64, orderID string) error

	// Release drops every reservation of orderID. Releasing twice is a no-op.
	Release(ctx context.Context, sku int64, orderID string) error

	// ReleaseAndDeduct drops the reservations of orderID and removes qty from stock
	ReleaseAndDeduct(ctx context.Context, sku, qty int64, orderID string) error

	// SetQuantity overwrites the stock; fails with ReservedExceedsRequestedStock
	// when reservations exceed newQty
	SetQuantity(ctx context.Context, sku, newQty int64) error

	// Delete removes the record and its reservations; a missing record is a no-op
	Delete(ctx context.Context, sku int64) error

	// Get returns the record of sku with its reservations
	Get(ctx context.Context, sku int64) (*Inventory, error)

	// FindBySKUs returns the records of the given SKUs, without reservations
	FindBySKUs(ctx context.Context, skus []int64) ([]Inventory, error)
}

// SellableBySKU indexes the sellable quantity of each record by SKU
func SellableBySKU(records []Inventory) map[int64]int64 {
	out := make(map[int64]int64, len(records))
	for i := range records {
		out[records[i].SKU] = records[i].SellableQuantity()
	}
	return out
}
