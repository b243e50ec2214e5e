package models

import (
	"time"

	"github.com/erp/catalog-engine/internal/domain/inventory"
)

// InventoryModel is the ledger record of one SKU.
// Reserved is kept in step with the reservation rows by the ledger.
type InventoryModel struct {
	SKU       int64     `gorm:"column:sku;primaryKey;autoIncrement:false"`
	ProductID int64     `gorm:"not null;index"`
	Quantity  int64     `gorm:"not null;default:0"`
	Reserved  int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Reservations []ReservationModel `gorm:"foreignKey:SKU;references:SKU"`
}

// TableName returns the table name for GORM
func (InventoryModel) TableName() string {
	return "inventories"
}

// ToDomain converts the persistence model to a domain Inventory record.
func (m *InventoryModel) ToDomain() *inventory.Inventory {
	rec := &inventory.Inventory{
		SKU:          m.SKU,
		ProductID:    m.ProductID,
		Quantity:     m.Quantity,
		Reserved:     m.Reserved,
		Reservations: make([]inventory.Reservation, len(m.Reservations)),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	for i, r := range m.Reservations {
		rec.Reservations[i] = inventory.Reservation{
			OrderID:   r.OrderID,
			Quantity:  r.Quantity,
			CreatedAt: r.CreatedAt,
		}
	}
	return rec
}

// ReservationModel holds stock of one SKU for one order.
type ReservationModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	SKU       int64     `gorm:"column:sku;not null;uniqueIndex:idx_reservation_sku_order,priority:1"`
	OrderID   string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_reservation_sku_order,priority:2"`
	Quantity  int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReservationModel) TableName() string {
	return "inventory_reservations"
}
