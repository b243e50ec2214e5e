package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/catalog-engine/internal/domain/inventory"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/erp/catalog-engine/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedger implements inventory.Ledger using GORM. Every stock check is
// part of the UPDATE that changes the stock, so two concurrent reservations
// can never both pass the check.
type GormLedger struct {
	db *gorm.DB
}

// NewGormLedger creates a new GormLedger
func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

// CreateInventory creates the record of a new SKU
func (r *GormLedger) CreateInventory(ctx context.Context, sku, productID, initialQty int64) error {
	if initialQty < 0 {
		return shared.NewValidationError("quantity cannot be negative")
	}
	err := r.db.WithContext(ctx).Create(&models.InventoryModel{
		SKU:       sku,
		ProductID: productID,
		Quantity:  initialQty,
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.NewConflictError("inventory of SKU %d already exists", sku)
	}
	return err
}

// Reserve holds qty for orderID
func (r *GormLedger) Reserve(ctx context.Context, sku, qty int64, orderID string) error {
	if qty <= 0 {
		return shared.NewValidationError("quantity must be positive")
	}
	db := r.db.WithContext(ctx)

	result := db.Model(&models.InventoryModel{}).
		Where("sku = ? AND quantity - reserved >= ?", sku, qty).
		Updates(map[string]any{
			"reserved":   gorm.Expr("reserved + ?", qty),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.explainMiss(db, sku, shared.WrapDomainError(shared.CodeInsufficientStock,
			fmt.Sprintf("cannot reserve %d of SKU %d", qty, sku), nil))
	}

	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "sku"}, {Name: "order_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"quantity": gorm.Expr("inventory_reservations.quantity + excluded.quantity"),
		}),
	}).Create(&models.ReservationModel{
		SKU:      sku,
		OrderID:  orderID,
		Quantity: qty,
	}).Error
}

// Release drops every reservation of orderID. Releasing twice is a no-op.
func (r *GormLedger) Release(ctx context.Context, sku int64, orderID string) error {
	db := r.db.WithContext(ctx)
	held, ids, err := r.claimReservations(db, sku, orderID)
	if err != nil || held == 0 {
		return err
	}
	if err := r.dropReservations(db, ids); err != nil {
		return err
	}
	return db.Model(&models.InventoryModel{}).
		Where("sku = ?", sku).
		Updates(map[string]any{
			"reserved":   gorm.Expr("reserved - ?", held),
			"updated_at": time.Now(),
		}).Error
}

// ReleaseAndDeduct drops the reservations of orderID and removes qty from
// stock. The sellable quantity may not go negative. An order that holds
// nothing was already settled, so a repeated call changes nothing.
func (r *GormLedger) ReleaseAndDeduct(ctx context.Context, sku, qty int64, orderID string) error {
	if qty <= 0 {
		return shared.NewValidationError("quantity must be positive")
	}
	db := r.db.WithContext(ctx)
	held, ids, err := r.claimReservations(db, sku, orderID)
	if err != nil || held == 0 {
		return err
	}

	result := db.Model(&models.InventoryModel{}).
		Where("sku = ? AND (quantity - ?) - (reserved - ?) >= 0", sku, qty, held).
		Updates(map[string]any{
			"quantity":   gorm.Expr("quantity - ?", qty),
			"reserved":   gorm.Expr("reserved - ?", held),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.WrapDomainError(shared.CodeInsufficientStock,
			fmt.Sprintf("cannot deduct %d of SKU %d", qty, sku), nil)
	}
	return r.dropReservations(db, ids)
}

// SetQuantity overwrites the stock unless reservations exceed it
func (r *GormLedger) SetQuantity(ctx context.Context, sku, newQty int64) error {
	if newQty < 0 {
		return shared.NewValidationError("quantity cannot be negative")
	}
	db := r.db.WithContext(ctx)
	result := db.Model(&models.InventoryModel{}).
		Where("sku = ? AND reserved <= ?", sku, newQty).
		Updates(map[string]any{
			"quantity":   newQty,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.explainMiss(db, sku, shared.WrapDomainError(shared.CodeReservedExceedsRequestedStock,
			fmt.Sprintf("reservations of SKU %d exceed %d", sku, newQty), nil))
	}
	return nil
}

// Delete removes the record and its reservations; a missing record is a no-op
func (r *GormLedger) Delete(ctx context.Context, sku int64) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("sku = ?", sku).Delete(&models.ReservationModel{}).Error; err != nil {
		return err
	}
	return db.Where("sku = ?", sku).Delete(&models.InventoryModel{}).Error
}

// Get returns the record of sku with its reservations
func (r *GormLedger) Get(ctx context.Context, sku int64) (*inventory.Inventory, error) {
	var model models.InventoryModel
	if err := r.db.WithContext(ctx).
		Preload("Reservations", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		First(&model, "sku = ?", sku).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("inventory of SKU %d not found", sku)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindBySKUs returns the records of the given SKUs, without reservations
func (r *GormLedger) FindBySKUs(ctx context.Context, skus []int64) ([]inventory.Inventory, error) {
	if len(skus) == 0 {
		return []inventory.Inventory{}, nil
	}
	var rows []models.InventoryModel
	if err := r.db.WithContext(ctx).Where("sku IN ?", skus).Order("sku ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]inventory.Inventory, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// claimReservations locks the record of sku for the rest of the
// transaction and returns what orderID holds on it. A concurrent release of
// the same order waits on the lock and then finds the rows already gone.
func (r *GormLedger) claimReservations(db *gorm.DB, sku int64, orderID string) (int64, []int64, error) {
	record := db.Select("sku").Where("sku = ?", sku)
	if isPostgres(db) {
		record = record.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model models.InventoryModel
	if err := record.Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil, shared.NewNotFoundError("inventory of SKU %d not found", sku)
		}
		return 0, nil, err
	}

	var rows []models.ReservationModel
	if err := db.Where("sku = ? AND order_id = ?", sku, orderID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return 0, nil, err
	}
	var held int64
	ids := make([]int64, len(rows))
	for i, row := range rows {
		held += row.Quantity
		ids[i] = row.ID
	}
	return held, ids, nil
}

// dropReservations deletes exactly the claimed reservation rows
func (r *GormLedger) dropReservations(db *gorm.DB, ids []int64) error {
	return db.Where("id IN ?", ids).Delete(&models.ReservationModel{}).Error
}

// explainMiss turns a conditional update that matched no row into
// NotFound when the record is missing, or into cause otherwise
func (r *GormLedger) explainMiss(db *gorm.DB, sku int64, cause error) error {
	var count int64
	if err := db.Model(&models.InventoryModel{}).Where("sku = ?", sku).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return shared.NewNotFoundError("inventory of SKU %d not found", sku)
	}
	return cause
}

// Ensure GormLedger implements Ledger
var _ inventory.Ledger = (*GormLedger)(nil)
