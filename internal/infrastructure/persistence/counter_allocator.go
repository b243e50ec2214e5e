package persistence

import (
	"context"
	"fmt"

	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/erp/catalog-engine/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCounterAllocator implements shared.CounterAllocator on the counters
// table. The increment row-locks the counter until the surrounding
// transaction ends, so concurrent allocations queue instead of skipping
// numbers, and a rollback returns the numbers.
type GormCounterAllocator struct {
	db *gorm.DB
}

// NewGormCounterAllocator creates a new GormCounterAllocator
func NewGormCounterAllocator(db *gorm.DB) *GormCounterAllocator {
	return &GormCounterAllocator{db: db}
}

// Next reserves n consecutive values of the named counter and returns the first one
func (a *GormCounterAllocator) Next(ctx context.Context, name string, n int) (int64, error) {
	if n <= 0 {
		return 0, shared.NewValidationError("counter allocation size must be positive")
	}
	db := a.db.WithContext(ctx)

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.CounterModel{Name: name}).Error; err != nil {
		return 0, fmt.Errorf("init counter %q: %w", name, err)
	}

	if err := db.Model(&models.CounterModel{}).
		Where("name = ?", name).
		Update("value", gorm.Expr("value + ?", n)).Error; err != nil {
		return 0, fmt.Errorf("advance counter %q: %w", name, err)
	}

	var last int64
	if err := db.Model(&models.CounterModel{}).
		Select("value").
		Where("name = ?", name).
		Scan(&last).Error; err != nil {
		return 0, fmt.Errorf("read counter %q: %w", name, err)
	}
	return last - int64(n) + 1, nil
}

// Ensure GormCounterAllocator implements CounterAllocator
var _ shared.CounterAllocator = (*GormCounterAllocator)(nil)
