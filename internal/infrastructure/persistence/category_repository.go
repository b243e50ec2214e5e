package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/catalog-engine/internal/domain/catalog"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/erp/catalog-engine/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCategoryRepository implements CategoryRepository using GORM
type GormCategoryRepository struct {
	db *gorm.DB
}

// NewGormCategoryRepository creates a new GormCategoryRepository
func NewGormCategoryRepository(db *gorm.DB) *GormCategoryRepository {
	return &GormCategoryRepository{db: db}
}

// FindByID finds a category by its ID
func (r *GormCategoryRepository) FindByID(ctx context.Context, id int64) (*catalog.Category, error) {
	var model models.CategoryModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("category %d not found", id)
		}
		return nil, err
	}
	c := model.ToDomain()
	return &c, nil
}

// FindAll returns every category, shallowest first
func (r *GormCategoryRepository) FindAll(ctx context.Context) ([]catalog.Category, error) {
	var rows []models.CategoryModel
	if err := r.db.WithContext(ctx).Order("level ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]catalog.Category, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// Save creates or updates a category
func (r *GormCategoryRepository) Save(ctx context.Context, category *catalog.Category) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"parent_id", "name", "slug", "level", "updated_at"}),
		}).
		Create(models.CategoryModelFromDomain(category)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.NewConflictError("category slug %q is taken", category.Slug)
	}
	return err
}

// GormCurrencyRepository implements CurrencyRepository using GORM
type GormCurrencyRepository struct {
	db *gorm.DB
}

// NewGormCurrencyRepository creates a new GormCurrencyRepository
func NewGormCurrencyRepository(db *gorm.DB) *GormCurrencyRepository {
	return &GormCurrencyRepository{db: db}
}

// FindByCode finds a currency by code
func (r *GormCurrencyRepository) FindByCode(ctx context.Context, code string) (*catalog.Currency, error) {
	code = strings.ToLower(code)
	var model models.CurrencyModel
	if err := r.db.WithContext(ctx).First(&model, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("currency %q not found", code)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll returns every currency
func (r *GormCurrencyRepository) FindAll(ctx context.Context) ([]catalog.Currency, error) {
	var rows []models.CurrencyModel
	if err := r.db.WithContext(ctx).Order("code ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]catalog.Currency, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// Save upserts a currency rate
func (r *GormCurrencyRepository) Save(ctx context.Context, currency *catalog.Currency) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"rate", "is_default", "updated_at"}),
		}).
		Create(models.CurrencyModelFromDomain(currency)).Error
}

// Ensure the repositories implement their domain interfaces
var (
	_ catalog.CategoryRepository = (*GormCategoryRepository)(nil)
	_ catalog.CurrencyRepository = (*GormCurrencyRepository)(nil)
)
