package persistence

import (
	"context"

	"github.com/erp/catalog-engine/internal/domain/review"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/erp/catalog-engine/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormReviewRepository implements review.Repository using GORM
type GormReviewRepository struct {
	db *gorm.DB
}

// NewGormReviewRepository creates a new GormReviewRepository
func NewGormReviewRepository(db *gorm.DB) *GormReviewRepository {
	return &GormReviewRepository{db: db}
}

// Save creates a review and assigns its ID
func (r *GormReviewRepository) Save(ctx context.Context, rv *review.Review) error {
	model := models.ReviewModelFromDomain(rv)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return err
	}
	rv.ID = model.ID
	return nil
}

// FindByProduct returns a page of reviews of one product
func (r *GormReviewRepository) FindByProduct(ctx context.Context, productID int64, filter shared.Filter) ([]review.Review, error) {
	query := r.db.WithContext(ctx).Where("product_id = ?", productID)
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}
	orderBy := ValidateSortField(filter.OrderBy, ReviewSortFields, "created_at")
	query = query.Order(orderBy + " " + ValidateSortOrder(filter.OrderDir))

	var rows []models.ReviewModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]review.Review, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// CountByProduct counts the reviews of one product
func (r *GormReviewRepository) CountByProduct(ctx context.Context, productID int64) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.ReviewModel{}).
		Where("product_id = ?", productID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteByProduct removes every review of a product and returns how many went
func (r *GormReviewRepository) DeleteByProduct(ctx context.Context, productID int64) (int64, error) {
	result := r.db.WithContext(ctx).Where("product_id = ?", productID).Delete(&models.ReviewModel{})
	return result.RowsAffected, result.Error
}

// Ensure GormReviewRepository implements Repository
var _ review.Repository = (*GormReviewRepository)(nil)
