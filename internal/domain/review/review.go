// Package review holds customer product reviews. Reviews are owned by a
// product and go away with it.
package review

import (
	"context"
	"strings"
	"time"

	"github.com/erp/catalog-engine/internal/domain/shared"
)

// Review is a customer rating of a product
type Review struct {
	ID        int64
	ProductID int64
	Rating    int
	Text      string
	CreatedAt time.Time
}

// NewReview validates and creates a review
func NewReview(productID int64, rating int, text string) (*Review, error) {
	if productID <= 0 {
		return nil, shared.NewValidationError("product id must be positive")
	}
	if rating < 1 || rating > 5 {
		return nil, shared.NewValidationError("rating must be between 1 and 5, got %d", rating)
	}
	return &Review{
		ProductID: productID,
		Rating:    rating,
		Text:      strings.TrimSpace(text),
		CreatedAt: time.Now(),
	}, nil
}

// Repository persists reviews
type Repository interface {
	Save(ctx context.Context, r *Review) error
	FindByProduct(ctx context.Context, productID int64, filter shared.Filter) ([]Review, error)
	CountByProduct(ctx context.Context, productID int64) (int64, error)
	// DeleteByProduct removes every review of a product and returns how many went
	DeleteByProduct(ctx context.Context, productID int64) (int64, error)
}
