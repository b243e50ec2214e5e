package models

import (
	"time"

	"github.com/erp/catalog-engine/internal/domain/review"
)

// ReviewModel is the persistence model for a product review.
type ReviewModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	ProductID int64     `gorm:"not null;index"`
	Rating    int       `gorm:"not null"`
	Text      string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReviewModel) TableName() string {
	return "reviews"
}

// ToDomain converts the persistence model to a domain Review.
func (m *ReviewModel) ToDomain() review.Review {
	return review.Review{
		ID:        m.ID,
		ProductID: m.ProductID,
		Rating:    m.Rating,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
	}
}

// ReviewModelFromDomain creates a new persistence model from a domain Review.
func ReviewModelFromDomain(r *review.Review) *ReviewModel {
	return &ReviewModel{
		ID:        r.ID,
		ProductID: r.ProductID,
		Rating:    r.Rating,
		Text:      r.Text,
		CreatedAt: r.CreatedAt,
	}
}
