package models

import (
	"time"

	"github.com/erp/catalog-engine/internal/domain/routing"
)

// PageRouteModel is one registered slug. The primary key on slug is what
// makes slugs globally unique.
type PageRouteModel struct {
	Slug       string           `gorm:"type:varchar(200);primaryKey"`
	PageType   routing.PageType `gorm:"type:varchar(20);not null;index:idx_page_routes_entity,priority:1"`
	EntityID   int64            `gorm:"not null;index:idx_page_routes_entity,priority:2"`
	RedirectTo string           `gorm:"type:varchar(200);not null;default:'';index"`
	CreatedAt  time.Time        `gorm:"not null"`
	UpdatedAt  time.Time        `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PageRouteModel) TableName() string {
	return "page_routes"
}

// ToDomain converts the persistence model to a domain PageRoute.
func (m *PageRouteModel) ToDomain() routing.PageRoute {
	return routing.PageRoute{
		Slug:       m.Slug,
		PageType:   m.PageType,
		EntityID:   m.EntityID,
		RedirectTo: m.RedirectTo,
	}
}
