package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/catalog-engine/internal/domain/routing"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/erp/catalog-engine/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormRouteRegistry implements routing.Registry on the page_routes table
type GormRouteRegistry struct {
	db *gorm.DB
}

// NewGormRouteRegistry creates a new GormRouteRegistry
func NewGormRouteRegistry(db *gorm.DB) *GormRouteRegistry {
	return &GormRouteRegistry{db: db}
}

// Register claims slug for an entity. Re-registering a slug the entity
// already owns is a no-op; if that slug had become a redirect it is live again.
func (r *GormRouteRegistry) Register(ctx context.Context, slug string, pageType routing.PageType, entityID int64) error {
	db := r.db.WithContext(ctx)

	var existing models.PageRouteModel
	err := db.First(&existing, "slug = ?", slug).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		err = db.Create(&models.PageRouteModel{
			Slug:     slug,
			PageType: pageType,
			EntityID: entityID,
		}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.NewConflictError("slug %q is taken", slug)
		}
		return err
	case err != nil:
		return err
	}

	if existing.PageType != pageType || existing.EntityID != entityID {
		return shared.NewConflictError("slug %q is taken", slug)
	}
	if existing.RedirectTo == "" {
		return nil
	}
	return db.Model(&models.PageRouteModel{}).
		Where("slug = ?", slug).
		Updates(map[string]any{"redirect_to": "", "updated_at": time.Now()}).Error
}

// Redirect turns oldSlug into a permanent redirect to newSlug. Redirects
// that pointed at oldSlug are repointed so every redirect is one hop.
func (r *GormRouteRegistry) Redirect(ctx context.Context, oldSlug, newSlug string) error {
	if oldSlug == newSlug {
		return nil
	}
	db := r.db.WithContext(ctx)
	now := time.Now()

	if err := db.Model(&models.PageRouteModel{}).
		Where("redirect_to = ? OR slug = ?", oldSlug, oldSlug).
		Updates(map[string]any{"redirect_to": newSlug, "updated_at": now}).Error; err != nil {
		return err
	}
	// newSlug may itself have been a redirect to oldSlug
	return db.Where("slug = redirect_to").Delete(&models.PageRouteModel{}).Error
}

// Remove deletes one slug together with the redirects pointing at it
func (r *GormRouteRegistry) Remove(ctx context.Context, slug string) error {
	return r.db.WithContext(ctx).
		Where("slug = ? OR redirect_to = ?", slug, slug).
		Delete(&models.PageRouteModel{}).Error
}

// RemoveEntity deletes every route of an entity, redirects included
func (r *GormRouteRegistry) RemoveEntity(ctx context.Context, pageType routing.PageType, entityID int64) error {
	return r.db.WithContext(ctx).
		Where("page_type = ? AND entity_id = ?", pageType, entityID).
		Delete(&models.PageRouteModel{}).Error
}

// Resolve looks up a slug
func (r *GormRouteRegistry) Resolve(ctx context.Context, slug string) (*routing.PageRoute, error) {
	var model models.PageRouteModel
	if err := r.db.WithContext(ctx).First(&model, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("slug %q not found", slug)
		}
		return nil, err
	}
	route := model.ToDomain()
	return &route, nil
}

// TakenBy returns the routes of slugs held by an entity other than entityID
func (r *GormRouteRegistry) TakenBy(ctx context.Context, slugs []string, pageType routing.PageType, entityID int64) ([]routing.PageRoute, error) {
	if len(slugs) == 0 {
		return []routing.PageRoute{}, nil
	}
	var rows []models.PageRouteModel
	if err := r.db.WithContext(ctx).
		Where("slug IN ?", slugs).
		Where("NOT (page_type = ? AND entity_id = ?)", pageType, entityID).
		Order("slug ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]routing.PageRoute, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// Ensure GormRouteRegistry implements Registry
var _ routing.Registry = (*GormRouteRegistry)(nil)
