// Package routing maps public URL slugs to the pages they render.
package routing

import (
	"context"
)

// PageType is the kind of page a slug resolves to
type PageType string

const (
	PageTypeProduct  PageType = "product"
	PageTypeCategory PageType = "category"
)

// PageRoute is one registered slug. A route with RedirectTo set answers
// with a permanent redirect to that slug.
type PageRoute struct {
	Slug       string
	PageType   PageType
	EntityID   int64
	RedirectTo string
}

// IsRedirect reports whether the route only redirects
func (r *PageRoute) IsRedirect() bool {
	return r.RedirectTo != ""
}

// Registry is the page-route registry. Like the inventory ledger it is
// bound to the surrounding transaction.
type Registry interface {
	// Register claims slug for an entity; Conflict if another entity holds it
	Register(ctx context.Context, slug string, pageType PageType, entityID int64) error

	// Redirect turns oldSlug into a redirect to newSlug and repoints any
	// redirect that targeted oldSlug so chains never form
	Redirect(ctx context.Context, oldSlug, newSlug string) error

	// Remove deletes one slug; a missing slug is a no-op
	Remove(ctx context.Context, slug string) error

	// RemoveEntity deletes every route of an entity, redirects included
	RemoveEntity(ctx context.Context, pageType PageType, entityID int64) error

	// Resolve looks up a slug
	Resolve(ctx context.Context, slug string) (*PageRoute, error)

	// TakenBy returns the routes of slugs held by an entity other than entityID
	TakenBy(ctx context.Context, slugs []string, pageType PageType, entityID int64) ([]PageRoute, error)
}
