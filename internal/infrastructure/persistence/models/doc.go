// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
//   - base.go: aggregate fields and the counters table
//   - catalog.go: products, variants, category memberships, categories, currencies
//   - inventory.go: inventory records and reservations
//   - routing.go: page routes
//   - review.go: product reviews
//
// JSON-shaped domain values (localized names, attributes, breadcrumbs, audit log, media)
// are stored with GORM's json serializer.
package models
