package catalog

import (
	"github.com/erp/catalog-engine/internal/domain/shared"
)

// Aggregate type constants
const (
	AggregateTypeProduct  = "Product"
	AggregateTypeCategory = "Category"
	AggregateTypeCurrency = "Currency"
)

// Event type constants
const (
	EventTypeProductCreated    = "ProductCreated"
	EventTypeProductUpdated    = "ProductUpdated"
	EventTypeProductDeleted    = "ProductDeleted"
	EventTypeSortOrderChanged  = "SortOrderChanged"
	EventTypePricesReprojected = "PricesReprojected"
)

// ProductCreatedEvent is published when a new product is created
type ProductCreatedEvent struct {
	shared.BaseDomainEvent
	ProductID   int64   `json:"product_id"`
	SKUs        []int64 `json:"skus"`
	CategoryIDs []int64 `json:"category_ids"`
}

// NewProductCreatedEvent creates a new ProductCreatedEvent
func NewProductCreatedEvent(product *Product) *ProductCreatedEvent {
	return &ProductCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeProductCreated, AggregateTypeProduct, product.ID),
		ProductID:       product.ID,
		SKUs:            product.SKUs(),
		CategoryIDs:     product.CategoryIDs(),
	}
}

// ProductUpdatedEvent is published when a product is updated
type ProductUpdatedEvent struct {
	shared.BaseDomainEvent
	ProductID   int64   `json:"product_id"`
	CategoryIDs []int64 `json:"category_ids"`
	AddedSKUs   []int64 `json:"added_skus,omitempty"`
	RemovedSKUs []int64 `json:"removed_skus,omitempty"`
}

// NewProductUpdatedEvent creates a new ProductUpdatedEvent
func NewProductUpdatedEvent(product *Product, added, removed []int64) *ProductUpdatedEvent {
	return &ProductUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeProductUpdated, AggregateTypeProduct, product.ID),
		ProductID:       product.ID,
		CategoryIDs:     product.CategoryIDs(),
		AddedSKUs:       added,
		RemovedSKUs:     removed,
	}
}

// ProductDeletedEvent is published when a product is deleted
type ProductDeletedEvent struct {
	shared.BaseDomainEvent
	ProductID   int64   `json:"product_id"`
	SKUs        []int64 `json:"skus"`
	CategoryIDs []int64 `json:"category_ids"`
}

// NewProductDeletedEvent creates a new ProductDeletedEvent
func NewProductDeletedEvent(product *Product) *ProductDeletedEvent {
	return &ProductDeletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeProductDeleted, AggregateTypeProduct, product.ID),
		ProductID:       product.ID,
		SKUs:            product.SKUs(),
		CategoryIDs:     product.CategoryIDs(),
	}
}

// SortOrderChangedEvent is published after a category's order was rewritten.
// ProductIDs lists only the products whose ordering state changed.
type SortOrderChangedEvent struct {
	shared.BaseDomainEvent
	CategoryID int64   `json:"category_id"`
	ProductIDs []int64 `json:"product_ids"`
}

// NewSortOrderChangedEvent creates a new SortOrderChangedEvent
func NewSortOrderChangedEvent(categoryID int64, productIDs []int64) *SortOrderChangedEvent {
	return &SortOrderChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSortOrderChanged, AggregateTypeCategory, categoryID),
		CategoryID:      categoryID,
		ProductIDs:      productIDs,
	}
}

// PricesReprojectedEvent is published after a currency rate was applied
type PricesReprojectedEvent struct {
	shared.BaseDomainEvent
	Currency   string  `json:"currency"`
	Rate       string  `json:"rate"`
	ProductIDs []int64 `json:"product_ids"`
}

// NewPricesReprojectedEvent creates a new PricesReprojectedEvent
func NewPricesReprojectedEvent(currency *Currency, productIDs []int64) *PricesReprojectedEvent {
	return &PricesReprojectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePricesReprojected, AggregateTypeCurrency, 0),
		Currency:        currency.Code,
		Rate:            currency.Rate.String(),
		ProductIDs:      productIDs,
	}
}
