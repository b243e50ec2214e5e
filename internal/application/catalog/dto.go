package catalog

import (
	"time"

	"github.com/erp/catalog-engine/internal/domain/catalog"
	"github.com/erp/catalog-engine/internal/domain/inventory"
	"github.com/shopspring/decimal"
)

// AttributeInput is an attribute selection in a request
type AttributeInput struct {
	AttributeID int64   `json:"attribute_id" binding:"required,gt=0"`
	ValueIDs    []int64 `json:"value_ids"`
}

// VariantInput is one requested variant. SKU is empty for new variants;
// on update a present SKU names the variant being kept.
type VariantInput struct {
	SKU        *int64           `json:"sku" binding:"omitempty,gt=0"`
	Slug       string           `json:"slug" binding:"required,slug"`
	Price      decimal.Decimal  `json:"price"`
	OldPrice   *decimal.Decimal `json:"old_price"`
	Currency   string           `json:"currency" binding:"required,len=3"`
	Enabled    bool             `json:"enabled"`
	Media      []string         `json:"media"`
	Attributes []AttributeInput `json:"attributes" binding:"dive"`
	// Quantity is the stock to set. Nil leaves a kept variant's stock alone
	// and means zero for a new one.
	Quantity *int64 `json:"quantity" binding:"omitempty,gte=0"`
}

// CreateProductInput represents a request to create a product
type CreateProductInput struct {
	Name        catalog.LocalizedText `json:"name" binding:"required"`
	Enabled     bool                  `json:"enabled"`
	CategoryIDs []int64               `json:"category_ids"`
	Variants    []VariantInput        `json:"variants" binding:"required,min=1,dive"`
	Attributes  []AttributeInput      `json:"attributes" binding:"dive"`
}

// UpdateProductInput carries the full requested state of a product
type UpdateProductInput struct {
	Name        catalog.LocalizedText `json:"name" binding:"required"`
	Enabled     bool                  `json:"enabled"`
	CategoryIDs []int64               `json:"category_ids"`
	Variants    []VariantInput        `json:"variants" binding:"required,min=1,dive"`
	Attributes  []AttributeInput      `json:"attributes" binding:"dive"`
}

// LockSortOrderInput pins a product next to a target inside one category
type LockSortOrderInput struct {
	ProductID       int64  `json:"product_id" binding:"required,gt=0"`
	CategoryID      int64  `json:"category_id" binding:"required,gt=0"`
	TargetProductID int64  `json:"target_product_id" binding:"required,gt=0"`
	Position        string `json:"position" binding:"omitempty,oneof=start end"`
}

// UnlockSortOrderInput releases a pinned product
type UnlockSortOrderInput struct {
	ProductID  int64 `json:"product_id" binding:"required,gt=0"`
	CategoryID int64 `json:"category_id" binding:"required,gt=0"`
}

// RateChange is a new exchange rate of a currency
type RateChange struct {
	Currency string          `json:"currency"`
	Rate     decimal.Decimal `json:"rate"`
}

// MembershipDTO is a category membership in responses
type MembershipDTO struct {
	CategoryID                 int64 `json:"category_id"`
	ReversedSortOrder          int   `json:"reversed_sort_order"`
	IsSortOrderFixed           bool  `json:"is_sort_order_fixed"`
	ReversedSortOrderBeforeFix int   `json:"reversed_sort_order_before_fix,omitempty"`
}

// VariantDTO is a variant in responses
type VariantDTO struct {
	SKU                       int64                        `json:"sku"`
	Slug                      string                       `json:"slug"`
	Price                     decimal.Decimal              `json:"price"`
	OldPrice                  *decimal.Decimal             `json:"old_price"`
	Currency                  string                       `json:"currency"`
	PriceInDefaultCurrency    decimal.Decimal              `json:"price_in_default_currency"`
	OldPriceInDefaultCurrency *decimal.Decimal             `json:"old_price_in_default_currency"`
	Enabled                   bool                         `json:"enabled"`
	Media                     []string                     `json:"media"`
	Attributes                []catalog.AttributeSelection `json:"attributes"`
	SalesCount                int64                        `json:"sales_count"`
	Quantity                  int64                        `json:"quantity"`
	Available                 int64                        `json:"available"`
}

// ProductDTO is a product in responses
type ProductDTO struct {
	ID          int64                        `json:"id"`
	Name        catalog.LocalizedText        `json:"name"`
	Enabled     bool                         `json:"enabled"`
	Categories  []MembershipDTO              `json:"categories"`
	Variants    []VariantDTO                 `json:"variants"`
	Attributes  []catalog.AttributeSelection `json:"attributes"`
	ViewCount   int64                        `json:"view_count"`
	SalesCount  int64                        `json:"sales_count"`
	Breadcrumbs []catalog.BreadcrumbsVariant `json:"breadcrumbs"`
	AuditLog    []catalog.AuditEntry         `json:"audit_log,omitempty"`
	Version     int                          `json:"version"`
	CreatedAt   time.Time                    `json:"created_at"`
	UpdatedAt   time.Time                    `json:"updated_at"`
}

// SlugLookup is the outcome of resolving a public slug: either a product or
// the slug to redirect to
type SlugLookup struct {
	Product    *ProductDTO `json:"product,omitempty"`
	RedirectTo string      `json:"redirect_to,omitempty"`
}

// SortOrderResult lists the products whose ordering changed
type SortOrderResult struct {
	CategoryID        int64   `json:"category_id"`
	ChangedProductIDs []int64 `json:"changed_product_ids"`
}

// RateChangeResult summarizes an applied exchange rate
type RateChangeResult struct {
	Currency         string          `json:"currency"`
	Rate             decimal.Decimal `json:"rate"`
	RepricedProducts int             `json:"repriced_products"`
	SinkDocsUpdated  int64           `json:"sink_docs_updated"`
	SinkUpdateFailed bool            `json:"sink_update_failed"`
}

// ToProductDTO converts a domain product to a response. Stock figures come
// from records; SKUs without a record report zero.
func ToProductDTO(p *catalog.Product, records []inventory.Inventory) ProductDTO {
	bySKU := make(map[int64]inventory.Inventory, len(records))
	for _, r := range records {
		bySKU[r.SKU] = r
	}

	memberships := make([]MembershipDTO, len(p.Categories))
	for i, m := range p.Categories {
		memberships[i] = MembershipDTO{
			CategoryID:        m.CategoryID,
			ReversedSortOrder: m.ReversedSortOrder,
			IsSortOrderFixed:  m.IsSortOrderFixed,
		}
		if m.IsSortOrderFixed {
			memberships[i].ReversedSortOrderBeforeFix = m.ReversedSortOrderBeforeFix
		}
	}

	variants := make([]VariantDTO, len(p.Variants))
	for i, v := range p.Variants {
		rec := bySKU[v.SKU]
		variants[i] = VariantDTO{
			SKU:                       v.SKU,
			Slug:                      v.Slug,
			Price:                     v.Price,
			OldPrice:                  v.OldPrice,
			Currency:                  v.Currency,
			PriceInDefaultCurrency:    v.PriceInDefaultCurrency,
			OldPriceInDefaultCurrency: v.OldPriceInDefaultCurrency,
			Enabled:                   v.Enabled,
			Media:                     v.Media,
			Attributes:                v.Attributes,
			SalesCount:                v.SalesCount,
			Quantity:                  rec.Quantity,
			Available:                 rec.SellableQuantity(),
		}
	}

	return ProductDTO{
		ID:          p.ID,
		Name:        p.Name,
		Enabled:     p.Enabled,
		Categories:  memberships,
		Variants:    variants,
		Attributes:  p.Attributes,
		ViewCount:   p.ViewCount,
		SalesCount:  p.SalesCount,
		Breadcrumbs: p.Breadcrumbs,
		AuditLog:    p.AuditLog,
		Version:     p.GetVersion(),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toAttributes(in []AttributeInput) []catalog.AttributeSelection {
	out := make([]catalog.AttributeSelection, len(in))
	for i, a := range in {
		out[i] = catalog.AttributeSelection{AttributeID: a.AttributeID, ValueIDs: append([]int64{}, a.ValueIDs...)}
	}
	return out
}
