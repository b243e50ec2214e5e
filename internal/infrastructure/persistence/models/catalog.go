package models

import (
	"time"

	"github.com/erp/catalog-engine/internal/domain/catalog"
	"github.com/shopspring/decimal"
)

// ProductModel is the persistence model for the Product aggregate root.
type ProductModel struct {
	AggregateModel
	Name        catalog.LocalizedText        `gorm:"type:jsonb;serializer:json;not null"`
	Enabled     bool                         `gorm:"not null;index"`
	Attributes  []catalog.AttributeSelection `gorm:"type:jsonb;serializer:json"`
	ViewCount   int64                        `gorm:"not null;default:0"`
	SalesCount  int64                        `gorm:"not null;default:0"`
	AuditLog    []catalog.AuditEntry         `gorm:"type:jsonb;serializer:json"`
	Breadcrumbs []catalog.BreadcrumbsVariant `gorm:"type:jsonb;serializer:json"`

	Variants    []ProductVariantModel    `gorm:"foreignKey:ProductID;references:ID"`
	Memberships []ProductCategoryModel `gorm:"foreignKey:ProductID;references:ID"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain Product.
// Variants and memberships must be preloaded.
func (m *ProductModel) ToDomain() *catalog.Product {
	p := &catalog.Product{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Name:              m.Name,
		Enabled:           m.Enabled,
		Attributes:        m.Attributes,
		ViewCount:         m.ViewCount,
		SalesCount:        m.SalesCount,
		AuditLog:          m.AuditLog,
		Breadcrumbs:       m.Breadcrumbs,
		Variants:          make([]catalog.Variant, len(m.Variants)),
		Categories:        make([]catalog.CategoryMembership, len(m.Memberships)),
	}
	for i := range m.Variants {
		p.Variants[i] = m.Variants[i].ToDomain()
	}
	for i := range m.Memberships {
		p.Categories[i] = m.Memberships[i].ToDomain()
	}
	if p.Attributes == nil {
		p.Attributes = []catalog.AttributeSelection{}
	}
	if p.AuditLog == nil {
		p.AuditLog = []catalog.AuditEntry{}
	}
	p.SortVariants()
	return p
}

// FromDomain populates the product row from a domain Product. Child rows
// are written separately so ordering state is never overwritten here.
func (m *ProductModel) FromDomain(p *catalog.Product) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.Name = p.Name
	m.Enabled = p.Enabled
	m.Attributes = p.Attributes
	m.ViewCount = p.ViewCount
	m.SalesCount = p.SalesCount
	m.AuditLog = p.AuditLog
	m.Breadcrumbs = p.Breadcrumbs
}

// ProductModelFromDomain creates a new persistence model from a domain Product.
func ProductModelFromDomain(p *catalog.Product) *ProductModel {
	m := &ProductModel{}
	m.FromDomain(p)
	return m
}

// ProductVariantModel is one sellable variant. Slug uniqueness is enforced
// by the page_routes table, which lets variants of one product swap slugs.
type ProductVariantModel struct {
	SKU                       int64                        `gorm:"column:sku;primaryKey;autoIncrement:false"`
	ProductID                 int64                        `gorm:"not null;index"`
	Slug                      string                       `gorm:"type:varchar(200);not null;index"`
	Price                     decimal.Decimal              `gorm:"type:decimal(18,4);not null;default:0"`
	OldPrice                  *decimal.Decimal             `gorm:"type:decimal(18,4)"`
	Currency                  string                       `gorm:"type:varchar(3);not null;index"`
	PriceInDefaultCurrency    decimal.Decimal              `gorm:"type:decimal(18,4);not null;default:0"`
	OldPriceInDefaultCurrency *decimal.Decimal             `gorm:"type:decimal(18,4)"`
	Enabled                   bool                         `gorm:"not null"`
	Media                     []string                     `gorm:"type:jsonb;serializer:json"`
	Attributes                []catalog.AttributeSelection `gorm:"type:jsonb;serializer:json"`
	SalesCount                int64                        `gorm:"not null;default:0"`
	Position                  int                          `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (ProductVariantModel) TableName() string {
	return "product_variants"
}

// ToDomain converts the persistence model to a domain Variant.
func (m *ProductVariantModel) ToDomain() catalog.Variant {
	v := catalog.Variant{
		SKU:                       m.SKU,
		Slug:                      m.Slug,
		Price:                     m.Price,
		OldPrice:                  m.OldPrice,
		Currency:                  m.Currency,
		PriceInDefaultCurrency:    m.PriceInDefaultCurrency,
		OldPriceInDefaultCurrency: m.OldPriceInDefaultCurrency,
		Enabled:                   m.Enabled,
		Media:                     m.Media,
		Attributes:                m.Attributes,
		SalesCount:                m.SalesCount,
		Position:                  m.Position,
	}
	if v.Media == nil {
		v.Media = []string{}
	}
	if v.Attributes == nil {
		v.Attributes = []catalog.AttributeSelection{}
	}
	return v
}

// ProductVariantModelFromDomain creates a variant row for a product.
func ProductVariantModelFromDomain(productID int64, v catalog.Variant) ProductVariantModel {
	return ProductVariantModel{
		SKU:                       v.SKU,
		ProductID:                 productID,
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
		Position:                  v.Position,
	}
}

// ProductCategoryModel is a product's membership of one category together
// with its ordering state in that category.
type ProductCategoryModel struct {
	ProductID                  int64 `gorm:"primaryKey;autoIncrement:false"`
	CategoryID                 int64 `gorm:"primaryKey;autoIncrement:false;index:idx_product_categories_order,priority:1"`
	ReversedSortOrder          int   `gorm:"not null;default:0;index:idx_product_categories_order,priority:2"`
	IsSortOrderFixed           bool  `gorm:"not null;default:false"`
	ReversedSortOrderBeforeFix int   `gorm:"not null;default:0"`
	Position                   int   `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (ProductCategoryModel) TableName() string {
	return "product_categories"
}

// ToDomain converts the persistence model to a domain membership.
func (m *ProductCategoryModel) ToDomain() catalog.CategoryMembership {
	return catalog.CategoryMembership{
		CategoryID:                 m.CategoryID,
		ReversedSortOrder:          m.ReversedSortOrder,
		IsSortOrderFixed:           m.IsSortOrderFixed,
		ReversedSortOrderBeforeFix: m.ReversedSortOrderBeforeFix,
	}
}

// ProductCategoryModelFromDomain creates a membership row.
func ProductCategoryModelFromDomain(productID int64, position int, c catalog.CategoryMembership) ProductCategoryModel {
	return ProductCategoryModel{
		ProductID:                  productID,
		CategoryID:                 c.CategoryID,
		ReversedSortOrder:          c.ReversedSortOrder,
		IsSortOrderFixed:           c.IsSortOrderFixed,
		ReversedSortOrderBeforeFix: c.ReversedSortOrderBeforeFix,
		Position:                   position,
	}
}

// CategoryModel is the persistence model for the Category entity.
type CategoryModel struct {
	ID        int64                 `gorm:"primaryKey;autoIncrement:false"`
	ParentID  *int64                `gorm:"index"`
	Name      catalog.LocalizedText `gorm:"type:jsonb;serializer:json;not null"`
	Slug      string                `gorm:"type:varchar(200);not null;uniqueIndex"`
	Level     int                   `gorm:"not null;default:0"`
	CreatedAt time.Time             `gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time             `gorm:"not null;autoUpdateTime"`
}

// TableName returns the table name for GORM
func (CategoryModel) TableName() string {
	return "categories"
}

// ToDomain converts the persistence model to a domain Category.
func (m *CategoryModel) ToDomain() catalog.Category {
	return catalog.Category{
		ID:       m.ID,
		ParentID: m.ParentID,
		Name:     m.Name,
		Slug:     m.Slug,
		Level:    m.Level,
	}
}

// CategoryModelFromDomain creates a new persistence model from a domain Category.
func CategoryModelFromDomain(c *catalog.Category) *CategoryModel {
	return &CategoryModel{
		ID:       c.ID,
		ParentID: c.ParentID,
		Name:     c.Name,
		Slug:     c.Slug,
		Level:    c.Level,
	}
}

// CurrencyModel stores the exchange rate of a currency into the default one.
type CurrencyModel struct {
	Code      string          `gorm:"type:varchar(3);primaryKey"`
	Rate      decimal.Decimal `gorm:"type:decimal(18,6);not null"`
	IsDefault bool            `gorm:"not null;default:false"`
	UpdatedAt time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CurrencyModel) TableName() string {
	return "currencies"
}

// ToDomain converts the persistence model to a domain Currency.
func (m *CurrencyModel) ToDomain() *catalog.Currency {
	return &catalog.Currency{
		Code:      m.Code,
		Rate:      m.Rate,
		IsDefault: m.IsDefault,
		UpdatedAt: m.UpdatedAt,
	}
}

// CurrencyModelFromDomain creates a new persistence model from a domain Currency.
func CurrencyModelFromDomain(c *catalog.Currency) *CurrencyModel {
	return &CurrencyModel{
		Code:      c.Code,
		Rate:      c.Rate,
		IsDefault: c.IsDefault,
		UpdatedAt: c.UpdatedAt,
	}
}
