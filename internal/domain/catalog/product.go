package catalog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/erp/catalog-engine/internal/domain/shared"
)

// LocalizedText maps a language code to text
type LocalizedText map[string]string

// IsBlank reports whether no language carries non-blank text
func (t LocalizedText) IsBlank() bool {
	for _, v := range t {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Clone returns a copy of the text map
func (t LocalizedText) Clone() LocalizedText {
	out := make(LocalizedText, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// AttributeSelection is a free-form attribute with its selected values
type AttributeSelection struct {
	AttributeID int64   `json:"attributeId"`
	ValueIDs    []int64 `json:"valueIds"`
}

// AuditEntry is a single line of the product audit log
type AuditEntry struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// Product is the catalog aggregate root. It owns its variants and its
// per-category ordering state. Stock lives in the inventory ledger.
type Product struct {
	shared.BaseAggregateRoot
	Name        LocalizedText
	Enabled     bool
	Categories  []CategoryMembership
	Variants    []Variant
	Attributes  []AttributeSelection
	ViewCount   int64
	SalesCount  int64
	AuditLog    []AuditEntry
	Breadcrumbs []BreadcrumbsVariant
}

// NewProduct creates a new product with an allocated ID
func NewProduct(id int64, name LocalizedText) (*Product, error) {
	if id <= 0 {
		return nil, shared.NewValidationError("product id must be positive")
	}
	if err := validateProductName(name); err != nil {
		return nil, err
	}

	return &Product{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(id),
		Name:              name.Clone(),
		Enabled:           true,
		Categories:        make([]CategoryMembership, 0),
		Variants:          make([]Variant, 0),
		Attributes:        make([]AttributeSelection, 0),
		AuditLog:          make([]AuditEntry, 0),
	}, nil
}

// Rename replaces the localized name
func (p *Product) Rename(name LocalizedText) error {
	if err := validateProductName(name); err != nil {
		return err
	}
	p.Name = name.Clone()
	return nil
}

// Membership returns the product's membership in the given category
func (p *Product) Membership(categoryID int64) (*CategoryMembership, bool) {
	for i := range p.Categories {
		if p.Categories[i].CategoryID == categoryID {
			return &p.Categories[i], true
		}
	}
	return nil, false
}

// CategoryIDs returns the ids of all categories the product belongs to, in membership order
func (p *Product) CategoryIDs() []int64 {
	ids := make([]int64, len(p.Categories))
	for i, m := range p.Categories {
		ids[i] = m.CategoryID
	}
	return ids
}

// VariantBySKU finds a variant by SKU
func (p *Product) VariantBySKU(sku int64) (*Variant, bool) {
	for i := range p.Variants {
		if p.Variants[i].SKU == sku {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// SKUs returns the SKUs of every variant
func (p *Product) SKUs() []int64 {
	skus := make([]int64, 0, len(p.Variants))
	for _, v := range p.Variants {
		if v.SKU > 0 {
			skus = append(skus, v.SKU)
		}
	}
	return skus
}

// EnabledVariantCount returns the number of enabled variants
func (p *Product) EnabledVariantCount() int {
	n := 0
	for _, v := range p.Variants {
		if v.Enabled {
			n++
		}
	}
	return n
}

// EnforceAvailability disables a product that has no enabled variant.
// Returns true if the flag was changed.
func (p *Product) EnforceAvailability() bool {
	if p.Enabled && p.EnabledVariantCount() == 0 {
		p.Enabled = false
		return true
	}
	return false
}

// AppendAudit appends a timestamped line to the audit log
func (p *Product) AppendAudit(format string, args ...any) {
	p.AuditLog = append(p.AuditLog, AuditEntry{
		At:   time.Now(),
		Text: fmt.Sprintf(format, args...),
	})
}

// MarkSaved bumps the version and update time before a persist
func (p *Product) MarkSaved() {
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
}

// ValidateVariants checks every variant and the uniqueness of SKUs and
// slugs inside the product
func (p *Product) ValidateVariants() error {
	seenSKU := make(map[int64]struct{}, len(p.Variants))
	seenSlug := make(map[string]struct{}, len(p.Variants))
	for i := range p.Variants {
		v := &p.Variants[i]
		if err := v.Validate(); err != nil {
			return err
		}
		if v.SKU > 0 {
			if _, dup := seenSKU[v.SKU]; dup {
				return shared.NewValidationError("duplicate SKU %d", v.SKU)
			}
			seenSKU[v.SKU] = struct{}{}
		}
		if _, dup := seenSlug[v.Slug]; dup {
			return shared.NewValidationError("duplicate slug %q", v.Slug)
		}
		seenSlug[v.Slug] = struct{}{}
	}
	return nil
}

// SortVariants orders variants by their position
func (p *Product) SortVariants() {
	sort.SliceStable(p.Variants, func(i, j int) bool {
		return p.Variants[i].Position < p.Variants[j].Position
	})
}

func validateProductName(name LocalizedText) error {
	if name.IsBlank() {
		return shared.NewValidationError("product name cannot be empty")
	}
	for lang, text := range name {
		if len(text) > 300 {
			return shared.NewValidationError("product name (%s) cannot exceed 300 characters", lang)
		}
	}
	return nil
}

// Ensure Product implements AggregateRoot
var _ shared.AggregateRoot = (*Product)(nil)
