package catalog

import (
	"context"

	"github.com/erp/catalog-engine/internal/domain/shared"
)

// ProductRepository defines the interface for product persistence.
// Products are stored with their variants and category memberships.
type ProductRepository interface {
	// FindByID finds a product by its ID
	FindByID(ctx context.Context, id int64) (*Product, error)

	// FindByIDs finds multiple products by their IDs
	FindByIDs(ctx context.Context, ids []int64) ([]*Product, error)

	// FindAll finds products matching the filter
	FindAll(ctx context.Context, filter shared.Filter) ([]*Product, error)

	// FindIDsAfter returns up to limit product ids greater than afterID, ascending
	FindIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error)

	// FindByCurrency returns the ids of products having a variant quoted in currency
	FindByCurrency(ctx context.Context, currency string) ([]int64, error)

	// Count counts products matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)

	// Save creates or updates a product with its variants and memberships
	Save(ctx context.Context, product *Product) error

	// AppendAudit appends one audit log line without rewriting the product
	AppendAudit(ctx context.Context, productID int64, text string) error

	// Delete deletes a product with its variants and memberships
	Delete(ctx context.Context, id int64) error

	// SortEntries loads the ordering state of every product in a category
	SortEntries(ctx context.Context, categoryID int64) ([]SortEntry, error)

	// SaveSortEntries writes the given ordering state back in a single bulk write
	SaveSortEntries(ctx context.Context, categoryID int64, entries []SortEntry) error

	// MaxSortOrder returns the highest reversed sort order in a category, -1 if empty
	MaxSortOrder(ctx context.Context, categoryID int64) (int, error)

	// CategoryIDsInUse returns every category id that has at least one member
	CategoryIDsInUse(ctx context.Context) ([]int64, error)

	// LockCategory serializes sort-order writers of one category until the
	// surrounding transaction ends
	LockCategory(ctx context.Context, categoryID int64) error
}
