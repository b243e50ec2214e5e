package catalog

import (
	"github.com/erp/catalog-engine/internal/domain/shared"
)

// MaxCategoryDepth is the maximum depth of category hierarchy
const MaxCategoryDepth = 5

// Category is a node of the category tree. Categories are maintained
// elsewhere; the engine reads them to validate memberships and build
// breadcrumbs.
type Category struct {
	ID       int64
	ParentID *int64
	Name     LocalizedText
	Slug     string
	Level    int
}

// IsRoot returns true if this is a root category
func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}

// CategoryMembership is the per-category state a product carries.
// ReversedSortOrder is shown in descending order; ReversedSortOrderBeforeFix
// only means something while IsSortOrderFixed is set.
type CategoryMembership struct {
	CategoryID                 int64 `json:"categoryId"`
	ReversedSortOrder          int   `json:"reversedSortOrder"`
	IsSortOrderFixed           bool  `json:"isSortOrderFixed"`
	ReversedSortOrderBeforeFix int   `json:"reversedSortOrderBeforeFix"`
}

// CategoryTree is an in-memory view of the category hierarchy
type CategoryTree struct {
	nodes map[int64]*Category
}

// NewCategoryTree builds a tree from a flat category list
func NewCategoryTree(categories []Category) *CategoryTree {
	nodes := make(map[int64]*Category, len(categories))
	for i := range categories {
		c := categories[i]
		nodes[c.ID] = &c
	}
	return &CategoryTree{nodes: nodes}
}

// Get returns a category by ID
func (t *CategoryTree) Get(id int64) (*Category, bool) {
	c, ok := t.nodes[id]
	return c, ok
}

// Path returns the chain of categories from the root down to id
func (t *CategoryTree) Path(id int64) ([]*Category, error) {
	chain := make([]*Category, 0, MaxCategoryDepth)
	current, ok := t.nodes[id]
	if !ok {
		return nil, shared.NewNotFoundError("category %d not found", id)
	}
	for current != nil {
		if len(chain) == MaxCategoryDepth {
			return nil, shared.NewValidationError("category %d exceeds the maximum depth of %d", id, MaxCategoryDepth)
		}
		chain = append(chain, current)
		if current.ParentID == nil {
			break
		}
		parent, ok := t.nodes[*current.ParentID]
		if !ok {
			return nil, shared.NewNotFoundError("parent category %d of %d not found", *current.ParentID, current.ID)
		}
		current = parent
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
