package catalog

// Breadcrumb is one step of a category path
type Breadcrumb struct {
	CategoryID int64         `json:"categoryId"`
	Name       LocalizedText `json:"name"`
	Slug       string        `json:"slug"`
}

// BreadcrumbsVariant is one possible root-to-leaf path for a product
type BreadcrumbsVariant struct {
	Active bool         `json:"active"`
	Chain  []Breadcrumb `json:"chain"`
}

// BuildBreadcrumbs derives one breadcrumb chain per category membership.
// The deepest chain is flagged active; on a tie the earliest membership wins.
func BuildBreadcrumbs(memberships []CategoryMembership, tree *CategoryTree) ([]BreadcrumbsVariant, error) {
	variants := make([]BreadcrumbsVariant, 0, len(memberships))
	active := -1
	for _, m := range memberships {
		path, err := tree.Path(m.CategoryID)
		if err != nil {
			return nil, err
		}

		chain := make([]Breadcrumb, len(path))
		for i, c := range path {
			chain[i] = Breadcrumb{CategoryID: c.ID, Name: c.Name.Clone(), Slug: c.Slug}
		}
		variants = append(variants, BreadcrumbsVariant{Chain: chain})

		if active < 0 || len(chain) > len(variants[active].Chain) {
			active = len(variants) - 1
		}
	}
	if active >= 0 {
		variants[active].Active = true
	}
	return variants, nil
}
