package catalog

import (
	"context"
)

// CategoryRepository reads the category tree
type CategoryRepository interface {
	// FindByID finds a category by its ID
	FindByID(ctx context.Context, id int64) (*Category, error)

	// FindAll returns every category
	FindAll(ctx context.Context) ([]Category, error)

	// Save creates or updates a category
	Save(ctx context.Context, category *Category) error
}

// CurrencyRepository persists exchange rates
type CurrencyRepository interface {
	// FindByCode finds a currency by code
	FindByCode(ctx context.Context, code string) (*Currency, error)

	// FindAll returns every currency
	FindAll(ctx context.Context) ([]Currency, error)

	// Save upserts a currency rate
	Save(ctx context.Context, currency *Currency) error
}
