package catalog_test

import (
	"context"
	"errors"
	"testing"

	catalogapp "github.com/erp/catalog-engine/internal/application/catalog"
	"github.com/erp/catalog-engine/internal/domain/catalog"
	"github.com/erp/catalog-engine/internal/domain/shared"
	"github.com/erp/catalog-engine/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listedIDs(page *catalogapp.ListingPage) []float64 {
	ids := make([]float64, len(page.Items))
	for i, item := range page.Items {
		ids[i], _ = item["id"].(float64)
	}
	return ids
}

func TestStorefrontService_SearchProducts(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	c.addCategory(t, 1, nil, "lamps")
	c.addCategory(t, 2, nil, "chairs")
	for _, slug := range []string{"a", "b", "c"} {
		c.create(t, slug, []int64{1}, variant(slug, 1, "uah"))
	}
	_, err := c.service.CreateProduct(ctx, catalogapp.CreateProductInput{
		Name:        catalog.LocalizedText{"en": "Hidden"},
		CategoryIDs: []int64{1},
		Variants:    []catalogapp.VariantInput{variant("hidden", 1, "uah")},
	})
	require.NoError(t, err)
	c.create(t, "chair", []int64{2}, variant("chair", 1, "uah"))
	_, err = c.projection.Reindex(ctx, true)
	require.NoError(t, err)

	storefront := catalogapp.NewStorefrontService(c.sink, c.products, nil)

	page, err := storefront.SearchProducts(ctx, catalogapp.ListingQuery{CategoryID: 1, Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total, "disabled products are not listed")
	assert.Equal(t, []float64{3, 2}, listedIDs(page), "highest reversed sort order first")

	page, err = storefront.SearchProducts(ctx, catalogapp.ListingQuery{CategoryID: 1, Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, listedIDs(page))

	page, err = storefront.SearchProducts(ctx, catalogapp.ListingQuery{CategoryID: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)

	_, err = c.sortOrder.LockProductSortOrder(ctx, catalogapp.LockSortOrderInput{
		ProductID: 1, CategoryID: 1, TargetProductID: 3, Position: "end",
	})
	require.NoError(t, err)
	require.NoError(t, c.projection.ProjectProducts(ctx, []int64{1, 2, 3}))
	page, err = storefront.SearchProducts(ctx, catalogapp.ListingQuery{CategoryID: 1, Page: 1, PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3, 2}, listedIDs(page), "an end pin lands one slot above its target")

	c.sink.SetFailure(errors.New("connection refused"))
	_, err = storefront.SearchProducts(ctx, catalogapp.ListingQuery{CategoryID: 2})
	assert.True(t, shared.IsTransientSinkFailure(err))
}

func TestStorefrontService_Cache(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	c.addCategory(t, 1, nil, "lamps")
	c.create(t, "a", []int64{1}, variant("a", 1, "uah"))
	_, err := c.projection.Reindex(ctx, false)
	require.NoError(t, err)

	listings := cache.NewCatalogCache()
	t.Cleanup(listings.Stop)
	storefront := catalogapp.NewStorefrontService(c.sink, c.products, listings)
	query := catalogapp.ListingQuery{CategoryID: 1, Page: 1, PageSize: 10}

	page, err := storefront.SearchProducts(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	n, err := storefront.CountProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	c.create(t, "b", []int64{1}, variant("b", 1, "uah"))
	_, err = c.projection.Reindex(ctx, false)
	require.NoError(t, err)

	page, err = storefront.SearchProducts(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total, "served from cache")
	n, err = storefront.CountProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	listings.InvalidateAll()
	page, err = storefront.SearchProducts(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	n, err = storefront.CountProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
