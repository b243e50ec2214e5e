package catalog

import (
	"context"
	"fmt"

	"github.com/erp/catalog-engine/internal/domain/catalog"
	"github.com/erp/catalog-engine/internal/domain/search"
	"github.com/erp/catalog-engine/internal/domain/shared"
)

// ListingCache caches public reads for a bounded staleness window. It is
// invalidated by catalog change notifications.
type ListingCache interface {
	GetListing(key string) (*ListingPage, bool)
	SetListing(key string, page *ListingPage)
	GetCount(key string) (int64, bool)
	SetCount(key string, n int64)
}

// ListingQuery is a public category listing request
type ListingQuery struct {
	CategoryID int64 `form:"category" binding:"required,gt=0"`
	Page       int   `form:"page" binding:"omitempty,min=1"`
	PageSize   int   `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// ListingPage is one page of search documents
type ListingPage struct {
	Items    []map[string]any `json:"items"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// StorefrontService serves public product listings from the search sink
type StorefrontService struct {
	sink     search.Sink
	products catalog.ProductRepository
	cache    ListingCache
}

// NewStorefrontService creates a new StorefrontService
func NewStorefrontService(sink search.Sink, products catalog.ProductRepository, cache ListingCache) *StorefrontService {
	return &StorefrontService{sink: sink, products: products, cache: cache}
}

// SearchProducts lists enabled products of a category in display order
func (s *StorefrontService) SearchProducts(ctx context.Context, q ListingQuery) (*ListingPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}
	key := fmt.Sprintf("listing:%d:%d:%d", q.CategoryID, q.Page, q.PageSize)
	if s.cache != nil {
		if page, ok := s.cache.GetListing(key); ok {
			return page, nil
		}
	}

	query := catalog.CategoryListingQuery(q.CategoryID, (q.Page-1)*q.PageSize, q.PageSize)
	res, err := s.sink.SearchByFilters(ctx, catalog.ProductIndex, query, catalog.ProductSearchSchema)
	if err != nil {
		return nil, err
	}

	page := &ListingPage{
		Items:    make([]map[string]any, len(res.Items)),
		Total:    res.Total,
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	for i, doc := range res.Items {
		page.Items[i] = doc.Body
	}
	if s.cache != nil {
		s.cache.SetListing(key, page)
	}
	return page, nil
}

// CountProducts returns the number of products in catalog storage
func (s *StorefrontService) CountProducts(ctx context.Context) (int64, error) {
	const key = "count:products"
	if s.cache != nil {
		if n, ok := s.cache.GetCount(key); ok {
			return n, nil
		}
	}
	n, err := s.products.Count(ctx, shared.DefaultFilter())
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		s.cache.SetCount(key, n)
	}
	return n, nil
}
