package handler

import (
	"context"
	"net/http"
	"net/url"

	catalogapp "github.com/erp/catalog-engine/internal/application/catalog"
	"github.com/gin-gonic/gin"
)

// ProductLister serves public category listings
type ProductLister interface {
	SearchProducts(ctx context.Context, q catalogapp.ListingQuery) (*catalogapp.ListingPage, error)
}

// SlugResolver resolves public product slugs
type SlugResolver interface {
	GetBySlug(ctx context.Context, slug string) (*catalogapp.SlugLookup, error)
}

// StorefrontHandler handles the public catalog endpoints
type StorefrontHandler struct {
	BaseHandler
	listings ProductLister
	slugs    SlugResolver
	// productPath is the public path prefix redirects point at
	productPath string
}

// NewStorefrontHandler creates a new StorefrontHandler. productPath is the
// route prefix of GetBySlug, e.g. "/api/v1/products".
func NewStorefrontHandler(listings ProductLister, slugs SlugResolver, productPath string) *StorefrontHandler {
	return &StorefrontHandler{listings: listings, slugs: slugs, productPath: productPath}
}

// List godoc
// @ID           listStorefrontProducts
// @Summary      List products of a category
// @Description  Enabled products of a category, highest reversed sort order first
// @Tags         storefront
// @Produce      json
// @Param        category query int true "Category ID"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Items per page" default(20) maximum(100)
// @Success      200 {object} APIResponse[[]ListingDocument]
// @Failure      400 {object} ErrorResponse
// @Failure      429 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Router       /products [get]
func (h *StorefrontHandler) List(c *gin.Context) {
	var q catalogapp.ListingQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}

	page, err := h.listings.SearchProducts(c.Request.Context(), q)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// GetBySlug godoc
// @ID           getStorefrontProduct
// @Summary      Get a product by slug
// @Description  Resolve a public product slug. A retired slug answers with a permanent redirect to its successor
// @Tags         storefront
// @Produce      json
// @Param        slug path string true "Variant slug"
// @Success      200 {object} APIResponse[catalogapp.ProductDTO]
// @Success      301 {string} string "Moved permanently"
// @Failure      404 {object} ErrorResponse
// @Failure      429 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /products/{slug} [get]
func (h *StorefrontHandler) GetBySlug(c *gin.Context) {
	res, err := h.slugs.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	if res.RedirectTo != "" {
		c.Header("Cache-Control", "public, max-age=3600")
		c.Redirect(http.StatusMovedPermanently, h.productPath+"/"+url.PathEscape(res.RedirectTo))
		return
	}
	h.Success(c, res.Product)
}
