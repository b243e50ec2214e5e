package handler

import (
	"context"

	catalogapp "github.com/erp/catalog-engine/internal/application/catalog"
	"github.com/gin-gonic/gin"
)

// SortOrderManager pins, unpins and recomputes category display order
type SortOrderManager interface {
	LockProductSortOrder(ctx context.Context, input catalogapp.LockSortOrderInput) (*catalogapp.SortOrderResult, error)
	UnlockProductSortOrder(ctx context.Context, input catalogapp.UnlockSortOrderInput) (*catalogapp.SortOrderResult, error)
	RecomputeCategoryOrder(ctx context.Context, categoryID int64) (*catalogapp.SortOrderResult, error)
}

// SortOrderHandler handles the merchandising endpoints
type SortOrderHandler struct {
	BaseHandler
	sortOrder SortOrderManager
}

// NewSortOrderHandler creates a new SortOrderHandler
func NewSortOrderHandler(sortOrder SortOrderManager) *SortOrderHandler {
	return &SortOrderHandler{sortOrder: sortOrder}
}

// FixSortOrder godoc
// @ID           fixProductSortOrder
// @Summary      Pin a product in a category
// @Description  Pin a product at the start or end of a target product; products in the way are pushed up
// @Tags         sort-order
// @Accept       json
// @Produce      json
// @Param        request body catalogapp.LockSortOrderInput true "Pin request"
// @Success      200 {object} APIResponse[catalogapp.SortOrderResult]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/products/action/fix-sort-order [post]
func (h *SortOrderHandler) FixSortOrder(c *gin.Context) {
	var req catalogapp.LockSortOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	res, err := h.sortOrder.LockProductSortOrder(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, res)
}

// UnfixSortOrder godoc
// @ID           unfixProductSortOrder
// @Summary      Unpin a product in a category
// @Description  Restore the order the product had before it was pinned and recompute the category
// @Tags         sort-order
// @Accept       json
// @Produce      json
// @Param        request body catalogapp.UnlockSortOrderInput true "Unpin request"
// @Success      200 {object} APIResponse[catalogapp.SortOrderResult]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/products/action/unfix-sort-order [post]
func (h *SortOrderHandler) UnfixSortOrder(c *gin.Context) {
	var req catalogapp.UnlockSortOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	res, err := h.sortOrder.UnlockProductSortOrder(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, res)
}

// RecomputeCategory godoc
// @ID           recomputeCategorySortOrder
// @Summary      Recompute one category
// @Description  Recompute the display order of one category around its pinned products
// @Tags         sort-order
// @Produce      json
// @Param        id path int true "Category ID"
// @Success      200 {object} APIResponse[catalogapp.SortOrderResult]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/categories/{id}/action/recompute-sort-order [post]
func (h *SortOrderHandler) RecomputeCategory(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	res, err := h.sortOrder.RecomputeCategoryOrder(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, res)
}
