package handler

import (
	"context"

	inventoryapp "github.com/erp/catalog-engine/internal/application/inventory"
	"github.com/gin-gonic/gin"
)

// StockLedger is the inventory ledger used by order processing
type StockLedger interface {
	Reserve(ctx context.Context, input inventoryapp.ReserveInput) (*inventoryapp.InventoryResponse, error)
	Release(ctx context.Context, input inventoryapp.ReleaseInput) (*inventoryapp.InventoryResponse, error)
	ReleaseAndDeduct(ctx context.Context, input inventoryapp.ReserveInput) (*inventoryapp.InventoryResponse, error)
	SetQuantity(ctx context.Context, input inventoryapp.SetQuantityInput) (*inventoryapp.InventoryResponse, error)
	Get(ctx context.Context, sku int64) (*inventoryapp.InventoryResponse, error)
}

// SetQuantityRequest is the body of PUT /admin/inventory/:sku/quantity
type SetQuantityRequest struct {
	Quantity *int64 `json:"quantity" binding:"required,gte=0"`
}

// InventoryHandler exposes the inventory ledger
type InventoryHandler struct {
	BaseHandler
	ledger StockLedger
}

// NewInventoryHandler creates a new InventoryHandler
func NewInventoryHandler(ledger StockLedger) *InventoryHandler {
	return &InventoryHandler{ledger: ledger}
}

// Get godoc
// @ID           getInventory
// @Summary      Get inventory of a SKU
// @Description  Retrieve the stock record of a SKU with its reservations
// @Tags         inventory
// @Produce      json
// @Param        sku path int true "SKU"
// @Success      200 {object} APIResponse[inventoryapp.InventoryResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/inventory/{sku} [get]
func (h *InventoryHandler) Get(c *gin.Context) {
	sku, ok := h.parseID(c, "sku")
	if !ok {
		return
	}
	record, err := h.ledger.Get(c.Request.Context(), sku)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, record)
}

// SetQuantity godoc
// @ID           setInventoryQuantity
// @Summary      Set stock quantity
// @Description  Overwrite the stock of a SKU; refused while reservations exceed the new quantity
// @Tags         inventory
// @Accept       json
// @Produce      json
// @Param        sku path int true "SKU"
// @Param        request body SetQuantityRequest true "New quantity"
// @Success      200 {object} APIResponse[inventoryapp.InventoryResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/inventory/{sku}/quantity [put]
func (h *InventoryHandler) SetQuantity(c *gin.Context) {
	sku, ok := h.parseID(c, "sku")
	if !ok {
		return
	}
	var req SetQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	record, err := h.ledger.SetQuantity(c.Request.Context(), inventoryapp.SetQuantityInput{SKU: sku, Quantity: *req.Quantity})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, record)
}

// Reserve godoc
// @ID           reserveInventory
// @Summary      Reserve stock
// @Description  Hold stock of a SKU for an order
// @Tags         inventory
// @Accept       json
// @Produce      json
// @Param        request body inventoryapp.ReserveInput true "Reservation"
// @Success      200 {object} APIResponse[inventoryapp.InventoryResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/inventory/action/reserve [post]
func (h *InventoryHandler) Reserve(c *gin.Context) {
	var req inventoryapp.ReserveInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	record, err := h.ledger.Reserve(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, record)
}

// Release godoc
// @ID           releaseInventory
// @Summary      Release reservations
// @Description  Drop every reservation of an order on a SKU; repeating it changes nothing
// @Tags         inventory
// @Accept       json
// @Produce      json
// @Param        request body inventoryapp.ReleaseInput true "Release request"
// @Success      200 {object} APIResponse[inventoryapp.InventoryResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/inventory/action/release [post]
func (h *InventoryHandler) Release(c *gin.Context) {
	var req inventoryapp.ReleaseInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	record, err := h.ledger.Release(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, record)
}

// ReleaseAndDeduct godoc
// @ID           releaseAndDeductInventory
// @Summary      Settle a shipped order
// @Description  Drop the reservations of an order and deduct the shipped quantity from stock
// @Tags         inventory
// @Accept       json
// @Produce      json
// @Param        request body inventoryapp.ReserveInput true "Shipment"
// @Success      200 {object} APIResponse[inventoryapp.InventoryResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/inventory/action/release-and-deduct [post]
func (h *InventoryHandler) ReleaseAndDeduct(c *gin.Context) {
	var req inventoryapp.ReserveInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	record, err := h.ledger.ReleaseAndDeduct(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, record)
}
