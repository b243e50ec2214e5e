package handler

import (
	"context"

	catalogapp "github.com/erp/catalog-engine/internal/application/catalog"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// RateChanger applies a new exchange rate
type RateChanger interface {
	HandleRateChange(ctx context.Context, change catalogapp.RateChange) (*catalogapp.RateChangeResult, error)
}

// SetRateRequest is the body of PUT /admin/currencies/:code/rate
type SetRateRequest struct {
	Rate decimal.Decimal `json:"rate"`
}

// CurrencyHandler handles currency administration
type CurrencyHandler struct {
	BaseHandler
	prices RateChanger
}

// NewCurrencyHandler creates a new CurrencyHandler
func NewCurrencyHandler(prices RateChanger) *CurrencyHandler {
	return &CurrencyHandler{prices: prices}
}

// SetRate godoc
// @ID           setCurrencyRate
// @Summary      Set an exchange rate
// @Description  Store a new rate and reprice every variant quoted in the currency
// @Tags         currencies
// @Accept       json
// @Produce      json
// @Param        code path string true "Currency code" minlength(3) maxlength(3)
// @Param        request body SetRateRequest true "New rate"
// @Success      200 {object} APIResponse[catalogapp.RateChangeResult]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/currencies/{code}/rate [put]
func (h *CurrencyHandler) SetRate(c *gin.Context) {
	var req SetRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	res, err := h.prices.HandleRateChange(c.Request.Context(), catalogapp.RateChange{
		Currency: c.Param("code"),
		Rate:     req.Rate,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, res)
}
