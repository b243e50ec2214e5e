package handler

import (
	"context"

	eventapp "github.com/erp/catalog-engine/internal/application/event"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OutboxAdmin reports and repairs change notification delivery
type OutboxAdmin interface {
	GetStats(ctx context.Context) (*eventapp.OutboxStatsDTO, error)
	GetEntry(ctx context.Context, id uuid.UUID) (*eventapp.OutboxEntryDTO, error)
	RetryDeadEntries(ctx context.Context) (*eventapp.RetryResult, error)
}

// OutboxHandler handles outbox inspection
type OutboxHandler struct {
	BaseHandler
	outbox OutboxAdmin
}

// NewOutboxHandler creates a new OutboxHandler
func NewOutboxHandler(outbox OutboxAdmin) *OutboxHandler {
	return &OutboxHandler{outbox: outbox}
}

// Stats godoc
// @ID           getOutboxStats
// @Summary      Get outbox statistics
// @Description  Count change notifications per delivery status
// @Tags         outbox
// @Produce      json
// @Success      200 {object} APIResponse[eventapp.OutboxStatsDTO]
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/outbox/stats [get]
func (h *OutboxHandler) Stats(c *gin.Context) {
	stats, err := h.outbox.GetStats(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, stats)
}

// GetEntry godoc
// @ID           getOutboxEntry
// @Summary      Get an outbox entry by ID
// @Description  Retrieve a single outbox entry by its ID
// @Tags         outbox
// @Produce      json
// @Param        id path string true "Outbox Entry ID" format(uuid)
// @Success      200 {object} APIResponse[eventapp.OutboxEntryDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/outbox/{id} [get]
func (h *OutboxHandler) GetEntry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid outbox entry id")
		return
	}
	entry, err := h.outbox.GetEntry(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, entry)
}

// RetryDead godoc
// @ID           retryDeadOutboxEntries
// @Summary      Retry dead letter entries
// @Description  Requeue every dead letter entry and wake the processor
// @Tags         outbox
// @Produce      json
// @Success      200 {object} APIResponse[eventapp.RetryResult]
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/outbox/action/retry-dead [post]
func (h *OutboxHandler) RetryDead(c *gin.Context) {
	res, err := h.outbox.RetryDeadEntries(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, res)
}
