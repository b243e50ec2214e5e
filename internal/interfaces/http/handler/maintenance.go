package handler

import (
	"errors"
	"strconv"

	"github.com/erp/catalog-engine/internal/infrastructure/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// JobQueue accepts maintenance jobs and reports on them
type JobQueue interface {
	Submit(kind scheduler.JobKind, recreate bool) (*scheduler.Job, error)
	GetJob(id uuid.UUID) (*scheduler.Job, error)
}

// MaintenanceHandler queues long running catalog maintenance
type MaintenanceHandler struct {
	BaseHandler
	jobs JobQueue
}

// NewMaintenanceHandler creates a new MaintenanceHandler
func NewMaintenanceHandler(jobs JobQueue) *MaintenanceHandler {
	return &MaintenanceHandler{jobs: jobs}
}

// Reindex godoc
// @ID           reindexSearch
// @Summary      Rebuild the search projection
// @Description  Queue a full reindex job. With recreate the collection is dropped first
// @Tags         maintenance
// @Produce      json
// @Param        recreate query bool false "Drop the collection before rebuilding" default(false)
// @Success      202 {object} APIResponse[scheduler.Job]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/search/action/reindex [post]
func (h *MaintenanceHandler) Reindex(c *gin.Context) {
	recreate := false
	if raw := c.Query("recreate"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.BadRequest(c, "Invalid recreate flag")
			return
		}
		recreate = v
	}
	h.submit(c, scheduler.JobKindReindex, recreate)
}

// RecomputeSortOrder godoc
// @ID           recomputeAllSortOrder
// @Summary      Recompute every category
// @Description  Queue a job that recomputes the display order of every category
// @Tags         maintenance
// @Produce      json
// @Success      202 {object} APIResponse[scheduler.Job]
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Failure      503 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/sort-order/action/recompute [post]
func (h *MaintenanceHandler) RecomputeSortOrder(c *gin.Context) {
	h.submit(c, scheduler.JobKindRecomputeSortOrder, false)
}

// GetJob godoc
// @ID           getMaintenanceJob
// @Summary      Get a maintenance job
// @Description  Report the state of a queued or finished maintenance job
// @Tags         maintenance
// @Produce      json
// @Param        id path string true "Job ID" format(uuid)
// @Success      200 {object} APIResponse[scheduler.Job]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /admin/jobs/{id} [get]
func (h *MaintenanceHandler) GetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid job id")
		return
	}
	job, err := h.jobs.GetJob(id)
	if err != nil {
		h.jobError(c, err)
		return
	}
	h.Success(c, job)
}

func (h *MaintenanceHandler) submit(c *gin.Context, kind scheduler.JobKind, recreate bool) {
	job, err := h.jobs.Submit(kind, recreate)
	if err != nil {
		h.jobError(c, err)
		return
	}
	c.Header("Location", "/api/v1/admin/jobs/"+job.ID.String())
	h.Accepted(c, job)
}

func (h *MaintenanceHandler) jobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		h.NotFound(c, "Job not found")
	case errors.Is(err, scheduler.ErrSchedulerNotRunning):
		h.ServiceUnavailable(c, "Job scheduler is not running")
	case errors.Is(err, scheduler.ErrJobQueueFull):
		h.ServiceUnavailable(c, "Job queue is full, retry later")
	default:
		h.HandleDomainError(c, err)
	}
}
