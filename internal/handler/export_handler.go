package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-booking-api/internal/models"
	"github.com/noah-isme/tutor-booking-api/internal/service"
	appErrors "github.com/noah-isme/tutor-booking-api/pkg/errors"
	"github.com/noah-isme/tutor-booking-api/pkg/response"
	"github.com/noah-isme/tutor-booking-api/pkg/storage"
)

// ExportHandler exposes asynchronous reschedule-history exports.
type ExportHandler struct {
	service *service.ExportService
	store   *storage.LocalStorage
}

// NewExportHandler creates a new handler.
func NewExportHandler(svc *service.ExportService, store *storage.LocalStorage) *ExportHandler {
	return &ExportHandler{service: svc, store: store}
}

type exportRequest struct {
	Format    string `json:"format" binding:"required"`
	StudentID string `json:"student_id"`
	Status    string `json:"status"`
}

// Create godoc
// @Summary Request a reschedule-history export
// @Description Queue an asynchronous CSV or PDF export of reschedule records
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body exportRequest true "Export request"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export request"))
		return
	}

	job, err := h.service.Enqueue(service.ExportFormat(req.Format), models.RescheduleFilter{
		StudentID: req.StudentID,
		Status:    req.Status,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusAccepted, job, nil)
}

// Status godoc
// @Summary Check an export job
// @Tags Admin
// @Produce json
// @Param id path string true "Export job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/exports/{id} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	job, err := h.service.Job(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download a finished export
// @Tags Admin
// @Produce octet-stream
// @Param id path string true "Export job ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/exports/{id}/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	job, err := h.service.Job(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if job.Status != service.ExportCompleted {
		response.Error(c, appErrors.Clone(appErrors.ErrNotEligible, "export is not finished"))
		return
	}

	c.FileAttachment(h.store.Path(job.File), job.ID+"."+string(job.Format))
}
