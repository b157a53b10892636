package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-booking-api/internal/middleware"
	"github.com/noah-isme/tutor-booking-api/internal/models"
	"github.com/noah-isme/tutor-booking-api/internal/service"
	appErrors "github.com/noah-isme/tutor-booking-api/pkg/errors"
	"github.com/noah-isme/tutor-booking-api/pkg/response"
)

type rescheduleRunner interface {
	Reschedule(ctx context.Context, req *service.RescheduleRequest) (*service.RescheduleResult, error)
	Cancel(ctx context.Context, recordID string) (*service.ReversalResult, error)
	List(ctx context.Context, filter models.RescheduleFilter) ([]models.RescheduleRecord, int, error)
}

// RescheduleHandler exposes the reschedule transaction and its history.
type RescheduleHandler struct {
	service rescheduleRunner
}

// NewRescheduleHandler creates a new handler.
func NewRescheduleHandler(svc rescheduleRunner) *RescheduleHandler {
	return &RescheduleHandler{service: svc}
}

// Create godoc
// @Summary Reschedule a booking
// @Description Move a student's booking to a new slot, consuming one reschedule credit
// @Tags Reschedules
// @Accept json
// @Produce json
// @Param payload body service.RescheduleRequest true "Reschedule payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /reschedules [post]
func (h *RescheduleHandler) Create(c *gin.Context) {
	var req service.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reschedule payload"))
		return
	}

	// A student token may only move its own bookings.
	if claims, ok := middleware.Claims(c); ok && claims.Role == models.RoleStudent {
		if req.StudentID != claims.StudentID {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
	}

	res, err := h.service.Reschedule(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, res)
}

// Cancel godoc
// @Summary Cancel a reschedule
// @Description Reverse every effect of a confirmed reschedule
// @Tags Reschedules
// @Produce json
// @Param id path string true "Reschedule record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/reschedules/{id}/cancel [post]
func (h *RescheduleHandler) Cancel(c *gin.Context) {
	res, err := h.service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// List godoc
// @Summary List reschedule history
// @Description List reschedule records with optional student and status filters
// @Tags Reschedules
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reschedules [get]
func (h *RescheduleHandler) List(c *gin.Context) {
	filter := models.RescheduleFilter{
		StudentID: c.Query("student_id"),
		Status:    c.Query("status"),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	// Students see only their own history regardless of the filter.
	if claims, ok := middleware.Claims(c); ok && claims.Role == models.RoleStudent {
		filter.StudentID = claims.StudentID
	}

	records, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, records, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}
