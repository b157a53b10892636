package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-booking-api/internal/service"
	appErrors "github.com/noah-isme/tutor-booking-api/pkg/errors"
	"github.com/noah-isme/tutor-booking-api/pkg/response"
)

type availabilityQuerier interface {
	Query(ctx context.Context, req *service.AvailabilityRequest) (*service.AvailabilityResponse, error)
}

// AvailabilityHandler exposes free-slot queries.
type AvailabilityHandler struct {
	service availabilityQuerier
}

// NewAvailabilityHandler creates a new handler.
func NewAvailabilityHandler(svc availabilityQuerier) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc}
}

// Query godoc
// @Summary Query teacher availability
// @Description Compute free slots over a date window, per teacher or across all active teachers ranked for a student
// @Tags Availability
// @Produce json
// @Param start_date query string true "Window start (YYYY-MM-DD)"
// @Param end_date query string true "Window end (YYYY-MM-DD)"
// @Param teacher_id query string false "Restrict to one teacher"
// @Param student_id query string false "Rank by the student's primary teacher"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /availability [get]
func (h *AvailabilityHandler) Query(c *gin.Context) {
	var req service.AvailabilityRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid availability query"))
		return
	}

	res, err := h.service.Query(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}
