package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-booking-api/internal/service"
	"github.com/noah-isme/tutor-booking-api/pkg/response"
)

type sweepRunner interface {
	RunNow(ctx context.Context) (*service.SweepReport, error)
}

// SweepHandler exposes the manual lifecycle sweep trigger.
type SweepHandler struct {
	service sweepRunner
}

// NewSweepHandler creates a new handler.
func NewSweepHandler(svc sweepRunner) *SweepHandler {
	return &SweepHandler{service: svc}
}

// Run godoc
// @Summary Run a lifecycle sweep
// @Description Execute one sweep pass immediately and report what changed
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/sweep [post]
func (h *SweepHandler) Run(c *gin.Context) {
	report, err := h.service.RunNow(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, report, nil)
}
