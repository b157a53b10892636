package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-booking-api/internal/availability"
	"github.com/noah-isme/tutor-booking-api/internal/models"
	"github.com/noah-isme/tutor-booking-api/internal/service"
	appErrors "github.com/noah-isme/tutor-booking-api/pkg/errors"
	"github.com/noah-isme/tutor-booking-api/pkg/response"
)

type fakeAvailabilitySrv struct {
	resp    *service.AvailabilityResponse
	err     error
	lastReq *service.AvailabilityRequest
}

func (f *fakeAvailabilitySrv) Query(ctx context.Context, req *service.AvailabilityRequest) (*service.AvailabilityResponse, error) {
	f.lastReq = req
	return f.resp, f.err
}

func TestAvailabilityHandlerQuerySuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeAvailabilitySrv{resp: &service.AvailabilityResponse{
		TeacherID: "teacher-1",
		Days: []service.DayAvailability{{
			Date:      "2026-03-02",
			Available: true,
			Result: availability.DayResult{
				Slots: []models.TimeRange{{Start: "09:00:00", End: "10:00:00"}},
			},
		}},
	}}
	handler := NewAvailabilityHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/availability?start_date=2026-03-02&end_date=2026-03-02&teacher_id=teacher-1", nil)

	handler.Query(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "teacher-1", srv.lastReq.TeacherID)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.NotNil(t, envelope.Data)
	assert.Nil(t, envelope.Error)
}

func TestAvailabilityHandlerQueryServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAvailabilityHandler(&fakeAvailabilitySrv{
		err: appErrors.Clone(appErrors.ErrValidation, "end date precedes start date"),
	})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/availability?start_date=2026-03-05&end_date=2026-03-02", nil)

	handler.Query(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
