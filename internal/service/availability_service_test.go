package service

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-booking-api/internal/models"
	"github.com/noah-isme/tutor-booking-api/pkg/config"
	appErrors "github.com/noah-isme/tutor-booking-api/pkg/errors"
	"github.com/noah-isme/tutor-booking-api/pkg/timezone"
)

type fakeAvailabilityTeachers struct {
	byID   map[string]*models.Teacher
	active []models.Teacher
}

func (f *fakeAvailabilityTeachers) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	if t, ok := f.byID[id]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, assert.AnError
}

func (f *fakeAvailabilityTeachers) ListActive(ctx context.Context) ([]models.Teacher, error) {
	return f.active, nil
}

type fakeAvailabilityClasses struct {
	booked map[string][]models.TimeRange
}

func (f *fakeAvailabilityClasses) BookedRanges(ctx context.Context, teacherID, date string) ([]models.TimeRange, error) {
	return f.booked[teacherID+"/"+date], nil
}

func weekdayTeacher(id string) models.Teacher {
	return models.Teacher{
		ID:          id,
		FullName:    "Teacher " + id,
		Timezone:    "Asia/Jakarta",
		WorkHours:   types.JSONText(`{"MONDAY":[{"start":"09:00:00","end":"12:00:00"}]}`),
		BreakHours:  types.JSONText(`{}`),
		WorkingDays: types.JSONText(`["MONDAY"]`),
		Active:      true,
	}
}

func newAvailabilityService(teachers *fakeAvailabilityTeachers, students *fakeSweepStudents, classes *fakeAvailabilityClasses) *AvailabilityService {
	converter, _ := timezone.NewConverter("Asia/Jakarta", zap.NewNop(), nil)
	return NewAvailabilityService(
		teachers, students, classes, converter, nil, nil,
		config.AvailabilityConfig{
			SlotDuration:    time.Hour,
			StepGranularity: 30 * time.Minute,
			MaxConcurrency:  2,
			CacheTTL:        time.Minute,
		},
		zap.NewNop(),
	)
}

func TestAvailabilitySingleTeacherWindow(t *testing.T) {
	teacher := weekdayTeacher("teacher-1")
	teachers := &fakeAvailabilityTeachers{byID: map[string]*models.Teacher{"teacher-1": &teacher}}
	classes := &fakeAvailabilityClasses{booked: map[string][]models.TimeRange{
		"teacher-1/2026-03-02": {{Start: "10:00:00", End: "11:00:00"}},
	}}
	svc := newAvailabilityService(teachers, &fakeSweepStudents{}, classes)

	// 2026-03-02 is a Monday, 2026-03-03 a Tuesday.
	resp, err := svc.Query(context.Background(), &AvailabilityRequest{
		StartDate: "2026-03-02",
		EndDate:   "2026-03-03",
		TeacherID: "teacher-1",
	})
	require.NoError(t, err)
	require.Len(t, resp.Days, 2)

	monday := resp.Days[0]
	assert.True(t, monday.Available)
	assert.Equal(t, []models.TimeRange{
		{Start: "09:00:00", End: "10:00:00"},
		{Start: "11:00:00", End: "12:00:00"},
	}, monday.Result.Slots)

	tuesday := resp.Days[1]
	assert.False(t, tuesday.Available)
	assert.Equal(t, "non_working_day", string(tuesday.Result.Reason))
}

func TestAvailabilityMultiTeacherRanksPrimaryFirst(t *testing.T) {
	alpha := weekdayTeacher("teacher-alpha")
	beta := weekdayTeacher("teacher-beta")
	teachers := &fakeAvailabilityTeachers{
		byID:   map[string]*models.Teacher{"teacher-alpha": &alpha, "teacher-beta": &beta},
		active: []models.Teacher{alpha, beta},
	}
	// Alpha has more free slots, but beta is the student's teacher.
	classes := &fakeAvailabilityClasses{booked: map[string][]models.TimeRange{
		"teacher-beta/2026-03-02": {{Start: "09:00:00", End: "11:00:00"}},
	}}
	betaID := "teacher-beta"
	students := &fakeSweepStudents{byID: map[string]*models.Student{
		"student-1": {ID: "student-1", Timezone: "Asia/Jakarta", TeacherID: &betaID},
	}}
	svc := newAvailabilityService(teachers, students, classes)

	resp, err := svc.Query(context.Background(), &AvailabilityRequest{
		StartDate: "2026-03-02",
		EndDate:   "2026-03-02",
		StudentID: "student-1",
	})
	require.NoError(t, err)
	require.Len(t, resp.MultiDays, 1)
	require.Len(t, resp.MultiDays[0].Teachers, 2)

	first := resp.MultiDays[0].Teachers[0]
	assert.Equal(t, "teacher-beta", first.TeacherID)
	assert.True(t, first.Primary)
	assert.Equal(t, "teacher-alpha", resp.MultiDays[0].Teachers[1].TeacherID)
}

func TestAvailabilityRejectsOversizedWindow(t *testing.T) {
	svc := newAvailabilityService(&fakeAvailabilityTeachers{}, &fakeSweepStudents{}, &fakeAvailabilityClasses{})

	_, err := svc.Query(context.Background(), &AvailabilityRequest{
		StartDate: "2026-01-01",
		EndDate:   "2026-06-01",
		TeacherID: "teacher-1",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestAvailabilityWindowCapIsInclusive(t *testing.T) {
	teacher := weekdayTeacher("teacher-1")
	teachers := &fakeAvailabilityTeachers{byID: map[string]*models.Teacher{"teacher-1": &teacher}}
	svc := newAvailabilityService(teachers, &fakeSweepStudents{}, &fakeAvailabilityClasses{})

	// March 1 through March 31 is exactly 31 days counting both ends.
	resp, err := svc.Query(context.Background(), &AvailabilityRequest{
		StartDate: "2026-03-01",
		EndDate:   "2026-03-31",
		TeacherID: "teacher-1",
	})
	require.NoError(t, err)
	assert.Len(t, resp.Days, 31)

	// One more day tips over the cap.
	_, err = svc.Query(context.Background(), &AvailabilityRequest{
		StartDate: "2026-03-01",
		EndDate:   "2026-04-01",
		TeacherID: "teacher-1",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestAvailabilityRejectsInvertedWindow(t *testing.T) {
	svc := newAvailabilityService(&fakeAvailabilityTeachers{}, &fakeSweepStudents{}, &fakeAvailabilityClasses{})

	_, err := svc.Query(context.Background(), &AvailabilityRequest{
		StartDate: "2026-03-05",
		EndDate:   "2026-03-02",
		TeacherID: "teacher-1",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
