package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-booking-api/internal/models"
)

func rangesOf(pairs ...[2]string) []models.TimeRange {
	out := make([]models.TimeRange, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, models.TimeRange{Start: p[0], End: p[1]})
	}
	return out
}

func TestFreeSlotsSkipsBookingsAndBreaks(t *testing.T) {
	// Monday 09:00-17:00, break 13:00-14:00, one booking 10:00-11:00.
	work := rangesOf([2]string{"09:00:00", "17:00:00"})
	breaks := rangesOf([2]string{"13:00:00", "14:00:00"})
	booked := rangesOf([2]string{"10:00:00", "11:00:00"})

	slots := FreeSlots(work, breaks, booked, time.Hour, 30*time.Minute)

	want := rangesOf(
		[2]string{"09:00:00", "10:00:00"},
		[2]string{"11:00:00", "12:00:00"},
		[2]string{"11:30:00", "12:30:00"},
		[2]string{"12:00:00", "13:00:00"},
		[2]string{"14:00:00", "15:00:00"},
		[2]string{"14:30:00", "15:30:00"},
		[2]string{"15:00:00", "16:00:00"},
		[2]string{"15:30:00", "16:30:00"},
		[2]string{"16:00:00", "17:00:00"},
	)
	assert.Equal(t, want, slots)

	// 09:30-10:30 overlaps the booking and must be absent.
	for _, s := range slots {
		assert.NotEqual(t, "09:30:00", s.Start)
	}
}

func TestFreeSlotsBackToBackBookingsDoNotBlock(t *testing.T) {
	work := rangesOf([2]string{"09:00:00", "12:00:00"})
	booked := rangesOf([2]string{"10:00:00", "11:00:00"})

	slots := FreeSlots(work, nil, booked, time.Hour, time.Hour)

	// Half-open intervals: a slot ending exactly at a booking start (or
	// starting at its end) is free.
	assert.Equal(t, rangesOf(
		[2]string{"09:00:00", "10:00:00"},
		[2]string{"11:00:00", "12:00:00"},
	), slots)
}

func TestFreeSlotsEmptyInputs(t *testing.T) {
	assert.Nil(t, FreeSlots(nil, nil, nil, time.Hour, 30*time.Minute))
	assert.Nil(t, FreeSlots(rangesOf([2]string{"09:00:00", "10:00:00"}), nil, nil, 0, 30*time.Minute))

	// Window shorter than the slot duration yields nothing.
	slots := FreeSlots(rangesOf([2]string{"09:00:00", "09:45:00"}), nil, nil, time.Hour, 30*time.Minute)
	assert.Empty(t, slots)
}

func newSchedule(t *testing.T) *models.TeacherSchedule {
	t.Helper()
	return &models.TeacherSchedule{
		TeacherID: "teacher-1",
		WorkHours: models.WeekHours{
			models.Monday: rangesOf([2]string{"09:00:00", "17:00:00"}),
		},
		BreakHours: models.WeekHours{
			models.Monday: rangesOf([2]string{"13:00:00", "14:00:00"}),
		},
		WorkingDays: map[models.Weekday]struct{}{models.Monday: {}},
	}
}

func TestForDayNonWorkingDay(t *testing.T) {
	sched := newSchedule(t)

	result := ForDay(sched, models.Tuesday, nil, time.Hour, 30*time.Minute)
	assert.False(t, result.Available())
	assert.Equal(t, ReasonNonWorkingDay, result.Reason)
}

func TestForDayFullyBooked(t *testing.T) {
	sched := newSchedule(t)
	booked := rangesOf([2]string{"09:00:00", "17:00:00"})

	result := ForDay(sched, models.Monday, booked, time.Hour, 30*time.Minute)
	assert.False(t, result.Available())
	assert.Equal(t, ReasonNoSlots, result.Reason)
}

func TestForDayReturnsSlots(t *testing.T) {
	sched := newSchedule(t)

	result := ForDay(sched, models.Monday, nil, time.Hour, 30*time.Minute)
	require.True(t, result.Available())
	assert.Empty(t, result.Reason)
	assert.Equal(t, models.TimeRange{Start: "09:00:00", End: "10:00:00"}, result.Slots[0])
}

func TestRankOrdersPrimaryThenCountThenID(t *testing.T) {
	teachers := []TeacherDay{
		{TeacherID: "t-c", Result: DayResult{Slots: rangesOf([2]string{"09:00:00", "10:00:00"})}},
		{TeacherID: "t-b", Result: DayResult{Slots: rangesOf(
			[2]string{"09:00:00", "10:00:00"},
			[2]string{"10:00:00", "11:00:00"},
		)}},
		{TeacherID: "t-a", Result: DayResult{Slots: rangesOf([2]string{"09:00:00", "10:00:00"})}},
		{TeacherID: "t-d", Primary: true, Result: DayResult{}},
	}

	Rank(teachers)

	ids := []string{teachers[0].TeacherID, teachers[1].TeacherID, teachers[2].TeacherID, teachers[3].TeacherID}
	assert.Equal(t, []string{"t-d", "t-b", "t-a", "t-c"}, ids)
}
