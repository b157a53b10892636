// Package availability computes free teaching slots from a teacher's work
// and break windows minus already-booked intervals. The computation is
// pure: all inputs arrive as wall-clock ranges for a single day and the
// caller is responsible for gathering booked intervals.
package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/noah-isme/tutor-booking-api/internal/models"
)

// Reason explains an empty day so callers can render the distinction.
type Reason string

const (
	ReasonNonWorkingDay Reason = "non_working_day"
	ReasonNoSlots       Reason = "no_slots_available"
)

// DayResult is the availability outcome for one teacher on one day.
type DayResult struct {
	Slots  []models.TimeRange `json:"slots"`
	Reason Reason             `json:"reason,omitempty"`
}

// Available reports whether the day yielded at least one slot.
func (r DayResult) Available() bool {
	return len(r.Slots) > 0
}

// TeacherDay pairs a teacher with their computed availability, used when a
// query spans multiple teachers.
type TeacherDay struct {
	TeacherID   string    `json:"teacher_id"`
	TeacherName string    `json:"teacher_name,omitempty"`
	Primary     bool      `json:"primary"`
	Result      DayResult `json:"result"`
}

// FreeSlots walks each work window with a cursor advancing by step while
// cursor+duration still fits, keeping candidates that overlap neither a
// break nor a booked interval (half-open test on both).
func FreeSlots(work, breaks, booked []models.TimeRange, duration, step time.Duration) []models.TimeRange {
	if duration <= 0 || step <= 0 {
		return nil
	}
	durSec := int(duration / time.Second)
	stepSec := int(step / time.Second)

	var free []models.TimeRange
	for _, window := range work {
		start, err1 := parseClock(window.Start)
		end, err2 := parseClock(window.End)
		if err1 != nil || err2 != nil || start >= end {
			continue
		}
		for cursor := start; cursor+durSec <= end; cursor += stepSec {
			candidate := models.TimeRange{
				Start: formatClock(cursor),
				End:   formatClock(cursor + durSec),
			}
			if overlapsAny(candidate, booked) || overlapsAny(candidate, breaks) {
				continue
			}
			free = append(free, candidate)
		}
	}
	return free
}

// ForDay evaluates one teacher's availability for a weekday given their
// booked intervals on that date.
func ForDay(sched *models.TeacherSchedule, day models.Weekday, booked []models.TimeRange, duration, step time.Duration) DayResult {
	work := sched.WorkHours.For(day)
	if !sched.WorksOn(day) || len(work) == 0 {
		return DayResult{Reason: ReasonNonWorkingDay}
	}

	slots := FreeSlots(work, sched.BreakHours.For(day), booked, duration, step)
	if len(slots) == 0 {
		return DayResult{Reason: ReasonNoSlots}
	}
	return DayResult{Slots: slots}
}

// Rank orders multi-teacher results: the student's primary teacher first,
// then by descending free-slot count, ties broken by teacher ID so the
// ordering is deterministic.
func Rank(teachers []TeacherDay) {
	sort.SliceStable(teachers, func(i, j int) bool {
		a, b := teachers[i], teachers[j]
		if a.Primary != b.Primary {
			return a.Primary
		}
		if len(a.Result.Slots) != len(b.Result.Slots) {
			return len(a.Result.Slots) > len(b.Result.Slots)
		}
		return a.TeacherID < b.TeacherID
	})
}

func overlapsAny(candidate models.TimeRange, ranges []models.TimeRange) bool {
	for _, r := range ranges {
		if candidate.Overlaps(r) {
			return true
		}
	}
	return false
}

func parseClock(clock string) (int, error) {
	var hh, mm, ss int
	if _, err := fmt.Sscanf(clock, "%02d:%02d:%02d", &hh, &mm, &ss); err != nil {
		return 0, err
	}
	return hh*3600 + mm*60 + ss, nil
}

func formatClock(seconds int) string {
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds/60)%60, seconds%60)
}
