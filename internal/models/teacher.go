package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Teacher holds the roster fields the scheduling engine reads. Work and
// break hours are stored as JSON and parsed into typed week hours on use.
type Teacher struct {
	ID          string         `db:"id" json:"id"`
	Email       string         `db:"email" json:"email"`
	FullName    string         `db:"full_name" json:"full_name"`
	Timezone    string         `db:"timezone" json:"timezone"`
	WorkHours   types.JSONText `db:"work_hours" json:"work_hours"`
	BreakHours  types.JSONText `db:"break_hours" json:"break_hours"`
	WorkingDays types.JSONText `db:"working_days" json:"working_days"`
	Active      bool           `db:"active" json:"active"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// TeacherSchedule is the validated, typed view of a teacher's calendar rules.
type TeacherSchedule struct {
	TeacherID   string
	WorkHours   WeekHours
	BreakHours  WeekHours
	WorkingDays map[Weekday]struct{}
}

// Schedule validates and decodes the JSON hour blobs.
func (t *Teacher) Schedule() (*TeacherSchedule, error) {
	work, err := ParseWeekHours(t.WorkHours)
	if err != nil {
		return nil, fmt.Errorf("teacher %s work hours: %w", t.ID, err)
	}
	breaks, err := ParseWeekHours(t.BreakHours)
	if err != nil {
		return nil, fmt.Errorf("teacher %s break hours: %w", t.ID, err)
	}

	days := make(map[Weekday]struct{})
	if len(t.WorkingDays) > 0 {
		var list []Weekday
		if err := json.Unmarshal(t.WorkingDays, &list); err != nil {
			return nil, fmt.Errorf("teacher %s working days: %w", t.ID, err)
		}
		for _, d := range list {
			if !d.Valid() {
				return nil, fmt.Errorf("teacher %s working days: unknown weekday %q", t.ID, d)
			}
			days[d] = struct{}{}
		}
	}

	return &TeacherSchedule{
		TeacherID:   t.ID,
		WorkHours:   work,
		BreakHours:  breaks,
		WorkingDays: days,
	}, nil
}

// WorksOn reports whether the weekday is a working day for the teacher.
func (s *TeacherSchedule) WorksOn(day Weekday) bool {
	_, ok := s.WorkingDays[day]
	return ok
}
