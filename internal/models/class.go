package models

import "time"

// ClassStatus enumerates calendar-slot lifecycle states.
type ClassStatus string

const (
	ClassScheduled ClassStatus = "scheduled"
	ClassCompleted ClassStatus = "completed"
	ClassCancelled ClassStatus = "cancelled"
)

// Class is a calendar slot. Date and times are literal strings authored in
// the zone recorded on the row (normally the admin zone); the timezone
// field is never changed after creation.
type Class struct {
	ID        string      `db:"id" json:"id"`
	Date      string      `db:"date" json:"date"`
	StartTime string      `db:"start_time" json:"start_time"`
	EndTime   string      `db:"end_time" json:"end_time"`
	TeacherID *string     `db:"teacher_id" json:"teacher_id,omitempty"`
	Status    ClassStatus `db:"status" json:"status"`
	Timezone  string      `db:"timezone" json:"timezone"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}
