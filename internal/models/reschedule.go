package models

import "time"

// RescheduleStatus enumerates reschedule record states.
type RescheduleStatus string

const (
	ReschedulePending   RescheduleStatus = "pending"
	RescheduleConfirmed RescheduleStatus = "confirmed"
	RescheduleCancelled RescheduleStatus = "cancelled"
)

// RescheduleRecord is an append-only fact describing one reschedule. Only
// its status ever changes, and only through the admin cancellation flow,
// which reverses every side effect of the original operation.
type RescheduleRecord struct {
	ID               string           `db:"id" json:"id"`
	StudentID        string           `db:"student_id" json:"student_id"`
	OldClassID       string           `db:"old_class_id" json:"old_class_id"`
	NewClassID       string           `db:"new_class_id" json:"new_class_id"`
	PackageID        string           `db:"package_id" json:"package_id"`
	Reason           string           `db:"reason" json:"reason"`
	DifferentTeacher bool             `db:"different_teacher" json:"different_teacher"`
	OldTeacherID     *string          `db:"old_teacher_id" json:"old_teacher_id,omitempty"`
	NewTeacherID     *string          `db:"new_teacher_id" json:"new_teacher_id,omitempty"`
	Status           RescheduleStatus `db:"status" json:"status"`
	RescheduledAt    time.Time        `db:"rescheduled_at" json:"rescheduled_at"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// RescheduleFilter captures query params for listing reschedule records.
type RescheduleFilter struct {
	StudentID string
	Status    string
	Page      int
	PageSize  int
}
