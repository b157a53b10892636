package models

import "time"

// BookingStatus enumerates the states a class assignment can be in.
type BookingStatus string

const (
	BookingScheduled   BookingStatus = "scheduled"
	BookingAttended    BookingStatus = "attended"
	BookingMissed      BookingStatus = "missed"
	BookingCancelled   BookingStatus = "cancelled"
	BookingRescheduled BookingStatus = "rescheduled"
)

// Booking joins a student to a class under a package. Bookings are never
// deleted; they only transition status so the audit history survives.
type Booking struct {
	ID              string        `db:"id" json:"id"`
	StudentID       string        `db:"student_id" json:"student_id"`
	ClassID         string        `db:"class_id" json:"class_id"`
	PackageID       string        `db:"package_id" json:"package_id"`
	Status          BookingStatus `db:"status" json:"status"`
	CanReschedule   bool          `db:"can_reschedule" json:"can_reschedule"`
	OriginalClassID *string       `db:"original_class_id" json:"original_class_id,omitempty"`
	RescheduledDate *string       `db:"rescheduled_date" json:"rescheduled_date,omitempty"`
	Note            *string       `db:"note" json:"note,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// SweepBooking is a booking joined with the ended class it belongs to,
// carrying just enough of the class to run the per-observer check.
type SweepBooking struct {
	Booking
	ClassDate     string `db:"class_date"`
	ClassEndTime  string `db:"class_end_time"`
	ClassTimezone string `db:"class_timezone"`
}
