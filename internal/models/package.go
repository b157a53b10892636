package models

import "time"

// PackageStatus enumerates purchased-package lifecycle states.
type PackageStatus string

const (
	PackageActive    PackageStatus = "active"
	PackageCompleted PackageStatus = "completed"
	PackageCancelled PackageStatus = "cancelled"
)

// Package is a purchased block of lessons with finite reschedule credits.
// RemainingClasses is always recomputed from the count of scheduled
// bookings, never decremented directly.
type Package struct {
	ID               string        `db:"id" json:"id"`
	StudentID        string        `db:"student_id" json:"student_id"`
	TotalClasses     int           `db:"total_classes" json:"total_classes"`
	RemainingClasses int           `db:"remaining_classes" json:"remaining_classes"`
	UsedReschedules  int           `db:"used_reschedules" json:"used_reschedules"`
	MaxReschedules   int           `db:"max_reschedules" json:"max_reschedules"`
	Status           PackageStatus `db:"status" json:"status"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// HasRescheduleCredit reports whether a reschedule credit remains.
func (p *Package) HasRescheduleCredit() bool {
	return p.UsedReschedules < p.MaxReschedules
}
