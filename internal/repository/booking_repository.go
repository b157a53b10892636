package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-booking-api/internal/models"
)

const bookingColumns = "id, student_id, class_id, package_id, status, can_reschedule, original_class_id, rescheduled_date, note, created_at, updated_at"

// BookingRepository provides persistence for class assignments.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new booking repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID loads a booking by id.
func (r *BookingRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Booking, error) {
	query := fmt.Sprintf("SELECT %s FROM bookings WHERE id = $1", bookingColumns)
	var booking models.Booking
	if err := sqlx.GetContext(ctx, r.exec(exec), &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindByIDForUpdate loads a booking and takes a row lock.
func (r *BookingRepository) FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Booking, error) {
	query := fmt.Sprintf("SELECT %s FROM bookings WHERE id = $1 FOR UPDATE", bookingColumns)
	var booking models.Booking
	if err := tx.GetContext(ctx, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindForStudentAndClassForUpdate locks the booking joining a student to a
// class. The reschedule transaction starts from this row.
func (r *BookingRepository) FindForStudentAndClassForUpdate(ctx context.Context, tx *sqlx.Tx, studentID, classID string) (*models.Booking, error) {
	query := fmt.Sprintf("SELECT %s FROM bookings WHERE student_id = $1 AND class_id = $2 ORDER BY created_at DESC LIMIT 1 FOR UPDATE", bookingColumns)
	var booking models.Booking
	if err := tx.GetContext(ctx, &booking, query, studentID, classID); err != nil {
		return nil, err
	}
	return &booking, nil
}

// Create stores a new booking.
func (r *BookingRepository) Create(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now
	if booking.Status == "" {
		booking.Status = models.BookingScheduled
	}

	const query = `INSERT INTO bookings (id, student_id, class_id, package_id, status, can_reschedule, original_class_id, rescheduled_date, note, created_at, updated_at)
VALUES (:id, :student_id, :class_id, :package_id, :status, :can_reschedule, :original_class_id, :rescheduled_date, :note, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, booking); err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

// MarkRescheduled flips a booking out of the scheduled state, pinning the
// note and reschedule date and disabling further reschedules.
func (r *BookingRepository) MarkRescheduled(ctx context.Context, exec sqlx.ExtContext, id, note, rescheduledDate string) error {
	const query = `UPDATE bookings SET status = $2, can_reschedule = FALSE, note = $3, rescheduled_date = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, models.BookingRescheduled, note, rescheduledDate, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark booking rescheduled: %w", err)
	}
	return nil
}

// UpdateStatus transitions a booking to the given status.
func (r *BookingRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.BookingStatus) error {
	const query = `UPDATE bookings SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	return nil
}

// RestoreScheduled reverses a reschedule on the old booking: back to
// scheduled, reschedulable again, annotations cleared.
func (r *BookingRepository) RestoreScheduled(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE bookings SET status = $2, can_reschedule = TRUE, note = NULL, rescheduled_date = NULL, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, models.BookingScheduled, time.Now().UTC()); err != nil {
		return fmt.Errorf("restore booking: %w", err)
	}
	return nil
}

// ListScheduledByClass returns the scheduled bookings attached to a class.
func (r *BookingRepository) ListScheduledByClass(ctx context.Context, exec sqlx.ExtContext, classID string) ([]models.Booking, error) {
	query := fmt.Sprintf("SELECT %s FROM bookings WHERE class_id = $1 AND status = $2 ORDER BY created_at ASC", bookingColumns)
	var bookings []models.Booking
	if err := sqlx.SelectContext(ctx, r.exec(exec), &bookings, query, classID, models.BookingScheduled); err != nil {
		return nil, fmt.Errorf("list scheduled bookings: %w", err)
	}
	return bookings, nil
}

// ListScheduledOnEndedClasses returns scheduled bookings whose class has
// already been completed and whose end instant has passed in the canonical
// zone. Covers both freshly-completed classes and bookings deferred by an
// earlier sweep because the observer's wall clock had not caught up yet.
func (r *BookingRepository) ListScheduledOnEndedClasses(ctx context.Context, date, clock string) ([]models.SweepBooking, error) {
	query := fmt.Sprintf(`SELECT %s, c.date AS class_date, c.end_time AS class_end_time, c.timezone AS class_timezone
FROM bookings b
JOIN classes c ON c.id = b.class_id
WHERE b.status = $1 AND c.status = $2
  AND (c.date < $3 OR (c.date = $3 AND c.end_time < $4))
ORDER BY c.date ASC, c.end_time ASC, b.created_at ASC`, prefixColumns("b", bookingColumns))
	var bookings []models.SweepBooking
	if err := r.db.SelectContext(ctx, &bookings, query, models.BookingScheduled, models.ClassCompleted, date, clock); err != nil {
		return nil, fmt.Errorf("list sweepable bookings: %w", err)
	}
	return bookings, nil
}

// CountScheduledByPackage counts a package's bookings still in scheduled
// state. Remaining classes are always recomputed from this count.
func (r *BookingRepository) CountScheduledByPackage(ctx context.Context, exec sqlx.ExtContext, packageID string) (int, error) {
	const query = `SELECT COUNT(*) FROM bookings WHERE package_id = $1 AND status = $2`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, packageID, models.BookingScheduled); err != nil {
		return 0, fmt.Errorf("count scheduled bookings: %w", err)
	}
	return count, nil
}

// HasFutureScheduled reports whether the package still has a scheduled
// booking on a class that starts after the given canonical-zone moment.
func (r *BookingRepository) HasFutureScheduled(ctx context.Context, exec sqlx.ExtContext, packageID, date, clock string) (bool, error) {
	const query = `SELECT EXISTS (
SELECT 1 FROM bookings b
JOIN classes c ON c.id = b.class_id
WHERE b.package_id = $1 AND b.status = $2
  AND (c.date > $3 OR (c.date = $3 AND c.start_time > $4)))`
	var exists bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, packageID, models.BookingScheduled, date, clock); err != nil {
		return false, fmt.Errorf("check future bookings: %w", err)
	}
	return exists, nil
}
