package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-booking-api/internal/models"
)

const classColumns = "id, date, start_time, end_time, teacher_id, status, timezone, created_at, updated_at"

// ClassRepository provides persistence for calendar slots.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository creates a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

func (r *ClassRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID loads a class by id.
func (r *ClassRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error) {
	query := fmt.Sprintf("SELECT %s FROM classes WHERE id = $1", classColumns)
	var class models.Class
	if err := sqlx.GetContext(ctx, r.exec(exec), &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindByIDForUpdate loads a class and takes a row lock.
func (r *ClassRepository) FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Class, error) {
	query := fmt.Sprintf("SELECT %s FROM classes WHERE id = $1 FOR UPDATE", classColumns)
	var class models.Class
	if err := tx.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindScheduledSlot resolves an existing scheduled class occupying the
// exact slot, locking it so a concurrent reschedule cannot double-book.
func (r *ClassRepository) FindScheduledSlot(ctx context.Context, tx *sqlx.Tx, date, startTime, endTime string, teacherID *string) (*models.Class, error) {
	var class models.Class
	if teacherID != nil {
		query := fmt.Sprintf("SELECT %s FROM classes WHERE date = $1 AND start_time = $2 AND end_time = $3 AND teacher_id = $4 AND status = $5 FOR UPDATE", classColumns)
		if err := tx.GetContext(ctx, &class, query, date, startTime, endTime, *teacherID, models.ClassScheduled); err != nil {
			return nil, err
		}
		return &class, nil
	}
	query := fmt.Sprintf("SELECT %s FROM classes WHERE date = $1 AND start_time = $2 AND end_time = $3 AND teacher_id IS NULL AND status = $4 FOR UPDATE", classColumns)
	if err := tx.GetContext(ctx, &class, query, date, startTime, endTime, models.ClassScheduled); err != nil {
		return nil, err
	}
	return &class, nil
}

// ScheduledRangesForUpdate locks every scheduled class on the calendar for
// a date and returns their intervals, so an overlap check and the insert
// that follows it happen under the same row locks. A nil teacher selects
// the unassigned calendar, mirroring FindScheduledSlot.
func (r *ClassRepository) ScheduledRangesForUpdate(ctx context.Context, tx *sqlx.Tx, teacherID *string, date string) ([]models.TimeRange, error) {
	var classes []models.Class
	if teacherID != nil {
		query := fmt.Sprintf("SELECT %s FROM classes WHERE date = $1 AND teacher_id = $2 AND status = $3 ORDER BY start_time ASC FOR UPDATE", classColumns)
		if err := tx.SelectContext(ctx, &classes, query, date, *teacherID, models.ClassScheduled); err != nil {
			return nil, fmt.Errorf("list scheduled ranges: %w", err)
		}
	} else {
		query := fmt.Sprintf("SELECT %s FROM classes WHERE date = $1 AND teacher_id IS NULL AND status = $2 ORDER BY start_time ASC FOR UPDATE", classColumns)
		if err := tx.SelectContext(ctx, &classes, query, date, models.ClassScheduled); err != nil {
			return nil, fmt.Errorf("list scheduled ranges: %w", err)
		}
	}

	ranges := make([]models.TimeRange, 0, len(classes))
	for _, class := range classes {
		ranges = append(ranges, models.TimeRange{Start: class.StartTime, End: class.EndTime})
	}
	return ranges, nil
}

// Create stores a new class record.
func (r *ClassRepository) Create(ctx context.Context, exec sqlx.ExtContext, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now
	if class.Status == "" {
		class.Status = models.ClassScheduled
	}

	const query = `INSERT INTO classes (id, date, start_time, end_time, teacher_id, status, timezone, created_at, updated_at)
VALUES (:id, :date, :start_time, :end_time, :teacher_id, :status, :timezone, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// UpdateStatus transitions a class to the given status.
func (r *ClassRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ClassStatus) error {
	const query = `UPDATE classes SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update class status: %w", err)
	}
	return nil
}

// ListEnded returns scheduled classes whose end instant has passed in the
// canonical zone. This is the sweep's cheap prefilter; the per-booking
// observer check happens later.
func (r *ClassRepository) ListEnded(ctx context.Context, date, clock string) ([]models.Class, error) {
	query := fmt.Sprintf(`SELECT %s FROM classes WHERE status = $1 AND (date < $2 OR (date = $2 AND end_time < $3)) ORDER BY date ASC, end_time ASC`, classColumns)
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, models.ClassScheduled, date, clock); err != nil {
		return nil, fmt.Errorf("list ended classes: %w", err)
	}
	return classes, nil
}

// BookedRanges gathers the intervals occupying a teacher's calendar on a
// date. A teacher's calendar is the union of their directly-assigned
// classes and classes booked by any student assigned to that teacher.
func (r *ClassRepository) BookedRanges(ctx context.Context, teacherID, date string) ([]models.TimeRange, error) {
	const query = `SELECT DISTINCT c.start_time, c.end_time
FROM classes c
WHERE c.status = $1 AND c.date = $2
  AND (c.teacher_id = $3 OR c.id IN (
    SELECT b.class_id FROM bookings b
    JOIN students s ON s.id = b.student_id
    WHERE b.status = $4 AND s.teacher_id = $3
  ))
ORDER BY c.start_time ASC`
	rows, err := r.db.QueryxContext(ctx, query, models.ClassScheduled, date, teacherID, models.BookingScheduled)
	if err != nil {
		return nil, fmt.Errorf("list booked ranges: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var ranges []models.TimeRange
	for rows.Next() {
		var start, end string
		if err := rows.Scan(&start, &end); err != nil {
			return nil, fmt.Errorf("scan booked range: %w", err)
		}
		ranges = append(ranges, models.TimeRange{Start: start, End: end})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate booked ranges: %w", err)
	}
	return ranges, nil
}
