package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-booking-api/internal/models"
)

const rescheduleColumns = "id, student_id, old_class_id, new_class_id, package_id, reason, different_teacher, old_teacher_id, new_teacher_id, status, rescheduled_at, created_at, updated_at"

// RescheduleRepository provides persistence for reschedule records.
type RescheduleRepository struct {
	db *sqlx.DB
}

// NewRescheduleRepository creates a new reschedule repository.
func NewRescheduleRepository(db *sqlx.DB) *RescheduleRepository {
	return &RescheduleRepository{db: db}
}

func (r *RescheduleRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create appends a reschedule record. Records are immutable facts; only
// status changes afterwards, via the admin cancellation flow.
func (r *RescheduleRepository) Create(ctx context.Context, exec sqlx.ExtContext, record *models.RescheduleRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.RescheduledAt.IsZero() {
		record.RescheduledAt = now
	}
	if record.Status == "" {
		record.Status = models.RescheduleConfirmed
	}

	const query = `INSERT INTO reschedule_records (id, student_id, old_class_id, new_class_id, package_id, reason, different_teacher, old_teacher_id, new_teacher_id, status, rescheduled_at, created_at, updated_at)
VALUES (:id, :student_id, :old_class_id, :new_class_id, :package_id, :reason, :different_teacher, :old_teacher_id, :new_teacher_id, :status, :rescheduled_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, record); err != nil {
		return fmt.Errorf("create reschedule record: %w", err)
	}
	return nil
}

// FindByIDForUpdate loads a record and takes a row lock.
func (r *RescheduleRepository) FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.RescheduleRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM reschedule_records WHERE id = $1 FOR UPDATE", rescheduleColumns)
	var record models.RescheduleRecord
	if err := tx.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateStatus changes a record's status.
func (r *RescheduleRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.RescheduleStatus) error {
	const query = `UPDATE reschedule_records SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update reschedule status: %w", err)
	}
	return nil
}

// List returns reschedule records with optional filtering and pagination.
func (r *RescheduleRepository) List(ctx context.Context, filter models.RescheduleFilter) ([]models.RescheduleRecord, int, error) {
	base := "FROM reschedule_records WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY rescheduled_at DESC LIMIT %d OFFSET %d", rescheduleColumns, base, size, offset)
	var records []models.RescheduleRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list reschedule records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count reschedule records: %w", err)
	}

	return records, total, nil
}
