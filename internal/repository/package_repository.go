package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-booking-api/internal/models"
)

const packageColumns = "id, student_id, total_classes, remaining_classes, used_reschedules, max_reschedules, status, created_at, updated_at"

// PackageRepository provides persistence for lesson packages.
type PackageRepository struct {
	db *sqlx.DB
}

// NewPackageRepository creates a new package repository.
func NewPackageRepository(db *sqlx.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

func (r *PackageRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID loads a package by id.
func (r *PackageRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Package, error) {
	query := fmt.Sprintf("SELECT %s FROM packages WHERE id = $1", packageColumns)
	var pkg models.Package
	if err := sqlx.GetContext(ctx, r.exec(exec), &pkg, query, id); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// FindByIDForUpdate loads a package and takes a row lock.
func (r *PackageRepository) FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Package, error) {
	query := fmt.Sprintf("SELECT %s FROM packages WHERE id = $1 FOR UPDATE", packageColumns)
	var pkg models.Package
	if err := tx.GetContext(ctx, &pkg, query, id); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// FindActiveByStudentForUpdate locks the student's active package for the
// duration of a credit-consuming transaction.
func (r *PackageRepository) FindActiveByStudentForUpdate(ctx context.Context, tx *sqlx.Tx, studentID string) (*models.Package, error) {
	query := fmt.Sprintf("SELECT %s FROM packages WHERE student_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1 FOR UPDATE", packageColumns)
	var pkg models.Package
	if err := tx.GetContext(ctx, &pkg, query, studentID, models.PackageActive); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// ConsumeRescheduleCredit increments used_reschedules guarded by the
// expected value and the ceiling. Zero rows affected means another
// transaction won the race.
func (r *PackageRepository) ConsumeRescheduleCredit(ctx context.Context, exec sqlx.ExtContext, id string, expectedUsed int) error {
	const query = `UPDATE packages SET used_reschedules = used_reschedules + 1, updated_at = $3
WHERE id = $1 AND used_reschedules = $2 AND used_reschedules < max_reschedules`
	res, err := r.exec(exec).ExecContext(ctx, query, id, expectedUsed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("consume reschedule credit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume reschedule credit: %w", err)
	}
	if affected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

// ReleaseRescheduleCredit undoes one credit consumption.
func (r *PackageRepository) ReleaseRescheduleCredit(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE packages SET used_reschedules = used_reschedules - 1, updated_at = $2
WHERE id = $1 AND used_reschedules > 0`
	res, err := r.exec(exec).ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("release reschedule credit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release reschedule credit: %w", err)
	}
	if affected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

// SetRemaining persists a recomputed remaining-class count and status.
func (r *PackageRepository) SetRemaining(ctx context.Context, exec sqlx.ExtContext, id string, remaining int, status models.PackageStatus) error {
	const query = `UPDATE packages SET remaining_classes = $2, status = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, remaining, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("set remaining classes: %w", err)
	}
	return nil
}
