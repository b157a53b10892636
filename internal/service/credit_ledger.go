package service

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-booking-api/internal/models"
	"github.com/noah-isme/tutor-booking-api/internal/repository"
	appErrors "github.com/noah-isme/tutor-booking-api/pkg/errors"
)

type ledgerPackageRepo interface {
	ConsumeRescheduleCredit(ctx context.Context, exec sqlx.ExtContext, id string, expectedUsed int) error
	ReleaseRescheduleCredit(ctx context.Context, exec sqlx.ExtContext, id string) error
	SetRemaining(ctx context.Context, exec sqlx.ExtContext, id string, remaining int, status models.PackageStatus) error
}

type ledgerBookingRepo interface {
	CountScheduledByPackage(ctx context.Context, exec sqlx.ExtContext, packageID string) (int, error)
	HasFutureScheduled(ctx context.Context, exec sqlx.ExtContext, packageID, date, clock string) (bool, error)
}

// CreditLedger owns package credit bookkeeping. All mutating methods take
// the surrounding transaction so the guard and the write can never be
// separated from the reschedule they belong to.
type CreditLedger struct {
	packages ledgerPackageRepo
	bookings ledgerBookingRepo
	logger   *zap.Logger
}

// NewCreditLedger constructs a CreditLedger.
func NewCreditLedger(packages ledgerPackageRepo, bookings ledgerBookingRepo, logger *zap.Logger) *CreditLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreditLedger{packages: packages, bookings: bookings, logger: logger}
}

// CanConsumeReschedule reports whether a reschedule credit remains.
func (l *CreditLedger) CanConsumeReschedule(pkg *models.Package) bool {
	return pkg != nil && pkg.HasRescheduleCredit()
}

// ConsumeReschedule increments used reschedules under the optimistic guard.
// The caller holds the package row lock; a zero-row update still means a
// concurrent writer slipped in between read and write.
func (l *CreditLedger) ConsumeReschedule(ctx context.Context, tx sqlx.ExtContext, pkg *models.Package) error {
	if !l.CanConsumeReschedule(pkg) {
		return appErrors.Clone(appErrors.ErrCreditExhausted, "")
	}
	if err := l.packages.ConsumeRescheduleCredit(ctx, tx, pkg.ID, pkg.UsedReschedules); err != nil {
		if errors.Is(err, repository.ErrOptimisticLock) {
			return appErrors.Wrap(err, appErrors.ErrConcurrentModify.Code, appErrors.ErrConcurrentModify.Status, "package credits changed concurrently")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume reschedule credit")
	}
	pkg.UsedReschedules++
	return nil
}

// ReleaseReschedule undoes one credit consumption during reversal.
func (l *CreditLedger) ReleaseReschedule(ctx context.Context, tx sqlx.ExtContext, pkg *models.Package) error {
	if err := l.packages.ReleaseRescheduleCredit(ctx, tx, pkg.ID); err != nil {
		if errors.Is(err, repository.ErrOptimisticLock) {
			return appErrors.Wrap(err, appErrors.ErrConcurrentModify.Code, appErrors.ErrConcurrentModify.Status, "package credits changed concurrently")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release reschedule credit")
	}
	if pkg.UsedReschedules > 0 {
		pkg.UsedReschedules--
	}
	return nil
}

// RecomputeRemaining derives remaining classes from the count of scheduled
// bookings. Recompute-from-truth, never a blind decrement: reschedules move
// bookings between classes without changing the scheduled count, and
// classes complete out of request order. The package flips to completed
// only when nothing scheduled remains, now or in the future.
func (l *CreditLedger) RecomputeRemaining(ctx context.Context, tx sqlx.ExtContext, pkg *models.Package, nowDate, nowClock string) error {
	count, err := l.bookings.CountScheduledByPackage(ctx, tx, pkg.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count scheduled bookings")
	}

	status := pkg.Status
	if status != models.PackageCancelled {
		status = models.PackageActive
		if count == 0 {
			future, err := l.bookings.HasFutureScheduled(ctx, tx, pkg.ID, nowDate, nowClock)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check future bookings")
			}
			if !future {
				status = models.PackageCompleted
			}
		}
	}

	if err := l.packages.SetRemaining(ctx, tx, pkg.ID, count, status); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update remaining classes")
	}
	pkg.RemainingClasses = count
	pkg.Status = status
	return nil
}
