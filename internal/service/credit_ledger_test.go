package service

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-booking-api/internal/models"
	"github.com/noah-isme/tutor-booking-api/internal/repository"
	appErrors "github.com/noah-isme/tutor-booking-api/pkg/errors"
)

type fakeLedgerPackages struct {
	consumeErr   error
	releaseErr   error
	setRemaining []int
	setStatus    []models.PackageStatus
	consumed     int
	released     int
	afterConsume func()
}

func (f *fakeLedgerPackages) ConsumeRescheduleCredit(ctx context.Context, exec sqlx.ExtContext, id string, expectedUsed int) error {
	f.consumed++
	err := f.consumeErr
	if f.afterConsume != nil {
		f.afterConsume()
	}
	return err
}

func (f *fakeLedgerPackages) ReleaseRescheduleCredit(ctx context.Context, exec sqlx.ExtContext, id string) error {
	f.released++
	return f.releaseErr
}

func (f *fakeLedgerPackages) SetRemaining(ctx context.Context, exec sqlx.ExtContext, id string, remaining int, status models.PackageStatus) error {
	f.setRemaining = append(f.setRemaining, remaining)
	f.setStatus = append(f.setStatus, status)
	return nil
}

type fakeLedgerBookings struct {
	scheduled int
	future    bool
}

func (f *fakeLedgerBookings) CountScheduledByPackage(ctx context.Context, exec sqlx.ExtContext, packageID string) (int, error) {
	return f.scheduled, nil
}

func (f *fakeLedgerBookings) HasFutureScheduled(ctx context.Context, exec sqlx.ExtContext, packageID, date, clock string) (bool, error) {
	return f.future, nil
}

func TestConsumeRescheduleExhausted(t *testing.T) {
	packages := &fakeLedgerPackages{}
	ledger := NewCreditLedger(packages, &fakeLedgerBookings{}, zap.NewNop())

	pkg := &models.Package{ID: "pkg-1", UsedReschedules: 2, MaxReschedules: 2}
	err := ledger.ConsumeReschedule(context.Background(), nil, pkg)
	assert.True(t, appErrors.Is(err, appErrors.ErrCreditExhausted))
	assert.Zero(t, packages.consumed)
}

func TestConsumeRescheduleIncrementsInMemoryCopy(t *testing.T) {
	packages := &fakeLedgerPackages{}
	ledger := NewCreditLedger(packages, &fakeLedgerBookings{}, zap.NewNop())

	pkg := &models.Package{ID: "pkg-1", UsedReschedules: 1, MaxReschedules: 3}
	require.NoError(t, ledger.ConsumeReschedule(context.Background(), nil, pkg))
	assert.Equal(t, 2, pkg.UsedReschedules)
	assert.Equal(t, 1, packages.consumed)
}

func TestConsumeRescheduleMapsOptimisticLock(t *testing.T) {
	packages := &fakeLedgerPackages{consumeErr: repository.ErrOptimisticLock}
	ledger := NewCreditLedger(packages, &fakeLedgerBookings{}, zap.NewNop())

	pkg := &models.Package{ID: "pkg-1", UsedReschedules: 0, MaxReschedules: 2}
	err := ledger.ConsumeReschedule(context.Background(), nil, pkg)
	assert.True(t, appErrors.Is(err, appErrors.ErrConcurrentModify))
	assert.Equal(t, 0, pkg.UsedReschedules)
}

func TestRecomputeRemainingKeepsActiveWhileScheduledRemain(t *testing.T) {
	packages := &fakeLedgerPackages{}
	ledger := NewCreditLedger(packages, &fakeLedgerBookings{scheduled: 4}, zap.NewNop())

	pkg := &models.Package{ID: "pkg-1", Status: models.PackageActive, RemainingClasses: 9}
	require.NoError(t, ledger.RecomputeRemaining(context.Background(), nil, pkg, "2026-03-02", "10:00:00"))
	assert.Equal(t, 4, pkg.RemainingClasses)
	assert.Equal(t, models.PackageActive, pkg.Status)
	assert.Equal(t, []int{4}, packages.setRemaining)
}

func TestRecomputeRemainingCompletesAtZero(t *testing.T) {
	packages := &fakeLedgerPackages{}
	ledger := NewCreditLedger(packages, &fakeLedgerBookings{scheduled: 0, future: false}, zap.NewNop())

	pkg := &models.Package{ID: "pkg-1", Status: models.PackageActive, RemainingClasses: 1}
	require.NoError(t, ledger.RecomputeRemaining(context.Background(), nil, pkg, "2026-03-02", "10:00:00"))
	assert.Equal(t, models.PackageCompleted, pkg.Status)
	assert.Equal(t, 0, pkg.RemainingClasses)
}

func TestRecomputeRemainingNeverRevivesCancelled(t *testing.T) {
	packages := &fakeLedgerPackages{}
	ledger := NewCreditLedger(packages, &fakeLedgerBookings{scheduled: 2}, zap.NewNop())

	pkg := &models.Package{ID: "pkg-1", Status: models.PackageCancelled}
	require.NoError(t, ledger.RecomputeRemaining(context.Background(), nil, pkg, "2026-03-02", "10:00:00"))
	assert.Equal(t, models.PackageCancelled, pkg.Status)
}

func TestReleaseRescheduleDecrements(t *testing.T) {
	packages := &fakeLedgerPackages{}
	ledger := NewCreditLedger(packages, &fakeLedgerBookings{}, zap.NewNop())

	pkg := &models.Package{ID: "pkg-1", UsedReschedules: 1, MaxReschedules: 2}
	require.NoError(t, ledger.ReleaseReschedule(context.Background(), nil, pkg))
	assert.Equal(t, 0, pkg.UsedReschedules)
	assert.Equal(t, 1, packages.released)
}
