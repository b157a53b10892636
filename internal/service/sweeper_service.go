package service

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-booking-api/internal/models"
	"github.com/noah-isme/tutor-booking-api/internal/repository"
	"github.com/noah-isme/tutor-booking-api/pkg/config"
	"github.com/noah-isme/tutor-booking-api/pkg/timezone"
)

type sweepClassRepo interface {
	ListEnded(ctx context.Context, date, clock string) ([]models.Class, error)
	FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Class, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ClassStatus) error
}

type sweepBookingRepo interface {
	ListScheduledOnEndedClasses(ctx context.Context, date, clock string) ([]models.SweepBooking, error)
	FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Booking, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.BookingStatus) error
}

type sweepStudentRepo interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Student, error)
}

type sweepPackageRepo interface {
	FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Package, error)
}

// SweepReport summarizes one sweep pass.
type SweepReport struct {
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	ClassesExamined  int       `json:"classes_examined"`
	ClassesCompleted int       `json:"classes_completed"`
	BookingsExamined int       `json:"bookings_examined"`
	BookingsAttended int       `json:"bookings_attended"`
	BookingsDeferred int       `json:"bookings_deferred"`
	UnitFailures     int       `json:"unit_failures"`
}

// SweeperService advances class and booking lifecycles. A cheap
// canonical-zone prefilter selects candidates, then each unit re-checks
// state under its own short transaction so one bad row never poisons the
// pass. Bookings flip to attended only once the class end has passed on
// the booking student's own wall clock; until then they stay scheduled
// and the next pass picks them up again.
type SweeperService struct {
	db          *sqlx.DB
	classes     sweepClassRepo
	bookings    sweepBookingRepo
	students    sweepStudentRepo
	packages    sweepPackageRepo
	ledger      *CreditLedger
	converter   *timezone.Converter
	invalidator availabilityInvalidator
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         config.SweepConfig

	mu sync.Mutex
}

// NewSweeperService constructs a SweeperService. The invalidator may be
// nil when no availability cache is in play.
func NewSweeperService(
	db *sqlx.DB,
	classes sweepClassRepo,
	bookings sweepBookingRepo,
	students sweepStudentRepo,
	packages sweepPackageRepo,
	ledger *CreditLedger,
	converter *timezone.Converter,
	invalidator availabilityInvalidator,
	metrics *MetricsService,
	cfg config.SweepConfig,
	logger *zap.Logger,
) *SweeperService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweeperService{
		db:          db,
		classes:     classes,
		bookings:    bookings,
		students:    students,
		packages:    packages,
		ledger:      ledger,
		converter:   converter,
		invalidator: invalidator,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
	}
}

// Run drives the periodic sweep until the context is cancelled.
func (s *SweeperService) Run(ctx context.Context) {
	if s.cfg.RunAtStart {
		if _, err := s.RunNow(ctx); err != nil {
			s.logger.Error("startup sweep failed", zap.Error(err))
		}
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("lifecycle sweeper stopping")
			return
		case <-ticker.C:
			if _, err := s.RunNow(ctx); err != nil {
				s.logger.Error("scheduled sweep failed", zap.Error(err))
			}
		}
	}
}

// RunNow executes a single sweep pass. Manual triggers and the timer
// serialize on the same mutex, so overlapping passes cannot double-count.
func (s *SweeperService) RunNow(ctx context.Context) (*SweepReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	report := &SweepReport{StartedAt: started.UTC()}
	nowDate, nowClock := s.converter.NowInAdminZone()

	ended, err := s.classes.ListEnded(ctx, nowDate, nowClock)
	if err != nil {
		return nil, err
	}
	report.ClassesExamined = len(ended)
	for i := range ended {
		s.completeClass(ctx, &ended[i], report)
	}

	sweepable, err := s.bookings.ListScheduledOnEndedClasses(ctx, nowDate, nowClock)
	if err != nil {
		return nil, err
	}
	report.BookingsExamined = len(sweepable)
	for i := range sweepable {
		s.settleBooking(ctx, &sweepable[i], nowDate, nowClock, report)
	}

	report.FinishedAt = time.Now().UTC()
	s.metrics.ObserveSweep(report, time.Since(started))
	s.logger.Info("sweep pass finished",
		zap.Int("classes_examined", report.ClassesExamined),
		zap.Int("classes_completed", report.ClassesCompleted),
		zap.Int("bookings_attended", report.BookingsAttended),
		zap.Int("bookings_deferred", report.BookingsDeferred),
		zap.Int("unit_failures", report.UnitFailures),
	)
	return report, nil
}

func (s *SweeperService) completeClass(ctx context.Context, candidate *models.Class, report *SweepReport) {
	unitCtx, cancel := context.WithTimeout(ctx, s.cfg.UnitTimeout)
	defer cancel()

	completed := false
	err := repository.RunInTx(unitCtx, s.db, func(tx *sqlx.Tx) error {
		class, err := s.classes.FindByIDForUpdate(unitCtx, tx, candidate.ID)
		if err != nil {
			return err
		}
		if class.Status != models.ClassScheduled {
			return nil
		}
		if err := s.classes.UpdateStatus(unitCtx, tx, class.ID, models.ClassCompleted); err != nil {
			return err
		}
		completed = true
		return nil
	})
	if err != nil {
		report.UnitFailures++
		s.logger.Error("class sweep unit failed", zap.String("class_id", candidate.ID), zap.Error(err))
		return
	}
	if completed {
		report.ClassesCompleted++
		if s.invalidator != nil && candidate.TeacherID != nil {
			s.invalidator.Invalidate(ctx, *candidate.TeacherID, candidate.Date)
		}
	}
}

func (s *SweeperService) settleBooking(ctx context.Context, sb *models.SweepBooking, nowDate, nowClock string, report *SweepReport) {
	unitCtx, cancel := context.WithTimeout(ctx, s.cfg.UnitTimeout)
	defer cancel()

	err := repository.RunInTx(unitCtx, s.db, func(tx *sqlx.Tx) error {
		booking, err := s.bookings.FindByIDForUpdate(unitCtx, tx, sb.ID)
		if err != nil {
			return err
		}
		if booking.Status != models.BookingScheduled {
			return nil
		}

		student, err := s.students.FindByID(unitCtx, tx, booking.StudentID)
		if err != nil {
			return err
		}

		past, err := s.converter.IsPast(sb.ClassDate, sb.ClassEndTime, sb.ClassTimezone, student.Timezone)
		if err != nil {
			return err
		}
		if !past {
			report.BookingsDeferred++
			return nil
		}

		if err := s.bookings.UpdateStatus(unitCtx, tx, booking.ID, models.BookingAttended); err != nil {
			return err
		}
		report.BookingsAttended++

		pkg, err := s.packages.FindByIDForUpdate(unitCtx, tx, booking.PackageID)
		if err != nil {
			return err
		}
		return s.ledger.RecomputeRemaining(unitCtx, tx, pkg, nowDate, nowClock)
	})
	if err != nil {
		report.UnitFailures++
		s.logger.Error("booking sweep unit failed", zap.String("booking_id", sb.ID), zap.Error(err))
	}
}
