package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-booking-api/internal/models"
	"github.com/noah-isme/tutor-booking-api/internal/repository"
	"github.com/noah-isme/tutor-booking-api/pkg/config"
	appErrors "github.com/noah-isme/tutor-booking-api/pkg/errors"
	"github.com/noah-isme/tutor-booking-api/pkg/timezone"
)

type rescheduleBookingRepo interface {
	FindForStudentAndClassForUpdate(ctx context.Context, tx *sqlx.Tx, studentID, classID string) (*models.Booking, error)
	Create(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error
	MarkRescheduled(ctx context.Context, exec sqlx.ExtContext, id, note, rescheduledDate string) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.BookingStatus) error
	RestoreScheduled(ctx context.Context, exec sqlx.ExtContext, id string) error
	ListScheduledByClass(ctx context.Context, exec sqlx.ExtContext, classID string) ([]models.Booking, error)
}

type rescheduleClassRepo interface {
	FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Class, error)
	FindScheduledSlot(ctx context.Context, tx *sqlx.Tx, date, startTime, endTime string, teacherID *string) (*models.Class, error)
	ScheduledRangesForUpdate(ctx context.Context, tx *sqlx.Tx, teacherID *string, date string) ([]models.TimeRange, error)
	Create(ctx context.Context, exec sqlx.ExtContext, class *models.Class) error
}

type reschedulePackageRepo interface {
	FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Package, error)
	FindActiveByStudentForUpdate(ctx context.Context, tx *sqlx.Tx, studentID string) (*models.Package, error)
}

type rescheduleRecordRepo interface {
	Create(ctx context.Context, exec sqlx.ExtContext, record *models.RescheduleRecord) error
	FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.RescheduleRecord, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.RescheduleStatus) error
	List(ctx context.Context, filter models.RescheduleFilter) ([]models.RescheduleRecord, int, error)
}

type availabilityInvalidator interface {
	Invalidate(ctx context.Context, teacherID, date string)
}

// RescheduleRequest carries everything needed to move a booking.
type RescheduleRequest struct {
	StudentID    string  `json:"student_id" validate:"required"`
	OldClassID   string  `json:"old_class_id" validate:"required"`
	NewDate      string  `json:"new_date" validate:"required,datetime=2006-01-02"`
	NewStartTime string  `json:"new_start_time" validate:"required"`
	NewEndTime   string  `json:"new_end_time" validate:"required"`
	Reason       string  `json:"reason" validate:"required,max=500"`
	NewTeacherID *string `json:"new_teacher_id,omitempty"`
}

// RescheduleResult reports the rows touched by a successful reschedule.
type RescheduleResult struct {
	Record     *models.RescheduleRecord `json:"record"`
	OldBooking *models.Booking          `json:"old_booking"`
	NewBooking *models.Booking          `json:"new_booking"`
	OldClass   *models.Class            `json:"old_class"`
	NewClass   *models.Class            `json:"new_class"`
}

// ReversalResult reports the rows touched by an admin cancellation.
type ReversalResult struct {
	Record     *models.RescheduleRecord `json:"record"`
	OldBooking *models.Booking          `json:"old_booking"`
	NewBooking *models.Booking          `json:"new_booking"`
}

// RescheduleService runs the reschedule transaction: five effects that
// commit together or not at all. Credits are consumed under both a row
// lock and an optimistic guard, and a guard miss retries the whole
// transaction once before surfacing a conflict.
type RescheduleService struct {
	db          *sqlx.DB
	bookings    rescheduleBookingRepo
	classes     rescheduleClassRepo
	packages    reschedulePackageRepo
	records     rescheduleRecordRepo
	ledger      *CreditLedger
	converter   *timezone.Converter
	invalidator availabilityInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
	minLeadTime time.Duration
	now         func() time.Time
}

// NewRescheduleService constructs a RescheduleService.
func NewRescheduleService(
	db *sqlx.DB,
	bookings rescheduleBookingRepo,
	classes rescheduleClassRepo,
	packages reschedulePackageRepo,
	records rescheduleRecordRepo,
	ledger *CreditLedger,
	converter *timezone.Converter,
	invalidator availabilityInvalidator,
	cfg config.RescheduleConfig,
	logger *zap.Logger,
) *RescheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RescheduleService{
		db:          db,
		bookings:    bookings,
		classes:     classes,
		packages:    packages,
		records:     records,
		ledger:      ledger,
		converter:   converter,
		invalidator: invalidator,
		validator:   validator.New(),
		logger:      logger,
		minLeadTime: cfg.MinLeadTime,
		now:         time.Now,
	}
}

// Reschedule moves a student's booking to a new slot. On a concurrent
// credit conflict the transaction is retried once from the top so the
// second attempt sees fresh state.
func (s *RescheduleService) Reschedule(ctx context.Context, req *RescheduleRequest) (*RescheduleResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule request")
	}
	if err := (models.TimeRange{Start: req.NewStartTime, End: req.NewEndTime}).Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot times")
	}

	result, err := s.rescheduleOnce(ctx, req)
	if appErrors.Is(err, appErrors.ErrConcurrentModify) {
		s.logger.Warn("reschedule hit concurrent modification, retrying",
			zap.String("student_id", req.StudentID),
			zap.String("old_class_id", req.OldClassID),
		)
		result, err = s.rescheduleOnce(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	s.invalidateAround(ctx, result)
	s.logger.Info("reschedule committed",
		zap.String("record_id", result.Record.ID),
		zap.String("student_id", req.StudentID),
		zap.String("old_class_id", req.OldClassID),
		zap.String("new_class_id", result.NewClass.ID),
		zap.Bool("different_teacher", result.Record.DifferentTeacher),
	)
	return result, nil
}

func (s *RescheduleService) rescheduleOnce(ctx context.Context, req *RescheduleRequest) (*RescheduleResult, error) {
	var result *RescheduleResult
	err := repository.RunInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		oldBooking, err := s.bookings.FindForStudentAndClassForUpdate(ctx, tx, req.StudentID, req.OldClassID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotEligible, "no booking found for this student and class")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
		}
		if oldBooking.Status != models.BookingScheduled || !oldBooking.CanReschedule {
			return appErrors.Clone(appErrors.ErrNotEligible, "")
		}

		oldClass, err := s.classes.FindByIDForUpdate(ctx, tx, oldBooking.ClassID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
		}
		if oldClass.Status != models.ClassScheduled {
			return appErrors.Clone(appErrors.ErrNotEligible, "class is no longer scheduled")
		}

		start, err := s.converter.ParseInAdminZone(oldClass.Date, oldClass.StartTime)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to parse class start")
		}
		if start.Before(s.now().Add(s.minLeadTime)) {
			return appErrors.Clone(appErrors.ErrTooLateToReschedule, "")
		}

		pkg, err := s.packages.FindActiveByStudentForUpdate(ctx, tx, req.StudentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNoActivePackage, "")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load package")
		}
		if !s.ledger.CanConsumeReschedule(pkg) {
			return appErrors.Clone(appErrors.ErrCreditExhausted, "")
		}

		newClass, err := s.resolveTargetClass(ctx, tx, req)
		if err != nil {
			return err
		}

		note := fmt.Sprintf("rescheduled to %s %s (class %s)", req.NewDate, req.NewStartTime, newClass.ID)
		if err := s.bookings.MarkRescheduled(ctx, tx, oldBooking.ID, note, req.NewDate); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update old booking")
		}
		oldBooking.Status = models.BookingRescheduled
		oldBooking.CanReschedule = false
		oldBooking.Note = &note
		oldBooking.RescheduledDate = &req.NewDate

		newBooking := &models.Booking{
			StudentID:       req.StudentID,
			ClassID:         newClass.ID,
			PackageID:       pkg.ID,
			Status:          models.BookingScheduled,
			CanReschedule:   false,
			OriginalClassID: &oldClass.ID,
			RescheduledDate: &req.NewDate,
		}
		if err := s.bookings.Create(ctx, tx, newBooking); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create new booking")
		}

		record := &models.RescheduleRecord{
			StudentID:        req.StudentID,
			OldClassID:       oldClass.ID,
			NewClassID:       newClass.ID,
			PackageID:        pkg.ID,
			Reason:           req.Reason,
			DifferentTeacher: differentTeacher(oldClass.TeacherID, newClass.TeacherID),
			OldTeacherID:     oldClass.TeacherID,
			NewTeacherID:     newClass.TeacherID,
			Status:           models.RescheduleConfirmed,
		}
		if err := s.records.Create(ctx, tx, record); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record reschedule")
		}

		if err := s.ledger.ConsumeReschedule(ctx, tx, pkg); err != nil {
			return err
		}

		nowDate, nowClock := s.converter.NowInAdminZone()
		if err := s.ledger.RecomputeRemaining(ctx, tx, pkg, nowDate, nowClock); err != nil {
			return err
		}

		result = &RescheduleResult{
			Record:     record,
			OldBooking: oldBooking,
			NewBooking: newBooking,
			OldClass:   oldClass,
			NewClass:   newClass,
		}
		return nil
	})
	return result, err
}

// resolveTargetClass locks the class occupying the requested slot or creates
// one when the slot is empty. One student per slot: a locked class that
// already carries a scheduled booking is unavailable.
func (s *RescheduleService) resolveTargetClass(ctx context.Context, tx *sqlx.Tx, req *RescheduleRequest) (*models.Class, error) {
	class, err := s.classes.FindScheduledSlot(ctx, tx, req.NewDate, req.NewStartTime, req.NewEndTime, req.NewTeacherID)
	if err == nil {
		taken, err := s.bookings.ListScheduledByClass(ctx, tx, class.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slot occupancy")
		}
		if len(taken) > 0 {
			return nil, appErrors.Clone(appErrors.ErrSlotUnavailable, "")
		}
		return class, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve target slot")
	}

	// No exact match. The requested range must still clear every scheduled
	// class on the same calendar; a partial overlap double-books the teacher.
	requested := models.TimeRange{Start: req.NewStartTime, End: req.NewEndTime}
	ranges, err := s.classes.ScheduledRangesForUpdate(ctx, tx, req.NewTeacherID, req.NewDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slot overlap")
	}
	for _, r := range ranges {
		if requested.Overlaps(r) {
			return nil, appErrors.Clone(appErrors.ErrSlotUnavailable, "requested slot overlaps an existing class")
		}
	}

	class = &models.Class{
		Date:      req.NewDate,
		StartTime: req.NewStartTime,
		EndTime:   req.NewEndTime,
		TeacherID: req.NewTeacherID,
		Status:    models.ClassScheduled,
		Timezone:  s.converter.AdminZone(),
	}
	if err := s.classes.Create(ctx, tx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return class, nil
}

// Cancel reverses a confirmed reschedule: the exact inverse of every effect
// the original transaction applied, atomically.
func (s *RescheduleService) Cancel(ctx context.Context, recordID string) (*ReversalResult, error) {
	var result *ReversalResult
	err := repository.RunInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		record, err := s.records.FindByIDForUpdate(ctx, tx, recordID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "reschedule record not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reschedule record")
		}
		if record.Status != models.RescheduleConfirmed {
			return appErrors.Clone(appErrors.ErrNotEligible, "reschedule is not in a cancellable state")
		}

		oldBooking, err := s.bookings.FindForStudentAndClassForUpdate(ctx, tx, record.StudentID, record.OldClassID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load original booking")
		}
		newBooking, err := s.bookings.FindForStudentAndClassForUpdate(ctx, tx, record.StudentID, record.NewClassID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load replacement booking")
		}
		if newBooking.Status != models.BookingScheduled {
			return appErrors.Clone(appErrors.ErrNotEligible, "replacement booking already progressed")
		}

		if err := s.bookings.RestoreScheduled(ctx, tx, oldBooking.ID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore original booking")
		}
		oldBooking.Status = models.BookingScheduled
		oldBooking.CanReschedule = true
		oldBooking.Note = nil
		oldBooking.RescheduledDate = nil

		if err := s.bookings.UpdateStatus(ctx, tx, newBooking.ID, models.BookingCancelled); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel replacement booking")
		}
		newBooking.Status = models.BookingCancelled

		pkg, err := s.packages.FindByIDForUpdate(ctx, tx, record.PackageID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load package")
		}
		if err := s.ledger.ReleaseReschedule(ctx, tx, pkg); err != nil {
			return err
		}
		nowDate, nowClock := s.converter.NowInAdminZone()
		if err := s.ledger.RecomputeRemaining(ctx, tx, pkg, nowDate, nowClock); err != nil {
			return err
		}

		if err := s.records.UpdateStatus(ctx, tx, record.ID, models.RescheduleCancelled); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update reschedule record")
		}
		record.Status = models.RescheduleCancelled

		result = &ReversalResult{Record: record, OldBooking: oldBooking, NewBooking: newBooking}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("reschedule reversed",
		zap.String("record_id", result.Record.ID),
		zap.String("student_id", result.Record.StudentID),
	)
	return result, nil
}

// List returns reschedule history with optional filters.
func (s *RescheduleService) List(ctx context.Context, filter models.RescheduleFilter) ([]models.RescheduleRecord, int, error) {
	records, total, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reschedules")
	}
	return records, total, nil
}

func (s *RescheduleService) invalidateAround(ctx context.Context, result *RescheduleResult) {
	if s.invalidator == nil {
		return
	}
	if result.Record.OldTeacherID != nil {
		s.invalidator.Invalidate(ctx, *result.Record.OldTeacherID, result.OldClass.Date)
	}
	if result.Record.NewTeacherID != nil {
		s.invalidator.Invalidate(ctx, *result.Record.NewTeacherID, result.NewClass.Date)
	}
}

// differentTeacher is true only when both teachers are known and differ.
func differentTeacher(oldID, newID *string) bool {
	if oldID == nil || newID == nil {
		return false
	}
	return *oldID != *newID
}
