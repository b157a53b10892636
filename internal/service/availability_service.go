package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-booking-api/internal/availability"
	"github.com/noah-isme/tutor-booking-api/internal/models"
	"github.com/noah-isme/tutor-booking-api/pkg/config"
	appErrors "github.com/noah-isme/tutor-booking-api/pkg/errors"
	"github.com/noah-isme/tutor-booking-api/pkg/timezone"
)

// maxQueryDays caps a single availability query window.
const maxQueryDays = 31

type availabilityTeacherRepo interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	ListActive(ctx context.Context) ([]models.Teacher, error)
}

type availabilityClassRepo interface {
	BookedRanges(ctx context.Context, teacherID, date string) ([]models.TimeRange, error)
}

// AvailabilityRequest describes one availability query.
type AvailabilityRequest struct {
	StartDate string `form:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `form:"end_date" validate:"required,datetime=2006-01-02"`
	StudentID string `form:"student_id"`
	TeacherID string `form:"teacher_id"`
}

// TeacherDayAvailability is the per-teacher view for one date.
type TeacherDayAvailability struct {
	Date     string                   `json:"date"`
	Teachers []availability.TeacherDay `json:"teachers"`
}

// DayAvailability is the single-teacher view for one date.
type DayAvailability struct {
	Date      string                 `json:"date"`
	Available bool                   `json:"available"`
	Result    availability.DayResult `json:"result"`
}

// AvailabilityResponse carries either the single-teacher or multi-teacher
// shape depending on the query.
type AvailabilityResponse struct {
	TeacherID string                   `json:"teacher_id,omitempty"`
	Days      []DayAvailability        `json:"days,omitempty"`
	MultiDays []TeacherDayAvailability `json:"multi_days,omitempty"`
}

// AvailabilityService computes free slots across date ranges and teachers.
// Per-teacher day results are cached in Redis; teacher calendars are
// disjoint so the per-date fan-out runs under a bounded worker pool.
type AvailabilityService struct {
	teachers  availabilityTeacherRepo
	students  sweepStudentRepo
	classes   availabilityClassRepo
	converter *timezone.Converter
	redis     *redis.Client
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       config.AvailabilityConfig
}

// NewAvailabilityService constructs an AvailabilityService. The Redis
// client may be nil; caching then degrades to recomputation.
func NewAvailabilityService(
	teachers availabilityTeacherRepo,
	students sweepStudentRepo,
	classes availabilityClassRepo,
	converter *timezone.Converter,
	redisClient *redis.Client,
	metrics *MetricsService,
	cfg config.AvailabilityConfig,
	logger *zap.Logger,
) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		teachers:  teachers,
		students:  students,
		classes:   classes,
		converter: converter,
		redis:     redisClient,
		metrics:   metrics,
		validator: validator.New(),
		logger:    logger,
		cfg:       cfg,
	}
}

// Query resolves availability for the requested window. With a teacher ID
// the response is that teacher's day-by-day slots; without one every active
// teacher is evaluated and ranked, the student's primary teacher first.
func (s *AvailabilityService) Query(ctx context.Context, req *AvailabilityRequest) (*AvailabilityResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability query")
	}
	dates, err := expandDates(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	if req.TeacherID != "" {
		return s.querySingle(ctx, req.TeacherID, dates)
	}
	return s.queryAll(ctx, req.StudentID, dates)
}

func (s *AvailabilityService) querySingle(ctx context.Context, teacherID string, dates []string) (*AvailabilityResponse, error) {
	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "teacher not found")
	}
	sched, err := teacher.Schedule()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "invalid teacher schedule")
	}

	resp := &AvailabilityResponse{TeacherID: teacherID}
	for _, date := range dates {
		result, err := s.teacherDay(ctx, sched, date)
		if err != nil {
			return nil, err
		}
		resp.Days = append(resp.Days, DayAvailability{
			Date:      date,
			Available: result.Available(),
			Result:    result,
		})
	}
	return resp, nil
}

func (s *AvailabilityService) queryAll(ctx context.Context, studentID string, dates []string) (*AvailabilityResponse, error) {
	teachers, err := s.teachers.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}

	primaryID := ""
	if studentID != "" {
		student, err := s.students.FindByID(ctx, nil, studentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "student not found")
		}
		if student.TeacherID != nil {
			primaryID = *student.TeacherID
		}
	}

	schedules := make(map[string]*models.TeacherSchedule, len(teachers))
	for i := range teachers {
		sched, err := teachers[i].Schedule()
		if err != nil {
			s.logger.Warn("skipping teacher with invalid schedule",
				zap.String("teacher_id", teachers[i].ID),
				zap.Error(err),
			)
			continue
		}
		schedules[teachers[i].ID] = sched
	}

	resp := &AvailabilityResponse{}
	for _, date := range dates {
		day, err := s.multiTeacherDay(ctx, teachers, schedules, primaryID, date)
		if err != nil {
			return nil, err
		}
		resp.MultiDays = append(resp.MultiDays, *day)
	}
	return resp, nil
}

// multiTeacherDay fans out across teachers under a bounded worker pool and
// ranks the merged results.
func (s *AvailabilityService) multiTeacherDay(ctx context.Context, teachers []models.Teacher, schedules map[string]*models.TeacherSchedule, primaryID, date string) (*TeacherDayAvailability, error) {
	results := make([]availability.TeacherDay, 0, len(teachers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	var firstErr error

	concurrency := s.cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)

	for i := range teachers {
		teacher := &teachers[i]
		sched, ok := schedules[teacher.ID]
		if !ok {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := s.teacherDay(ctx, sched, date)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			results = append(results, availability.TeacherDay{
				TeacherID:   teacher.ID,
				TeacherName: teacher.FullName,
				Primary:     teacher.ID == primaryID,
				Result:      result,
			})
		}()
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	availability.Rank(results)
	return &TeacherDayAvailability{Date: date, Teachers: results}, nil
}

// teacherDay computes one teacher's availability for one date, reading
// through the cache when one is configured.
func (s *AvailabilityService) teacherDay(ctx context.Context, sched *models.TeacherSchedule, date string) (availability.DayResult, error) {
	if cached, ok := s.cacheGet(ctx, sched.TeacherID, date); ok {
		return cached, nil
	}

	day, err := weekdayOf(date)
	if err != nil {
		return availability.DayResult{}, err
	}

	booked, err := s.classes.BookedRanges(ctx, sched.TeacherID, date)
	if err != nil {
		return availability.DayResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booked intervals")
	}

	result := availability.ForDay(sched, day, booked, s.cfg.SlotDuration, s.cfg.StepGranularity)
	s.cacheSet(ctx, sched.TeacherID, date, result)
	return result, nil
}

// Invalidate drops the cached day for a teacher after their calendar
// changes. Missing keys and cache errors are non-fatal.
func (s *AvailabilityService) Invalidate(ctx context.Context, teacherID, date string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, availabilityCacheKey(teacherID, date)).Err(); err != nil {
		s.logger.Warn("availability cache invalidation failed",
			zap.String("teacher_id", teacherID),
			zap.String("date", date),
			zap.Error(err),
		)
	}
}

func (s *AvailabilityService) cacheGet(ctx context.Context, teacherID, date string) (availability.DayResult, bool) {
	if s.redis == nil {
		return availability.DayResult{}, false
	}
	started := time.Now()
	raw, err := s.redis.Get(ctx, availabilityCacheKey(teacherID, date)).Bytes()
	if err != nil {
		s.metrics.RecordCacheOperation(false, time.Since(started))
		return availability.DayResult{}, false
	}
	var result availability.DayResult
	if err := json.Unmarshal(raw, &result); err != nil {
		s.metrics.RecordCacheOperation(false, time.Since(started))
		return availability.DayResult{}, false
	}
	s.metrics.RecordCacheOperation(true, time.Since(started))
	return result, true
}

func (s *AvailabilityService) cacheSet(ctx context.Context, teacherID, date string, result availability.DayResult) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, availabilityCacheKey(teacherID, date), raw, s.cfg.CacheTTL).Err(); err != nil {
		s.logger.Warn("availability cache write failed",
			zap.String("teacher_id", teacherID),
			zap.Error(err),
		)
	}
}

func availabilityCacheKey(teacherID, date string) string {
	return fmt.Sprintf("availability:%s:%s", teacherID, date)
}

// expandDates enumerates the inclusive date window.
func expandDates(start, end string) ([]string, error) {
	from, err := time.Parse(timezone.DateLayout, start)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start date")
	}
	to, err := time.Parse(timezone.DateLayout, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid end date")
	}
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date precedes start date")
	}
	// The window is inclusive, so an equal pair already counts as one day.
	if days := int(to.Sub(from).Hours()/24) + 1; days > maxQueryDays {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("date window exceeds %d days", maxQueryDays))
	}

	var dates []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(timezone.DateLayout))
	}
	return dates, nil
}

var weekdayNames = map[time.Weekday]models.Weekday{
	time.Monday:    models.Monday,
	time.Tuesday:   models.Tuesday,
	time.Wednesday: models.Wednesday,
	time.Thursday:  models.Thursday,
	time.Friday:    models.Friday,
	time.Saturday:  models.Saturday,
	time.Sunday:    models.Sunday,
}

func weekdayOf(date string) (models.Weekday, error) {
	d, err := time.Parse(timezone.DateLayout, date)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date")
	}
	return weekdayNames[d.Weekday()], nil
}
