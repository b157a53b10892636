package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-booking-api/internal/models"
	"github.com/noah-isme/tutor-booking-api/pkg/config"
	appErrors "github.com/noah-isme/tutor-booking-api/pkg/errors"
	"github.com/noah-isme/tutor-booking-api/pkg/export"
	"github.com/noah-isme/tutor-booking-api/pkg/jobs"
	"github.com/noah-isme/tutor-booking-api/pkg/storage"
)

// ExportFormat enumerates supported export encodings.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// ExportStatus tracks an export job through its lifecycle.
type ExportStatus string

const (
	ExportPending   ExportStatus = "pending"
	ExportRunning   ExportStatus = "running"
	ExportCompleted ExportStatus = "completed"
	ExportFailed    ExportStatus = "failed"
)

// ExportJob is the tracked state of one reschedule-history export.
type ExportJob struct {
	ID          string                  `json:"id"`
	Format      ExportFormat            `json:"format"`
	Status      ExportStatus            `json:"status"`
	Filter      models.RescheduleFilter `json:"-"`
	File        string                  `json:"file,omitempty"`
	Error       string                  `json:"error,omitempty"`
	RequestedAt time.Time               `json:"requested_at"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

type exportRecordLister interface {
	List(ctx context.Context, filter models.RescheduleFilter) ([]models.RescheduleRecord, int, error)
}

// ExportService renders reschedule history to CSV or PDF asynchronously on
// a background worker queue, writing files to local storage.
type ExportService struct {
	records exportRecordLister
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	store   *storage.LocalStorage
	queue   *jobs.Queue
	logger  *zap.Logger

	mu   sync.RWMutex
	jobs map[string]*ExportJob
}

// NewExportService constructs an ExportService and its worker queue. Call
// Start before enqueueing.
func NewExportService(records exportRecordLister, store *storage.LocalStorage, cfg config.ExportsConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ExportService{
		records: records,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		store:   store,
		logger:  logger,
		jobs:    map[string]*ExportJob{},
	}
	s.queue = jobs.NewQueue("reschedule-exports", s.handle, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the export workers.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the export workers.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// Enqueue registers an export job and hands it to the workers.
func (s *ExportService) Enqueue(format ExportFormat, filter models.RescheduleFilter) (*ExportJob, error) {
	if format != ExportCSV && format != ExportPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	job := &ExportJob{
		ID:          uuid.NewString(),
		Format:      format,
		Status:      ExportPending,
		Filter:      filter,
		RequestedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(format), Payload: job.ID}); err != nil {
		s.setFailed(job.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "export queue unavailable")
	}
	return job, nil
}

// Job returns the tracked state for an export job.
func (s *ExportService) Job(id string) (*ExportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	copied := *job
	return &copied, nil
}

func (s *ExportService) handle(ctx context.Context, job jobs.Job) error {
	id := job.Payload
	s.mu.Lock()
	tracked, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	tracked.Status = ExportRunning
	filter := tracked.Filter
	format := tracked.Format
	s.mu.Unlock()

	// Pull the full filtered history, not one page.
	filter.Page = 1
	filter.PageSize = 100
	var all []models.RescheduleRecord
	for {
		page, total, err := s.records.List(ctx, filter)
		if err != nil {
			s.setFailed(id, err)
			return err
		}
		all = append(all, page...)
		if len(all) >= total || len(page) == 0 {
			break
		}
		filter.Page++
	}

	data := rescheduleDataset(all)
	var payload []byte
	var err error
	switch format {
	case ExportPDF:
		payload, err = s.pdf.Render(data, "Reschedule History")
	default:
		payload, err = s.csv.Render(data)
	}
	if err != nil {
		s.setFailed(id, err)
		return err
	}

	filename := fmt.Sprintf("reschedules/%s.%s", id, format)
	if _, err := s.store.Save(filename, payload); err != nil {
		s.setFailed(id, err)
		return err
	}

	now := time.Now().UTC()
	s.mu.Lock()
	tracked.Status = ExportCompleted
	tracked.File = filename
	tracked.CompletedAt = &now
	s.mu.Unlock()

	s.logger.Info("export completed",
		zap.String("job_id", id),
		zap.String("format", string(format)),
		zap.Int("rows", len(all)),
	)
	return nil
}

func (s *ExportService) setFailed(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = ExportFailed
		job.Error = err.Error()
	}
}

func rescheduleDataset(records []models.RescheduleRecord) export.Dataset {
	headers := []string{"ID", "Student", "Old Class", "New Class", "Package", "Reason", "Teacher Changed", "Status", "Rescheduled At"}
	rows := make([]map[string]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, map[string]string{
			"ID":              r.ID,
			"Student":         r.StudentID,
			"Old Class":       r.OldClassID,
			"New Class":       r.NewClassID,
			"Package":         r.PackageID,
			"Reason":          strings.ReplaceAll(r.Reason, "\n", " "),
			"Teacher Changed": fmt.Sprintf("%t", r.DifferentTeacher),
			"Status":          string(r.Status),
			"Rescheduled At":  r.RescheduledAt.UTC().Format(time.RFC3339),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
