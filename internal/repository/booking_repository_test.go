package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-booking-api/internal/models"
)

func bookingRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "class_id", "package_id", "status", "can_reschedule", "original_class_id", "rescheduled_date", "note", "created_at", "updated_at"})
}

func TestBookingRepositoryCreateDefaultsStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).
		WithArgs(sqlmock.AnyArg(), "student-1", "class-1", "pkg-1", string(models.BookingScheduled), true, nil, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	booking := &models.Booking{
		StudentID:     "student-1",
		ClassID:       "class-1",
		PackageID:     "pkg-1",
		CanReschedule: true,
	}
	require.NoError(t, repo.Create(context.Background(), nil, booking))
	assert.Equal(t, models.BookingScheduled, booking.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryCountScheduledByPackage(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM bookings WHERE package_id = $1 AND status = $2")).
		WithArgs("pkg-1", string(models.BookingScheduled)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountScheduledByPackage(context.Background(), nil, "pkg-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryMarkRescheduled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET status = $2, can_reschedule = FALSE")).
		WithArgs("booking-1", string(models.BookingRescheduled), "moved to 2026-03-09 09:00:00", "2026-03-09", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkRescheduled(context.Background(), nil, "booking-1", "moved to 2026-03-09 09:00:00", "2026-03-09"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryRestoreScheduled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET status = $2, can_reschedule = TRUE, note = NULL, rescheduled_date = NULL")).
		WithArgs("booking-1", string(models.BookingScheduled), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RestoreScheduled(context.Background(), nil, "booking-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryListScheduledByClass(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	rows := bookingRows().
		AddRow("booking-1", "student-1", "class-1", "pkg-1", "scheduled", true, nil, nil, nil, time.Now(), time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE class_id = $1 AND status = $2")).
		WithArgs("class-1", string(models.BookingScheduled)).
		WillReturnRows(rows)

	bookings, err := repo.ListScheduledByClass(context.Background(), nil, "class-1")
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, "booking-1", bookings[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryHasFutureScheduled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("pkg-1", string(models.BookingScheduled), "2026-03-02", "09:30:00").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.HasFutureScheduled(context.Background(), nil, "pkg-1", "2026-03-02", "09:30:00")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
