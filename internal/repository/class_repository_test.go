package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-booking-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func classRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "date", "start_time", "end_time", "teacher_id", "status", "timezone", "created_at", "updated_at"})
}

func TestClassRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO classes")).
		WithArgs(sqlmock.AnyArg(), "2026-03-02", "09:00:00", "10:00:00", "teacher-1", string(models.ClassScheduled), "Asia/Jakarta", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	teacherID := "teacher-1"
	class := &models.Class{
		Date:      "2026-03-02",
		StartTime: "09:00:00",
		EndTime:   "10:00:00",
		TeacherID: &teacherID,
		Timezone:  "Asia/Jakarta",
	}
	require.NoError(t, repo.Create(context.Background(), nil, class))
	assert.NotEmpty(t, class.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryListEnded(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	rows := classRows().
		AddRow("class-1", "2026-03-01", "09:00:00", "10:00:00", "teacher-1", "scheduled", "Asia/Jakarta", time.Now(), time.Now()).
		AddRow("class-2", "2026-03-02", "07:00:00", "08:00:00", nil, "scheduled", "Asia/Jakarta", time.Now(), time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, date, start_time, end_time, teacher_id, status, timezone, created_at, updated_at FROM classes WHERE status = $1 AND (date < $2 OR (date = $2 AND end_time < $3))")).
		WithArgs(string(models.ClassScheduled), "2026-03-02", "09:30:00").
		WillReturnRows(rows)

	classes, err := repo.ListEnded(context.Background(), "2026-03-02", "09:30:00")
	require.NoError(t, err)
	assert.Len(t, classes, 2)
	assert.Equal(t, "class-1", classes[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryBookedRanges(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	rows := sqlmock.NewRows([]string{"start_time", "end_time"}).
		AddRow("09:00:00", "10:00:00").
		AddRow("14:00:00", "15:00:00")

	mock.ExpectQuery("SELECT DISTINCT c.start_time, c.end_time").
		WithArgs(string(models.ClassScheduled), "2026-03-02", "teacher-1", string(models.BookingScheduled)).
		WillReturnRows(rows)

	ranges, err := repo.BookedRanges(context.Background(), "teacher-1", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, []models.TimeRange{
		{Start: "09:00:00", End: "10:00:00"},
		{Start: "14:00:00", End: "15:00:00"},
	}, ranges)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryScheduledRangesForUpdate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectBegin()
	rows := classRows().
		AddRow("class-1", "2026-03-09", "14:30:00", "15:30:00", "teacher-1", "scheduled", "Asia/Jakarta", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, date, start_time, end_time, teacher_id, status, timezone, created_at, updated_at FROM classes WHERE date = $1 AND teacher_id = $2 AND status = $3 ORDER BY start_time ASC FOR UPDATE")).
		WithArgs("2026-03-09", "teacher-1", string(models.ClassScheduled)).
		WillReturnRows(rows)
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)
	teacherID := "teacher-1"
	ranges, err := repo.ScheduledRangesForUpdate(context.Background(), tx, &teacherID, "2026-03-09")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, []models.TimeRange{{Start: "14:30:00", End: "15:30:00"}}, ranges)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE classes SET status = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("class-1", string(models.ClassCompleted), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), nil, "class-1", models.ClassCompleted))
	assert.NoError(t, mock.ExpectationsWereMet())
}
