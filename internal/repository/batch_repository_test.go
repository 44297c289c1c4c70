package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veduhub/institute-api/internal/models"
	"github.com/veduhub/institute-api/pkg/query"
)

func TestBatchListByTeacher(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "course_id", "name", "start_date", "end_date", "capacity", "created_at", "updated_at"}).
		AddRow("ba1", "c1", "Morning Batch", now, now, 30, now, now)
	mock.ExpectQuery("SELECT b.id, b.course_id, b.name, b.start_date, b.end_date, b.capacity, b.created_at, b.updated_at FROM batches b").
		WithArgs("b1", "u1").
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("b1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	batches, total, err := repo.List(context.Background(), models.BatchFilter{BusinessID: "b1", TeacherUserID: "u1"}, query.Options{})
	require.NoError(t, err)
	assert.Len(t, batches, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchFindStudentMembership(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "batch_id", "user_id", "is_active", "created_at", "updated_at"}).
		AddRow("m1", "ba1", "u1", false, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, batch_id, user_id, is_active, created_at, updated_at FROM batch_students WHERE user_id = $1 AND batch_id = $2 LIMIT 1")).
		WithArgs("u1", "ba1").
		WillReturnRows(rows)

	membership, err := repo.FindStudentMembership(context.Background(), "u1", "ba1")
	require.NoError(t, err)
	assert.False(t, membership.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchUpsertTeacher(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	mock.ExpectExec("INSERT INTO batch_teachers").WillReturnResult(sqlmock.NewResult(1, 1))

	membership := &models.BatchTeacher{BatchID: "ba1", UserID: "u1", IsActive: true}
	require.NoError(t, repo.UpsertTeacher(context.Background(), membership))
	assert.NotEmpty(t, membership.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchListStudents(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	rows := sqlmock.NewRows([]string{"id", "batch_id", "user_id", "is_active", "full_name", "email"}).
		AddRow("m1", "ba1", "u1", true, "Student One", "s1@example.com").
		AddRow("m2", "ba1", "u2", true, "Student Two", "s2@example.com")
	mock.ExpectQuery("SELECT bs.id, bs.batch_id, bs.user_id, bs.is_active, u.full_name, u.email").
		WithArgs("ba1").
		WillReturnRows(rows)

	students, err := repo.ListStudents(context.Background(), "ba1")
	require.NoError(t, err)
	assert.Len(t, students, 2)
	assert.Equal(t, "Student One", students[0].FullName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchCountActiveStudents(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBatchRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM batch_students WHERE batch_id = $1 AND is_active = TRUE")).
		WithArgs("ba1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	count, err := repo.CountActiveStudents(context.Background(), "ba1")
	require.NoError(t, err)
	assert.Equal(t, 12, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
