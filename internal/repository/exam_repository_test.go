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

func TestExamListFieldProjection(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	opts := query.Parse(map[string]string{"fields": "id,name", "sort": "name:asc"})

	rows := sqlmock.NewRows([]string{"id", "name"}).AddRow("e1", "JEE Advanced")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM exams WHERE deleted_at IS NULL AND business_id = $1 ORDER BY name ASC")).
		WithArgs("b1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM exams WHERE deleted_at IS NULL AND business_id = $1")).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exams, total, err := repo.List(context.Background(), models.ExamFilter{BusinessID: "b1"}, opts)
	require.NoError(t, err)
	assert.Len(t, exams, 1)
	assert.Equal(t, "JEE Advanced", exams[0].Name)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamListSearch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "business_id", "name", "description", "created_at", "updated_at"}).
		AddRow("e1", "b1", "NEET", "Medical entrance", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, business_id, name, description, created_at, updated_at FROM exams WHERE deleted_at IS NULL AND (LOWER(name) LIKE $1) ORDER BY created_at DESC")).
		WithArgs("%neet%").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM exams WHERE deleted_at IS NULL AND (LOWER(name) LIKE $1)")).
		WithArgs("%neet%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exams, total, err := repo.List(context.Background(), models.ExamFilter{Search: "NEET"}, query.Options{})
	require.NoError(t, err)
	assert.Len(t, exams, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamExistsByNameWithExclusion(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM exams WHERE business_id = $1 AND LOWER(name) = LOWER($2) AND deleted_at IS NULL AND id <> $3")).
		WithArgs("b1", "NEET", "e1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	exists, err := repo.ExistsByName(context.Background(), "b1", "NEET", "e1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	mock.ExpectExec("INSERT INTO exams").WillReturnResult(sqlmock.NewResult(1, 1))

	exam := &models.Exam{BusinessID: "b1", Name: "NEET"}
	require.NoError(t, repo.Create(context.Background(), exam))
	assert.NotEmpty(t, exam.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
