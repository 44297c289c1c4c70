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

	"github.com/veduhub/institute-api/internal/models"
	"github.com/veduhub/institute-api/pkg/query"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func userRows(now time.Time) *sqlmock.Rows {
	businessID := "b1"
	return sqlmock.NewRows([]string{"id", "email", "password_hash", "full_name", "role", "business_id", "active", "last_login", "created_at", "updated_at"}).
		AddRow("u1", "user@example.com", "hash", "User", string(models.RoleAdmin), businessID, true, now, now, now)
}

func TestUserFindByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, full_name, role, business_id, active, last_login, created_at, updated_at FROM users WHERE email = $1 AND deleted_at IS NULL LIMIT 1")).
		WithArgs("user@example.com").
		WillReturnRows(userRows(time.Now()))

	user, err := repo.FindByEmail(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", user.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserListScopedToBusiness(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, full_name, role, business_id, active, last_login, created_at, updated_at FROM users WHERE deleted_at IS NULL AND business_id = $1 ORDER BY created_at DESC")).
		WithArgs("b1").
		WillReturnRows(userRows(time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE deleted_at IS NULL AND business_id = $1")).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	users, total, err := repo.List(context.Background(), models.UserFilter{BusinessID: "b1"}, query.Options{})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserListWithPaginationAndSort(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	opts := query.Parse(map[string]string{"page": "2", "limit": "10", "sort": "email:asc"})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, full_name, role, business_id, active, last_login, created_at, updated_at FROM users WHERE deleted_at IS NULL ORDER BY email ASC LIMIT 10 OFFSET 10")).
		WillReturnRows(userRows(time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE deleted_at IS NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	users, total, err := repo.List(context.Background(), models.UserFilter{}, opts)
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreateRefreshToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateRefreshToken(context.Background(), &models.RefreshToken{ID: "1", UserID: "u1", Token: "token", ExpiresAt: time.Now(), CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserSoftDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("UPDATE users SET deleted_at").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SoftDelete(context.Background(), "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
