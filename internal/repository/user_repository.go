package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/veduhub/institute-api/internal/models"
	"github.com/veduhub/institute-api/pkg/query"
)

// UserRepository manages persistence for users and refresh tokens.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs a new user repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = "id, email, password_hash, full_name, role, business_id, active, last_login, created_at, updated_at"

var userSelectable = []string{"id", "email", "full_name", "role", "business_id", "active", "last_login", "created_at", "updated_at"}

var userSortable = map[string]string{
	"email":     "email",
	"fullName":  "full_name",
	"role":      "role",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

// FindByEmail returns the active-or-inactive user matching the email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	q := fmt.Sprintf("SELECT %s FROM users WHERE email = $1 AND deleted_at IS NULL LIMIT 1", userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, q, email); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID returns a user record by ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	q := fmt.Sprintf("SELECT %s FROM users WHERE id = $1 AND deleted_at IS NULL", userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, q, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// List returns users matching the filter, shaped by the query options.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter, opts query.Options) ([]models.User, int, error) {
	base := "FROM users WHERE deleted_at IS NULL"
	var conditions []string
	var args []interface{}

	merged := opts.MergeWhere(map[string]interface{}{
		"business_id": filter.BusinessID,
	})
	conditions, args = appendEqualityConditions(conditions, args, merged, []string{"business_id"})

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, string(*filter.Role))
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		var clause string
		clause, args = searchCondition(args, "full_name", filter.Search)
		conditions = append(conditions, "("+clause+")")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	columns := opts.Columns(userSelectable, userColumns)
	order := opts.OrderClause(userSortable, "created_at DESC")

	q := fmt.Sprintf("SELECT %s %s ORDER BY %s%s", columns, base, order, opts.LimitOffset())
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, q, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

// ExistsByEmail checks if another user already holds the email.
func (r *UserRepository) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	q := "SELECT COUNT(*) FROM users WHERE LOWER(email) = LOWER($1) AND deleted_at IS NULL"
	args := []interface{}{email}
	if excludeID != "" {
		q += " AND id <> $2"
		args = append(args, excludeID)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, q, args...); err != nil {
		return false, fmt.Errorf("check user email: %w", err)
	}
	return count > 0, nil
}

// Create persists a user record.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	const q = `INSERT INTO users (id, email, password_hash, full_name, role, business_id, active, created_at, updated_at)
		VALUES (:id, :email, :password_hash, :full_name, :role, :business_id, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, q, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Update modifies a user record.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	const q = `UPDATE users SET email = :email, full_name = :full_name, role = :role, business_id = :business_id, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, q, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// SoftDelete marks a user as deleted.
func (r *UserRepository) SoftDelete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET deleted_at = $1 WHERE id = $2`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// UpdateLastLogin records the user's latest login timestamp.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, ts, id); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`, passwordHash, updatedAt, id); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// CreateRefreshToken persists a refresh token.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const q = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, ip_address, user_agent)
		VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, q, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken loads a refresh token by its opaque value.
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const q = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, q, token); err != nil {
		return nil, err
	}
	return &rt, nil
}

// RevokeRefreshToken marks a single token revoked.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $1 WHERE id = $2`, revokedAt, id); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes every live token for a user.
func (r *UserRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $1 WHERE user_id = $2 AND revoked = FALSE`, time.Now().UTC(), userID); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}
