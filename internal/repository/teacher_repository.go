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

// TeacherRepository manages persistence for teacher profiles.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a new teacher repository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

const teacherColumns = "t.id, t.user_id, t.business_id, t.qualification, t.experience, t.created_at, t.updated_at"

var teacherSelectable = []string{"id", "user_id", "business_id", "qualification", "experience", "created_at", "updated_at"}

var teacherSortable = map[string]string{
	"experience": "t.experience",
	"createdAt":  "t.created_at",
	"updatedAt":  "t.updated_at",
}

// List returns teacher profiles matching the filter, shaped by query options.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter, opts query.Options) ([]models.TeacherDetail, int, error) {
	base := "FROM teachers t JOIN users u ON u.id = t.user_id WHERE t.deleted_at IS NULL AND u.deleted_at IS NULL"
	var conditions []string
	var args []interface{}

	merged := opts.MergeWhere(map[string]interface{}{
		"t.business_id": filter.BusinessID,
	})
	conditions, args = appendEqualityConditions(conditions, args, merged, []string{"t.business_id"})

	if filter.Search != "" {
		var clause string
		clause, args = searchCondition(args, "u.full_name", filter.Search)
		conditions = append(conditions, "("+clause+")")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	order := opts.OrderClause(teacherSortable, "t.created_at DESC")

	q := fmt.Sprintf("SELECT %s, u.full_name, u.email %s ORDER BY %s%s", teacherColumns, base, order, opts.LimitOffset())
	var teachers []models.TeacherDetail
	if err := r.db.SelectContext(ctx, &teachers, q, args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}
	return teachers, total, nil
}

// FindByID returns a teacher profile by ID.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	const q = `SELECT id, user_id, business_id, qualification, experience, created_at, updated_at FROM teachers WHERE id = $1 AND deleted_at IS NULL`
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, q, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// FindDetailByID returns a teacher profile joined with user details.
func (r *TeacherRepository) FindDetailByID(ctx context.Context, id string) (*models.TeacherDetail, error) {
	q := fmt.Sprintf("SELECT %s, u.full_name, u.email FROM teachers t JOIN users u ON u.id = t.user_id WHERE t.id = $1 AND t.deleted_at IS NULL", teacherColumns)
	var detail models.TeacherDetail
	if err := r.db.GetContext(ctx, &detail, q, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsForUser checks whether a user already has a teacher profile.
func (r *TeacherRepository) ExistsForUser(ctx context.Context, userID string) (bool, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM teachers WHERE user_id = $1 AND deleted_at IS NULL`, userID); err != nil {
		return false, fmt.Errorf("check teacher profile: %w", err)
	}
	return count > 0, nil
}

// Create persists a teacher profile.
func (r *TeacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if teacher.CreatedAt.IsZero() {
		teacher.CreatedAt = now
	}
	teacher.UpdatedAt = now

	const q = `INSERT INTO teachers (id, user_id, business_id, qualification, experience, created_at, updated_at)
		VALUES (:id, :user_id, :business_id, :qualification, :experience, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, q, teacher); err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}
	return nil
}

// Update modifies a teacher profile.
func (r *TeacherRepository) Update(ctx context.Context, teacher *models.Teacher) error {
	teacher.UpdatedAt = time.Now().UTC()
	const q = `UPDATE teachers SET qualification = :qualification, experience = :experience, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, q, teacher); err != nil {
		return fmt.Errorf("update teacher: %w", err)
	}
	return nil
}

// SoftDelete marks a teacher profile as deleted.
func (r *TeacherRepository) SoftDelete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE teachers SET deleted_at = $1 WHERE id = $2`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("delete teacher: %w", err)
	}
	return nil
}
