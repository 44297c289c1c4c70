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

// SubjectRepository manages persistence for subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs a new subject repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

const subjectColumns = "id, business_id, name, code, created_at, updated_at"

var subjectSelectable = []string{"id", "business_id", "name", "code", "created_at", "updated_at"}

var subjectSortable = map[string]string{
	"name":      "name",
	"code":      "code",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

// List returns subjects matching the filter, shaped by the query options.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter, opts query.Options) ([]models.Subject, int, error) {
	base := "FROM subjects WHERE deleted_at IS NULL"
	var conditions []string
	var args []interface{}

	merged := opts.MergeWhere(map[string]interface{}{
		"business_id": filter.BusinessID,
	})
	conditions, args = appendEqualityConditions(conditions, args, merged, []string{"business_id"})

	if filter.Search != "" {
		var clause string
		clause, args = searchCondition(args, "name", filter.Search)
		conditions = append(conditions, "("+clause+")")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	columns := opts.Columns(subjectSelectable, subjectColumns)
	order := opts.OrderClause(subjectSortable, "name ASC")

	q := fmt.Sprintf("SELECT %s %s ORDER BY %s%s", columns, base, order, opts.LimitOffset())
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, q, args...); err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}
	return subjects, total, nil
}

// FindByID returns a subject record by ID.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	q := fmt.Sprintf("SELECT %s FROM subjects WHERE id = $1 AND deleted_at IS NULL", subjectColumns)
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, q, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// ExistsByName checks for a duplicate subject name within a business.
func (r *SubjectRepository) ExistsByName(ctx context.Context, businessID, name, excludeID string) (bool, error) {
	q := "SELECT COUNT(*) FROM subjects WHERE business_id = $1 AND LOWER(name) = LOWER($2) AND deleted_at IS NULL"
	args := []interface{}{businessID, name}
	if excludeID != "" {
		q += " AND id <> $3"
		args = append(args, excludeID)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, q, args...); err != nil {
		return false, fmt.Errorf("check subject name: %w", err)
	}
	return count > 0, nil
}

// Create persists a subject record.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}
	subject.UpdatedAt = now

	const q = `INSERT INTO subjects (id, business_id, name, code, created_at, updated_at)
		VALUES (:id, :business_id, :name, :code, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, q, subject); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// Update modifies a subject record.
func (r *SubjectRepository) Update(ctx context.Context, subject *models.Subject) error {
	subject.UpdatedAt = time.Now().UTC()
	const q = `UPDATE subjects SET name = :name, code = :code, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, q, subject); err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	return nil
}

// SoftDelete marks a subject as deleted.
func (r *SubjectRepository) SoftDelete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE subjects SET deleted_at = $1 WHERE id = $2`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	return nil
}

// CountCourseMappings returns how many courses reference the subject.
func (r *SubjectRepository) CountCourseMappings(ctx context.Context, subjectID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM course_subjects WHERE subject_id = $1`, subjectID); err != nil {
		return 0, fmt.Errorf("count subject mappings: %w", err)
	}
	return count, nil
}
