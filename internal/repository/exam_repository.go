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

// ExamRepository manages persistence for exams.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository constructs a new exam repository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

const examColumns = "id, business_id, name, description, created_at, updated_at"

var examSelectable = []string{"id", "business_id", "name", "description", "created_at", "updated_at"}

var examSortable = map[string]string{
	"name":      "name",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

// List returns exams matching the filter, shaped by the query options.
func (r *ExamRepository) List(ctx context.Context, filter models.ExamFilter, opts query.Options) ([]models.Exam, int, error) {
	base := "FROM exams WHERE deleted_at IS NULL"
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

	columns := opts.Columns(examSelectable, examColumns)
	order := opts.OrderClause(examSortable, "created_at DESC")

	q := fmt.Sprintf("SELECT %s %s ORDER BY %s%s", columns, base, order, opts.LimitOffset())
	var exams []models.Exam
	if err := r.db.SelectContext(ctx, &exams, q, args...); err != nil {
		return nil, 0, fmt.Errorf("list exams: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count exams: %w", err)
	}
	return exams, total, nil
}

// FindByID returns an exam record by ID.
func (r *ExamRepository) FindByID(ctx context.Context, id string) (*models.Exam, error) {
	q := fmt.Sprintf("SELECT %s FROM exams WHERE id = $1 AND deleted_at IS NULL", examColumns)
	var exam models.Exam
	if err := r.db.GetContext(ctx, &exam, q, id); err != nil {
		return nil, err
	}
	return &exam, nil
}

// ExistsByName checks if an exam with the same name exists within a business.
func (r *ExamRepository) ExistsByName(ctx context.Context, businessID, name, excludeID string) (bool, error) {
	q := "SELECT COUNT(*) FROM exams WHERE business_id = $1 AND LOWER(name) = LOWER($2) AND deleted_at IS NULL"
	args := []interface{}{businessID, name}
	if excludeID != "" {
		q += " AND id <> $3"
		args = append(args, excludeID)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, q, args...); err != nil {
		return false, fmt.Errorf("check exam name: %w", err)
	}
	return count > 0, nil
}

// Create persists an exam record.
func (r *ExamRepository) Create(ctx context.Context, exam *models.Exam) error {
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if exam.CreatedAt.IsZero() {
		exam.CreatedAt = now
	}
	exam.UpdatedAt = now

	const q = `INSERT INTO exams (id, business_id, name, description, created_at, updated_at)
		VALUES (:id, :business_id, :name, :description, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, q, exam); err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	return nil
}

// Update modifies an exam record.
func (r *ExamRepository) Update(ctx context.Context, exam *models.Exam) error {
	exam.UpdatedAt = time.Now().UTC()
	const q = `UPDATE exams SET name = :name, description = :description, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, q, exam); err != nil {
		return fmt.Errorf("update exam: %w", err)
	}
	return nil
}

// SoftDelete marks an exam as deleted.
func (r *ExamRepository) SoftDelete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE exams SET deleted_at = $1 WHERE id = $2`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	return nil
}

// CountCourses returns how many live courses belong to an exam.
func (r *ExamRepository) CountCourses(ctx context.Context, examID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM courses WHERE exam_id = $1 AND deleted_at IS NULL`, examID); err != nil {
		return 0, fmt.Errorf("count exam courses: %w", err)
	}
	return count, nil
}
