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

// CourseRepository manages persistence for courses and their subject mappings.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a new course repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = "c.id, c.exam_id, c.name, c.description, c.price, c.duration_days, c.created_at, c.updated_at"

var courseSelectable = []string{"id", "exam_id", "name", "description", "price", "duration_days", "created_at", "updated_at"}

var courseSortable = map[string]string{
	"name":      "c.name",
	"price":     "c.price",
	"createdAt": "c.created_at",
	"updatedAt": "c.updated_at",
}

// List returns courses matching the filter, shaped by the query options.
// BusinessID filtering joins through the owning exam.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter, opts query.Options) ([]models.Course, int, error) {
	base := "FROM courses c JOIN exams e ON e.id = c.exam_id WHERE c.deleted_at IS NULL AND e.deleted_at IS NULL"
	var conditions []string
	var args []interface{}

	merged := opts.MergeWhere(map[string]interface{}{
		"c.exam_id":     filter.ExamID,
		"e.business_id": filter.BusinessID,
	})
	conditions, args = appendEqualityConditions(conditions, args, merged, []string{"c.exam_id", "e.business_id"})

	if filter.Search != "" {
		var clause string
		clause, args = searchCondition(args, "c.name", filter.Search)
		conditions = append(conditions, "("+clause+")")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	columns := opts.ColumnsPrefixed("c.", courseSelectable, courseColumns)
	order := opts.OrderClause(courseSortable, "c.created_at DESC")

	q := fmt.Sprintf("SELECT %s %s ORDER BY %s%s", columns, base, order, opts.LimitOffset())
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, q, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID returns a course record by ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const q = `SELECT id, exam_id, name, description, price, duration_days, created_at, updated_at FROM courses WHERE id = $1 AND deleted_at IS NULL`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, q, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// Create persists a course record.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now

	const q = `INSERT INTO courses (id, exam_id, name, description, price, duration_days, created_at, updated_at)
		VALUES (:id, :exam_id, :name, :description, :price, :duration_days, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, q, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update modifies a course record.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const q = `UPDATE courses SET name = :name, description = :description, price = :price, duration_days = :duration_days, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, q, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// SoftDelete marks a course as deleted.
func (r *CourseRepository) SoftDelete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE courses SET deleted_at = $1 WHERE id = $2`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}

// CountBatches returns how many live batches belong to a course.
func (r *CourseRepository) CountBatches(ctx context.Context, courseID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM batches WHERE course_id = $1 AND deleted_at IS NULL`, courseID); err != nil {
		return 0, fmt.Errorf("count course batches: %w", err)
	}
	return count, nil
}

// ListSubjects returns the subject mappings for a course.
func (r *CourseRepository) ListSubjects(ctx context.Context, courseID string) ([]models.CourseSubjectDetail, error) {
	const q = `SELECT cs.id, cs.course_id, cs.subject_id, cs.created_at, s.name AS subject_name
		FROM course_subjects cs JOIN subjects s ON s.id = cs.subject_id
		WHERE cs.course_id = $1 AND s.deleted_at IS NULL
		ORDER BY s.name ASC`
	var details []models.CourseSubjectDetail
	if err := r.db.SelectContext(ctx, &details, q, courseID); err != nil {
		return nil, fmt.Errorf("list course subjects: %w", err)
	}
	return details, nil
}

// AttachSubject links a subject to a course, ignoring duplicates.
func (r *CourseRepository) AttachSubject(ctx context.Context, mapping *models.CourseSubject) error {
	if mapping.ID == "" {
		mapping.ID = uuid.NewString()
	}
	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = time.Now().UTC()
	}
	const q = `INSERT INTO course_subjects (id, course_id, subject_id, created_at)
		VALUES (:id, :course_id, :subject_id, :created_at)
		ON CONFLICT (course_id, subject_id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, q, mapping); err != nil {
		return fmt.Errorf("attach course subject: %w", err)
	}
	return nil
}

// DetachSubject removes a subject mapping from a course.
func (r *CourseRepository) DetachSubject(ctx context.Context, courseID, subjectID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM course_subjects WHERE course_id = $1 AND subject_id = $2`, courseID, subjectID); err != nil {
		return fmt.Errorf("detach course subject: %w", err)
	}
	return nil
}
