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

// BatchRepository manages persistence for batches and their memberships.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs a new batch repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

const batchColumns = "b.id, b.course_id, b.name, b.start_date, b.end_date, b.capacity, b.created_at, b.updated_at"

var batchSelectable = []string{"id", "course_id", "name", "start_date", "end_date", "capacity", "created_at", "updated_at"}

var batchSortable = map[string]string{
	"name":      "b.name",
	"startDate": "b.start_date",
	"createdAt": "b.created_at",
	"updatedAt": "b.updated_at",
}

// List returns batches matching the filter, shaped by the query options.
// BusinessID filtering joins through course and exam; TeacherUserID restricts
// to batches with an active teacher membership for that user.
func (r *BatchRepository) List(ctx context.Context, filter models.BatchFilter, opts query.Options) ([]models.Batch, int, error) {
	base := `FROM batches b
		JOIN courses c ON c.id = b.course_id
		JOIN exams e ON e.id = c.exam_id
		WHERE b.deleted_at IS NULL AND c.deleted_at IS NULL AND e.deleted_at IS NULL`
	var conditions []string
	var args []interface{}

	merged := opts.MergeWhere(map[string]interface{}{
		"b.course_id":   filter.CourseID,
		"e.business_id": filter.BusinessID,
	})
	conditions, args = appendEqualityConditions(conditions, args, merged, []string{"b.course_id", "e.business_id"})

	if filter.TeacherUserID != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM batch_teachers bt WHERE bt.batch_id = b.id AND bt.user_id = $%d AND bt.is_active = TRUE)", len(args)+1))
		args = append(args, filter.TeacherUserID)
	}
	if filter.Search != "" {
		var clause string
		clause, args = searchCondition(args, "b.name", filter.Search)
		conditions = append(conditions, "("+clause+")")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	columns := opts.ColumnsPrefixed("b.", batchSelectable, batchColumns)
	order := opts.OrderClause(batchSortable, "b.created_at DESC")

	q := fmt.Sprintf("SELECT %s %s ORDER BY %s%s", columns, base, order, opts.LimitOffset())
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, q, args...); err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}
	return batches, total, nil
}

// FindByID returns a batch record by ID.
func (r *BatchRepository) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	const q = `SELECT id, course_id, name, start_date, end_date, capacity, created_at, updated_at FROM batches WHERE id = $1 AND deleted_at IS NULL`
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, q, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// Create persists a batch record.
func (r *BatchRepository) Create(ctx context.Context, batch *models.Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = now
	}
	batch.UpdatedAt = now

	const q = `INSERT INTO batches (id, course_id, name, start_date, end_date, capacity, created_at, updated_at)
		VALUES (:id, :course_id, :name, :start_date, :end_date, :capacity, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, q, batch); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// Update modifies a batch record.
func (r *BatchRepository) Update(ctx context.Context, batch *models.Batch) error {
	batch.UpdatedAt = time.Now().UTC()
	const q = `UPDATE batches SET name = :name, start_date = :start_date, end_date = :end_date, capacity = :capacity, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, q, batch); err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	return nil
}

// SoftDelete marks a batch as deleted.
func (r *BatchRepository) SoftDelete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE batches SET deleted_at = $1 WHERE id = $2`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	return nil
}

// FindTeacherMembership loads the teacher join record for (userID, batchID).
func (r *BatchRepository) FindTeacherMembership(ctx context.Context, userID, batchID string) (*models.BatchTeacher, error) {
	const q = `SELECT id, batch_id, user_id, is_active, created_at, updated_at FROM batch_teachers WHERE user_id = $1 AND batch_id = $2 LIMIT 1`
	var membership models.BatchTeacher
	if err := r.db.GetContext(ctx, &membership, q, userID, batchID); err != nil {
		return nil, err
	}
	return &membership, nil
}

// FindStudentMembership loads the student join record for (userID, batchID).
func (r *BatchRepository) FindStudentMembership(ctx context.Context, userID, batchID string) (*models.BatchStudent, error) {
	const q = `SELECT id, batch_id, user_id, is_active, created_at, updated_at FROM batch_students WHERE user_id = $1 AND batch_id = $2 LIMIT 1`
	var membership models.BatchStudent
	if err := r.db.GetContext(ctx, &membership, q, userID, batchID); err != nil {
		return nil, err
	}
	return &membership, nil
}

// ListTeachers returns teacher memberships with user details.
func (r *BatchRepository) ListTeachers(ctx context.Context, batchID string) ([]models.BatchMemberDetail, error) {
	const q = `SELECT bt.id, bt.batch_id, bt.user_id, bt.is_active, u.full_name, u.email
		FROM batch_teachers bt JOIN users u ON u.id = bt.user_id
		WHERE bt.batch_id = $1 ORDER BY u.full_name ASC`
	var members []models.BatchMemberDetail
	if err := r.db.SelectContext(ctx, &members, q, batchID); err != nil {
		return nil, fmt.Errorf("list batch teachers: %w", err)
	}
	return members, nil
}

// ListStudents returns student memberships with user details.
func (r *BatchRepository) ListStudents(ctx context.Context, batchID string) ([]models.BatchMemberDetail, error) {
	const q = `SELECT bs.id, bs.batch_id, bs.user_id, bs.is_active, u.full_name, u.email
		FROM batch_students bs JOIN users u ON u.id = bs.user_id
		WHERE bs.batch_id = $1 ORDER BY u.full_name ASC`
	var members []models.BatchMemberDetail
	if err := r.db.SelectContext(ctx, &members, q, batchID); err != nil {
		return nil, fmt.Errorf("list batch students: %w", err)
	}
	return members, nil
}

// UpsertTeacher adds or reactivates a teacher membership.
func (r *BatchRepository) UpsertTeacher(ctx context.Context, membership *models.BatchTeacher) error {
	if membership.ID == "" {
		membership.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if membership.CreatedAt.IsZero() {
		membership.CreatedAt = now
	}
	membership.UpdatedAt = now

	const q = `INSERT INTO batch_teachers (id, batch_id, user_id, is_active, created_at, updated_at)
		VALUES (:id, :batch_id, :user_id, :is_active, :created_at, :updated_at)
		ON CONFLICT (batch_id, user_id) DO UPDATE SET is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, q, membership); err != nil {
		return fmt.Errorf("upsert batch teacher: %w", err)
	}
	return nil
}

// UpsertStudent adds or reactivates a student membership.
func (r *BatchRepository) UpsertStudent(ctx context.Context, membership *models.BatchStudent) error {
	if membership.ID == "" {
		membership.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if membership.CreatedAt.IsZero() {
		membership.CreatedAt = now
	}
	membership.UpdatedAt = now

	const q = `INSERT INTO batch_students (id, batch_id, user_id, is_active, created_at, updated_at)
		VALUES (:id, :batch_id, :user_id, :is_active, :created_at, :updated_at)
		ON CONFLICT (batch_id, user_id) DO UPDATE SET is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, q, membership); err != nil {
		return fmt.Errorf("upsert batch student: %w", err)
	}
	return nil
}

// SetTeacherActive toggles a teacher membership.
func (r *BatchRepository) SetTeacherActive(ctx context.Context, batchID, userID string, active bool) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE batch_teachers SET is_active = $1, updated_at = $2 WHERE batch_id = $3 AND user_id = $4`, active, time.Now().UTC(), batchID, userID); err != nil {
		return fmt.Errorf("toggle batch teacher: %w", err)
	}
	return nil
}

// SetStudentActive toggles a student membership.
func (r *BatchRepository) SetStudentActive(ctx context.Context, batchID, userID string, active bool) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE batch_students SET is_active = $1, updated_at = $2 WHERE batch_id = $3 AND user_id = $4`, active, time.Now().UTC(), batchID, userID); err != nil {
		return fmt.Errorf("toggle batch student: %w", err)
	}
	return nil
}

// RemoveTeacher deletes a teacher membership row.
func (r *BatchRepository) RemoveTeacher(ctx context.Context, batchID, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM batch_teachers WHERE batch_id = $1 AND user_id = $2`, batchID, userID); err != nil {
		return fmt.Errorf("remove batch teacher: %w", err)
	}
	return nil
}

// RemoveStudent deletes a student membership row.
func (r *BatchRepository) RemoveStudent(ctx context.Context, batchID, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM batch_students WHERE batch_id = $1 AND user_id = $2`, batchID, userID); err != nil {
		return fmt.Errorf("remove batch student: %w", err)
	}
	return nil
}

// CountActiveStudents returns the number of active students in a batch.
func (r *BatchRepository) CountActiveStudents(ctx context.Context, batchID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM batch_students WHERE batch_id = $1 AND is_active = TRUE`, batchID); err != nil {
		return 0, fmt.Errorf("count batch students: %w", err)
	}
	return count, nil
}
