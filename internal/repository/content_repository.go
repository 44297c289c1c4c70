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

// ContentRepository manages persistence for uploaded content metadata.
type ContentRepository struct {
	db *sqlx.DB
}

// NewContentRepository constructs a new content repository.
func NewContentRepository(db *sqlx.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

const contentColumns = "id, batch_id, uploaded_by, title, description, file_name, file_path, mime_type, size_bytes, created_at, updated_at"

var contentSelectable = []string{"id", "batch_id", "uploaded_by", "title", "description", "file_name", "mime_type", "size_bytes", "created_at", "updated_at"}

var contentSortable = map[string]string{
	"title":     "title",
	"sizeBytes": "size_bytes",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

// List returns contents matching the filter, shaped by the query options.
func (r *ContentRepository) List(ctx context.Context, filter models.ContentFilter, opts query.Options) ([]models.Content, int, error) {
	base := "FROM contents WHERE deleted_at IS NULL"
	var conditions []string
	var args []interface{}

	merged := opts.MergeWhere(map[string]interface{}{
		"batch_id":  filter.BatchID,
		"mime_type": filter.MimeType,
	})
	conditions, args = appendEqualityConditions(conditions, args, merged, []string{"batch_id", "mime_type"})

	if filter.Search != "" {
		var clause string
		clause, args = searchCondition(args, "title", filter.Search)
		conditions = append(conditions, "("+clause+")")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	columns := opts.Columns(contentSelectable, contentColumns)
	order := opts.OrderClause(contentSortable, "created_at DESC")

	q := fmt.Sprintf("SELECT %s %s ORDER BY %s%s", columns, base, order, opts.LimitOffset())
	var contents []models.Content
	if err := r.db.SelectContext(ctx, &contents, q, args...); err != nil {
		return nil, 0, fmt.Errorf("list contents: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count contents: %w", err)
	}
	return contents, total, nil
}

// FindByID returns a content record by ID.
func (r *ContentRepository) FindByID(ctx context.Context, id string) (*models.Content, error) {
	q := fmt.Sprintf("SELECT %s FROM contents WHERE id = $1 AND deleted_at IS NULL", contentColumns)
	var content models.Content
	if err := r.db.GetContext(ctx, &content, q, id); err != nil {
		return nil, err
	}
	return &content, nil
}

// Create persists a content record.
func (r *ContentRepository) Create(ctx context.Context, content *models.Content) error {
	if content.ID == "" {
		content.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if content.CreatedAt.IsZero() {
		content.CreatedAt = now
	}
	content.UpdatedAt = now

	const q = `INSERT INTO contents (id, batch_id, uploaded_by, title, description, file_name, file_path, mime_type, size_bytes, created_at, updated_at)
		VALUES (:id, :batch_id, :uploaded_by, :title, :description, :file_name, :file_path, :mime_type, :size_bytes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, q, content); err != nil {
		return fmt.Errorf("create content: %w", err)
	}
	return nil
}

// Update modifies content metadata.
func (r *ContentRepository) Update(ctx context.Context, content *models.Content) error {
	content.UpdatedAt = time.Now().UTC()
	const q = `UPDATE contents SET title = :title, description = :description, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, q, content); err != nil {
		return fmt.Errorf("update content: %w", err)
	}
	return nil
}

// SoftDelete marks a content record as deleted.
func (r *ContentRepository) SoftDelete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE contents SET deleted_at = $1 WHERE id = $2`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("delete content: %w", err)
	}
	return nil
}
