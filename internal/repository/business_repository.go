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

// BusinessRepository manages persistence for businesses (institutes).
type BusinessRepository struct {
	db *sqlx.DB
}

// NewBusinessRepository constructs a new business repository.
func NewBusinessRepository(db *sqlx.DB) *BusinessRepository {
	return &BusinessRepository{db: db}
}

const businessColumns = "id, name, email, phone, address, owner_id, created_at, updated_at"

var businessSelectable = []string{"id", "name", "email", "phone", "address", "owner_id", "created_at", "updated_at"}

var businessSortable = map[string]string{
	"name":      "name",
	"email":     "email",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

// List returns businesses matching the filter, shaped by the query options.
func (r *BusinessRepository) List(ctx context.Context, filter models.BusinessFilter, opts query.Options) ([]models.Business, int, error) {
	base := "FROM businesses WHERE deleted_at IS NULL"
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		var clause string
		clause, args = searchCondition(args, "name", filter.Search)
		conditions = append(conditions, "("+clause+")")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	columns := opts.Columns(businessSelectable, businessColumns)
	order := opts.OrderClause(businessSortable, "created_at DESC")

	q := fmt.Sprintf("SELECT %s %s ORDER BY %s%s", columns, base, order, opts.LimitOffset())
	var businesses []models.Business
	if err := r.db.SelectContext(ctx, &businesses, q, args...); err != nil {
		return nil, 0, fmt.Errorf("list businesses: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count businesses: %w", err)
	}
	return businesses, total, nil
}

// FindByID returns a business record by ID.
func (r *BusinessRepository) FindByID(ctx context.Context, id string) (*models.Business, error) {
	q := fmt.Sprintf("SELECT %s FROM businesses WHERE id = $1 AND deleted_at IS NULL", businessColumns)
	var business models.Business
	if err := r.db.GetContext(ctx, &business, q, id); err != nil {
		return nil, err
	}
	return &business, nil
}

// ExistsByName checks if a business with the same name already exists.
func (r *BusinessRepository) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	q := "SELECT COUNT(*) FROM businesses WHERE LOWER(name) = LOWER($1) AND deleted_at IS NULL"
	args := []interface{}{name}
	if excludeID != "" {
		q += " AND id <> $2"
		args = append(args, excludeID)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, q, args...); err != nil {
		return false, fmt.Errorf("check business name: %w", err)
	}
	return count > 0, nil
}

// Create persists a business record.
func (r *BusinessRepository) Create(ctx context.Context, business *models.Business) error {
	if business.ID == "" {
		business.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if business.CreatedAt.IsZero() {
		business.CreatedAt = now
	}
	business.UpdatedAt = now

	const q = `INSERT INTO businesses (id, name, email, phone, address, owner_id, created_at, updated_at)
		VALUES (:id, :name, :email, :phone, :address, :owner_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, q, business); err != nil {
		return fmt.Errorf("create business: %w", err)
	}
	return nil
}

// Update modifies a business record.
func (r *BusinessRepository) Update(ctx context.Context, business *models.Business) error {
	business.UpdatedAt = time.Now().UTC()
	const q = `UPDATE businesses SET name = :name, email = :email, phone = :phone, address = :address, owner_id = :owner_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, q, business); err != nil {
		return fmt.Errorf("update business: %w", err)
	}
	return nil
}

// SoftDelete marks a business as deleted.
func (r *BusinessRepository) SoftDelete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE businesses SET deleted_at = $1 WHERE id = $2`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("delete business: %w", err)
	}
	return nil
}

// CountExams returns how many live exams belong to a business.
func (r *BusinessRepository) CountExams(ctx context.Context, businessID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM exams WHERE business_id = $1 AND deleted_at IS NULL`, businessID); err != nil {
		return 0, fmt.Errorf("count business exams: %w", err)
	}
	return count, nil
}
