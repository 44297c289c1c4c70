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

// AuditRepository manages persistence for audit log records.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs a new audit repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditColumns = "id, user_id, business_id, action, resource, resource_id, new_values, ip_address, user_agent, created_at"

var auditSelectable = []string{"id", "user_id", "business_id", "action", "resource", "resource_id", "ip_address", "user_agent", "created_at"}

var auditSortable = map[string]string{
	"action":    "action",
	"resource":  "resource",
	"createdAt": "created_at",
}

// Create persists an audit record. Called from the background worker, never
// from the request path.
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	const q = `INSERT INTO audit_logs (id, user_id, business_id, action, resource, resource_id, new_values, ip_address, user_agent, created_at)
		VALUES (:id, :user_id, :business_id, :action, :resource, :resource_id, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, q, entry); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// List returns audit records matching the filter, shaped by the query options.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter, opts query.Options) ([]models.AuditLog, int, error) {
	base := "FROM audit_logs WHERE TRUE"
	var conditions []string
	var args []interface{}

	merged := opts.MergeWhere(map[string]interface{}{
		"user_id":     filter.UserID,
		"business_id": filter.BusinessID,
		"action":      filter.Action,
		"resource":    filter.Resource,
	})
	conditions, args = appendEqualityConditions(conditions, args, merged, []string{"user_id", "business_id", "action", "resource"})

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	columns := opts.Columns(auditSelectable, auditColumns)
	order := opts.OrderClause(auditSortable, "created_at DESC")

	q := fmt.Sprintf("SELECT %s %s ORDER BY %s%s", columns, base, order, opts.LimitOffset())
	var entries []models.AuditLog
	if err := r.db.SelectContext(ctx, &entries, q, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}
	return entries, total, nil
}
