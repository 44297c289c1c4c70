package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/veduhub/institute-api/internal/authz"
	"github.com/veduhub/institute-api/internal/models"
	appErrors "github.com/veduhub/institute-api/pkg/errors"
	"github.com/veduhub/institute-api/pkg/export"
	"github.com/veduhub/institute-api/pkg/query"
)

type batchRepository interface {
	List(ctx context.Context, filter models.BatchFilter, opts query.Options) ([]models.Batch, int, error)
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	Create(ctx context.Context, batch *models.Batch) error
	Update(ctx context.Context, batch *models.Batch) error
	SoftDelete(ctx context.Context, id string) error
	ListTeachers(ctx context.Context, batchID string) ([]models.BatchMemberDetail, error)
	ListStudents(ctx context.Context, batchID string) ([]models.BatchMemberDetail, error)
	UpsertTeacher(ctx context.Context, membership *models.BatchTeacher) error
	UpsertStudent(ctx context.Context, membership *models.BatchStudent) error
	SetTeacherActive(ctx context.Context, batchID, userID string, active bool) error
	SetStudentActive(ctx context.Context, batchID, userID string, active bool) error
	RemoveTeacher(ctx context.Context, batchID, userID string) error
	RemoveStudent(ctx context.Context, batchID, userID string) error
	CountActiveStudents(ctx context.Context, batchID string) (int, error)
}

type batchUserLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CreateBatchRequest holds payload for creating batches.
type CreateBatchRequest struct {
	CourseID  string     `json:"course_id" validate:"required"`
	Name      string     `json:"name" validate:"required"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Capacity  int        `json:"capacity" validate:"gte=0"`
}

// UpdateBatchRequest holds payload for updating batches.
type UpdateBatchRequest struct {
	Name      string     `json:"name" validate:"required"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Capacity  int        `json:"capacity" validate:"gte=0"`
}

// BatchMemberRequest identifies a user to add to a batch.
type BatchMemberRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// RosterExport is a rendered roster file ready to stream to the client.
type RosterExport struct {
	FileName    string
	ContentType string
	Data        []byte
}

// BatchService handles batch use-cases: CRUD, memberships, roster export.
type BatchService struct {
	repo           batchRepository
	users          batchUserLookup
	resolver       *authz.Resolver
	csv            *export.CSVExporter
	pdf            *export.PDFExporter
	exportsEnabled bool
	validator      *validator.Validate
	logger         *zap.Logger
}

// NewBatchService constructs the batch service.
func NewBatchService(repo batchRepository, users batchUserLookup, resolver *authz.Resolver, exportsEnabled bool, validate *validator.Validate, logger *zap.Logger) *BatchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchService{
		repo:           repo,
		users:          users,
		resolver:       resolver,
		csv:            export.NewCSVExporter(),
		pdf:            export.NewPDFExporter(),
		exportsEnabled: exportsEnabled,
		validator:      validate,
		logger:         logger,
	}
}

// List returns batches scoped by role. TEACHER callers see only batches where
// they hold an active membership.
func (s *BatchService) List(ctx context.Context, p authz.Principal, filter models.BatchFilter, opts query.Options) ([]models.Batch, *models.Pagination, error) {
	if p.Role != models.RoleSuperAdmin {
		if p.BusinessID == nil {
			return []models.Batch{}, paginationFor(opts, 0), nil
		}
		filter.BusinessID = *p.BusinessID
	}
	if p.Role == models.RoleTeacher {
		filter.TeacherUserID = p.UserID
	}
	if filter.CourseID != "" {
		if err := s.resolver.AuthorizeCourse(ctx, p, filter.CourseID); err != nil {
			return nil, nil, err
		}
	}

	batches, total, err := s.repo.List(ctx, filter, opts)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batches")
	}
	return batches, paginationFor(opts, total), nil
}

// Get returns a batch after chain authorization. TEACHER callers additionally
// need an active membership.
func (s *BatchService) Get(ctx context.Context, p authz.Principal, id string) (*models.Batch, error) {
	if err := s.resolver.AuthorizeBatch(ctx, p, id); err != nil {
		return nil, err
	}
	if p.Role == models.RoleTeacher {
		if err := s.resolver.RequireActiveTeacher(ctx, p.UserID, id); err != nil {
			return nil, err
		}
	}
	batch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return batch, nil
}

// Create registers a batch under a course.
func (s *BatchService) Create(ctx context.Context, p authz.Principal, req CreateBatchRequest) (*models.Batch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date precedes start date")
	}
	if err := s.resolver.AuthorizeCourse(ctx, p, req.CourseID); err != nil {
		return nil, err
	}

	batch := &models.Batch{
		CourseID:  req.CourseID,
		Name:      req.Name,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Capacity:  req.Capacity,
	}
	if err := s.repo.Create(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create batch")
	}
	return batch, nil
}

// Update modifies a batch after chain authorization.
func (s *BatchService) Update(ctx context.Context, p authz.Principal, id string, req UpdateBatchRequest) (*models.Batch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date precedes start date")
	}
	if err := s.resolver.AuthorizeBatch(ctx, p, id); err != nil {
		return nil, err
	}
	batch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}

	batch.Name = req.Name
	batch.StartDate = req.StartDate
	batch.EndDate = req.EndDate
	batch.Capacity = req.Capacity
	if err := s.repo.Update(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update batch")
	}
	return batch, nil
}

// Delete soft-deletes a batch.
func (s *BatchService) Delete(ctx context.Context, p authz.Principal, id string) error {
	if err := s.resolver.AuthorizeBatch(ctx, p, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete batch")
	}
	return nil
}

// ListTeachers returns the teacher memberships of a batch.
func (s *BatchService) ListTeachers(ctx context.Context, p authz.Principal, batchID string) ([]models.BatchMemberDetail, error) {
	if err := s.resolver.AuthorizeBatch(ctx, p, batchID); err != nil {
		return nil, err
	}
	members, err := s.repo.ListTeachers(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batch teachers")
	}
	return members, nil
}

// ListStudents returns the student memberships of a batch.
func (s *BatchService) ListStudents(ctx context.Context, p authz.Principal, batchID string) ([]models.BatchMemberDetail, error) {
	if err := s.resolver.AuthorizeBatch(ctx, p, batchID); err != nil {
		return nil, err
	}
	members, err := s.repo.ListStudents(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batch students")
	}
	return members, nil
}

// AddTeacher attaches a teacher-role user to a batch, reactivating a prior
// membership if one exists.
func (s *BatchService) AddTeacher(ctx context.Context, p authz.Principal, batchID string, req BatchMemberRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid membership payload")
	}
	if err := s.resolver.AuthorizeBatch(ctx, p, batchID); err != nil {
		return err
	}
	if err := s.requireMemberRole(ctx, req.UserID, models.RoleTeacher); err != nil {
		return err
	}

	membership := &models.BatchTeacher{BatchID: batchID, UserID: req.UserID, IsActive: true}
	if err := s.repo.UpsertTeacher(ctx, membership); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add batch teacher")
	}
	return nil
}

// AddStudent attaches a student-role user to a batch, enforcing capacity.
func (s *BatchService) AddStudent(ctx context.Context, p authz.Principal, batchID string, req BatchMemberRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid membership payload")
	}
	if err := s.resolver.AuthorizeBatch(ctx, p, batchID); err != nil {
		return err
	}
	if err := s.requireMemberRole(ctx, req.UserID, models.RoleStudent); err != nil {
		return err
	}

	batch, err := s.repo.FindByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if batch.Capacity > 0 {
		count, err := s.repo.CountActiveStudents(ctx, batchID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
		}
		if count >= batch.Capacity {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "batch is at capacity")
		}
	}

	membership := &models.BatchStudent{BatchID: batchID, UserID: req.UserID, IsActive: true}
	if err := s.repo.UpsertStudent(ctx, membership); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add batch student")
	}
	return nil
}

// SetTeacherActive toggles a teacher membership without removing history.
func (s *BatchService) SetTeacherActive(ctx context.Context, p authz.Principal, batchID, userID string, active bool) error {
	if err := s.resolver.AuthorizeBatch(ctx, p, batchID); err != nil {
		return err
	}
	if err := s.repo.SetTeacherActive(ctx, batchID, userID, active); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle batch teacher")
	}
	return nil
}

// SetStudentActive toggles a student membership without removing history.
func (s *BatchService) SetStudentActive(ctx context.Context, p authz.Principal, batchID, userID string, active bool) error {
	if err := s.resolver.AuthorizeBatch(ctx, p, batchID); err != nil {
		return err
	}
	if err := s.repo.SetStudentActive(ctx, batchID, userID, active); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle batch student")
	}
	return nil
}

// RemoveTeacher detaches a teacher from a batch entirely. Prefer
// SetTeacherActive when the assignment history should be kept.
func (s *BatchService) RemoveTeacher(ctx context.Context, p authz.Principal, batchID, userID string) error {
	if err := s.resolver.AuthorizeBatch(ctx, p, batchID); err != nil {
		return err
	}
	if err := s.repo.RemoveTeacher(ctx, batchID, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove batch teacher")
	}
	return nil
}

// RemoveStudent detaches a student from a batch entirely.
func (s *BatchService) RemoveStudent(ctx context.Context, p authz.Principal, batchID, userID string) error {
	if err := s.resolver.AuthorizeBatch(ctx, p, batchID); err != nil {
		return err
	}
	if err := s.repo.RemoveStudent(ctx, batchID, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove batch student")
	}
	return nil
}

// ExportRoster renders the batch roster as CSV or PDF.
func (s *BatchService) ExportRoster(ctx context.Context, p authz.Principal, batchID, format string) (*RosterExport, error) {
	if !s.exportsEnabled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "exports are disabled")
	}
	batch, err := s.Get(ctx, p, batchID)
	if err != nil {
		return nil, err
	}

	students, err := s.repo.ListStudents(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	dataset := export.Dataset{
		Headers: []string{"Name", "Email", "Status"},
	}
	for _, member := range students {
		status := "inactive"
		if member.IsActive {
			status = "active"
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Name":   member.FullName,
			"Email":  member.Email,
			"Status": status,
		})
	}

	switch format {
	case "csv":
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv roster")
		}
		return &RosterExport{
			FileName:    fmt.Sprintf("roster-%s.csv", batch.ID),
			ContentType: "text/csv",
			Data:        data,
		}, nil
	case "pdf":
		data, err := s.pdf.Render(dataset, fmt.Sprintf("Roster - %s", batch.Name))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf roster")
		}
		return &RosterExport{
			FileName:    fmt.Sprintf("roster-%s.pdf", batch.ID),
			ContentType: "application/pdf",
			Data:        data,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func (s *BatchService) requireMemberRole(ctx context.Context, userID string, role models.UserRole) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.Role != role {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("user does not hold the %s role", role))
	}
	return nil
}
