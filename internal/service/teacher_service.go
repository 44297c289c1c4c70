package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/veduhub/institute-api/internal/authz"
	"github.com/veduhub/institute-api/internal/models"
	appErrors "github.com/veduhub/institute-api/pkg/errors"
	"github.com/veduhub/institute-api/pkg/query"
)

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter, opts query.Options) ([]models.TeacherDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	FindDetailByID(ctx context.Context, id string) (*models.TeacherDetail, error)
	ExistsForUser(ctx context.Context, userID string) (bool, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	SoftDelete(ctx context.Context, id string) error
}

type teacherUserLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CreateTeacherRequest holds payload for creating teacher profiles.
type CreateTeacherRequest struct {
	UserID        string `json:"user_id" validate:"required"`
	BusinessID    string `json:"business_id" validate:"required"`
	Qualification string `json:"qualification"`
	Experience    int    `json:"experience" validate:"gte=0"`
}

// UpdateTeacherRequest holds payload for updating teacher profiles.
type UpdateTeacherRequest struct {
	Qualification string `json:"qualification"`
	Experience    int    `json:"experience" validate:"gte=0"`
}

// TeacherService handles teacher-profile use-cases.
type TeacherService struct {
	repo      teacherRepository
	users     teacherUserLookup
	resolver  *authz.Resolver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService constructs the teacher service.
func NewTeacherService(repo teacherRepository, users teacherUserLookup, resolver *authz.Resolver, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{repo: repo, users: users, resolver: resolver, validator: validate, logger: logger}
}

// List returns teacher profiles scoped to the caller's business.
func (s *TeacherService) List(ctx context.Context, p authz.Principal, filter models.TeacherFilter, opts query.Options) ([]models.TeacherDetail, *models.Pagination, error) {
	if p.Role != models.RoleSuperAdmin {
		if p.BusinessID == nil {
			return []models.TeacherDetail{}, paginationFor(opts, 0), nil
		}
		filter.BusinessID = *p.BusinessID
	}

	teachers, total, err := s.repo.List(ctx, filter, opts)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	return teachers, paginationFor(opts, total), nil
}

// Get returns a teacher profile after a tenant check.
func (s *TeacherService) Get(ctx context.Context, p authz.Principal, id string) (*models.TeacherDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if err := s.resolver.RequireBusiness(p, "teacher", &detail.BusinessID); err != nil {
		return nil, err
	}
	return detail, nil
}

// Create registers a teacher profile for an existing user account.
func (s *TeacherService) Create(ctx context.Context, p authz.Principal, req CreateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	if err := s.resolver.RequireBusiness(p, "teacher", &req.BusinessID); err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user does not hold the teacher role")
	}
	if user.BusinessID == nil || *user.BusinessID != req.BusinessID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user belongs to a different business")
	}

	exists, err := s.repo.ExistsForUser(ctx, req.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher profile")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user already has a teacher profile")
	}

	teacher := &models.Teacher{
		UserID:        req.UserID,
		BusinessID:    req.BusinessID,
		Qualification: req.Qualification,
		Experience:    req.Experience,
	}
	if err := s.repo.Create(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	return teacher, nil
}

// Update modifies a teacher profile after a tenant check.
func (s *TeacherService) Update(ctx context.Context, p authz.Principal, id string, req UpdateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if err := s.resolver.RequireBusiness(p, "teacher", &teacher.BusinessID); err != nil {
		return nil, err
	}

	teacher.Qualification = req.Qualification
	teacher.Experience = req.Experience
	if err := s.repo.Update(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	return teacher, nil
}

// Delete soft-deletes a teacher profile.
func (s *TeacherService) Delete(ctx context.Context, p authz.Principal, id string) error {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if err := s.resolver.RequireBusiness(p, "teacher", &teacher.BusinessID); err != nil {
		return err
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete teacher")
	}
	return nil
}
