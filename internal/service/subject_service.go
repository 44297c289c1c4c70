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

type subjectRepository interface {
	List(ctx context.Context, filter models.SubjectFilter, opts query.Options) ([]models.Subject, int, error)
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	ExistsByName(ctx context.Context, businessID, name, excludeID string) (bool, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	SoftDelete(ctx context.Context, id string) error
	CountCourseMappings(ctx context.Context, subjectID string) (int, error)
}

// CreateSubjectRequest holds payload for creating subjects.
type CreateSubjectRequest struct {
	BusinessID string `json:"business_id" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Code       string `json:"code"`
}

// UpdateSubjectRequest holds payload for updating subjects.
type UpdateSubjectRequest struct {
	Name string `json:"name" validate:"required"`
	Code string `json:"code"`
}

// SubjectService handles subject use-cases.
type SubjectService struct {
	repo      subjectRepository
	resolver  *authz.Resolver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService constructs the subject service.
func NewSubjectService(repo subjectRepository, resolver *authz.Resolver, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, resolver: resolver, validator: validate, logger: logger}
}

// List returns subjects scoped to the caller's business.
func (s *SubjectService) List(ctx context.Context, p authz.Principal, filter models.SubjectFilter, opts query.Options) ([]models.Subject, *models.Pagination, error) {
	if p.Role != models.RoleSuperAdmin {
		if p.BusinessID == nil {
			return []models.Subject{}, paginationFor(opts, 0), nil
		}
		filter.BusinessID = *p.BusinessID
	}

	subjects, total, err := s.repo.List(ctx, filter, opts)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, paginationFor(opts, total), nil
}

// Get returns a subject after a tenant check.
func (s *SubjectService) Get(ctx context.Context, p authz.Principal, id string) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if err := s.resolver.RequireBusiness(p, "subject", &subject.BusinessID); err != nil {
		return nil, err
	}
	return subject, nil
}

// Create registers a subject under a business.
func (s *SubjectService) Create(ctx context.Context, p authz.Principal, req CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	if err := s.resolver.RequireBusiness(p, "subject", &req.BusinessID); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByName(ctx, req.BusinessID, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate subject name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "subject name already used in this business")
	}

	subject := &models.Subject{
		BusinessID: req.BusinessID,
		Name:       req.Name,
		Code:       req.Code,
	}
	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	return subject, nil
}

// Update modifies a subject after a tenant check.
func (s *SubjectService) Update(ctx context.Context, p authz.Principal, id string, req UpdateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	subject, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByName(ctx, subject.BusinessID, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate subject name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "subject name already used in this business")
	}

	subject.Name = req.Name
	subject.Code = req.Code
	if err := s.repo.Update(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	return subject, nil
}

// Delete soft-deletes a subject. Refused while courses still map it.
func (s *SubjectService) Delete(ctx context.Context, p authz.Principal, id string) error {
	if _, err := s.Get(ctx, p, id); err != nil {
		return err
	}

	count, err := s.repo.CountCourseMappings(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count subject mappings")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "subject is still attached to courses")
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}
	return nil
}
