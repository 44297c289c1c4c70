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

type businessRepository interface {
	List(ctx context.Context, filter models.BusinessFilter, opts query.Options) ([]models.Business, int, error)
	FindByID(ctx context.Context, id string) (*models.Business, error)
	ExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, business *models.Business) error
	Update(ctx context.Context, business *models.Business) error
	SoftDelete(ctx context.Context, id string) error
	CountExams(ctx context.Context, businessID string) (int, error)
}

// CreateBusinessRequest holds payload for registering an institute.
type CreateBusinessRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	OwnerID string `json:"owner_id"`
}

// UpdateBusinessRequest holds payload for updating an institute.
type UpdateBusinessRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// BusinessService handles institute use-cases.
type BusinessService struct {
	repo      businessRepository
	resolver  *authz.Resolver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBusinessService constructs the business service.
func NewBusinessService(repo businessRepository, resolver *authz.Resolver, validate *validator.Validate, logger *zap.Logger) *BusinessService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BusinessService{repo: repo, resolver: resolver, validator: validate, logger: logger}
}

// List returns businesses. SUPERADMIN sees every institute; anyone else sees
// only the one they belong to.
func (s *BusinessService) List(ctx context.Context, p authz.Principal, filter models.BusinessFilter, opts query.Options) ([]models.Business, *models.Pagination, error) {
	if p.Role != models.RoleSuperAdmin {
		if p.BusinessID == nil {
			return []models.Business{}, paginationFor(opts, 0), nil
		}
		business, err := s.Get(ctx, p, *p.BusinessID)
		if err != nil {
			return nil, nil, err
		}
		return []models.Business{*business}, paginationFor(opts, 1), nil
	}

	businesses, total, err := s.repo.List(ctx, filter, opts)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list businesses")
	}
	return businesses, paginationFor(opts, total), nil
}

// Get returns a single business after a tenant check.
func (s *BusinessService) Get(ctx context.Context, p authz.Principal, id string) (*models.Business, error) {
	business, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "business not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load business")
	}
	if err := s.resolver.RequireBusiness(p, "business", &business.ID); err != nil {
		return nil, err
	}
	return business, nil
}

// Create registers a new institute. SUPERADMIN only; enforced by RBAC at the
// route level and re-checked here.
func (s *BusinessService) Create(ctx context.Context, p authz.Principal, req CreateBusinessRequest) (*models.Business, error) {
	if p.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only a super admin can create businesses")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid business payload")
	}

	exists, err := s.repo.ExistsByName(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate business name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "business name already used")
	}

	business := &models.Business{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
	}
	if req.OwnerID != "" {
		business.OwnerID = &req.OwnerID
	}
	if err := s.repo.Create(ctx, business); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create business")
	}
	return business, nil
}

// Update modifies an institute after a tenant check.
func (s *BusinessService) Update(ctx context.Context, p authz.Principal, id string, req UpdateBusinessRequest) (*models.Business, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid business payload")
	}
	business, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByName(ctx, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate business name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "business name already used")
	}

	business.Name = req.Name
	business.Email = req.Email
	business.Phone = req.Phone
	business.Address = req.Address
	if err := s.repo.Update(ctx, business); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update business")
	}
	return business, nil
}

// Delete soft-deletes an institute. Refused while exams still reference it.
func (s *BusinessService) Delete(ctx context.Context, p authz.Principal, id string) error {
	if p.Role != models.RoleSuperAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only a super admin can delete businesses")
	}
	if _, err := s.Get(ctx, p, id); err != nil {
		return err
	}

	count, err := s.repo.CountExams(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count exams")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "business still owns exams")
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete business")
	}
	return nil
}
