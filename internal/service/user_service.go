package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/veduhub/institute-api/internal/authz"
	"github.com/veduhub/institute-api/internal/models"
	appErrors "github.com/veduhub/institute-api/pkg/errors"
	"github.com/veduhub/institute-api/pkg/query"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter, opts query.Options) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	SoftDelete(ctx context.Context, id string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

// CreateUserRequest holds payload for creating users.
type CreateUserRequest struct {
	Email      string          `json:"email" validate:"required,email"`
	Password   string          `json:"password" validate:"required,min=6"`
	FullName   string          `json:"full_name" validate:"required"`
	Role       models.UserRole `json:"role" validate:"required,oneof=SUPERADMIN ADMIN TEACHER STUDENT USER"`
	BusinessID string          `json:"business_id"`
}

// UpdateUserRequest holds payload for updating users.
type UpdateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	FullName string          `json:"full_name" validate:"required"`
	Role     models.UserRole `json:"role" validate:"required,oneof=SUPERADMIN ADMIN TEACHER STUDENT USER"`
	Active   bool            `json:"active"`
}

// UserService handles user management use-cases.
type UserService struct {
	repo      userRepository
	resolver  *authz.Resolver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs the user service.
func NewUserService(repo userRepository, resolver *authz.Resolver, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, resolver: resolver, validator: validate, logger: logger}
}

// List returns users scoped to the caller's business.
func (s *UserService) List(ctx context.Context, p authz.Principal, filter models.UserFilter, opts query.Options) ([]models.User, *models.Pagination, error) {
	if p.Role != models.RoleSuperAdmin {
		if p.BusinessID == nil {
			return []models.User{}, paginationFor(opts, 0), nil
		}
		filter.BusinessID = *p.BusinessID
	}

	users, total, err := s.repo.List(ctx, filter, opts)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, paginationFor(opts, total), nil
}

// Get returns a user. Callers always see their own profile; otherwise the
// target must belong to the same business.
func (s *UserService) Get(ctx context.Context, p authz.Principal, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if p.UserID == id {
		return user, nil
	}
	if err := s.resolver.RequireBusiness(p, "user", user.BusinessID); err != nil {
		return nil, err
	}
	return user, nil
}

// Create registers a user account. Only SUPERADMIN may mint SUPERADMIN
// accounts or attach users to arbitrary businesses.
func (s *UserService) Create(ctx context.Context, p authz.Principal, req CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	if req.Role == models.RoleSuperAdmin && p.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only a super admin can assign the super admin role")
	}
	if p.Role != models.RoleSuperAdmin {
		if p.BusinessID == nil || req.BusinessID != *p.BusinessID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot create users outside your business")
		}
	}

	exists, err := s.repo.ExistsByEmail(ctx, req.Email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already used")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         req.Role,
		Active:       true,
	}
	if req.BusinessID != "" {
		user.BusinessID = &req.BusinessID
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}
	return user, nil
}

// Update modifies a user account, including role assignment.
func (s *UserService) Update(ctx context.Context, p authz.Principal, id string, req UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	user, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if req.Role != user.Role && p.Role != models.RoleSuperAdmin && p.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot change roles")
	}
	if req.Role == models.RoleSuperAdmin && p.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only a super admin can assign the super admin role")
	}

	exists, err := s.repo.ExistsByEmail(ctx, req.Email, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already used")
	}

	deactivated := user.Active && !req.Active
	user.Email = req.Email
	user.FullName = req.FullName
	user.Role = req.Role
	user.Active = req.Active
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	if deactivated {
		if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
			s.logger.Warn("failed to revoke refresh tokens on deactivation", zap.String("user_id", id), zap.Error(err))
		}
	}
	return user, nil
}

// Delete soft-deletes a user account and revokes its sessions.
func (s *UserService) Delete(ctx context.Context, p authz.Principal, id string) error {
	if p.UserID == id {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot delete your own account")
	}
	if _, err := s.Get(ctx, p, id); err != nil {
		return err
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
		s.logger.Warn("failed to revoke refresh tokens on delete", zap.String("user_id", id), zap.Error(err))
	}
	return nil
}
