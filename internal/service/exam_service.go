package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/veduhub/institute-api/internal/authz"
	"github.com/veduhub/institute-api/internal/models"
	appErrors "github.com/veduhub/institute-api/pkg/errors"
	"github.com/veduhub/institute-api/pkg/query"
)

type examRepository interface {
	List(ctx context.Context, filter models.ExamFilter, opts query.Options) ([]models.Exam, int, error)
	FindByID(ctx context.Context, id string) (*models.Exam, error)
	ExistsByName(ctx context.Context, businessID, name, excludeID string) (bool, error)
	Create(ctx context.Context, exam *models.Exam) error
	Update(ctx context.Context, exam *models.Exam) error
	SoftDelete(ctx context.Context, id string) error
	CountCourses(ctx context.Context, examID string) (int, error)
}

// CreateExamRequest holds payload for creating exams.
type CreateExamRequest struct {
	BusinessID  string `json:"business_id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// UpdateExamRequest holds payload for updating exams.
type UpdateExamRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

type examListEnvelope struct {
	Exams []models.Exam `json:"exams"`
	Total int           `json:"total"`
}

// ExamService handles exam use-cases. Exam lists are the hottest read in the
// system so they go through the shared cache when it is enabled.
type ExamService struct {
	repo      examRepository
	resolver  *authz.Resolver
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExamService constructs the exam service.
func NewExamService(repo examRepository, resolver *authz.Resolver, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ExamService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExamService{repo: repo, resolver: resolver, cache: cache, validator: validate, logger: logger}
}

// List returns exams scoped by role: SUPERADMIN sees all, everyone else sees
// their own business only.
func (s *ExamService) List(ctx context.Context, p authz.Principal, filter models.ExamFilter, opts query.Options) ([]models.Exam, *models.Pagination, error) {
	if p.Role != models.RoleSuperAdmin {
		if p.BusinessID == nil {
			return []models.Exam{}, paginationFor(opts, 0), nil
		}
		filter.BusinessID = *p.BusinessID
	}

	key := examListCacheKey(filter, opts)
	if s.cache.Enabled() {
		var cached examListEnvelope
		hit, err := s.cache.Get(ctx, key, &cached)
		if err == nil && hit {
			return cached.Exams, paginationFor(opts, cached.Total), nil
		}
	}

	exams, total, err := s.repo.List(ctx, filter, opts)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exams")
	}

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, key, examListEnvelope{Exams: exams, Total: total}, 0); err != nil {
			s.logger.Debug("exam list cache write failed", zap.Error(err))
		}
	}
	return exams, paginationFor(opts, total), nil
}

// Get returns an exam after chain authorization.
func (s *ExamService) Get(ctx context.Context, p authz.Principal, id string) (*models.Exam, error) {
	if err := s.resolver.AuthorizeExam(ctx, p, id); err != nil {
		return nil, err
	}
	exam, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	return exam, nil
}

// Create registers an exam under a business.
func (s *ExamService) Create(ctx context.Context, p authz.Principal, req CreateExamRequest) (*models.Exam, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam payload")
	}
	if err := s.resolver.RequireBusiness(p, "exam", &req.BusinessID); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByName(ctx, req.BusinessID, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate exam name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "exam name already used in this business")
	}

	exam := &models.Exam{
		BusinessID:  req.BusinessID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := s.repo.Create(ctx, exam); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exam")
	}
	s.invalidateLists(ctx)
	return exam, nil
}

// Update modifies an exam after chain authorization.
func (s *ExamService) Update(ctx context.Context, p authz.Principal, id string, req UpdateExamRequest) (*models.Exam, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam payload")
	}
	exam, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByName(ctx, exam.BusinessID, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate exam name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "exam name already used in this business")
	}

	exam.Name = req.Name
	exam.Description = req.Description
	if err := s.repo.Update(ctx, exam); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update exam")
	}
	s.invalidateLists(ctx)
	return exam, nil
}

// Delete soft-deletes an exam. Refused while courses still reference it.
func (s *ExamService) Delete(ctx context.Context, p authz.Principal, id string) error {
	if _, err := s.Get(ctx, p, id); err != nil {
		return err
	}

	count, err := s.repo.CountCourses(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count courses")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "exam still owns courses")
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete exam")
	}
	s.invalidateLists(ctx)
	return nil
}

func (s *ExamService) invalidateLists(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, "exams:list:*"); err != nil {
		s.logger.Debug("exam list cache invalidation failed", zap.Error(err))
	}
}

func examListCacheKey(filter models.ExamFilter, opts query.Options) string {
	page, size := opts.Page()
	sortField, sortDir := "", ""
	if opts.OrderBy != nil {
		sortField, sortDir = opts.OrderBy.Field, opts.OrderBy.Direction
	}
	fields := strings.Join(opts.SelectedFields(), ",")
	return fmt.Sprintf("exams:list:%s:%s:%d:%d:%s:%s:%s", filter.BusinessID, filter.Search, page, size, sortField, sortDir, fields)
}
