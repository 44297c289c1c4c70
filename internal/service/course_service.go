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

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter, opts query.Options) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	SoftDelete(ctx context.Context, id string) error
	CountBatches(ctx context.Context, courseID string) (int, error)
	ListSubjects(ctx context.Context, courseID string) ([]models.CourseSubjectDetail, error)
	AttachSubject(ctx context.Context, mapping *models.CourseSubject) error
	DetachSubject(ctx context.Context, courseID, subjectID string) error
}

type courseSubjectLookup interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

// CreateCourseRequest holds payload for creating courses.
type CreateCourseRequest struct {
	ExamID       string  `json:"exam_id" validate:"required"`
	Name         string  `json:"name" validate:"required"`
	Description  string  `json:"description"`
	Price        float64 `json:"price" validate:"gte=0"`
	DurationDays int     `json:"duration_days" validate:"gte=0"`
}

// UpdateCourseRequest holds payload for updating courses.
type UpdateCourseRequest struct {
	Name         string  `json:"name" validate:"required"`
	Description  string  `json:"description"`
	Price        float64 `json:"price" validate:"gte=0"`
	DurationDays int     `json:"duration_days" validate:"gte=0"`
}

// CourseService handles course use-cases including subject mappings.
type CourseService struct {
	repo      courseRepository
	subjects  courseSubjectLookup
	resolver  *authz.Resolver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs the course service.
func NewCourseService(repo courseRepository, subjects courseSubjectLookup, resolver *authz.Resolver, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, subjects: subjects, resolver: resolver, validator: validate, logger: logger}
}

// List returns courses scoped to the caller's business.
func (s *CourseService) List(ctx context.Context, p authz.Principal, filter models.CourseFilter, opts query.Options) ([]models.Course, *models.Pagination, error) {
	if p.Role != models.RoleSuperAdmin {
		if p.BusinessID == nil {
			return []models.Course{}, paginationFor(opts, 0), nil
		}
		filter.BusinessID = *p.BusinessID
	}
	if filter.ExamID != "" {
		if err := s.resolver.AuthorizeExam(ctx, p, filter.ExamID); err != nil {
			return nil, nil, err
		}
	}

	courses, total, err := s.repo.List(ctx, filter, opts)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, paginationFor(opts, total), nil
}

// Get returns a course after chain authorization.
func (s *CourseService) Get(ctx context.Context, p authz.Principal, id string) (*models.Course, error) {
	if err := s.resolver.AuthorizeCourse(ctx, p, id); err != nil {
		return nil, err
	}
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create registers a course under an exam.
func (s *CourseService) Create(ctx context.Context, p authz.Principal, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if err := s.resolver.AuthorizeExam(ctx, p, req.ExamID); err != nil {
		return nil, err
	}

	course := &models.Course{
		ExamID:       req.ExamID,
		Name:         req.Name,
		Description:  req.Description,
		Price:        req.Price,
		DurationDays: req.DurationDays,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Update modifies a course after chain authorization.
func (s *CourseService) Update(ctx context.Context, p authz.Principal, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}

	course.Name = req.Name
	course.Description = req.Description
	course.Price = req.Price
	course.DurationDays = req.DurationDays
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// Delete soft-deletes a course. Refused while batches still reference it.
func (s *CourseService) Delete(ctx context.Context, p authz.Principal, id string) error {
	if _, err := s.Get(ctx, p, id); err != nil {
		return err
	}

	count, err := s.repo.CountBatches(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count batches")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "course still owns batches")
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	return nil
}

// ListSubjects returns the subjects mapped onto a course.
func (s *CourseService) ListSubjects(ctx context.Context, p authz.Principal, courseID string) ([]models.CourseSubjectDetail, error) {
	if err := s.resolver.AuthorizeCourse(ctx, p, courseID); err != nil {
		return nil, err
	}
	details, err := s.repo.ListSubjects(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course subjects")
	}
	return details, nil
}

// AttachSubject links a subject to a course. The subject must live in the same
// business as the course's chain resolves to.
func (s *CourseService) AttachSubject(ctx context.Context, p authz.Principal, courseID, subjectID string) error {
	if err := s.resolver.AuthorizeCourse(ctx, p, courseID); err != nil {
		return err
	}

	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if err := s.resolver.RequireBusiness(p, "subject", &subject.BusinessID); err != nil {
		return err
	}

	mapping := &models.CourseSubject{CourseID: courseID, SubjectID: subjectID}
	if err := s.repo.AttachSubject(ctx, mapping); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach subject")
	}
	return nil
}

// DetachSubject removes a subject mapping from a course.
func (s *CourseService) DetachSubject(ctx context.Context, p authz.Principal, courseID, subjectID string) error {
	if err := s.resolver.AuthorizeCourse(ctx, p, courseID); err != nil {
		return err
	}
	if err := s.repo.DetachSubject(ctx, courseID, subjectID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to detach subject")
	}
	return nil
}
