package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/veduhub/institute-api/internal/models"
	appErrors "github.com/veduhub/institute-api/pkg/errors"
)

// Principal is the authenticated caller as seen by authorization checks.
type Principal struct {
	UserID     string
	Role       models.UserRole
	BusinessID *string
}

// ChainResolver walks an entity's ownership chain and returns the ID of the
// business that ultimately owns it. Implementations return a NotFound error
// when the target entity itself does not exist, and a Forbidden "not correctly
// associated" error when any parent hop is missing.
type ChainResolver func(ctx context.Context, id string) (string, error)

// ExamFinder loads exams for chain resolution.
type ExamFinder interface {
	FindByID(ctx context.Context, id string) (*models.Exam, error)
}

// CourseFinder loads courses for chain resolution.
type CourseFinder interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// BatchFinder loads batches for chain resolution.
type BatchFinder interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
}

// ContentFinder loads content records for chain resolution.
type ContentFinder interface {
	FindByID(ctx context.Context, id string) (*models.Content, error)
}

// MembershipFinder loads batch membership rows.
type MembershipFinder interface {
	FindTeacherMembership(ctx context.Context, userID, batchID string) (*models.BatchTeacher, error)
	FindStudentMembership(ctx context.Context, userID, batchID string) (*models.BatchStudent, error)
}

// Resolver authorizes access to entities by resolving their owning business
// through the containment chain content -> batch -> course -> exam -> business.
// It performs read-only lookups and holds no state between calls.
type Resolver struct {
	exams       ExamFinder
	courses     CourseFinder
	batches     BatchFinder
	contents    ContentFinder
	memberships MembershipFinder
}

// NewResolver constructs a resolver over the read-side repositories.
func NewResolver(exams ExamFinder, courses CourseFinder, batches BatchFinder, contents ContentFinder, memberships MembershipFinder) *Resolver {
	return &Resolver{
		exams:       exams,
		courses:     courses,
		batches:     batches,
		contents:    contents,
		memberships: memberships,
	}
}

// NotFoundError returns the 404 error for a missing entity.
func NotFoundError(entity string) *appErrors.Error {
	return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
}

// brokenChainError marks an entity whose ownership chain cannot be walked to
// a business. Distinct from NotFound: the entity exists but is orphaned.
func brokenChainError(entity string) *appErrors.Error {
	return appErrors.Clone(appErrors.ErrForbidden, entity+" is not correctly associated with a business")
}

func noAccessError(entity string) *appErrors.Error {
	return appErrors.Clone(appErrors.ErrForbidden, "no access to this "+entity)
}

// Authorize applies the uniform access rule to any entity type:
// resolve the owning business, let SUPERADMIN through, then require the
// principal's business to match. NotFound from the chain resolver passes
// through untouched so callers can surface a 404.
func (r *Resolver) Authorize(ctx context.Context, p Principal, entity, id string, resolve ChainResolver) error {
	businessID, err := resolve(ctx, id)
	if err != nil {
		return err
	}
	return r.requireBusiness(p, entity, businessID)
}

func (r *Resolver) requireBusiness(p Principal, entity, businessID string) error {
	if p.Role == models.RoleSuperAdmin {
		return nil
	}
	if p.BusinessID != nil && *p.BusinessID == businessID {
		return nil
	}
	return noAccessError(entity)
}

// RequireBusiness compares the principal against a known business ID without
// any chain walk. Used for businesses themselves and for entities that carry
// their business ID directly (users, teachers).
func (r *Resolver) RequireBusiness(p Principal, entity string, businessID *string) error {
	if p.Role == models.RoleSuperAdmin {
		return nil
	}
	if businessID == nil || *businessID == "" {
		return brokenChainError(entity)
	}
	if p.BusinessID != nil && *p.BusinessID == *businessID {
		return nil
	}
	return noAccessError(entity)
}

// ExamChain resolves exam -> business.
func (r *Resolver) ExamChain() ChainResolver {
	return func(ctx context.Context, id string) (string, error) {
		exam, err := r.exams.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", NotFoundError("exam")
			}
			return "", fmt.Errorf("resolve exam %s: %w", id, err)
		}
		if exam.BusinessID == "" {
			return "", brokenChainError("exam")
		}
		return exam.BusinessID, nil
	}
}

// CourseChain resolves course -> exam -> business.
func (r *Resolver) CourseChain() ChainResolver {
	return func(ctx context.Context, id string) (string, error) {
		course, err := r.courses.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", NotFoundError("course")
			}
			return "", fmt.Errorf("resolve course %s: %w", id, err)
		}
		return r.resolveExamHop(ctx, "course", course.ExamID)
	}
}

// BatchChain resolves batch -> course -> exam -> business.
func (r *Resolver) BatchChain() ChainResolver {
	return func(ctx context.Context, id string) (string, error) {
		batch, err := r.batches.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", NotFoundError("batch")
			}
			return "", fmt.Errorf("resolve batch %s: %w", id, err)
		}
		return r.resolveCourseHop(ctx, "batch", batch.CourseID)
	}
}

// ContentChain resolves content -> batch -> course -> exam -> business.
func (r *Resolver) ContentChain() ChainResolver {
	return func(ctx context.Context, id string) (string, error) {
		content, err := r.contents.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", NotFoundError("content")
			}
			return "", fmt.Errorf("resolve content %s: %w", id, err)
		}
		return r.resolveBatchHop(ctx, "content", content.BatchID)
	}
}

// resolveExamHop walks to the exam from a child entity. A missing exam here
// means the child's chain is broken, not that the child is absent.
func (r *Resolver) resolveExamHop(ctx context.Context, entity, examID string) (string, error) {
	if examID == "" {
		return "", brokenChainError(entity)
	}
	exam, err := r.exams.FindByID(ctx, examID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", brokenChainError(entity)
		}
		return "", fmt.Errorf("resolve exam hop %s: %w", examID, err)
	}
	if exam.BusinessID == "" {
		return "", brokenChainError(entity)
	}
	return exam.BusinessID, nil
}

func (r *Resolver) resolveCourseHop(ctx context.Context, entity, courseID string) (string, error) {
	if courseID == "" {
		return "", brokenChainError(entity)
	}
	course, err := r.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", brokenChainError(entity)
		}
		return "", fmt.Errorf("resolve course hop %s: %w", courseID, err)
	}
	return r.resolveExamHop(ctx, entity, course.ExamID)
}

func (r *Resolver) resolveBatchHop(ctx context.Context, entity, batchID string) (string, error) {
	if batchID == "" {
		return "", brokenChainError(entity)
	}
	batch, err := r.batches.FindByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", brokenChainError(entity)
		}
		return "", fmt.Errorf("resolve batch hop %s: %w", batchID, err)
	}
	return r.resolveCourseHop(ctx, entity, batch.CourseID)
}

// AuthorizeExam enforces tenant access for an exam.
func (r *Resolver) AuthorizeExam(ctx context.Context, p Principal, examID string) error {
	return r.Authorize(ctx, p, "exam", examID, r.ExamChain())
}

// AuthorizeCourse enforces tenant access for a course.
func (r *Resolver) AuthorizeCourse(ctx context.Context, p Principal, courseID string) error {
	return r.Authorize(ctx, p, "course", courseID, r.CourseChain())
}

// AuthorizeBatch enforces tenant access for a batch.
func (r *Resolver) AuthorizeBatch(ctx context.Context, p Principal, batchID string) error {
	return r.Authorize(ctx, p, "batch", batchID, r.BatchChain())
}

// AuthorizeContent enforces tenant access for a content record.
func (r *Resolver) AuthorizeContent(ctx context.Context, p Principal, contentID string) error {
	return r.Authorize(ctx, p, "content", contentID, r.ContentChain())
}

// RequireActiveTeacher checks that the user holds an active teacher membership
// in the batch. Membership is checked on top of, not instead of, tenant scope.
func (r *Resolver) RequireActiveTeacher(ctx context.Context, userID, batchID string) error {
	membership, err := r.memberships.FindTeacherMembership(ctx, userID, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, "not a member of this batch")
		}
		return fmt.Errorf("load teacher membership: %w", err)
	}
	if !membership.IsActive {
		return appErrors.Clone(appErrors.ErrForbidden, "not an active member of this batch")
	}
	return nil
}

// RequireActiveStudent checks that the user holds an active student membership
// in the batch.
func (r *Resolver) RequireActiveStudent(ctx context.Context, userID, batchID string) error {
	membership, err := r.memberships.FindStudentMembership(ctx, userID, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, "not a member of this batch")
		}
		return fmt.Errorf("load student membership: %w", err)
	}
	if !membership.IsActive {
		return appErrors.Clone(appErrors.ErrForbidden, "not an active member of this batch")
	}
	return nil
}
