package authz

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veduhub/institute-api/internal/models"
	appErrors "github.com/veduhub/institute-api/pkg/errors"
)

type stubExamFinder struct {
	exams map[string]*models.Exam
}

func (s *stubExamFinder) FindByID(_ context.Context, id string) (*models.Exam, error) {
	if exam, ok := s.exams[id]; ok {
		return exam, nil
	}
	return nil, sql.ErrNoRows
}

type stubCourseFinder struct {
	courses map[string]*models.Course
}

func (s *stubCourseFinder) FindByID(_ context.Context, id string) (*models.Course, error) {
	if course, ok := s.courses[id]; ok {
		return course, nil
	}
	return nil, sql.ErrNoRows
}

type stubBatchFinder struct {
	batches map[string]*models.Batch
}

func (s *stubBatchFinder) FindByID(_ context.Context, id string) (*models.Batch, error) {
	if batch, ok := s.batches[id]; ok {
		return batch, nil
	}
	return nil, sql.ErrNoRows
}

type stubContentFinder struct {
	contents map[string]*models.Content
}

func (s *stubContentFinder) FindByID(_ context.Context, id string) (*models.Content, error) {
	if content, ok := s.contents[id]; ok {
		return content, nil
	}
	return nil, sql.ErrNoRows
}

type stubMembershipFinder struct {
	teachers map[string]*models.BatchTeacher
	students map[string]*models.BatchStudent
}

func (s *stubMembershipFinder) FindTeacherMembership(_ context.Context, userID, batchID string) (*models.BatchTeacher, error) {
	if m, ok := s.teachers[userID+"/"+batchID]; ok {
		return m, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubMembershipFinder) FindStudentMembership(_ context.Context, userID, batchID string) (*models.BatchStudent, error) {
	if m, ok := s.students[userID+"/"+batchID]; ok {
		return m, nil
	}
	return nil, sql.ErrNoRows
}

// newFixtureResolver wires a full containment chain owned by business b1:
// content ct1 -> batch ba1 -> course c1 -> exam e1 -> business b1,
// plus an orphaned batch whose course is missing.
func newFixtureResolver() *Resolver {
	exams := &stubExamFinder{exams: map[string]*models.Exam{
		"e1":       {ID: "e1", BusinessID: "b1"},
		"orphaned": {ID: "orphaned"},
	}}
	courses := &stubCourseFinder{courses: map[string]*models.Course{
		"c1": {ID: "c1", ExamID: "e1"},
		"c2": {ID: "c2", ExamID: "missing-exam"},
	}}
	batches := &stubBatchFinder{batches: map[string]*models.Batch{
		"ba1":      {ID: "ba1", CourseID: "c1"},
		"orphaned": {ID: "orphaned", CourseID: "missing-course"},
	}}
	contents := &stubContentFinder{contents: map[string]*models.Content{
		"ct1": {ID: "ct1", BatchID: "ba1"},
	}}
	memberships := &stubMembershipFinder{
		teachers: map[string]*models.BatchTeacher{
			"t-active/ba1":   {ID: "m1", BatchID: "ba1", UserID: "t-active", IsActive: true},
			"t-inactive/ba1": {ID: "m2", BatchID: "ba1", UserID: "t-inactive", IsActive: false},
		},
		students: map[string]*models.BatchStudent{
			"s-active/ba1": {ID: "m3", BatchID: "ba1", UserID: "s-active", IsActive: true},
		},
	}
	return NewResolver(exams, courses, batches, contents, memberships)
}

func principal(role models.UserRole, businessID string) Principal {
	p := Principal{UserID: "u1", Role: role}
	if businessID != "" {
		p.BusinessID = &businessID
	}
	return p
}

func TestAuthorizeSuperAdminBypassesTenantScope(t *testing.T) {
	r := newFixtureResolver()

	// SUPERADMIN has no business attachment yet still passes.
	err := r.AuthorizeContent(context.Background(), principal(models.RoleSuperAdmin, ""), "ct1")
	assert.NoError(t, err)
}

func TestAuthorizeMatchingBusiness(t *testing.T) {
	r := newFixtureResolver()

	err := r.AuthorizeContent(context.Background(), principal(models.RoleAdmin, "b1"), "ct1")
	assert.NoError(t, err)
}

func TestAuthorizeTenantMismatch(t *testing.T) {
	r := newFixtureResolver()

	err := r.AuthorizeBatch(context.Background(), principal(models.RoleAdmin, "b2"), "ba1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.Equal(t, "no access to this batch", appErr.Message)
}

func TestAuthorizeMissingEntityIsNotFound(t *testing.T) {
	r := newFixtureResolver()

	err := r.AuthorizeBatch(context.Background(), principal(models.RoleAdmin, "b1"), "nope")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestAuthorizeBrokenChainIsForbidden(t *testing.T) {
	r := newFixtureResolver()

	// The batch exists but its course does not: forbidden, not 404.
	err := r.AuthorizeBatch(context.Background(), principal(models.RoleAdmin, "b1"), "orphaned")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.Equal(t, "batch is not correctly associated with a business", appErr.Message)
}

func TestAuthorizeExamWithoutBusinessIsForbidden(t *testing.T) {
	r := newFixtureResolver()

	err := r.AuthorizeExam(context.Background(), principal(models.RoleSuperAdmin, ""), "orphaned")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestAuthorizeCourseBrokenExamHop(t *testing.T) {
	r := newFixtureResolver()

	err := r.AuthorizeCourse(context.Background(), principal(models.RoleAdmin, "b1"), "c2")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, "course is not correctly associated with a business", appErr.Message)
}

func TestRequireBusinessDirectComparison(t *testing.T) {
	r := newFixtureResolver()
	b1 := "b1"

	assert.NoError(t, r.RequireBusiness(principal(models.RoleAdmin, "b1"), "teacher", &b1))
	assert.NoError(t, r.RequireBusiness(principal(models.RoleSuperAdmin, ""), "teacher", &b1))

	err := r.RequireBusiness(principal(models.RoleAdmin, "b2"), "teacher", &b1)
	require.Error(t, err)
	assert.Equal(t, "no access to this teacher", appErrors.FromError(err).Message)

	err = r.RequireBusiness(principal(models.RoleAdmin, "b1"), "teacher", nil)
	require.Error(t, err)
	assert.Equal(t, "teacher is not correctly associated with a business", appErrors.FromError(err).Message)
}

func TestRequireActiveTeacher(t *testing.T) {
	r := newFixtureResolver()
	ctx := context.Background()

	assert.NoError(t, r.RequireActiveTeacher(ctx, "t-active", "ba1"))

	err := r.RequireActiveTeacher(ctx, "t-inactive", "ba1")
	require.Error(t, err)
	assert.Equal(t, "not an active member of this batch", appErrors.FromError(err).Message)

	err = r.RequireActiveTeacher(ctx, "stranger", "ba1")
	require.Error(t, err)
	assert.Equal(t, "not a member of this batch", appErrors.FromError(err).Message)
}

func TestRequireActiveStudent(t *testing.T) {
	r := newFixtureResolver()
	ctx := context.Background()

	assert.NoError(t, r.RequireActiveStudent(ctx, "s-active", "ba1"))

	err := r.RequireActiveStudent(ctx, "s-active", "other-batch")
	require.Error(t, err)
	assert.Equal(t, "not a member of this batch", appErrors.FromError(err).Message)
}

func TestAuthorizeFullChainForTeacherRole(t *testing.T) {
	r := newFixtureResolver()
	ctx := context.Background()
	p := principal(models.RoleTeacher, "b1")
	p.UserID = "t-active"

	// Tenant scope and membership are independent checks; an upload path
	// runs both.
	require.NoError(t, r.AuthorizeBatch(ctx, p, "ba1"))
	require.NoError(t, r.RequireActiveTeacher(ctx, p.UserID, "ba1"))
}
