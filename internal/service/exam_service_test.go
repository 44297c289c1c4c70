package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veduhub/institute-api/internal/authz"
	"github.com/veduhub/institute-api/internal/models"
	appErrors "github.com/veduhub/institute-api/pkg/errors"
	"github.com/veduhub/institute-api/pkg/query"
)

type mockExamRepo struct {
	exams       map[string]*models.Exam
	listResult  []models.Exam
	listTotal   int
	listCalls   int
	listErr     error
	nameExists  bool
	created     *models.Exam
	deleted     []string
	courseCount int
}

func (m *mockExamRepo) List(ctx context.Context, filter models.ExamFilter, opts query.Options) ([]models.Exam, int, error) {
	m.listCalls++
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	return m.listResult, m.listTotal, nil
}

func (m *mockExamRepo) FindByID(ctx context.Context, id string) (*models.Exam, error) {
	exam, ok := m.exams[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return exam, nil
}

func (m *mockExamRepo) ExistsByName(ctx context.Context, businessID, name, excludeID string) (bool, error) {
	return m.nameExists, nil
}

func (m *mockExamRepo) Create(ctx context.Context, exam *models.Exam) error {
	m.created = exam
	return nil
}

func (m *mockExamRepo) Update(ctx context.Context, exam *models.Exam) error {
	return nil
}

func (m *mockExamRepo) SoftDelete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockExamRepo) CountCourses(ctx context.Context, examID string) (int, error) {
	return m.courseCount, nil
}

// Finder stubs used to assemble a resolver for service tests.

type stubCourseFinder struct{ courses map[string]*models.Course }

func (s stubCourseFinder) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := s.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type stubBatchFinder struct{ batches map[string]*models.Batch }

func (s stubBatchFinder) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	if b, ok := s.batches[id]; ok {
		return b, nil
	}
	return nil, sql.ErrNoRows
}

type stubContentFinder struct{ contents map[string]*models.Content }

func (s stubContentFinder) FindByID(ctx context.Context, id string) (*models.Content, error) {
	if c, ok := s.contents[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type stubMembershipFinder struct {
	teachers map[string]*models.BatchTeacher
	students map[string]*models.BatchStudent
}

func (s stubMembershipFinder) FindTeacherMembership(ctx context.Context, userID, batchID string) (*models.BatchTeacher, error) {
	if m, ok := s.teachers[userID+":"+batchID]; ok {
		return m, nil
	}
	return nil, sql.ErrNoRows
}

func (s stubMembershipFinder) FindStudentMembership(ctx context.Context, userID, batchID string) (*models.BatchStudent, error) {
	if m, ok := s.students[userID+":"+batchID]; ok {
		return m, nil
	}
	return nil, sql.ErrNoRows
}

// fakeCacheRepo keeps marshalled payloads in memory, mimicking the redis
// round trip.
type fakeCacheRepo struct {
	data            map[string][]byte
	deletedPatterns []string
}

func newFakeCacheRepo() *fakeCacheRepo {
	return &fakeCacheRepo{data: make(map[string][]byte)}
}

func (f *fakeCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := f.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (f *fakeCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.data[key] = raw
	return nil
}

func (f *fakeCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	f.deletedPatterns = append(f.deletedPatterns, pattern)
	f.data = make(map[string][]byte)
	return nil
}

func examResolver(repo *mockExamRepo) *authz.Resolver {
	return authz.NewResolver(repo, stubCourseFinder{}, stubBatchFinder{}, stubContentFinder{}, stubMembershipFinder{})
}

func adminPrincipal(businessID string) authz.Principal {
	return authz.Principal{UserID: "admin-1", Role: models.RoleAdmin, BusinessID: &businessID}
}

func TestExamServiceListScopesToBusiness(t *testing.T) {
	repo := &mockExamRepo{listResult: []models.Exam{{ID: "e1", BusinessID: "b1", Name: "NEET"}}, listTotal: 1}
	svc := NewExamService(repo, examResolver(repo), nil, validator.New(), zap.NewNop())

	exams, pagination, err := svc.List(context.Background(), adminPrincipal("b1"), models.ExamFilter{}, query.Options{})
	require.NoError(t, err)
	assert.Len(t, exams, 1)
	assert.Equal(t, 1, pagination.TotalCount)
	assert.Equal(t, 1, repo.listCalls)
}

func TestExamServiceListServedFromCache(t *testing.T) {
	repo := &mockExamRepo{listResult: []models.Exam{{ID: "e1", BusinessID: "b1", Name: "NEET"}}, listTotal: 1}
	cacheRepo := newFakeCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	svc := NewExamService(repo, examResolver(repo), cache, validator.New(), zap.NewNop())

	p := adminPrincipal("b1")
	_, _, err := svc.List(context.Background(), p, models.ExamFilter{}, query.Options{})
	require.NoError(t, err)

	exams, _, err := svc.List(context.Background(), p, models.ExamFilter{}, query.Options{})
	require.NoError(t, err)
	assert.Len(t, exams, 1)
	assert.Equal(t, 1, repo.listCalls, "second call should be served from cache")
}

func TestExamServiceCreateInvalidatesCache(t *testing.T) {
	repo := &mockExamRepo{}
	cacheRepo := newFakeCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	svc := NewExamService(repo, examResolver(repo), cache, validator.New(), zap.NewNop())

	exam, err := svc.Create(context.Background(), adminPrincipal("b1"), CreateExamRequest{BusinessID: "b1", Name: "NEET"})
	require.NoError(t, err)
	assert.Equal(t, "NEET", exam.Name)
	require.Len(t, cacheRepo.deletedPatterns, 1)
	assert.Equal(t, "exams:list:*", cacheRepo.deletedPatterns[0])
}

func TestExamServiceCreateNameConflict(t *testing.T) {
	repo := &mockExamRepo{nameExists: true}
	svc := NewExamService(repo, examResolver(repo), nil, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), adminPrincipal("b1"), CreateExamRequest{BusinessID: "b1", Name: "NEET"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestExamServiceCreateOtherBusiness(t *testing.T) {
	repo := &mockExamRepo{}
	svc := NewExamService(repo, examResolver(repo), nil, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), adminPrincipal("b1"), CreateExamRequest{BusinessID: "b2", Name: "NEET"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestExamServiceGetTenantMismatch(t *testing.T) {
	repo := &mockExamRepo{exams: map[string]*models.Exam{"e1": {ID: "e1", BusinessID: "b2", Name: "NEET"}}}
	svc := NewExamService(repo, examResolver(repo), nil, validator.New(), zap.NewNop())

	_, err := svc.Get(context.Background(), adminPrincipal("b1"), "e1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no access to this exam")
}

func TestExamServiceDeleteWithCourses(t *testing.T) {
	repo := &mockExamRepo{
		exams:       map[string]*models.Exam{"e1": {ID: "e1", BusinessID: "b1", Name: "NEET"}},
		courseCount: 2,
	}
	svc := NewExamService(repo, examResolver(repo), nil, validator.New(), zap.NewNop())

	err := svc.Delete(context.Background(), adminPrincipal("b1"), "e1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	assert.Empty(t, repo.deleted)
}
