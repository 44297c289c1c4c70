package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veduhub/institute-api/internal/authz"
	"github.com/veduhub/institute-api/internal/models"
	appErrors "github.com/veduhub/institute-api/pkg/errors"
	"github.com/veduhub/institute-api/pkg/query"
)

type mockBatchRepo struct {
	batches         map[string]*models.Batch
	students        []models.BatchMemberDetail
	activeStudents  int
	lastFilter      models.BatchFilter
	upsertedTeacher *models.BatchTeacher
	upsertedStudent *models.BatchStudent
	removedStudents []string
}

func (m *mockBatchRepo) List(ctx context.Context, filter models.BatchFilter, opts query.Options) ([]models.Batch, int, error) {
	m.lastFilter = filter
	return nil, 0, nil
}

func (m *mockBatchRepo) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	if b, ok := m.batches[id]; ok {
		return b, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBatchRepo) Create(ctx context.Context, batch *models.Batch) error { return nil }
func (m *mockBatchRepo) Update(ctx context.Context, batch *models.Batch) error { return nil }
func (m *mockBatchRepo) SoftDelete(ctx context.Context, id string) error       { return nil }

func (m *mockBatchRepo) ListTeachers(ctx context.Context, batchID string) ([]models.BatchMemberDetail, error) {
	return nil, nil
}

func (m *mockBatchRepo) ListStudents(ctx context.Context, batchID string) ([]models.BatchMemberDetail, error) {
	return m.students, nil
}

func (m *mockBatchRepo) UpsertTeacher(ctx context.Context, membership *models.BatchTeacher) error {
	m.upsertedTeacher = membership
	return nil
}

func (m *mockBatchRepo) UpsertStudent(ctx context.Context, membership *models.BatchStudent) error {
	m.upsertedStudent = membership
	return nil
}

func (m *mockBatchRepo) SetTeacherActive(ctx context.Context, batchID, userID string, active bool) error {
	return nil
}

func (m *mockBatchRepo) SetStudentActive(ctx context.Context, batchID, userID string, active bool) error {
	return nil
}

func (m *mockBatchRepo) RemoveTeacher(ctx context.Context, batchID, userID string) error {
	return nil
}

func (m *mockBatchRepo) RemoveStudent(ctx context.Context, batchID, userID string) error {
	m.removedStudents = append(m.removedStudents, userID)
	return nil
}

func (m *mockBatchRepo) CountActiveStudents(ctx context.Context, batchID string) (int, error) {
	return m.activeStudents, nil
}

type stubUserLookup struct{ users map[string]*models.User }

func (s stubUserLookup) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

// batchFixture wires a resolver over the chain ba1 -> c1 -> e1 -> b1.
func batchFixture(repo *mockBatchRepo, memberships stubMembershipFinder) (*mockBatchRepo, *authz.Resolver) {
	if repo.batches == nil {
		repo.batches = map[string]*models.Batch{"ba1": {ID: "ba1", CourseID: "c1", Name: "Morning", Capacity: 2}}
	}
	exams := &mockExamRepo{exams: map[string]*models.Exam{"e1": {ID: "e1", BusinessID: "b1"}}}
	courses := stubCourseFinder{courses: map[string]*models.Course{"c1": {ID: "c1", ExamID: "e1"}}}
	resolver := authz.NewResolver(exams, courses, repo, stubContentFinder{}, memberships)
	return repo, resolver
}

func TestBatchServiceListForcesTeacherFilter(t *testing.T) {
	repo, resolver := batchFixture(&mockBatchRepo{}, stubMembershipFinder{})
	svc := NewBatchService(repo, stubUserLookup{}, resolver, true, validator.New(), zap.NewNop())

	businessID := "b1"
	p := authz.Principal{UserID: "t1", Role: models.RoleTeacher, BusinessID: &businessID}
	_, _, err := svc.List(context.Background(), p, models.BatchFilter{}, query.Options{})
	require.NoError(t, err)
	assert.Equal(t, "t1", repo.lastFilter.TeacherUserID)
	assert.Equal(t, "b1", repo.lastFilter.BusinessID)
}

func TestBatchServiceGetTeacherNeedsMembership(t *testing.T) {
	repo, resolver := batchFixture(&mockBatchRepo{}, stubMembershipFinder{})
	svc := NewBatchService(repo, stubUserLookup{}, resolver, true, validator.New(), zap.NewNop())

	businessID := "b1"
	p := authz.Principal{UserID: "t1", Role: models.RoleTeacher, BusinessID: &businessID}
	_, err := svc.Get(context.Background(), p, "ba1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a member of this batch")
}

func TestBatchServiceAddStudentAtCapacity(t *testing.T) {
	repo, resolver := batchFixture(&mockBatchRepo{activeStudents: 2}, stubMembershipFinder{})
	users := stubUserLookup{users: map[string]*models.User{"s1": {ID: "s1", Role: models.RoleStudent}}}
	svc := NewBatchService(repo, users, resolver, true, validator.New(), zap.NewNop())

	err := svc.AddStudent(context.Background(), adminPrincipal("b1"), "ba1", BatchMemberRequest{UserID: "s1"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	assert.Nil(t, repo.upsertedStudent)
}

func TestBatchServiceAddStudent(t *testing.T) {
	repo, resolver := batchFixture(&mockBatchRepo{activeStudents: 1}, stubMembershipFinder{})
	users := stubUserLookup{users: map[string]*models.User{"s1": {ID: "s1", Role: models.RoleStudent}}}
	svc := NewBatchService(repo, users, resolver, true, validator.New(), zap.NewNop())

	err := svc.AddStudent(context.Background(), adminPrincipal("b1"), "ba1", BatchMemberRequest{UserID: "s1"})
	require.NoError(t, err)
	require.NotNil(t, repo.upsertedStudent)
	assert.True(t, repo.upsertedStudent.IsActive)
	assert.Equal(t, "ba1", repo.upsertedStudent.BatchID)
}

func TestBatchServiceRemoveStudent(t *testing.T) {
	repo, resolver := batchFixture(&mockBatchRepo{}, stubMembershipFinder{})
	svc := NewBatchService(repo, stubUserLookup{}, resolver, true, validator.New(), zap.NewNop())

	err := svc.RemoveStudent(context.Background(), adminPrincipal("b1"), "ba1", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, repo.removedStudents)

	err = svc.RemoveStudent(context.Background(), adminPrincipal("other"), "ba1", "s1")
	require.Error(t, err)
	assert.Len(t, repo.removedStudents, 1)
}

func TestBatchServiceAddTeacherWrongRole(t *testing.T) {
	repo, resolver := batchFixture(&mockBatchRepo{}, stubMembershipFinder{})
	users := stubUserLookup{users: map[string]*models.User{"s1": {ID: "s1", Role: models.RoleStudent}}}
	svc := NewBatchService(repo, users, resolver, true, validator.New(), zap.NewNop())

	err := svc.AddTeacher(context.Background(), adminPrincipal("b1"), "ba1", BatchMemberRequest{UserID: "s1"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestBatchServiceExportRosterCSV(t *testing.T) {
	repo := &mockBatchRepo{students: []models.BatchMemberDetail{
		{UserID: "s1", FullName: "Asha Verma", Email: "asha@example.com", IsActive: true},
		{UserID: "s2", FullName: "Ravi Kumar", Email: "ravi@example.com", IsActive: false},
	}}
	repo, resolver := batchFixture(repo, stubMembershipFinder{})
	svc := NewBatchService(repo, stubUserLookup{}, resolver, true, validator.New(), zap.NewNop())

	out, err := svc.ExportRoster(context.Background(), adminPrincipal("b1"), "ba1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "roster-ba1.csv", out.FileName)
	assert.Equal(t, "text/csv", out.ContentType)
	body := string(out.Data)
	assert.Contains(t, body, "Name,Email,Status")
	assert.Contains(t, body, "Asha Verma,asha@example.com,active")
	assert.Contains(t, body, "Ravi Kumar,ravi@example.com,inactive")
}

func TestBatchServiceExportRosterPDF(t *testing.T) {
	repo, resolver := batchFixture(&mockBatchRepo{}, stubMembershipFinder{})
	svc := NewBatchService(repo, stubUserLookup{}, resolver, true, validator.New(), zap.NewNop())

	out, err := svc.ExportRoster(context.Background(), adminPrincipal("b1"), "ba1", "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", out.ContentType)
	assert.NotEmpty(t, out.Data)
}

func TestBatchServiceExportRosterDisabled(t *testing.T) {
	repo, resolver := batchFixture(&mockBatchRepo{}, stubMembershipFinder{})
	svc := NewBatchService(repo, stubUserLookup{}, resolver, false, validator.New(), zap.NewNop())

	_, err := svc.ExportRoster(context.Background(), adminPrincipal("b1"), "ba1", "csv")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestBatchServiceExportRosterBadFormat(t *testing.T) {
	repo, resolver := batchFixture(&mockBatchRepo{}, stubMembershipFinder{})
	svc := NewBatchService(repo, stubUserLookup{}, resolver, true, validator.New(), zap.NewNop())

	_, err := svc.ExportRoster(context.Background(), adminPrincipal("b1"), "ba1", "xlsx")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
