package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veduhub/institute-api/internal/models"
	appErrors "github.com/veduhub/institute-api/pkg/errors"
	"github.com/veduhub/institute-api/pkg/query"
)

type mockAuditRepo struct {
	mu      sync.Mutex
	entries []*models.AuditLog
	listErr error
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) List(ctx context.Context, filter models.AuditFilter, opts query.Options) ([]models.AuditLog, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AuditLog, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (m *mockAuditRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func TestAuditServiceRecordPersistsAsync(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := NewAuditService(repo, nil, zap.NewNop(), AuditServiceConfig{Source: StaticFlag(true)})
	svc.Start(context.Background())
	defer svc.Stop()

	userID := "u1"
	svc.Record(context.Background(), &models.AuditLog{UserID: &userID, Action: "CREATE", Resource: "exams"})

	require.Eventually(t, func() bool {
		return repo.count() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.NotEmpty(t, repo.entries[0].ID)
	assert.False(t, repo.entries[0].CreatedAt.IsZero())
}

func TestAuditServiceRecordDisabled(t *testing.T) {
	repo := &mockAuditRepo{}
	svc := NewAuditService(repo, nil, zap.NewNop(), AuditServiceConfig{Source: StaticFlag(false)})
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Record(context.Background(), &models.AuditLog{Action: "CREATE", Resource: "exams"})

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, repo.count())
}

func TestFlagCacheServesWithinTTL(t *testing.T) {
	calls := 0
	source := func(context.Context) (bool, error) {
		calls++
		return true, nil
	}
	current := time.Unix(1000, 0)
	cache := &flagCache{ttl: time.Minute, now: func() time.Time { return current }}

	assert.True(t, cache.get(context.Background(), source))
	assert.True(t, cache.get(context.Background(), source))
	assert.Equal(t, 1, calls)
}

func TestFlagCacheRefreshesAfterTTL(t *testing.T) {
	values := []bool{true, false}
	calls := 0
	source := func(context.Context) (bool, error) {
		v := values[calls]
		calls++
		return v, nil
	}
	current := time.Unix(1000, 0)
	cache := &flagCache{ttl: time.Minute, now: func() time.Time { return current }}

	assert.True(t, cache.get(context.Background(), source))

	current = current.Add(2 * time.Minute)
	assert.False(t, cache.get(context.Background(), source))
	assert.Equal(t, 2, calls)
}

func TestFlagCacheKeepsValueOnSourceFailure(t *testing.T) {
	calls := 0
	source := func(context.Context) (bool, error) {
		calls++
		if calls == 1 {
			return true, nil
		}
		return false, errors.New("settings lookup failed")
	}
	current := time.Unix(1000, 0)
	cache := &flagCache{ttl: time.Minute, now: func() time.Time { return current }}

	assert.True(t, cache.get(context.Background(), source))

	// Past the TTL the failing source keeps the last value but the expiry is
	// not refreshed, so the next call retries.
	current = current.Add(2 * time.Minute)
	assert.True(t, cache.get(context.Background(), source))
	assert.True(t, cache.get(context.Background(), source))
	assert.Equal(t, 3, calls)
}

type mockFlagStore struct {
	values map[string]bool
	err    error
}

func (m *mockFlagStore) Get(ctx context.Context, key string, dest interface{}) error {
	if m.err != nil {
		return m.err
	}
	v, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*dest.(*bool) = v
	return nil
}

func TestRemoteFlag(t *testing.T) {
	store := &mockFlagStore{values: map[string]bool{"audit:enabled": true}}
	source := RemoteFlag(store, "audit:enabled", false)

	enabled, err := source(context.Background())
	require.NoError(t, err)
	assert.True(t, enabled)

	missing := RemoteFlag(store, "other:key", true)
	enabled, err = missing(context.Background())
	require.NoError(t, err)
	assert.True(t, enabled, "missing key falls back to default")

	store.err = errors.New("redis down")
	_, err = source(context.Background())
	require.Error(t, err)
}

func TestAuditServiceList(t *testing.T) {
	repo := &mockAuditRepo{}
	userID := "u1"
	repo.entries = append(repo.entries, &models.AuditLog{ID: "a1", UserID: &userID, Action: "LOGIN", Resource: "auth"})
	svc := NewAuditService(repo, nil, zap.NewNop(), AuditServiceConfig{Source: StaticFlag(true)})

	entries, pagination, err := svc.List(context.Background(), models.AuditFilter{}, query.Options{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	require.NotNil(t, pagination)
	assert.Equal(t, 1, pagination.TotalCount)
}
