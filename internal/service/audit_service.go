package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veduhub/institute-api/internal/models"
	appErrors "github.com/veduhub/institute-api/pkg/errors"
	"github.com/veduhub/institute-api/pkg/jobs"
	"github.com/veduhub/institute-api/pkg/query"
)

type auditRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, filter models.AuditFilter, opts query.Options) ([]models.AuditLog, int, error)
}

// FlagSource reports whether audit logging is currently enabled. The default
// source reads static configuration, but a settings-table lookup can be
// injected without changing the service.
type FlagSource func(ctx context.Context) (bool, error)

// StaticFlag returns a FlagSource with a fixed value.
func StaticFlag(enabled bool) FlagSource {
	return func(context.Context) (bool, error) {
		return enabled, nil
	}
}

type flagStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
}

// RemoteFlag reads the audit flag from a key-value store so operators can
// toggle auditing at runtime. A missing key falls back to the configured
// default; store errors propagate so the cache keeps its last value.
func RemoteFlag(store flagStore, key string, fallback bool) FlagSource {
	return func(ctx context.Context) (bool, error) {
		var enabled bool
		if err := store.Get(ctx, key, &enabled); err != nil {
			if errors.Is(err, appErrors.ErrCacheMiss) {
				return fallback, nil
			}
			return false, err
		}
		return enabled, nil
	}
}

// flagCache memoises the audit flag for a bounded interval so the hot request
// path does not consult the source on every call. The expiry is explicit:
// a stale value is never served past fetchedAt+ttl.
type flagCache struct {
	mu        sync.Mutex
	value     bool
	fetchedAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

func (c *flagCache) get(ctx context.Context, source FlagSource) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.value
	}
	enabled, err := source(ctx)
	if err != nil {
		// Keep the last known value on source failure; do not refresh expiry
		// so the next call retries.
		return c.value
	}
	c.value = enabled
	c.fetchedAt = c.now()
	return c.value
}

// AuditService records API activity asynchronously. Entries are pushed onto an
// in-memory worker queue so request latency never depends on the audit write.
type AuditService struct {
	repo    auditRepository
	queue   *jobs.Queue
	flags   *flagCache
	source  FlagSource
	metrics *MetricsService
	logger  *zap.Logger
}

// AuditServiceConfig bundles audit tuning knobs.
type AuditServiceConfig struct {
	Source       FlagSource
	FlagCacheTTL time.Duration
	Workers      int
	QueueSize    int
	MaxRetries   int
}

// NewAuditService constructs the audit service and its backing queue. Call
// Start before recording and Stop during shutdown.
func NewAuditService(repo auditRepository, metrics *MetricsService, logger *zap.Logger, cfg AuditServiceConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Source == nil {
		cfg.Source = StaticFlag(false)
	}
	if cfg.FlagCacheTTL <= 0 {
		cfg.FlagCacheTTL = 5 * time.Minute
	}

	s := &AuditService{
		repo:    repo,
		source:  cfg.Source,
		metrics: metrics,
		logger:  logger,
		flags: &flagCache{
			ttl: cfg.FlagCacheTTL,
			now: time.Now,
		},
	}

	s.queue = jobs.NewQueue("audit", s.persist, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.QueueSize,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the background workers.
func (s *AuditService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *AuditService) Stop() {
	s.queue.Stop()
}

// Enabled reports the cached audit flag.
func (s *AuditService) Enabled(ctx context.Context) bool {
	if s == nil {
		return false
	}
	return s.flags.get(ctx, s.source)
}

// Record enqueues an audit entry when the flag is on. The write happens on a
// worker goroutine; failures are retried by the queue and surface only in logs
// and metrics, never to the caller.
func (s *AuditService) Record(ctx context.Context, entry *models.AuditLog) {
	if s == nil || entry == nil {
		return
	}
	if !s.Enabled(ctx) {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if err := s.queue.Enqueue(jobs.Job{ID: entry.ID, Type: "audit_log", Payload: entry}); err != nil {
		s.metrics.RecordAuditDropped()
		s.logger.Warn("audit entry dropped", zap.String("action", entry.Action), zap.String("resource", entry.Resource), zap.Error(err))
		return
	}
	s.metrics.RecordAuditQueued()
}

func (s *AuditService) persist(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(*models.AuditLog)
	if !ok {
		s.logger.Error("unexpected audit job payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.repo.Create(ctx, entry)
}

// List returns audit records. SUPERADMIN sees all; other callers are scoped to
// their business by the handler-supplied filter.
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter, opts query.Options) ([]models.AuditLog, *models.Pagination, error) {
	entries, total, err := s.repo.List(ctx, filter, opts)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}
	return entries, paginationFor(opts, total), nil
}
