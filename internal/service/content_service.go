package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veduhub/institute-api/internal/authz"
	"github.com/veduhub/institute-api/internal/models"
	appErrors "github.com/veduhub/institute-api/pkg/errors"
	"github.com/veduhub/institute-api/pkg/query"
	"github.com/veduhub/institute-api/pkg/storage"
)

type contentRepository interface {
	List(ctx context.Context, filter models.ContentFilter, opts query.Options) ([]models.Content, int, error)
	FindByID(ctx context.Context, id string) (*models.Content, error)
	Create(ctx context.Context, content *models.Content) error
	Update(ctx context.Context, content *models.Content) error
	SoftDelete(ctx context.Context, id string) error
}

type contentStorage interface {
	SaveStream(filename string, r io.Reader) (int64, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

// UploadContentRequest holds the metadata accompanying a file upload.
type UploadContentRequest struct {
	BatchID     string `json:"batch_id" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	FileName    string `json:"-" validate:"required"`
	MimeType    string `json:"-" validate:"required"`
	SizeBytes   int64  `json:"-"`
}

// UpdateContentRequest holds payload for updating content metadata.
type UpdateContentRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
}

// ContentConfig bundles upload limits and signing material.
type ContentConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// ContentService handles batch content: uploads, metadata, signed downloads.
type ContentService struct {
	repo      contentRepository
	store     contentStorage
	signer    *storage.SignedURLSigner
	resolver  *authz.Resolver
	config    ContentConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewContentService constructs the content service.
func NewContentService(repo contentRepository, store contentStorage, signer *storage.SignedURLSigner, resolver *authz.Resolver, config ContentConfig, validate *validator.Validate, logger *zap.Logger) *ContentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentService{repo: repo, store: store, signer: signer, resolver: resolver, config: config, validator: validate, logger: logger}
}

// List returns content records for a batch after chain authorization. STUDENT
// callers additionally need an active membership.
func (s *ContentService) List(ctx context.Context, p authz.Principal, filter models.ContentFilter, opts query.Options) ([]models.Content, *models.Pagination, error) {
	if filter.BatchID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "batch_id filter is required")
	}
	if err := s.authorizeBatchRead(ctx, p, filter.BatchID); err != nil {
		return nil, nil, err
	}

	contents, total, err := s.repo.List(ctx, filter, opts)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list contents")
	}
	return contents, paginationFor(opts, total), nil
}

// Get returns a content record after chain authorization.
func (s *ContentService) Get(ctx context.Context, p authz.Principal, id string) (*models.Content, error) {
	if err := s.resolver.AuthorizeContent(ctx, p, id); err != nil {
		return nil, err
	}
	content, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "content not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load content")
	}
	if p.Role == models.RoleStudent {
		if err := s.resolver.RequireActiveStudent(ctx, p.UserID, content.BatchID); err != nil {
			return nil, err
		}
	}
	return content, nil
}

// Upload validates and stores an uploaded file, then records its metadata.
// TEACHER uploads require an active membership in the target batch.
func (s *ContentService) Upload(ctx context.Context, p authz.Principal, req UploadContentRequest, r io.Reader) (*models.Content, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid upload payload")
	}
	if err := s.resolver.AuthorizeBatch(ctx, p, req.BatchID); err != nil {
		return nil, err
	}
	if p.Role == models.RoleTeacher {
		if err := s.resolver.RequireActiveTeacher(ctx, p.UserID, req.BatchID); err != nil {
			return nil, err
		}
	}
	if !s.mimeAllowed(req.MimeType) {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedMedia, fmt.Sprintf("mime type %s is not allowed", req.MimeType))
	}
	if req.SizeBytes > 0 && req.SizeBytes > s.config.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, "file exceeds the upload size limit")
	}

	contentID := uuid.NewString()
	relPath := filepath.Join(req.BatchID, contentID+filepath.Ext(req.FileName))

	// The declared size is advisory; the stream is capped while writing so a
	// lying client cannot exceed the limit.
	written, err := s.store.SaveStream(relPath, io.LimitReader(r, s.config.MaxFileSizeBytes+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}
	if written > s.config.MaxFileSizeBytes {
		if err := s.store.Delete(relPath); err != nil {
			s.logger.Warn("failed to remove oversized upload", zap.String("path", relPath), zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, "file exceeds the upload size limit")
	}

	content := &models.Content{
		ID:          contentID,
		BatchID:     req.BatchID,
		UploadedBy:  p.UserID,
		Title:       req.Title,
		Description: req.Description,
		FileName:    req.FileName,
		FilePath:    relPath,
		MimeType:    req.MimeType,
		SizeBytes:   written,
	}
	if err := s.repo.Create(ctx, content); err != nil {
		if cleanupErr := s.store.Delete(relPath); cleanupErr != nil {
			s.logger.Warn("failed to remove orphaned upload", zap.String("path", relPath), zap.Error(cleanupErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record content")
	}
	return content, nil
}

// Update modifies content metadata after chain authorization.
func (s *ContentService) Update(ctx context.Context, p authz.Principal, id string, req UpdateContentRequest) (*models.Content, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid content payload")
	}
	content, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}

	content.Title = req.Title
	content.Description = req.Description
	if err := s.repo.Update(ctx, content); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update content")
	}
	return content, nil
}

// Delete soft-deletes a content record. The stored file is kept for the
// cleanup routine so in-flight signed URLs keep working briefly.
func (s *ContentService) Delete(ctx context.Context, p authz.Principal, id string) error {
	if _, err := s.Get(ctx, p, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete content")
	}
	return nil
}

// SignedDownloadURL issues a time-limited token for downloading the file.
func (s *ContentService) SignedDownloadURL(ctx context.Context, p authz.Principal, id, basePath string) (*models.ContentDownload, error) {
	content, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(content.ID, content.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return &models.ContentDownload{
		ContentID: content.ID,
		URL:       fmt.Sprintf("%s/contents/download?token=%s", basePath, token),
		ExpiresAt: expiresAt,
	}, nil
}

// Download validates a signed token and opens the underlying file. It is the
// one unauthenticated content path; the token itself is the credential.
func (s *ContentService) Download(ctx context.Context, token string) (*models.Content, *os.File, error) {
	contentID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}

	content, err := s.repo.FindByID(ctx, contentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "content not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load content")
	}
	if content.FilePath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "token does not match stored file")
	}

	file, err := s.store.Open(content.FilePath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "stored file missing")
	}
	return content, file, nil
}

func (s *ContentService) authorizeBatchRead(ctx context.Context, p authz.Principal, batchID string) error {
	if err := s.resolver.AuthorizeBatch(ctx, p, batchID); err != nil {
		return err
	}
	switch p.Role {
	case models.RoleTeacher:
		return s.resolver.RequireActiveTeacher(ctx, p.UserID, batchID)
	case models.RoleStudent:
		return s.resolver.RequireActiveStudent(ctx, p.UserID, batchID)
	default:
		return nil
	}
}

func (s *ContentService) mimeAllowed(mime string) bool {
	if len(s.config.AllowedMIMEs) == 0 {
		return true
	}
	for _, allowed := range s.config.AllowedMIMEs {
		if allowed == mime {
			return true
		}
	}
	return false
}
