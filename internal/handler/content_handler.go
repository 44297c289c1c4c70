package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/veduhub/institute-api/internal/models"
	"github.com/veduhub/institute-api/internal/service"
	appErrors "github.com/veduhub/institute-api/pkg/errors"
	"github.com/veduhub/institute-api/pkg/query"
	"github.com/veduhub/institute-api/pkg/response"
)

// ContentHandler handles batch content endpoints: metadata CRUD, multipart
// uploads and signed downloads.
type ContentHandler struct {
	service  *service.ContentService
	basePath string
}

// NewContentHandler constructs a content handler. basePath is the public API
// prefix embedded in signed download URLs.
func NewContentHandler(svc *service.ContentService, basePath string) *ContentHandler {
	return &ContentHandler{service: svc, basePath: basePath}
}

// List godoc
// @Summary List batch contents
// @Tags Contents
// @Produce json
// @Param batch_id query string true "Batch ID"
// @Param mime_type query string false "Filter by mime type"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /contents [get]
func (h *ContentHandler) List(c *gin.Context) {
	filter := models.ContentFilter{
		BatchID:  c.Query("batch_id"),
		MimeType: c.Query("mime_type"),
		Search:   strings.TrimSpace(c.Query("search")),
	}
	opts := query.ParseValues(c.Request.URL.Query())

	contents, pagination, err := h.service.List(c.Request.Context(), principalFromContext(c), filter, opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, contents, pagination)
}

// Get godoc
// @Summary Get content by id
// @Tags Contents
// @Produce json
// @Param id path string true "Content ID"
// @Success 200 {object} response.Envelope
// @Router /contents/{id} [get]
func (h *ContentHandler) Get(c *gin.Context) {
	content, err := h.service.Get(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, content, nil)
}

// Upload godoc
// @Summary Upload content file
// @Description Stores a file and its metadata under a batch
// @Tags Contents
// @Accept multipart/form-data
// @Produce json
// @Param batch_id formData string true "Batch ID"
// @Param title formData string true "Title"
// @Param description formData string false "Description"
// @Param file formData file true "File"
// @Success 201 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 415 {object} response.Envelope
// @Router /contents [post]
func (h *ContentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open upload"))
		return
	}
	defer file.Close()

	req := service.UploadContentRequest{
		BatchID:     c.PostForm("batch_id"),
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		FileName:    fileHeader.Filename,
		MimeType:    fileHeader.Header.Get("Content-Type"),
		SizeBytes:   fileHeader.Size,
	}

	content, err := h.service.Upload(c.Request.Context(), principalFromContext(c), req, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, content)
}

// Update godoc
// @Summary Update content metadata
// @Tags Contents
// @Accept json
// @Produce json
// @Param id path string true "Content ID"
// @Param payload body service.UpdateContentRequest true "Content payload"
// @Success 200 {object} response.Envelope
// @Router /contents/{id} [put]
func (h *ContentHandler) Update(c *gin.Context) {
	var req service.UpdateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	content, err := h.service.Update(c.Request.Context(), principalFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, content, nil)
}

// Delete godoc
// @Summary Delete content
// @Tags Contents
// @Produce json
// @Param id path string true "Content ID"
// @Success 204
// @Router /contents/{id} [delete]
func (h *ContentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), principalFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SignedURL godoc
// @Summary Issue signed download URL
// @Description Returns a time-limited URL for downloading the stored file
// @Tags Contents
// @Produce json
// @Param id path string true "Content ID"
// @Success 200 {object} response.Envelope
// @Router /contents/{id}/download-url [get]
func (h *ContentHandler) SignedURL(c *gin.Context) {
	download, err := h.service.SignedDownloadURL(c.Request.Context(), principalFromContext(c), c.Param("id"), h.basePath)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, download, nil)
}

// Download godoc
// @Summary Download content file
// @Description Streams the file referenced by a signed token
// @Tags Contents
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200
// @Failure 401 {object} response.Envelope
// @Router /contents/download [get]
func (h *ContentHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "token is required"))
		return
	}

	content, file, err := h.service.Download(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	c.Header("Content-Disposition", `attachment; filename="`+content.FileName+`"`)
	c.DataFromReader(http.StatusOK, content.SizeBytes, content.MimeType, file, nil)
}
