package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/veduhub/institute-api/internal/models"
	"github.com/veduhub/institute-api/internal/service"
	appErrors "github.com/veduhub/institute-api/pkg/errors"
	"github.com/veduhub/institute-api/pkg/query"
	"github.com/veduhub/institute-api/pkg/response"
)

// BatchHandler handles batch endpoints: CRUD, memberships and roster export.
type BatchHandler struct {
	service *service.BatchService
}

// NewBatchHandler constructs a batch handler.
func NewBatchHandler(svc *service.BatchService) *BatchHandler {
	return &BatchHandler{service: svc}
}

// List godoc
// @Summary List batches
// @Tags Batches
// @Produce json
// @Param course_id query string false "Filter by course"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /batches [get]
func (h *BatchHandler) List(c *gin.Context) {
	filter := models.BatchFilter{
		CourseID: c.Query("course_id"),
		Search:   strings.TrimSpace(c.Query("search")),
	}
	opts := query.ParseValues(c.Request.URL.Query())

	batches, pagination, err := h.service.List(c.Request.Context(), principalFromContext(c), filter, opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batches, pagination)
}

// Get godoc
// @Summary Get batch by id
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /batches/{id} [get]
func (h *BatchHandler) Get(c *gin.Context) {
	batch, err := h.service.Get(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// Create godoc
// @Summary Create batch
// @Tags Batches
// @Accept json
// @Produce json
// @Param payload body service.CreateBatchRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Router /batches [post]
func (h *BatchHandler) Create(c *gin.Context) {
	var req service.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	batch, err := h.service.Create(c.Request.Context(), principalFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, batch)
}

// Update godoc
// @Summary Update batch
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body service.UpdateBatchRequest true "Batch payload"
// @Success 200 {object} response.Envelope
// @Router /batches/{id} [put]
func (h *BatchHandler) Update(c *gin.Context) {
	var req service.UpdateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	batch, err := h.service.Update(c.Request.Context(), principalFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batch, nil)
}

// Delete godoc
// @Summary Delete batch
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 204
// @Router /batches/{id} [delete]
func (h *BatchHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), principalFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListTeachers godoc
// @Summary List batch teachers
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/teachers [get]
func (h *BatchHandler) ListTeachers(c *gin.Context) {
	members, err := h.service.ListTeachers(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, members, nil)
}

// ListStudents godoc
// @Summary List batch students
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Router /batches/{id}/students [get]
func (h *BatchHandler) ListStudents(c *gin.Context) {
	members, err := h.service.ListStudents(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, members, nil)
}

// AddTeacher godoc
// @Summary Attach teacher to batch
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body service.BatchMemberRequest true "Membership payload"
// @Success 204
// @Router /batches/{id}/teachers [post]
func (h *BatchHandler) AddTeacher(c *gin.Context) {
	var req service.BatchMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.service.AddTeacher(c.Request.Context(), principalFromContext(c), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddStudent godoc
// @Summary Enroll student into batch
// @Tags Batches
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param payload body service.BatchMemberRequest true "Membership payload"
// @Success 204
// @Router /batches/{id}/students [post]
func (h *BatchHandler) AddStudent(c *gin.Context) {
	var req service.BatchMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.service.AddStudent(c.Request.Context(), principalFromContext(c), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetTeacherActive godoc
// @Summary Toggle teacher membership
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Param userId path string true "User ID"
// @Param active query bool true "Active flag"
// @Success 204
// @Router /batches/{id}/teachers/{userId} [patch]
func (h *BatchHandler) SetTeacherActive(c *gin.Context) {
	active, err := strconv.ParseBool(c.DefaultQuery("active", "true"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "active must be a boolean"))
		return
	}
	if err := h.service.SetTeacherActive(c.Request.Context(), principalFromContext(c), c.Param("id"), c.Param("userId"), active); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetStudentActive godoc
// @Summary Toggle student membership
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Param userId path string true "User ID"
// @Param active query bool true "Active flag"
// @Success 204
// @Router /batches/{id}/students/{userId} [patch]
func (h *BatchHandler) SetStudentActive(c *gin.Context) {
	active, err := strconv.ParseBool(c.DefaultQuery("active", "true"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "active must be a boolean"))
		return
	}
	if err := h.service.SetStudentActive(c.Request.Context(), principalFromContext(c), c.Param("id"), c.Param("userId"), active); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemoveTeacher godoc
// @Summary Remove a teacher from a batch
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Param userId path string true "User ID"
// @Success 204
// @Router /batches/{id}/teachers/{userId} [delete]
func (h *BatchHandler) RemoveTeacher(c *gin.Context) {
	if err := h.service.RemoveTeacher(c.Request.Context(), principalFromContext(c), c.Param("id"), c.Param("userId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemoveStudent godoc
// @Summary Remove a student from a batch
// @Tags Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Param userId path string true "User ID"
// @Success 204
// @Router /batches/{id}/students/{userId} [delete]
func (h *BatchHandler) RemoveStudent(c *gin.Context) {
	if err := h.service.RemoveStudent(c.Request.Context(), principalFromContext(c), c.Param("id"), c.Param("userId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ExportRoster godoc
// @Summary Export batch roster
// @Description Renders the student roster as CSV or PDF
// @Tags Batches
// @Produce octet-stream
// @Param id path string true "Batch ID"
// @Param format query string false "csv or pdf"
// @Success 200
// @Router /batches/{id}/roster/export [get]
func (h *BatchHandler) ExportRoster(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	out, err := h.service.ExportRoster(c.Request.Context(), principalFromContext(c), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.FileName))
	c.Data(http.StatusOK, out.ContentType, out.Data)
}
