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

// CourseHandler handles course endpoints including subject mappings.
type CourseHandler struct {
	service *service.CourseService
}

// NewCourseHandler constructs a course handler.
func NewCourseHandler(svc *service.CourseService) *CourseHandler {
	return &CourseHandler{service: svc}
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Param exam_id query string false "Filter by exam"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	filter := models.CourseFilter{
		ExamID: c.Query("exam_id"),
		Search: strings.TrimSpace(c.Query("search")),
	}
	opts := query.ParseValues(c.Request.URL.Query())

	courses, pagination, err := h.service.List(c.Request.Context(), principalFromContext(c), filter, opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// Get godoc
// @Summary Get course by id
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.service.Get(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Create godoc
// @Summary Create course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body service.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req service.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.service.Create(c.Request.Context(), principalFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Update course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.UpdateCourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	var req service.UpdateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	course, err := h.service.Update(c.Request.Context(), principalFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Delete godoc
// @Summary Delete course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 204
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), principalFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListSubjects godoc
// @Summary List subjects attached to a course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/subjects [get]
func (h *CourseHandler) ListSubjects(c *gin.Context) {
	subjects, err := h.service.ListSubjects(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, nil)
}

// AttachSubject godoc
// @Summary Attach subject to course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body map[string]string true "Subject ID"
// @Success 204
// @Router /courses/{id}/subjects [post]
func (h *CourseHandler) AttachSubject(c *gin.Context) {
	var payload struct {
		SubjectID string `json:"subject_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "subject_id required"))
		return
	}
	if err := h.service.AttachSubject(c.Request.Context(), principalFromContext(c), c.Param("id"), payload.SubjectID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DetachSubject godoc
// @Summary Detach subject from course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Param subjectId path string true "Subject ID"
// @Success 204
// @Router /courses/{id}/subjects/{subjectId} [delete]
func (h *CourseHandler) DetachSubject(c *gin.Context) {
	if err := h.service.DetachSubject(c.Request.Context(), principalFromContext(c), c.Param("id"), c.Param("subjectId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
