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

// ExamHandler handles exam endpoints.
type ExamHandler struct {
	service *service.ExamService
}

// NewExamHandler constructs an exam handler.
func NewExamHandler(svc *service.ExamService) *ExamHandler {
	return &ExamHandler{service: svc}
}

// List godoc
// @Summary List exams
// @Tags Exams
// @Produce json
// @Param search query string false "Search keyword"
// @Param fields query string false "Comma separated field projection"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort field:direction"
// @Success 200 {object} response.Envelope
// @Router /exams [get]
func (h *ExamHandler) List(c *gin.Context) {
	filter := models.ExamFilter{Search: strings.TrimSpace(c.Query("search"))}
	opts := query.ParseValues(c.Request.URL.Query())

	exams, pagination, err := h.service.List(c.Request.Context(), principalFromContext(c), filter, opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exams, pagination)
}

// Get godoc
// @Summary Get exam by id
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Router /exams/{id} [get]
func (h *ExamHandler) Get(c *gin.Context) {
	exam, err := h.service.Get(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// Create godoc
// @Summary Create exam
// @Tags Exams
// @Accept json
// @Produce json
// @Param payload body service.CreateExamRequest true "Exam payload"
// @Success 201 {object} response.Envelope
// @Router /exams [post]
func (h *ExamHandler) Create(c *gin.Context) {
	var req service.CreateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	exam, err := h.service.Create(c.Request.Context(), principalFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, exam)
}

// Update godoc
// @Summary Update exam
// @Tags Exams
// @Accept json
// @Produce json
// @Param id path string true "Exam ID"
// @Param payload body service.UpdateExamRequest true "Exam payload"
// @Success 200 {object} response.Envelope
// @Router /exams/{id} [put]
func (h *ExamHandler) Update(c *gin.Context) {
	var req service.UpdateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	exam, err := h.service.Update(c.Request.Context(), principalFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// Delete godoc
// @Summary Delete exam
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 204
// @Router /exams/{id} [delete]
func (h *ExamHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), principalFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
