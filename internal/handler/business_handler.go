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

// BusinessHandler handles institute endpoints.
type BusinessHandler struct {
	service *service.BusinessService
}

// NewBusinessHandler constructs a business handler.
func NewBusinessHandler(svc *service.BusinessService) *BusinessHandler {
	return &BusinessHandler{service: svc}
}

// List godoc
// @Summary List businesses
// @Tags Businesses
// @Produce json
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort field:direction"
// @Success 200 {object} response.Envelope
// @Router /businesses [get]
func (h *BusinessHandler) List(c *gin.Context) {
	filter := models.BusinessFilter{Search: strings.TrimSpace(c.Query("search"))}
	opts := query.ParseValues(c.Request.URL.Query())

	businesses, pagination, err := h.service.List(c.Request.Context(), principalFromContext(c), filter, opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, businesses, pagination)
}

// Get godoc
// @Summary Get business by id
// @Tags Businesses
// @Produce json
// @Param id path string true "Business ID"
// @Success 200 {object} response.Envelope
// @Router /businesses/{id} [get]
func (h *BusinessHandler) Get(c *gin.Context) {
	business, err := h.service.Get(c.Request.Context(), principalFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, business, nil)
}

// Create godoc
// @Summary Register business
// @Tags Businesses
// @Accept json
// @Produce json
// @Param payload body service.CreateBusinessRequest true "Business payload"
// @Success 201 {object} response.Envelope
// @Router /businesses [post]
func (h *BusinessHandler) Create(c *gin.Context) {
	var req service.CreateBusinessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	business, err := h.service.Create(c.Request.Context(), principalFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, business)
}

// Update godoc
// @Summary Update business
// @Tags Businesses
// @Accept json
// @Produce json
// @Param id path string true "Business ID"
// @Param payload body service.UpdateBusinessRequest true "Business payload"
// @Success 200 {object} response.Envelope
// @Router /businesses/{id} [put]
func (h *BusinessHandler) Update(c *gin.Context) {
	var req service.UpdateBusinessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	business, err := h.service.Update(c.Request.Context(), principalFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, business, nil)
}

// Delete godoc
// @Summary Delete business
// @Tags Businesses
// @Produce json
// @Param id path string true "Business ID"
// @Success 204
// @Router /businesses/{id} [delete]
func (h *BusinessHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), principalFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
