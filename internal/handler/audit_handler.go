package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veduhub/institute-api/internal/models"
	"github.com/veduhub/institute-api/internal/service"
	"github.com/veduhub/institute-api/pkg/query"
	"github.com/veduhub/institute-api/pkg/response"
)

// AuditHandler exposes the audit trail.
type AuditHandler struct {
	service *service.AuditService
}

// NewAuditHandler constructs an audit handler.
func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{service: svc}
}

// List godoc
// @Summary List audit logs
// @Description SUPERADMIN sees every entry; other callers are scoped to their business
// @Tags Audit
// @Produce json
// @Param user_id query string false "Filter by user"
// @Param action query string false "Filter by action"
// @Param resource query string false "Filter by resource"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	filter := models.AuditFilter{
		UserID:   c.Query("user_id"),
		Action:   c.Query("action"),
		Resource: c.Query("resource"),
	}

	claims := claimsFromContext(c)
	if claims != nil && claims.Role != models.RoleSuperAdmin {
		if claims.BusinessID == nil {
			response.JSON(c, http.StatusOK, []models.AuditLog{}, &models.Pagination{Page: 1})
			return
		}
		filter.BusinessID = *claims.BusinessID
	}

	opts := query.ParseValues(c.Request.URL.Query())
	entries, pagination, err := h.service.List(c.Request.Context(), filter, opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}
