package middleware

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/veduhub/institute-api/internal/models"
	"github.com/veduhub/institute-api/internal/service"
)

// Audit records an audit entry after successful requests. The entry goes
// through the async audit queue so the response is never delayed by the write.
func Audit(audit *service.AuditService, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		var userID *string
		var businessID *string
		if claimsValue, ok := c.Get(ContextUserKey); ok {
			claims := claimsValue.(*models.JWTClaims)
			userID = &claims.UserID
			businessID = claims.BusinessID
		}

		var resourceID *string
		if id := c.Param("id"); id != "" {
			resourceID = &id
		}

		body, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		audit.Record(c.Request.Context(), &models.AuditLog{
			UserID:     userID,
			BusinessID: businessID,
			Action:     action,
			Resource:   resource,
			ResourceID: resourceID,
			NewValues:  body,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
		})
	}
}
