package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/veduhub/institute-api/internal/authz"
	"github.com/veduhub/institute-api/internal/middleware"
	"github.com/veduhub/institute-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// principalFromContext converts stored JWT claims into the principal the
// service layer authorizes against. Returns the zero principal when the
// request carries no claims; authorization then fails closed.
func principalFromContext(c *gin.Context) authz.Principal {
	claims := claimsFromContext(c)
	if claims == nil {
		return authz.Principal{}
	}
	return authz.Principal{
		UserID:     claims.UserID,
		Role:       claims.Role,
		BusinessID: claims.BusinessID,
	}
}
