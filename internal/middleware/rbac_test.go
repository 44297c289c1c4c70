package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/veduhub/institute-api/internal/models"
)

func rbacRouter(claims *models.JWTClaims, allowed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
		c.Next()
	})
	r.GET("/resource/:id", RBAC(allowed...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRBACAllowsRole(t *testing.T) {
	r := rbacRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleAdmin}, "ADMIN", "SUPERADMIN")
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/resource/x", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRBACDeniesRole(t *testing.T) {
	r := rbacRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleStudent}, "ADMIN")
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/resource/x", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACSelfAccess(t *testing.T) {
	r := rbacRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleStudent}, "ADMIN", "SELF")
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/resource/u1", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/resource/u2", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACNoClaims(t *testing.T) {
	r := rbacRouter(nil, "ADMIN")
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/resource/x", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
