package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/veduhub/institute-api/internal/models"
	"github.com/veduhub/institute-api/internal/service"
	"github.com/veduhub/institute-api/pkg/response"
)

type authRepoStub struct {
	user          *models.User
	refreshTokens map[string]*models.RefreshToken
}

func (s *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.user, nil
}

func (s *authRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	return s.user, nil
}

func (s *authRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (s *authRepoStub) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	return nil
}

func (s *authRepoStub) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	return nil
}

func (s *authRepoStub) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if s.refreshTokens == nil {
		s.refreshTokens = make(map[string]*models.RefreshToken)
	}
	s.refreshTokens[token.Token] = token
	return nil
}

func (s *authRepoStub) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if rt, ok := s.refreshTokens[token]; ok {
		return rt, nil
	}
	return nil, context.Canceled
}

func (s *authRepoStub) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	return nil
}

func newAuthRouter(repo *authRepoStub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := service.NewAuthService(repo, nil, nil, nil, service.AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: time.Hour,
	})
	h := NewAuthHandler(svc)
	r := gin.New()
	r.POST("/auth/login", h.Login)
	return r
}

func TestAuthHandlerLogin(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &authRepoStub{user: &models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(hash), Active: true, Role: models.RoleAdmin}}
	r := newAuthRouter(repo)

	body, _ := json.Marshal(models.LoginRequest{Email: "user@example.com", Password: "password"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	data, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, data["access_token"])
	assert.NotEmpty(t, data["refresh_token"])
}

func TestAuthHandlerLoginInvalidBody(t *testing.T) {
	r := newAuthRouter(&authRepoStub{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader([]byte("not-json")))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandlerLoginWrongPassword(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &authRepoStub{user: &models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(hash), Active: true}}
	r := newAuthRouter(repo)

	body, _ := json.Marshal(models.LoginRequest{Email: "user@example.com", Password: "nope"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
