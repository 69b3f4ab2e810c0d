package middleware

import (
	"edutest_backend/internal/config"
	"edutest_backend/internal/model"
	"edutest_backend/internal/util"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(cfg), func(c *gin.Context) {
		c.String(http.StatusOK, util.GetUserFromContext(c).Name)
	})
	r.GET("/teacher", AuthMiddleware(cfg), RoleMiddleware(model.Teacher), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func token(t *testing.T, cfg *config.Config, role model.UserRole) string {
	t.Helper()
	tok, err := util.GenerateJWT(&model.User{ID: "u1", Name: "Lan", Role: role}, cfg.JWT.Secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestAuthMiddleware(t *testing.T) {
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "secret"}}
	r := testRouter(cfg)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, cfg, model.Student))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Lan", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token="+token(t, cfg, model.Student), nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoleMiddleware(t *testing.T) {
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "secret"}}
	r := testRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/teacher", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, cfg, model.Student))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/teacher", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, cfg, model.Teacher))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
