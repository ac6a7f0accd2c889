package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brocker-tv/backend/internal/auth"
)

func newRouter(jwt *auth.JWTService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger(zap.NewNop()), CORS("https://a.example,https://b.example"))
	r.GET("/api/user/:localUser/sessions", JWT(jwt, "brocker_token"), RequireLocalUser(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.MustGet(ContextUserID)})
	})
	return r
}

func get(r http.Handler, path string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWT_AndRequireLocalUser(t *testing.T) {
	jwt := auth.NewJWTService("secret", 1)
	token, err := jwt.Generate(5, "alice")
	require.NoError(t, err)
	r := newRouter(jwt)

	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/user/alice/sessions", nil).Code)

	w := get(r, "/api/user/alice/sessions", func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: "brocker_token", Value: token})
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":5}`, w.Body.String())

	w = get(r, "/api/user/bob/sessions", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = get(r, "/api/user/alice/sessions", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer not-a-jwt")
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCORS(t *testing.T) {
	r := newRouter(auth.NewJWTService("secret", 1))

	w := get(r, "/api/user/alice/sessions", func(req *http.Request) {
		req.Header.Set("Origin", "https://a.example")
	})
	assert.Equal(t, "https://a.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = get(r, "/api/user/alice/sessions", func(req *http.Request) {
		req.Header.Set("Origin", "https://evil.example")
	})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodOptions, "/api/user/alice/sessions", nil)
	req.Header.Set("Origin", "https://b.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
