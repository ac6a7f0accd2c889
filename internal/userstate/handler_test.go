package userstate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu     sync.Mutex
	states map[string]json.RawMessage
}

func (m *memStore) Get(_ context.Context, u string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[u], nil
}

func (m *memStore) Put(_ context.Context, u string, s json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[u] = s
	return nil
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(&memStore{states: map[string]json.RawMessage{}}, nil)
	r := gin.New()
	r.GET("/api/user/:localUser/state", h.Get)
	r.POST("/api/user/:localUser/state", h.Put)
	return r
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func TestState_MissingIsNull(t *testing.T) {
	w := serve(newRouter(), http.MethodGet, "/api/user/alice/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"state":null}`, w.Body.String())
}

func TestState_RoundTrip(t *testing.T) {
	r := newRouter()
	w := serve(r, http.MethodPost, "/api/user/alice/state", `{"xp":120,"level":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	w = serve(r, http.MethodGet, "/api/user/alice/state", "")
	assert.JSONEq(t, `{"state":{"xp":120,"level":3}}`, w.Body.String())

	w = serve(r, http.MethodGet, "/api/user/bob/state", "")
	assert.JSONEq(t, `{"state":null}`, w.Body.String())
}

func TestState_EmptyBodyStoresObject(t *testing.T) {
	r := newRouter()
	require.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/user/alice/state", "").Code)
	assert.JSONEq(t, `{"state":{}}`, serve(r, http.MethodGet, "/api/user/alice/state", "").Body.String())
}

func TestState_RejectsInvalid(t *testing.T) {
	r := newRouter()
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/api/user/alice/state", `{xp:`).Code)
	big := `{"blob":"` + strings.Repeat("x", maxStateBytes) + `"}`
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/api/user/alice/state", big).Code)
}
