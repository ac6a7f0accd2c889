package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/brocker-tv/backend/internal/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListByUser(ctx context.Context, localUser string) ([]models.Account, error) {
	args := m.Called(ctx, localUser)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Account), args.Error(1)
}

func (m *MockStore) DeleteByUserAndPlatform(ctx context.Context, localUser string, platform models.Platform) (int64, error) {
	args := m.Called(ctx, localUser, platform)
	return args.Get(0).(int64), args.Error(1)
}

func setupRouter(store Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(store, nil)
	r := gin.New()
	r.GET("/api/user/:localUser/accounts", h.List)
	r.DELETE("/api/user/:localUser/accounts/:platform", h.Delete)
	return r
}

func TestList_HidesTokens(t *testing.T) {
	store := new(MockStore)
	store.On("ListByUser", mock.Anything, "alice").Return([]models.Account{
		{ID: 1, LocalUser: "alice", Platform: models.PlatformTwitch, PlatformUserID: "streamer", AccessToken: "secret-at", RefreshToken: "secret-rt"},
	}, nil)

	w := httptest.NewRecorder()
	setupRouter(store).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/user/alice/accounts", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret-")
	var body struct {
		Accounts []models.Account `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Accounts, 1)
	assert.Equal(t, "streamer", body.Accounts[0].PlatformUserID)
	store.AssertExpectations(t)
}

func TestList_EmptyIsArray(t *testing.T) {
	store := new(MockStore)
	store.On("ListByUser", mock.Anything, "bob").Return(nil, nil)

	w := httptest.NewRecorder()
	setupRouter(store).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/user/bob/accounts", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"accounts":[]}`, w.Body.String())
}

func TestList_StoreError(t *testing.T) {
	store := new(MockStore)
	store.On("ListByUser", mock.Anything, "bob").Return(nil, errors.New("db down"))

	w := httptest.NewRecorder()
	setupRouter(store).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/user/bob/accounts", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestDelete_NormalizesGoogleAlias(t *testing.T) {
	store := new(MockStore)
	store.On("DeleteByUserAndPlatform", mock.Anything, "alice", models.PlatformYouTube).Return(int64(2), nil)

	w := httptest.NewRecorder()
	setupRouter(store).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/user/alice/accounts/Google", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":2}`, w.Body.String())
	store.AssertExpectations(t)
}
