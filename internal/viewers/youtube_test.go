package viewers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brocker-tv/backend/internal/models"
)

func youtubeAccount() *models.Account {
	return &models.Account{Platform: models.PlatformYouTube, PlatformUserID: "UC123", AccessToken: "ya29"}
}

func youtubeServer(t *testing.T, search, videos string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ya29", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/youtube/v3/search":
			assert.Equal(t, "UC123", r.URL.Query().Get("channelId"))
			assert.Equal(t, "live", r.URL.Query().Get("eventType"))
			_, _ = w.Write([]byte(search))
		case "/youtube/v3/videos":
			assert.Equal(t, "vid1", r.URL.Query().Get("id"))
			assert.Equal(t, "liveStreamingDetails", r.URL.Query().Get("part"))
			_, _ = w.Write([]byte(videos))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestYouTube_FetchViewerCount_Live(t *testing.T) {
	srv := youtubeServer(t,
		`{"items":[{"id":{"kind":"youtube#video","videoId":"vid1"}}]}`,
		`{"items":[{"liveStreamingDetails":{"concurrentViewers":"321"}}]}`)
	defer srv.Close()

	n, err := NewYouTube(YouTubeConfig{APIBase: srv.URL}, srv.Client()).FetchViewerCount(context.Background(), youtubeAccount())

	require.NoError(t, err)
	assert.Equal(t, 321, n)
}

func TestYouTube_FetchViewerCount_NoBroadcast(t *testing.T) {
	srv := youtubeServer(t, `{"items":[]}`, `unused`)
	defer srv.Close()

	n, err := NewYouTube(YouTubeConfig{APIBase: srv.URL}, srv.Client()).FetchViewerCount(context.Background(), youtubeAccount())

	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestYouTube_FetchViewerCount_MissingDetails(t *testing.T) {
	srv := youtubeServer(t,
		`{"items":[{"id":{"videoId":"vid1"}}]}`,
		`{"items":[{}]}`)
	defer srv.Close()

	n, err := NewYouTube(YouTubeConfig{APIBase: srv.URL}, srv.Client()).FetchViewerCount(context.Background(), youtubeAccount())

	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestYouTube_FetchViewerCount_BadCount(t *testing.T) {
	srv := youtubeServer(t,
		`{"items":[{"id":{"videoId":"vid1"}}]}`,
		`{"items":[{"liveStreamingDetails":{"concurrentViewers":"lots"}}]}`)
	defer srv.Close()

	n, err := NewYouTube(YouTubeConfig{APIBase: srv.URL}, srv.Client()).FetchViewerCount(context.Background(), youtubeAccount())

	assert.Error(t, err)
	assert.Zero(t, n)
}

func TestYouTube_FetchViewerCount_QuotaExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"quotaExceeded"}}`))
	}))
	defer srv.Close()

	n, err := NewYouTube(YouTubeConfig{APIBase: srv.URL}, srv.Client()).FetchViewerCount(context.Background(), youtubeAccount())

	assert.ErrorIs(t, err, ErrUpstream)
	assert.Zero(t, n)
}

func TestRegistry_Get(t *testing.T) {
	reg := NewRegistry(NewTwitch(TwitchConfig{}, nil), NewYouTube(YouTubeConfig{}, nil))

	a, ok := reg.Get(models.PlatformTwitch)
	require.True(t, ok)
	assert.Equal(t, models.PlatformTwitch, a.Platform())

	_, ok = reg.Get(models.PlatformYouTube)
	assert.True(t, ok)

	_, ok = reg.Get(models.PlatformSteam)
	assert.False(t, ok)
	_, ok = reg.Get(models.Platform("kick"))
	assert.False(t, ok)

	_, isTotal := a.(TotalViewsFetcher)
	assert.True(t, isTotal)
}

func TestNewLimiter(t *testing.T) {
	assert.Equal(t, 13, newLimiter(800).Burst())
	assert.Equal(t, 1, newLimiter(30).Burst())
	assert.True(t, newLimiter(0).Allow())
}
