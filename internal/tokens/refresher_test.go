package tokens

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brocker-tv/backend/internal/models"
)

func TestOAuthRefresher_RefreshGrant(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"grant_type":    r.PostForm.Get("grant_type"),
			"refresh_token": r.PostForm.Get("refresh_token"),
			"client_id":     r.PostForm.Get("client_id"),
			"client_secret": r.PostForm.Get("client_secret"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","refresh_token":"rotated","expires_in":3600,"token_type":"bearer"}`))
	}))
	defer srv.Close()

	r := NewOAuthRefresher("cid", "secret", srv.URL+"/authorize", srv.URL+"/token", srv.Client())
	tok, err := r.Refresh(context.Background(), &models.Account{Platform: models.PlatformTwitch, RefreshToken: "r1"})

	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.Equal(t, "rotated", tok.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Expiry, time.Minute)
	assert.Equal(t, "refresh_token", gotForm["grant_type"])
	assert.Equal(t, "r1", gotForm["refresh_token"])
	assert.Equal(t, "cid", gotForm["client_id"])
	assert.Equal(t, "secret", gotForm["client_secret"])
}

func TestOAuthRefresher_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","expires_in":3599,"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	r := NewOAuthRefresher("cid", "secret", srv.URL+"/authorize", srv.URL+"/token", srv.Client())
	tok, err := r.Refresh(context.Background(), &models.Account{Platform: models.PlatformYouTube, RefreshToken: "keep-me"})

	require.NoError(t, err)
	assert.Equal(t, "keep-me", tok.RefreshToken)
}

func TestOAuthRefresher_RevokedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	r := NewOAuthRefresher("cid", "secret", srv.URL+"/authorize", srv.URL+"/token", srv.Client())
	_, err := r.Refresh(context.Background(), &models.Account{Platform: models.PlatformTwitch, RefreshToken: "revoked"})

	assert.Error(t, err)
}

func TestOAuthRefresher_NoRefreshToken(t *testing.T) {
	r := NewTwitchRefresher("cid", "secret", nil)
	_, err := r.Refresh(context.Background(), &models.Account{Platform: models.PlatformTwitch})
	assert.ErrorIs(t, err, ErrNoRefreshToken)
}
