package tokens

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/brocker-tv/backend/internal/models"
)

// Token endpoints for the refresh-token grant.
const (
	TwitchTokenURL = "https://id.twitch.tv/oauth2/token"
	TwitchAuthURL  = "https://id.twitch.tv/oauth2/authorize"
	GoogleTokenURL = "https://oauth2.googleapis.com/token"
	GoogleAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
)

// ErrNoRefreshToken is returned when an account cannot be refreshed because it never received a refresh token.
var ErrNoRefreshToken = errors.New("account has no refresh token")

// Refresher exchanges an account's refresh token for a new token set.
type Refresher interface {
	Refresh(ctx context.Context, account *models.Account) (*oauth2.Token, error)
}

// OAuthRefresher runs the refresh-token grant against one platform's token endpoint.
type OAuthRefresher struct {
	cfg        *oauth2.Config
	httpClient *http.Client
}

// NewOAuthRefresher creates a refresher for the given client credentials and endpoint.
// Both Twitch and Google accept client credentials in the form body.
func NewOAuthRefresher(clientID, clientSecret, authURL, tokenURL string, httpClient *http.Client) *OAuthRefresher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OAuthRefresher{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

// NewTwitchRefresher returns a refresher for id.twitch.tv.
func NewTwitchRefresher(clientID, clientSecret string, httpClient *http.Client) *OAuthRefresher {
	return NewOAuthRefresher(clientID, clientSecret, TwitchAuthURL, TwitchTokenURL, httpClient)
}

// NewYouTubeRefresher returns a refresher for oauth2.googleapis.com.
func NewYouTubeRefresher(clientID, clientSecret string, httpClient *http.Client) *OAuthRefresher {
	return NewOAuthRefresher(clientID, clientSecret, GoogleAuthURL, GoogleTokenURL, httpClient)
}

// Refresh implements Refresher. A refresh token missing from the response
// keeps the previous one (Google never rotates it).
func (r *OAuthRefresher) Refresh(ctx context.Context, account *models.Account) (*oauth2.Token, error) {
	if account.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	tok, err := r.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: account.RefreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh %s token: %w", account.Platform, err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = account.RefreshToken
	}
	return tok, nil
}
