// Package oauth links platform accounts through OAuth authorization-code
// flows (Twitch, Google/YouTube) and Steam OpenID.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/brocker-tv/backend/internal/models"
	"github.com/brocker-tv/backend/internal/tokens"
)

// Default API roots used to identify the granting user.
const (
	TwitchAPIBase = "https://api.twitch.tv"
	GoogleAPIBase = "https://www.googleapis.com"
)

// ErrNoIdentity is returned when a platform answers without a usable user id.
var ErrNoIdentity = errors.New("provider returned no user identity")

// Identity is the platform user behind a granted token.
type Identity struct {
	PlatformUserID string
	Username       string // local username proposed for the register intent
	Email          string
}

// ProviderConfig configures one authorization-code provider. Empty URLs use the platform defaults.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIBase      string
}

type identifyFunc func(ctx context.Context, client *http.Client, p *Provider) (*Identity, error)

// Provider is one OAuth authorization-code flow.
type Provider struct {
	Platform models.Platform
	Label    string
	Config   *oauth2.Config
	options  []oauth2.AuthCodeOption
	apiBase  string
	identify identifyFunc
}

// NewTwitchProvider returns the id.twitch.tv flow. Identity comes from Helix /users.
func NewTwitchProvider(cfg ProviderConfig) *Provider {
	return &Provider{
		Platform: models.PlatformTwitch,
		Label:    "Twitch",
		Config:   newConfig(cfg, tokens.TwitchAuthURL, tokens.TwitchTokenURL, "user:read:email", "openid"),
		apiBase:  orDefault(cfg.APIBase, TwitchAPIBase),
		identify: twitchIdentity,
	}
}

// NewGoogleProvider returns the Google flow with read-only YouTube scope,
// offline access and forced consent so a refresh token is always issued.
func NewGoogleProvider(cfg ProviderConfig) *Provider {
	return &Provider{
		Platform: models.PlatformYouTube,
		Label:    "YouTube/Google",
		Config: newConfig(cfg, tokens.GoogleAuthURL, tokens.GoogleTokenURL,
			"openid", "email", "profile", "https://www.googleapis.com/auth/youtube.readonly"),
		options:  []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.ApprovalForce},
		apiBase:  orDefault(cfg.APIBase, GoogleAPIBase),
		identify: googleIdentity,
	}
}

// Configured reports whether client credentials are present.
func (p *Provider) Configured() bool {
	return p.Config.ClientID != ""
}

// AuthCodeURL returns the consent page URL carrying state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.Config.AuthCodeURL(state, p.options...)
}

// Exchange trades an authorization code for a token and identifies its owner.
func (p *Provider) Exchange(ctx context.Context, httpClient *http.Client, code string) (*oauth2.Token, *Identity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	tok, err := p.Config.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("exchange %s code: %w", p.Platform, err)
	}
	id, err := p.identify(ctx, p.Config.Client(ctx, tok), p)
	if err != nil {
		return nil, nil, fmt.Errorf("identify %s user: %w", p.Platform, err)
	}
	return tok, id, nil
}

func twitchIdentity(ctx context.Context, client *http.Client, p *Provider) (*Identity, error) {
	var body struct {
		Data []struct {
			ID    string `json:"id"`
			Login string `json:"login"`
			Email string `json:"email"`
		} `json:"data"`
	}
	h := http.Header{}
	h.Set("Client-ID", p.Config.ClientID)
	if err := getJSON(ctx, client, p.apiBase+"/helix/users", h, &body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, ErrNoIdentity
	}
	u := body.Data[0]
	id := orDefault(u.Login, u.ID)
	if id == "" {
		return nil, ErrNoIdentity
	}
	return &Identity{PlatformUserID: id, Username: id, Email: u.Email}, nil
}

// googleIdentity stores the YouTube channel id as the platform user id, since
// the viewer adapter searches by channel. Accounts without a channel keep the email.
func googleIdentity(ctx context.Context, client *http.Client, p *Provider) (*Identity, error) {
	var info struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := getJSON(ctx, client, p.apiBase+"/oauth2/v2/userinfo", nil, &info); err != nil {
		return nil, err
	}
	name := orDefault(info.Email, info.ID)
	if name == "" {
		return nil, ErrNoIdentity
	}

	var channels struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	channelID := ""
	if err := getJSON(ctx, client, p.apiBase+"/youtube/v3/channels?part=id&mine=true", nil, &channels); err == nil && len(channels.Items) > 0 {
		channelID = channels.Items[0].ID
	}
	return &Identity{PlatformUserID: orDefault(channelID, name), Username: name, Email: info.Email}, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, header http.Header, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s", req.URL.Path, resp.StatusCode, snippet)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func newConfig(cfg ProviderConfig, authURL, tokenURL string, scopes ...string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   orDefault(cfg.AuthURL, authURL),
			TokenURL:  orDefault(cfg.TokenURL, tokenURL),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
