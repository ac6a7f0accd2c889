package viewers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/brocker-tv/backend/internal/models"
)

// TwitchAPIBase is the Helix API root.
const TwitchAPIBase = "https://api.twitch.tv"

// TwitchConfig configures the Twitch Helix adapter.
type TwitchConfig struct {
	APIBase    string
	ClientID   string // used when the account row has no client id
	RatePerMin int
}

// Twitch reads viewer counts from Helix.
type Twitch struct {
	cfg    TwitchConfig
	client *apiClient
}

// NewTwitch creates a Twitch adapter.
func NewTwitch(cfg TwitchConfig, httpClient *http.Client) *Twitch {
	if cfg.APIBase == "" {
		cfg.APIBase = TwitchAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Twitch{cfg: cfg, client: &apiClient{http: httpClient, limiter: newLimiter(cfg.RatePerMin)}}
}

// Platform implements Adapter.
func (t *Twitch) Platform() models.Platform { return models.PlatformTwitch }

// FetchViewerCount implements Adapter via GET /helix/streams?user_login=.
func (t *Twitch) FetchViewerCount(ctx context.Context, account *models.Account) (int, error) {
	if account.PlatformUserID == "" {
		return 0, ErrNoChannel
	}
	var body struct {
		Data []struct {
			ViewerCount int `json:"viewer_count"`
		} `json:"data"`
	}
	u := t.cfg.APIBase + "/helix/streams?user_login=" + url.QueryEscape(account.PlatformUserID)
	if err := t.client.getJSON(ctx, u, t.headers(account), &body); err != nil {
		return 0, err
	}
	if len(body.Data) == 0 || body.Data[0].ViewerCount < 0 {
		return 0, nil
	}
	return body.Data[0].ViewerCount, nil
}

// FetchTotalViews implements TotalViewsFetcher via GET /helix/users?login=.
// Returns nil when the user is unknown or the field is absent.
func (t *Twitch) FetchTotalViews(ctx context.Context, account *models.Account) (*int64, error) {
	if account.PlatformUserID == "" {
		return nil, ErrNoChannel
	}
	var body struct {
		Data []struct {
			ViewCount *int64 `json:"view_count"`
		} `json:"data"`
	}
	u := t.cfg.APIBase + "/helix/users?login=" + url.QueryEscape(account.PlatformUserID)
	if err := t.client.getJSON(ctx, u, t.headers(account), &body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, nil
	}
	return body.Data[0].ViewCount, nil
}

func (t *Twitch) headers(account *models.Account) http.Header {
	clientID := account.ClientID
	if clientID == "" {
		clientID = t.cfg.ClientID
	}
	h := http.Header{}
	h.Set("Client-ID", clientID)
	h.Set("Authorization", "Bearer "+account.AccessToken)
	return h
}
