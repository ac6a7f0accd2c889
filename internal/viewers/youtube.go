package viewers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/brocker-tv/backend/internal/models"
)

// YouTubeAPIBase is the Data API root.
const YouTubeAPIBase = "https://www.googleapis.com"

// YouTubeConfig configures the YouTube Data API adapter.
type YouTubeConfig struct {
	APIBase    string
	RatePerMin int
}

// YouTube reads concurrent viewers of a channel's active live broadcast.
type YouTube struct {
	cfg    YouTubeConfig
	client *apiClient
}

// NewYouTube creates a YouTube adapter.
func NewYouTube(cfg YouTubeConfig, httpClient *http.Client) *YouTube {
	if cfg.APIBase == "" {
		cfg.APIBase = YouTubeAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &YouTube{cfg: cfg, client: &apiClient{http: httpClient, limiter: newLimiter(cfg.RatePerMin)}}
}

// Platform implements Adapter.
func (y *YouTube) Platform() models.Platform { return models.PlatformYouTube }

// FetchViewerCount implements Adapter. It searches the channel for a live
// broadcast, then reads liveStreamingDetails.concurrentViewers of that video.
func (y *YouTube) FetchViewerCount(ctx context.Context, account *models.Account) (int, error) {
	if account.PlatformUserID == "" {
		return 0, ErrNoChannel
	}
	videoID, err := y.liveVideoID(ctx, account)
	if err != nil || videoID == "" {
		return 0, err
	}

	var videos struct {
		Items []struct {
			LiveStreamingDetails *struct {
				ConcurrentViewers string `json:"concurrentViewers"`
			} `json:"liveStreamingDetails"`
		} `json:"items"`
	}
	q := url.Values{"part": {"liveStreamingDetails"}, "id": {videoID}}
	if err := y.client.getJSON(ctx, y.cfg.APIBase+"/youtube/v3/videos?"+q.Encode(), y.headers(account), &videos); err != nil {
		return 0, err
	}
	if len(videos.Items) == 0 || videos.Items[0].LiveStreamingDetails == nil {
		return 0, nil
	}
	raw := videos.Items[0].LiveStreamingDetails.ConcurrentViewers
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse concurrentViewers %q: %w", raw, err)
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

func (y *YouTube) liveVideoID(ctx context.Context, account *models.Account) (string, error) {
	var search struct {
		Items []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
		} `json:"items"`
	}
	q := url.Values{
		"part":      {"snippet"},
		"channelId": {account.PlatformUserID},
		"eventType": {"live"},
		"type":      {"video"},
	}
	if err := y.client.getJSON(ctx, y.cfg.APIBase+"/youtube/v3/search?"+q.Encode(), y.headers(account), &search); err != nil {
		return "", err
	}
	if len(search.Items) == 0 {
		return "", nil
	}
	return search.Items[0].ID.VideoID, nil
}

func (y *YouTube) headers(account *models.Account) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+account.AccessToken)
	return h
}
