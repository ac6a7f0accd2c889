// Package viewers queries streaming platforms for live viewer counts.
package viewers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/brocker-tv/backend/internal/models"
)

var (
	// ErrUpstream wraps any non-2xx answer from a platform API.
	ErrUpstream = errors.New("upstream api error")
	// ErrNoChannel is returned when the account has no channel/login to query.
	ErrNoChannel = errors.New("account has no platform user id")
	// ErrRateLimited is returned when the local limiter would not grant a call in time.
	ErrRateLimited = errors.New("rate limited")
)

// Adapter fetches the current live viewer count for a linked account.
// A channel that is not live reports 0, the same as a live channel with no viewers.
type Adapter interface {
	Platform() models.Platform
	FetchViewerCount(ctx context.Context, account *models.Account) (int, error)
}

// TotalViewsFetcher is implemented by adapters that can report a channel's lifetime view count.
type TotalViewsFetcher interface {
	FetchTotalViews(ctx context.Context, account *models.Account) (*int64, error)
}

// Registry selects the adapter for a platform.
type Registry struct {
	adapters map[models.Platform]Adapter
}

// NewRegistry creates a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Platform]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

// Get returns the adapter for p, if any.
func (r *Registry) Get(p models.Platform) (Adapter, bool) {
	a, ok := r.adapters[p]
	return a, ok
}

// newLimiter builds a limiter for perMin calls per minute; perMin <= 0 disables limiting.
func newLimiter(perMin int) *rate.Limiter {
	if perMin <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := perMin / 60
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), burst)
}

type apiClient struct {
	http    *http.Client
	limiter *rate.Limiter
}

func (c *apiClient) getJSON(ctx context.Context, url string, header http.Header, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, snippet)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
