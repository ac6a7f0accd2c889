package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// SteamLoginURL is the Steam OpenID 2.0 endpoint.
const SteamLoginURL = "https://steamcommunity.com/openid/login"

const (
	openIDNamespace  = "http://specs.openid.net/auth/2.0"
	openIDIdentifier = "http://specs.openid.net/auth/2.0/identifier_select"
)

// ErrInvalidAssertion is returned when a Steam callback cannot be verified.
var ErrInvalidAssertion = errors.New("invalid openid assertion")

var steamIDPattern = regexp.MustCompile(`openid/id/(\d+)$`)

// Steam drives the OpenID 2.0 login. Steam grants no tokens, only the 64-bit SteamID.
type Steam struct {
	loginURL string
	baseURL  string
}

// NewSteam creates the Steam flow. baseURL is this server's public URL.
func NewSteam(baseURL, loginURL string) *Steam {
	return &Steam{loginURL: orDefault(loginURL, SteamLoginURL), baseURL: strings.TrimRight(baseURL, "/")}
}

// AuthURL returns the Steam sign-in URL. state rides on return_to.
func (s *Steam) AuthURL(state string) string {
	returnTo := s.baseURL + "/auth/steam/callback?" + url.Values{"state": {state}}.Encode()
	q := url.Values{
		"openid.ns":         {openIDNamespace},
		"openid.mode":       {"checkid_setup"},
		"openid.return_to":  {returnTo},
		"openid.realm":      {s.baseURL},
		"openid.identity":   {openIDIdentifier},
		"openid.claimed_id": {openIDIdentifier},
	}
	return s.loginURL + "?" + q.Encode()
}

// Verify checks a positive assertion with Steam (check_authentication) and returns the SteamID.
func (s *Steam) Verify(ctx context.Context, httpClient *http.Client, params url.Values) (string, error) {
	if params.Get("openid.mode") != "id_res" {
		return "", fmt.Errorf("%w: mode %q", ErrInvalidAssertion, params.Get("openid.mode"))
	}
	m := steamIDPattern.FindStringSubmatch(params.Get("openid.claimed_id"))
	if m == nil {
		return "", fmt.Errorf("%w: claimed_id %q", ErrInvalidAssertion, params.Get("openid.claimed_id"))
	}

	form := url.Values{}
	for k, vs := range params {
		if strings.HasPrefix(k, "openid.") {
			form[k] = vs
		}
	}
	form.Set("openid.mode", "check_authentication")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("check_authentication: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("read check_authentication: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "is_valid:true") {
		return "", fmt.Errorf("%w: rejected by steam", ErrInvalidAssertion)
	}
	return m[1], nil
}
