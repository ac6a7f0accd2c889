package oauth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/brocker-tv/backend/internal/auth"
	"github.com/brocker-tv/backend/internal/models"
	"github.com/brocker-tv/backend/pkg/response"
)

// AccountStore persists linked accounts and finds who already owns a platform identity.
type AccountStore interface {
	Create(ctx context.Context, a *models.Account) (*models.Account, error)
	GetByPlatformIdentity(ctx context.Context, platform models.Platform, platformUserID string) (*models.Account, error)
}

// UserStore creates password-less users for the register intent.
// CreatePasswordless returns auth.ErrUserExists when the name is taken.
type UserStore interface {
	CreatePasswordless(ctx context.Context, username string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// SessionIssuer signs the login token set as a cookie after a register intent.
type SessionIssuer interface {
	Generate(userID int64, username string) (string, error)
	TTL() time.Duration
}

// errNameTaken means a register intent hit a local user that this identity never linked.
var errNameTaken = errors.New("username taken by another user")

const confirmPage = `<html><body><h3>%s account linked to user %s</h3>%s<p>Close this tab and return to BROCKER.TV.</p></body></html>`

// Handler serves /auth/:provider/url and /auth/:provider/callback.
type Handler struct {
	providers  map[string]*Provider
	steam      *Steam
	accounts   AccountStore
	users      UserStore
	sessions   SessionIssuer
	cookieName string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHandler creates an oauth handler. Providers are added with AddProvider.
func NewHandler(accounts AccountStore, users UserStore, sessions SessionIssuer, cookieName string, httpClient *http.Client, logger *zap.Logger) *Handler {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		providers:  make(map[string]*Provider),
		accounts:   accounts,
		users:      users,
		sessions:   sessions,
		cookieName: cookieName,
		httpClient: httpClient,
		logger:     logger,
	}
}

// AddProvider mounts p under /auth/<name>/.
func (h *Handler) AddProvider(name string, p *Provider) {
	h.providers[name] = p
}

// SetSteam enables /auth/steam/.
func (h *Handler) SetSteam(s *Steam) {
	h.steam = s
}

// RegisterRoutes mounts every configured flow on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	for name := range h.providers {
		r.GET("/auth/"+name+"/url", h.URL(name))
		r.GET("/auth/"+name+"/callback", h.Callback(name))
	}
	if h.steam != nil {
		r.GET("/auth/steam/url", h.SteamURL)
		r.GET("/auth/steam/callback", h.SteamCallback)
	}
}

// URL handles GET /auth/<name>/url?user=&intent=.
func (h *Handler) URL(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := h.providers[name]
		if !ok {
			response.NotFound(c, "unknown provider")
			return
		}
		if !p.Configured() {
			response.ServiceUnavailable(c, p.Label+" login is not configured")
			return
		}
		state := EncodeState(c.Query("user"), c.Query("intent"))
		response.OK(c, gin.H{"url": p.AuthCodeURL(state)})
	}
}

// Callback handles GET /auth/<name>/callback?code=&state=.
func (h *Handler) Callback(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := h.providers[name]
		if !ok {
			c.String(http.StatusNotFound, "Unknown provider")
			return
		}
		code := c.Query("code")
		if code == "" {
			c.String(http.StatusBadRequest, "Missing code")
			return
		}
		ctx := c.Request.Context()
		tok, id, err := p.Exchange(ctx, h.httpClient, code)
		if err != nil {
			h.logger.Warn("oauth callback", zap.String("provider", name), zap.Error(err))
			c.String(http.StatusInternalServerError, "OAuth error")
			return
		}
		localUser, err := h.resolveTarget(c, DecodeState(c.Query("state")), p.Platform, id.PlatformUserID, id.Username)
		if errors.Is(err, errNameTaken) {
			h.logger.Warn("oauth register refused", zap.String("provider", name), zap.String("username", id.Username))
			c.String(http.StatusConflict, "User already exists")
			return
		}
		if err != nil {
			h.logger.Error("resolve oauth target", zap.String("provider", name), zap.Error(err))
			c.String(http.StatusInternalServerError, "OAuth error")
			return
		}
		account := &models.Account{
			LocalUser:      localUser,
			Platform:       p.Platform,
			PlatformUserID: id.PlatformUserID,
			ClientID:       p.Config.ClientID,
			AccessToken:    tok.AccessToken,
			RefreshToken:   tok.RefreshToken,
			ExpiresAt:      expiry(tok),
		}
		if _, err := h.accounts.Create(ctx, account); err != nil {
			h.logger.Error("store linked account", zap.String("provider", name), zap.Error(err))
			c.String(http.StatusInternalServerError, "OAuth error")
			return
		}
		h.logger.Info("account linked",
			zap.String("local_user", localUser),
			zap.String("platform", p.Platform.String()),
			zap.String("platform_userid", id.PlatformUserID))
		confirm(c, p.Label, localUser, "")
	}
}

// SteamURL handles GET /auth/steam/url?user=&intent=.
func (h *Handler) SteamURL(c *gin.Context) {
	state := EncodeState(c.Query("user"), c.Query("intent"))
	response.OK(c, gin.H{"url": h.steam.AuthURL(state)})
}

// SteamCallback handles GET /auth/steam/callback with the OpenID assertion in the query.
func (h *Handler) SteamCallback(c *gin.Context) {
	ctx := c.Request.Context()
	steamID, err := h.steam.Verify(ctx, h.httpClient, c.Request.URL.Query())
	if err != nil {
		h.logger.Warn("steam callback", zap.Error(err))
		c.String(http.StatusBadRequest, "Invalid Steam login")
		return
	}
	localUser, err := h.resolveTarget(c, DecodeState(c.Query("state")), models.PlatformSteam, steamID, "steam_"+steamID)
	if errors.Is(err, errNameTaken) {
		h.logger.Warn("steam register refused", zap.String("steam_id", steamID))
		c.String(http.StatusConflict, "User already exists")
		return
	}
	if err != nil {
		h.logger.Error("resolve steam target", zap.Error(err))
		c.String(http.StatusInternalServerError, "Steam error")
		return
	}
	account := &models.Account{LocalUser: localUser, Platform: models.PlatformSteam, PlatformUserID: steamID}
	if _, err := h.accounts.Create(ctx, account); err != nil {
		h.logger.Error("store steam account", zap.Error(err))
		c.String(http.StatusInternalServerError, "Steam error")
		return
	}
	h.logger.Info("account linked", zap.String("local_user", localUser), zap.String("platform", "steam"), zap.String("platform_userid", steamID))
	confirm(c, "Steam", localUser, "<p>SteamID: "+html.EscapeString(steamID)+"</p>")
}

// resolveTarget returns the local user to link. A register intent creates a
// password-less user named after the platform identity and signs it in. An
// existing user is only signed in when this same identity is already linked to it.
func (h *Handler) resolveTarget(c *gin.Context, t Target, platform models.Platform, platformUserID, username string) (string, error) {
	if !t.Register {
		return t.LocalUser, nil
	}
	ctx := c.Request.Context()
	user, err := h.users.CreatePasswordless(ctx, username)
	if errors.Is(err, auth.ErrUserExists) {
		user, err = h.returningUser(ctx, platform, platformUserID, username)
	}
	if err != nil {
		return "", err
	}
	if h.sessions != nil {
		token, err := h.sessions.Generate(user.ID, user.Username)
		if err != nil {
			return "", fmt.Errorf("sign session: %w", err)
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(h.cookieName, token, int(h.sessions.TTL().Seconds()), "/", "", false, true)
	}
	return user.Username, nil
}

func (h *Handler) returningUser(ctx context.Context, platform models.Platform, platformUserID, username string) (*models.User, error) {
	linked, err := h.accounts.GetByPlatformIdentity(ctx, platform, platformUserID)
	if err != nil {
		return nil, fmt.Errorf("lookup %s identity: %w", platform, err)
	}
	if linked == nil || linked.LocalUser != username {
		return nil, errNameTaken
	}
	user, err := h.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("load user %q: %w", username, err)
	}
	if user == nil {
		return nil, errNameTaken
	}
	return user, nil
}

func expiry(tok *oauth2.Token) *time.Time {
	if tok.Expiry.IsZero() {
		return nil
	}
	t := tok.Expiry
	return &t
}

func confirm(c *gin.Context, label, localUser, extra string) {
	body := fmt.Sprintf(confirmPage, html.EscapeString(label), html.EscapeString(localUser), extra)
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(body))
}
