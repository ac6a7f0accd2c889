package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/brocker-tv/backend/internal/models"
	"github.com/brocker-tv/backend/pkg/response"
	"github.com/brocker-tv/backend/pkg/utils"
)

// UserStore is the part of Repository the handler needs.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Exists(ctx context.Context, username, email string) (bool, error)
	Create(ctx context.Context, username, email, passwordHash string) (*models.User, error)
}

// RegisterRequest is the body for POST /api/users.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body for POST /api/users/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// Handler handles local user HTTP endpoints.
type Handler struct {
	users      UserStore
	jwt        *JWTService
	cookieName string
	logger     *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(users UserStore, jwt *JWTService, cookieName string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, jwt: jwt, cookieName: cookieName, logger: logger}
}

// TokenFromRequest returns the session token from the cookie, else from a Bearer header.
func TokenFromRequest(c *gin.Context, cookieName string) string {
	if v, err := c.Cookie(cookieName); err == nil && v != "" {
		return v
	}
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// Register handles POST /api/users.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		response.BadRequest(c, "username required")
		return
	}

	ctx := c.Request.Context()
	exists, err := h.users.Exists(ctx, req.Username, req.Email)
	if err != nil {
		h.logger.Error("check user exists", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}
	if exists {
		response.Conflict(c, "User already exists")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}
	user, err := h.users.Create(ctx, req.Username, req.Email, hash)
	if errors.Is(err, ErrUserExists) {
		response.Conflict(c, "User already exists")
		return
	}
	if err != nil {
		h.logger.Error("create user", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}
	h.issue(c, http.StatusCreated, user)
}

// Login handles POST /api/users/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		response.BadRequest(c, "username and password required")
		return
	}

	user, err := h.users.GetByUsername(c.Request.Context(), req.Username)
	if err != nil {
		h.logger.Error("load user", zap.Error(err))
		response.Internal(c, "failed to sign in")
		return
	}
	if user == nil {
		response.NotFound(c, "User not found")
		return
	}
	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		response.Unauthorized(c, "Invalid password")
		return
	}
	h.issue(c, http.StatusOK, user)
}

// Logout handles POST /api/auth/logout by clearing the session cookie.
func (h *Handler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, "", -1, "/", "", false, true)
	response.OK(c, gin.H{"ok": true})
}

// Me handles GET /api/me. Without a token it answers 204.
func (h *Handler) Me(c *gin.Context) {
	token := TokenFromRequest(c, h.cookieName)
	if token == "" {
		response.NoContent(c)
		return
	}
	claims, err := h.jwt.Validate(token)
	if err != nil {
		response.Unauthorized(c, "Invalid token")
		return
	}
	h.respondUser(c, claims.UserID)
}

// GetUser handles GET /api/users/:id.
func (h *Handler) GetUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	h.respondUser(c, id)
}

func (h *Handler) respondUser(c *gin.Context, id int64) {
	user, err := h.users.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("load user", zap.Int64("user_id", id), zap.Error(err))
		response.Internal(c, "failed to load user")
		return
	}
	if user == nil {
		response.NotFound(c, "User not found")
		return
	}
	response.OK(c, gin.H{"user": user})
}

func (h *Handler) issue(c *gin.Context, status int, user *models.User) {
	token, err := h.jwt.Generate(user.ID, user.Username)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, token, int(h.jwt.TTL().Seconds()), "/", "", false, true)
	c.JSON(status, TokenResponse{User: user, Token: token})
}
