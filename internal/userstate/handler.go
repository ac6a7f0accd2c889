// Package userstate persists the companion's client-side progress (XP, level, preferences) per local user.
package userstate

import (
	"context"
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/brocker-tv/backend/pkg/response"
)

// maxStateBytes bounds an uploaded state document.
const maxStateBytes = 64 << 10

// Store reads and writes state documents.
type Store interface {
	Get(ctx context.Context, localUser string) (json.RawMessage, error)
	Put(ctx context.Context, localUser string, state json.RawMessage) error
}

// Handler serves /api/user/:localUser/state.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates a user state handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// Get handles GET: {"state": <document>} or {"state": null}.
func (h *Handler) Get(c *gin.Context) {
	state, err := h.store.Get(c.Request.Context(), c.Param("localUser"))
	if err != nil {
		h.logger.Error("load user state", zap.Error(err))
		response.Internal(c, "failed to load state")
		return
	}
	if len(state) == 0 || !json.Valid(state) {
		state = json.RawMessage("null")
	}
	response.OK(c, gin.H{"state": state})
}

// Put handles POST: stores the raw JSON body. An empty body stores {}.
func (h *Handler) Put(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxStateBytes+1))
	if err != nil {
		response.BadRequest(c, "failed to read body")
		return
	}
	if len(body) > maxStateBytes {
		response.BadRequest(c, "state too large")
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		response.BadRequest(c, "state must be JSON")
		return
	}
	if err := h.store.Put(c.Request.Context(), c.Param("localUser"), body); err != nil {
		h.logger.Error("save user state", zap.Error(err))
		response.Internal(c, "failed to save state")
		return
	}
	response.OK(c, gin.H{"ok": true})
}
