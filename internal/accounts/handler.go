package accounts

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/brocker-tv/backend/internal/models"
	"github.com/brocker-tv/backend/pkg/response"
)

// Store is the subset of Repository used by Handler.
type Store interface {
	ListByUser(ctx context.Context, localUser string) ([]models.Account, error)
	DeleteByUserAndPlatform(ctx context.Context, localUser string, platform models.Platform) (int64, error)
}

// Handler serves /api/user/:localUser/accounts.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates an accounts handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// List handles GET /api/user/:localUser/accounts.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.ListByUser(c.Request.Context(), c.Param("localUser"))
	if err != nil {
		h.logger.Error("list accounts", zap.Error(err))
		response.Internal(c, "failed to list accounts")
		return
	}
	if list == nil {
		list = []models.Account{}
	}
	response.OK(c, gin.H{"accounts": list})
}

// Delete handles DELETE /api/user/:localUser/accounts/:platform.
func (h *Handler) Delete(c *gin.Context) {
	n, err := h.store.DeleteByUserAndPlatform(c.Request.Context(), c.Param("localUser"), models.ParsePlatform(c.Param("platform")))
	if err != nil {
		h.logger.Error("delete account", zap.Error(err))
		response.Internal(c, "failed to delete account")
		return
	}
	response.OK(c, gin.H{"deleted": n})
}
