package streams

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brocker-tv/backend/internal/models"
	"github.com/brocker-tv/backend/pkg/response"
)

// ErrExportNotReady is returned by an ExportLinker when the export has not been written yet.
var ErrExportNotReady = errors.New("export not ready")

// Service is the session lifecycle used by Handler.
type Service interface {
	Start(ctx context.Context, localUser, platform string) (*StartResult, error)
	Stop(ctx context.Context, localUser, sessionID string) (*models.Summary, error)
}

// SessionReader reads sessions and their samples.
type SessionReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.StreamSession, error)
	ListSamples(ctx context.Context, sessionID uuid.UUID) ([]models.MetricSample, error)
	ListByUser(ctx context.Context, localUser string, limit int) ([]models.StreamSession, error)
}

// ExportLinker signs a download link for a stopped session's export.
type ExportLinker interface {
	ExportURL(ctx context.Context, session *models.StreamSession) (string, error)
}

// StartRequest is the body for POST /api/stream/start.
type StartRequest struct {
	LocalUser string `json:"localUser"`
	Platform  string `json:"platform"`
}

// StopRequest is the body for POST /api/stream/stop.
type StopRequest struct {
	LocalUser string `json:"localUser"`
	SessionID string `json:"sessionId"`
}

// Handler handles stream session HTTP endpoints.
type Handler struct {
	svc     Service
	reader  SessionReader
	exports ExportLinker
	logger  *zap.Logger
}

// NewHandler creates a stream handler. exports may be nil when exports are disabled.
func NewHandler(svc Service, reader SessionReader, exports ExportLinker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, reader: reader, exports: exports, logger: logger}
}

// Start handles POST /api/stream/start.
func (h *Handler) Start(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.svc.Start(c.Request.Context(), req.LocalUser, req.Platform)
	if err != nil {
		h.fail(c, "start session", err)
		return
	}
	body := gin.H{"sessionId": res.SessionID, "polling": res.Polling}
	if res.Warning != "" {
		body["warning"] = res.Warning
	}
	response.OK(c, body)
}

// Stop handles POST /api/stream/stop.
func (h *Handler) Stop(c *gin.Context) {
	var req StopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	summary, err := h.svc.Stop(c.Request.Context(), req.LocalUser, req.SessionID)
	if err != nil {
		h.fail(c, "stop session", err)
		return
	}
	response.OK(c, gin.H{"summary": summary})
}

// Get handles GET /api/stream/:id: the session record and its samples.
func (h *Handler) Get(c *gin.Context) {
	sess, ok := h.loadSession(c)
	if !ok {
		return
	}
	samples, err := h.reader.ListSamples(c.Request.Context(), sess.ID)
	if err != nil {
		h.logger.Error("list samples", zap.String("session_id", sess.ID.String()), zap.Error(err))
		response.Internal(c, "failed to load samples")
		return
	}
	if samples == nil {
		samples = []models.MetricSample{}
	}
	response.OK(c, gin.H{"session": sess, "samples": samples})
}

// ExportURL handles GET /api/stream/:id/export.
func (h *Handler) ExportURL(c *gin.Context) {
	if h.exports == nil {
		response.ServiceUnavailable(c, "exports disabled")
		return
	}
	sess, ok := h.loadSession(c)
	if !ok {
		return
	}
	if sess.StoppedAt == nil {
		response.Conflict(c, "session is still running")
		return
	}
	url, err := h.exports.ExportURL(c.Request.Context(), sess)
	if errors.Is(err, ErrExportNotReady) {
		response.NotFound(c, "export not ready")
		return
	}
	if err != nil {
		h.logger.Error("export url", zap.String("session_id", sess.ID.String()), zap.Error(err))
		response.Internal(c, "failed to sign export url")
		return
	}
	response.OK(c, gin.H{"url": url})
}

// ListByUser handles GET /api/user/:localUser/sessions.
func (h *Handler) ListByUser(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	list, err := h.reader.ListByUser(c.Request.Context(), c.Param("localUser"), limit)
	if err != nil {
		h.logger.Error("list sessions", zap.Error(err))
		response.Internal(c, "failed to list sessions")
		return
	}
	if list == nil {
		list = []models.StreamSession{}
	}
	response.OK(c, gin.H{"sessions": list})
}

func (h *Handler) loadSession(c *gin.Context) (*models.StreamSession, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return nil, false
	}
	sess, err := h.reader.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get session", zap.String("session_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to load session")
		return nil, false
	}
	if sess == nil {
		response.NotFound(c, "session not found")
		return nil, false
	}
	return sess, true
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	if errors.Is(err, ErrValidation) {
		response.BadRequest(c, err.Error())
		return
	}
	h.logger.Error(op, zap.Error(err))
	response.Internal(c, "failed to "+op)
}
