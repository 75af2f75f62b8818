package api

import (
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"research-chat/backend/pkg/logger"
	"research-chat/backend/session"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	store  session.Store
	maxAge time.Duration
	log    *logger.Logger
}

// NewSessionHandler serves tracker state. maxAge is the cleanup default.
func NewSessionHandler(store session.Store, maxAge time.Duration, log *logger.Logger) *SessionHandler {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &SessionHandler{store: store, maxAge: maxAge, log: log}
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, err := h.store.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.lookupFailed(c, err, "Session not found")
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *SessionHandler) GetConversation(c *gin.Context) {
	conv, err := h.store.Conversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.lookupFailed(c, err, "Conversation not found")
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *SessionHandler) lookupFailed(c *gin.Context, err error, notFound string) {
	if stderrors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return
	}
	logger.FromContext(c, h.log).LogError(err, "session store lookup failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

type cleanupRequest struct {
	MaxAgeHours *float64 `json:"max_age_hours"`
}

// Cleanup drops sessions older than max_age_hours. An empty or missing body
// uses the configured maximum age.
func (h *SessionHandler) Cleanup(c *gin.Context) {
	maxAge := h.maxAge
	var req cleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil && !stderrors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if req.MaxAgeHours != nil {
		if *req.MaxAgeHours < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_age_hours must not be negative"})
			return
		}
		maxAge = time.Duration(*req.MaxAgeHours * float64(time.Hour))
	}

	ctx := c.Request.Context()
	removed, err := h.store.Cleanup(ctx, maxAge)
	if err != nil {
		logger.FromContext(c, h.log).LogError(err, "session cleanup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	stats, err := h.store.Stats(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logger.FromContext(c, h.log).Info("sessions cleaned up", "removed", removed, "max_age", maxAge.String())
	c.JSON(http.StatusOK, gin.H{
		"status":           "success",
		"cleaned_sessions": removed,
		"remaining_stats":  stats,
	})
}
