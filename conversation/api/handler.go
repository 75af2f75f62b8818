package api

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"research-chat/backend/conversation/models"
	"research-chat/backend/conversation/service"
	"research-chat/backend/pkg/errors"
	"research-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ConversationLog is the part of the conversation logger the handlers read from
type ConversationLog interface {
	GetConversation(ctx context.Context, conversationID string) ([]models.ChatMessage, error)
	GetSessionMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
	GetStats(ctx context.Context) (models.Stats, error)
	WriteCSV(ctx context.Context, w io.Writer, filter string) (int, error)
	ExportToCSV(ctx context.Context, path, filter string) error
}

type MessageHandler struct {
	log       ConversationLog
	exportDir string
	logger    *logger.Logger
	now       func() time.Time
}

// NewMessageHandler serves the message routes. Server-side exports land in
// exportDir; an empty exportDir disables them.
func NewMessageHandler(log ConversationLog, exportDir string, l *logger.Logger) *MessageHandler {
	return &MessageHandler{log: log, exportDir: exportDir, logger: l, now: time.Now}
}

func (h *MessageHandler) GetConversationMessages(c *gin.Context) {
	messages, err := h.log.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation_id": c.Param("id"),
		"messages":        messages,
	})
}

func (h *MessageHandler) GetSessionMessages(c *gin.Context) {
	messages, err := h.log.GetSessionMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": c.Param("id"),
		"messages":   messages,
	})
}

func (h *MessageHandler) Stats(c *gin.Context) {
	stats, err := h.log.GetStats(c.Request.Context())
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Export downloads the rows matching ?filter= as CSV
func (h *MessageHandler) Export(c *gin.Context) {
	filter := c.Query("filter")
	if _, err := service.CompileFilter(filter); err != nil {
		errors.Abort(c, errors.NewBadRequestError("INVALID_FILTER", err.Error()))
		return
	}

	// buffer so an export error can still set the status
	var buf bytes.Buffer
	rows, err := h.log.WriteCSV(c.Request.Context(), &buf, filter)
	if err != nil {
		errors.Abort(c, err)
		return
	}

	name := fmt.Sprintf("chat_logs_%s.csv", h.now().UTC().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Header("X-Export-Rows", fmt.Sprint(rows))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

type exportRequest struct {
	Path   string `json:"path" binding:"required"`
	Filter string `json:"filter"`
}

// ExportToFile writes the export to a file under the export directory
func (h *MessageHandler) ExportToFile(c *gin.Context) {
	if h.exportDir == "" {
		errors.Abort(c, errors.NewForbiddenError("EXPORT_DISABLED", "Server-side export is disabled"))
		return
	}

	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.Abort(c, errors.NewBadRequestError("INVALID_REQUEST", err.Error()))
		return
	}
	if !filepath.IsLocal(req.Path) {
		errors.Abort(c, errors.NewBadRequestError("INVALID_PATH", "path must be relative to the export directory"))
		return
	}
	if _, err := service.CompileFilter(req.Filter); err != nil {
		errors.Abort(c, errors.NewBadRequestError("INVALID_FILTER", err.Error()))
		return
	}

	path := filepath.Join(h.exportDir, req.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		errors.Abort(c, errors.NewStorageError("create export directory", err))
		return
	}

	err := h.log.ExportToCSV(c.Request.Context(), path, req.Filter)
	if stderrors.Is(err, service.ErrProtectedPath) {
		errors.Abort(c, errors.NewBadRequestError("INVALID_PATH", "path names a protected file"))
		return
	}
	if err != nil {
		errors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "path": path})
}
