package api

import (
	"context"
	"net/http"

	"research-chat/backend/chat/service"
	"research-chat/backend/pkg/errors"
	"research-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Replier answers one chat request
type Replier interface {
	Reply(ctx context.Context, req service.Request) (service.Response, error)
}

type ChatHandler struct {
	service Replier
	log     *logger.Logger
}

func NewChatHandler(service Replier, log *logger.Logger) *ChatHandler {
	return &ChatHandler{service: service, log: log}
}

// Chat handles POST /chat. Failures use the flat {"error": "..."} body the
// browser client expects.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req service.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	resp, err := h.service.Reply(c.Request.Context(), req)
	if err != nil {
		status := errors.GetStatusCode(err)
		if status >= http.StatusInternalServerError {
			logger.FromContext(c, h.log).LogError(err, "chat request failed")
		}
		c.JSON(status, gin.H{"error": errors.GetErrorMessage(err)})
		return
	}
	c.JSON(http.StatusOK, resp)
}
