package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterChatRoutes mounts POST /chat behind the given middleware
func RegisterChatRoutes(r gin.IRouter, handler *ChatHandler, middleware ...gin.HandlerFunc) {
	handlers := append(append([]gin.HandlerFunc{}, middleware...), handler.Chat)
	r.POST("/chat", handlers...)
}
