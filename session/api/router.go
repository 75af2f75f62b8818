package api

import "github.com/gin-gonic/gin"

func RegisterSessionRoutes(r gin.IRouter, handler *SessionHandler) {
	r.GET("/session/:id", handler.GetSession)
	r.GET("/conversation/:id", handler.GetConversation)
	r.POST("/cleanup", handler.Cleanup)
}
