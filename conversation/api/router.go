package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterMessageRoutes mounts the persisted-log reads
func RegisterMessageRoutes(r gin.IRouter, handler *MessageHandler) {
	r.GET("/conversation/:id/messages", handler.GetConversationMessages)
	r.GET("/session/:id/messages", handler.GetSessionMessages)
}

// RegisterAdminRoutes mounts /admin. Everything but login sits behind auth.
func RegisterAdminRoutes(r gin.IRouter, admin *AdminHandler, handler *MessageHandler, auth gin.HandlerFunc) {
	group := r.Group("/admin")
	group.POST("/login", admin.Login)

	protected := group.Group("")
	protected.Use(auth)
	{
		protected.GET("/stats", handler.Stats)
		protected.GET("/export", handler.Export)
		protected.POST("/export", handler.ExportToFile)
	}
}
