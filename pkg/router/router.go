package router

import (
	"context"
	"net/http"
	"time"

	chatapi "research-chat/backend/chat/api"
	convapi "research-chat/backend/conversation/api"
	"research-chat/backend/pkg/di"
	"research-chat/backend/pkg/errors"
	"research-chat/backend/pkg/logger"
	"research-chat/backend/pkg/middleware"
	sessionapi "research-chat/backend/session/api"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Router is the main router for the application
type Router struct {
	Engine      *gin.Engine
	Container   *di.Container
	Logger      *logger.Logger
	RateLimiter *middleware.RateLimiter
}

// New creates a router with the shared middleware installed
func New(container *di.Container) *Router {
	cfg := container.Config

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler(container.Logger))
	engine.Use(errors.RecoveryWithLogger(container.Logger))
	engine.Use(corsMiddleware(cfg.Server.AllowedOrigins))
	engine.Use(timeoutMiddleware(cfg.Server.RequestTimeout))

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		RateLimiter: middleware.NewRateLimiter(container.Logger, middleware.RateLimiterOptions{
			Limit: rate.Limit(cfg.Security.RateLimit),
			Burst: cfg.Security.RateBurst,
		}),
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	c := r.Container

	if c.Config.Security.OpenAPIValidation {
		r.AddOpenAPIValidation()
	}
	r.setupHealthRoutes()

	limited := r.RateLimiter.Middleware()

	chatapi.RegisterChatRoutes(r.Engine, chatapi.NewChatHandler(c.ChatService, r.Logger), limited)
	sessionapi.RegisterSessionRoutes(r.Engine, sessionapi.NewSessionHandler(c.Sessions, c.Config.Session.MaxAge, r.Logger))

	messages := convapi.NewMessageHandler(c.ConversationLogger, c.Config.Admin.ExportDir, r.Logger)
	convapi.RegisterMessageRoutes(r.Engine, messages)

	admin := convapi.NewAdminHandler(c.Config.Admin.Username, c.Config.Admin.PasswordHash, c.JWTService, r.Logger)
	adminGroup := r.Engine.Group("", limited)
	convapi.RegisterAdminRoutes(adminGroup, admin, messages, middleware.RequireAdmin(c.JWTService, r.Logger))
}

// timeoutMiddleware bounds each request context by d
func timeoutMiddleware(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func corsMiddleware(allowed []string) gin.HandlerFunc {
	allowAll := len(allowed) == 0
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		origins[o] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origins[origin]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Authorization, Origin, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Content-Disposition")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
