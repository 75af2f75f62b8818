package router

import "github.com/gin-gonic/gin"

// setupHealthRoutes registers /health and, when metrics are enabled, /metrics
func (r *Router) setupHealthRoutes() {
	handler := r.Container.Health.Handler()
	r.Engine.GET("/health", handler)
	r.Engine.GET("/api/health", handler)

	if metrics := r.Container.Telemetry.MetricsHandler(); metrics != nil {
		r.Engine.GET("/metrics", gin.WrapH(metrics))
	}
}
