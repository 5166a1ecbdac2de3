package relay

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wiki-explorer/internal/common/config"
	"wiki-explorer/internal/common/logger"
)

const (
	EndPointGenerate = "/api/generate"
	EndPointHealth   = "/health"
	EndPointReady    = "/ready"
	EndPointMetrics  = "/metrics"
)

// NewRouter mounts the relay endpoints and middleware.
func NewRouter(cfg *config.Config, h *Handler, log logger.Logger) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery(), RequestID(), AccessLog(log), CORS(cfg.Server.AllowedOrigins))
	router.NoMethod(h.MethodNotAllowed)

	router.GET(EndPointHealth, h.Health)
	router.GET(EndPointReady, h.Ready)
	router.GET(EndPointMetrics, gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(RateLimit(NewRateLimiter(cfg.Server.RateLimitPerMinute, time.Minute), log))
	api.POST("/generate", h.Generate)

	return router
}
