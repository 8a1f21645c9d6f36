package handler

import (
	"time"

	"scanalytics-backend/internal/config"
	"scanalytics-backend/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func NewRouter(cfg *config.Config, chatHandler *ChatHandler, healthHandler *HealthHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(logger.GinMiddleware())
	router.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", healthHandler.Health)

	api := router.Group("/api")
	if cfg.RateLimit.Enabled {
		api.Use(NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst).Middleware())
	}
	api.POST("/chat", chatHandler.StreamChat)

	return router
}
