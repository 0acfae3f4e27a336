// infrastructure/router.go
package infrastructure

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Webhooks  *WebhookHandlers
	Jobs      *JobHandlers
	AppSecret string
	JWTSecret []byte
	Health    map[string]func(ctx context.Context) error
	Logger    *zap.Logger
}

// NewRouter wires the ingress routes. Request metrics are attached by the
// caller once all routes exist.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(RequestLogger(cfg.Logger.Named("http")))
	router.Use(gin.Recovery())

	router.GET("/health", HealthCheck(cfg.Health))
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Autosplit Service is running!"})
	})

	router.GET("/webhook", cfg.Webhooks.VerifyHandler)
	router.POST("/webhook", VerifySignature(cfg.AppSecret, cfg.Logger), cfg.Webhooks.EventHandler)

	// Outputs are fetched by the platform when publishing, so they stay public.
	router.GET("/outputs/:jobID", cfg.Jobs.OutputHandler)

	authRoutes := router.Group("/api")
	authRoutes.Use(AuthMiddleware(cfg.JWTSecret))
	{
		authRoutes.GET("/jobs", cfg.Jobs.ListJobsHandler)
		authRoutes.GET("/jobs/:id", cfg.Jobs.GetJobHandler)
	}
	return router
}
